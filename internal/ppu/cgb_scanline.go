package ppu

// BankVRAMReader is VRAMReader extended with bank-qualified access, needed
// to read CGB tile data (bank 0/1) and the bank-1-resident BG map
// attribute bytes independently of the plain tile map in bank 0.
type BankVRAMReader interface {
	VRAMReader
	ReadBank(bank int, addr uint16) byte
}

type cgbAttr struct {
	bank     int
	xflip    bool
	yflip    bool
	priority bool
	palette  byte
}

func decodeCGBAttr(raw byte) cgbAttr {
	a := cgbAttr{palette: raw & 0x07}
	if raw&0x08 != 0 {
		a.bank = 1
	}
	a.xflip = raw&0x20 != 0
	a.yflip = raw&0x40 != 0
	a.priority = raw&0x80 != 0
	return a
}

func cgbTileRow(mem BankVRAMReader, bank int, tileData8000 bool, tileNum byte, fineY byte) (lo, hi byte) {
	var base uint16
	if tileData8000 {
		base = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
	} else {
		base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
	}
	return mem.ReadBank(bank, base), mem.ReadBank(bank, base+1)
}

// RenderBGScanlineCGB renders one BG scanline with CGB attributes: per-pixel
// palette number, VRAM bank selection, X/Y flip, and BG-to-OBJ priority.
// mapBase is the tile-number map (bank 0); attrBase is where the matching
// attribute bytes are read from (bank 1).
func RenderBGScanlineCGB(mem BankVRAMReader, mapBase, attrBase uint16, tileData8000 bool, scx, scy, ly byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	bgY := uint16(ly) + uint16(scy)
	fineYBase := byte(bgY & 7)
	mapY := (bgY >> 3) & 31

	startX := uint16(scx)
	tileX := (startX >> 3) & 31
	fineX := int(startX & 7)

	x := 0
	col := -fineX
	for x < 160 {
		addr := mapBase + mapY*32 + tileX
		attrAddr := attrBase + mapY*32 + tileX
		tileNum := mem.ReadBank(0, addr)
		attr := decodeCGBAttr(mem.ReadBank(1, attrAddr))

		fineY := fineYBase
		if attr.yflip {
			fineY = 7 - fineY
		}
		lo, hi := cgbTileRow(mem, attr.bank, tileData8000, tileNum, fineY)

		for px := 0; px < 8; px++ {
			if col >= 0 && col < 160 {
				bit := byte(7 - px)
				if attr.xflip {
					bit = byte(px)
				}
				v := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
				ci[col] = v
				pal[col] = attr.palette
				pri[col] = attr.priority
				x++
			}
			col++
		}
		tileX = (tileX + 1) & 31
	}
	return
}

// RenderWindowScanlineCGB is the window-layer analogue of RenderBGScanlineCGB.
// Pixels before wxStart are left zeroed so callers can blend against BG.
func RenderWindowScanlineCGB(mem BankVRAMReader, mapBase, attrBase uint16, tileData8000 bool, wxStart int, winLine byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	if wxStart >= 160 {
		return
	}
	if wxStart < 0 {
		wxStart = 0
	}
	mapY := (uint16(winLine) >> 3) & 31
	fineYBase := winLine & 7
	tileX := uint16(0)

	x := wxStart
	for x < 160 {
		addr := mapBase + mapY*32 + tileX
		attrAddr := attrBase + mapY*32 + tileX
		tileNum := mem.ReadBank(0, addr)
		attr := decodeCGBAttr(mem.ReadBank(1, attrAddr))

		fineY := fineYBase
		if attr.yflip {
			fineY = 7 - fineY
		}
		lo, hi := cgbTileRow(mem, attr.bank, tileData8000, tileNum, fineY)

		for px := 0; px < 8 && x < 160; px++ {
			bit := byte(7 - px)
			if attr.xflip {
				bit = byte(px)
			}
			v := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			ci[x] = v
			pal[x] = attr.palette
			pri[x] = attr.priority
			x++
		}
		tileX = (tileX + 1) & 31
	}
	return
}
