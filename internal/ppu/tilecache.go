package ppu

// tileVariant holds the decoded 8x8 palette-index pixels (0-3) for one
// flip combination of a tile, lazily materialized from raw VRAM bytes.
type tileVariant struct {
	valid bool
	px    [64]byte
}

// tileCache holds all four flip variants of every tile in both VRAM banks.
// A variant is decoded on first use and invalidated whenever the owning
// tile's bytes in VRAM are written, so a game that rewrites tile data mid-
// frame (common for animated BG effects) never sees stale pixels.
type tileCache struct {
	variants [2][512][4]tileVariant
}

func flipVariant(xflip, yflip bool) int {
	v := 0
	if xflip {
		v |= 1
	}
	if yflip {
		v |= 2
	}
	return v
}

// invalidate drops all cached variants of tileIndex in bank. Called from
// CPUWrite whenever a byte in that tile's 16-byte bitmap changes.
func (tc *tileCache) invalidate(bank int, tileIndex int) {
	if bank < 0 || bank > 1 || tileIndex < 0 || tileIndex >= 512 {
		return
	}
	for i := range tc.variants[bank][tileIndex] {
		tc.variants[bank][tileIndex][i].valid = false
	}
}

// get returns the decoded pixels for tileIndex (absolute, 0-511) in the
// given bank and flip orientation, decoding and caching them on first
// access. Row r of the returned array is always the on-screen row after
// any Y-flip has been applied, so callers index it with a plain tile-local
// row coordinate.
func (tc *tileCache) get(mem BankVRAMReader, bank, tileIndex int, xflip, yflip bool) [64]byte {
	v := &tc.variants[bank][tileIndex][flipVariant(xflip, yflip)]
	if v.valid {
		return v.px
	}
	base := uint16(tileIndex) * 16
	for row := 0; row < 8; row++ {
		srcRow := row
		if yflip {
			srcRow = 7 - row
		}
		lo := mem.ReadBank(bank, 0x8000+base+uint16(srcRow)*2)
		hi := mem.ReadBank(bank, 0x8000+base+uint16(srcRow)*2+1)
		for col := 0; col < 8; col++ {
			bit := byte(7 - col)
			if xflip {
				bit = byte(col)
			}
			v.px[row*8+col] = ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
		}
	}
	v.valid = true
	return v.px
}

// absTileIndex converts a BG/window map tile number plus the LCDC
// addressing mode into an absolute 0-511 index into the cache.
func absTileIndex(tileNum byte, tileData8000 bool) int {
	if tileData8000 {
		return int(tileNum)
	}
	return 256 + int(int8(tileNum))
}

// RenderBGScanlineCached is the tile-cache-backed counterpart of
// RenderBGScanlineUsingFetcher: same pixel output, but reuses decoded tile
// rows across calls instead of re-walking the FIFO fetcher each time.
func (p *PPU) RenderBGScanlineCached(mapBase uint16, tileData8000 bool, scx, scy, ly byte) [160]byte {
	var out [160]byte
	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapY := (bgY >> 3) & 31
	tileX := (uint16(scx) >> 3) & 31
	fineX := int(scx & 7)

	col := -fineX
	for col < 160 {
		tileNum := p.ReadBank(0, mapBase+mapY*32+tileX)
		px := p.tiles.get(p, 0, absTileIndex(tileNum, tileData8000), false, false)
		for i := 0; i < 8 && col < 160; i++ {
			if col >= 0 {
				out[col] = px[int(fineY)*8+i]
			}
			col++
		}
		tileX = (tileX + 1) & 31
	}
	return out
}

// RenderWindowScanlineCached is the cached counterpart of
// RenderWindowScanlineUsingFetcher.
func (p *PPU) RenderWindowScanlineCached(mapBase uint16, tileData8000 bool, wxStart int, winLine byte) [160]byte {
	var out [160]byte
	if wxStart >= 160 {
		return out
	}
	if wxStart < 0 {
		wxStart = 0
	}
	mapY := (uint16(winLine) >> 3) & 31
	fineY := winLine & 7
	tileX := uint16(0)

	x := wxStart
	for x < 160 {
		tileNum := p.ReadBank(0, mapBase+mapY*32+tileX)
		px := p.tiles.get(p, 0, absTileIndex(tileNum, tileData8000), false, false)
		for i := 0; i < 8 && x < 160; i++ {
			out[x] = px[int(fineY)*8+i]
			x++
		}
		tileX = (tileX + 1) & 31
	}
	return out
}

// RenderBGScanlineCachedCGB is the tile-cache-backed counterpart of
// RenderBGScanlineCGB.
func (p *PPU) RenderBGScanlineCachedCGB(mapBase, attrBase uint16, tileData8000 bool, scx, scy, ly byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapY := (bgY >> 3) & 31
	tileX := (uint16(scx) >> 3) & 31
	fineX := int(scx & 7)

	col := -fineX
	for col < 160 {
		addr := mapBase + mapY*32 + tileX
		attrAddr := attrBase + mapY*32 + tileX
		tileNum := p.ReadBank(0, addr)
		attr := decodeCGBAttr(p.ReadBank(1, attrAddr))
		px := p.tiles.get(p, attr.bank, absTileIndex(tileNum, tileData8000), attr.xflip, attr.yflip)
		for i := 0; i < 8 && col < 160; i++ {
			if col >= 0 {
				ci[col] = px[int(fineY)*8+i]
				pal[col] = attr.palette
				pri[col] = attr.priority
			}
			col++
		}
		tileX = (tileX + 1) & 31
	}
	return
}

// RenderWindowScanlineCachedCGB is the tile-cache-backed counterpart of
// RenderWindowScanlineCGB.
func (p *PPU) RenderWindowScanlineCachedCGB(mapBase, attrBase uint16, tileData8000 bool, wxStart int, winLine byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	if wxStart >= 160 {
		return
	}
	if wxStart < 0 {
		wxStart = 0
	}
	mapY := (uint16(winLine) >> 3) & 31
	fineY := winLine & 7
	tileX := uint16(0)

	x := wxStart
	for x < 160 {
		addr := mapBase + mapY*32 + tileX
		attrAddr := attrBase + mapY*32 + tileX
		tileNum := p.ReadBank(0, addr)
		attr := decodeCGBAttr(p.ReadBank(1, attrAddr))
		px := p.tiles.get(p, attr.bank, absTileIndex(tileNum, tileData8000), attr.xflip, attr.yflip)
		for i := 0; i < 8 && x < 160; i++ {
			ci[x] = px[int(fineY)*8+i]
			pal[x] = attr.palette
			pri[x] = attr.priority
			x++
		}
		tileX = (tileX + 1) & 31
	}
	return
}

// ComposeSpriteLineCached is the tile-cache-backed counterpart of
// ComposeSpriteLine.
func (p *PPU) ComposeSpriteLineCached(sprites []Sprite, ly byte, bgci [160]byte, tall bool) [160]byte {
	var out [160]byte
	winnerX := make([]int, 160)
	winnerOAM := make([]int, 160)
	for i := range winnerX {
		winnerX[i] = 1 << 30
		winnerOAM[i] = 1 << 30
	}
	height := 8
	if tall {
		height = 16
	}
	for _, s := range sprites {
		row := int(ly) - s.Y
		if row < 0 || row >= height {
			continue
		}
		if s.Attr&sprAttrYFlip != 0 {
			row = height - 1 - row
		}
		tile := s.Tile
		if tall {
			if row >= 8 {
				tile |= 0x01
				row -= 8
			} else {
				tile &^= 0x01
			}
		}
		xflip := s.Attr&sprAttrXFlip != 0
		px := p.tiles.get(p, 0, int(tile), xflip, false)
		behindBG := s.Attr&sprAttrPriority != 0
		for col := 0; col < 8; col++ {
			screenX := s.X + col
			if screenX < 0 || screenX >= 160 {
				continue
			}
			ci := px[row*8+col]
			if ci == 0 {
				continue
			}
			if behindBG && bgci[screenX] != 0 {
				continue
			}
			if s.X < winnerX[screenX] || (s.X == winnerX[screenX] && s.OAMIndex < winnerOAM[screenX]) {
				winnerX[screenX] = s.X
				winnerOAM[screenX] = s.OAMIndex
				out[screenX] = ci
			}
		}
	}
	return out
}

// ComposeSpriteLineCachedCGB is the tile-cache-backed counterpart of
// ComposeSpriteLineWithAttrs, reading tile bytes from the bank the sprite's
// attribute byte selects.
func (p *PPU) ComposeSpriteLineCachedCGB(sprites []Sprite, ly byte, bgci [160]byte, tall bool) (ci [160]byte, attr [160]byte) {
	winnerX := make([]int, 160)
	winnerOAM := make([]int, 160)
	for i := range winnerX {
		winnerX[i] = 1 << 30
		winnerOAM[i] = 1 << 30
	}
	height := 8
	if tall {
		height = 16
	}
	for _, s := range sprites {
		row := int(ly) - s.Y
		if row < 0 || row >= height {
			continue
		}
		if s.Attr&sprAttrYFlip != 0 {
			row = height - 1 - row
		}
		tile := s.Tile
		if tall {
			if row >= 8 {
				tile |= 0x01
				row -= 8
			} else {
				tile &^= 0x01
			}
		}
		bank := 0
		if s.Attr&sprAttrBank != 0 {
			bank = 1
		}
		xflip := s.Attr&sprAttrXFlip != 0
		px := p.tiles.get(p, bank, int(tile), xflip, false)
		behindBG := s.Attr&sprAttrPriority != 0
		for col := 0; col < 8; col++ {
			screenX := s.X + col
			if screenX < 0 || screenX >= 160 {
				continue
			}
			pxCi := px[row*8+col]
			if pxCi == 0 {
				continue
			}
			if behindBG && bgci[screenX] != 0 {
				continue
			}
			if s.X < winnerX[screenX] || (s.X == winnerX[screenX] && s.OAMIndex < winnerOAM[screenX]) {
				winnerX[screenX] = s.X
				winnerOAM[screenX] = s.OAMIndex
				ci[screenX] = pxCi
				attr[screenX] = s.Attr
			}
		}
	}
	return ci, attr
}
