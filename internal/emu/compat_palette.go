package emu

// compatPaletteSet holds the RGB555 colors (as the CGB palette RAM encodes
// them, bit15 unused) for one DMG-compatibility colorization scheme: four
// BG shades plus two 4-color OBJ palettes.
type compatPaletteSet struct {
	bg, obj0, obj1 [4]uint16
}

// cgbCompatSetNames lists the curated compatibility palettes in the order
// compat_tables.go's IDs index into, shown in the UI's palette-cycle menu.
var cgbCompatSetNames = []string{"Green", "Sepia", "Blue", "Red", "Pastel", "Grayscale"}

// cgbCompatSets are hand-picked approximations of classic DMG tint
// palettes, each lightest-to-darkest across index 0-3.
var cgbCompatSets = []compatPaletteSet{
	{ // Green — classic pea-soup DMG
		bg:   [4]uint16{0x7FFF, 0x56B5, 0x294A, 0x0000},
		obj0: [4]uint16{0x7FFF, 0x6318, 0x39CE, 0x0000},
		obj1: [4]uint16{0x7FFF, 0x4FDA, 0x1CE7, 0x0000},
	},
	{ // Sepia — warm brown tint
		bg:   [4]uint16{0x7FDE, 0x5AD6, 0x3170, 0x1082},
		obj0: [4]uint16{0x7FDE, 0x5AB5, 0x2D2D, 0x0861},
		obj1: [4]uint16{0x7FDE, 0x4A8C, 0x2124, 0x0861},
	},
	{ // Blue — cool bluish tint
		bg:   [4]uint16{0x7FFF, 0x5EFB, 0x2D72, 0x0861},
		obj0: [4]uint16{0x7FFF, 0x4F1D, 0x2129, 0x0021},
		obj1: [4]uint16{0x7FFF, 0x3DEF, 0x1CE7, 0x0000},
	},
	{ // Red — warm reddish tint
		bg:   [4]uint16{0x7FFF, 0x5AD6, 0x2D0B, 0x0861},
		obj0: [4]uint16{0x7FFF, 0x4210, 0x2108, 0x0000},
		obj1: [4]uint16{0x7FFF, 0x5294, 0x1CE2, 0x0400},
	},
	{ // Pastel — soft desaturated tones
		bg:   [4]uint16{0x7FFF, 0x6739, 0x4631, 0x2529},
		obj0: [4]uint16{0x7FFF, 0x5EBD, 0x3A94, 0x1CE7},
		obj1: [4]uint16{0x7FFF, 0x577F, 0x3570, 0x18C6},
	},
	{ // Grayscale — neutral DMG-gray emulation
		bg:   [4]uint16{0x7FFF, 0x5294, 0x294A, 0x0000},
		obj0: [4]uint16{0x7FFF, 0x5294, 0x294A, 0x0000},
		obj1: [4]uint16{0x7FFF, 0x5294, 0x294A, 0x0000},
	},
}

// applyCompatPalette writes a curated compatibility palette into the PPU's
// CGB palette RAM via the same FF68/FF69 (BG) and FF6A/FF6B (OBJ) register
// sequence real CGB boot firmware uses, so DMG-only cartridges running in
// color-compatibility mode get a tinted, non-monochrome picture.
func applyCompatPalette(write func(addr uint16, value byte), id int) {
	if len(cgbCompatSets) == 0 {
		return
	}
	set := cgbCompatSets[id%len(cgbCompatSets)]

	writePal := func(idxPort, dataPort uint16, palNum int, colors [4]uint16) {
		base := palNum * 8
		for i, c := range colors {
			write(idxPort, byte(base+i*2)|0x80)
			write(dataPort, byte(c&0xFF))
			write(idxPort, byte(base+i*2+1)|0x80)
			write(dataPort, byte(c>>8))
		}
	}

	writePal(0xFF68, 0xFF69, 0, set.bg)
	writePal(0xFF6A, 0xFF6B, 0, set.obj0)
	writePal(0xFF6A, 0xFF6B, 1, set.obj1)
}
