package cart

// MBC2 implements ROM banking plus MBC2's built-in 512x4-bit RAM.
// Unlike MBC1/MBC3/MBC5, MBC2 has no external RAM chip: the 512-byte RAM
// array lives on the MBC itself, only the low nibble of each byte is wired,
// and it is addressable anywhere in 0xA000-0xBFFF (mirrored across the
// region). Bit 8 of the address written in 0x0000-0x3FFF distinguishes a
// RAM-enable write from a ROM-bank-select write.
type MBC2 struct {
	rom []byte
	ram [512]byte // low nibble significant

	ramEnabled bool
	romBank    byte // 4 bits, 0 maps to 1
}

func NewMBC2(rom []byte) *MBC2 {
	m := &MBC2{rom: rom}
	m.romBank = 1
	return m
}

func (m *MBC2) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x0F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		return m.ram[addr&0x1FF] | 0xF0
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value byte) {
	switch {
	case addr < 0x4000:
		// Bit 8 of the address selects RAM-enable (0) vs ROM-bank (1).
		if addr&0x0100 == 0 {
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			bank := value & 0x0F
			if bank == 0 {
				bank = 1
			}
			m.romBank = bank
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		m.ram[addr&0x1FF] = value & 0x0F
	}
}

func (m *MBC2) SaveRAM() []byte {
	out := make([]byte, len(m.ram))
	copy(out, m.ram[:])
	return out
}

func (m *MBC2) LoadRAM(data []byte) {
	if len(data) != len(m.ram) {
		return
	}
	copy(m.ram[:], data)
}

type mbc2State struct {
	RAM        [512]byte
	RamEnabled bool
	RomBank    byte
}

func (m *MBC2) SaveState() []byte {
	return encodeGob(mbc2State{RAM: m.ram, RamEnabled: m.ramEnabled, RomBank: m.romBank})
}

func (m *MBC2) LoadState(data []byte) {
	var s mbc2State
	if !decodeGob(data, &s) {
		return
	}
	m.ram, m.ramEnabled, m.romBank = s.RAM, s.RamEnabled, s.RomBank
}
