package cart

import "testing"

func TestMBC2_ROMBanking(t *testing.T) {
	rom := make([]byte, 128*1024)
	for bank := 0; bank < 8; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := NewMBC2(rom)

	if got := m.Read(0x0000); got != 0x00 {
		t.Fatalf("bank0 read got %02X want 00", got)
	}
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank1 read got %02X want 01", got)
	}

	// Bit 8 set selects ROM bank.
	m.Write(0x2100, 0x03)
	if got := m.Read(0x4000); got != 0x03 {
		t.Fatalf("bank3 read got %02X want 03", got)
	}

	m.Write(0x2100, 0x00)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap failed: got %02X", got)
	}
}

func TestMBC2_BuiltinRAM(t *testing.T) {
	rom := make([]byte, 32*1024)
	m := NewMBC2(rom)

	// RAM disabled by default.
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("disabled RAM read got %02X want FF", got)
	}

	// Bit 8 clear selects RAM enable.
	m.Write(0x0000, 0x0A)
	m.Write(0xA000, 0x5F)
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("RAM read got %02X want FF (0F|F0)", got)
	}

	// Address is mirrored every 0x200 bytes across A000-BFFF.
	if got := m.Read(0xA200); got != 0xFF {
		t.Fatalf("mirrored RAM read got %02X want FF", got)
	}
	if m.ram[0] != 0x0F {
		t.Fatalf("stored nibble got %02X want 0F", m.ram[0])
	}
}

func TestMBC2_SaveLoadRAM(t *testing.T) {
	rom := make([]byte, 32*1024)
	m := NewMBC2(rom)
	m.Write(0x0000, 0x0A)
	m.Write(0xA010, 0x09)

	data := m.SaveRAM()
	n := NewMBC2(rom)
	n.LoadRAM(data)
	n.Write(0x0000, 0x0A)
	if got := n.Read(0xA010); got != 0xF9 {
		t.Fatalf("restored RAM got %02X want F9", got)
	}
}
