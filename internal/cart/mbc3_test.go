package cart

import "testing"

// writeRTCReg drives a single RTC register write through the public bus
// interface: select the register via the bank-select latch, then write its
// value at the RAM window.
func writeRTCReg(m *MBC3, reg, value byte) {
	m.Write(0x4000, reg)
	m.Write(0xA000, value)
}

func readRTCReg(m *MBC3, reg byte) byte {
	m.Write(0x4000, reg)
	return m.Read(0xA000)
}

func TestMBC3_RTC_LatchAndRead(t *testing.T) {
	prevNow := nowUnix
	nowVal := int64(100)
	nowUnix = func() int64 { return nowVal }
	defer func() { nowUnix = prevNow }()

	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)
	m.Write(0x0000, 0x0A) // RAM/RTC enable

	// Program the live registers: sec=5, min=6, hour=7, day=0x101 (bit8 set).
	writeRTCReg(m, 0x08, 5)
	writeRTCReg(m, 0x09, 6)
	writeRTCReg(m, 0x0A, 7)
	writeRTCReg(m, 0x0B, 0x01)
	writeRTCReg(m, 0x0C, 0x01) // day bit 8, not halted

	// Latch: 0x00 then 0x01 to the 6000-7FFF register.
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)

	if got := readRTCReg(m, 0x08); got != 5 {
		t.Fatalf("latched sec got %d want 5", got)
	}

	// Advance wall clock and write a new live second; the latched read must
	// stay frozen at the snapshot taken above.
	nowVal = 130
	writeRTCReg(m, 0x08, 30)
	if got := readRTCReg(m, 0x08); got != 5 {
		t.Fatalf("latched sec changed unexpectedly: got %d want 5", got)
	}

	if got := readRTCReg(m, 0x0B); got != 0x01 {
		t.Fatalf("latched day low got %02X want 01", got)
	}
	got := readRTCReg(m, 0x0C)
	if got&0x01 == 0 {
		t.Fatalf("latched day high bit not set")
	}
	if got&0x40 != 0 {
		t.Fatalf("halt bit set unexpectedly")
	}
}

func TestMBC3_RTC_Advance_And_Persist(t *testing.T) {
	prevNow := nowUnix
	nowVal := int64(1000)
	nowUnix = func() int64 { return nowVal }
	defer func() { nowUnix = prevNow }()

	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)
	m.Write(0x0000, 0x0A)

	// Program sec=30, min=59, hour=23, day=0x1FF so the next rollover wraps
	// every field and sets the day-overflow carry bit.
	writeRTCReg(m, 0x08, 30)
	writeRTCReg(m, 0x09, 59)
	writeRTCReg(m, 0x0A, 23)
	writeRTCReg(m, 0x0B, 0xFF)
	writeRTCReg(m, 0x0C, 0x01)

	// Advance 20s -> sec 50, minute unchanged.
	nowVal += 20
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	if got := readRTCReg(m, 0x08); got != 50 {
		t.Fatalf("rtc +20s sec got %d want 50", got)
	}
	if got := readRTCReg(m, 0x09); got != 59 {
		t.Fatalf("rtc +20s min got %d want 59", got)
	}

	// Advance another 60s -> rolls sec/min/hour/day all the way over and
	// sets the day-counter-overflow carry bit (bit7 of DH).
	nowVal += 60
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	if got := readRTCReg(m, 0x08); got != 50 {
		t.Fatalf("rtc +60s sec got %d want 50", got)
	}
	if got := readRTCReg(m, 0x09); got != 0 {
		t.Fatalf("rtc +60s min got %d want 0", got)
	}
	if got := readRTCReg(m, 0x0A); got != 0 {
		t.Fatalf("rtc +60s hour got %d want 0", got)
	}
	if got := readRTCReg(m, 0x0B); got != 0 {
		t.Fatalf("rtc +60s day low got %d want 0", got)
	}
	dh := readRTCReg(m, 0x0C)
	if dh&0x80 == 0 {
		t.Fatalf("rtc +60s day carry bit not set, DH=%02X", dh)
	}

	// Persist and reload into a fresh cart; the RTC must read back
	// identically through the exact 20-byte start_time/halted/halt_time
	// layout.
	data := m.SaveRAM()
	if len(data) != 0x2000+20 {
		t.Fatalf("SaveRAM length got %d want %d", len(data), 0x2000+20)
	}
	n := NewMBC3(rom, 0x2000)
	n.LoadRAM(data)
	if n.startTime != m.startTime || n.halted != m.halted || n.haltTime != m.haltTime {
		t.Fatalf("rtc persist mismatch: got startTime=%d halted=%v haltTime=%d want startTime=%d halted=%v haltTime=%d",
			n.startTime, n.halted, n.haltTime, m.startTime, m.halted, m.haltTime)
	}
	n.Write(0x0000, 0x0A) // RAM/RTC enable
	n.Write(0x6000, 0x00)
	n.Write(0x6000, 0x01)
	if got := readRTCReg(n, 0x0A); got != 0 {
		t.Fatalf("reloaded rtc hour got %d want 0", got)
	}
}

// TestMBC3_RTC_HaltFreezesClock covers the halt flag (DH bit 6): while set,
// wall-clock advances must not move the derived register values.
func TestMBC3_RTC_HaltFreezesClock(t *testing.T) {
	prevNow := nowUnix
	nowVal := int64(500)
	nowUnix = func() int64 { return nowVal }
	defer func() { nowUnix = prevNow }()

	rom := make([]byte, 0x8000)
	m := NewMBC3(rom, 0x2000)
	m.Write(0x0000, 0x0A)

	writeRTCReg(m, 0x08, 10)
	writeRTCReg(m, 0x0C, 0x40) // set halt bit

	nowVal += 3600 // an hour passes while halted
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	if got := readRTCReg(m, 0x08); got != 10 {
		t.Fatalf("halted rtc sec advanced: got %d want 10", got)
	}

	// Clearing halt resumes the clock from where it was frozen.
	writeRTCReg(m, 0x0C, 0x00)
	nowVal += 5
	m.Write(0x6000, 0x00)
	m.Write(0x6000, 0x01)
	if got := readRTCReg(m, 0x08); got != 15 {
		t.Fatalf("resumed rtc sec got %d want 15", got)
	}
}
