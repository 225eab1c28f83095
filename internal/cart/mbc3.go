package cart

import "time"

// nowUnix is the wall-clock source for the RTC; tests override it to drive
// the clock deterministically without sleeping.
var nowUnix = func() int64 { return time.Now().Unix() }

// RTC register indices within regs/regsLatched, matching the MBC3 register
// select values 0x08-0x0C with RTC_SUBTRACT_REG (0x08) subtracted off.
const (
	rtcRegS = iota
	rtcRegM
	rtcRegH
	rtcRegDL
	rtcRegDH
)

// MBC3 implements ROM/RAM banking plus the MBC3 real-time clock.
// Banking behavior:
// - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank (0-3) or RTC register select (0x08-0x0C)
// - 6000-7FFF: Latch clock: a 0x00 then 0x01 write latches the live RTC
//   registers into the snapshot the CPU reads back.
// - A000-BFFF: External RAM, or the latched RTC register selected above.
// ROM: bank 0 fixed at 0000-3FFF; switchable 4000-7FFF uses bank (1..127)
//
// The RTC itself holds no ticking counters: S/M/H/DL/DH are derived on
// demand from wall-clock elapsed time since startTime (haltTime pins the
// elapsed computation while halted), the same model as the reference
// implementation's rtc.c. Writing a register shifts startTime so that a
// later read reproduces exactly the written fields plus whatever real time
// has since elapsed.
type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	bankSel    byte // 0-3: RAM bank; 0x08-0x0C: RTC register select
	latchState byte // tracks the 0x00->0x01 latch write sequence

	regs        [5]byte // working S,M,H,DL,DH, recomputed from wall clock on demand
	regsLatched [5]byte // snapshot the CPU actually reads back via 0xA000 selects

	halted    bool
	startTime int64
	haltTime  int64
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom, startTime: nowUnix()}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	return m
}

func (m *MBC3) selectsRTC() bool { return m.bankSel >= 0x08 && m.bankSel <= 0x0C }

// setRegisters recomputes the working S/M/H/DL/DH register file from
// elapsed wall-clock time, clamping to 0 if the host clock went backward.
func (m *MBC3) setRegisters() {
	now := nowUnix()
	elapsed := now - m.startTime
	if m.halted {
		elapsed -= now - m.haltTime
	}
	if elapsed < 0 {
		elapsed = 0
	}
	m.regs[rtcRegS] = byte(elapsed % 60)
	m.regs[rtcRegM] = byte((elapsed % 3600) / 60)
	m.regs[rtcRegH] = byte((elapsed % 86400) / 3600)
	m.regs[rtcRegDL] = byte((elapsed % (86400 * 256)) / 86400)
	dh := byte((elapsed % (86400 * 512)) / (86400 * 256))
	if (elapsed / (86400 * 512)) != 0 {
		dh |= 0x80
	}
	if m.halted {
		dh |= 0x40
	}
	m.regs[rtcRegDH] = dh
}

// latch snapshots the current registers into regsLatched, the array reads
// via 0xA000 actually observe.
func (m *MBC3) latch() {
	m.setRegisters()
	m.regsLatched = m.regs
}

func (m *MBC3) readRTC(reg byte) byte {
	idx := int(reg) - 0x08
	if idx < 0 || idx > 4 {
		return 0xFF
	}
	return m.regsLatched[idx]
}

// writeRTC applies a single-register write, then shifts startTime/haltTime
// so the new register file is consistent with wall-clock arithmetic going
// forward -- mirroring the reference rtc_set_register's halt-transition and
// start_time-rebasing logic.
func (m *MBC3) writeRTC(reg byte, value byte) {
	idx := int(reg) - 0x08
	if idx < 0 || idx > 4 {
		return
	}
	m.setRegisters()
	m.regs[idx] = value

	now := nowUnix()
	wasHalted := m.halted
	nowHalted := m.regs[rtcRegDH]&0x40 != 0
	switch {
	case !wasHalted && nowHalted:
		m.haltTime = now
	case wasHalted && !nowHalted:
		m.startTime += now - m.haltTime
	}
	m.halted = nowHalted

	if !m.halted {
		elapsed := int64(m.regs[rtcRegS]) +
			int64(m.regs[rtcRegM])*60 +
			int64(m.regs[rtcRegH])*3600 +
			int64(m.regs[rtcRegDL])*86400 +
			int64(m.regs[rtcRegDH]&0x01)*256*86400 +
			int64((m.regs[rtcRegDH]&0x80)>>7)*2*256*86400
		m.startTime = now - elapsed
	}
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.selectsRTC() {
			return m.readRTC(m.bankSel)
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.bankSel & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		m.bankSel = value
	case addr < 0x8000:
		// Latch sequence: 0x00 arms, a following 0x01 latches.
		if value == 0x00 {
			m.latchState = 0x00
		} else if value == 0x01 && m.latchState == 0x00 {
			m.latch()
			m.latchState = 0x01
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.selectsRTC() {
			m.writeRTC(m.bankSel, value)
			return
		}
		if len(m.ram) == 0 {
			return
		}
		rb := int(m.bankSel & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

// SaveRAM returns the external RAM image with a 20-byte little-endian RTC
// block appended: start_time (8B), halted as a 32-bit flag (4B), halt_time
// (8B) -- the exact field layout of the reference save format, so .sav
// files round-trip byte-for-byte with it.
func (m *MBC3) SaveRAM() []byte {
	out := make([]byte, len(m.ram)+20)
	copy(out, m.ram)
	rtc := out[len(m.ram):]
	putU64LE(rtc[0:8], uint64(m.startTime))
	var haltedFlag uint32
	if m.halted {
		haltedFlag = 1
	}
	putU32LE(rtc[8:12], haltedFlag)
	putU64LE(rtc[12:20], uint64(m.haltTime))
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(data) == 0 {
		return
	}
	n := len(data) - 20
	if n < 0 {
		n = len(data)
	}
	if n == len(m.ram) {
		copy(m.ram, data[:n])
	}
	if len(data) >= n+20 {
		rtc := data[n : n+20]
		m.startTime = int64(getU64LE(rtc[0:8]))
		m.halted = getU32LE(rtc[8:12]) != 0
		m.haltTime = int64(getU64LE(rtc[12:20]))
	}
}

func putU32LE(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU32LE(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}

func putU64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64LE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

type mbc3State struct {
	RAM                          []byte
	RamEnabled                   bool
	RomBank, BankSel, LatchState byte
	Regs, RegsLatched            [5]byte
	Halted                       bool
	StartTime, HaltTime          int64
}

func (m *MBC3) SaveState() []byte {
	return encodeGob(mbc3State{
		RAM: append([]byte(nil), m.ram...), RamEnabled: m.ramEnabled,
		RomBank: m.romBank, BankSel: m.bankSel, LatchState: m.latchState,
		Regs: m.regs, RegsLatched: m.regsLatched,
		Halted: m.halted, StartTime: m.startTime, HaltTime: m.haltTime,
	})
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if !decodeGob(data, &s) {
		return
	}
	if len(s.RAM) == len(m.ram) {
		copy(m.ram, s.RAM)
	}
	m.ramEnabled, m.romBank, m.bankSel, m.latchState = s.RamEnabled, s.RomBank, s.BankSel, s.LatchState
	m.regs, m.regsLatched = s.Regs, s.RegsLatched
	m.halted, m.startTime, m.haltTime = s.Halted, s.StartTime, s.HaltTime
}
