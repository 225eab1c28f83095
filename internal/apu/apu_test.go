package apu

import "testing"

// TestAPU_CH1_TriggerAndDutyEvents mirrors the documented trigger sequence:
// NR11=0x80 (duty 50%), NR12=0xF0 (volume 15, no envelope sweep), NR13=0x00 /
// NR14=0x87 (trigger, freq=0x0700). The duty waveform must start on a rising
// (positive) slot and flip sign as the phase steps through the 50% table.
func TestAPU_CH1_TriggerAndDutyEvents(t *testing.T) {
	a := New(44100)

	a.CPUWrite(0xFF11, 0x80)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF13, 0x00)
	a.CPUWrite(0xFF14, 0x87)

	if !a.ch1.enabled {
		t.Fatalf("channel 1 not enabled after trigger")
	}
	if a.ch1.duty != 2 {
		t.Fatalf("duty got %d want 2 (50%%)", a.ch1.duty)
	}
	if a.ch1.curVol != 15 {
		t.Fatalf("triggered volume got %d want 15", a.ch1.curVol)
	}
	if a.ch1.freq != 0x0700 {
		t.Fatalf("freq got %#04x want 0x0700", a.ch1.freq)
	}
	if a.ch1.phase != 0 {
		t.Fatalf("phase after trigger got %d want 0", a.ch1.phase)
	}
	if amp := squareAmplitude(&a.ch1); amp <= 0 {
		t.Fatalf("amplitude at phase 0 got %v want positive", amp)
	}

	period := 4 * (2048 - int(a.ch1.freq))

	a.Tick(period) // one duty-step event: phase 0 -> 1
	if a.ch1.phase != 1 {
		t.Fatalf("phase after one period got %d want 1", a.ch1.phase)
	}
	if amp := squareAmplitude(&a.ch1); amp >= 0 {
		t.Fatalf("amplitude after first period event got %v want negative", amp)
	}

	a.Tick(4 * period) // phase 1 -> 5, back onto a rising duty slot
	if a.ch1.phase != 5 {
		t.Fatalf("phase after five periods got %d want 5", a.ch1.phase)
	}
	if amp := squareAmplitude(&a.ch1); amp <= 0 {
		t.Fatalf("amplitude after fifth period event got %v want positive", amp)
	}
}

// TestAPU_CH1_EnvelopeDecays verifies the envelope timer, clocked at 64 Hz
// (frame-sequencer step 7), steps the running volume down once per envPer
// periods until it reaches its floor.
func TestAPU_CH1_EnvelopeDecays(t *testing.T) {
	a := New(44100)

	a.CPUWrite(0xFF11, 0x80)
	a.CPUWrite(0xFF12, 0xC2) // volume 12, decreasing, period 2
	a.CPUWrite(0xFF13, 0x00)
	a.CPUWrite(0xFF14, 0x87)

	if a.ch1.curVol != 12 {
		t.Fatalf("initial volume got %d want 12", a.ch1.curVol)
	}

	// Two envelope (step-7) clocks occur every 16 frame-sequencer periods.
	a.Tick(16 * (cpuHz / 512))
	if a.ch1.curVol != 11 {
		t.Fatalf("volume after one envelope step got %d want 11", a.ch1.curVol)
	}
}

// TestAPU_CH1_LengthDisablesChannel verifies the length counter, clocked at
// 256 Hz, silences the channel once it reaches zero regardless of held keys.
func TestAPU_CH1_LengthDisablesChannel(t *testing.T) {
	a := New(44100)

	a.CPUWrite(0xFF11, 0xBF) // duty 10, length data 0x3F -> length=1
	a.CPUWrite(0xFF12, 0xF0) // volume 15
	a.CPUWrite(0xFF13, 0x00)
	a.CPUWrite(0xFF14, 0xC7) // trigger, length enable, freq hi bits

	if a.ch1.length != 1 {
		t.Fatalf("length after trigger got %d want 1", a.ch1.length)
	}
	if !a.ch1.enabled {
		t.Fatalf("channel 1 not enabled after trigger")
	}

	// A single length clock (every 2 frame-sequencer periods) exhausts it.
	a.Tick(2 * (cpuHz / 512))
	if a.ch1.enabled {
		t.Fatalf("channel 1 still enabled after its length counter expired")
	}
}

// TestAPU_MixStereo_RoutesToBothEars verifies the power-on default routing
// (NR50=0x77, NR51=0xFF) sends an active channel's full-scale output to both
// ears equally.
func TestAPU_MixStereo_RoutesToBothEars(t *testing.T) {
	a := New(44100)
	a.CPUWrite(0xFF11, 0x80)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF13, 0x00)
	a.CPUWrite(0xFF14, 0x87)

	l, r := a.mixStereo()
	if l == 0 || r == 0 {
		t.Fatalf("expected nonzero mix with channel 1 active, got l=%d r=%d", l, r)
	}
	if l != r {
		t.Fatalf("expected symmetric stereo mix when routed equally to both ears, got l=%d r=%d", l, r)
	}

	// Restrict routing to the left ear only; the right ear must go silent.
	a.CPUWrite(0xFF25, 0x10) // NR51: channel 1 -> left ear only (bit 4)
	l2, r2 := a.mixStereo()
	if r2 != 0 {
		t.Fatalf("right ear got %d want 0 after routing channel 1 to left only", r2)
	}
	if l2 == 0 {
		t.Fatalf("left ear got 0, want nonzero after routing channel 1 to left only")
	}
}

// TestAPU_StereoRingBuffer_PushPullAvailable exercises the mutex-guarded
// ring buffer boundary the host audio callback drains across.
func TestAPU_StereoRingBuffer_PushPullAvailable(t *testing.T) {
	a := New(44100)
	a.pushStereo(100, -100)
	a.pushStereo(200, -200)

	if n := a.StereoAvailable(); n != 2 {
		t.Fatalf("StereoAvailable got %d want 2", n)
	}
	got := a.PullStereo(1)
	if len(got) != 2 || got[0] != 100 || got[1] != -100 {
		t.Fatalf("PullStereo(1) got %v want [100 -100]", got)
	}
	if n := a.StereoAvailable(); n != 1 {
		t.Fatalf("StereoAvailable after one pull got %d want 1", n)
	}
	rest := a.PullStereo(8)
	if len(rest) != 2 || rest[0] != 200 || rest[1] != -200 {
		t.Fatalf("PullStereo(8) got %v want [200 -200]", rest)
	}
	if n := a.StereoAvailable(); n != 0 {
		t.Fatalf("StereoAvailable after draining got %d want 0", n)
	}
}
