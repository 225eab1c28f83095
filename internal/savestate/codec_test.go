package savestate

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestRoundTripScalars(t *testing.T) {
	d := NewDocument()
	d.SetInt("frame", 123456)
	d.SetHex("pc", 0x0150)
	d.SetFloat("gain", 0.77)
	d.SetString("title", "POKEMON RED")

	got, err := Decode(d.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if v, err := got.Int("frame"); err != nil || v != 123456 {
		t.Fatalf("frame = %d, %v", v, err)
	}
	if v, err := got.Int("pc"); err != nil || v != 0x0150 {
		t.Fatalf("pc = %d, %v", v, err)
	}
	if v, err := got.Float("gain"); err != nil || v != 0.77 {
		t.Fatalf("gain = %v, %v", v, err)
	}
	if v, err := got.String("title"); err != nil || v != "POKEMON RED" {
		t.Fatalf("title = %q, %v", v, err)
	}
}

func TestBase64RoundTripAllLengths(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 0; n <= 768; n++ {
		blob := make([]byte, n)
		rng.Read(blob)

		d := NewDocument()
		d.SetBytes("blob", blob)
		got, err := Decode(d.Encode())
		if err != nil {
			t.Fatalf("n=%d decode: %v", n, err)
		}
		back, err := got.Bytes("blob")
		if err != nil {
			t.Fatalf("n=%d bytes: %v", n, err)
		}
		if !bytes.Equal(back, blob) {
			t.Fatalf("n=%d: round trip mismatch", n)
		}
	}
}

func TestCommentsAndBlankLinesIgnored(t *testing.T) {
	raw := "# header comment\n\nframe=7\n  # indented comment\nname=hello\n"
	d, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, err := d.Int("frame"); err != nil || v != 7 {
		t.Fatalf("frame = %d, %v", v, err)
	}
	if v, err := d.String("name"); err != nil || v != "hello" {
		t.Fatalf("name = %q, %v", v, err)
	}
}

func TestMissingKeyIsFatal(t *testing.T) {
	d := NewDocument()
	d.SetInt("present", 1)
	if _, err := d.Int("absent"); err == nil {
		t.Fatal("expected error for missing key")
	}
	if _, err := d.Bytes("absent"); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestDecodeCorruptLineErrors(t *testing.T) {
	if _, err := Decode([]byte("this line has no equals sign\n")); err == nil {
		t.Fatal("expected corrupt-state error")
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	d := NewDocument()
	d.SetInt("a", 1)
	d.SetInt("b", 2)
	d.SetInt("c", 3)
	first := d.Encode()
	second := d.Encode()
	if !bytes.Equal(first, second) {
		t.Fatal("Encode should be deterministic across calls")
	}
}

func TestHexAndDecimalBothParse(t *testing.T) {
	d, err := Decode([]byte("a=0x1A\nb=26\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	av, err := d.Int("a")
	if err != nil {
		t.Fatal(err)
	}
	bv, err := d.Int("b")
	if err != nil {
		t.Fatal(err)
	}
	if av != bv {
		t.Fatalf("hex/decimal mismatch: %d != %d", av, bv)
	}
}
