// Package savestate implements the plain-text key=value save-state container
// used by cmd/gbemu: one key per line, '#' comments, and four value kinds
// (integers in decimal or 0x-hex, floats, literal strings, and base64
// binary blocks). A
// Document is built in memory before any subsystem reads from it, so a
// corrupt or truncated file fails at parse time rather than mid-restore.
package savestate

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Document is an ordered key=value store. Encode preserves insertion order
// so the same snapshot always produces byte-identical output.
type Document struct {
	order  []string
	values map[string]string
}

// NewDocument returns an empty container ready for Set* calls.
func NewDocument() *Document {
	return &Document{values: make(map[string]string)}
}

func (d *Document) set(key, raw string) {
	if _, ok := d.values[key]; !ok {
		d.order = append(d.order, key)
	}
	d.values[key] = raw
}

// SetInt stores a decimal integer value.
func (d *Document) SetInt(key string, v int64) {
	d.set(key, strconv.FormatInt(v, 10))
}

// SetHex stores an unsigned integer as 0x-prefixed hex, for registers and
// other values that read better that way in a dumped file. Int still parses
// it back fine.
func (d *Document) SetHex(key string, v uint64) {
	d.set(key, "0x"+strconv.FormatUint(v, 16))
}

// SetFloat stores a floating point value.
func (d *Document) SetFloat(key string, v float64) {
	d.set(key, strconv.FormatFloat(v, 'g', -1, 64))
}

// SetBytes stores a binary blob as standard-alphabet base64 with padding.
func (d *Document) SetBytes(key string, v []byte) {
	d.set(key, base64.StdEncoding.EncodeToString(v))
}

// SetString stores a literal text value (e.g. a ROM title).
func (d *Document) SetString(key, v string) {
	d.set(key, v)
}

// Raw returns the unparsed value text for key.
func (d *Document) Raw(key string) (string, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Int parses key as a decimal or 0x/0X-prefixed hex integer.
func (d *Document) Int(key string) (int64, error) {
	raw, ok := d.values[key]
	if !ok {
		return 0, fmt.Errorf("savestate: missing key %q", key)
	}
	if s := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X"); s != raw {
		u, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return 0, fmt.Errorf("savestate: key %q: %w", key, err)
		}
		return int64(u), nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("savestate: key %q: %w", key, err)
	}
	return v, nil
}

// Float parses key as a floating point value.
func (d *Document) Float(key string) (float64, error) {
	raw, ok := d.values[key]
	if !ok {
		return 0, fmt.Errorf("savestate: missing key %q", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("savestate: key %q: %w", key, err)
	}
	return v, nil
}

// Bytes base64-decodes key's value.
func (d *Document) Bytes(key string) ([]byte, error) {
	raw, ok := d.values[key]
	if !ok {
		return nil, fmt.Errorf("savestate: missing key %q", key)
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("savestate: key %q: %w", key, err)
	}
	return b, nil
}

// String returns key's literal text value.
func (d *Document) String(key string) (string, error) {
	raw, ok := d.values[key]
	if !ok {
		return "", fmt.Errorf("savestate: missing key %q", key)
	}
	return raw, nil
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Encode writes the document as "key=value\n" lines in insertion order,
// preceded by a header comment.
func (d *Document) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString("# pocketgb savestate\n")
	for _, k := range d.order {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(d.values[k])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Decode parses a document written by Encode. Blank lines and lines whose
// first non-space character is '#' are ignored. Any other line must contain
// '=' or Decode fails with a corrupt-state error.
func Decode(data []byte) (*Document, error) {
	doc := NewDocument()
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		idx := strings.IndexByte(text, '=')
		if idx < 0 {
			return nil, fmt.Errorf("savestate: corrupt state: line %d has no '=': %q", line, text)
		}
		key := text[:idx]
		val := text[idx+1:]
		if key == "" {
			return nil, fmt.Errorf("savestate: corrupt state: line %d has empty key", line)
		}
		doc.set(key, val)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("savestate: corrupt state: %w", err)
	}
	return doc, nil
}
