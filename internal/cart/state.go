package cart

import (
	"bytes"
	"encoding/gob"
)

// encodeGob is a tiny shared helper so each MBC's SaveState can produce an
// opaque binary blob without repeating the boilerplate. The blob is wrapped
// by the top-level save-state codec as a base64 block.
func encodeGob(v interface{}) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil
	}
	return buf.Bytes()
}

func decodeGob(data []byte, v interface{}) bool {
	if len(data) == 0 {
		return false
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v) == nil
}
