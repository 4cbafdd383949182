// Package encoding is the wire codec for bulk section loads.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeRLE encodes a sequence of material ids into base64(varint pairs).
// The pairs are (material, run_len) repeated.
func EncodeRLE(mats []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(mats); {
		m := mats[i]
		run := 1
		for i+run < len(mats) && mats[i+run] == m {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(m))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE decodes at most limit ids. A zero-length run or a payload that
// expands past limit is an error, so a small message cannot allocate an
// unbounded slice.
func DecodeRLE(b64 string, limit int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, 0, min(limit, 4096))
	for i := 0; i < len(raw); {
		m, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if m > 0xFFFF {
			return nil, fmt.Errorf("material id too large: %d", m)
		}
		if run == 0 {
			return nil, fmt.Errorf("empty run at %d", i)
		}
		if run > uint64(limit-len(out)) {
			return nil, fmt.Errorf("payload expands past %d ids", limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(m))
		}
	}
	return out, nil
}

// DecodeExact decodes a payload that must expand to exactly n ids, such as
// one full section.
func DecodeExact(b64 string, n int) ([]uint16, error) {
	out, err := DecodeRLE(b64, n)
	if err != nil {
		return nil, err
	}
	if len(out) != n {
		return nil, fmt.Errorf("decoded %d ids, want %d", len(out), n)
	}
	return out, nil
}
