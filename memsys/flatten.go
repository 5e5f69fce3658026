package memsys

import "bytes"

// FlattenSlow allocates one contiguous region of min(ByteSize(), max)
// bytes and copies every block into it in order, per spec.md §4.1.
// max <= 0 means unbounded.
func FlattenSlow(c *Chain, max int) []byte {
	n := int(c.ByteSize())
	if max > 0 && max < n {
		n = max
	}
	out := make([]byte, 0, n)
	c.ForEach(func(s Slice) bool {
		remain := n - len(out)
		if remain <= 0 {
			return false
		}
		b := s.Bytes()
		if len(b) > remain {
			b = b[:remain]
		}
		out = append(out, b...)
		return len(out) < n
	})
	return out
}

// FlattenUntil returns the prefix up to and including the first
// occurrence of delim, or up to max bytes if delim is not found first.
func FlattenUntil(c *Chain, delim byte, max int) []byte {
	n := int(c.ByteSize())
	if max > 0 && max < n {
		n = max
	}
	out := make([]byte, 0, n)
	found := false
	c.ForEach(func(s Slice) bool {
		for _, bt := range s.Bytes() {
			if len(out) >= n {
				found = true
				return false
			}
			out = append(out, bt)
			if bt == delim {
				found = true
				return false
			}
		}
		return true
	})
	_ = found
	return out
}

// FlattenTo copies exactly len(dest) bytes from c into dest, returning
// the number of bytes actually copied (less than len(dest) if c is
// shorter).
func FlattenTo(c *Chain, dest []byte) int {
	copied := 0
	c.ForEach(func(s Slice) bool {
		if copied >= len(dest) {
			return false
		}
		n := copy(dest[copied:], s.Bytes())
		copied += n
		return copied < len(dest)
	})
	return copied
}

// Equal reports whether c's bytes, concatenated in order, equal p —
// used by tests asserting round-trip properties without forcing an
// allocation via FlattenSlow on the hot path.
func Equal(c *Chain, p []byte) bool {
	return bytes.Equal(FlattenSlow(c, 0), p)
}
