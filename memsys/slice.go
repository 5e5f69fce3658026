package memsys

// Slice is a (block, offset, size) triple — spec.md §3's
// PolymorphicBuffer: a cheap-to-copy sub-view into a Block. Copying a
// Slice (via Clone) bumps the block's refcount rather than the bytes.
type Slice struct {
	blk  *Block
	off  int
	size int
}

// NewSlice views the whole of blk (offset 0, size Cap()) as a Slice,
// taking ownership of the caller's single reference to blk.
func NewSlice(blk *Block) Slice { return Slice{blk: blk, off: 0, size: blk.Cap()} }

func (s Slice) Empty() bool { return s.size == 0 }
func (s Slice) Len() int    { return s.size }

// Bytes returns the viewed region; callers must not retain it beyond the
// Slice's lifetime (the backing block may be pooled and reused).
func (s Slice) Bytes() []byte { return s.blk.buf[s.off : s.off+s.size] }

// Clone bumps the underlying block's refcount and returns an independent
// Slice over the same bytes; both must be Released independently.
func (s Slice) Clone() Slice {
	s.blk.retain()
	return s
}

// Skip advances the view by n bytes without touching the block,
// spec.md §3's "Skip(n) advances offset and reduces size".
func (s Slice) Skip(n int) Slice {
	if n <= 0 {
		return s
	}
	if n > s.size {
		n = s.size
	}
	s.off += n
	s.size -= n
	return s
}

// SetSize shrinks the view to n bytes (spec.md §3's set_size).
func (s Slice) SetSize(n int) Slice {
	if n < s.size {
		s.size = n
	}
	return s
}

// Release drops this Slice's reference to its block.
func (s Slice) Release() { s.blk.release() }
