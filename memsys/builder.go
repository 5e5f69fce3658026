package memsys

// smallCopyThreshold is the cutoff under which Builder.Append copies
// into the current block rather than splicing a new reference, per
// spec.md §3: "appends by copy when the payload is small (< 128 B) and
// fits in the current block; otherwise flushes ... and splices ... by
// reference."
const smallCopyThreshold = 128

// reserveMax bounds Builder.Reserve, per spec.md §3: "Reserve(n<=1024)".
const reserveMax = 1024

// Builder is the write-side counterpart to Chain: it holds the current
// write block and how much of it is used, plus everything already
// flushed, per spec.md §3/§4.1.
type Builder struct {
	arena *Arena
	cur   *Block
	used  int
	acc   Chain
}

func NewBuilder(a *Arena) *Builder {
	if a == nil {
		a = DefaultArena()
	}
	return &Builder{arena: a}
}

// ensure guarantees a current block with spare room exists, flushing a
// saturated one first. Flushing only at this point (rather than inside
// MarkWritten) is what lets Backup still see the just-written bytes.
func (b *Builder) ensure() {
	if b.cur != nil && b.used >= b.cur.Cap() {
		b.flush()
	}
	if b.cur == nil {
		b.cur = b.arena.AllocBlock(PageSize)
		b.used = 0
	}
}

// Data returns the current contiguous write window (the unused tail of
// the current block).
func (b *Builder) Data() []byte {
	b.ensure()
	return b.cur.buf[b.used:]
}

func (b *Builder) SizeAvailable() int {
	b.ensure()
	return b.cur.Cap() - b.used
}

// MarkWritten consumes n bytes of the current write window. The block
// is not flushed here even if saturated, so a subsequent Backup can
// still unmark trailing bytes of what was just written.
func (b *Builder) MarkWritten(n int) {
	b.used += n
}

// Backup un-marks the last n bytes written to the current block,
// reverting them to available space — the compression framing layer's
// CompressionOutputStream.backup(count), per spec.md §4.2.
func (b *Builder) Backup(n int) {
	if n <= 0 || b.cur == nil {
		return
	}
	if n > b.used {
		n = b.used
	}
	b.used -= n
}

func (b *Builder) flush() {
	if b.cur == nil {
		return
	}
	if b.used == 0 {
		b.cur.release()
		b.cur = nil
		return
	}
	b.acc.Append(NewSlice(b.cur).SetSize(b.used))
	b.cur = nil
	b.used = 0
}

// Reserve returns a pointer into a contiguous region of n (<= 1024)
// bytes for deferred overwrite (e.g. a length prefix filled in after the
// payload is known), flushing/allocating as needed so the region never
// straddles a block boundary.
func (b *Builder) Reserve(n int) []byte {
	if n > reserveMax {
		n = reserveMax
	}
	if b.cur != nil && b.SizeAvailable() < n {
		b.flush()
	}
	b.ensure()
	if b.cur.Cap() < n {
		// current arena's largest slab can't hold it: allocate exactly n.
		b.cur = NewForeignBlock(make([]byte, n), nil)
		b.used = 0
	}
	region := b.cur.buf[b.used : b.used+n]
	b.MarkWritten(n)
	return region
}

// Append appends p to the accumulated buffer: by copy when p is small
// and fits in the current block's remaining space, otherwise by
// splicing a new foreign block referencing p directly.
func (b *Builder) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	if len(p) < smallCopyThreshold && b.SizeAvailable() >= len(p) {
		copy(b.Data(), p)
		b.MarkWritten(len(p))
		return
	}
	b.flush()
	b.acc.Append(NewSlice(NewForeignBlock(p, nil)))
}

// AppendChain splices c onto the accumulated buffer by reference,
// flushing any pending partial block first.
func (b *Builder) AppendChain(c *Chain) {
	b.flush()
	b.acc.AppendChain(c)
}

// Destructive hands ownership of everything written so far to the
// caller and resets the builder to empty, per spec.md §8 scenario S1's
// "builder.destructive_get()".
func (b *Builder) Destructive() *Chain {
	b.flush()
	out := b.acc
	b.acc = Chain{}
	return &out
}
