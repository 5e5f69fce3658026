// Package memsys implements flare's zero-copy buffer core: pooled,
// reference-counted byte blocks (Block), slices into them (Slice,
// spec.md's PolymorphicBuffer), an ordered chain of slices (Chain,
// spec.md's NoncontiguousBuffer), and an incremental write-side Builder.
//
// Grounded on the teacher's memsys package (MMSA/Slab/SGL: a fixed set of
// page-multiple size classes, each backed by a sync.Pool-style free list,
// with reference counting on release) adapted from "scatter-gather list
// for object I/O" to "scatter list for RPC wire framing".
package memsys

import "sync"

// PageSize is the smallest block granularity; slab sizes are small
// multiples of it, mirroring the teacher's memsys.PageSize progression.
const PageSize = 4 * 1024

// NumSlabs is the number of fixed-size classes an Arena maintains.
const NumSlabs = 4

// Slab is one fixed-capacity size class: a free list of builtin blocks of
// exactly Size() bytes.
type Slab struct {
	pool sync.Pool
	size int
}

func (s *Slab) Size() int { return s.size }

func (s *Slab) get() *Block {
	if v := s.pool.Get(); v != nil {
		b := v.(*Block)
		b.refs.Store(1)
		b.buf = b.buf[:cap(b.buf)]
		return b
	}
	b := &Block{kind: kindBuiltin, buf: make([]byte, s.size), slab: s}
	b.refs.Store(1)
	return b
}

func (s *Slab) put(b *Block) { s.pool.Put(b) }

// Arena owns the slab size classes a Builder allocates from. It is
// flare's equivalent of the teacher's MMSA (memory-manager-slab-arena).
type Arena struct {
	slabs [NumSlabs]*Slab
}

// defaultArena is used by callers that don't manage their own Arena,
// mirroring the teacher's package-level default MMSA instance.
var defaultArena = NewArena()

func DefaultArena() *Arena { return defaultArena }

func NewArena() *Arena {
	a := &Arena{}
	for i := range a.slabs {
		a.slabs[i] = &Slab{size: PageSize << i} // 4K, 8K, 16K, 32K
	}
	return a
}

// slabFor returns the smallest slab able to hold sizeHint in one block,
// falling back to the largest slab (callers must loop to accumulate more
// than one block for larger payloads).
func (a *Arena) slabFor(sizeHint int) *Slab {
	for _, s := range a.slabs {
		if sizeHint <= s.size {
			return s
		}
	}
	return a.slabs[len(a.slabs)-1]
}

// AllocBlock returns a pooled builtin block sized to hold at least
// min(sizeHint, largest slab) contiguous bytes.
func (a *Arena) AllocBlock(sizeHint int) *Block {
	return a.slabFor(sizeHint).get()
}
