package memsys

// chainNode is one link of a Chain's singly-linked list of non-empty
// Slices.
type chainNode struct {
	s    Slice
	next *chainNode
}

// Chain is an ordered singly-linked list of non-empty Slices plus a
// cached total size — spec.md §3/§4.1's NoncontiguousBuffer. Invariants
// maintained by every method below: (1) size equals the sum of member
// sizes; (2) the list is empty iff size == 0; (3) every linked Slice is
// non-empty.
type Chain struct {
	head, tail *chainNode
	size       int64
}

func (c *Chain) ByteSize() int64 { return c.size }
func (c *Chain) Empty() bool     { return c.size == 0 }

// FirstContiguous returns the first block's viewed bytes; the caller
// must check Empty() first.
func (c *Chain) FirstContiguous() []byte {
	return c.head.s.Bytes()
}

// Append links s onto the tail in O(1); a Slice of size 0 is ignored and
// must not be dereferenced into the block (no-op, no allocation).
func (c *Chain) Append(s Slice) {
	if s.Empty() {
		return
	}
	n := &chainNode{s: s}
	if c.tail == nil {
		c.head, c.tail = n, n
	} else {
		c.tail.next = n
		c.tail = n
	}
	c.size += int64(s.Len())
}

// AppendChain splices other's list onto c's tail in O(1) and empties
// other.
func (c *Chain) AppendChain(other *Chain) {
	if other.Empty() {
		return
	}
	if c.tail == nil {
		c.head = other.head
	} else {
		c.tail.next = other.head
	}
	c.tail = other.tail
	c.size += other.size
	other.head, other.tail, other.size = nil, nil, 0
}

// Skip drops the first n bytes (n <= ByteSize()) without allocating.
// Skipping 0 is a strict no-op.
func (c *Chain) Skip(n int64) {
	if n <= 0 {
		return
	}
	for n > 0 && c.head != nil {
		hlen := int64(c.head.s.Len())
		if n < hlen {
			c.head.s = c.head.s.Skip(int(n))
			c.size -= n
			return
		}
		c.size -= hlen
		n -= hlen
		dead := c.head
		c.head = c.head.next
		dead.s.Release()
		if c.head == nil {
			c.tail = nil
		}
	}
}

// Cut removes and returns the first n bytes (n <= ByteSize()) as a new
// Chain. Whole blocks consumed are moved by reference; the final
// straddling block is shared (refcount bump) between the cut result and
// the remainder. Cutting 0 is a no-op and allocates nothing; cutting
// exactly one whole block allocates no new Slice.
func (c *Chain) Cut(n int64) *Chain {
	out := &Chain{}
	if n <= 0 {
		return out
	}
	for n > 0 && c.head != nil {
		hlen := int64(c.head.s.Len())
		if n < hlen {
			// straddling block: share it between out and the remainder.
			shared := c.head.s.Clone().SetSize(int(n))
			out.Append(shared)
			c.head.s = c.head.s.Skip(int(n))
			c.size -= n
			return out
		}
		// whole block moves by reference: no allocation, no refcount churn.
		moved := c.head
		c.head = c.head.next
		if c.head == nil {
			c.tail = nil
		}
		moved.next = nil
		if out.tail == nil {
			out.head = moved
		} else {
			out.tail.next = moved
		}
		out.tail = moved
		out.size += hlen
		c.size -= hlen
		n -= hlen
	}
	return out
}

// ForEach iterates the linked blocks in order; every yielded Slice is
// non-empty. Iteration stops early if visit returns false.
func (c *Chain) ForEach(visit func(Slice) bool) {
	for n := c.head; n != nil; n = n.next {
		if !visit(n.s) {
			return
		}
	}
}

// Release drops every block reference held by the chain and empties it.
func (c *Chain) Release() {
	for n := c.head; n != nil; {
		next := n.next
		n.s.Release()
		n = next
	}
	c.head, c.tail, c.size = nil, nil, 0
}
