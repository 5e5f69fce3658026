package memsys_test

import (
	"testing"

	"github.com/flarerpc/flare/memsys"
)

// TestBuilderCut is spec.md §8 scenario S1: builder.append("hello
// world"); nb = builder.destructive_get(); a = nb.cut(5).
func TestBuilderCut(t *testing.T) {
	b := memsys.NewBuilder(nil)
	b.Append([]byte("hello world"))
	nb := b.Destructive()

	a := nb.Cut(5)
	if got := string(memsys.FlattenSlow(a, 0)); got != "hello" {
		t.Fatalf("cut prefix = %q, want %q", got, "hello")
	}
	if got := string(memsys.FlattenSlow(nb, 0)); got != " world" {
		t.Fatalf("remainder = %q, want %q", got, " world")
	}
	if nb.ByteSize() != 6 {
		t.Fatalf("remainder size = %d, want 6", nb.ByteSize())
	}
}

func TestCutZeroIsNoop(t *testing.T) {
	b := memsys.NewBuilder(nil)
	b.Append([]byte("abc"))
	nb := b.Destructive()
	before := nb.ByteSize()
	a := nb.Cut(0)
	if !a.Empty() {
		t.Fatalf("cut(0) should yield an empty chain")
	}
	if nb.ByteSize() != before {
		t.Fatalf("cut(0) mutated byte_size: %d != %d", nb.ByteSize(), before)
	}
}

func TestSkipZeroIsNoop(t *testing.T) {
	b := memsys.NewBuilder(nil)
	b.Append([]byte("abc"))
	nb := b.Destructive()
	before := nb.ByteSize()
	nb.Skip(0)
	if nb.ByteSize() != before {
		t.Fatalf("skip(0) mutated byte_size")
	}
}

// TestCutAppendRoundTrip is spec.md §8's buffer property: for all n <=
// byte_size(), cut(n) followed by appending the result back reproduces
// the original bytes.
func TestCutAppendRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	for n := 0; n <= len(payload); n++ {
		b := memsys.NewBuilder(nil)
		b.Append(payload)
		nb := b.Destructive()

		cut := nb.Cut(int64(n))
		combined := &memsys.Chain{}
		combined.AppendChain(cut)
		combined.AppendChain(nb)

		if !memsys.Equal(combined, payload) {
			t.Fatalf("cut(%d) round trip mismatch: got %q", n, memsys.FlattenSlow(combined, 0))
		}
	}
}

func TestBuilderAcrossBlocks(t *testing.T) {
	b := memsys.NewBuilder(nil)
	large := make([]byte, memsys.PageSize*3+17)
	for i := range large {
		large[i] = byte(i)
	}
	b.Append(large)
	nb := b.Destructive()
	if int(nb.ByteSize()) != len(large) {
		t.Fatalf("byte_size = %d, want %d", nb.ByteSize(), len(large))
	}
	if !memsys.Equal(nb, large) {
		t.Fatalf("flattened bytes mismatch across block boundary")
	}
}

func TestFlattenUntilDelim(t *testing.T) {
	b := memsys.NewBuilder(nil)
	b.Append([]byte("GET /foo\r\nHost: x\r\n\r\nbody"))
	nb := b.Destructive()
	got := memsys.FlattenUntil(nb, '\n', 0)
	if string(got) != "GET /foo\r\n" {
		t.Fatalf("flatten_until = %q", got)
	}
}
