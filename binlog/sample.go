// Package binlog implements spec.md §4.7's two cross-cutting hooks:
// Dumper (sampled runtime capture) and DryRunner (replay of captured
// logs). Both are designed to "pay nothing when disabled" — Dumper's
// sampling check is a single atomic/counter read on the hot path, and a
// connection with no DryRunner configured never imports this package's
// replay machinery at all.
//
// Grounded on the teacher's hk package's own "cheap check, expensive
// side path only when it fires" shape (Reg's periodic callback vs the
// rare work it triggers) and on spec.md §4.7 directly for the capture
// schema itself, which the teacher has no analogue for.
package binlog

import (
	"sync/atomic"
	"time"
)

// Sampler decides, once per RPC, whether this call acquires the (at
// most one) sampling quota, per spec.md §4.7.
type Sampler interface {
	Sample() bool
}

// minInterval samples at most once per period.
type minInterval struct {
	period time.Duration
	last   atomic.Int64 // unix nanos
}

func MinInterval(period time.Duration) Sampler { return &minInterval{period: period} }

func (m *minInterval) Sample() bool {
	now := time.Now().UnixNano()
	last := m.last.Load()
	if now-last < int64(m.period) {
		return false
	}
	return m.last.CompareAndSwap(last, now)
}

// oneInN samples exactly one in every N calls.
type oneInN struct {
	n       int64
	counter atomic.Int64
}

func OneInN(n int) Sampler {
	if n < 1 {
		n = 1
	}
	return &oneInN{n: int64(n)}
}

func (o *oneInN) Sample() bool {
	return o.counter.Add(1)%o.n == 0
}

// neverSampler never samples; Never is the zero-overhead disabled state.
type neverSampler struct{}

func (neverSampler) Sample() bool { return false }

var Never Sampler = neverSampler{}

// Packet is one captured incoming/outgoing wire packet, per spec.md
// §4.7: monotonic offset from the call's start, plus opaque bytes from
// the transport provider and the framework itself.
type Packet struct {
	Offset         time.Duration
	ProviderOpaque []byte
	SystemOpaque   []byte
}
