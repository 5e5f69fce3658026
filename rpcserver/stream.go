package rpcserver

import (
	"sync"
	"time"

	"github.com/flarerpc/flare/wire"
)

// streamState is the per-stream demux context, spec.md §4.6 step 3:
// streaming messages demux on correlation_id into one of these rather
// than going straight to a worker per message.
type streamState struct {
	correlationID uint64
	ctx           *wire.CallContext

	mu      sync.Mutex
	packets chan *wire.IncomingMessage
	closed  bool

	ticks int // reaper heap key; see reaper.go
	index int // heap.Interface bookkeeping
}

func newStreamState(correlationID uint64, ctx *wire.CallContext) *streamState {
	return &streamState{
		correlationID: correlationID,
		ctx:           ctx,
		packets:       make(chan *wire.IncomingMessage, 64),
	}
}

func (s *streamState) push(msg *wire.IncomingMessage) (suppressRead bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.packets <- msg:
		return false
	default:
		// back-pressure: the consumer hasn't drained; caller should
		// SuppressRead until it does, per spec.md §4.6 step 6.
		return true
	}
}

func (s *streamState) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.packets)
}

// dispatchStream is spec.md §4.6 step 3's streaming branch: demux on
// correlation_id into a per-stream context, creating one on first sight.
func (c *Connection) dispatchStream(driver wire.Driver, in *wire.IncomingMessage, ctx *wire.CallContext) bool {
	corrID := in.Meta.CorrelationID

	c.mu.Lock()
	s, ok := c.streams[corrID]
	if !ok {
		s = newStreamState(corrID, ctx)
		c.streams[corrID] = s
		c.reaper.add(s)
		c.inFlight.Add(1)
		go func() {
			defer func() {
				c.mu.Lock()
				delete(c.streams, corrID)
				c.mu.Unlock()
				c.reaper.remove(s)
				c.inFlight.Add(-1)
			}()
			c.runStreamHandler(driver, s)
		}()
	}
	c.mu.Unlock()

	s.ticks = int(c.cfg.IdleTeardown / time.Second)
	if in.Meta.EndOfStream {
		defer s.close()
	}
	if s.push(in) {
		c.suppressRead.Store(true)
	}
	return true
}

// runStreamHandler drains one stream's packets, decoding each with the
// driver before handing it to the user handler; StreamReader is set so
// user code can pull subsequent packets itself if it chooses to.
func (c *Connection) runStreamHandler(driver wire.Driver, s *streamState) {
	s.ctx.StreamReader = s.packets
	for in := range s.packets {
		decoded, ok := driver.TryParse(in, s.ctx)
		if !ok {
			return
		}
		resp, outcome := c.handler(s.ctx, decoded)
		c.handleOutcome(driver, s.ctx, resp, outcome)
		if outcome == Completed || outcome == Corrupted {
			return
		}
		c.suppressRead.Store(false)
	}
}
