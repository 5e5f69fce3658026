// Package rpcserver is the server-side connection state machine, spec.md
// §4.6: one instance per accepted connection, driving identify -> frame
// -> parse -> dispatch -> write off the registered protocol drivers.
//
// Grounded on the teacher's transport package (streamBase's per-
// connection last-good-protocol caching and session-state handling) and
// on spec.md §4.6/§9 directly for the parts the teacher has no analogue
// for (the protocol auto-identification loop, handler outcomes). The
// teacher schedules via goroutines and channels already (no fiber
// runtime in Go); spec.md §5's "fiber-style cooperative tasks" maps onto
// one goroutine per fast call (bounded per connection by a semaphore)
// plus one goroutine per active stream, per spec.md §9's own note that
// this is an implementation-defined scheduling detail.
package rpcserver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/flarerpc/flare/cmn/cos"
	"github.com/flarerpc/flare/cmn/nlog"
	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
)

// maxInFlightPerConn bounds how many fast-call handler goroutines one
// connection may run concurrently; beyond it, a call is treated the
// same as a queueing-delay overload rather than piling up goroutines
// unboundedly (spec.md §9's "server under load" is implementation-
// defined beyond the queueing-delay check itself).
const maxInFlightPerConn = 256

// HandlerOutcome is spec.md §4.6 step 4's handler result.
type HandlerOutcome int

const (
	Processed HandlerOutcome = iota
	Completed
	Overloaded
	Dropped
	Corrupted
	Unexpected
)

// kFastCallReservedContextId is the sentinel correlation ID reserved for
// non-multiplexed replies, per spec.md §4.6.
const kFastCallReservedContextId = ^uint64(0)

// Handler processes one decoded message and returns the response to
// write back (nil if none, e.g. a one-way call) plus the outcome.
type Handler func(ctx *wire.CallContext, msg *wire.DecodedMessage) (*wire.DecodedMessage, HandlerOutcome)

// Config are the connection-level knobs spec.md §4.6/§5 names.
type Config struct {
	MaxQueueingDelay time.Duration
	IdleTeardown     time.Duration
	MaxHeaderSize    int64
}

func DefaultConfig() Config {
	return Config{
		MaxQueueingDelay: 2 * time.Second,
		IdleTeardown:     4 * time.Second,
		MaxHeaderSize:    int64(memsys.PageSize),
	}
}

// Writer is the minimal connection-write surface a Connection needs;
// satisfied by net.Conn or any io.Writer-shaped transport.
type Writer interface {
	Write(p []byte) (int, error)
}

// Connection is spec.md §4.6's per-accepted-connection state machine.
type Connection struct {
	id       string
	cfg      Config
	drivers  []wire.Driver
	lastGood wire.Driver
	handler  Handler
	dryRun   DryRunner
	out      Writer

	remote, local string

	inFlight atomic.Int64
	drain    cos.StopCh
	drained  sync.WaitGroup

	mu      sync.Mutex
	streams map[uint64]*streamState
	reaper  *reaper

	suppressRead atomic.Bool
	buf          memsys.Chain

	sem *semaphore.Weighted
}

// DryRunner is spec.md §4.6's dry-run variant integration point;
// concrete implementations live in package binlog.
type DryRunner interface {
	ParseByteStream(buf *memsys.Chain) []DryRunContext
}

// DryRunContext is the minimal shape the state machine needs to run a
// dry-run call without on-wire framing, per spec.md §4.6.
type DryRunContext struct {
	Handler func(ctx context.Context) []byte
}

func NewConnection(cfg Config, drivers []wire.Driver, h Handler, out Writer, remote, local string) *Connection {
	c := &Connection{
		id:      cos.GenConnID(),
		cfg:     cfg,
		drivers: drivers,
		handler: h,
		out:     out,
		remote:  remote,
		local:   local,
		streams: make(map[uint64]*streamState),
		sem:     semaphore.NewWeighted(maxInFlightPerConn),
	}
	c.drain.Init()
	c.reaper = newReaper(cfg.IdleTeardown)
	return c
}

// ID is the connection's short, sortable-enough identifier (spec.md §3
// "Connection state: id, ..."), used in log lines below.
func (c *Connection) ID() string { return c.id }

// SetDryRunner configures the dry-run variant of spec.md §4.6: once
// set, Feed stops trying the normal protocol drivers entirely and
// instead feeds bytes to the runner's ParseByteStream.
func (c *Connection) SetDryRunner(r DryRunner) { c.dryRun = r }

// Feed is the I/O callback entry point: append newly-read bytes and
// drive as many full request/response cycles as the buffer allows.
// Returns false if the connection must be closed.
func (c *Connection) Feed(chunk []byte) bool {
	b := memsys.NewBuilder(nil)
	b.Append(chunk)
	c.buf.AppendChain(b.Destructive())

	if c.dryRun != nil {
		return c.feedDryRun()
	}

	for {
		if c.suppressRead.Load() {
			return true
		}
		msg, driver, status := c.tryCutAny()
		switch status {
		case wire.NotIdentified, wire.NeedMore:
			return true
		case wire.ProtocolMismatch, wire.CutError:
			nlog.Warningln("rpcserver:", c.id, "connection error:", status)
			return false
		case wire.Cut:
			c.lastGood = driver
			if !c.dispatch(driver, msg) {
				return false
			}
		}
	}
}

// feedDryRun is spec.md §4.6's dry-run branch: no on-wire framing from
// the normal protocols is used at all. Each extracted DryRunContext
// runs in a fresh session; the report its Handler produces is written
// straight back through the connection, and the session is then done.
func (c *Connection) feedDryRun() bool {
	contexts := c.dryRun.ParseByteStream(&c.buf)
	for _, dc := range contexts {
		c.inFlight.Add(1)
		go func(dc DryRunContext) {
			defer c.inFlight.Add(-1)
			report := dc.Handler(context.Background())
			if report == nil {
				return
			}
			c.mu.Lock()
			_, err := c.out.Write(report)
			c.mu.Unlock()
			if err != nil {
				nlog.Errorln("rpcserver: dry-run report write error:", err)
			}
		}(dc)
	}
	return true
}

// tryCutAny is spec.md §4.6 step 1/2: try the last-good protocol first,
// then every other registered driver; NotIdentified on all means
// NeedMore, any NeedMore means NeedMore, otherwise it's a connection
// error.
func (c *Connection) tryCutAny() (*wire.IncomingMessage, wire.Driver, wire.CutStatus) {
	ordered := c.drivers
	if c.lastGood != nil {
		ordered = make([]wire.Driver, 0, len(c.drivers))
		ordered = append(ordered, c.lastGood)
		for _, d := range c.drivers {
			if d != c.lastGood {
				ordered = append(ordered, d)
			}
		}
	}

	sawNeedMore, sawNotIdentified := false, false
	for _, d := range ordered {
		msg, status := d.TryCutMessage(&c.buf)
		switch status {
		case wire.Cut:
			return msg, d, wire.Cut
		case wire.NeedMore:
			sawNeedMore = true
		case wire.NotIdentified:
			// keep trying other protocols
			sawNotIdentified = true
		default: // ProtocolMismatch, CutError
			// a single driver's mismatch doesn't condemn the connection
			// by itself; only "every driver rejected" does, below.
		}
	}
	if sawNeedMore {
		return nil, nil, wire.NeedMore
	}
	if sawNotIdentified {
		return nil, nil, wire.NotIdentified
	}
	return nil, nil, wire.ProtocolMismatch
}

// dispatch is spec.md §4.6 steps 3-5.
func (c *Connection) dispatch(driver wire.Driver, in *wire.IncomingMessage) bool {
	receiveTSC := time.Now().UnixNano()
	ctx := driver.Controllers().Create(in.Meta.MethodType == wire.MethodStream)
	ctx.RemoteEndpoint, ctx.LocalEndpoint = c.remote, c.local
	ctx.ReceiveTSC = receiveTSC

	if in.Meta.MethodType == wire.MethodStream {
		return c.dispatchStream(driver, in, ctx)
	}

	if !c.sem.TryAcquire(1) {
		c.writeOverload(driver, ctx)
		observeOutcome(Overloaded)
		return true
	}
	c.inFlight.Add(1)
	inFlightGauge.Inc()
	go func() {
		defer c.sem.Release(1)
		defer inFlightGauge.Dec()
		defer c.inFlight.Add(-1)
		ctx.DispatchTSC = time.Now().UnixNano()
		delay := time.Duration(ctx.DispatchTSC - ctx.ReceiveTSC)
		queueingDelaySeconds.Observe(delay.Seconds())
		if delay > c.cfg.MaxQueueingDelay {
			c.writeOverload(driver, ctx)
			observeOutcome(Overloaded)
			return
		}
		decoded, ok := driver.TryParse(in, ctx)
		if !ok {
			nlog.Warningln("rpcserver: parse error on", driver.Name())
			observeOutcome(Corrupted)
			return
		}
		ctx.ParseTSC = time.Now().UnixNano()
		resp, outcome := c.handler(ctx, decoded)
		observeOutcome(outcome)
		c.handleOutcome(driver, ctx, resp, outcome)
	}()
	return true
}

func (c *Connection) handleOutcome(driver wire.Driver, ctx *wire.CallContext, resp *wire.DecodedMessage, outcome HandlerOutcome) {
	switch outcome {
	case Overloaded:
		c.writeOverload(driver, ctx)
	case Corrupted:
		// nothing is written; the Connection does not close the
		// transport itself on this outcome.
	case Dropped, Unexpected:
		// one-way or framework-level drop: no response written.
	case Processed, Completed:
		if resp != nil {
			ctx.SentTSC = time.Now().UnixNano()
			c.writeLocked(driver, resp, ctx)
		}
	}
}

func (c *Connection) writeOverload(driver wire.Driver, ctx *wire.CallContext) {
	msg, ok := driver.Messages().Create(wire.KindOverloaded, ctx.CorrelationID, false)
	if !ok {
		return
	}
	c.writeLocked(driver, msg, ctx)
}

// writeLocked serializes responses one at a time per connection, per
// spec.md §4.4 ("WriteMessage ... called single-threaded per connection").
func (c *Connection) writeLocked(driver wire.Driver, msg *wire.DecodedMessage, ctx *wire.CallContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := memsys.NewBuilder(nil)
	if err := driver.WriteMessage(msg, b, ctx); err != nil {
		nlog.Errorln("rpcserver:", c.id, "write error:", err)
		return
	}
	out := memsys.FlattenSlow(b.Destructive(), 0)
	if _, err := c.out.Write(out); err != nil {
		if cos.IsRetriableConnErr(err) {
			nlog.Warningln("rpcserver:", c.id, "transient conn write error (will drop on next read):", err)
			return
		}
		nlog.Errorln("rpcserver:", c.id, "conn write error:", err)
	}
}

// Stop is spec.md §4.6's drain: break every open stream so readers
// observe end-of-stream, then let Join wait for quiescence.
func (c *Connection) Stop() {
	c.drain.Close()
	c.mu.Lock()
	for _, s := range c.streams {
		s.close()
	}
	c.mu.Unlock()
	c.reaper.stop()
}

// Join blocks until the in-flight counter reaches zero and every stream
// context has been reaped (removed from the streams table).
func (c *Connection) Join() {
	for {
		c.mu.Lock()
		n := len(c.streams)
		c.mu.Unlock()
		if c.inFlight.Load() == 0 && n == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
}
