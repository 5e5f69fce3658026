package binlog

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/rpcserver"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// persistedCall is the on-disk shape of one captured call; a persisted
// log is a single JSON array of these.
type persistedCall struct {
	Incoming IncomingCallRecord
	Outgoing []OutgoingCallRecord
}

// DryRunIncomingCall is spec.md §4.7's replay-side view of a captured
// incoming call.
type DryRunIncomingCall struct {
	Record IncomingCallRecord
}

// DryRunOutgoingCall is spec.md §4.7's replay-side view of one recorded
// remote call; TryGetIncomingPacket emulates the original latency.
type DryRunOutgoingCall struct {
	record      OutgoingCallRecord
	streamStart time.Time
}

// TryGetIncomingPacket returns a future resolving to packet i, delayed
// by pkt[i].time_since_start - (now - stream_start), clipped to zero —
// spec.md §4.7's exact replay-latency rule.
func (o *DryRunOutgoingCall) TryGetIncomingPacket(i int) <-chan Packet {
	ch := make(chan Packet, 1)
	if i < 0 || i >= len(o.record.IncomingPacket) {
		close(ch)
		return ch
	}
	pkt := o.record.IncomingPacket[i]
	elapsed := time.Since(o.streamStart)
	delay := pkt.Offset - elapsed
	if delay < 0 {
		delay = 0
	}
	go func() {
		time.Sleep(delay)
		ch <- pkt
	}()
	return ch
}

// DryRunContext is spec.md §4.7's per-replayed-call bundle: the one
// incoming call plus a correlation-ID-keyed lookup of outgoing calls it
// made, so a handler re-run during dry-run can synthesize its
// downstream responses from what was actually recorded.
type DryRunContext struct {
	Incoming    *DryRunIncomingCall
	outgoing    map[uint64]*DryRunOutgoingCall
	streamStart time.Time
}

func (c *DryRunContext) Outgoing(correlationID uint64) (*DryRunOutgoingCall, bool) {
	o, ok := c.outgoing[correlationID]
	return o, ok
}

// Runner implements rpcserver.DryRunner: given persisted log bytes, it
// produces zero or more DryRunContexts for the connection state machine
// to replay, per spec.md §4.6's dry-run variant.
type Runner struct {
	Dispatch func(*DryRunContext) []byte
}

func (r *Runner) ParseByteStream(buf *memsys.Chain) []rpcserver.DryRunContext {
	raw := memsys.FlattenSlow(buf, 0)
	var calls []persistedCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil
	}
	out := make([]rpcserver.DryRunContext, 0, len(calls))
	for _, pc := range calls {
		ctx := &DryRunContext{
			Incoming:    &DryRunIncomingCall{Record: pc.Incoming},
			outgoing:    make(map[uint64]*DryRunOutgoingCall, len(pc.Outgoing)),
			streamStart: time.Now(),
		}
		for _, o := range pc.Outgoing {
			ctx.outgoing[o.CorrelationID] = &DryRunOutgoingCall{record: o, streamStart: ctx.streamStart}
		}
		out = append(out, rpcserver.DryRunContext{
			Handler: func(_ context.Context) []byte {
				if r.Dispatch == nil {
					return nil
				}
				return r.Dispatch(ctx)
			},
		})
	}
	return out
}
