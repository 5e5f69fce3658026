package binlog_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flarerpc/flare/binlog"
	"github.com/flarerpc/flare/memsys"
)

func TestOneInNSamplesExactlyOneOfN(t *testing.T) {
	s := binlog.OneInN(3)
	hits := 0
	for i := 0; i < 9; i++ {
		if s.Sample() {
			hits++
		}
	}
	if hits != 3 {
		t.Fatalf("hits = %d, want 3", hits)
	}
}

func TestMinIntervalRejectsWithinWindow(t *testing.T) {
	s := binlog.MinInterval(50 * time.Millisecond)
	if !s.Sample() {
		t.Fatal("first Sample should succeed")
	}
	if s.Sample() {
		t.Fatal("immediate second Sample should be rejected")
	}
	time.Sleep(60 * time.Millisecond)
	if !s.Sample() {
		t.Fatal("Sample after the interval should succeed")
	}
}

type memSink struct {
	mu       sync.Mutex
	incoming []binlog.IncomingCallRecord
}

func (s *memSink) WriteIncoming(r binlog.IncomingCallRecord) {
	s.mu.Lock()
	s.incoming = append(s.incoming, r)
	s.mu.Unlock()
}
func (s *memSink) WriteOutgoing(binlog.OutgoingCallRecord) {}

func TestDumperSamplesAndFlushes(t *testing.T) {
	sink := &memSink{}
	d := binlog.NewDumper(binlog.OneInN(1), sink)
	defer d.Close()

	w := d.TryAcquire(7, map[string]string{"service_name": "Echo"})
	if w == nil {
		t.Fatal("expected a LogWriter when always-sample")
	}
	w.AddIncoming(binlog.Packet{Offset: time.Millisecond})
	w.Finish("ok")
	d.FlushIncoming(w)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		n := len(sink.incoming)
		sink.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("record was never flushed to the sink")
}

func TestDryRunPacketDelayClipsToZero(t *testing.T) {
	buf := memsys.NewBuilder(nil)
	buf.Append([]byte(`[{"Incoming":{"CorrelationID":1},"Outgoing":[{"CorrelationID":2,"IncomingPacket":[{"Offset":0}]}]}]`))
	var got *binlog.DryRunContext
	r := &binlog.Runner{Dispatch: func(c *binlog.DryRunContext) []byte { got = c; return nil }}
	ctxs := r.ParseByteStream(buf.Destructive())
	if len(ctxs) != 1 {
		t.Fatalf("contexts = %d, want 1", len(ctxs))
	}
	ctxs[0].Handler(context.Background())
	o, ok := got.Outgoing(2)
	if !ok {
		t.Fatal("outgoing call 2 not found")
	}
	select {
	case <-o.TryGetIncomingPacket(0):
	case <-time.After(100 * time.Millisecond):
		t.Fatal("packet with a zero offset was not delivered without delay")
	}
}
