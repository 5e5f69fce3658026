package rpcserver_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flarerpc/flare/locator"
	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/rpcserver"
	"github.com/flarerpc/flare/wire"
	"github.com/flarerpc/flare/wire/flarestd"
)

type buf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (w *buf) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

// TestFastCallRoundTrip drives Connection.Feed with a client-encoded
// FlareStd message and checks the handler runs and a response is
// written back, per spec.md §4.6 steps 1-4.
func TestFastCallRoundTrip(t *testing.T) {
	svc := &locator.ServiceDescriptor[string]{
		Name: "EchoService",
		Methods: []*locator.MethodDescriptor[string]{
			{Key: "Echo", FullName: "Echo"},
		},
	}
	flarestd.Registry().RegisterMethodProvider(
		func(m *locator.MethodDescriptor[string]) { flarestd.Registry().RegisterMethod(m) },
		func(m *locator.MethodDescriptor[string]) { flarestd.Registry().DeregisterMethod(m) },
	)
	flarestd.Registry().AddService(svc)
	t.Cleanup(func() { flarestd.Registry().DeleteService(svc) })

	client := flarestd.NewDriver()
	meta := &wire.Meta{CorrelationID: 1, MethodType: wire.MethodSingle, Request: &wire.RequestMeta{MethodName: "Echo"}}
	out := &wire.DecodedMessage{Meta: meta, RawBody: []byte("ping")}
	b := memsys.NewBuilder(nil)
	if err := client.WriteMessage(out, b, &wire.CallContext{}); err != nil {
		t.Fatal(err)
	}
	raw := memsys.FlattenSlow(b.Destructive(), 0)

	var handled = make(chan struct{}, 1)
	handler := func(ctx *wire.CallContext, msg *wire.DecodedMessage) (*wire.DecodedMessage, rpcserver.HandlerOutcome) {
		handled <- struct{}{}
		resp := &wire.DecodedMessage{
			Meta:    &wire.Meta{CorrelationID: msg.Meta.CorrelationID, Response: &wire.ResponseMeta{Status: wire.StatusSuccess}},
			RawBody: msg.RawBody,
		}
		return resp, rpcserver.Processed
	}

	w := &buf{}
	conn := rpcserver.NewConnection(rpcserver.DefaultConfig(), []wire.Driver{flarestd.NewDriver()}, handler, w, "remote:1", "local:1")
	if !conn.Feed(raw) {
		t.Fatal("Feed returned false")
	}

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
	conn.Join()

	w.mu.Lock()
	wrote := w.b.Len()
	w.mu.Unlock()
	if wrote == 0 {
		t.Fatal("no response bytes written back")
	}
}

type stubDryRunner struct{ reports int }

func (s *stubDryRunner) ParseByteStream(*memsys.Chain) []rpcserver.DryRunContext {
	return []rpcserver.DryRunContext{
		{Handler: func(context.Context) []byte { return []byte("report") }},
	}
}

// TestDryRunBypassesNormalFraming is spec.md §4.6's dry-run variant: no
// on-wire framing from the normal protocols is used at all once a
// DryRunner is configured.
func TestDryRunBypassesNormalFraming(t *testing.T) {
	w := &buf{}
	conn := rpcserver.NewConnection(rpcserver.DefaultConfig(), nil, nil, w, "r", "l")
	conn.SetDryRunner(&stubDryRunner{})
	if !conn.Feed([]byte("anything at all, not wire-framed")) {
		t.Fatal("Feed returned false")
	}
	conn.Join()

	w.mu.Lock()
	got := w.b.String()
	w.mu.Unlock()
	if got != "report" {
		t.Fatalf("report written = %q, want %q", got, "report")
	}
}
