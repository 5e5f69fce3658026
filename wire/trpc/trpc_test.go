package trpc_test

import (
	"testing"

	"github.com/flarerpc/flare/locator"
	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
	"github.com/flarerpc/flare/wire/trpc"
)

// TestRoundTrip is spec.md §8's per-protocol property for Trpc: write,
// cut, parse yields a message whose meta and payload equal the original.
func TestRoundTrip(t *testing.T) {
	svc := &locator.ServiceDescriptor[string]{
		Name: "EchoService",
		Methods: []*locator.MethodDescriptor[string]{
			{Key: "/trpc.test.EchoService/Echo", FullName: "/trpc.test.EchoService/Echo"},
		},
	}
	trpc.Registry().RegisterMethodProvider(
		func(m *locator.MethodDescriptor[string]) { trpc.Registry().RegisterMethod(m) },
		func(m *locator.MethodDescriptor[string]) { trpc.Registry().DeregisterMethod(m) },
	)
	trpc.Registry().AddService(svc)
	t.Cleanup(func() { trpc.Registry().DeleteService(svc) })

	client := trpc.NewDriver()
	server := trpc.NewDriver()

	meta := &wire.Meta{
		CorrelationID: 11,
		Request: &wire.RequestMeta{
			MethodName:  "/trpc.test.EchoService/Echo",
			SpanContext: []byte("span-123"),
		},
	}
	out := &wire.DecodedMessage{Meta: meta, RawBody: []byte("hi")}

	b := memsys.NewBuilder(nil)
	if err := client.WriteMessage(out, b, &wire.CallContext{}); err != nil {
		t.Fatal(err)
	}
	buf := b.Destructive()

	in, status := server.TryCutMessage(buf)
	if status != wire.Cut {
		t.Fatalf("status = %v, want Cut", status)
	}
	if buf.ByteSize() != 0 {
		t.Fatalf("remaining buffer size = %d, want 0", buf.ByteSize())
	}

	ctx := &wire.CallContext{}
	decoded, ok := server.TryParse(in, ctx)
	if !ok {
		t.Fatal("parse failed")
	}
	if string(decoded.RawBody) != "hi" {
		t.Fatalf("body = %q, want %q", decoded.RawBody, "hi")
	}
	if decoded.Meta.CorrelationID != 11 {
		t.Fatalf("correlation_id = %d, want 11", decoded.Meta.CorrelationID)
	}
	if string(decoded.Meta.Request.SpanContext) != "span-123" {
		t.Fatalf("spancontext = %q, want %q", decoded.Meta.Request.SpanContext, "span-123")
	}
	if ctx.Method == nil || ctx.Method.FullName != "/trpc.test.EchoService/Echo" {
		t.Fatalf("method not resolved via locator: %+v", ctx.Method)
	}
}

func TestMagicMismatchIsProtocolMismatch(t *testing.T) {
	d := trpc.NewDriver()
	b := memsys.NewBuilder(nil)
	b.Append([]byte("XXsomeotherbytes"))
	buf := b.Destructive()
	_, status := d.TryCutMessage(buf)
	if status != wire.ProtocolMismatch {
		t.Fatalf("status = %v, want ProtocolMismatch", status)
	}
}

// TestRetMapping checks the non-success ret code surfaces as a status
// carrying that code, per spec.md §4.5.5.
func TestRetMapping(t *testing.T) {
	client := trpc.NewDriver()
	server := trpc.NewDriver()
	meta := &wire.Meta{CorrelationID: 2, Response: &wire.ResponseMeta{Status: wire.Status(99)}}
	out := &wire.DecodedMessage{Meta: meta}
	b := memsys.NewBuilder(nil)
	if err := client.WriteMessage(out, b, &wire.CallContext{}); err != nil {
		t.Fatal(err)
	}
	in, status := server.TryCutMessage(b.Destructive())
	if status != wire.Cut {
		t.Fatalf("status = %v, want Cut", status)
	}
	ctx := &wire.CallContext{}
	decoded, ok := server.TryParse(in, ctx)
	if !ok {
		t.Fatal("parse failed")
	}
	if decoded.Meta.Response.Status != wire.Status(99) {
		t.Fatalf("status = %v, want 99", decoded.Meta.Response.Status)
	}
}
