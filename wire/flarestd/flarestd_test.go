package flarestd_test

import (
	"testing"

	"github.com/flarerpc/flare/locator"
	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
	"github.com/flarerpc/flare/wire/flarestd"
)

// TestRoundTrip is spec.md §8 scenario S2: meta {correlation_id=1,
// method_type=single, request.method_name="flare.testing.EchoService.Echo"},
// body {body:"asdf"}; written by client, cut & parsed by server;
// decoded request equals original; remaining buffer is empty.
func TestRoundTrip(t *testing.T) {
	svc := &locator.ServiceDescriptor[string]{
		Name: "EchoService",
		Methods: []*locator.MethodDescriptor[string]{
			{Key: "flare.testing.EchoService.Echo", FullName: "flare.testing.EchoService.Echo"},
		},
	}
	flarestd.Registry().RegisterMethodProvider(
		func(m *locator.MethodDescriptor[string]) { flarestd.Registry().RegisterMethod(m) },
		func(m *locator.MethodDescriptor[string]) { flarestd.Registry().DeregisterMethod(m) },
	)
	flarestd.Registry().AddService(svc)
	t.Cleanup(func() { flarestd.Registry().DeleteService(svc) })

	client := flarestd.NewDriver()
	server := flarestd.NewDriver()

	meta := &wire.Meta{
		CorrelationID: 1,
		MethodType:    wire.MethodSingle,
		Request:       &wire.RequestMeta{MethodName: "flare.testing.EchoService.Echo"},
	}
	out := &wire.DecodedMessage{Meta: meta, RawBody: []byte("asdf")}

	b := memsys.NewBuilder(nil)
	if err := client.WriteMessage(out, b, &wire.CallContext{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := b.Destructive()

	in, status := server.TryCutMessage(buf)
	if status != wire.Cut {
		t.Fatalf("cut status = %v, want Cut", status)
	}
	if buf.ByteSize() != 0 {
		t.Fatalf("remaining buffer size = %d, want 0", buf.ByteSize())
	}

	ctx := &wire.CallContext{}
	decoded, ok := server.TryParse(in, ctx)
	if !ok {
		t.Fatal("parse failed")
	}
	if decoded.Meta.CorrelationID != 1 {
		t.Fatalf("correlation_id = %d, want 1", decoded.Meta.CorrelationID)
	}
	if string(decoded.RawBody) != "asdf" {
		t.Fatalf("body = %q, want %q", decoded.RawBody, "asdf")
	}
	if ctx.Method == nil || ctx.Method.FullName != "flare.testing.EchoService.Echo" {
		t.Fatalf("method not resolved via locator: %+v", ctx.Method)
	}
}

// TestCutOneByteAtATime is spec.md §8's per-protocol property: cutting
// the same produced bytes one byte at a time returns NeedMore until the
// full message is present, then Cut exactly once.
func TestCutOneByteAtATime(t *testing.T) {
	meta := &wire.Meta{CorrelationID: 7, MethodType: wire.MethodSingle, NoPayload: true}
	out := &wire.DecodedMessage{Meta: meta}

	d := flarestd.NewDriver()
	b := memsys.NewBuilder(nil)
	if err := d.WriteMessage(out, b, &wire.CallContext{}); err != nil {
		t.Fatal(err)
	}
	full := memsys.FlattenSlow(b.Destructive(), 0)

	buf := &memsys.Chain{}
	builder := memsys.NewBuilder(nil)
	cuts := 0
	for i := 0; i < len(full); i++ {
		builder.Append(full[i : i+1])
		buf.AppendChain(builder.Destructive())
		_, status := d.TryCutMessage(buf)
		if status == wire.Cut {
			cuts++
			break
		}
		if status != wire.NeedMore && status != wire.NotIdentified {
			t.Fatalf("byte %d: status = %v, want NeedMore/NotIdentified before full message", i, status)
		}
	}
	if cuts != 1 {
		t.Fatalf("cuts = %d, want exactly 1", cuts)
	}
}

func TestMagicMismatchIsProtocolMismatch(t *testing.T) {
	d := flarestd.NewDriver()
	b := memsys.NewBuilder(nil)
	b.Append([]byte("XXXXsomeotherbytes"))
	buf := b.Destructive()
	_, status := d.TryCutMessage(buf)
	if status != wire.ProtocolMismatch {
		t.Fatalf("status = %v, want ProtocolMismatch", status)
	}
}
