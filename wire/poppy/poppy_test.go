package poppy_test

import (
	"testing"

	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
	"github.com/flarerpc/flare/wire/poppy"
)

func TestRoundTrip(t *testing.T) {
	client := poppy.NewDriver()
	server := poppy.NewDriver()

	meta := &wire.Meta{CorrelationID: 42, Request: &wire.RequestMeta{MethodName: "Svc.Method"}}
	msg := &wire.DecodedMessage{Meta: meta, RawBody: []byte("payload")}

	b := memsys.NewBuilder(nil)
	if err := client.WriteMessage(msg, b, &wire.CallContext{}); err != nil {
		t.Fatal(err)
	}
	buf := b.Destructive()

	in, status := server.TryCutMessage(buf)
	if status != wire.Cut {
		t.Fatalf("status after handshake+frame = %v, want Cut", status)
	}
	ctx := &wire.CallContext{}
	decoded, ok := server.TryParse(in, ctx)
	if !ok {
		t.Fatal("parse failed")
	}
	if string(decoded.RawBody) != "payload" {
		t.Fatalf("body = %q", decoded.RawBody)
	}
	if decoded.Meta.CorrelationID != 42 {
		t.Fatalf("correlation_id = %d", decoded.Meta.CorrelationID)
	}
}

func TestWrongHandshakeIsProtocolMismatch(t *testing.T) {
	server := poppy.NewDriver()
	b := memsys.NewBuilder(nil)
	b.Append([]byte("GET / HTTP/1.1\r\n\r\n"))
	buf := b.Destructive()
	_, status := server.TryCutMessage(buf)
	if status != wire.ProtocolMismatch {
		t.Fatalf("status = %v, want ProtocolMismatch", status)
	}
}
