package hbase_test

import (
	"testing"

	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
	"github.com/flarerpc/flare/wire/hbase"
)

func handshakeAndWrite(t *testing.T, client, server *hbase.Driver, msg *wire.DecodedMessage) *wire.IncomingMessage {
	t.Helper()
	b := memsys.NewBuilder(nil)
	if err := client.WriteMessage(msg, b, &wire.CallContext{}); err != nil {
		t.Fatal(err)
	}
	buf := b.Destructive()

	in, status := server.TryCutMessage(buf)
	if status != wire.Cut {
		t.Fatalf("status = %v, want Cut", status)
	}
	return in
}

func TestRoundTrip(t *testing.T) {
	client := hbase.NewDriver()
	server := hbase.NewDriver()

	meta := &wire.Meta{CorrelationID: 5, Request: &wire.RequestMeta{MethodName: "Region.Get"}}
	msg := &wire.DecodedMessage{Meta: meta, RawBody: []byte("rowkey")}

	in := handshakeAndWrite(t, client, server, msg)
	ctx := &wire.CallContext{}
	decoded, ok := server.TryParse(in, ctx)
	if !ok {
		t.Fatal("parse failed")
	}
	if string(decoded.RawBody) != "rowkey" || ctx.CorrelationID != 5 {
		t.Fatalf("mismatch: body=%q corr=%d", decoded.RawBody, ctx.CorrelationID)
	}
}

// TestPreambleIdentification is spec.md §8: <10 preamble bytes ->
// NotIdentified; wrong magic -> ProtocolMismatch; valid preamble with a
// partial connection header -> NeedMore.
func TestPreambleIdentification(t *testing.T) {
	server := hbase.NewDriver()
	b := memsys.NewBuilder(nil)
	b.Append([]byte("HBas"))
	b.Append([]byte{0, 80})
	buf := b.Destructive()
	if _, status := server.TryCutMessage(buf); status != wire.NotIdentified {
		t.Fatalf("status = %v, want NotIdentified with <10 bytes", status)
	}

	server2 := hbase.NewDriver()
	b2 := memsys.NewBuilder(nil)
	b2.Append([]byte("XXXX"))
	b2.Append([]byte{0, 80, 0, 0, 0, 0})
	buf2 := b2.Destructive()
	if _, status := server2.TryCutMessage(buf2); status != wire.ProtocolMismatch {
		t.Fatalf("status = %v, want ProtocolMismatch on wrong magic", status)
	}

	server3 := hbase.NewDriver()
	b3 := memsys.NewBuilder(nil)
	b3.Append([]byte("HBas"))
	b3.Append([]byte{0, 80, 0, 0, 0, 10}) // conn_header_size = 10, but none follows
	buf3 := b3.Destructive()
	if _, status := server3.TryCutMessage(buf3); status != wire.NeedMore {
		t.Fatalf("status = %v, want NeedMore with valid preamble + partial conn header", status)
	}
}

// TestException is spec.md §8 scenario S4: server sets an exception on
// the response; client decodes it onto the controller without a body.
func TestException(t *testing.T) {
	client := hbase.NewDriver()
	server := hbase.NewDriver()

	meta := &wire.Meta{CorrelationID: 3, NoPayload: true, Response: &wire.ResponseMeta{Status: wire.StatusFailed, Description: "xcpt class"}}
	msg := &wire.DecodedMessage{Meta: meta}

	in := handshakeAndWrite(t, client, server, msg)
	ctx := &wire.CallContext{}
	if _, ok := server.TryParse(in, ctx); !ok {
		t.Fatal("parse failed")
	}
	if !ctx.Failed() || ctx.Exception == nil || ctx.Exception.ClassName != "xcpt class" {
		t.Fatalf("exception not propagated: %+v", ctx.Exception)
	}
}
