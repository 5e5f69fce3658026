package baidustd_test

import (
	"testing"

	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
	"github.com/flarerpc/flare/wire/baidustd"
)

func TestRoundTrip(t *testing.T) {
	client := baidustd.NewDriver()
	server := baidustd.NewDriver()

	meta := &wire.Meta{CorrelationID: 9, Request: &wire.RequestMeta{MethodName: "EchoService.Echo"}}
	msg := &wire.DecodedMessage{Meta: meta, RawBody: []byte("hello"), Attachment: []byte("att")}

	b := memsys.NewBuilder(nil)
	if err := client.WriteMessage(msg, b, &wire.CallContext{}); err != nil {
		t.Fatal(err)
	}
	buf := b.Destructive()

	in, status := server.TryCutMessage(buf)
	if status != wire.Cut {
		t.Fatalf("status = %v, want Cut", status)
	}
	decoded, ok := server.TryParse(in, &wire.CallContext{})
	if !ok {
		t.Fatal("parse failed")
	}
	if string(decoded.RawBody) != "hello" || string(decoded.Attachment) != "att" {
		t.Fatalf("body/attachment mismatch: %q / %q", decoded.RawBody, decoded.Attachment)
	}
}

// TestCorruptedFrameIsError is spec.md §8: attachment_size + meta_size
// > body_size must yield Error.
func TestCorruptedFrameIsError(t *testing.T) {
	client := baidustd.NewDriver()
	server := baidustd.NewDriver()
	meta := &wire.Meta{CorrelationID: 1}
	msg := &wire.DecodedMessage{Meta: meta, RawBody: []byte("x")}
	b := memsys.NewBuilder(nil)
	if err := client.WriteMessage(msg, b, &wire.CallContext{}); err != nil {
		t.Fatal(err)
	}
	raw := memsys.FlattenSlow(b.Destructive(), 0)

	// corrupt: bump the body_size field down so attachment_size +
	// meta_size > body_size (here: shrink body_size by 2; the body was
	// meta_size + 1 message byte with no attachment).
	raw[7] -= 2

	corrupted := memsys.NewBuilder(nil)
	corrupted.Append(raw)
	_, status := server.TryCutMessage(corrupted.Destructive())
	if status != wire.CutError {
		t.Fatalf("status = %v, want Error for a corrupted frame", status)
	}
}
