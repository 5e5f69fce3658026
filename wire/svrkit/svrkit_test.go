package svrkit_test

import (
	"testing"

	"github.com/flarerpc/flare/locator"
	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
	"github.com/flarerpc/flare/wire/svrkit"
)

func TestUnregisteredKeyIsProtocolMismatch(t *testing.T) {
	client := svrkit.NewDriver()
	server := svrkit.NewDriver()

	meta := &wire.Meta{CorrelationID: uint64(7) << 16, Request: &wire.RequestMeta{}}
	msg := &wire.DecodedMessage{Meta: meta, RawBody: []byte("ping")}

	b := memsys.NewBuilder(nil)
	if err := client.WriteMessage(msg, b, &wire.CallContext{}); err != nil {
		t.Fatal(err)
	}
	buf := b.Destructive()

	// method key (magic, cmd_id=7) is unregistered: must read as ProtocolMismatch,
	// not a method-not-found, per spec.md §4.5.4.
	if _, status := server.TryCutMessage(buf); status != wire.ProtocolMismatch {
		t.Fatalf("status = %v, want ProtocolMismatch for unregistered method key", status)
	}
}

// TestStatusRoundTrip is spec.md §8 scenario S3: a response status maps
// to the wire and back to the same framework status.
func TestStatusRoundTrip(t *testing.T) {
	cases := []wire.Status{
		wire.StatusSuccess,
		wire.StatusMethodNotFound,
		wire.StatusOverloaded,
		wire.StatusTimeout,
		wire.StatusNoPeer,
		wire.StatusMalformedData,
		wire.StatusOutOfService,
		wire.StatusReservedMax + 17,
	}
	key := svrkit.MethodKey{svrkit.Magic, 99}
	svc := &locator.ServiceDescriptor[svrkit.MethodKey]{
		Name: "StatusSvc",
		Methods: []*locator.MethodDescriptor[svrkit.MethodKey]{
			{Key: key, FullName: "StatusSvc.Ping"},
		},
	}
	svrkit.Registry().RegisterMethodProvider(
		func(m *locator.MethodDescriptor[svrkit.MethodKey]) { svrkit.Registry().RegisterMethod(m) },
		func(m *locator.MethodDescriptor[svrkit.MethodKey]) { svrkit.Registry().DeregisterMethod(m) },
	)
	svrkit.Registry().AddService(svc)
	t.Cleanup(func() { svrkit.Registry().DeleteService(svc) })

	client := svrkit.NewDriver()
	server := svrkit.NewDriver()
	for _, want := range cases {
		meta := &wire.Meta{CorrelationID: uint64(99) << 16, Response: &wire.ResponseMeta{Status: want}}
		msg := &wire.DecodedMessage{Meta: meta, RawBody: nil}
		b := memsys.NewBuilder(nil)
		if err := client.WriteMessage(msg, b, &wire.CallContext{}); err != nil {
			t.Fatal(err)
		}
		buf := b.Destructive()
		in, status := server.TryCutMessage(buf)
		if status != wire.Cut {
			t.Fatalf("status = %v, want Cut for registered method key", status)
		}
		if in.Meta.Response.Status != want {
			t.Fatalf("status round trip: got %v, want %v", in.Meta.Response.Status, want)
		}
	}
}
