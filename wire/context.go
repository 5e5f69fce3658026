package wire

import "github.com/flarerpc/flare/memsys"

// MethodDescriptor is the protocol-agnostic view of a resolved method
// the call context needs — a concrete locator.MethodDescriptor[K]'s
// shape, copied here rather than parameterized so Driver/CallContext
// don't need to be generic over each protocol's key type.
type MethodDescriptor struct {
	FullName    string
	ServiceName string
	MethodName  string
	NewRequest  func() any
	NewResponse func() any
}

// CallContext is spec.md §3's per-call state, shared between the
// framework and the user handler.
type CallContext struct {
	CorrelationID uint64
	Method        *MethodDescriptor

	RemoteEndpoint string
	LocalEndpoint  string

	ReceiveTSC  int64
	DispatchTSC int64
	ParseTSC    int64
	SentTSC     int64

	Status Status

	CellBlock *memsys.Chain // HBase only

	TracingContext []byte

	// StreamReader/StreamWriter are non-nil only for MethodStream calls;
	// concrete types are defined by package rpcserver.
	StreamReader any
	StreamWriter any

	// Exception mirrors HBase's controller.exception(): class name and
	// stack trace text, set by try_parse on an HBase response carrying
	// an exception instead of a body (spec.md §4.5.6 / scenario S4).
	Exception *Exception
}

type Exception struct {
	ClassName  string
	StackTrace string
}

func (c *CallContext) Failed() bool { return c.Exception != nil || c.Status != StatusSuccess }

// ControllerFactory furnishes per-call state server-side, per spec.md
// §4.4.
type ControllerFactory interface {
	Create(isStream bool) *CallContext
}

// MessageFactory produces synthetic messages of a given kind (overload,
// circuit-broken, ...); returning (nil, false) means this protocol has
// no representation for that kind. The null factory always returns
// (nil, false).
type MessageKind int

const (
	KindOverloaded MessageKind = iota
	KindCircuitBroken
)

type MessageFactory interface {
	Create(kind MessageKind, correlationID uint64, isStream bool) (*DecodedMessage, bool)
}

// NullMessageFactory implements MessageFactory by never producing a
// message, per spec.md §4.4's "the null factory always does [return
// none]".
type NullMessageFactory struct{}

func (NullMessageFactory) Create(MessageKind, uint64, bool) (*DecodedMessage, bool) { return nil, false }
