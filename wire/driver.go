package wire

import "github.com/flarerpc/flare/memsys"

// CutStatus is spec.md §4.4's MessageCutStatus.
type CutStatus int

const (
	NotIdentified CutStatus = iota
	NeedMore
	ProtocolMismatch
	Cut
	CutError
)

func (s CutStatus) String() string {
	switch s {
	case NotIdentified:
		return "NotIdentified"
	case NeedMore:
		return "NeedMore"
	case ProtocolMismatch:
		return "ProtocolMismatch"
	case Cut:
		return "Cut"
	case CutError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Driver is spec.md §4.4's protocol driver contract. Implementations
// never panic on malformed input; they report CutError/false and let
// the connection state machine (package rpcserver) decide the
// connection-level action.
type Driver interface {
	Name() string
	NotMultiplexable() bool
	NoEndOfStreamMarker() bool

	Messages() MessageFactory
	Controllers() ControllerFactory

	// TryCutMessage inspects buf (without consuming unless it returns
	// Cut) and either extracts one message's raw bytes into msg or
	// reports why it can't yet.
	TryCutMessage(buf *memsys.Chain) (msg *IncomingMessage, status CutStatus)

	// TryParse decodes a cut IncomingMessage into payload form, filling
	// ctx with tracing/compression/method-binding details. false means a
	// protocol parse error (the connection must be dropped).
	TryParse(in *IncomingMessage, ctx *CallContext) (*DecodedMessage, bool)

	// WriteMessage serializes one message onto b. Called single-threaded
	// per connection, per spec.md §4.4.
	WriteMessage(msg *DecodedMessage, b *memsys.Builder, ctx *CallContext) error
}
