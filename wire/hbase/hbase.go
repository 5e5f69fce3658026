// Package hbase implements spec.md §4.5.6: the sole stateful, non-
// multiplexed driver. A connection begins with a 10-byte preamble
// (magic "HBas", version, auth, conn_header_size) followed by the
// connection header; handshake bytes are consumed even when the
// following message frame is incomplete, per spec.md §4.4's explicit
// exception for HBase. Each Driver value is therefore one-per-connection
// state, in the same shape as wire/poppy's handshakeSent/handshakeSeen.
//
// Header/body records use wire/pb (see that package's doc for why)
// rather than a generated HBase protobuf schema.
package hbase

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/flarerpc/flare/locator"
	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
	"github.com/flarerpc/flare/wire/pb"
)

const (
	preambleLen = 10
	magic       = "HBas"
	version     = byte(0)
	authSimple  = byte(80)
)

var registry = locator.NewRegistry[string]()

func Registry() *locator.Registry[string] { return registry }

type Driver struct {
	cache          *locator.Cache[string]
	handshakeSeen  bool // server: consumed the client's preamble+conn header
	handshakeSent  bool // client: wrote its preamble+conn header
	connHeaderBody []byte
}

func NewDriver() *Driver { return &Driver{cache: registry.NewCache()} }

func (*Driver) Name() string                       { return "hbase" }
func (*Driver) NotMultiplexable() bool              { return true }
func (*Driver) NoEndOfStreamMarker() bool           { return false }
func (*Driver) Messages() wire.MessageFactory       { return wire.NullMessageFactory{} }
func (*Driver) Controllers() wire.ControllerFactory { return controllerFactory{} }

type controllerFactory struct{}

func (controllerFactory) Create(bool) *wire.CallContext { return &wire.CallContext{} }

func (d *Driver) TryCutMessage(buf *memsys.Chain) (*wire.IncomingMessage, wire.CutStatus) {
	if !d.handshakeSeen {
		status := d.tryConsumeHandshake(buf)
		if status != wire.Cut {
			return nil, status
		}
		// Handshake consumed; fall through and try the first real frame
		// against whatever bytes remain (possibly none yet).
	}
	return d.tryCutFrame(buf)
}

func (d *Driver) tryConsumeHandshake(buf *memsys.Chain) wire.CutStatus {
	if buf.ByteSize() < preambleLen {
		return wire.NotIdentified
	}
	var pre [preambleLen]byte
	memsys.FlattenTo(buf, pre[:])
	if string(pre[0:4]) != magic {
		return wire.ProtocolMismatch
	}
	if pre[4] != version || pre[5] != authSimple {
		return wire.CutError
	}
	connHeaderSize := binary.BigEndian.Uint32(pre[6:10])
	total := int64(preambleLen) + int64(connHeaderSize)
	if buf.ByteSize() < total {
		return wire.NeedMore
	}
	whole := buf.Cut(total)
	whole.Skip(preambleLen)
	d.connHeaderBody = memsys.FlattenSlow(whole, 0)
	d.handshakeSeen = true
	return wire.Cut
}

func (d *Driver) tryCutFrame(buf *memsys.Chain) (*wire.IncomingMessage, wire.CutStatus) {
	if buf.ByteSize() < 4 {
		return nil, wire.NeedMore
	}
	var szBuf [4]byte
	memsys.FlattenTo(buf, szBuf[:])
	totalSize := binary.BigEndian.Uint32(szBuf[:])
	total := int64(4) + int64(totalSize)
	if buf.ByteSize() < total {
		return nil, wire.NeedMore
	}

	whole := buf.Cut(total)
	whole.Skip(4)
	rest := memsys.FlattenSlow(whole, 0)

	headerLen, n := pb.Uvarint(rest)
	if n == 0 || uint64(len(rest)-n) < headerLen {
		return nil, wire.CutError
	}
	rest = rest[n:]
	headerBytes := rest[:headerLen]
	rest = rest[headerLen:]

	meta, bodyPresent, cellBlockLen, err := decodeHeader(headerBytes)
	if err != nil {
		return nil, wire.CutError
	}

	var rawBody []byte
	if bodyPresent {
		bodyLen, n := pb.Uvarint(rest)
		if n == 0 || uint64(len(rest)-n) < bodyLen {
			return nil, wire.CutError
		}
		rest = rest[n:]
		rawBody = rest[:bodyLen]
		rest = rest[bodyLen:]
	}
	if uint64(len(rest)) != cellBlockLen {
		return nil, wire.CutError
	}

	builder := memsys.NewBuilder(nil)
	builder.Append(rawBody)
	bodyChain := builder.Destructive()

	var cellBlock *memsys.Chain
	if cellBlockLen > 0 {
		cb := memsys.NewBuilder(nil)
		cb.Append(rest)
		cellBlock = cb.Destructive()
	}

	return &wire.IncomingMessage{Meta: meta, Body: bodyChain, Attachment: cellBlock}, wire.Cut
}

func (d *Driver) TryParse(in *wire.IncomingMessage, ctx *wire.CallContext) (*wire.DecodedMessage, bool) {
	ctx.CorrelationID = in.Meta.CorrelationID
	ctx.CellBlock = in.Attachment
	if in.Meta.Request != nil {
		if desc, ok := d.cache.TryGetMethodDesc(in.Meta.Request.MethodName); ok {
			ctx.Method = &wire.MethodDescriptor{FullName: desc.FullName, NewRequest: desc.NewRequest, NewResponse: desc.NewResponse}
		}
	}
	if exc := exceptionOf(in.Meta); exc != nil {
		ctx.Exception = exc
	}
	return &wire.DecodedMessage{Meta: in.Meta, RawBody: memsys.FlattenSlow(in.Body, 0)}, true
}

func (d *Driver) WriteMessage(msg *wire.DecodedMessage, b *memsys.Builder, ctx *wire.CallContext) error {
	if !d.handshakeSent {
		b.Append([]byte(magic))
		b.Append([]byte{version, authSimple})
		var sz [4]byte
		binary.BigEndian.PutUint32(sz[:], uint32(len(d.connHeaderBody)))
		b.Append(sz[:])
		b.Append(d.connHeaderBody)
		d.handshakeSent = true
	}

	var cellBlockLen uint64
	var cellBlock []byte
	if ctx != nil && ctx.CellBlock != nil {
		cellBlock = memsys.FlattenSlow(ctx.CellBlock, 0)
		cellBlockLen = uint64(len(cellBlock))
	}
	bodyPresent := !msg.Meta.NoPayload
	headerBytes := encodeHeader(msg.Meta, bodyPresent, cellBlockLen)

	var frame []byte
	frame = pb.PutUvarint(frame, uint64(len(headerBytes)))
	frame = append(frame, headerBytes...)
	if bodyPresent {
		frame = pb.PutUvarint(frame, uint64(len(msg.RawBody)))
		frame = append(frame, msg.RawBody...)
	}
	frame = append(frame, cellBlock...)

	var sz [4]byte
	binary.BigEndian.PutUint32(sz[:], uint32(len(frame)))
	b.Append(sz[:])
	b.Append(frame)
	return nil
}

// encodeHeader/decodeHeader: tag(0 request/1 response), bodyPresent(1
// byte), call_id varint, then tag-specific fields, per spec.md §4.5.6.
func encodeHeader(m *wire.Meta, bodyPresent bool, cellBlockLen uint64) []byte {
	var out []byte
	flag := byte(0)
	if bodyPresent {
		flag = 1
	}
	if m.Response != nil {
		out = append(out, 1, flag)
		out = pb.PutUvarint(out, m.CorrelationID)
		hasExc := byte(0)
		var className, stack string
		if m.Response.Description != "" {
			hasExc = 1
			className = "xcpt class"
			stack = m.Response.Description
		}
		out = append(out, hasExc)
		if hasExc == 1 {
			out = pb.PutString(out, className)
			out = pb.PutString(out, stack)
		}
		out = pb.PutUvarint(out, cellBlockLen)
		return out
	}
	out = append(out, 0, flag)
	out = pb.PutUvarint(out, m.CorrelationID)
	var methodName string
	if m.Request != nil {
		methodName = m.Request.MethodName
	}
	out = pb.PutString(out, methodName)
	out = pb.PutUvarint(out, cellBlockLen)
	return out
}

func decodeHeader(src []byte) (meta *wire.Meta, bodyPresent bool, cellBlockLen uint64, err error) {
	if len(src) < 2 {
		return nil, false, 0, errors.New("hbase: truncated header")
	}
	tag := src[0]
	bodyPresent = src[1] != 0
	rest := src[2:]
	callID, n := pb.Uvarint(rest)
	if n == 0 {
		return nil, false, 0, errors.New("hbase: truncated call_id")
	}
	rest = rest[n:]
	meta = &wire.Meta{CorrelationID: callID, NoPayload: !bodyPresent}

	switch tag {
	case 1:
		if len(rest) < 1 {
			return nil, false, 0, errors.New("hbase: truncated exception flag")
		}
		hasExc := rest[0]
		rest = rest[1:]
		resp := &wire.ResponseMeta{Status: wire.StatusSuccess}
		if hasExc == 1 {
			_, n1 := pb.String(rest)
			if n1 == 0 {
				return nil, false, 0, errors.New("hbase: truncated exception class")
			}
			rest = rest[n1:]
			stack, n2 := pb.String(rest)
			if n2 == 0 {
				return nil, false, 0, errors.New("hbase: truncated exception stack")
			}
			rest = rest[n2:]
			resp.Description = stack
			resp.Status = wire.StatusFailed
		}
		cellBlockLen, n = pb.Uvarint(rest)
		if n == 0 {
			return nil, false, 0, errors.New("hbase: truncated cell_block_meta")
		}
		meta.Response = resp
	case 0:
		name, n1 := pb.String(rest)
		if n1 == 0 {
			return nil, false, 0, errors.New("hbase: truncated method name")
		}
		rest = rest[n1:]
		cellBlockLen, n = pb.Uvarint(rest)
		if n == 0 {
			return nil, false, 0, errors.New("hbase: truncated cell_block_meta")
		}
		meta.Request = &wire.RequestMeta{MethodName: name}
	default:
		return nil, false, 0, errors.Errorf("hbase: unknown header tag %d", tag)
	}
	return meta, bodyPresent, cellBlockLen, nil
}

// exceptionOf surfaces a failed response's description onto the call
// context as the exception's stack trace. The class name is not carried
// through: encodeHeader always writes the fixed class name "xcpt class",
// decodeHeader discards the class name it reads, and ClassName here is
// always "xcpt class".
func exceptionOf(m *wire.Meta) *wire.Exception {
	if m.Response == nil || m.Response.Status != wire.StatusFailed || m.Response.Description == "" {
		return nil
	}
	return &wire.Exception{ClassName: "xcpt class", StackTrace: m.Response.Description}
}
