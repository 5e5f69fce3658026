// Package trpc implements spec.md §4.5.5: [BE u16 magic=0x930][u8
// frame_type][u8 state][BE u32 total_size][BE u16 header_size][BE u16
// stream_id][4B reserved][header][body]. The header record itself is
// encoded with wire/pb (see that package's doc: no protoc toolchain is
// available to generate the real trpc protobuf schema),
// carrying method name, content type, compression, the "spancontext"
// trans_info entry, and the ret status code.
package trpc

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/flarerpc/flare/compress"
	"github.com/flarerpc/flare/locator"
	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
	"github.com/flarerpc/flare/wire/pb"
)

const (
	magic     = uint16(0x930)
	fixedSize = 16
)

const (
	contentProtobuf = byte(0)
	contentJSON     = byte(1)
)

// Compression enum, spec.md §4.5.5: 0=default/none, 2=gzip, 3=snappy.
func algoName(code byte) string {
	switch code {
	case 2:
		return compress.Gzip
	case 3:
		return compress.Snappy
	default:
		return ""
	}
}

func algoCode(name string) byte {
	switch name {
	case compress.Gzip:
		return 2
	case compress.Snappy:
		return 3
	default:
		return 0
	}
}

const trpcInvokeSuccess = int32(0)

var registry = locator.NewRegistry[string]()

func Registry() *locator.Registry[string] { return registry }

type Driver struct{ cache *locator.Cache[string] }

func NewDriver() *Driver { return &Driver{cache: registry.NewCache()} }

func (*Driver) Name() string                       { return "trpc" }
func (*Driver) NotMultiplexable() bool              { return false }
func (*Driver) NoEndOfStreamMarker() bool           { return false }
func (*Driver) Messages() wire.MessageFactory       { return wire.NullMessageFactory{} }
func (*Driver) Controllers() wire.ControllerFactory { return controllerFactory{} }

type controllerFactory struct{}

func (controllerFactory) Create(bool) *wire.CallContext { return &wire.CallContext{} }

func (d *Driver) TryCutMessage(buf *memsys.Chain) (*wire.IncomingMessage, wire.CutStatus) {
	if buf.ByteSize() < 2 {
		return nil, wire.NotIdentified
	}
	var magicBuf [2]byte
	memsys.FlattenTo(buf, magicBuf[:])
	if binary.BigEndian.Uint16(magicBuf[:]) != magic {
		return nil, wire.ProtocolMismatch
	}
	if buf.ByteSize() < fixedSize {
		return nil, wire.NeedMore
	}
	var hdr [fixedSize]byte
	memsys.FlattenTo(buf, hdr[:])
	totalSize := binary.BigEndian.Uint32(hdr[4:8])
	headerSize := binary.BigEndian.Uint16(hdr[8:10])
	streamID := binary.BigEndian.Uint16(hdr[10:12])

	total := int64(fixedSize) + int64(totalSize) - 8 // total_size counts header_size+stream_id+reserved+header+body
	if total < int64(fixedSize) {
		return nil, wire.CutError
	}
	if buf.ByteSize() < total {
		return nil, wire.NeedMore
	}

	whole := buf.Cut(total)
	whole.Skip(fixedSize)
	headerBuf := whole.Cut(int64(headerSize))
	bodyBuf := whole

	meta, err := decodeHeader(memsys.FlattenSlow(headerBuf, 0))
	if err != nil {
		return nil, wire.CutError
	}
	meta.CorrelationID = uint64(streamID)

	return &wire.IncomingMessage{Meta: meta, Body: bodyBuf}, wire.Cut
}

func (d *Driver) TryParse(in *wire.IncomingMessage, ctx *wire.CallContext) (*wire.DecodedMessage, bool) {
	ctx.CorrelationID = in.Meta.CorrelationID
	if in.Meta.Request != nil {
		if desc, ok := d.cache.TryGetMethodDesc(in.Meta.Request.MethodName); ok {
			ctx.Method = &wire.MethodDescriptor{FullName: desc.FullName, NewRequest: desc.NewRequest, NewResponse: desc.NewResponse}
		}
	}
	body, err := compress.DecompressBytes(in.Meta.Compression, memsys.FlattenSlow(in.Body, 0))
	if err != nil {
		return nil, false
	}
	return &wire.DecodedMessage{Meta: in.Meta, RawBody: body}, true
}

func (d *Driver) WriteMessage(msg *wire.DecodedMessage, b *memsys.Builder, ctx *wire.CallContext) error {
	body, err := compress.CompressBytes(msg.Meta.Compression, msg.RawBody)
	if err != nil {
		return err
	}
	headerBytes := encodeHeader(msg.Meta)

	var hdr [fixedSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], magic)
	hdr[2] = 0 // frame_type: unary
	hdr[3] = 0 // state: unknown
	binary.BigEndian.PutUint32(hdr[4:8], uint32(8+len(headerBytes)+len(body)))
	binary.BigEndian.PutUint16(hdr[8:10], uint16(len(headerBytes)))
	binary.BigEndian.PutUint16(hdr[10:12], uint16(msg.Meta.CorrelationID))
	b.Append(hdr[:])
	b.Append(headerBytes)
	b.Append(body)
	return nil
}

// encodeHeader/decodeHeader carry: tag(0=request,1=response), method
// name (request) or ret code (response), content type byte, compression
// byte, and the trans_info "spancontext" value.
func encodeHeader(m *wire.Meta) []byte {
	content := contentProtobuf
	if m.Request != nil && m.Request.ContentJSON {
		content = contentJSON
	}
	out := []byte{content, algoCode(m.Compression)}
	if m.Response != nil {
		out = append(out, 1)
		var ret [4]byte
		binary.BigEndian.PutUint32(ret[:], uint32(toTrpcRet(m.Response.Status)))
		out = append(out, ret[:]...)
		out = pb.PutBytes(out, m.Response.SpanContext)
		return out
	}
	out = append(out, 0)
	var methodName, spanContext []byte
	if m.Request != nil {
		methodName = []byte(m.Request.MethodName)
		spanContext = m.Request.SpanContext
	}
	out = pb.PutBytes(out, methodName)
	out = pb.PutBytes(out, spanContext)
	return out
}

func decodeHeader(src []byte) (*wire.Meta, error) {
	if len(src) < 3 {
		return nil, errors.New("trpc: truncated header")
	}
	content := src[0]
	algo := algoName(src[1])
	tag := src[2]
	rest := src[3:]
	m := &wire.Meta{Compression: algo}
	switch tag {
	case 1:
		if len(rest) < 4 {
			return nil, errors.New("trpc: truncated response header")
		}
		ret := int32(binary.BigEndian.Uint32(rest[0:4]))
		span, n := pb.Bytes(rest[4:])
		if n == 0 {
			return nil, errors.New("trpc: truncated response trans_info")
		}
		m.Response = &wire.ResponseMeta{Status: fromTrpcRet(ret), SpanContext: span}
	case 0:
		name, n := pb.Bytes(rest)
		if n == 0 {
			return nil, errors.New("trpc: truncated method name")
		}
		rest = rest[n:]
		span, n2 := pb.Bytes(rest)
		if n2 == 0 {
			return nil, errors.New("trpc: truncated request trans_info")
		}
		m.Request = &wire.RequestMeta{MethodName: string(name), ContentJSON: content == contentJSON, SpanContext: span}
	default:
		return nil, errors.Errorf("trpc: unknown header tag %d", tag)
	}
	return m, nil
}

func toTrpcRet(s wire.Status) int32 {
	if s == wire.StatusSuccess {
		return trpcInvokeSuccess
	}
	return int32(s)
}

func fromTrpcRet(ret int32) wire.Status {
	if ret == trpcInvokeSuccess {
		return wire.StatusSuccess
	}
	return wire.Status(ret)
}
