// Package flarestd implements spec.md §4.5.1: flare's own native wire
// protocol. Header (little-endian): 4-byte magic "FRPC", u32 meta_size,
// u32 msg_size, u32 att_size.
//
// Grounded on the teacher's transport package framing (iterator.go's
// nextProtoHdr/nextMsg: fixed binary header, then declared-length body),
// generalized from aistore's object-stream header to flare's RPC meta
// header.
package flarestd

import (
	"encoding/binary"

	"github.com/flarerpc/flare/locator"
	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
)

const (
	headerSize = 16
	magic      = "FRPC"
)

var registry = locator.NewRegistry[string]()

// Registry exposes the package-wide method registry so service
// bootstrap code can AddService/DeleteService methods handled natively
// by FlareStd.
func Registry() *locator.Registry[string] { return registry }

type Driver struct {
	cache *locator.Cache[string]
	msgs  wire.MessageFactory
}

func NewDriver() *Driver {
	return &Driver{cache: registry.NewCache(), msgs: messageFactory{}}
}

func (*Driver) Name() string               { return "flarestd" }
func (*Driver) NotMultiplexable() bool      { return false }
func (*Driver) NoEndOfStreamMarker() bool   { return false }
func (d *Driver) Messages() wire.MessageFactory       { return d.msgs }
func (d *Driver) Controllers() wire.ControllerFactory { return controllerFactory{} }

type controllerFactory struct{}

func (controllerFactory) Create(bool) *wire.CallContext { return &wire.CallContext{} }

// messageFactory produces overload/circuit-broken early-error responses
// native to FlareStd's status space.
type messageFactory struct{}

func (messageFactory) Create(kind wire.MessageKind, corrID uint64, _ bool) (*wire.DecodedMessage, bool) {
	status, desc := wire.StatusOverloaded, "overloaded"
	if kind == wire.KindCircuitBroken {
		status, desc = wire.StatusOutOfService, "circuit broken"
	}
	e := &wire.EarlyErrorMessage{CorrelationID: corrID, Status: status, Description: desc}
	return e.ToDecoded(), true
}

// TryCutMessage implements spec.md §4.5.1's framing rule: cut iff
// byte_size >= 16 + meta_size + msg_size + att_size; magic mismatch is
// ProtocolMismatch.
func (d *Driver) TryCutMessage(buf *memsys.Chain) (*wire.IncomingMessage, wire.CutStatus) {
	if buf.ByteSize() < 4 {
		return nil, wire.NotIdentified // not enough bytes to even see the magic
	}
	var magicBuf [4]byte
	memsys.FlattenTo(buf, magicBuf[:])
	if string(magicBuf[:]) != magic {
		return nil, wire.ProtocolMismatch
	}
	if buf.ByteSize() < headerSize {
		return nil, wire.NeedMore
	}
	var hdr [headerSize]byte
	memsys.FlattenTo(buf, hdr[:])
	metaSize := binary.LittleEndian.Uint32(hdr[4:8])
	msgSize := binary.LittleEndian.Uint32(hdr[8:12])
	attSize := binary.LittleEndian.Uint32(hdr[12:16])
	total := int64(headerSize) + int64(metaSize) + int64(msgSize) + int64(attSize)
	if buf.ByteSize() < total {
		return nil, wire.NeedMore
	}

	whole := buf.Cut(total)
	whole.Skip(headerSize)
	metaBuf := whole.Cut(int64(metaSize))
	bodyBuf := whole.Cut(int64(msgSize))
	attBuf := whole // remainder is the attachment

	metaBytes := memsys.FlattenSlow(metaBuf, 0)
	meta, err := wire.DecodeMeta(metaBytes)
	if err != nil {
		return nil, wire.CutError
	}
	return &wire.IncomingMessage{Meta: meta, Body: bodyBuf, Attachment: attBuf}, wire.Cut
}

// TryParse decodes the cut message: method-type single with NoPayload
// skips body parsing; otherwise decompresses (if meta says so) and
// hands back raw bytes (decoding into a concrete proto prototype is a
// caller/handler-level concern in this adaptation, generalized from the
// protobuf-typed original).
func (d *Driver) TryParse(in *wire.IncomingMessage, ctx *wire.CallContext) (*wire.DecodedMessage, bool) {
	ctx.CorrelationID = in.Meta.CorrelationID
	ctx.TracingContext = nil
	if in.Meta.Request != nil {
		ctx.TracingContext = in.Meta.Request.TracingContext
		desc, ok := d.cache.TryGetMethodDesc(in.Meta.Request.MethodName)
		if ok {
			ctx.Method = &wire.MethodDescriptor{
				FullName:    desc.FullName,
				ServiceName: desc.ServiceName,
				MethodName:  desc.MethodName,
				NewRequest:  desc.NewRequest,
				NewResponse: desc.NewResponse,
			}
		}
	}

	out := &wire.DecodedMessage{Meta: in.Meta}
	if in.Meta.NoPayload {
		return out, true
	}

	body := decompress(in.Meta.Compression, in.Body)
	if body == nil && in.Meta.Compression != "" {
		return nil, false
	}
	out.RawBody = body

	if in.Meta.AttachCompress {
		att := decompress(in.Meta.Compression, in.Attachment)
		if att == nil && in.Meta.Compression != "" {
			return nil, false
		}
		out.Attachment = att
	} else if !in.Attachment.Empty() {
		out.Attachment = memsys.FlattenSlow(in.Attachment, 0)
	}
	return out, true
}

// WriteMessage serializes msg onto b: header, meta, body, attachment,
// compressing body/attachment per meta's algorithm first.
func (d *Driver) WriteMessage(msg *wire.DecodedMessage, b *memsys.Builder, ctx *wire.CallContext) error {
	metaBytes := wire.EncodeMeta(msg.Meta)

	var bodyBytes, attBytes []byte
	var err error
	if !msg.Meta.NoPayload {
		if bodyBytes, err = compressBytes(msg.Meta.Compression, msg.RawBody); err != nil {
			return err
		}
	}
	if msg.Meta.AttachCompress {
		if attBytes, err = compressBytes(msg.Meta.Compression, msg.Attachment); err != nil {
			return err
		}
	} else {
		attBytes = msg.Attachment
	}

	var hdr [headerSize]byte
	copy(hdr[:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(metaBytes)))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(bodyBytes)))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(attBytes)))

	b.Append(hdr[:])
	b.Append(metaBytes)
	b.Append(bodyBytes)
	b.Append(attBytes)
	return nil
}
