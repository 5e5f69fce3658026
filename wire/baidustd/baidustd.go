// Package baidustd implements spec.md §4.5.3: header big-endian 4-byte
// magic "PRPC", u32 body_size, u32 meta_size; body is
// [message][attachment], attachment size taken from meta.
//
// Method names are kept as the single dot-joined "service.method"
// string BaiduStd puts on the wire; this adaptation does not split it
// into separate service/method fields internally (spec.md §4.5.3's
// "split at the last dot" describes only how the brpc::RpcMeta record
// itself is shaped, not a requirement on the in-memory representation).
package baidustd

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/flarerpc/flare/compress"
	"github.com/flarerpc/flare/locator"
	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
)

const magic = "PRPC"

var registry = locator.NewRegistry[string]()

func Registry() *locator.Registry[string] { return registry }

type Driver struct{ cache *locator.Cache[string] }

func NewDriver() *Driver { return &Driver{cache: registry.NewCache()} }

func (*Driver) Name() string                        { return "baidustd" }
func (*Driver) NotMultiplexable() bool               { return false }
func (*Driver) NoEndOfStreamMarker() bool            { return false }
func (*Driver) Messages() wire.MessageFactory        { return wire.NullMessageFactory{} }
func (*Driver) Controllers() wire.ControllerFactory  { return controllerFactory{} }

type controllerFactory struct{}

func (controllerFactory) Create(bool) *wire.CallContext { return &wire.CallContext{} }

// algoName/algoCode map BaiduStd's 0/1/2 compression enum to/from
// flare's algorithm-name namespace, per spec.md §4.5.3.
func algoName(code byte) string {
	switch code {
	case 1:
		return compress.Snappy
	case 2:
		return compress.Gzip
	default:
		return ""
	}
}

func algoCode(name string) byte {
	switch name {
	case compress.Snappy:
		return 1
	case compress.Gzip:
		return 2
	default:
		return 0
	}
}

func (d *Driver) TryCutMessage(buf *memsys.Chain) (*wire.IncomingMessage, wire.CutStatus) {
	if buf.ByteSize() < 4 {
		return nil, wire.NotIdentified
	}
	var magicBuf [4]byte
	memsys.FlattenTo(buf, magicBuf[:])
	if string(magicBuf[:]) != magic {
		return nil, wire.ProtocolMismatch
	}
	if buf.ByteSize() < 12 {
		return nil, wire.NeedMore
	}
	var hdr [12]byte
	memsys.FlattenTo(buf, hdr[:])
	bodySize := binary.BigEndian.Uint32(hdr[4:8])
	metaSize := binary.BigEndian.Uint32(hdr[8:12])
	if int64(metaSize) > int64(bodySize) {
		return nil, wire.CutError
	}
	total := int64(12) + int64(bodySize)
	if buf.ByteSize() < total {
		return nil, wire.NeedMore
	}

	whole := buf.Cut(total)
	whole.Skip(12)
	metaBuf := whole.Cut(int64(metaSize))
	body := whole // message + attachment, split once meta's attachment size is known

	meta, attSize, err := decodeMeta(memsys.FlattenSlow(metaBuf, 0))
	if err != nil {
		return nil, wire.CutError
	}
	// corrupted-frame property, spec.md §8: attachment_size + meta_size > body_size.
	if int64(attSize)+int64(metaSize) > int64(bodySize) {
		return nil, wire.CutError
	}
	msgSize := int64(bodySize) - int64(metaSize) - int64(attSize)
	msgBuf := body.Cut(msgSize)
	attBuf := body

	return &wire.IncomingMessage{Meta: meta, Body: msgBuf, Attachment: attBuf}, wire.Cut
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
	return &wire.DecodedMessage{Meta: in.Meta, RawBody: body, Attachment: memsys.FlattenSlow(in.Attachment, 0)}, true
}

func (d *Driver) WriteMessage(msg *wire.DecodedMessage, b *memsys.Builder, ctx *wire.CallContext) error {
	body, err := compress.CompressBytes(msg.Meta.Compression, msg.RawBody)
	if err != nil {
		return err
	}
	metaBytes := encodeMeta(msg.Meta, len(msg.Attachment))
	bodySize := len(metaBytes) + len(body) + len(msg.Attachment)

	var hdr [12]byte
	copy(hdr[:4], magic)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(bodySize))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(metaBytes)))
	b.Append(hdr[:])
	b.Append(metaBytes)
	b.Append(body)
	b.Append(msg.Attachment)
	return nil
}

// encodeMeta/decodeMeta are [1 byte compression code][4-byte
// little-endian attachment size][wire.EncodeMeta output]; wire.EncodeMeta's own Compression
// field is cleared first since BaiduStd carries it in the leading byte.
func encodeMeta(m *wire.Meta, attSize int) []byte {
	inner := *m
	inner.Compression = ""
	out := []byte{algoCode(m.Compression)}
	out = append(out, byte(attSize), byte(attSize>>8), byte(attSize>>16), byte(attSize>>24))
	return append(out, wire.EncodeMeta(&inner)...)
}

func decodeMeta(src []byte) (*wire.Meta, uint32, error) {
	if len(src) < 5 {
		return nil, 0, errors.New("baidustd: truncated meta")
	}
	algo := algoName(src[0])
	attSize := uint32(src[1]) | uint32(src[2])<<8 | uint32(src[3])<<16 | uint32(src[4])<<24
	m, err := wire.DecodeMeta(src[5:])
	if err != nil {
		return nil, 0, err
	}
	m.Compression = algo
	return m, attSize, nil
}
