// Package poppy implements spec.md §4.5.2: a one-shot HTTP-style
// handshake per connection, then [BE u32 meta_size][BE u32
// body_size][meta][body] frames.
//
// Grounded on the teacher's transport package's one-shot per-stream
// handshake (Init/negotiate exchanged once per connection before
// steady-state framing begins) generalized to Poppy's HTTP preamble.
package poppy

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/flarerpc/flare/cmn/nlog"
	"github.com/flarerpc/flare/locator"
	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
)

const handshakeLine = "POST /__rpc_service__ HTTP/1.1\r\n"

var registry = locator.NewRegistry[string]()

func Registry() *locator.Registry[string] { return registry }

type Driver struct {
	cache         *locator.Cache[string]
	handshakeSent bool
	handshakeSeen bool
}

func NewDriver() *Driver { return &Driver{cache: registry.NewCache()} }

func (*Driver) Name() string               { return "poppy" }
func (*Driver) NotMultiplexable() bool      { return false }
func (*Driver) NoEndOfStreamMarker() bool   { return false }
func (*Driver) Messages() wire.MessageFactory       { return wire.NullMessageFactory{} }
func (*Driver) Controllers() wire.ControllerFactory { return controllerFactory{} }

type controllerFactory struct{}

func (controllerFactory) Create(bool) *wire.CallContext { return &wire.CallContext{} }

// algoName maps Poppy's 0/1 compression enum to flare's namespace, per
// spec.md §4.5.2: "0 = none, 1 = snappy; anything else is logged and
// mapped to none."
func algoName(code byte) string {
	switch code {
	case 0:
		return ""
	case 1:
		return "snappy"
	default:
		nlog.Warningf("poppy: unsupported compression type %d, treated as none", code)
		return ""
	}
}

func algoCode(name string) byte {
	if name == "snappy" {
		return 1
	}
	return 0
}

func (d *Driver) TryCutMessage(buf *memsys.Chain) (*wire.IncomingMessage, wire.CutStatus) {
	if !d.handshakeSeen {
		status := d.tryConsumeHandshake(buf)
		if status != wire.Cut {
			return nil, status
		}
		d.handshakeSeen = true
		// fall through: the handshake bytes were consumed; the first
		// real message may or may not be present yet.
	}
	return d.tryCutFrame(buf)
}

func (d *Driver) tryConsumeHandshake(buf *memsys.Chain) wire.CutStatus {
	prefix := []byte(handshakeLine)
	n := len(prefix)
	if buf.ByteSize() < int64(n) {
		n = int(buf.ByteSize())
	}
	head := make([]byte, n)
	memsys.FlattenTo(buf, head)
	if !bytes.Equal(head, prefix[:n]) {
		return wire.ProtocolMismatch
	}
	if n < len(prefix) {
		return wire.NeedMore
	}
	// need the full header block up to \r\n\r\n
	flat := memsys.FlattenSlow(buf, 64*1024)
	idx := bytes.Index(flat, []byte("\r\n\r\n"))
	if idx < 0 {
		return wire.NeedMore
	}
	buf.Skip(int64(idx) + 4)
	return wire.Cut
}

func (d *Driver) tryCutFrame(buf *memsys.Chain) (*wire.IncomingMessage, wire.CutStatus) {
	if buf.ByteSize() < 8 {
		return nil, wire.NeedMore
	}
	var hdr [8]byte
	memsys.FlattenTo(buf, hdr[:])
	metaSize := binary.BigEndian.Uint32(hdr[0:4])
	bodySize := binary.BigEndian.Uint32(hdr[4:8])
	total := int64(8) + int64(metaSize) + int64(bodySize)
	if buf.ByteSize() < total {
		return nil, wire.NeedMore
	}
	whole := buf.Cut(total)
	whole.Skip(8)
	metaBuf := whole.Cut(int64(metaSize))
	bodyBuf := whole

	meta, err := decodeMeta(memsys.FlattenSlow(metaBuf, 0))
	if err != nil {
		return nil, wire.CutError
	}
	return &wire.IncomingMessage{Meta: meta, Body: bodyBuf}, wire.Cut
}

func (d *Driver) TryParse(in *wire.IncomingMessage, ctx *wire.CallContext) (*wire.DecodedMessage, bool) {
	ctx.CorrelationID = in.Meta.CorrelationID
	if in.Meta.Request != nil {
		if desc, ok := d.cache.TryGetMethodDesc(in.Meta.Request.MethodName); ok {
			ctx.Method = &wire.MethodDescriptor{FullName: desc.FullName, NewRequest: desc.NewRequest, NewResponse: desc.NewResponse}
		}
	}
	body := decompressBody(in.Meta.Compression, in.Body)
	if body == nil && in.Meta.Compression != "" {
		return nil, false
	}
	return &wire.DecodedMessage{Meta: in.Meta, RawBody: body}, true
}

func (d *Driver) WriteMessage(msg *wire.DecodedMessage, b *memsys.Builder, ctx *wire.CallContext) error {
	if !d.handshakeSent {
		b.Append([]byte(handshakeLine +
			"Cookie: POPPY_AUTH_TICKET=\r\n" +
			"X-Poppy-Compress-Type: 0,1\r\n" +
			"X-Poppy-Tos: 96\r\n\r\n"))
		d.handshakeSent = true
	}
	body, err := compressBody(msg.Meta.Compression, msg.RawBody)
	if err != nil {
		return err
	}
	metaBytes := encodeMeta(msg.Meta)

	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(metaBytes)))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(body)))
	b.Append(hdr[:])
	b.Append(metaBytes)
	b.Append(body)
	return nil
}

// encodeMeta/decodeMeta lay out Poppy's meta as one leading compression
// byte (algoCode/algoName) followed by wire.EncodeMeta's encoding of the
// rest of wire.Meta; status and description travel in that encoding's
// response record, with no separate failed/error_code/reason fields.
func encodeMeta(m *wire.Meta) []byte {
	inner := *m
	inner.Compression = "" // compression is carried in Poppy's own byte field, not re-encoded here
	b := wire.EncodeMeta(&inner)
	return append([]byte{algoCode(m.Compression)}, b...)
}

func decodeMeta(src []byte) (*wire.Meta, error) {
	if len(src) < 1 {
		return nil, errors.New("poppy: empty meta")
	}
	compression := algoName(src[0])
	m, err := wire.DecodeMeta(src[1:])
	if err != nil {
		return nil, err
	}
	m.Compression = compression
	return m, nil
}
