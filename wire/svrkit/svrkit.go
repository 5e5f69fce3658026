// Package svrkit implements spec.md §4.5.4: [BE u32 total_size][32-byte
// fixed header][body]. magic+cmd_id form the method key; dirty-flag bits
// carry per-direction compression flags; status uses two one-way maps
// (not a round-trippable bijection, per spec.md §9 design note (a)).
package svrkit

import (
	"encoding/binary"

	"github.com/flarerpc/flare/compress"
	"github.com/flarerpc/flare/locator"
	"github.com/flarerpc/flare/memsys"
	"github.com/flarerpc/flare/wire"
)

const (
	headerLen = 32
	prefixLen = 4 + headerLen
	magicWord = uint16(0xCDCD)
)

// Magic is the fixed magic word Svrkit frames carry in their header;
// exported so callers can build MethodKey values for registration.
const Magic = magicWord

// MethodKey is Svrkit's (magic, cmd_id) method key, spec.md §4.5.4.
type MethodKey [2]uint16

var registry = locator.NewRegistry[MethodKey]()

func Registry() *locator.Registry[MethodKey] { return registry }

type Driver struct{ cache *locator.Cache[MethodKey] }

func NewDriver() *Driver { return &Driver{cache: registry.NewCache()} }

func (*Driver) Name() string                       { return "svrkit" }
func (*Driver) NotMultiplexable() bool              { return false }
func (*Driver) NoEndOfStreamMarker() bool           { return false }
func (*Driver) Messages() wire.MessageFactory       { return wire.NullMessageFactory{} }
func (*Driver) Controllers() wire.ControllerFactory { return controllerFactory{} }

type controllerFactory struct{}

func (controllerFactory) Create(bool) *wire.CallContext { return &wire.CallContext{} }

type header struct {
	magic       uint16
	version     uint8
	headLen     uint8
	bodyLen     uint32
	cmdID       uint16
	checksum    uint16
	xff         uint32
	dirtyFlags  [4]byte
	uin         uint32
	status      int32
	alwaysOne   uint8
	reserved    uint8
	segsPresent uint8
	verboseLog  uint8
}

func parseHeader(b []byte) header {
	var h header
	h.magic = binary.BigEndian.Uint16(b[0:2])
	h.version = b[2]
	h.headLen = b[3]
	h.bodyLen = binary.BigEndian.Uint32(b[4:8])
	h.cmdID = binary.BigEndian.Uint16(b[8:10])
	h.checksum = binary.BigEndian.Uint16(b[10:12])
	h.xff = binary.BigEndian.Uint32(b[12:16])
	copy(h.dirtyFlags[:], b[16:20])
	h.uin = binary.BigEndian.Uint32(b[20:24])
	h.status = int32(binary.BigEndian.Uint32(b[24:28]))
	h.alwaysOne = b[28]
	h.reserved = b[29]
	h.segsPresent = b[30]
	h.verboseLog = b[31]
	return h
}

func (h header) marshal() []byte {
	b := make([]byte, headerLen)
	binary.BigEndian.PutUint16(b[0:2], h.magic)
	b[2] = h.version
	b[3] = h.headLen
	binary.BigEndian.PutUint32(b[4:8], h.bodyLen)
	binary.BigEndian.PutUint16(b[8:10], h.cmdID)
	binary.BigEndian.PutUint16(b[10:12], 0) // checksum filled in after
	binary.BigEndian.PutUint32(b[12:16], h.xff)
	copy(b[16:20], h.dirtyFlags[:])
	binary.BigEndian.PutUint32(b[20:24], h.uin)
	binary.BigEndian.PutUint32(b[24:28], uint32(h.status))
	b[28] = h.alwaysOne
	b[29] = h.reserved
	b[30] = h.segsPresent
	b[31] = h.verboseLog
	binary.BigEndian.PutUint16(b[10:12], checksum(b))
	return b
}

// checksum is the 16-bit one's-complement word sum of the header with
// the checksum field treated as zero, per spec.md §4.5.4/§6.
func checksum(hdr []byte) uint16 {
	var sum uint32
	for i := 0; i < headerLen; i += 2 {
		if i == 10 {
			continue // checksum field itself reads as zero
		}
		sum += uint32(binary.BigEndian.Uint16(hdr[i : i+2]))
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// Dirty-flag bit positions, per spec.md §4.5.4.
func bodyCompressedInRequest(f [4]byte) bool      { return f[2]&(1<<2) != 0 }
func setBodyCompressedInRequest(f *[4]byte)       { f[2] |= 1 << 2 }
func bodyCompressedInResponse(f [4]byte) bool     { return f[1]&(1<<1) != 0 }
func setBodyCompressedInResponse(f *[4]byte)      { f[1] |= 1 << 1 }
func compressionAllowedForResponse(f [4]byte) bool { return f[2]&(1<<1) != 0 }

func (d *Driver) TryCutMessage(buf *memsys.Chain) (*wire.IncomingMessage, wire.CutStatus) {
	if buf.ByteSize() < prefixLen {
		return nil, wire.NotIdentified
	}
	var prefix [prefixLen]byte
	memsys.FlattenTo(buf, prefix[:])
	totalSize := binary.BigEndian.Uint32(prefix[0:4])
	h := parseHeader(prefix[4:])
	if checksum(prefix[4:4+headerLen]) != h.checksum {
		return nil, wire.ProtocolMismatch
	}
	if _, ok := d.cache.TryGetMethodDesc(MethodKey{h.magic, h.cmdID}); !ok {
		// per spec.md §4.5.4: an unregistered key is indistinguishable
		// from a wrong protocol passing the structural checks.
		return nil, wire.ProtocolMismatch
	}
	total := int64(4) + int64(totalSize)
	if buf.ByteSize() < total {
		return nil, wire.NeedMore
	}
	whole := buf.Cut(total)
	whole.Skip(prefixLen)
	bodyBuf := whole

	meta := &wire.Meta{
		CorrelationID: uint64(h.cmdID)<<16 | uint64(h.magic),
		Request:       &wire.RequestMeta{},
		Response:      nil,
	}
	if h.status != 0 || h.alwaysOne == 0 {
		meta.Request = nil
		meta.Response = &wire.ResponseMeta{Status: fromSvrkitStatus(h.status)}
	}
	if bodyCompressedInRequest(h.dirtyFlags) || bodyCompressedInResponse(h.dirtyFlags) {
		meta.Compression = compress.Snappy // Svrkit has no algorithm enum; treat any compressed bit as snappy
	}

	if h.segsPresent != 0 {
		segBody, ok := parseSegments(memsys.FlattenSlow(bodyBuf, 0))
		if !ok {
			return nil, wire.CutError
		}
		b2 := memsys.NewBuilder(nil)
		b2.Append(segBody)
		bodyBuf = b2.Destructive()
	}

	return &wire.IncomingMessage{Meta: meta, Body: bodyBuf}, wire.Cut
}

// parseSegments validates and extracts the protobuf-payload segment
// from Svrkit's two-segment request body, per spec.md §4.5.4.
func parseSegments(body []byte) ([]byte, bool) {
	var payload []byte
	for i := 0; i < 2; i++ {
		if len(body) < 8 {
			return nil, false
		}
		typ := binary.BigEndian.Uint32(body[0:4])
		size := binary.BigEndian.Uint32(body[4:8])
		body = body[8:]
		if typ != 1 && typ != 2 {
			return nil, false
		}
		if uint32(len(body)) < size+3 {
			return nil, false
		}
		seg := body[:size]
		trailer := body[size : size+3]
		if string(trailer) != "END" {
			return nil, false
		}
		if typ == 1 {
			payload = seg
		}
		body = body[size+3:]
	}
	if len(body) != 0 {
		return nil, false // extra bytes after segments
	}
	return payload, true
}

func (d *Driver) TryParse(in *wire.IncomingMessage, ctx *wire.CallContext) (*wire.DecodedMessage, bool) {
	ctx.CorrelationID = in.Meta.CorrelationID
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
	h := header{magic: magicWord, version: 1, headLen: headerLen, bodyLen: uint32(len(body)), alwaysOne: 1}
	h.cmdID = uint16(msg.Meta.CorrelationID >> 16)
	if msg.Meta.Response != nil {
		h.alwaysOne = 0
		h.status = toSvrkitStatus(msg.Meta.Response.Status)
		if msg.Meta.Compression != "" {
			setBodyCompressedInResponse(&h.dirtyFlags)
		}
	} else if msg.Meta.Compression != "" {
		setBodyCompressedInRequest(&h.dirtyFlags)
	}
	hdrBytes := h.marshal()

	var total [4]byte
	binary.BigEndian.PutUint32(total[:], uint32(headerLen+len(body)))
	b.Append(total[:])
	b.Append(hdrBytes)
	b.Append(body)
	return nil
}

// userCodeOffset: user codes at/above wire.StatusReservedMax are
// transmitted as (code - StatusReservedMax) + userCodeOffset.
const userCodeOffset = 10000

func toSvrkitStatus(s wire.Status) int32 {
	switch s {
	case wire.StatusSuccess:
		return 0
	case wire.StatusMethodNotFound:
		return -1
	case wire.StatusOverloaded:
		return -2
	case wire.StatusFailed:
		return -3
	case wire.StatusTimeout:
		return -4
	case wire.StatusNoPeer:
		return -5
	case wire.StatusMalformedData:
		return -6
	case wire.StatusOutOfService:
		return -7
	default:
		if s >= wire.StatusReservedMax {
			return int32(s-wire.StatusReservedMax) + userCodeOffset
		}
		return -3 // generic failure slot
	}
}

func fromSvrkitStatus(code int32) wire.Status {
	switch code {
	case 0:
		return wire.StatusSuccess
	case -1:
		return wire.StatusMethodNotFound
	case -2:
		return wire.StatusOverloaded
	case -4:
		return wire.StatusTimeout
	case -5:
		return wire.StatusNoPeer
	case -6:
		return wire.StatusMalformedData
	case -7:
		return wire.StatusOutOfService
	default:
		if code >= userCodeOffset {
			return wire.StatusReservedMax + wire.Status(code-userCodeOffset)
		}
		return wire.StatusFailed
	}
}

var _ = compressionAllowedForResponse // referenced by future response-side compression negotiation
