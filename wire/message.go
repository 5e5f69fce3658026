// Package wire is flare's wire-protocol abstraction, spec.md §4.4: a
// uniform streaming Driver contract that recognizes, frames, parses and
// serializes messages byte-by-byte off a connection, with six concrete
// drivers (wire/flarestd, wire/poppy, wire/baidustd, wire/svrkit,
// wire/trpc, wire/hbase) as case studies.
//
// Grounded on the teacher's transport package: its iterator
// (nextProtoHdr/nextMsg) is the same "identify header, then frame body"
// shape as try_cut_message, and streamBase's per-connection last-good
// path is the direct ancestor of the Driver cut-status caching the
// connection state machine (package rpcserver) performs.
package wire

import "github.com/flarerpc/flare/memsys"

// MethodType distinguishes a fast (single request/response) call from a
// stream call, per spec.md §3's RPC meta.
type MethodType int

const (
	MethodSingle MethodType = iota
	MethodStream
)

// RequestMeta is spec.md §3's request-meta sub-record.
type RequestMeta struct {
	MethodName             string
	AcceptableCompressions []string
	TimeoutMS              int64
	TracingContext         []byte

	// ContentJSON and SpanContext are Trpc-specific (§4.5.5): content
	// type (protobuf vs Protocol-Buffers-JSON) and the request's
	// trans_info["spancontext"] tracing value.
	ContentJSON bool
	SpanContext []byte
}

// ResponseMeta is spec.md §3's response-meta sub-record.
type ResponseMeta struct {
	Status               Status
	Description          string
	TraceForciblySampled bool

	// SpanContext mirrors Trpc's response trans_info["spancontext"].
	SpanContext []byte
}

// Meta is spec.md §3's RPC meta: correlation ID, method type, stream
// flags, the chosen compression algorithm, and either a request or a
// response sub-record.
type Meta struct {
	CorrelationID  uint64
	MethodType     MethodType
	StartOfStream  bool
	EndOfStream    bool
	NoPayload      bool
	Compression    string // "" (none), or one of compress.{Gzip,Snappy,LZ4Frame,Zstd}
	AttachCompress bool   // attachment_compressed flag
	Request        *RequestMeta
	Response       *ResponseMeta
}

// IncomingMessage is spec.md §3's (a): meta plus an undecoded body and
// optional attachment, as cut off the wire before TryParse runs.
type IncomingMessage struct {
	Meta       *Meta
	Body       *memsys.Chain
	Attachment *memsys.Chain
}

// DecodedMessage is spec.md §3's (b): meta plus either a decoded payload
// or the raw bytes, plus attachment.
type DecodedMessage struct {
	Meta       *Meta
	Payload    any
	RawBody    []byte
	Attachment []byte
}

// EarlyErrorMessage is spec.md §3's (c): used when the method is
// unknown or the method key is invalid. A synthetic response can be
// built from it without a decoded payload.
type EarlyErrorMessage struct {
	CorrelationID uint64
	Status        Status
	Description   string
}

// ToDecoded synthesizes a response-shaped DecodedMessage carrying this
// error, so the driver's normal WriteMessage path can serialize it.
func (e *EarlyErrorMessage) ToDecoded() *DecodedMessage {
	return &DecodedMessage{
		Meta: &Meta{
			CorrelationID: e.CorrelationID,
			MethodType:    MethodSingle,
			NoPayload:     true,
			Response:      &ResponseMeta{Status: e.Status, Description: e.Description},
		},
	}
}
