package wire

import (
	"github.com/pkg/errors"

	"github.com/flarerpc/flare/wire/pb"
)

// EncodeMeta serializes m using the pb varint/length-delimited codec.
// This is FlareStd's native meta wire format (spec.md §4.5.1). BaiduStd
// and Poppy embed this same encoding inside their own frames; Svrkit,
// Trpc and HBase translate their own header records to/from wire.Meta.
func EncodeMeta(m *Meta) []byte {
	var flags byte
	if m.StartOfStream {
		flags |= 1
	}
	if m.EndOfStream {
		flags |= 2
	}
	if m.NoPayload {
		flags |= 4
	}
	if m.AttachCompress {
		flags |= 8
	}

	out := pb.PutUvarint(nil, m.CorrelationID)
	out = pb.PutUvarint(out, uint64(m.MethodType))
	out = append(out, flags)
	out = pb.PutString(out, m.Compression)

	switch {
	case m.Request != nil:
		out = append(out, 1)
		out = pb.PutString(out, m.Request.MethodName)
		out = pb.PutUvarint(out, uint64(len(m.Request.AcceptableCompressions)))
		for _, c := range m.Request.AcceptableCompressions {
			out = pb.PutString(out, c)
		}
		out = pb.PutUvarint(out, uint64(m.Request.TimeoutMS))
		out = pb.PutBytes(out, m.Request.TracingContext)
	case m.Response != nil:
		out = append(out, 2)
		out = pb.PutUvarint(out, uint64(m.Response.Status))
		out = pb.PutString(out, m.Response.Description)
		if m.Response.TraceForciblySampled {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	default:
		out = append(out, 0)
	}
	return out
}

// DecodeMeta is the inverse of EncodeMeta.
func DecodeMeta(src []byte) (*Meta, error) {
	m := &Meta{}
	corrID, n := pb.Uvarint(src)
	if n == 0 {
		return nil, errors.New("wire: truncated meta (correlation_id)")
	}
	src = src[n:]
	m.CorrelationID = corrID

	methodType, n := pb.Uvarint(src)
	if n == 0 {
		return nil, errors.New("wire: truncated meta (method_type)")
	}
	src = src[n:]
	m.MethodType = MethodType(methodType)

	if len(src) < 1 {
		return nil, errors.New("wire: truncated meta (flags)")
	}
	flags := src[0]
	src = src[1:]
	m.StartOfStream = flags&1 != 0
	m.EndOfStream = flags&2 != 0
	m.NoPayload = flags&4 != 0
	m.AttachCompress = flags&8 != 0

	compression, n := pb.String(src)
	if n == 0 {
		return nil, errors.New("wire: truncated meta (compression)")
	}
	src = src[n:]
	m.Compression = compression

	if len(src) < 1 {
		return nil, errors.New("wire: truncated meta (tag)")
	}
	tag := src[0]
	src = src[1:]

	switch tag {
	case 1:
		req := &RequestMeta{}
		name, n := pb.String(src)
		if n == 0 {
			return nil, errors.New("wire: truncated meta (method_name)")
		}
		src = src[n:]
		req.MethodName = name

		cnt, n := pb.Uvarint(src)
		if n == 0 {
			return nil, errors.New("wire: truncated meta (compression count)")
		}
		src = src[n:]
		for i := uint64(0); i < cnt; i++ {
			c, n := pb.String(src)
			if n == 0 {
				return nil, errors.New("wire: truncated meta (compression entry)")
			}
			src = src[n:]
			req.AcceptableCompressions = append(req.AcceptableCompressions, c)
		}

		timeout, n := pb.Uvarint(src)
		if n == 0 {
			return nil, errors.New("wire: truncated meta (timeout)")
		}
		src = src[n:]
		req.TimeoutMS = int64(timeout)

		tc, n := pb.Bytes(src)
		if n == 0 {
			return nil, errors.New("wire: truncated meta (tracing_context)")
		}
		req.TracingContext = tc
		m.Request = req
	case 2:
		resp := &ResponseMeta{}
		status, n := pb.Uvarint(src)
		if n == 0 {
			return nil, errors.New("wire: truncated meta (status)")
		}
		src = src[n:]
		resp.Status = Status(status)

		desc, n := pb.String(src)
		if n == 0 {
			return nil, errors.New("wire: truncated meta (description)")
		}
		src = src[n:]
		resp.Description = desc

		if len(src) < 1 {
			return nil, errors.New("wire: truncated meta (trace_forcibly_sampled)")
		}
		resp.TraceForciblySampled = src[0] != 0
		m.Response = resp
	}
	return m, nil
}
