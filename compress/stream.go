// Package compress is flare's compression framing layer: a uniform
// streaming Compressor/Decompressor contract over gzip, snappy, zstd and
// lz4-frame, so every wire-protocol driver compresses/decompresses
// payloads through identical code, per spec.md §4.2.
//
// Grounded on the teacher's cmn/archive package (archive.Writer wraps
// compress/gzip, archive/tar, archive/zip and pierrec/lz4/v3 behind one
// interface so the caller never sees the library types); the canonical
// sink here plays the same role atop memsys.Builder instead of an
// archive.Writer.
package compress

import (
	"errors"
	"io"

	"github.com/flarerpc/flare/memsys"
)

// OutputStream is spec.md §4.2's CompressionOutputStream: Next exposes a
// write window, Backup un-marks the unused tail of the last window.
type OutputStream interface {
	Next() (data []byte, ok bool)
	Backup(count int)
}

// BuilderSink is the canonical sink implementation atop a
// memsys.Builder: Next returns the builder's current contiguous write
// window, transparently allocating new blocks as it's exhausted.
type BuilderSink struct {
	b *memsys.Builder
}

func NewBuilderSink(b *memsys.Builder) *BuilderSink { return &BuilderSink{b: b} }

func (s *BuilderSink) Next() ([]byte, bool) {
	d := s.b.Data()
	if len(d) == 0 {
		return nil, false
	}
	s.b.MarkWritten(len(d))
	return d, true
}

func (s *BuilderSink) Backup(count int) { s.b.Backup(count) }

// Chain hands over everything written to the sink so far.
func (s *BuilderSink) Chain() *memsys.Chain { return s.b.Destructive() }

// CopyToOutputStream copies src into successive sink windows, calling
// Backup on the last short window — spec.md §4.2's
// copy_to_compression_output_stream.
func CopyToOutputStream(dst OutputStream, src []byte) error {
	for len(src) > 0 {
		window, ok := dst.Next()
		if !ok {
			return errors.New("compress: output stream exhausted")
		}
		n := copy(window, src)
		if n < len(window) {
			dst.Backup(len(window) - n)
		}
		src = src[n:]
	}
	return nil
}

// asWriter adapts an OutputStream to io.Writer for codecs (gzip, lz4)
// that stream through the standard io.Writer contract.
type asWriter struct{ out OutputStream }

func (w *asWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		window, ok := w.out.Next()
		if !ok {
			return written, io.ErrShortWrite
		}
		n := copy(window, p[written:])
		if n < len(window) {
			w.out.Backup(len(window) - n)
		}
		written += n
	}
	return written, nil
}
