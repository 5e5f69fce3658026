package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// gzipCodec streams: feed input chunks, Z_STREAM_END on Close is the
// successful termination per spec.md §4.2.
type gzipCodec struct{}

func (gzipCodec) Compress(dst OutputStream, src []byte) error {
	w := gzip.NewWriter(&asWriter{out: dst})
	if _, err := w.Write(src); err != nil {
		return err
	}
	return w.Close()
}

func (gzipCodec) Decompress(dst OutputStream, src []byte) error {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return err
	}
	defer r.Close()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := CopyToOutputStream(dst, buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
