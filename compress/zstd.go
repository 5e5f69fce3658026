package compress

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdCodec resets a fresh session on each call (new Encoder/Decoder),
// per spec.md §4.2: "streaming context; reset session on each call".
type zstdCodec struct{}

func (zstdCodec) Compress(dst OutputStream, src []byte) error {
	w, err := zstd.NewWriter(&asWriter{out: dst})
	if err != nil {
		return err
	}
	if _, err := w.Write(src); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Decompress detects a non-progressing flush — zero bytes read with a
// nil error — and reports it as failure rather than looping forever,
// per spec.md §4.2's explicit requirement on the zstd decoder.
func (zstdCodec) Decompress(dst OutputStream, src []byte) error {
	r, err := zstd.NewReader(bytes.NewReader(src))
	if err != nil {
		return err
	}
	defer r.Close()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n == 0 && err == nil {
			return errors.New("compress: zstd decoder made no progress")
		}
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
