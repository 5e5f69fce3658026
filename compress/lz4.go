package compress

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v3"
)

// lz4Codec: frame begin on init, frame-update per chunk, frame-end on
// Close — spec.md §4.2's lz4-frame description, implemented atop
// pierrec/lz4/v3's streaming Writer/Reader.
type lz4Codec struct{}

func (lz4Codec) Compress(dst OutputStream, src []byte) error {
	w := lz4.NewWriter(&asWriter{out: dst})
	if _, err := w.Write(src); err != nil {
		return err
	}
	return w.Close()
}

func (lz4Codec) Decompress(dst OutputStream, src []byte) error {
	r := lz4.NewReader(bytes.NewReader(src))
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
