package compress

import "github.com/golang/snappy"

// snappyCodec is one-shot per spec.md §4.2: the sink emits a single
// append after full compression (no streaming session to hold open).
type snappyCodec struct{}

func (snappyCodec) Compress(dst OutputStream, src []byte) error {
	out := snappy.Encode(nil, src)
	return CopyToOutputStream(dst, out)
}

func (snappyCodec) Decompress(dst OutputStream, src []byte) error {
	out, err := snappy.Decode(nil, src)
	if err != nil {
		return err
	}
	return CopyToOutputStream(dst, out)
}
