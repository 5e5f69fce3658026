package compress

import "github.com/pkg/errors"

// Compressor and Decompressor consume a byte range (or, via
// CopyToOutputStream, a flattened memsys.Chain) and drive an
// OutputStream in a loop — spec.md §4.2.
type (
	Compressor interface {
		Compress(dst OutputStream, src []byte) error
	}
	Decompressor interface {
		Decompress(dst OutputStream, src []byte) error
	}
)

// Names, selected by string per spec.md §6.
const (
	Gzip     = "gzip"
	Snappy   = "snappy"
	LZ4Frame = "lz4-frame"
	Zstd     = "zstd"
)

// ByName dispatches on algorithm name; an unknown name is an error (not
// one of the four spec.md §6 names), distinct from the per-protocol
// "unsupported algorithm for this wire format" handling each driver does
// itself.
func ByName(name string) (Compressor, Decompressor, error) {
	switch name {
	case Gzip:
		return gzipCodec{}, gzipCodec{}, nil
	case Snappy:
		return snappyCodec{}, snappyCodec{}, nil
	case LZ4Frame:
		return lz4Codec{}, lz4Codec{}, nil
	case Zstd:
		return zstdCodec{}, zstdCodec{}, nil
	default:
		return nil, nil, errors.Errorf("compress: unknown algorithm %q", name)
	}
}
