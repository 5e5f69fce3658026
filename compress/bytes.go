package compress

import "github.com/flarerpc/flare/memsys"

// CompressBytes and DecompressBytes are byte-slice conveniences over
// Compressor/Decompressor for protocol drivers that just need
// "compress this body, get bytes back" without owning a Builder
// themselves. algo == "" is a passthrough (no compression).
func CompressBytes(algo string, raw []byte) ([]byte, error) {
	if algo == "" {
		return raw, nil
	}
	c, _, err := ByName(algo)
	if err != nil {
		return nil, err
	}
	b := memsys.NewBuilder(nil)
	sink := NewBuilderSink(b)
	if err := c.Compress(sink, raw); err != nil {
		return nil, err
	}
	return memsys.FlattenSlow(sink.Chain(), 0), nil
}

// DecompressBytes returns (nil, err) on failure; algo == "" is a
// passthrough that always succeeds.
func DecompressBytes(algo string, raw []byte) ([]byte, error) {
	if algo == "" {
		return raw, nil
	}
	_, d, err := ByName(algo)
	if err != nil {
		return nil, err
	}
	b := memsys.NewBuilder(nil)
	sink := NewBuilderSink(b)
	if err := d.Decompress(sink, raw); err != nil {
		return nil, err
	}
	return memsys.FlattenSlow(sink.Chain(), 0), nil
}
