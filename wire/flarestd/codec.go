package flarestd

import (
	"github.com/flarerpc/flare/compress"
	"github.com/flarerpc/flare/memsys"
)

func compressBytes(algo string, raw []byte) ([]byte, error) { return compress.CompressBytes(algo, raw) }

// decompress returns nil on failure.
func decompress(algo string, chain *memsys.Chain) []byte {
	out, err := compress.DecompressBytes(algo, memsys.FlattenSlow(chain, 0))
	if err != nil {
		return nil
	}
	return out
}
