package poppy

import (
	"github.com/flarerpc/flare/compress"
	"github.com/flarerpc/flare/memsys"
)

func compressBody(algo string, raw []byte) ([]byte, error) { return compress.CompressBytes(algo, raw) }

func decompressBody(algo string, chain *memsys.Chain) []byte {
	out, err := compress.DecompressBytes(algo, memsys.FlattenSlow(chain, 0))
	if err != nil {
		return nil
	}
	return out
}
