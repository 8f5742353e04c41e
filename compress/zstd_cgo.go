//go:build cgozstd

package compress

import (
	"github.com/valyala/gozstd"
)

// Compress compresses the payload using the cgo Zstandard bindings.
func (c ZstdCodec) Compress(data []byte, _ Shape) ([]byte, error) {
	return gozstd.CompressLevel(nil, data, 3), nil
}

// Decompress restores a Zstandard-compressed payload.
func (c ZstdCodec) Decompress(data []byte, _ Shape) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return gozstd.Decompress(nil, data)
}
