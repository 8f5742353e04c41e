package compress

import (
	"fmt"
	"sync"

	"github.com/gotraj/tng/format"
)

// Shape describes the element grid of a data block payload. Codecs
// that exploit the grid structure (triple coding, fixed-point particle
// codecs) need it; general purpose byte codecs may ignore it.
type Shape struct {
	// Type is the declared datatype of the payload elements.
	Type format.DataType
	// Frames is the number of stored frames, after stride is applied.
	Frames int64
	// Particles is the particle count, 1 for non-particle blocks.
	Particles int64
	// ValuesPerFrame is the number of values per frame and particle.
	ValuesPerFrame int64
}

// Elements returns the total element count of the grid.
func (s Shape) Elements() int64 {
	return s.Frames * s.Particles * s.ValuesPerFrame
}

// Codec is a pure byte transform and its inverse. The engine stores
// Compress output verbatim as block content and never reinterprets it.
//
// Memory management follows the rest of the module: returned slices
// are owned by the caller, inputs are never modified, and internal
// buffers may be reused across calls.
//
// Implementations must be safe for concurrent use.
type Codec interface {
	// Compress transforms raw payload bytes into the stored form.
	Compress(data []byte, shape Shape) ([]byte, error)

	// Decompress restores raw payload bytes from the stored form.
	Decompress(data []byte, shape Shape) ([]byte, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[format.CodecID]Codec{
		format.CodecUncompressed: NewNoOpCodec(),
		format.CodecGzip:         NewGzipCodec(),
		format.CodecZstd:         NewZstdCodec(),
		format.CodecLZ4:          NewLZ4Codec(),
		format.CodecS2:           NewS2Codec(),
	}
)

// Register installs a codec under the given ID, replacing any previous
// registration. External collaborators use it to provide the reserved
// trajectory codecs (XTC, TNG triple coding).
func Register(id format.CodecID, codec Codec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = codec
}

// Lookup returns the codec registered under the given ID.
func Lookup(id format.CodecID) (Codec, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if codec, ok := registry[id]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported codec ID %d (%s)", id, id)
}
