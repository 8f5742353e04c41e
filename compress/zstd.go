package compress

// ZstdCodec provides Zstandard compression for data block payloads.
//
// Zstd trades compression speed for ratio, which suits archived
// trajectories where frames are written once and read many times.
// Raw float payloads compress modestly; quantized or integer payloads
// compress well.
type ZstdCodec struct{}

var _ Codec = (*ZstdCodec)(nil)

// NewZstdCodec creates a new Zstd codec with default settings.
func NewZstdCodec() ZstdCodec {
	return ZstdCodec{}
}
