package compress

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotraj/tng/format"
)

func testShape() Shape {
	return Shape{Type: format.TypeFloat, Frames: 16, Particles: 8, ValuesPerFrame: 3}
}

func randomPayload(n int) []byte {
	r := rand.New(rand.NewSource(42))
	data := make([]byte, n)
	r.Read(data)

	return data
}

func TestBuiltinCodecs_RoundTrip(t *testing.T) {
	ids := []format.CodecID{
		format.CodecUncompressed,
		format.CodecGzip,
		format.CodecZstd,
		format.CodecLZ4,
		format.CodecS2,
	}

	payloads := map[string][]byte{
		"random":      randomPayload(16 * 8 * 3 * 4),
		"zeros":       make([]byte, 4096),
		"single byte": {0x42},
	}

	for _, id := range ids {
		codec, err := Lookup(id)
		require.NoError(t, err)

		for name, payload := range payloads {
			t.Run(id.String()+"/"+name, func(t *testing.T) {
				compressed, err := codec.Compress(payload, testShape())
				require.NoError(t, err)

				restored, err := codec.Decompress(compressed, testShape())
				require.NoError(t, err)
				assert.Equal(t, payload, restored)
			})
		}
	}
}

func TestCompressibleDataShrinks(t *testing.T) {
	payload := make([]byte, 64*1024)
	for _, id := range []format.CodecID{format.CodecGzip, format.CodecZstd, format.CodecLZ4, format.CodecS2} {
		codec, err := Lookup(id)
		require.NoError(t, err)

		compressed, err := codec.Compress(payload, testShape())
		require.NoError(t, err)
		assert.Less(t, len(compressed), len(payload), "codec %s", id)
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup(format.CodecID(9999))
	require.Error(t, err)

	// The reserved trajectory codecs are not built in.
	_, err = Lookup(format.CodecXTC)
	require.Error(t, err)
	_, err = Lookup(format.CodecTNG)
	require.Error(t, err)
}

type reverseCodec struct{}

func (reverseCodec) Compress(data []byte, _ Shape) ([]byte, error) {
	out := make([]byte, len(data))
	for i, b := range data {
		out[len(data)-1-i] = b
	}

	return out, nil
}

func (reverseCodec) Decompress(data []byte, shape Shape) ([]byte, error) {
	return reverseCodec{}.Compress(data, shape)
}

func TestRegister_CustomCodec(t *testing.T) {
	const customID = format.CodecID(9000)
	Register(customID, reverseCodec{})

	codec, err := Lookup(customID)
	require.NoError(t, err)

	payload := []byte{1, 2, 3, 4}
	compressed, err := codec.Compress(payload, testShape())
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 3, 2, 1}, compressed)

	restored, err := codec.Decompress(compressed, testShape())
	require.NoError(t, err)
	assert.Equal(t, payload, restored)
}

func TestNoOp_SharesMemory(t *testing.T) {
	codec := NewNoOpCodec()
	payload := []byte{9, 8, 7}

	out, err := codec.Compress(payload, testShape())
	require.NoError(t, err)
	assert.Equal(t, payload, out)
	assert.Same(t, &payload[0], &out[0])
}
