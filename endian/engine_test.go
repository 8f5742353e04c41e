package endian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder32_Engine(t *testing.T) {
	tests := []struct {
		name  string
		order Order32
		value uint32
		bytes []byte
	}{
		{"big endian", Big32, 0x01020304, []byte{0x01, 0x02, 0x03, 0x04}},
		{"little endian", Little32, 0x01020304, []byte{0x04, 0x03, 0x02, 0x01}},
		{"pair swap", PairSwap32, 0x01020304, []byte{0x03, 0x04, 0x01, 0x02}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, ok := tt.order.Engine()
			require.True(t, ok)

			buf := make([]byte, 4)
			eng.PutUint32(buf, tt.value)
			assert.Equal(t, tt.bytes, buf)
			assert.Equal(t, tt.value, eng.Uint32(buf))

			appended := eng.AppendUint32(nil, tt.value)
			assert.Equal(t, tt.bytes, appended)
		})
	}
}

func TestOrder64_Engine(t *testing.T) {
	tests := []struct {
		name  string
		order Order64
		value uint64
		bytes []byte
	}{
		{"big endian", Big64, 0x0102030405060708, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}},
		{"little endian", Little64, 0x0102030405060708, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}},
		{"quad swap", QuadSwap64, 0x0102030405060708, []byte{0x05, 0x06, 0x07, 0x08, 0x01, 0x02, 0x03, 0x04}},
		{"pair swap", PairSwap64, 0x0102030405060708, []byte{0x07, 0x08, 0x05, 0x06, 0x03, 0x04, 0x01, 0x02}},
		{"byte swap", ByteSwap64, 0x0102030405060708, []byte{0x02, 0x01, 0x04, 0x03, 0x06, 0x05, 0x08, 0x07}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, ok := tt.order.Engine()
			require.True(t, ok)

			buf := make([]byte, 8)
			eng.PutUint64(buf, tt.value)
			assert.Equal(t, tt.bytes, buf)
			assert.Equal(t, tt.value, eng.Uint64(buf))

			appended := eng.AppendUint64(nil, tt.value)
			assert.Equal(t, tt.bytes, appended)
		})
	}
}

func TestOrder_Valid(t *testing.T) {
	assert.True(t, Big32.Valid())
	assert.True(t, PairSwap32.Valid())
	assert.False(t, Order32(3).Valid())

	assert.True(t, Big64.Valid())
	assert.True(t, ByteSwap64.Valid())
	assert.False(t, Order64(5).Valid())

	_, ok := Order32(99).Engine()
	assert.False(t, ok)
	_, ok = Order64(99).Engine()
	assert.False(t, ok)
}

func TestNativeOrders(t *testing.T) {
	o32, o64 := NativeOrders()
	if IsNativeLittleEndian() {
		assert.Equal(t, Little32, o32)
		assert.Equal(t, Little64, o64)
	} else {
		assert.Equal(t, Big32, o32)
		assert.Equal(t, Big64, o64)
	}
}
