// Package rawio moves primitive values between Go memory and block
// content buffers under the file's declared byte orders.
//
// The format declares the order of 32-bit and 64-bit payloads
// independently, so an Encoder or Decoder carries one engine per
// width. All conversions are bit preserving: the file's bit pattern is
// what moves, floats included.
//
// Strings are length-prefixed with a 64-bit length and stored as raw
// bytes with no terminator. The maximum accepted length on read is
// format.MaxStrLen; an over-length string is truncated and reported
// with errs.ErrStringTooLong, which callers surface as a minor
// failure.
package rawio

import (
	"fmt"
	"math"

	"github.com/gotraj/tng/endian"
	"github.com/gotraj/tng/errs"
	"github.com/gotraj/tng/format"
	"github.com/gotraj/tng/internal/pool"
)

// Encoder serializes values into a pooled buffer.
//
// Note: the Encoder is NOT thread-safe and NOT reusable after Finish.
type Encoder struct {
	buf   *pool.ByteBuffer
	eng32 endian.Engine32
	eng64 endian.Engine64
}

// NewEncoder creates an encoder writing under the given byte orders.
// Both orders must be valid; writers obtain theirs from
// endian.NativeOrders.
func NewEncoder(o32 endian.Order32, o64 endian.Order64) *Encoder {
	eng32, _ := o32.Engine()
	eng64, _ := o64.Engine()

	return &Encoder{
		buf:   pool.GetBlockBuffer(),
		eng32: eng32,
		eng64: eng64,
	}
}

// Bytes returns the accumulated bytes. The slice is valid until the
// next append or Finish.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Len returns the number of bytes accumulated so far.
func (e *Encoder) Len() int {
	return e.buf.Len()
}

// Finish returns the internal buffer to the pool. The encoder is no
// longer usable afterwards.
func (e *Encoder) Finish() {
	pool.PutBlockBuffer(e.buf)
	e.buf = nil
}

// Uint8 appends a single byte.
func (e *Encoder) Uint8(v uint8) {
	e.buf.B = append(e.buf.B, v)
}

// Uint32 appends a 32-bit value in the declared 32-bit order.
func (e *Encoder) Uint32(v uint32) {
	e.buf.B = e.eng32.AppendUint32(e.buf.B, v)
}

// Int32 appends a 32-bit signed value, bit preserving.
func (e *Encoder) Int32(v int32) {
	e.Uint32(uint32(v))
}

// Uint64 appends a 64-bit value in the declared 64-bit order.
func (e *Encoder) Uint64(v uint64) {
	e.buf.B = e.eng64.AppendUint64(e.buf.B, v)
}

// Int64 appends a 64-bit signed value, bit preserving.
func (e *Encoder) Int64(v int64) {
	e.Uint64(uint64(v))
}

// Float32 appends the bit pattern of a 32-bit float.
func (e *Encoder) Float32(v float32) {
	e.Uint32(math.Float32bits(v))
}

// Float64 appends the bit pattern of a 64-bit float.
func (e *Encoder) Float64(v float64) {
	e.Uint64(math.Float64bits(v))
}

// String appends a 64-bit length prefix followed by the raw bytes.
func (e *Encoder) String(s string) {
	e.Uint64(uint64(len(s)))
	e.buf.B = append(e.buf.B, s...)
}

// Raw appends bytes verbatim.
func (e *Encoder) Raw(b []byte) {
	e.buf.B = append(e.buf.B, b...)
}

// Decoder parses values out of a byte slice.
//
// Note: the Decoder is NOT thread-safe.
type Decoder struct {
	data  []byte
	off   int
	eng32 endian.Engine32
	eng64 endian.Engine64
}

// NewDecoder creates a decoder over data under the given byte orders.
// Unknown descriptors are rejected.
func NewDecoder(data []byte, o32 endian.Order32, o64 endian.Order64) (*Decoder, error) {
	eng32, ok := o32.Engine()
	if !ok {
		return nil, fmt.Errorf("%w: 32-bit descriptor %d", errs.ErrBadEndianness, o32)
	}
	eng64, ok := o64.Engine()
	if !ok {
		return nil, fmt.Errorf("%w: 64-bit descriptor %d", errs.ErrBadEndianness, o64)
	}

	return &Decoder{data: data, eng32: eng32, eng64: eng64}, nil
}

// Pos returns the current read offset.
func (d *Decoder) Pos() int {
	return d.off
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.off
}

// Seek moves the read offset to an absolute position within the data.
func (d *Decoder) Seek(off int) error {
	if off < 0 || off > len(d.data) {
		return fmt.Errorf("%w: seek to %d of %d", errs.ErrTruncatedBlock, off, len(d.data))
	}
	d.off = off

	return nil
}

func (d *Decoder) take(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", errs.ErrTruncatedBlock, n, d.Remaining())
	}
	b := d.data[d.off : d.off+n]
	d.off += n

	return b, nil
}

// Uint8 reads a single byte.
func (d *Decoder) Uint8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

// Uint32 reads a 32-bit value in the declared 32-bit order.
func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}

	return d.eng32.Uint32(b), nil
}

// Int32 reads a 32-bit signed value, bit preserving.
func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()

	return int32(v), err
}

// Uint64 reads a 64-bit value in the declared 64-bit order.
func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}

	return d.eng64.Uint64(b), nil
}

// Int64 reads a 64-bit signed value, bit preserving.
func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()

	return int64(v), err
}

// Float32 reads the bit pattern of a 32-bit float.
func (d *Decoder) Float32() (float32, error) {
	v, err := d.Uint32()

	return math.Float32frombits(v), err
}

// Float64 reads the bit pattern of a 64-bit float.
func (d *Decoder) Float64() (float64, error) {
	v, err := d.Uint64()

	return math.Float64frombits(v), err
}

// String reads a length-prefixed string. A string longer than
// format.MaxStrLen is consumed in full but returned truncated together
// with errs.ErrStringTooLong; the stream stays aligned so the caller
// can continue after reporting the minor failure.
func (d *Decoder) String() (string, error) {
	n, err := d.Uint64()
	if err != nil {
		return "", err
	}
	if n > uint64(d.Remaining()) {
		return "", fmt.Errorf("%w: string of %d bytes, have %d", errs.ErrTruncatedBlock, n, d.Remaining())
	}

	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	if n > format.MaxStrLen {
		return string(b[:format.MaxStrLen]), fmt.Errorf("%w: %d bytes", errs.ErrStringTooLong, n)
	}

	return string(b), nil
}

// Raw reads n bytes verbatim.
func (d *Decoder) Raw(n int) ([]byte, error) {
	return d.take(n)
}
