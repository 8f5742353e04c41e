package trajectory

import (
	"fmt"

	"github.com/gotraj/tng/errs"
	"github.com/gotraj/tng/format"
)

// Values is a tagged value array, the in-memory form of a data block
// payload. The storage is flat, laid out frame-major, then
// particle-major, then value-minor; Frames is the stored (post-stride)
// frame count and Particles is 1 for non-particle data.
//
// Exactly one of the typed slices is populated, selected by the
// datatype tag; callers switch on Type before reading.
type Values struct {
	dtype          format.DataType
	frames         int64
	particles      int64
	valuesPerFrame int64

	f32 []float32
	f64 []float64
	i32 []int32
	str []string
}

// Type returns the datatype tag.
func (v *Values) Type() format.DataType { return v.dtype }

// Frames returns the stored frame count (after stride).
func (v *Values) Frames() int64 { return v.frames }

// Particles returns the particle count, 1 for non-particle data.
func (v *Values) Particles() int64 { return v.particles }

// ValuesPerFrame returns the number of values per frame and particle.
func (v *Values) ValuesPerFrame() int64 { return v.valuesPerFrame }

// Elements returns the total element count.
func (v *Values) Elements() int64 { return v.frames * v.particles * v.valuesPerFrame }

// Float32s returns the flat float32 storage; nil unless Type is
// format.TypeFloat.
func (v *Values) Float32s() []float32 { return v.f32 }

// Float64s returns the flat float64 storage; nil unless Type is
// format.TypeDouble.
func (v *Values) Float64s() []float64 { return v.f64 }

// Int32s returns the flat int32 storage; nil unless Type is
// format.TypeInt.
func (v *Values) Int32s() []int32 { return v.i32 }

// Strings returns the flat string storage; nil unless Type is
// format.TypeChar.
func (v *Values) Strings() []string { return v.str }

// AsFloat32s returns the flat float32 storage, failing minor when the
// array holds another datatype.
func (v *Values) AsFloat32s() ([]float32, error) {
	if v.dtype != format.TypeFloat {
		return nil, errs.Minor(fmt.Errorf("%w: have %s, want %s", errs.ErrTypeMismatch, v.dtype, format.TypeFloat))
	}

	return v.f32, nil
}

// AsFloat64s returns the flat float64 storage, failing minor when the
// array holds another datatype.
func (v *Values) AsFloat64s() ([]float64, error) {
	if v.dtype != format.TypeDouble {
		return nil, errs.Minor(fmt.Errorf("%w: have %s, want %s", errs.ErrTypeMismatch, v.dtype, format.TypeDouble))
	}

	return v.f64, nil
}

// AsInt32s returns the flat int32 storage, failing minor when the
// array holds another datatype.
func (v *Values) AsInt32s() ([]int32, error) {
	if v.dtype != format.TypeInt {
		return nil, errs.Minor(fmt.Errorf("%w: have %s, want %s", errs.ErrTypeMismatch, v.dtype, format.TypeInt))
	}

	return v.i32, nil
}

// AsStrings returns the flat string storage, failing minor when the
// array holds another datatype.
func (v *Values) AsStrings() ([]string, error) {
	if v.dtype != format.TypeChar {
		return nil, errs.Minor(fmt.Errorf("%w: have %s, want %s", errs.ErrTypeMismatch, v.dtype, format.TypeChar))
	}

	return v.str, nil
}

func (v *Values) index(frame, particle, value int64) int64 {
	return (frame*v.particles+particle)*v.valuesPerFrame + value
}

// Float32At returns the element at (frame, particle, value) of a
// float32 array. Indices are not bounds-checked beyond the slice's own
// checks; frame is a stored-frame index.
func (v *Values) Float32At(frame, particle, value int64) float32 {
	return v.f32[v.index(frame, particle, value)]
}

// Float64At returns the element at (frame, particle, value) of a
// float64 array.
func (v *Values) Float64At(frame, particle, value int64) float64 {
	return v.f64[v.index(frame, particle, value)]
}

// Int32At returns the element at (frame, particle, value) of an int32
// array.
func (v *Values) Int32At(frame, particle, value int64) int32 {
	return v.i32[v.index(frame, particle, value)]
}

// StringAt returns the element at (frame, particle, value) of a char
// array.
func (v *Values) StringAt(frame, particle, value int64) string {
	return v.str[v.index(frame, particle, value)]
}

func validShape(frames, particles, valuesPerFrame, elements int64) error {
	if frames < 1 || particles < 1 || valuesPerFrame < 1 {
		return errs.Critical(fmt.Errorf("%w: shape (%d, %d, %d)", errs.ErrInvalidCount, frames, particles, valuesPerFrame))
	}
	if want := frames * particles * valuesPerFrame; elements != want {
		return errs.Critical(fmt.Errorf("%w: %d elements for shape (%d, %d, %d), want %d",
			errs.ErrInvalidCount, elements, frames, particles, valuesPerFrame, want))
	}

	return nil
}

// NewFloat32Values wraps a flat float32 slice as a value array of the
// given shape. The slice length must equal frames*particles*valuesPerFrame.
func NewFloat32Values(frames, particles, valuesPerFrame int64, data []float32) (*Values, error) {
	if err := validShape(frames, particles, valuesPerFrame, int64(len(data))); err != nil {
		return nil, err
	}

	return &Values{dtype: format.TypeFloat, frames: frames, particles: particles, valuesPerFrame: valuesPerFrame, f32: data}, nil
}

// NewFloat64Values wraps a flat float64 slice as a value array.
func NewFloat64Values(frames, particles, valuesPerFrame int64, data []float64) (*Values, error) {
	if err := validShape(frames, particles, valuesPerFrame, int64(len(data))); err != nil {
		return nil, err
	}

	return &Values{dtype: format.TypeDouble, frames: frames, particles: particles, valuesPerFrame: valuesPerFrame, f64: data}, nil
}

// NewInt32Values wraps a flat int32 slice as a value array.
func NewInt32Values(frames, particles, valuesPerFrame int64, data []int32) (*Values, error) {
	if err := validShape(frames, particles, valuesPerFrame, int64(len(data))); err != nil {
		return nil, err
	}

	return &Values{dtype: format.TypeInt, frames: frames, particles: particles, valuesPerFrame: valuesPerFrame, i32: data}, nil
}

// NewStringValues wraps a flat string slice as a char value array.
func NewStringValues(frames, particles, valuesPerFrame int64, data []string) (*Values, error) {
	if err := validShape(frames, particles, valuesPerFrame, int64(len(data))); err != nil {
		return nil, err
	}

	return &Values{dtype: format.TypeChar, frames: frames, particles: particles, valuesPerFrame: valuesPerFrame, str: data}, nil
}

// newZeroValues allocates a zero-filled value array of the given shape.
func newZeroValues(dtype format.DataType, frames, particles, valuesPerFrame int64) *Values {
	v := &Values{dtype: dtype, frames: frames, particles: particles, valuesPerFrame: valuesPerFrame}
	n := frames * particles * valuesPerFrame
	switch dtype {
	case format.TypeFloat:
		v.f32 = make([]float32, n)
	case format.TypeDouble:
		v.f64 = make([]float64, n)
	case format.TypeInt:
		v.i32 = make([]int32, n)
	case format.TypeChar:
		v.str = make([]string, n)
	}

	return v
}

// copyElement copies one element from src to dst; both must share a
// datatype.
func copyElement(dst *Values, di int64, src *Values, si int64) {
	switch dst.dtype {
	case format.TypeFloat:
		dst.f32[di] = src.f32[si]
	case format.TypeDouble:
		dst.f64[di] = src.f64[si]
	case format.TypeInt:
		dst.i32[di] = src.i32[si]
	case format.TypeChar:
		dst.str[di] = src.str[si]
	}
}

// copyRow copies one (frame, particle) row of valuesPerFrame elements.
func copyRow(dst *Values, dstFrame, dstParticle int64, src *Values, srcFrame, srcParticle int64) {
	di := dst.index(dstFrame, dstParticle, 0)
	si := src.index(srcFrame, srcParticle, 0)
	for k := int64(0); k < dst.valuesPerFrame; k++ {
		copyElement(dst, di+k, src, si+k)
	}
}

// sliceFrames returns a copy of the stored-frame range [from, to).
func (v *Values) sliceFrames(from, to int64) *Values {
	out := newZeroValues(v.dtype, to-from, v.particles, v.valuesPerFrame)
	lo := v.index(from, 0, 0)
	hi := v.index(to, 0, 0)
	switch v.dtype {
	case format.TypeFloat:
		copy(out.f32, v.f32[lo:hi])
	case format.TypeDouble:
		copy(out.f64, v.f64[lo:hi])
	case format.TypeInt:
		copy(out.i32, v.i32[lo:hi])
	case format.TypeChar:
		copy(out.str, v.str[lo:hi])
	}

	return out
}
