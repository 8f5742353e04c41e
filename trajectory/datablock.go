package trajectory

import (
	"errors"
	"fmt"

	"github.com/gotraj/tng/compress"
	"github.com/gotraj/tng/endian"
	"github.com/gotraj/tng/errs"
	"github.com/gotraj/tng/format"
	"github.com/gotraj/tng/rawio"
)

// DataBlock is one data stream of a frame set (or of the header region
// for non-trajectory data). Particle-dependent blocks are paired with
// the nearest preceding mapping block of the same frame set, which
// defines their particle index space.
type DataBlock struct {
	ID   format.BlockID
	Name string
	Dep  format.Dependency

	// Codec selects the byte transform applied to the payload.
	Codec format.CodecID

	// NFrames is the frame span covered, FirstFrame the absolute
	// number of the first frame with data, Stride the number of frames
	// between stored samples. Non-frame-dependent blocks cover one
	// frame with stride 1.
	NFrames    int64
	FirstFrame int64
	Stride     int64

	// FirstParticle and NParticles delimit the local particle rows of
	// a particle-dependent block.
	FirstParticle int64
	NParticles    int64

	// Values is the decoded payload.
	Values *Values

	mapping *ParticleMapping // pairing, set while reading or writing a frame set
}

// storedFrames returns the number of stored samples given the frame
// span and stride.
func storedFrames(nFrames, stride int64) int64 {
	return (nFrames + stride - 1) / stride
}

// shape returns the codec shape descriptor of the block.
func (db *DataBlock) shape() compress.Shape {
	particles := int64(1)
	if db.Dep.Particle() {
		particles = db.NParticles
	}

	return compress.Shape{
		Type:           db.Values.Type(),
		Frames:         storedFrames(db.NFrames, db.Stride),
		Particles:      particles,
		ValuesPerFrame: db.Values.ValuesPerFrame(),
	}
}

// serializeValues writes the flat element grid in the declared byte
// orders, frame-major, particle-major, value-minor.
func serializeValues(v *Values, o32 endian.Order32, o64 endian.Order64) []byte {
	enc := rawio.NewEncoder(o32, o64)
	defer enc.Finish()

	switch v.Type() {
	case format.TypeFloat:
		for _, x := range v.f32 {
			enc.Float32(x)
		}
	case format.TypeDouble:
		for _, x := range v.f64 {
			enc.Float64(x)
		}
	case format.TypeInt:
		for _, x := range v.i32 {
			enc.Int32(x)
		}
	case format.TypeChar:
		for _, s := range v.str {
			enc.String(s)
		}
	}

	out := make([]byte, enc.Len())
	copy(out, enc.Bytes())

	return out
}

// deserializeValues parses a raw (decompressed) element grid.
func deserializeValues(data []byte, dtype format.DataType, frames, particles, valuesPerFrame int64, o32 endian.Order32, o64 endian.Order64) (*Values, error) {
	n := frames * particles * valuesPerFrame
	if size := dtype.Size(); size > 0 && int64(len(data)) != n*int64(size) {
		return nil, errs.Critical(fmt.Errorf("%w: payload %d bytes for %d elements of %s",
			errs.ErrBadBlockFraming, len(data), n, dtype))
	}

	dec, err := rawio.NewDecoder(data, o32, o64)
	if err != nil {
		return nil, errs.Critical(err)
	}

	v := newZeroValues(dtype, frames, particles, valuesPerFrame)
	var minor error
	switch dtype {
	case format.TypeFloat:
		for i := range v.f32 {
			if v.f32[i], err = dec.Float32(); err != nil {
				return nil, errs.Critical(err)
			}
		}
	case format.TypeDouble:
		for i := range v.f64 {
			if v.f64[i], err = dec.Float64(); err != nil {
				return nil, errs.Critical(err)
			}
		}
	case format.TypeInt:
		for i := range v.i32 {
			if v.i32[i], err = dec.Int32(); err != nil {
				return nil, errs.Critical(err)
			}
		}
	case format.TypeChar:
		for i := range v.str {
			s, err := dec.String()
			if err != nil {
				if !errors.Is(err, errs.ErrStringTooLong) {
					return nil, errs.Critical(err)
				}
				minor = errs.Worst(minor, errs.Minor(err))
			}
			v.str[i] = s
		}
	}

	return v, minor
}

// marshalDataBlock serializes the data block content: count fields
// followed by the codec output.
func marshalDataBlock(db *DataBlock, o32 endian.Order32, o64 endian.Order64) ([]byte, error) {
	codec, err := compress.Lookup(db.Codec)
	if err != nil {
		return nil, errs.Critical(fmt.Errorf("%w: %v", errs.ErrUnknownCodec, err))
	}

	raw := serializeValues(db.Values, o32, o64)
	payload, err := codec.Compress(raw, db.shape())
	if err != nil {
		return nil, errs.Critical(fmt.Errorf("codec %s: %w", db.Codec, err))
	}

	enc := rawio.NewEncoder(o32, o64)
	defer enc.Finish()

	enc.Uint8(uint8(db.Values.Type()))
	enc.Uint8(uint8(db.Dep))
	enc.Int64(db.Values.ValuesPerFrame())
	enc.Int64(int64(db.Codec))
	if db.Dep.Frame() {
		enc.Int64(db.NFrames)
		enc.Int64(db.FirstFrame)
		enc.Int64(db.Stride)
	}
	if db.Dep.Particle() {
		enc.Int64(db.FirstParticle)
		enc.Int64(db.NParticles)
	}
	enc.Raw(payload)

	out := make([]byte, enc.Len())
	copy(out, enc.Bytes())

	return out, nil
}

// unmarshalDataBlock parses data block content. The codec identified
// by the stored ID restores the raw element grid; decode failures are
// critical, over-long char values are minor.
func unmarshalDataBlock(id format.BlockID, name string, content []byte, o32 endian.Order32, o64 endian.Order64) (*DataBlock, error) {
	dec, err := rawio.NewDecoder(content, o32, o64)
	if err != nil {
		return nil, errs.Critical(err)
	}

	db := &DataBlock{ID: id, Name: name, NFrames: 1, Stride: 1}

	dtypeRaw, err := dec.Uint8()
	if err != nil {
		return nil, errs.Critical(err)
	}
	dtype := format.DataType(dtypeRaw)
	if !dtype.Valid() {
		return nil, errs.Critical(fmt.Errorf("%w: tag %d", errs.ErrInvalidDataType, dtypeRaw))
	}

	depRaw, err := dec.Uint8()
	if err != nil {
		return nil, errs.Critical(err)
	}
	db.Dep = format.Dependency(depRaw)

	valuesPerFrame, err := dec.Int64()
	if err != nil {
		return nil, errs.Critical(err)
	}
	codecID, err := dec.Int64()
	if err != nil {
		return nil, errs.Critical(err)
	}
	db.Codec = format.CodecID(codecID)

	if db.Dep.Frame() {
		if db.NFrames, err = dec.Int64(); err != nil {
			return nil, errs.Critical(err)
		}
		if db.FirstFrame, err = dec.Int64(); err != nil {
			return nil, errs.Critical(err)
		}
		if db.Stride, err = dec.Int64(); err != nil {
			return nil, errs.Critical(err)
		}
		if db.Stride <= 0 {
			return nil, errs.Critical(fmt.Errorf("%w: %d", errs.ErrInvalidStride, db.Stride))
		}
	}
	particles := int64(1)
	if db.Dep.Particle() {
		if db.FirstParticle, err = dec.Int64(); err != nil {
			return nil, errs.Critical(err)
		}
		if db.NParticles, err = dec.Int64(); err != nil {
			return nil, errs.Critical(err)
		}
		if db.NParticles <= 0 {
			return nil, errs.Critical(fmt.Errorf("%w: %d particles", errs.ErrInvalidCount, db.NParticles))
		}
		particles = db.NParticles
	}
	if valuesPerFrame <= 0 || db.NFrames <= 0 {
		return nil, errs.Critical(fmt.Errorf("%w: %d frames, %d values per frame", errs.ErrInvalidCount, db.NFrames, valuesPerFrame))
	}

	payload, err := dec.Raw(dec.Remaining())
	if err != nil {
		return nil, errs.Critical(err)
	}

	codec, err := compress.Lookup(db.Codec)
	if err != nil {
		return nil, errs.CriticalAt(fmt.Errorf("%w: %v", errs.ErrUnknownCodec, err), int64(id), 0)
	}

	frames := storedFrames(db.NFrames, db.Stride)
	shape := compress.Shape{Type: dtype, Frames: frames, Particles: particles, ValuesPerFrame: valuesPerFrame}

	raw, err := codec.Decompress(payload, shape)
	if err != nil {
		return nil, errs.CriticalAt(fmt.Errorf("codec %s: %w", db.Codec, err), int64(id), 0)
	}

	values, verr := deserializeValues(raw, dtype, frames, particles, valuesPerFrame, o32, o64)
	if values == nil {
		return nil, verr
	}
	db.Values = values

	return db, verr
}
