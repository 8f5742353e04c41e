package trajectory

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotraj/tng/digest"
	"github.com/gotraj/tng/errs"
	"github.com/gotraj/tng/format"
	"github.com/gotraj/tng/internal/hash"
)

func identityTable(first, n int64) []int64 {
	table := make([]int64, n)
	for i := range table {
		table[i] = first + int64(i)
	}

	return table
}

// buildWaterSession creates a session with 1000 water molecules
// (3 atoms each) and the given output file.
func buildWaterSession(t *testing.T, path string, opts ...Option) *Session {
	t.Helper()

	s, err := New(opts...)
	require.NoError(t, err)
	require.NoError(t, s.SetOutputFile(path))

	mol := s.Topology().AddMolecule("water")
	res := mol.AddChain("W").AddResidue("WAT")
	res.AddAtom("O", "O")
	res.AddAtom("HO1", "H")
	res.AddAtom("HO2", "H")
	require.NoError(t, mol.AddBond(0, 1))
	require.NoError(t, mol.AddBond(0, 2))
	require.NoError(t, mol.SetCount(1000))

	return s
}

func TestEmptyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.tng")

	s, err := New()
	require.NoError(t, err)
	require.NoError(t, s.SetOutputFile(path))
	s.SetFirstProgramName("enginetest")
	s.SetFirstUserName("nobody")
	s.SetForcefieldName("amber99")
	require.NoError(t, s.WriteFileHeaders(digest.Skip))
	require.NoError(t, s.Close())

	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.SetInputFile(path))
	require.NoError(t, r.ReadFileHeaders(digest.Skip))

	assert.Equal(t, "enginetest", r.FirstProgramName())
	assert.Equal(t, "nobody", r.FirstUserName())
	assert.Equal(t, "amber99", r.ForcefieldName())
	assert.Zero(t, r.NumParticles())
	assert.Equal(t, s.TimeStr(), r.TimeStr())
	assert.Len(t, r.TimeStr(), 20)

	// Frame set count is zero.
	assert.Equal(t, io.EOF, r.ReadNextFrameSet(digest.Skip))
	require.NoError(t, r.Close())
}

func TestWaterPositionsRoundTrip(t *testing.T) {
	const (
		nFrames   = 10
		particles = 3000
		vpf       = 3
	)
	path := filepath.Join(t.TempDir(), "water.tng")

	s := buildWaterSession(t, path)
	assert.Equal(t, int64(particles), s.NumParticles())

	require.NoError(t, s.WriteFileHeaders(digest.Use))
	require.NoError(t, s.NewFrameSet(0, nFrames))
	require.NoError(t, s.AddParticleMapping(0, identityTable(0, particles)))

	positions, err := NewFloat32Values(nFrames, particles, vpf, make([]float32, nFrames*particles*vpf))
	require.NoError(t, err)
	require.NoError(t, s.AddParticleDataBlock(format.BlockPositions, "POSITIONS",
		format.TrajectoryBlock, nFrames, 1, 0, particles, format.CodecUncompressed, positions))
	require.NoError(t, s.WriteFrameSet(digest.Use))
	require.NoError(t, s.Close())

	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.SetInputFile(path))
	require.NoError(t, r.ReadFileHeaders(digest.Use))
	assert.Equal(t, int64(particles), r.NumParticles())
	assert.Equal(t, int64(1000), r.NumMolecules())

	require.NoError(t, r.ReadNextFrameSet(digest.Use))
	fs := r.CurrentFrameSet()
	require.NotNil(t, fs)
	assert.Equal(t, int64(0), fs.FirstFrame)
	assert.Equal(t, int64(nFrames), fs.NFrames)
	assert.Contains(t, fs.TOC(), format.BlockPositions)
	assert.Contains(t, fs.TOC(), format.BlockParticleMapping)

	got, first, err := r.ParticleDataGet(format.BlockPositions)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first)
	assert.Equal(t, int64(nFrames), got.Frames())
	assert.Equal(t, int64(particles), got.Particles())
	assert.Equal(t, int64(vpf), got.ValuesPerFrame())

	data, err := got.AsFloat32s()
	require.NoError(t, err)
	require.Len(t, data, nFrames*particles*vpf)
	for _, v := range data {
		require.Zero(t, v)
	}

	require.NoError(t, r.Close())
}

func TestParallelPartitionsUnion(t *testing.T) {
	const (
		nFrames   = 10
		particles = 3000
		half      = particles / 2
		vpf       = 3
	)
	path := filepath.Join(t.TempDir(), "partitions.tng")

	s := buildWaterSession(t, path)
	require.NoError(t, s.WriteFileHeaders(digest.Use))
	require.NoError(t, s.NewFrameSet(0, nFrames))

	// Each partition's rows carry its own global particle number so the
	// union is checkable.
	fill := func(first int64) *Values {
		data := make([]float32, nFrames*half*vpf)
		for f := int64(0); f < nFrames; f++ {
			for p := int64(0); p < half; p++ {
				for k := int64(0); k < vpf; k++ {
					data[(f*half+p)*vpf+k] = float32(first + p)
				}
			}
		}
		v, err := NewFloat32Values(nFrames, half, vpf, data)
		require.NoError(t, err)

		return v
	}

	require.NoError(t, s.AddParticleMapping(0, identityTable(0, half)))
	require.NoError(t, s.AddParticleDataBlock(format.BlockPositions, "POSITIONS",
		format.TrajectoryBlock, nFrames, 1, 0, half, format.CodecUncompressed, fill(0)))

	require.NoError(t, s.AddParticleMapping(half, identityTable(half, half)))
	require.NoError(t, s.AddParticleDataBlock(format.BlockPositions, "POSITIONS",
		format.TrajectoryBlock, nFrames, 1, half, half, format.CodecUncompressed, fill(half)))

	require.NoError(t, s.WriteFrameSet(digest.Use))
	require.NoError(t, s.Close())

	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.SetInputFile(path))
	require.NoError(t, r.ReadFileHeaders(digest.Use))
	require.NoError(t, r.ReadNextFrameSet(digest.Use))

	require.Len(t, r.CurrentFrameSet().Mappings(), 2)
	require.Len(t, r.CurrentFrameSet().ParticleDataBlocks(), 2)

	got, first, err := r.ParticleDataGet(format.BlockPositions)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first)
	assert.Equal(t, int64(nFrames), got.Frames())
	assert.Equal(t, int64(particles), got.Particles())
	assert.Equal(t, int64(vpf), got.ValuesPerFrame())

	// No gaps, no duplicates: every global row holds its own number.
	for f := int64(0); f < nFrames; f++ {
		for p := int64(0); p < particles; p++ {
			require.Equal(t, float32(p), got.Float32At(f, p, 0), "frame %d particle %d", f, p)
		}
	}

	require.NoError(t, r.Close())
}

func TestMappingOverlapRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlap.tng")

	s := buildWaterSession(t, path)
	require.NoError(t, s.WriteFileHeaders(digest.Skip))
	require.NoError(t, s.NewFrameSet(0, 1))
	require.NoError(t, s.AddParticleMapping(0, identityTable(0, 10)))

	err := s.AddParticleMapping(5, identityTable(5, 10))
	require.ErrorIs(t, err, errs.ErrMappingOverlap)
	assert.True(t, errs.IsCritical(err))
	require.NoError(t, s.Close())
}

func TestFrameSetNavigation(t *testing.T) {
	const (
		nSets        = 7
		framesPerSet = 10
	)
	path := filepath.Join(t.TempDir(), "nav.tng")

	s := buildWaterSession(t, path, WithMediumStride(3), WithLongStride(5))
	require.NoError(t, s.WriteFileHeaders(digest.Use))

	for i := int64(0); i < nSets; i++ {
		require.NoError(t, s.NewFrameSet(i*framesPerSet, framesPerSet))

		boxData := make([]float64, framesPerSet*9)
		box, err := NewFloat64Values(framesPerSet, 1, 9, boxData)
		require.NoError(t, err)
		require.NoError(t, s.AddDataBlock(format.BlockBoxShape, "BOX SHAPE",
			format.TrajectoryBlock, framesPerSet, 1, format.CodecUncompressed, box))
		require.NoError(t, s.WriteFrameSet(digest.Use))
	}
	assert.Equal(t, int64(nSets*framesPerSet), s.NumFrames())
	require.NoError(t, s.Close())

	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.SetInputFile(path))
	require.NoError(t, r.ReadFileHeaders(digest.Use))
	assert.Equal(t, int64(3), r.MediumStrideLength())
	assert.Equal(t, int64(5), r.LongStrideLength())

	sets := make([]*FrameSet, 0, nSets)
	for {
		err := r.ReadNextFrameSet(digest.Use)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sets = append(sets, r.CurrentFrameSet())
	}
	require.Len(t, sets, nSets)

	pos := make([]int64, nSets)
	for i, fs := range sets {
		pos[i] = fs.Pos
		assert.Equal(t, int64(i*framesPerSet), fs.FirstFrame)
	}

	// Immediate neighbors.
	for i, fs := range sets {
		if i > 0 {
			assert.Equal(t, pos[i-1], fs.PrevPos, "set %d prev", i)
		} else {
			assert.Zero(t, fs.PrevPos)
		}
		if i < nSets-1 {
			assert.Equal(t, pos[i+1], fs.NextPos, "set %d next", i)
		} else {
			assert.Zero(t, fs.NextPos, "last set next is zero")
		}
	}

	// Medium stride (3): the 4th set points back to the 1st, and the
	// 1st forward to the 4th.
	assert.Equal(t, pos[0], sets[3].MediumPrevPos)
	assert.Equal(t, pos[3], sets[0].MediumNextPos)
	assert.Equal(t, pos[1], sets[4].MediumPrevPos)
	assert.Equal(t, pos[6], sets[3].MediumNextPos)
	assert.Zero(t, sets[0].MediumPrevPos)
	assert.Zero(t, sets[6].MediumNextPos)

	// Long stride (5): the 6th set points back to the 1st.
	assert.Equal(t, pos[0], sets[5].LongPrevPos)
	assert.Equal(t, pos[5], sets[0].LongNextPos)
	assert.Equal(t, pos[1], sets[6].LongPrevPos)
	assert.Zero(t, sets[4].LongPrevPos)
	assert.Zero(t, sets[6].LongNextPos)

	require.NoError(t, r.Close())
}

func TestDigestCorruptionIsMinor(t *testing.T) {
	const (
		nFrames   = 2
		particles = 30
		vpf       = 3
	)
	path := filepath.Join(t.TempDir(), "corrupt.tng")

	s := buildWaterSession(t, path)
	require.NoError(t, s.WriteFileHeaders(digest.Use))
	require.NoError(t, s.NewFrameSet(0, nFrames))
	require.NoError(t, s.AddParticleMapping(0, identityTable(0, particles)))

	positions, err := NewFloat32Values(nFrames, particles, vpf, make([]float32, nFrames*particles*vpf))
	require.NoError(t, err)
	require.NoError(t, s.AddParticleDataBlock(format.BlockPositions, "POSITIONS",
		format.TrajectoryBlock, nFrames, 1, 0, particles, format.CodecUncompressed, positions))
	require.NoError(t, s.WriteFrameSet(digest.Use))
	require.NoError(t, s.Close())

	// Flip one byte inside the positions payload: the positions block
	// is written last, so the final file byte is inside its content.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.SetInputFile(path))
	require.NoError(t, r.ReadFileHeaders(digest.Use))

	err = r.ReadNextFrameSet(digest.Use)
	require.ErrorIs(t, err, errs.ErrDigestMismatch)
	assert.True(t, errs.IsMinor(err))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, int64(format.BlockPositions), e.BlockID)

	// The payload is still returned.
	got, _, err := r.ParticleDataGet(format.BlockPositions)
	require.NoError(t, err)
	assert.Equal(t, int64(nFrames*particles*vpf), got.Elements())

	require.NoError(t, r.Close())
}

func TestDigestModeCombinations(t *testing.T) {
	writeRead := func(t *testing.T, writeMode, readMode digest.Mode) {
		t.Helper()
		path := filepath.Join(t.TempDir(), "modes.tng")

		s := buildWaterSession(t, path)
		require.NoError(t, s.WriteFileHeaders(writeMode))
		require.NoError(t, s.NewFrameSet(0, 1))
		box, err := NewFloat64Values(1, 1, 9, make([]float64, 9))
		require.NoError(t, err)
		require.NoError(t, s.AddDataBlock(format.BlockBoxShape, "BOX SHAPE",
			format.TrajectoryBlock, 1, 1, format.CodecUncompressed, box))
		require.NoError(t, s.WriteFrameSet(writeMode))
		require.NoError(t, s.Close())

		r, err := New()
		require.NoError(t, err)
		require.NoError(t, r.SetInputFile(path))
		require.NoError(t, r.ReadFileHeaders(readMode))
		require.NoError(t, r.ReadNextFrameSet(readMode))
		require.NoError(t, r.Close())
	}

	t.Run("use/use", func(t *testing.T) { writeRead(t, digest.Use, digest.Use) })
	t.Run("use/skip", func(t *testing.T) { writeRead(t, digest.Use, digest.Skip) })
	t.Run("skip/use", func(t *testing.T) { writeRead(t, digest.Skip, digest.Use) })
	t.Run("skip/skip", func(t *testing.T) { writeRead(t, digest.Skip, digest.Skip) })
}

func TestAddDataBlock_InvalidStride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stride.tng")

	s := buildWaterSession(t, path)
	require.NoError(t, s.WriteFileHeaders(digest.Skip))
	require.NoError(t, s.NewFrameSet(0, 10))

	box, err := NewFloat64Values(10, 1, 1, make([]float64, 10))
	require.NoError(t, err)

	err = s.AddDataBlock(format.BlockBoxShape, "BOX SHAPE", format.TrajectoryBlock, 10, 0, format.CodecUncompressed, box)
	require.ErrorIs(t, err, errs.ErrInvalidStride)
	assert.True(t, errs.IsCritical(err))

	err = s.AddDataBlock(format.BlockBoxShape, "BOX SHAPE", format.TrajectoryBlock, 10, -2, format.CodecUncompressed, box)
	require.ErrorIs(t, err, errs.ErrInvalidStride)
	require.NoError(t, s.Close())
}

func TestDataGet_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.tng")

	s := buildWaterSession(t, path)
	require.NoError(t, s.WriteFileHeaders(digest.Skip))
	require.NoError(t, s.NewFrameSet(0, 1))

	// A registered ID absent from the frame set is minor.
	_, err := s.DataGet(format.BlockBoxShape)
	require.ErrorIs(t, err, errs.ErrBlockNotFound)
	assert.True(t, errs.IsMinor(err))

	// An ID the session has never seen named anywhere is critical.
	_, err = s.DataGet(format.BlockID(424242))
	require.ErrorIs(t, err, errs.ErrUnknownBlockID)
	assert.True(t, errs.IsCritical(err))
	require.NoError(t, s.Close())
}

func TestStridedDataBlockRoundTrip(t *testing.T) {
	const (
		nFrames = 10
		stride  = 5
		stored  = 2
	)
	path := filepath.Join(t.TempDir(), "strided.tng")

	s := buildWaterSession(t, path)
	require.NoError(t, s.WriteFileHeaders(digest.Use))
	require.NoError(t, s.NewFrameSet(0, nFrames))

	box, err := NewFloat64Values(stored, 1, 1, []float64{1.25, 2.5})
	require.NoError(t, err)
	require.NoError(t, s.AddDataBlock(format.BlockBoxShape, "BOX SHAPE",
		format.TrajectoryBlock, nFrames, stride, format.CodecUncompressed, box))
	require.NoError(t, s.WriteFrameSet(digest.Use))
	require.NoError(t, s.Close())

	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.SetInputFile(path))
	require.NoError(t, r.ReadFileHeaders(digest.Use))
	require.NoError(t, r.ReadNextFrameSet(digest.Use))

	got, err := r.DataGet(format.BlockBoxShape)
	require.NoError(t, err)
	assert.Equal(t, int64(stored), got.Frames())

	data, err := got.AsFloat64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{1.25, 2.5}, data)

	db := r.CurrentFrameSet().DataBlocks()[0]
	assert.Equal(t, int64(stride), db.Stride)
	assert.Equal(t, int64(nFrames), db.NFrames)

	require.NoError(t, r.Close())
}

func TestNonTrajectoryDataBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "general.tng")
	customID := format.BlockID(hash.BlockID("SIMULATION TEMPERATURE"))

	s := buildWaterSession(t, path)
	temp, err := NewFloat64Values(1, 1, 1, []float64{298.15})
	require.NoError(t, err)
	require.NoError(t, s.AddDataBlock(customID, "SIMULATION TEMPERATURE",
		format.NonTrajectoryBlock, 1, 1, format.CodecUncompressed, temp))
	require.NoError(t, s.WriteFileHeaders(digest.Use))
	require.NoError(t, s.Close())

	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.SetInputFile(path))
	require.NoError(t, r.ReadFileHeaders(digest.Use))

	got, err := r.DataGet(customID)
	require.NoError(t, err)
	data, err := got.AsFloat64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{298.15}, data)

	require.NoError(t, r.Close())
}

func TestCompressedPositionsRoundTrip(t *testing.T) {
	const (
		nFrames   = 4
		particles = 30
		vpf       = 3
	)
	path := filepath.Join(t.TempDir(), "zstd.tng")

	s := buildWaterSession(t, path)
	require.NoError(t, s.WriteFileHeaders(digest.Use))
	require.NoError(t, s.NewFrameSet(0, nFrames))
	require.NoError(t, s.AddParticleMapping(0, identityTable(0, particles)))

	data := make([]float32, nFrames*particles*vpf)
	for i := range data {
		data[i] = float32(i % 97)
	}
	positions, err := NewFloat32Values(nFrames, particles, vpf, data)
	require.NoError(t, err)
	require.NoError(t, s.AddParticleDataBlock(format.BlockPositions, "POSITIONS",
		format.TrajectoryBlock, nFrames, 1, 0, particles, format.CodecZstd, positions))
	require.NoError(t, s.WriteFrameSet(digest.Use))
	require.NoError(t, s.Close())

	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.SetInputFile(path))
	require.NoError(t, r.ReadFileHeaders(digest.Use))
	require.NoError(t, r.ReadNextFrameSet(digest.Use))

	got, _, err := r.ParticleDataGet(format.BlockPositions)
	require.NoError(t, err)
	restored, err := got.AsFloat32s()
	require.NoError(t, err)
	assert.Equal(t, data, restored)

	require.NoError(t, r.Close())
}
