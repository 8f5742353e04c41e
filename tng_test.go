package tng_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotraj/tng"
	"github.com/gotraj/tng/trajectory"
)

func TestWholeFileRoundTrip(t *testing.T) {
	const (
		nSets        = 3
		framesPerSet = 10
		particles    = 3000
	)
	path := filepath.Join(t.TempDir(), "whole.tng")

	s, err := tng.New(tng.WithMediumStride(2), tng.WithLongStride(3))
	require.NoError(t, err)
	require.NoError(t, s.SetOutputFile(path))
	s.SetFirstProgramName("tngtest")

	mol := s.Topology().AddMolecule("water")
	res := mol.AddChain("W").AddResidue("WAT")
	res.AddAtom("O", "O")
	res.AddAtom("HO1", "H")
	res.AddAtom("HO2", "H")
	require.NoError(t, mol.SetCount(1000))

	require.NoError(t, s.WriteFileHeaders(tng.UseDigest))

	table := make([]int64, particles)
	for i := range table {
		table[i] = int64(i)
	}

	for i := int64(0); i < nSets; i++ {
		require.NoError(t, s.NewFrameSet(i*framesPerSet, framesPerSet))

		box, err := trajectory.NewFloat64Values(framesPerSet, 1, 9, make([]float64, framesPerSet*9))
		require.NoError(t, err)
		require.NoError(t, s.AddDataBlock(tng.BlockBoxShape, "BOX SHAPE",
			tng.TrajectoryBlock, framesPerSet, 1, tng.CodecUncompressed, box))

		require.NoError(t, s.AddParticleMapping(0, table))
		positions, err := trajectory.NewFloat32Values(framesPerSet, particles, 3, make([]float32, framesPerSet*particles*3))
		require.NoError(t, err)
		require.NoError(t, s.AddParticleDataBlock(tng.BlockPositions, "POSITIONS",
			tng.TrajectoryBlock, framesPerSet, 1, 0, particles, tng.CodecUncompressed, positions))

		require.NoError(t, s.WriteFrameSet(tng.UseDigest))
	}
	require.NoError(t, s.Close())

	r, err := tng.New()
	require.NoError(t, err)
	require.NoError(t, r.SetInputFile(path))
	require.NoError(t, r.ReadFileHeaders(tng.UseDigest))
	assert.Equal(t, int64(particles), r.NumParticles())
	assert.Equal(t, "tngtest", r.FirstProgramName())

	var read int
	for {
		err := r.ReadNextFrameSet(tng.UseDigest)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		fs := r.CurrentFrameSet()
		assert.Equal(t, int64(read)*framesPerSet, fs.FirstFrame)
		assert.Equal(t, int64(framesPerSet), fs.NFrames)

		values, first, err := r.ParticleDataGet(tng.BlockPositions)
		require.NoError(t, err)
		assert.Equal(t, int64(0), first)
		assert.Equal(t, int64(particles), values.Particles())

		read++
	}
	assert.Equal(t, nSets, read)
	require.NoError(t, r.Close())
}
