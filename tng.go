// Package tng implements the TNG binary container for molecular
// dynamics trajectories: per-frame particle positions, velocities,
// forces and box shapes, plus the molecular topology and descriptive
// metadata, stored as a linked sequence of digest-protected blocks.
//
// # Core features
//
//   - Generic block framing with per-block 16-byte content digests
//   - Frame sets indexed by a two-level skip list for fast seeking
//   - Per-block codec selection through a registry (gzip, zstd, lz4,
//     s2 built in; codec 0 is uncompressed)
//   - Sparse particle partitioning so parallel writers can each own a
//     disjoint particle range
//   - Heterogeneous sampling: every data block carries its own stride
//
// # Writing a trajectory
//
//	s, _ := tng.New()
//	s.SetOutputFile("run.tng")
//
//	mol := s.Topology().AddMolecule("water")
//	res := mol.AddChain("W").AddResidue("WAT")
//	res.AddAtom("O", "O")
//	res.AddAtom("HO1", "H")
//	res.AddAtom("HO2", "H")
//	mol.SetCount(1000)
//
//	s.WriteFileHeaders(tng.UseDigest)
//
//	positions, _ := trajectory.NewFloat32Values(10, 3000, 3, coords)
//	s.NewFrameSet(0, 10)
//	s.AddParticleMapping(0, table)
//	s.AddParticleDataBlock(tng.BlockPositions, "POSITIONS",
//	    tng.TrajectoryBlock, 10, 1, 0, 3000, tng.CodecUncompressed, positions)
//	s.WriteFrameSet(tng.UseDigest)
//	s.Close()
//
// # Reading it back
//
//	s, _ := tng.New()
//	s.SetInputFile("run.tng")
//	s.ReadFileHeaders(tng.UseDigest)
//	for s.ReadNextFrameSet(tng.UseDigest) != io.EOF {
//	    values, first, _ := s.ParticleDataGet(tng.BlockPositions)
//	    ...
//	}
//
// # Package structure
//
// This package re-exports the common entry points; the full surface
// lives in the sub-packages: trajectory (sessions, frame sets, data
// blocks), topology (the molecular system), block (generic framing),
// compress (codec registry), digest, endian, rawio and format.
package tng

import (
	"github.com/gotraj/tng/digest"
	"github.com/gotraj/tng/format"
	"github.com/gotraj/tng/trajectory"
)

// Digest modes.
const (
	SkipDigest = digest.Skip
	UseDigest  = digest.Use
)

// Block types.
const (
	NonTrajectoryBlock = format.NonTrajectoryBlock
	TrajectoryBlock    = format.TrajectoryBlock
)

// Reserved trajectory data block IDs.
const (
	BlockBoxShape   = format.BlockBoxShape
	BlockPositions  = format.BlockPositions
	BlockVelocities = format.BlockVelocities
	BlockForces     = format.BlockForces
)

// Datatype tags.
const (
	TypeChar   = format.TypeChar
	TypeInt    = format.TypeInt
	TypeFloat  = format.TypeFloat
	TypeDouble = format.TypeDouble
)

// CodecUncompressed is the identity codec.
const CodecUncompressed = format.CodecUncompressed

// Session is a trajectory session; see the trajectory package.
type Session = trajectory.Session

// New creates an empty trajectory session.
func New(opts ...trajectory.Option) (*Session, error) {
	return trajectory.New(opts...)
}

// WithMediumStride sets the medium stride tier of the frame set skip
// list.
func WithMediumStride(n int64) trajectory.Option {
	return trajectory.WithMediumStride(n)
}

// WithLongStride sets the long stride tier of the frame set skip list.
func WithLongStride(n int64) trajectory.Option {
	return trajectory.WithLongStride(n)
}

// WithFramesPerFrameSet sets the default frame span of a frame set.
func WithFramesPerFrameSet(n int64) trajectory.Option {
	return trajectory.WithFramesPerFrameSet(n)
}
