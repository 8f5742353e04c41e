// Package trajectory implements the file engine: the session that owns
// the file handles and the topology, the header preamble, and the
// linked sequence of frame sets with their mapping and data blocks.
//
// A session moves through a simple lifecycle: created empty, populated
// either by the writer (topology, metadata, frame sets) or by reading
// a header preamble, then streamed forward one frame set at a time,
// and finally closed. A single session is single-threaded with respect
// to its own file handles; the only blocking calls are file reads,
// writes and seeks.
//
// Writing:
//
//	s, _ := trajectory.New()
//	s.SetOutputFile("run.tng")
//	mol := s.Topology().AddMolecule("water")
//	...
//	s.WriteFileHeaders(digest.Use)
//	s.NewFrameSet(0, 100)
//	s.AddParticleMapping(0, table)
//	s.AddParticleDataBlock(...)
//	s.WriteFrameSet(digest.Use)
//	s.Close()
//
// Reading mirrors it with ReadFileHeaders and ReadNextFrameSet.
package trajectory

import (
	"fmt"
	"os"
	"time"

	"github.com/gotraj/tng/endian"
	"github.com/gotraj/tng/errs"
	"github.com/gotraj/tng/format"
	"github.com/gotraj/tng/internal/options"
	"github.com/gotraj/tng/topology"
)

// Default stride tiers and frame-set sizing, adjustable per session
// with options or setters.
const (
	DefaultMediumStride      = 100
	DefaultLongStride        = 10000
	DefaultFramesPerFrameSet = 100
)

// Session is a trajectory data container bound to at most one input
// and one output file.
//
// Note: the Session is NOT safe for concurrent use. Topology, the
// current frame set and all block buffers are owned by exactly one
// session.
type Session struct {
	inPath  string
	outPath string
	in      *os.File
	out     *os.File
	inLen   int64
	inPos   int64
	outPos  int64

	// Byte orders: r* are the input file's declared orders, recovered
	// from its endianness block; w* are used for everything written.
	r32 endian.Order32
	r64 endian.Order64
	w32 endian.Order32
	w64 endian.Order64

	mediumStride      int64
	longStride        int64
	framesPerFrameSet int64

	top *topology.Topology

	// cur is the frame set being built or the last one read/written;
	// curWritten marks that it is on disk (or was read from disk)
	// rather than pending.
	cur        *FrameSet
	curWritten bool

	// lastFrameEnd is the last frame number covered by a written frame
	// set, -1 before any write; NewFrameSet enforces ascending order
	// against it.
	lastFrameEnd int64

	numFrames   int64
	varAtoms    bool
	nonTrajData []*DataBlock
	blockNames  map[format.BlockID]string

	// Positions of frame sets written this session, in write order;
	// the back-patching of stride offsets indexes into it.
	frameSetPos []int64

	// firstFrameSetPos is the file position of the first frame set of
	// the input file, recorded while reading headers.
	firstFrameSetPos int64

	creationTime time.Time

	firstProgram  string
	lastProgram   string
	firstUser     string
	lastUser      string
	firstComputer string
	lastComputer  string
	firstSig      string
	lastSig       string
	forcefield    string

	headerWritten bool
	headerRead    bool
	closed        bool
}

// Option configures a Session at creation time.
type Option = options.Option[*Session]

// WithMediumStride sets the medium stride tier: every how many frame
// sets a medium-stride skip pointer is emitted.
func WithMediumStride(n int64) Option {
	return options.New(func(s *Session) error {
		if n <= 0 {
			return fmt.Errorf("%w: medium stride %d", errs.ErrInvalidStride, n)
		}
		s.mediumStride = n

		return nil
	})
}

// WithLongStride sets the long stride tier.
func WithLongStride(n int64) Option {
	return options.New(func(s *Session) error {
		if n <= 0 {
			return fmt.Errorf("%w: long stride %d", errs.ErrInvalidStride, n)
		}
		s.longStride = n

		return nil
	})
}

// WithFramesPerFrameSet sets the default frame span of a frame set,
// used by WriteFrameInterval when partitioning long intervals.
func WithFramesPerFrameSet(n int64) Option {
	return options.New(func(s *Session) error {
		if n <= 0 {
			return fmt.Errorf("%w: frames per frame set %d", errs.ErrInvalidCount, n)
		}
		s.framesPerFrameSet = n

		return nil
	})
}

// WithVariableParticleCount marks the trajectory as carrying
// per-frame-set particle counts that may differ from the topology
// total.
func WithVariableParticleCount() Option {
	return options.NoError(func(s *Session) {
		s.varAtoms = true
	})
}

// New creates an empty session. Writers record the host's native byte
// orders; readers recover the input file's orders from its endianness
// block.
func New(opts ...Option) (*Session, error) {
	o32, o64 := endian.NativeOrders()

	s := &Session{
		r32:               o32,
		r64:               o64,
		w32:               o32,
		w64:               o64,
		mediumStride:      DefaultMediumStride,
		longStride:        DefaultLongStride,
		framesPerFrameSet: DefaultFramesPerFrameSet,
		lastFrameEnd:      -1,
		top:               topology.New(),
		creationTime:      time.Now(),
		blockNames: map[format.BlockID]string{
			format.BlockBoxShape:   "BOX SHAPE",
			format.BlockPositions:  "POSITIONS",
			format.BlockVelocities: "VELOCITIES",
			format.BlockForces:     "FORCES",
		},
	}

	if err := options.Apply(s, opts...); err != nil {
		return nil, errs.Critical(err)
	}

	return s, nil
}

// Close releases both file handles. The session is unusable afterwards.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.in != nil {
		err = s.in.Close()
		s.in = nil
	}
	if s.out != nil {
		if cerr := s.out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.out = nil
	}
	if err != nil {
		return errs.Critical(fmt.Errorf("close: %w", err))
	}

	return nil
}

func (s *Session) checkOpen() error {
	if s.closed {
		return errs.Critical(errs.ErrClosed)
	}

	return nil
}

// SetInputFile opens the file to read from. Any previously opened
// input is closed first.
func (s *Session) SetInputFile(path string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errs.Critical(fmt.Errorf("open input: %w", err))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return errs.Critical(fmt.Errorf("stat input: %w", err))
	}

	if s.in != nil {
		s.in.Close()
	}
	s.in = f
	s.inPath = path
	s.inLen = info.Size()
	s.inPos = 0
	s.headerRead = false

	return nil
}

// SetOutputFile creates (or truncates) the file to write to.
func (s *Session) SetOutputFile(path string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errs.Critical(fmt.Errorf("open output: %w", err))
	}

	if s.out != nil {
		s.out.Close()
	}
	s.out = f
	s.outPath = path
	s.outPos = 0
	s.headerWritten = false

	return nil
}

// InputFilePath returns the input path, empty if unset.
func (s *Session) InputFilePath() string { return s.inPath }

// OutputFilePath returns the output path, empty if unset.
func (s *Session) OutputFilePath() string { return s.outPath }

// InputFilePos returns the read cursor in the input file.
func (s *Session) InputFilePos() int64 { return s.inPos }

// OutputFilePos returns the write cursor in the output file.
func (s *Session) OutputFilePos() int64 { return s.outPos }

// InputFileLen returns the input file byte length, 0 if no input set.
func (s *Session) InputFileLen() int64 { return s.inLen }

// MediumStrideLength returns the medium stride tier.
func (s *Session) MediumStrideLength() int64 { return s.mediumStride }

// SetMediumStrideLength sets the medium stride tier.
func (s *Session) SetMediumStrideLength(n int64) error {
	if n <= 0 {
		return errs.Critical(fmt.Errorf("%w: medium stride %d", errs.ErrInvalidStride, n))
	}
	s.mediumStride = n

	return nil
}

// LongStrideLength returns the long stride tier.
func (s *Session) LongStrideLength() int64 { return s.longStride }

// SetLongStrideLength sets the long stride tier.
func (s *Session) SetLongStrideLength(n int64) error {
	if n <= 0 {
		return errs.Critical(fmt.Errorf("%w: long stride %d", errs.ErrInvalidStride, n))
	}
	s.longStride = n

	return nil
}

// NumFramesPerFrameSet returns the default frame span of a frame set.
func (s *Session) NumFramesPerFrameSet() int64 { return s.framesPerFrameSet }

// Topology returns the molecular system owned by the session.
func (s *Session) Topology() *topology.Topology { return s.top }

// NumParticles returns the particle count of the current frame set
// when it declares one, and the topology total otherwise. Per-frame-set
// counts are legal for variable-particle trajectories.
func (s *Session) NumParticles() int64 {
	if s.cur != nil && s.cur.NParticles > 0 {
		return s.cur.NParticles
	}

	return s.top.NumParticles()
}

// NumMolecules returns the total number of molecule instances.
func (s *Session) NumMolecules() int64 { return s.top.NumMolecules() }

// NumFrames returns the total frames written or scanned this session.
func (s *Session) NumFrames() int64 { return s.numFrames }

// CurrentFrameSet returns the frame set being built or the last one
// read, nil if neither exists.
func (s *Session) CurrentFrameSet() *FrameSet { return s.cur }

// TimeStr returns the creation time as an ISO-8601 string.
func (s *Session) TimeStr() string {
	return s.creationTime.UTC().Format("2006-01-02T15:04:05Z")
}

// Metadata setters and getters. The first/last pairs record the
// program, user, computer and signature that created the file and
// that last modified it.

func (s *Session) FirstProgramName() string        { return s.firstProgram }
func (s *Session) SetFirstProgramName(name string) { s.firstProgram = name }
func (s *Session) LastProgramName() string         { return s.lastProgram }
func (s *Session) SetLastProgramName(name string)  { s.lastProgram = name }

func (s *Session) FirstUserName() string        { return s.firstUser }
func (s *Session) SetFirstUserName(name string) { s.firstUser = name }
func (s *Session) LastUserName() string         { return s.lastUser }
func (s *Session) SetLastUserName(name string)  { s.lastUser = name }

func (s *Session) FirstComputerName() string        { return s.firstComputer }
func (s *Session) SetFirstComputerName(name string) { s.firstComputer = name }
func (s *Session) LastComputerName() string         { return s.lastComputer }
func (s *Session) SetLastComputerName(name string)  { s.lastComputer = name }

func (s *Session) FirstSignature() string       { return s.firstSig }
func (s *Session) SetFirstSignature(sig string) { s.firstSig = sig }
func (s *Session) LastSignature() string        { return s.lastSig }
func (s *Session) SetLastSignature(sig string)  { s.lastSig = sig }

func (s *Session) ForcefieldName() string        { return s.forcefield }
func (s *Session) SetForcefieldName(name string) { s.forcefield = name }
