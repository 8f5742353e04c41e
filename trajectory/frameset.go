package trajectory

import (
	"errors"
	"fmt"
	"io"

	"github.com/gotraj/tng/block"
	"github.com/gotraj/tng/digest"
	"github.com/gotraj/tng/endian"
	"github.com/gotraj/tng/errs"
	"github.com/gotraj/tng/format"
	"github.com/gotraj/tng/rawio"
)

// FrameSet is one file-resident chunk of trajectory data covering a
// contiguous frame range. The six navigation offsets form a two-level
// skip list over the sequence of frame sets in the file; zero marks a
// file end.
type FrameSet struct {
	FirstFrame int64
	NFrames    int64

	// NParticles is the particle count of this frame set; zero means
	// the topology total applies.
	NParticles int64

	NextPos       int64
	PrevPos       int64
	MediumNextPos int64
	MediumPrevPos int64
	LongNextPos   int64
	LongPrevPos   int64

	// Pos is the file position of the frame set block header.
	Pos int64

	toc          []format.BlockID
	mappings     []*ParticleMapping
	particleData []*DataBlock
	data         []*DataBlock

	// unparsed holds blocks whose payload could not be decoded (for
	// example an unregistered codec); they are carried so the caller
	// can still locate them.
	unparsed []*block.Block
}

// Byte offsets of the navigation fields within frame set content,
// used when back-patching a predecessor.
const (
	frameSetNextOff       = 24
	frameSetMediumNextOff = 40
	frameSetLongNextOff   = 56
	frameSetContentSize   = 72
)

// LastFrame returns the absolute number of the last frame covered.
func (fs *FrameSet) LastFrame() int64 {
	return fs.FirstFrame + fs.NFrames - 1
}

// Covers reports whether the frame set contains the absolute frame.
func (fs *FrameSet) Covers(frame int64) bool {
	return frame >= fs.FirstFrame && frame <= fs.LastFrame()
}

// TOC returns the block IDs present in the frame set.
func (fs *FrameSet) TOC() []format.BlockID { return fs.toc }

// Mappings returns the particle mapping blocks in file order.
func (fs *FrameSet) Mappings() []*ParticleMapping { return fs.mappings }

// DataBlocks returns the non-particle data blocks in file order.
func (fs *FrameSet) DataBlocks() []*DataBlock { return fs.data }

// ParticleDataBlocks returns the particle data blocks in file order.
func (fs *FrameSet) ParticleDataBlocks() []*DataBlock { return fs.particleData }

// Unparsed returns the blocks whose payloads could not be decoded.
func (fs *FrameSet) Unparsed() []*block.Block { return fs.unparsed }

func marshalFrameSet(fs *FrameSet, o32 endian.Order32, o64 endian.Order64) []byte {
	enc := rawio.NewEncoder(o32, o64)
	defer enc.Finish()

	enc.Int64(fs.FirstFrame)
	enc.Int64(fs.NFrames)
	enc.Int64(fs.NParticles)
	enc.Int64(fs.NextPos)
	enc.Int64(fs.PrevPos)
	enc.Int64(fs.MediumNextPos)
	enc.Int64(fs.MediumPrevPos)
	enc.Int64(fs.LongNextPos)
	enc.Int64(fs.LongPrevPos)

	out := make([]byte, enc.Len())
	copy(out, enc.Bytes())

	return out
}

// NewFrameSet begins a new frame set covering nFrames frames starting
// at firstFrame. Frame sets are totally ordered by ascending first
// frame; out-of-order or non-positive spans are critical.
func (s *Session) NewFrameSet(firstFrame, nFrames int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if nFrames <= 0 || firstFrame < 0 {
		return errs.Critical(fmt.Errorf("%w: frame set (%d, %d)", errs.ErrInvalidCount, firstFrame, nFrames))
	}
	if len(s.frameSetPos) > 0 && firstFrame <= s.lastFrameEnd {
		return errs.Critical(fmt.Errorf("%w: first frame %d not after %d", errs.ErrInvalidCount, firstFrame, s.lastFrameEnd))
	}

	s.cur = &FrameSet{FirstFrame: firstFrame, NFrames: nFrames}
	s.curWritten = false

	return nil
}

// SetFrameSetParticleCount declares a per-frame-set particle count
// different from the topology total (variable-particle trajectories).
func (s *Session) SetFrameSetParticleCount(n int64) error {
	if s.cur == nil {
		return errs.Critical(errs.ErrNoFrameSet)
	}
	if n < 0 {
		return errs.Critical(fmt.Errorf("%w: %d particles", errs.ErrInvalidCount, n))
	}
	s.cur.NParticles = n

	return nil
}

// AddParticleMapping adds a mapping block covering len(table) local
// particles starting at global number firstGlobal. Mappings of one
// frame set must not overlap.
func (s *Session) AddParticleMapping(firstGlobal int64, table []int64) error {
	if s.cur == nil {
		return errs.Critical(errs.ErrNoFrameSet)
	}

	m := &ParticleMapping{FirstParticle: firstGlobal, Table: table}
	if err := m.validate(); err != nil {
		return err
	}
	for _, other := range s.cur.mappings {
		if m.overlaps(other) {
			return errs.Critical(fmt.Errorf("%w: first globals %d and %d", errs.ErrMappingOverlap, firstGlobal, other.FirstParticle))
		}
	}
	s.cur.mappings = append(s.cur.mappings, m)

	return nil
}

// AddDataBlock adds a non-particle data block. Trajectory blocks join
// the current frame set; non-trajectory blocks attach to the session
// and are written with the headers, covering a single frame.
//
// The values array must hold ceil(nFrames/stride) stored frames with
// one particle row. Stride below 1 is critical.
func (s *Session) AddDataBlock(id format.BlockID, name string, blockType format.BlockType, nFrames, stride int64, codec format.CodecID, values *Values) error {
	db, err := s.newDataBlock(id, name, blockType, nFrames, stride, codec, values)
	if err != nil {
		return err
	}
	if values.Particles() != 1 {
		return errs.Critical(fmt.Errorf("%w: %d particle rows in non-particle block", errs.ErrInvalidCount, values.Particles()))
	}

	if blockType == format.NonTrajectoryBlock {
		s.nonTrajData = append(s.nonTrajData, db)
	} else {
		db.FirstFrame = s.cur.FirstFrame
		s.cur.data = append(s.cur.data, db)
	}

	return nil
}

// AddParticleDataBlock adds a particle data block paired with the most
// recently added mapping block of the current frame set. The mapping
// defines the block's local index space: nParticles must equal the
// mapping's particle count and firstParticle its first global number.
func (s *Session) AddParticleDataBlock(id format.BlockID, name string, blockType format.BlockType, nFrames, stride, firstParticle, nParticles int64, codec format.CodecID, values *Values) error {
	db, err := s.newDataBlock(id, name, blockType, nFrames, stride, codec, values)
	if err != nil {
		return err
	}
	if blockType == format.NonTrajectoryBlock {
		return errs.Critical(fmt.Errorf("%w: particle data outside a frame set", errs.ErrInvalidCount))
	}
	if len(s.cur.mappings) == 0 {
		return errs.Critical(fmt.Errorf("%w: particle data with no mapping", errs.ErrMappingTable))
	}

	m := s.cur.mappings[len(s.cur.mappings)-1]
	if nParticles != m.NumParticles() || firstParticle != m.FirstParticle {
		return errs.Critical(fmt.Errorf("%w: block range (%d, %d) does not match mapping (%d, %d)",
			errs.ErrMappingTable, firstParticle, nParticles, m.FirstParticle, m.NumParticles()))
	}
	if values.Particles() != nParticles {
		return errs.Critical(fmt.Errorf("%w: %d particle rows, mapping has %d", errs.ErrInvalidCount, values.Particles(), nParticles))
	}

	db.Dep |= format.ParticleDependent
	db.FirstFrame = s.cur.FirstFrame
	db.FirstParticle = firstParticle
	db.NParticles = nParticles
	db.mapping = m
	s.cur.particleData = append(s.cur.particleData, db)

	return nil
}

// newDataBlock validates the shared data block arguments.
func (s *Session) newDataBlock(id format.BlockID, name string, blockType format.BlockType, nFrames, stride int64, codec format.CodecID, values *Values) (*DataBlock, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if values == nil {
		return nil, errs.Critical(fmt.Errorf("%w: nil values", errs.ErrInvalidCount))
	}
	if stride < 1 {
		return nil, errs.Critical(fmt.Errorf("%w: %d", errs.ErrInvalidStride, stride))
	}
	if blockType == format.NonTrajectoryBlock {
		nFrames = 1
	} else if s.cur == nil {
		return nil, errs.Critical(errs.ErrNoFrameSet)
	}
	if nFrames < 1 {
		return nil, errs.Critical(fmt.Errorf("%w: %d frames", errs.ErrInvalidCount, nFrames))
	}
	if id.Reserved() && !id.IsTrajectory() {
		return nil, errs.Critical(fmt.Errorf("%w: %d", errs.ErrReservedID, id))
	}
	if want := storedFrames(nFrames, stride); values.Frames() != want {
		return nil, errs.Critical(fmt.Errorf("%w: %d stored frames for %d frames at stride %d, want %d",
			errs.ErrInvalidCount, values.Frames(), nFrames, stride, want))
	}

	dep := format.Dependency(0)
	if blockType == format.TrajectoryBlock {
		dep |= format.FrameDependent
	}

	s.blockNames[id] = name

	return &DataBlock{
		ID:      id,
		Name:    name,
		Dep:     dep,
		Codec:   codec,
		NFrames: nFrames,
		Stride:  stride,
		Values:  values,
	}, nil
}

// buildTOC lists the block IDs present in the frame set, mapping block
// included, each ID once.
func (fs *FrameSet) buildTOC() []format.BlockID {
	var ids []format.BlockID
	seen := make(map[format.BlockID]struct{})
	add := func(id format.BlockID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	if len(fs.mappings) > 0 {
		add(format.BlockParticleMapping)
	}
	for _, db := range fs.particleData {
		add(db.ID)
	}
	for _, db := range fs.data {
		add(db.ID)
	}

	return ids
}

func (s *Session) marshalTOC(ids []format.BlockID) []byte {
	enc := rawio.NewEncoder(s.w32, s.w64)
	defer enc.Finish()

	enc.Int64(int64(len(ids)))
	for _, id := range ids {
		enc.Int64(int64(id))
	}

	out := make([]byte, enc.Len())
	copy(out, enc.Bytes())

	return out
}

// WriteFrameSet writes the current frame set: the frame set block, its
// TOC, each mapping block followed by the particle data blocks it
// covers, then the non-particle data blocks. The predecessor's
// forward navigation offsets are back-patched afterwards; a partial
// write therefore leaves the predecessor unchanged and the trailing
// bytes unreachable through the navigation offsets.
func (s *Session) WriteFrameSet(mode digest.Mode) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.out == nil {
		return errs.Critical(fmt.Errorf("%w: output", errs.ErrNoFile))
	}
	if !s.headerWritten {
		return errs.Critical(fmt.Errorf("%w: headers not written", errs.ErrBadBlockFraming))
	}
	if s.cur == nil || s.curWritten {
		return errs.Critical(errs.ErrNoFrameSet)
	}

	fs := s.cur
	pos := s.outPos
	idx := int64(len(s.frameSetPos))

	fs.NextPos, fs.MediumNextPos, fs.LongNextPos = 0, 0, 0
	fs.PrevPos, fs.MediumPrevPos, fs.LongPrevPos = 0, 0, 0
	if idx >= 1 {
		fs.PrevPos = s.frameSetPos[idx-1]
	}
	if idx >= s.mediumStride {
		fs.MediumPrevPos = s.frameSetPos[idx-s.mediumStride]
	}
	if idx >= s.longStride {
		fs.LongPrevPos = s.frameSetPos[idx-s.longStride]
	}

	b := block.New(format.BlockFrameSet, nameFrameSet, format.TrajectoryBlock, marshalFrameSet(fs, s.w32, s.w64))
	if err := s.writeBlock(b, s.w32, s.w64, mode); err != nil {
		return err
	}

	fs.toc = fs.buildTOC()
	b = block.New(format.BlockTableOfContents, nameTOC, format.TrajectoryBlock, s.marshalTOC(fs.toc))
	if err := s.writeBlock(b, s.w32, s.w64, mode); err != nil {
		return err
	}

	for _, m := range fs.mappings {
		b = block.New(format.BlockParticleMapping, nameMapping, format.TrajectoryBlock, marshalMapping(m, s.w32, s.w64))
		if err := s.writeBlock(b, s.w32, s.w64, mode); err != nil {
			return err
		}
		for _, db := range fs.particleData {
			if db.mapping != m {
				continue
			}
			content, err := marshalDataBlock(db, s.w32, s.w64)
			if err != nil {
				return err
			}
			b = block.New(db.ID, db.Name, format.TrajectoryBlock, content)
			if err := s.writeBlock(b, s.w32, s.w64, mode); err != nil {
				return err
			}
		}
	}

	for _, db := range fs.data {
		content, err := marshalDataBlock(db, s.w32, s.w64)
		if err != nil {
			return err
		}
		b = block.New(db.ID, db.Name, format.TrajectoryBlock, content)
		if err := s.writeBlock(b, s.w32, s.w64, mode); err != nil {
			return err
		}
	}

	// The frame set is complete on disk; only now make it reachable by
	// patching the forward offsets of its predecessors.
	if idx >= 1 {
		if err := s.patchFrameSetOffset(s.frameSetPos[idx-1], frameSetNextOff, pos); err != nil {
			return err
		}
	}
	if idx >= s.mediumStride {
		if err := s.patchFrameSetOffset(s.frameSetPos[idx-s.mediumStride], frameSetMediumNextOff, pos); err != nil {
			return err
		}
	}
	if idx >= s.longStride {
		if err := s.patchFrameSetOffset(s.frameSetPos[idx-s.longStride], frameSetLongNextOff, pos); err != nil {
			return err
		}
	}

	fs.Pos = pos
	s.frameSetPos = append(s.frameSetPos, pos)
	s.numFrames += fs.NFrames
	s.lastFrameEnd = fs.LastFrame()
	s.curWritten = true

	return nil
}

// patchFrameSetOffset rewrites one navigation offset inside the frame
// set block at pos. The content digest is recomputed when the stored
// one is non-zero, so patched blocks keep verifying.
func (s *Session) patchFrameSetOffset(pos int64, fieldOff int64, value int64) error {
	sr := io.NewSectionReader(s.out, pos, 1<<62)
	b, err := block.Read(sr, s.w32, s.w64, digest.Skip, pos)
	if err != nil && !errs.IsMinor(err) {
		return err
	}
	if b.ID != format.BlockFrameSet || int64(len(b.Content)) < frameSetContentSize {
		return errs.CriticalAt(fmt.Errorf("%w: expected frame set at patch target", errs.ErrBadBlockFraming), int64(b.ID), pos)
	}

	eng, _ := s.w64.Engine()
	eng.PutUint64(b.Content[fieldOff:fieldOff+8], uint64(value))

	mode := digest.Skip
	if !digest.Zero(b.Digest) {
		mode = digest.Use
	}
	data := block.Marshal(b, s.w32, s.w64, mode)
	if _, err := s.out.WriteAt(data, pos); err != nil {
		return errs.CriticalAt(fmt.Errorf("patch frame set: %w", err), int64(format.BlockFrameSet), pos)
	}

	return nil
}

// unmarshalFrameSetFields parses the fixed fields of frame set content.
func (s *Session) unmarshalFrameSetFields(content []byte, pos int64) (*FrameSet, error) {
	dec, err := rawio.NewDecoder(content, s.r32, s.r64)
	if err != nil {
		return nil, errs.CriticalAt(err, int64(format.BlockFrameSet), pos)
	}

	fs := &FrameSet{Pos: pos}
	for _, dst := range []*int64{
		&fs.FirstFrame, &fs.NFrames, &fs.NParticles,
		&fs.NextPos, &fs.PrevPos,
		&fs.MediumNextPos, &fs.MediumPrevPos,
		&fs.LongNextPos, &fs.LongPrevPos,
	} {
		if *dst, err = dec.Int64(); err != nil {
			return nil, errs.CriticalAt(fmt.Errorf("%w: %v", errs.ErrTruncatedFrameSet, err), int64(format.BlockFrameSet), pos)
		}
	}
	if fs.NFrames <= 0 {
		return nil, errs.CriticalAt(fmt.Errorf("%w: %d frames", errs.ErrInvalidCount, fs.NFrames), int64(format.BlockFrameSet), pos)
	}

	return fs, nil
}

// ReadNextFrameSet reads the next frame set from the input file and
// makes it current: the frame set block, then every following block up
// to the next frame set or end of file. Digest mismatches and
// undecodable payloads are minor, with the offending block ID and
// offset recorded; truncation mid frame set is critical. Returns
// io.EOF when no frame set remains.
func (s *Session) ReadNextFrameSet(mode digest.Mode) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.in == nil {
		return errs.Critical(fmt.Errorf("%w: input", errs.ErrNoFile))
	}
	if !s.headerRead {
		if err := s.ReadFileHeaders(mode); err != nil && !errs.IsMinor(err) {
			return err
		}
	}

	var minor error
	// Locate the frame set block, skipping stray non-trajectory blocks.
	var fs *FrameSet
	for {
		pos := s.inPos
		b, err := s.readBlock(mode, s.r32, s.r64)
		if err == io.EOF {
			return io.EOF
		}
		if err != nil && !errs.IsMinor(err) {
			return err
		}
		minor = errs.Worst(minor, err)

		if b.ID == format.BlockFrameSet {
			if fs, err = s.unmarshalFrameSetFields(b.Content, pos); err != nil {
				return errs.Worst(err, minor)
			}

			break
		}
		minor = errs.Worst(minor, errs.MinorAt(errs.ErrUnknownBlockID, int64(b.ID), pos))
	}

	// Consume the frame set's inner blocks.
	for {
		pos := s.inPos
		b, err := s.readBlock(mode, s.r32, s.r64)
		if err == io.EOF {
			break
		}
		if err != nil && !errs.IsMinor(err) {
			return errs.Worst(err, minor)
		}
		minor = errs.Worst(minor, err)

		if b.ID == format.BlockFrameSet {
			if err := s.rewind(pos); err != nil {
				return errs.Worst(err, minor)
			}

			break
		}

		if err := s.applyFrameSetBlock(fs, b); err != nil {
			if !errs.IsMinor(err) {
				return errs.Worst(err, minor)
			}
			minor = errs.Worst(minor, err)
		}
	}

	s.cur = fs
	s.curWritten = true
	if fs.LastFrame() >= s.numFrames {
		s.numFrames = fs.LastFrame() + 1
	}

	return minor
}

// applyFrameSetBlock dispatches one inner block of a frame set.
func (s *Session) applyFrameSetBlock(fs *FrameSet, b *block.Block) error {
	switch b.ID {
	case format.BlockTableOfContents:
		return s.applyTOC(fs, b)
	case format.BlockParticleMapping:
		m, err := unmarshalMapping(b.Content, s.r32, s.r64)
		if m == nil {
			fs.unparsed = append(fs.unparsed, b)

			return errs.MinorAt(unwrapReason(err), int64(b.ID), b.Offset)
		}
		var minor error
		for _, other := range fs.mappings {
			if m.overlaps(other) {
				minor = errs.MinorAt(errs.ErrMappingOverlap, int64(b.ID), b.Offset)
			}
		}
		fs.mappings = append(fs.mappings, m)

		return errs.Worst(minor, err)
	default:
		db, err := unmarshalDataBlock(b.ID, b.Name, b.Content, s.r32, s.r64)
		if db == nil {
			// Returned unparsed; the session stays usable.
			fs.unparsed = append(fs.unparsed, b)

			return errs.MinorAt(unwrapReason(err), int64(b.ID), b.Offset)
		}
		s.blockNames[b.ID] = b.Name
		if db.Dep.Particle() {
			if n := len(fs.mappings); n > 0 {
				db.mapping = fs.mappings[n-1]
			}
			fs.particleData = append(fs.particleData, db)
		} else {
			fs.data = append(fs.data, db)
		}

		return err
	}
}

func (s *Session) applyTOC(fs *FrameSet, b *block.Block) error {
	dec, err := rawio.NewDecoder(b.Content, s.r32, s.r64)
	if err != nil {
		return errs.CriticalAt(err, int64(b.ID), b.Offset)
	}

	n, err := dec.Int64()
	if err != nil {
		return errs.CriticalAt(err, int64(b.ID), b.Offset)
	}
	fs.toc = make([]format.BlockID, 0, max(n, 0))
	for range n {
		id, err := dec.Int64()
		if err != nil {
			return errs.CriticalAt(err, int64(b.ID), b.Offset)
		}
		fs.toc = append(fs.toc, format.BlockID(id))
	}

	return nil
}

// ReadNextBlock reads a single block from the input file. A frame set
// block starts a fresh current frame set (fixed fields only); any
// other block joins the current one. Returns the block ID read, and
// io.EOF at end of file.
func (s *Session) ReadNextBlock(mode digest.Mode) (format.BlockID, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if s.in == nil {
		return 0, errs.Critical(fmt.Errorf("%w: input", errs.ErrNoFile))
	}

	pos := s.inPos
	b, err := s.readBlock(mode, s.r32, s.r64)
	if err == io.EOF {
		return 0, io.EOF
	}
	if err != nil && !errs.IsMinor(err) {
		return 0, err
	}
	minor := err

	if b.ID == format.BlockFrameSet {
		fs, err := s.unmarshalFrameSetFields(b.Content, pos)
		if err != nil {
			return b.ID, errs.Worst(err, minor)
		}
		s.cur = fs
		s.curWritten = true

		return b.ID, minor
	}

	if s.cur == nil {
		return b.ID, errs.Worst(errs.CriticalAt(errs.ErrNoFrameSet, int64(b.ID), pos), minor)
	}

	if err := s.applyFrameSetBlock(s.cur, b); err != nil {
		return b.ID, errs.Worst(err, minor)
	}

	return b.ID, minor
}

// FrameSetNextPos returns the file position of the frame set after the
// current one, zero at the file end.
func (s *Session) FrameSetNextPos() (int64, error) {
	if s.cur == nil {
		return 0, errs.Minor(errs.ErrNoFrameSet)
	}

	return s.cur.NextPos, nil
}

// FrameSetPrevPos returns the file position of the frame set before
// the current one, zero at the file start.
func (s *Session) FrameSetPrevPos() (int64, error) {
	if s.cur == nil {
		return 0, errs.Minor(errs.ErrNoFrameSet)
	}

	return s.cur.PrevPos, nil
}

// unwrapReason strips the severity wrapper so a reason can be
// re-wrapped at a different level with location context.
func unwrapReason(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Err
	}

	return err
}
