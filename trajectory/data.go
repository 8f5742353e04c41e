package trajectory

import (
	"fmt"
	"io"

	"github.com/gotraj/tng/block"
	"github.com/gotraj/tng/digest"
	"github.com/gotraj/tng/errs"
	"github.com/gotraj/tng/format"
)

// missingBlock classifies a missing block ID: an ID the session has
// never seen named anywhere is critical, an ID that is merely absent
// from the last-read frame set is minor.
func (s *Session) missingBlock(id format.BlockID) error {
	if _, known := s.blockNames[id]; known || id.Reserved() {
		return errs.Minor(fmt.Errorf("%w: %d (%s)", errs.ErrBlockNotFound, id, id))
	}

	return errs.Critical(fmt.Errorf("%w: %d", errs.ErrUnknownBlockID, id))
}

// DataGet retrieves non-particle data from the last read (or built)
// frame set as a 2-D array: stored frames by values per frame, tagged
// with its datatype. Non-trajectory data blocks attached to the
// session are searched as well.
func (s *Session) DataGet(id format.BlockID) (*Values, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if s.cur != nil {
		for _, db := range s.cur.data {
			if db.ID == id {
				return db.Values, nil
			}
		}
	}
	for _, db := range s.nonTrajData {
		if db.ID == id {
			return db.Values, nil
		}
	}

	return nil, s.missingBlock(id)
}

// ParticleDataGet retrieves particle data from the last read frame set
// as a 3-D array: stored frames, particles, values per frame. The
// particle axis is translated to real particle numbering: the mapping
// blocks of the frame set are unioned, and the row for global particle
// g lives at index g-first, with first returned alongside the array.
// Rows no mapping covers stay zero.
func (s *Session) ParticleDataGet(id format.BlockID) (*Values, int64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, 0, err
	}
	if s.cur == nil {
		return nil, 0, errs.Critical(errs.ErrNoFrameSet)
	}

	var blocks []*DataBlock
	for _, db := range s.cur.particleData {
		if db.ID == id {
			blocks = append(blocks, db)
		}
	}
	if len(blocks) == 0 {
		return nil, 0, s.missingBlock(id)
	}

	ref := blocks[0]
	var minor error
	first, last := int64(-1), int64(-1)
	usable := blocks[:0:0]
	for _, db := range blocks {
		if db.Values.Type() != ref.Values.Type() ||
			db.Values.ValuesPerFrame() != ref.Values.ValuesPerFrame() ||
			db.Values.Frames() != ref.Values.Frames() {
			minor = errs.Worst(minor, errs.Minor(fmt.Errorf("%w: block %d shape differs across partitions", errs.ErrTypeMismatch, id)))

			continue
		}
		usable = append(usable, db)
		lo, hi := db.globalRange()
		if first < 0 || lo < first {
			first = lo
		}
		if hi > last {
			last = hi
		}
	}
	if len(usable) == 0 {
		return nil, 0, errs.Worst(minor, s.missingBlock(id))
	}

	dst := newZeroValues(ref.Values.Type(), ref.Values.Frames(), last-first+1, ref.Values.ValuesPerFrame())
	for _, db := range usable {
		db.scatter(dst, first, 0, ref.Values.Frames(), 0)
	}

	return dst, first, minor
}

// globalRange returns the lowest and highest global particle number a
// particle data block covers, via its mapping when present.
func (db *DataBlock) globalRange() (int64, int64) {
	if db.mapping == nil {
		return db.FirstParticle, db.FirstParticle + db.NParticles - 1
	}

	lo, hi := db.mapping.Table[0], db.mapping.Table[0]
	for _, g := range db.mapping.Table {
		if g < lo {
			lo = g
		}
		if g > hi {
			hi = g
		}
	}

	return lo, hi
}

// scatter copies the block's rows into dst, translating local particle
// indices to global numbers offset by base. srcFrameOff/dstFrameOff
// select the stored-frame windows; nFrames rows of frames are copied.
func (db *DataBlock) scatter(dst *Values, base int64, srcFrameOff, nFrames, dstFrameOff int64) {
	particles := db.Values.Particles()
	for f := int64(0); f < nFrames; f++ {
		for p := int64(0); p < particles; p++ {
			g := db.FirstParticle + p
			if db.mapping != nil {
				g = db.mapping.Table[p]
			}
			gi := g - base
			if gi < 0 || gi >= dst.Particles() {
				continue
			}
			copyRow(dst, dstFrameOff+f, gi, db.Values, srcFrameOff+f, p)
		}
	}
}

// peekFrameSetAt reads the fixed fields of the frame set block at pos
// without moving the read cursor.
func (s *Session) peekFrameSetAt(pos int64) (*FrameSet, error) {
	sr := io.NewSectionReader(s.in, pos, 1<<62)
	b, err := block.Read(sr, s.r32, s.r64, digest.Skip, pos)
	if err != nil && !errs.IsMinor(err) {
		return nil, err
	}
	if b.ID != format.BlockFrameSet {
		return nil, errs.CriticalAt(fmt.Errorf("%w: expected frame set", errs.ErrBadBlockFraming), int64(b.ID), pos)
	}

	return s.unmarshalFrameSetFields(b.Content, pos)
}

// readFrameSetAt positions the cursor at pos and reads the frame set
// there, making it current.
func (s *Session) readFrameSetAt(pos int64, mode digest.Mode) error {
	if err := s.rewind(pos); err != nil {
		return err
	}

	err := s.ReadNextFrameSet(mode)
	if err == io.EOF {
		return errs.Critical(fmt.Errorf("%w: at offset %d", errs.ErrTruncatedFrameSet, pos))
	}

	return err
}

// seekToFrame makes the frame set containing the absolute frame
// current, navigating the two-level skip list: long jumps first, then
// medium, then immediate neighbors. A frame outside the file's range
// is a minor out-of-range failure.
func (s *Session) seekToFrame(frame int64, mode digest.Mode) error {
	if s.in == nil {
		return errs.Critical(fmt.Errorf("%w: input", errs.ErrNoFile))
	}
	if !s.headerRead {
		if err := s.ReadFileHeaders(mode); err != nil && !errs.IsMinor(err) {
			return err
		}
	}

	var minor error
	if s.cur == nil {
		if s.firstFrameSetPos == 0 {
			return errs.Minor(fmt.Errorf("%w: no frame sets", errs.ErrOutOfRange))
		}
		if err := s.readFrameSetAt(s.firstFrameSetPos, mode); err != nil {
			if !errs.IsMinor(err) {
				return err
			}
			minor = errs.Worst(minor, err)
		}
	}

	for !s.cur.Covers(frame) {
		if frame < s.cur.FirstFrame {
			pos := s.cur.LongPrevPos
			if pos == 0 {
				pos = s.cur.MediumPrevPos
			}
			if pos == 0 {
				pos = s.cur.PrevPos
			}
			if pos == 0 {
				return errs.Worst(minor, errs.Minor(fmt.Errorf("%w: frame %d before file start", errs.ErrOutOfRange, frame)))
			}
			if err := s.readFrameSetAt(pos, mode); err != nil {
				if !errs.IsMinor(err) {
					return err
				}
				minor = errs.Worst(minor, err)
			}

			continue
		}

		// Forward: take the longest jump that does not overshoot.
		jumped := false
		for _, pos := range []int64{s.cur.LongNextPos, s.cur.MediumNextPos, s.cur.NextPos} {
			if pos == 0 {
				continue
			}
			peek, err := s.peekFrameSetAt(pos)
			if err != nil {
				return errs.Worst(err, minor)
			}
			if peek.FirstFrame <= frame {
				if err := s.readFrameSetAt(pos, mode); err != nil {
					if !errs.IsMinor(err) {
						return err
					}
					minor = errs.Worst(minor, err)
				}
				jumped = true

				break
			}
		}
		if !jumped {
			return errs.Worst(minor, errs.Minor(fmt.Errorf("%w: frame %d", errs.ErrOutOfRange, frame)))
		}
	}

	return minor
}

// ReadFrameInterval reads the consecutive frame range [startFrame,
// endFrame], locating the containing frame sets via the navigation
// skip list and scanning forward. The frame set containing endFrame is
// left current.
func (s *Session) ReadFrameInterval(startFrame, endFrame int64, mode digest.Mode) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if startFrame < 0 || endFrame < startFrame {
		return errs.Critical(fmt.Errorf("%w: [%d, %d]", errs.ErrOutOfRange, startFrame, endFrame))
	}

	minor := s.seekToFrame(startFrame, mode)
	if minor != nil && !errs.IsMinor(minor) {
		return minor
	}
	if s.cur == nil || !s.cur.Covers(startFrame) {
		return errs.Worst(minor, errs.Minor(fmt.Errorf("%w: frame %d", errs.ErrOutOfRange, startFrame)))
	}

	for s.cur.LastFrame() < endFrame {
		err := s.ReadNextFrameSet(mode)
		if err == io.EOF {
			return errs.Worst(minor, errs.Minor(fmt.Errorf("%w: frame %d past file end", errs.ErrOutOfRange, endFrame)))
		}
		if err != nil && !errs.IsMinor(err) {
			return err
		}
		minor = errs.Worst(minor, err)
	}

	return minor
}

// DataIntervalGet reads non-particle data for the frame range
// [startFrame, endFrame], assembling samples across frame-set
// boundaries. The result's frame axis holds the stored samples of the
// interval at the block's stride.
func (s *Session) DataIntervalGet(id format.BlockID, startFrame, endFrame int64, mode digest.Mode) (*Values, error) {
	collect := func(dst **Values, minor *error) error {
		var found *DataBlock
		for _, db := range s.cur.data {
			if db.ID == id {
				found = db

				break
			}
		}
		if found == nil {
			*minor = errs.Worst(*minor, errs.Minor(fmt.Errorf("%w: %d in frame set at %d", errs.ErrBlockNotFound, id, s.cur.Pos)))

			return nil
		}
		if *dst == nil {
			frames := storedFrames(endFrame-startFrame+1, found.Stride)
			*dst = newZeroValues(found.Values.Type(), frames, 1, found.Values.ValuesPerFrame())
		}
		copyIntervalSamples(*dst, found, startFrame, endFrame)

		return nil
	}

	return s.intervalGet(id, startFrame, endFrame, mode, collect)
}

// ParticleDataIntervalGet reads particle data for the frame range
// [startFrame, endFrame] and global particle range [firstParticle,
// lastParticle]. The particle axis is indexed by real particle number
// offset by firstParticle.
func (s *Session) ParticleDataIntervalGet(id format.BlockID, startFrame, endFrame, firstParticle, lastParticle int64, mode digest.Mode) (*Values, error) {
	if firstParticle < 0 || lastParticle < firstParticle {
		return nil, errs.Critical(fmt.Errorf("%w: particles [%d, %d]", errs.ErrOutOfRange, firstParticle, lastParticle))
	}

	collect := func(dst **Values, minor *error) error {
		var blocks []*DataBlock
		for _, db := range s.cur.particleData {
			if db.ID == id {
				blocks = append(blocks, db)
			}
		}
		if len(blocks) == 0 {
			*minor = errs.Worst(*minor, errs.Minor(fmt.Errorf("%w: %d in frame set at %d", errs.ErrBlockNotFound, id, s.cur.Pos)))

			return nil
		}
		ref := blocks[0]
		if *dst == nil {
			frames := storedFrames(endFrame-startFrame+1, ref.Stride)
			*dst = newZeroValues(ref.Values.Type(), frames, lastParticle-firstParticle+1, ref.Values.ValuesPerFrame())
		}
		for _, db := range blocks {
			if db.Values.Type() != (*dst).Type() || db.Values.ValuesPerFrame() != (*dst).ValuesPerFrame() {
				*minor = errs.Worst(*minor, errs.Minor(fmt.Errorf("%w: block %d", errs.ErrTypeMismatch, id)))

				continue
			}
			copyIntervalParticleSamples(*dst, db, startFrame, endFrame, firstParticle)
		}

		return nil
	}

	return s.intervalGet(id, startFrame, endFrame, mode, collect)
}

// intervalGet walks the frame sets overlapping [startFrame, endFrame],
// invoking collect on each with the session's current frame set.
func (s *Session) intervalGet(id format.BlockID, startFrame, endFrame int64, mode digest.Mode, collect func(dst **Values, minor *error) error) (*Values, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if startFrame < 0 || endFrame < startFrame {
		return nil, errs.Critical(fmt.Errorf("%w: [%d, %d]", errs.ErrOutOfRange, startFrame, endFrame))
	}

	minor := s.seekToFrame(startFrame, mode)
	if minor != nil && !errs.IsMinor(minor) {
		return nil, minor
	}
	if s.cur == nil || !s.cur.Covers(startFrame) {
		return nil, errs.Worst(minor, errs.Minor(fmt.Errorf("%w: frame %d", errs.ErrOutOfRange, startFrame)))
	}

	var dst *Values
	for {
		if err := collect(&dst, &minor); err != nil {
			return dst, errs.Worst(err, minor)
		}
		if s.cur.LastFrame() >= endFrame {
			break
		}
		err := s.ReadNextFrameSet(mode)
		if err == io.EOF {
			minor = errs.Worst(minor, errs.Minor(fmt.Errorf("%w: frame %d past file end", errs.ErrOutOfRange, endFrame)))

			break
		}
		if err != nil && !errs.IsMinor(err) {
			return dst, err
		}
		minor = errs.Worst(minor, err)
	}

	if dst == nil {
		return nil, errs.Worst(minor, s.missingBlock(id))
	}

	return dst, minor
}

// copyIntervalSamples copies the stored samples of db that fall inside
// [startFrame, endFrame] into dst, indexed relative to startFrame at
// db's stride.
func copyIntervalSamples(dst *Values, db *DataBlock, startFrame, endFrame int64) {
	stored := db.Values.Frames()
	for k := int64(0); k < stored; k++ {
		abs := db.FirstFrame + k*db.Stride
		if abs < startFrame || abs > endFrame {
			continue
		}
		di := (abs - startFrame) / db.Stride
		if di >= dst.Frames() {
			continue
		}
		copyRow(dst, di, 0, db.Values, k, 0)
	}
}

// copyIntervalParticleSamples is the particle variant: rows are
// translated to real particle numbers offset by firstParticle.
func copyIntervalParticleSamples(dst *Values, db *DataBlock, startFrame, endFrame, firstParticle int64) {
	stored := db.Values.Frames()
	particles := db.Values.Particles()
	for k := int64(0); k < stored; k++ {
		abs := db.FirstFrame + k*db.Stride
		if abs < startFrame || abs > endFrame {
			continue
		}
		di := (abs - startFrame) / db.Stride
		if di >= dst.Frames() {
			continue
		}
		for p := int64(0); p < particles; p++ {
			g := db.FirstParticle + p
			if db.mapping != nil {
				g = db.mapping.Table[p]
			}
			gi := g - firstParticle
			if gi < 0 || gi >= dst.Particles() {
				continue
			}
			copyRow(dst, di, gi, db.Values, k, p)
		}
	}
}

// WriteFrameInterval writes the consecutive frame range [startFrame,
// endFrame] held by the pending frame set, partitioning it into frame
// sets of at most NumFramesPerFrameSet frames. The interval must match
// the pending frame set's range exactly. When the interval is longer
// than NumFramesPerFrameSet, every data block stride must divide the
// frames-per-frame-set so chunks slice on sample boundaries; an
// interval that fits one frame set is written as is.
func (s *Session) WriteFrameInterval(startFrame, endFrame int64, mode digest.Mode) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.cur == nil || s.curWritten {
		return errs.Critical(errs.ErrNoFrameSet)
	}
	if startFrame != s.cur.FirstFrame || endFrame != s.cur.LastFrame() {
		return errs.Critical(fmt.Errorf("%w: [%d, %d] does not match pending frame set [%d, %d]",
			errs.ErrOutOfRange, startFrame, endFrame, s.cur.FirstFrame, s.cur.LastFrame()))
	}

	if s.cur.NFrames <= s.framesPerFrameSet {
		return s.WriteFrameSet(mode)
	}

	src := s.cur
	checkStride := func(db *DataBlock) error {
		if s.framesPerFrameSet%db.Stride != 0 {
			return errs.Critical(fmt.Errorf("%w: stride %d does not divide %d frames per frame set",
				errs.ErrInvalidStride, db.Stride, s.framesPerFrameSet))
		}

		return nil
	}
	for _, db := range src.particleData {
		if err := checkStride(db); err != nil {
			return err
		}
	}
	for _, db := range src.data {
		if err := checkStride(db); err != nil {
			return err
		}
	}

	for chunkStart := startFrame; chunkStart <= endFrame; chunkStart += s.framesPerFrameSet {
		chunkEnd := min(chunkStart+s.framesPerFrameSet-1, endFrame)
		chunk := &FrameSet{
			FirstFrame: chunkStart,
			NFrames:    chunkEnd - chunkStart + 1,
			NParticles: src.NParticles,
			mappings:   src.mappings,
		}
		for _, db := range src.particleData {
			chunk.particleData = append(chunk.particleData, db.sliceChunk(chunkStart, chunkEnd))
		}
		for _, db := range src.data {
			chunk.data = append(chunk.data, db.sliceChunk(chunkStart, chunkEnd))
		}

		s.cur = chunk
		s.curWritten = false
		if err := s.WriteFrameSet(mode); err != nil {
			return err
		}
	}

	return nil
}

// sliceChunk returns a copy of the data block restricted to the frame
// range [chunkStart, chunkEnd]; stride and pairing carry over.
func (db *DataBlock) sliceChunk(chunkStart, chunkEnd int64) *DataBlock {
	from := (chunkStart - db.FirstFrame) / db.Stride
	to := from + storedFrames(chunkEnd-chunkStart+1, db.Stride)

	out := *db
	out.FirstFrame = chunkStart
	out.NFrames = chunkEnd - chunkStart + 1
	out.Values = db.Values.sliceFrames(from, to)

	return &out
}
