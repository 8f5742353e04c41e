package trajectory

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gotraj/tng/block"
	"github.com/gotraj/tng/digest"
	"github.com/gotraj/tng/endian"
	"github.com/gotraj/tng/errs"
	"github.com/gotraj/tng/format"
	"github.com/gotraj/tng/rawio"
	"github.com/gotraj/tng/topology"
)

// Block names of the header preamble.
const (
	nameGeneralInfo = "GENERAL INFO"
	nameMolecules   = "MOLECULES"
	nameIDTable     = "TRAJECTORY IDS AND NAMES"
	nameEndianness  = "ENDIANNESS AND STRING LENGTH"
	nameFrameSet    = "TRAJECTORY FRAME SET"
	nameTOC         = "BLOCK TABLE OF CONTENTS"
	nameMapping     = "PARTICLE MAPPING"
)

// writeBlock writes b at the current output cursor and advances it.
func (s *Session) writeBlock(b *block.Block, o32 endian.Order32, o64 endian.Order64, mode digest.Mode) error {
	n, err := block.Write(s.out, b, o32, o64, mode, s.outPos)
	s.outPos += n

	return err
}

// readBlock reads the block at the input cursor and advances it. At a
// clean end of file it returns io.EOF unwrapped.
func (s *Session) readBlock(mode digest.Mode, o32 endian.Order32, o64 endian.Order64) (*block.Block, error) {
	b, err := block.Read(s.in, o32, o64, mode, s.inPos)
	if b != nil {
		s.inPos += b.Length
	}

	return b, err
}

// rewind seeks the input cursor back to pos.
func (s *Session) rewind(pos int64) error {
	if _, err := s.in.Seek(pos, io.SeekStart); err != nil {
		return errs.Critical(fmt.Errorf("seek: %w", err))
	}
	s.inPos = pos

	return nil
}

// marshalEndianness builds the bootstrap block content. Its fields are
// canonical network order so a reader can recover the declared orders
// regardless of host.
func (s *Session) marshalEndianness() []byte {
	enc := rawio.NewEncoder(endian.Big32, endian.Big64)
	defer enc.Finish()

	enc.Uint64(uint64(s.w32))
	enc.Uint64(uint64(s.w64))
	enc.Uint64(format.MaxStrLen)

	out := make([]byte, enc.Len())
	copy(out, enc.Bytes())

	return out
}

func (s *Session) marshalGeneralInfo() []byte {
	enc := rawio.NewEncoder(s.w32, s.w64)
	defer enc.Finish()

	enc.String(s.firstProgram)
	enc.String(s.lastProgram)
	enc.String(s.firstUser)
	enc.String(s.lastUser)
	enc.String(s.firstComputer)
	enc.String(s.lastComputer)
	enc.String(s.firstSig)
	enc.String(s.lastSig)
	enc.String(s.forcefield)
	enc.Int64(s.creationTime.Unix())
	if s.varAtoms {
		enc.Uint8(1)
	} else {
		enc.Uint8(0)
	}
	enc.Int64(s.numFrames)
	enc.Int64(s.top.NumParticles())
	enc.Int64(s.framesPerFrameSet)
	enc.Int64(s.mediumStride)
	enc.Int64(s.longStride)

	out := make([]byte, enc.Len())
	copy(out, enc.Bytes())

	return out
}

func (s *Session) unmarshalGeneralInfo(content []byte) error {
	dec, err := rawio.NewDecoder(content, s.r32, s.r64)
	if err != nil {
		return errs.Critical(err)
	}

	var minor error
	str := func(dst *string) error {
		v, err := dec.String()
		if err != nil {
			if !errors.Is(err, errs.ErrStringTooLong) {
				return errs.Critical(err)
			}
			minor = errs.Worst(minor, errs.Minor(err))
		}
		*dst = v

		return nil
	}

	for _, dst := range []*string{
		&s.firstProgram, &s.lastProgram,
		&s.firstUser, &s.lastUser,
		&s.firstComputer, &s.lastComputer,
		&s.firstSig, &s.lastSig,
		&s.forcefield,
	} {
		if err := str(dst); err != nil {
			return err
		}
	}

	created, err := dec.Int64()
	if err != nil {
		return errs.Critical(err)
	}
	s.creationTime = time.Unix(created, 0).UTC()

	varAtoms, err := dec.Uint8()
	if err != nil {
		return errs.Critical(err)
	}
	s.varAtoms = varAtoms != 0

	if s.numFrames, err = dec.Int64(); err != nil {
		return errs.Critical(err)
	}
	// Particle total is recomputed from the molecules block; the
	// stored value only frames the file.
	if _, err = dec.Int64(); err != nil {
		return errs.Critical(err)
	}
	if s.framesPerFrameSet, err = dec.Int64(); err != nil {
		return errs.Critical(err)
	}
	if s.mediumStride, err = dec.Int64(); err != nil {
		return errs.Critical(err)
	}
	if s.longStride, err = dec.Int64(); err != nil {
		return errs.Critical(err)
	}
	if s.mediumStride <= 0 || s.longStride <= 0 || s.framesPerFrameSet <= 0 {
		return errs.Critical(fmt.Errorf("%w: strides (%d, %d), frames per set %d",
			errs.ErrInvalidStride, s.mediumStride, s.longStride, s.framesPerFrameSet))
	}

	return minor
}

func (s *Session) marshalIDTable() []byte {
	ids := make([]format.BlockID, 0, len(s.blockNames))
	for id := range s.blockNames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	enc := rawio.NewEncoder(s.w32, s.w64)
	defer enc.Finish()

	enc.Int64(int64(len(ids)))
	for _, id := range ids {
		enc.Int64(int64(id))
		enc.String(s.blockNames[id])
	}

	out := make([]byte, enc.Len())
	copy(out, enc.Bytes())

	return out
}

func (s *Session) unmarshalIDTable(content []byte) error {
	dec, err := rawio.NewDecoder(content, s.r32, s.r64)
	if err != nil {
		return errs.Critical(err)
	}

	n, err := dec.Int64()
	if err != nil {
		return errs.Critical(err)
	}

	var minor error
	for range n {
		id, err := dec.Int64()
		if err != nil {
			return errs.Critical(err)
		}
		name, err := dec.String()
		if err != nil {
			if !errors.Is(err, errs.ErrStringTooLong) {
				return errs.Critical(err)
			}
			minor = errs.Worst(minor, errs.Minor(err))
		}
		s.blockNames[format.BlockID(id)] = name
	}

	return minor
}

// WriteFileHeaders writes the header preamble: the endianness block,
// general info, the molecules block and the trajectory id/name table,
// followed by any non-trajectory data blocks added to the session.
// The output file must be set.
func (s *Session) WriteFileHeaders(mode digest.Mode) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.out == nil {
		return errs.Critical(fmt.Errorf("%w: output", errs.ErrNoFile))
	}

	b := block.New(format.BlockEndiannessAndStringLength, nameEndianness, format.NonTrajectoryBlock, s.marshalEndianness())
	if err := s.writeBlock(b, endian.Big32, endian.Big64, mode); err != nil {
		return err
	}

	b = block.New(format.BlockGeneralInfo, nameGeneralInfo, format.NonTrajectoryBlock, s.marshalGeneralInfo())
	if err := s.writeBlock(b, s.w32, s.w64, mode); err != nil {
		return err
	}

	b = block.New(format.BlockMolecules, nameMolecules, format.NonTrajectoryBlock, topology.Marshal(s.top, s.w32, s.w64))
	if err := s.writeBlock(b, s.w32, s.w64, mode); err != nil {
		return err
	}

	b = block.New(format.BlockTrajectoryIDsAndNames, nameIDTable, format.NonTrajectoryBlock, s.marshalIDTable())
	if err := s.writeBlock(b, s.w32, s.w64, mode); err != nil {
		return err
	}

	for _, db := range s.nonTrajData {
		content, err := marshalDataBlock(db, s.w32, s.w64)
		if err != nil {
			return err
		}
		b = block.New(db.ID, db.Name, format.NonTrajectoryBlock, content)
		if err := s.writeBlock(b, s.w32, s.w64, mode); err != nil {
			return err
		}
	}

	s.headerWritten = true

	return nil
}

// ReadFileHeaders reads the header preamble of the input file. The
// endianness block is read in canonical order to recover the declared
// byte orders; the remaining blocks follow in those orders, up to the
// first frame set (or end of file).
//
// A file whose initial bytes do not form an endianness block is not a
// trajectory file and fails critically. Digest mismatches, over-long
// strings and unknown block IDs are minor; the worst minor outcome is
// returned alongside the parsed headers.
func (s *Session) ReadFileHeaders(mode digest.Mode) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.in == nil {
		return errs.Critical(fmt.Errorf("%w: input", errs.ErrNoFile))
	}
	if err := s.rewind(0); err != nil {
		return err
	}

	b, err := s.readBlock(mode, endian.Big32, endian.Big64)
	if err != nil && !errs.IsMinor(err) {
		if err == io.EOF {
			return errs.Critical(fmt.Errorf("%w: empty file", errs.ErrBadBlockFraming))
		}

		return err
	}
	minor := err

	if b.ID != format.BlockEndiannessAndStringLength {
		return errs.CriticalAt(fmt.Errorf("%w: first block ID %d", errs.ErrBadBlockFraming, b.ID), int64(b.ID), 0)
	}
	if err := s.applyEndianness(b.Content); err != nil {
		return err
	}

	s.firstFrameSetPos = 0
	for {
		pos := s.inPos
		b, err := s.readBlock(mode, s.r32, s.r64)
		if err == io.EOF {
			break
		}
		if err != nil && !errs.IsMinor(err) {
			return err
		}
		minor = errs.Worst(minor, err)

		if b.ID == format.BlockFrameSet {
			if err := s.rewind(pos); err != nil {
				return err
			}
			s.firstFrameSetPos = pos

			break
		}

		if err := s.applyHeaderBlock(b); err != nil {
			if !errs.IsMinor(err) {
				return err
			}
			minor = errs.Worst(minor, err)
		}
	}

	s.headerRead = true

	return minor
}

// applyEndianness parses the bootstrap block content.
func (s *Session) applyEndianness(content []byte) error {
	dec, err := rawio.NewDecoder(content, endian.Big32, endian.Big64)
	if err != nil {
		return errs.Critical(err)
	}

	o32raw, err := dec.Uint64()
	if err != nil {
		return errs.Critical(err)
	}
	o64raw, err := dec.Uint64()
	if err != nil {
		return errs.Critical(err)
	}
	// Max string length field: informational, the format cap applies.
	if _, err := dec.Uint64(); err != nil {
		return errs.Critical(err)
	}

	o32 := endian.Order32(o32raw)
	o64 := endian.Order64(o64raw)
	if !o32.Valid() || !o64.Valid() {
		return errs.Critical(fmt.Errorf("%w: 32-bit %d, 64-bit %d", errs.ErrBadEndianness, o32raw, o64raw))
	}
	s.r32 = o32
	s.r64 = o64

	return nil
}

// applyHeaderBlock dispatches one preamble block by ID.
func (s *Session) applyHeaderBlock(b *block.Block) error {
	switch b.ID {
	case format.BlockGeneralInfo:
		return s.unmarshalGeneralInfo(b.Content)
	case format.BlockMolecules:
		top, err := topology.Unmarshal(b.Content, s.r32, s.r64)
		if top == nil {
			return err
		}
		s.top = top

		return err
	case format.BlockTrajectoryIDsAndNames:
		return s.unmarshalIDTable(b.Content)
	default:
		if db, err := s.parseHeaderDataBlock(b); db != nil {
			s.nonTrajData = append(s.nonTrajData, db)

			return err
		}

		// Unknown control block: skipped cleanly, reported as minor.
		return errs.MinorAt(errs.ErrUnknownBlockID, int64(b.ID), b.Offset)
	}
}

// parseHeaderDataBlock attempts to parse a preamble block as a
// non-trajectory data block. Returns nil if the block is not one.
func (s *Session) parseHeaderDataBlock(b *block.Block) (*DataBlock, error) {
	if b.Type != format.NonTrajectoryBlock || b.ID.Reserved() {
		return nil, nil
	}

	db, err := unmarshalDataBlock(b.ID, b.Name, b.Content, s.r32, s.r64)
	if db == nil {
		// Unparseable payload keeps the session usable; the block is
		// skipped like an unknown ID.
		return nil, nil
	}
	s.blockNames[b.ID] = b.Name

	return db, err
}
