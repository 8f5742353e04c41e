// Package block implements the generic framing shared by every region
// of a trajectory file.
//
// A block is a length-prefixed, type-tagged, digest-protected byte
// run. The header is fixed-shape and self-describing:
//
//	int64  total block length (header + content)
//	int64  block ID
//	string name (uint64 length prefix, raw bytes)
//	int64  block version
//	uint8  block type flag (non-trajectory or trajectory)
//	16B    content digest (all zero if not computed)
//
// Content follows the header and is opaque at this layer; its
// interpretation is selected by the block ID. Unknown IDs skip cleanly
// because the declared length always frames the content.
package block

import (
	"errors"
	"fmt"
	"io"

	"github.com/gotraj/tng/digest"
	"github.com/gotraj/tng/endian"
	"github.com/gotraj/tng/errs"
	"github.com/gotraj/tng/format"
	"github.com/gotraj/tng/rawio"
)

// Block is one framed region of the file.
type Block struct {
	ID      format.BlockID
	Name    string
	Version int64
	Type    format.BlockType
	Digest  [digest.Len]byte
	Content []byte

	// Offset is the file position of the block header, recorded on
	// read and write for error context and navigation.
	Offset int64

	// Length is the declared total block length. Marshal and Read keep
	// it current; cursor advancement must use it rather than a
	// recomputed size, since a truncated over-long name shortens the
	// in-memory header.
	Length int64
}

// New creates a block ready for writing.
func New(id format.BlockID, name string, typ format.BlockType, content []byte) *Block {
	return &Block{
		ID:      id,
		Name:    name,
		Version: format.Version,
		Type:    typ,
		Content: content,
	}
}

// HeaderSize returns the serialized header size for the block's name.
func (b *Block) HeaderSize() int64 {
	// length + id + name length prefix + name + version + type + digest
	return 8 + 8 + 8 + int64(len(b.Name)) + 8 + 1 + digest.Len
}

// TotalSize returns the full serialized size, header plus content.
func (b *Block) TotalSize() int64 {
	return b.HeaderSize() + int64(len(b.Content))
}

// Marshal serializes the block under the given byte orders. In Use
// mode the content digest is computed and patched into both the
// returned bytes and b.Digest; in Skip mode the digest field is zero.
// The returned slice is freshly allocated and owned by the caller.
func Marshal(b *Block, o32 endian.Order32, o64 endian.Order64, mode digest.Mode) []byte {
	if mode == digest.Use {
		b.Digest = digest.Sum(b.Content)
	} else {
		b.Digest = [digest.Len]byte{}
	}

	b.Length = b.TotalSize()

	enc := rawio.NewEncoder(o32, o64)
	defer enc.Finish()

	enc.Int64(b.Length)
	enc.Int64(int64(b.ID))
	enc.String(b.Name)
	enc.Int64(b.Version)
	enc.Uint8(uint8(b.Type))
	enc.Raw(b.Digest[:])
	enc.Raw(b.Content)

	out := make([]byte, enc.Len())
	copy(out, enc.Bytes())

	return out
}

// Write marshals the block and writes it to w. offset is the file
// position w is at; it is recorded on the block. Returns the number of
// bytes written. An I/O failure is critical.
func Write(w io.Writer, b *Block, o32 endian.Order32, o64 endian.Order64, mode digest.Mode, offset int64) (int64, error) {
	b.Offset = offset
	data := Marshal(b, o32, o64, mode)

	n, err := w.Write(data)
	if err != nil {
		return int64(n), errs.CriticalAt(fmt.Errorf("write block: %w", err), int64(b.ID), offset)
	}

	return int64(n), nil
}

// Read reads one block from r, which must be positioned at a block
// header at file position offset.
//
// In Use mode, a non-zero stored digest is recomputed over the content
// and a mismatch is reported as a minor failure carrying the block ID
// and offset; the block is still returned. A short read is a critical
// truncation failure.
func Read(r io.Reader, o32 endian.Order32, o64 endian.Order64, mode digest.Mode, offset int64) (*Block, error) {
	eng64, ok := o64.Engine()
	if !ok {
		return nil, errs.Critical(fmt.Errorf("%w: 64-bit descriptor %d", errs.ErrBadEndianness, o64))
	}

	var fixed [16]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}

		return nil, errs.CriticalAt(fmt.Errorf("%w: block header: %v", errs.ErrTruncatedBlock, err), 0, offset)
	}

	total := int64(eng64.Uint64(fixed[0:8]))
	id := int64(eng64.Uint64(fixed[8:16]))

	if total < 16 {
		return nil, errs.CriticalAt(fmt.Errorf("%w: declared length %d", errs.ErrBadBlockFraming, total), id, offset)
	}

	rest := make([]byte, total-16)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, errs.CriticalAt(fmt.Errorf("%w: %v", errs.ErrTruncatedBlock, err), id, offset)
	}

	dec, err := rawio.NewDecoder(rest, o32, o64)
	if err != nil {
		return nil, errs.CriticalAt(err, id, offset)
	}

	b := &Block{ID: format.BlockID(id), Offset: offset, Length: total}

	var minor error
	name, err := dec.String()
	if err != nil {
		if !errors.Is(err, errs.ErrStringTooLong) {
			return nil, errs.CriticalAt(fmt.Errorf("block name: %w", err), id, offset)
		}
		minor = errs.MinorAt(err, id, offset)
	}
	b.Name = name

	if b.Version, err = dec.Int64(); err != nil {
		return nil, errs.CriticalAt(err, id, offset)
	}
	typ, err := dec.Uint8()
	if err != nil {
		return nil, errs.CriticalAt(err, id, offset)
	}
	b.Type = format.BlockType(typ)

	dig, err := dec.Raw(digest.Len)
	if err != nil {
		return nil, errs.CriticalAt(err, id, offset)
	}
	copy(b.Digest[:], dig)

	b.Content = rest[dec.Pos():]

	if mode == digest.Use && !digest.Verify(b.Content, b.Digest) {
		minor = errs.Worst(minor, errs.MinorAt(errs.ErrDigestMismatch, id, offset))
	}

	return b, minor
}
