package trajectory

import (
	"fmt"

	"github.com/gotraj/tng/endian"
	"github.com/gotraj/tng/errs"
	"github.com/gotraj/tng/format"
	"github.com/gotraj/tng/rawio"
)

// ParticleMapping translates the local row indices of the particle
// data blocks that follow it into global particle numbers. Local
// indices are dense 0..count-1; the table must be injective.
//
// Parallel writers each emit their own mapping plus data blocks over a
// disjoint global range; a reader unions them per frame.
type ParticleMapping struct {
	// FirstParticle is the first global particle number covered.
	FirstParticle int64
	// Table maps local index to global particle number.
	Table []int64
}

// NumParticles returns the number of particles the mapping covers.
func (m *ParticleMapping) NumParticles() int64 {
	return int64(len(m.Table))
}

// validate checks table density and injectivity.
func (m *ParticleMapping) validate() error {
	if len(m.Table) == 0 {
		return errs.Critical(fmt.Errorf("%w: empty table", errs.ErrMappingTable))
	}

	seen := make(map[int64]struct{}, len(m.Table))
	for i, g := range m.Table {
		if g < 0 {
			return errs.Critical(fmt.Errorf("%w: negative global number %d at %d", errs.ErrMappingTable, g, i))
		}
		if _, dup := seen[g]; dup {
			return errs.Critical(fmt.Errorf("%w: duplicate global number %d", errs.ErrMappingTable, g))
		}
		seen[g] = struct{}{}
	}

	return nil
}

// overlaps reports whether the two mappings claim a common global
// particle number.
func (m *ParticleMapping) overlaps(other *ParticleMapping) bool {
	seen := make(map[int64]struct{}, len(m.Table))
	for _, g := range m.Table {
		seen[g] = struct{}{}
	}
	for _, g := range other.Table {
		if _, ok := seen[g]; ok {
			return true
		}
	}

	return false
}

// marshalMapping serializes the mapping block content.
func marshalMapping(m *ParticleMapping, o32 endian.Order32, o64 endian.Order64) []byte {
	enc := rawio.NewEncoder(o32, o64)
	defer enc.Finish()

	enc.Int64(m.FirstParticle)
	enc.Int64(m.NumParticles())
	for _, g := range m.Table {
		enc.Int64(g)
	}

	out := make([]byte, enc.Len())
	copy(out, enc.Bytes())

	return out
}

// unmarshalMapping parses mapping block content. An invalid table is a
// critical failure.
func unmarshalMapping(content []byte, o32 endian.Order32, o64 endian.Order64) (*ParticleMapping, error) {
	dec, err := rawio.NewDecoder(content, o32, o64)
	if err != nil {
		return nil, errs.CriticalAt(err, int64(format.BlockParticleMapping), 0)
	}

	first, err := dec.Int64()
	if err != nil {
		return nil, errs.Critical(err)
	}
	count, err := dec.Int64()
	if err != nil {
		return nil, errs.Critical(err)
	}
	if count <= 0 {
		return nil, errs.Critical(fmt.Errorf("%w: %d entries", errs.ErrMappingTable, count))
	}

	m := &ParticleMapping{FirstParticle: first, Table: make([]int64, count)}
	for i := range m.Table {
		if m.Table[i], err = dec.Int64(); err != nil {
			return nil, errs.Critical(err)
		}
	}
	if err := m.validate(); err != nil {
		return nil, err
	}

	return m, nil
}
