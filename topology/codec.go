package topology

import (
	"errors"
	"fmt"

	"github.com/gotraj/tng/endian"
	"github.com/gotraj/tng/errs"
	"github.com/gotraj/tng/rawio"
)

// Marshal serializes the topology into molecules-block content.
//
// Each molecule is written as its fixed fields followed by flat chain,
// residue, atom and bond tables. Atoms carry the index of their owning
// residue (-1 for atoms directly on the molecule), which preserves the
// molecule-local atom order that bonds index into.
func Marshal(t *Topology, o32 endian.Order32, o64 endian.Order64) []byte {
	enc := rawio.NewEncoder(o32, o64)
	defer enc.Finish()

	enc.Int64(int64(len(t.molecules)))
	for _, mol := range t.molecules {
		enc.Int64(mol.id)
		enc.String(mol.name)
		enc.Int64(mol.count)

		enc.Int64(int64(len(mol.chains)))
		for _, chain := range mol.chains {
			enc.Int64(chain.id)
			enc.String(chain.name)
		}

		// Residues flattened in chain order; atoms reference them by
		// this flat index.
		resIndex := make(map[*Residue]int64)
		var nRes int64
		for _, chain := range mol.chains {
			nRes += int64(len(chain.residues))
		}
		enc.Int64(nRes)
		for ci, chain := range mol.chains {
			for _, res := range chain.residues {
				resIndex[res] = int64(len(resIndex))
				enc.Int64(res.id)
				enc.String(res.name)
				enc.Int64(int64(ci))
			}
		}

		enc.Int64(int64(len(mol.atoms)))
		for _, atom := range mol.atoms {
			enc.String(atom.name)
			enc.String(atom.atomType)
			if atom.residue != nil {
				enc.Int64(resIndex[atom.residue])
			} else {
				enc.Int64(-1)
			}
		}

		enc.Int64(int64(len(mol.bonds)))
		for _, bond := range mol.bonds {
			enc.Int64(bond.From)
			enc.Int64(bond.To)
		}
	}

	out := make([]byte, enc.Len())
	copy(out, enc.Bytes())

	return out
}

// decodeState accumulates the worst minor failure seen while decoding,
// so an over-long name truncates and reports without aborting the
// whole topology.
type decodeState struct {
	dec   *rawio.Decoder
	minor error
}

func (s *decodeState) int64() (int64, error) {
	v, err := s.dec.Int64()
	if err != nil {
		return 0, errs.Critical(err)
	}

	return v, nil
}

func (s *decodeState) str() (string, error) {
	v, err := s.dec.String()
	if err != nil {
		if !errors.Is(err, errs.ErrStringTooLong) {
			return "", errs.Critical(err)
		}
		s.minor = errs.Worst(s.minor, errs.Minor(err))
	}

	return v, nil
}

// Unmarshal reconstructs a topology from molecules-block content.
//
// Malformed structure (counts that do not frame the content, bond or
// parent indices out of range) is a critical failure. Over-long names
// are truncated and reported as a minor failure alongside the decoded
// topology.
func Unmarshal(data []byte, o32 endian.Order32, o64 endian.Order64) (*Topology, error) {
	dec, err := rawio.NewDecoder(data, o32, o64)
	if err != nil {
		return nil, errs.Critical(err)
	}
	state := &decodeState{dec: dec}

	t := New()

	nMol, err := state.int64()
	if err != nil {
		return nil, err
	}
	if nMol < 0 {
		return nil, errs.Critical(fmt.Errorf("%w: %d molecules", errs.ErrInvalidCount, nMol))
	}

	for range nMol {
		if err := unmarshalMolecule(t, state); err != nil {
			return nil, err
		}
	}

	return t, state.minor
}

func unmarshalMolecule(t *Topology, s *decodeState) error {
	id, err := s.int64()
	if err != nil {
		return err
	}
	name, err := s.str()
	if err != nil {
		return err
	}
	count, err := s.int64()
	if err != nil {
		return err
	}
	if count <= 0 {
		return errs.Critical(fmt.Errorf("%w: molecule count %d", errs.ErrInvalidCount, count))
	}

	mol := t.AddMolecule(name)
	mol.id = id
	mol.count = count

	nChains, err := s.int64()
	if err != nil {
		return err
	}
	for range nChains {
		cid, err := s.int64()
		if err != nil {
			return err
		}
		cname, err := s.str()
		if err != nil {
			return err
		}
		chain := mol.AddChain(cname)
		chain.id = cid
	}

	nRes, err := s.int64()
	if err != nil {
		return err
	}
	residues := make([]*Residue, 0, max(nRes, 0))
	for range nRes {
		rid, err := s.int64()
		if err != nil {
			return err
		}
		rname, err := s.str()
		if err != nil {
			return err
		}
		chainIdx, err := s.int64()
		if err != nil {
			return err
		}
		if chainIdx < 0 || chainIdx >= int64(len(mol.chains)) {
			return errs.Critical(fmt.Errorf("%w: residue chain index %d of %d", errs.ErrInvalidCount, chainIdx, len(mol.chains)))
		}
		res := mol.chains[chainIdx].AddResidue(rname)
		res.id = rid
		residues = append(residues, res)
	}

	nAtoms, err := s.int64()
	if err != nil {
		return err
	}
	for range nAtoms {
		aname, err := s.str()
		if err != nil {
			return err
		}
		atype, err := s.str()
		if err != nil {
			return err
		}
		resIdx, err := s.int64()
		if err != nil {
			return err
		}

		atom := &Atom{name: aname, atomType: atype}
		if resIdx >= 0 {
			if resIdx >= int64(len(residues)) {
				return errs.Critical(fmt.Errorf("%w: atom residue index %d of %d", errs.ErrInvalidCount, resIdx, len(residues)))
			}
			atom.residue = residues[resIdx]
			residues[resIdx].atoms = append(residues[resIdx].atoms, atom)
		}
		mol.atoms = append(mol.atoms, atom)
	}

	nBonds, err := s.int64()
	if err != nil {
		return err
	}
	for range nBonds {
		from, err := s.int64()
		if err != nil {
			return err
		}
		to, err := s.int64()
		if err != nil {
			return err
		}
		if err := mol.AddBond(from, to); err != nil {
			return err
		}
	}

	return nil
}
