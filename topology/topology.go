// Package topology models the static molecular system stored once in
// the header preamble: molecule templates containing chains, residues,
// atoms and bonds, each template with an instance count.
//
// The model is built imperatively; each add returns a handle used by
// subsequent adds:
//
//	top := topology.New()
//	mol := top.AddMolecule("water")
//	chain := mol.AddChain("W")
//	res := chain.AddResidue("WAT")
//	res.AddAtom("O", "O")
//	res.AddAtom("HO1", "H")
//	res.AddAtom("HO2", "H")
//	mol.SetCount(1000)
//
// Atoms may also live directly on a molecule, outside any chain. Bonds
// reference atoms by molecule-local index and never cross molecules.
package topology

import (
	"fmt"

	"github.com/gotraj/tng/errs"
)

// Topology is the set of molecule templates of a system.
type Topology struct {
	molecules []*Molecule
}

// Molecule is one molecule template. Count is the number of instances
// of the template in the system; it defaults to 1.
type Molecule struct {
	id     int64
	name   string
	count  int64
	chains []*Chain
	atoms  []*Atom // all atoms, in add order; index is the bond index space
	bonds  []Bond
}

// Chain owns an ordered sequence of residues.
type Chain struct {
	id       int64
	name     string
	residues []*Residue
	mol      *Molecule
}

// Residue owns an ordered sequence of atoms.
type Residue struct {
	id    int64
	name  string
	atoms []*Atom
	chain *Chain
}

// Atom has a name and an atom-type string.
type Atom struct {
	name     string
	atomType string
	residue  *Residue // nil for atoms directly on the molecule
}

// Bond connects two atoms of the same molecule by local atom index.
type Bond struct {
	From int64
	To   int64
}

// New creates an empty topology.
func New() *Topology {
	return &Topology{}
}

// AddMolecule adds a molecule template with the given name and an
// instance count of 1.
func (t *Topology) AddMolecule(name string) *Molecule {
	mol := &Molecule{
		id:    int64(len(t.molecules)),
		name:  name,
		count: 1,
	}
	t.molecules = append(t.molecules, mol)

	return mol
}

// Molecules returns the molecule templates in add order.
func (t *Topology) Molecules() []*Molecule {
	return t.molecules
}

// NumTemplates returns the number of molecule templates.
func (t *Topology) NumTemplates() int64 {
	return int64(len(t.molecules))
}

// NumMolecules returns the total number of molecule instances,
// summing instance counts across templates.
func (t *Topology) NumMolecules() int64 {
	var n int64
	for _, mol := range t.molecules {
		n += mol.count
	}

	return n
}

// NumParticles returns the global atom count of the system:
// sum of instances times atoms per molecule.
func (t *Topology) NumParticles() int64 {
	var n int64
	for _, mol := range t.molecules {
		n += mol.count * int64(len(mol.atoms))
	}

	return n
}

// Name returns the molecule name.
func (m *Molecule) Name() string { return m.name }

// SetName sets the molecule name.
func (m *Molecule) SetName(name string) { m.name = name }

// Count returns the instance count.
func (m *Molecule) Count() int64 { return m.count }

// SetCount sets the instance count. Non-positive counts are rejected
// as a critical failure.
func (m *Molecule) SetCount(count int64) error {
	if count <= 0 {
		return errs.Critical(fmt.Errorf("%w: molecule count %d", errs.ErrInvalidCount, count))
	}
	m.count = count

	return nil
}

// Chains returns the chains in add order.
func (m *Molecule) Chains() []*Chain { return m.chains }

// Atoms returns every atom of the molecule in add order. The slice
// index is the molecule-local atom index used by bonds.
func (m *Molecule) Atoms() []*Atom { return m.atoms }

// Bonds returns the bonds in add order.
func (m *Molecule) Bonds() []Bond { return m.bonds }

// AddChain appends a chain to the molecule.
func (m *Molecule) AddChain(name string) *Chain {
	chain := &Chain{
		id:   int64(len(m.chains)),
		name: name,
		mol:  m,
	}
	m.chains = append(m.chains, chain)

	return chain
}

// AddAtom appends an atom directly to the molecule, outside any chain.
func (m *Molecule) AddAtom(name, atomType string) *Atom {
	atom := &Atom{name: name, atomType: atomType}
	m.atoms = append(m.atoms, atom)

	return atom
}

// AddBond connects two atoms of the molecule by local atom index.
// Indices outside the molecule's atom list are a critical failure.
func (m *Molecule) AddBond(from, to int64) error {
	n := int64(len(m.atoms))
	if from < 0 || from >= n || to < 0 || to >= n {
		return errs.Critical(fmt.Errorf("%w: bond %d-%d of %d atoms", errs.ErrInvalidCount, from, to, n))
	}
	m.bonds = append(m.bonds, Bond{From: from, To: to})

	return nil
}

// Name returns the chain name.
func (c *Chain) Name() string { return c.name }

// SetName sets the chain name.
func (c *Chain) SetName(name string) { c.name = name }

// Residues returns the residues in add order.
func (c *Chain) Residues() []*Residue { return c.residues }

// AddResidue appends a residue to the chain.
func (c *Chain) AddResidue(name string) *Residue {
	res := &Residue{
		id:    int64(len(c.residues)),
		name:  name,
		chain: c,
	}
	c.residues = append(c.residues, res)

	return res
}

// Name returns the residue name.
func (r *Residue) Name() string { return r.name }

// SetName sets the residue name.
func (r *Residue) SetName(name string) { r.name = name }

// Atoms returns the residue's atoms in add order.
func (r *Residue) Atoms() []*Atom { return r.atoms }

// AddAtom appends an atom to the residue. The atom also joins the
// molecule's atom list, so bond indices cover chain atoms and direct
// atoms alike.
func (r *Residue) AddAtom(name, atomType string) *Atom {
	atom := &Atom{name: name, atomType: atomType, residue: r}
	r.atoms = append(r.atoms, atom)
	r.chain.mol.atoms = append(r.chain.mol.atoms, atom)

	return atom
}

// Name returns the atom name.
func (a *Atom) Name() string { return a.name }

// SetName sets the atom name.
func (a *Atom) SetName(name string) { a.name = name }

// Type returns the atom-type string.
func (a *Atom) Type() string { return a.atomType }

// SetType sets the atom-type string.
func (a *Atom) SetType(atomType string) { a.atomType = atomType }
