package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotraj/tng/endian"
	"github.com/gotraj/tng/errs"
)

func buildWater(t *testing.T) *Topology {
	t.Helper()

	top := New()
	mol := top.AddMolecule("water")
	chain := mol.AddChain("W")
	res := chain.AddResidue("WAT")
	res.AddAtom("O", "O")
	res.AddAtom("HO1", "H")
	res.AddAtom("HO2", "H")
	require.NoError(t, mol.AddBond(0, 1))
	require.NoError(t, mol.AddBond(0, 2))
	require.NoError(t, mol.SetCount(1000))

	return top
}

func TestParticleCounts(t *testing.T) {
	top := buildWater(t)

	assert.Equal(t, int64(3000), top.NumParticles())
	assert.Equal(t, int64(1000), top.NumMolecules())
	assert.Equal(t, int64(1), top.NumTemplates())

	// A second template adds on top.
	ion := top.AddMolecule("sodium")
	ion.AddAtom("NA", "Na")
	require.NoError(t, ion.SetCount(50))

	assert.Equal(t, int64(3050), top.NumParticles())
	assert.Equal(t, int64(1050), top.NumMolecules())
}

func TestSetCount_Invalid(t *testing.T) {
	top := New()
	mol := top.AddMolecule("m")

	err := mol.SetCount(0)
	require.Error(t, err)
	assert.True(t, errs.IsCritical(err))
	assert.Equal(t, int64(1), mol.Count())
}

func TestAddBond_OutOfRange(t *testing.T) {
	top := New()
	mol := top.AddMolecule("m")
	mol.AddAtom("A", "a")

	require.Error(t, mol.AddBond(0, 1))
	require.Error(t, mol.AddBond(-1, 0))
	require.NoError(t, mol.AddBond(0, 0))
}

func TestMarshalUnmarshal_RoundTrip(t *testing.T) {
	top := buildWater(t)

	// A molecule with both chain atoms and direct atoms, so the
	// molecule-local atom order interleaves.
	mol := top.AddMolecule("lipid")
	mol.AddAtom("P", "P") // index 0, direct
	chain := mol.AddChain("L")
	res := chain.AddResidue("HEAD")
	res.AddAtom("C1", "C") // index 1
	mol.AddAtom("N", "N")  // index 2, direct
	res2 := chain.AddResidue("TAIL")
	res2.AddAtom("C2", "C") // index 3
	require.NoError(t, mol.AddBond(0, 1))
	require.NoError(t, mol.AddBond(1, 3))
	require.NoError(t, mol.SetCount(7))

	content := Marshal(top, endian.Little32, endian.Little64)
	got, err := Unmarshal(content, endian.Little32, endian.Little64)
	require.NoError(t, err)

	require.Len(t, got.Molecules(), 2)
	assert.Equal(t, top.NumParticles(), got.NumParticles())
	assert.Equal(t, top.NumMolecules(), got.NumMolecules())

	water := got.Molecules()[0]
	assert.Equal(t, "water", water.Name())
	assert.Equal(t, int64(1000), water.Count())
	require.Len(t, water.Chains(), 1)
	require.Len(t, water.Chains()[0].Residues(), 1)
	atoms := water.Chains()[0].Residues()[0].Atoms()
	require.Len(t, atoms, 3)
	assert.Equal(t, "O", atoms[0].Name())
	assert.Equal(t, "H", atoms[1].Type())
	assert.Equal(t, []Bond{{From: 0, To: 1}, {From: 0, To: 2}}, water.Bonds())

	lipid := got.Molecules()[1]
	require.Len(t, lipid.Atoms(), 4)
	assert.Equal(t, "P", lipid.Atoms()[0].Name())
	assert.Equal(t, "C1", lipid.Atoms()[1].Name())
	assert.Equal(t, "N", lipid.Atoms()[2].Name())
	assert.Equal(t, "C2", lipid.Atoms()[3].Name())
	// Bond indices survive serialization.
	assert.Equal(t, []Bond{{From: 0, To: 1}, {From: 1, To: 3}}, lipid.Bonds())
	// Chain structure survives.
	require.Len(t, lipid.Chains(), 1)
	require.Len(t, lipid.Chains()[0].Residues(), 2)
	assert.Equal(t, "HEAD", lipid.Chains()[0].Residues()[0].Name())
	require.Len(t, lipid.Chains()[0].Residues()[1].Atoms(), 1)
}

func TestUnmarshal_Malformed(t *testing.T) {
	top := buildWater(t)
	content := Marshal(top, endian.Little32, endian.Little64)

	_, err := Unmarshal(content[:10], endian.Little32, endian.Little64)
	require.Error(t, err)
	assert.True(t, errs.IsCritical(err))
}
