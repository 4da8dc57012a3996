package fe

import (
	"testing"

	"github.com/hupe1980/meshdof/doflevel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLagrange(t *testing.T) {
	q2 := Q(2)
	assert.Equal(t, "Q2", q2.Name())
	assert.Equal(t, 3, q2.DoFsPerObject(1))
	assert.Equal(t, 9, q2.DoFsPerObject(2))
	assert.Equal(t, 27, q2.DoFsPerObject(3))

	require.Panics(t, func() { Q(0) })
	require.Panics(t, func() { q2.DoFsPerObject(4) })
}

func TestDGQ(t *testing.T) {
	dg0 := DGQ(0)
	assert.Equal(t, "DGQ0", dg0.Name())
	assert.Equal(t, 1, dg0.DoFsPerObject(3))

	dg1 := DGQ(1)
	assert.Equal(t, 8, dg1.DoFsPerObject(3))

	require.Panics(t, func() { DGQ(-1) })
}

func TestFixed(t *testing.T) {
	e := Fixed("synthetic", 7)
	assert.Equal(t, "synthetic", e.Name())
	assert.Equal(t, 7, e.DoFsPerObject(1))
	assert.Equal(t, 7, e.DoFsPerObject(3))

	require.Panics(t, func() { Fixed("bad", -1) })
}

func TestCollection(t *testing.T) {
	c := NewCollection(Q(1), Q(2))
	idx := c.Push(DGQ(0))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, doflevel.FEIndex(2), idx)
	assert.Equal(t, "Q1", c.Element(0).Name())
	assert.Equal(t, 4, c.DoFsPerObject(0, 2))
	assert.Equal(t, 9, c.DoFsPerObject(1, 2))
	assert.Equal(t, 9, c.MaxDoFsPerObject(2))

	require.Panics(t, func() { c.Element(17) }, "out-of-range variant is fatal")
	require.Panics(t, func() { c.Push(nil) })
}

func TestCollectionDrivesLevelCompression(t *testing.T) {
	// The collection is the catalog the store verifies run lengths
	// against during Compress/Uncompress.
	c := NewCollection(Q(1), DGQ(0))
	l := doflevel.New(2)

	l.SetActiveFEIndex(0, 0) // Q1 in 1D: 2 DoFs
	l.AppendCellDoFs(0, []uint64{4, 5})
	l.SetActiveFEIndex(1, 1) // DGQ0: 1 DoF
	l.AppendCellDoFs(1, []uint64{9})

	l.Compress(c, 1)
	require.True(t, l.IsCompressed(0))
	l.Uncompress(c, 1)
	assert.Equal(t, []uint64{4, 5}, l.CellDoFs(0))
	assert.Equal(t, []uint64{9}, l.CellDoFs(1))
}
