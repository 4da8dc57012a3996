package doflevel

import (
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCatalog maps variant id -> DoF count, ignoring the dimension.
type stubCatalog []int

func (c stubCatalog) DoFsPerObject(fe FEIndex, dim int) int { return c[fe] }

// populate builds an expanded level from per-cell runs; nil marks an
// inactive cell.
func populate(t *testing.T, runs [][]uint64, fes []FEIndex) *Level {
	t.Helper()
	l := New(len(runs))
	for cell, run := range runs {
		if run == nil {
			continue
		}
		l.SetActiveFEIndex(cell, fes[cell])
		l.AppendCellDoFs(cell, run)
	}
	return l
}

func TestLevelAccessors(t *testing.T) {
	cat := stubCatalog{2, 3}
	l := populate(t, [][]uint64{{10, 11}, nil, {20, 21, 30}}, []FEIndex{0, 0, 1})

	assert.Equal(t, 3, l.NumCells())
	assert.Equal(t, 5, l.NumDoFIndices())
	assert.True(t, l.IsActive(0))
	assert.False(t, l.IsActive(1))
	assert.True(t, l.IsActive(2))

	assert.Equal(t, uint64(11), l.DoFIndex(0, 1))
	assert.Equal(t, uint64(30), l.DoFIndex(2, 2))
	assert.Equal(t, []uint64{20, 21, 30}, l.CellDoFs(2))
	assert.Nil(t, l.CellDoFs(1))

	l.SetDoFIndex(2, 2, 31)
	assert.Equal(t, uint64(31), l.DoFIndex(2, 2))
	l.SetDoFIndex(2, 2, 30)

	assert.Equal(t, FEIndex(1), l.ActiveFEIndex(2))
	assert.Equal(t, InvalidFEIndex, l.FutureFEIndex(2))
	l.SetFutureFEIndex(2, 0)
	assert.Equal(t, FEIndex(0), l.FutureFEIndex(2))

	_ = cat // accessors need no catalog
}

func TestAppendCellDoFsOrder(t *testing.T) {
	l := New(3)
	l.SetActiveFEIndex(2, 0)
	l.AppendCellDoFs(2, []uint64{1, 2})

	require.Panics(t, func() { l.AppendCellDoFs(1, []uint64{3}) })
	require.Panics(t, func() { l.AppendCellDoFs(2, []uint64{3}) })
}

func TestDoFIndexContracts(t *testing.T) {
	cat := stubCatalog{2}
	l := populate(t, [][]uint64{{10, 11}, nil}, []FEIndex{0, 0})

	require.Panics(t, func() { l.DoFIndex(1, 0) }, "inactive cell")

	l.Compress(cat, 2)
	require.True(t, l.IsCompressed(0))
	require.Panics(t, func() { l.DoFIndex(0, 0) }, "compressed cell")
	require.Panics(t, func() { l.SetDoFIndex(0, 0, 99) }, "compressed cell")
	require.Panics(t, func() { l.SetActiveFEIndex(0, 0) }, "variant reassignment while compressed")
}

func TestNormalizeIsNoOpWhenExpanded(t *testing.T) {
	cat := stubCatalog{2, 1}
	l := populate(t, [][]uint64{{10, 11}, {5}}, []FEIndex{0, 1})

	before := append([]uint64(nil), l.Raw().DoFIndices...)
	l.Normalize()
	assert.Equal(t, before, l.Raw().DoFIndices)
	assert.False(t, l.IsCompressed(0))
	assert.False(t, l.IsCompressed(1))

	// And after a full round trip the store is expanded again, so
	// Normalize stays a no-op.
	l.Compress(cat, 2)
	l.Uncompress(cat, 2)
	l.Normalize()
	assert.Equal(t, before, l.Raw().DoFIndices)
}

func TestNormalizeThenRebuild(t *testing.T) {
	cat := stubCatalog{2}
	l := populate(t, [][]uint64{{10, 11}}, []FEIndex{0})
	l.Compress(cat, 2)
	require.True(t, l.IsCompressed(0))

	// Normalize clears the flag without expanding; the caller owns the
	// rebuild that follows.
	l.Normalize()
	assert.False(t, l.IsCompressed(0))
	assert.Equal(t, 1, l.NumDoFIndices())

	l.ClearDoFs()
	l.SetActiveFEIndex(0, 0)
	l.AppendCellDoFs(0, []uint64{40, 50})
	assert.Equal(t, []uint64{40, 50}, l.CellDoFs(0))
}

func TestRebuildCellCache(t *testing.T) {
	cat := stubCatalog{2, 3}
	l := populate(t, [][]uint64{{10, 11}, nil, {20, 21, 30}}, []FEIndex{0, 0, 1})

	l.RebuildCellCache(cat, 2)
	assert.Equal(t, []uint64{10, 11}, l.CachedCellDoFs(0))
	assert.Nil(t, l.CachedCellDoFs(1))
	assert.Equal(t, []uint64{20, 21, 30}, l.CachedCellDoFs(2))

	l.Compress(cat, 2)
	// The cache is derived state and survives Compress untouched.
	assert.Equal(t, []uint64{20, 21, 30}, l.CachedCellDoFs(2))
	require.Panics(t, func() { l.RebuildCellCache(cat, 2) }, "rebuild needs an expanded level")
}

func TestMemoryConsumption(t *testing.T) {
	cat := stubCatalog{4}
	l := populate(t, [][]uint64{{10, 11, 12, 13}, {20, 21, 22, 23}}, []FEIndex{0, 0})

	before := l.MemoryConsumption()
	require.NotZero(t, before)

	l.Compress(cat, 3)
	after := l.MemoryConsumption()
	assert.Less(t, after, before, "compressing unit-stride runs must shrink the footprint")
}

func TestFromRawValidatesLengths(t *testing.T) {
	_, err := FromRaw(RawLevel{
		ActiveFEIndices: make([]FEIndex, 2),
		FutureFEIndices: make([]FEIndex, 3),
		DoFOffsets:      make([]uint32, 2),
	})
	require.Error(t, err)

	l, err := FromRaw(RawLevel{
		ActiveFEIndices: []FEIndex{0},
		FutureFEIndices: []FEIndex{InvalidFEIndex},
		DoFOffsets:      []uint32{0},
		DoFIndices:      []uint64{7},
		Compressed:      bitset.New(1),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, l.NumCells())
	assert.Equal(t, []uint64{7}, l.CellDoFs(0))
}
