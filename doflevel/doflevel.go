package doflevel

import (
	"fmt"
	"unsafe"

	"github.com/bits-and-blooms/bitset"
)

// FEIndex identifies a finite element variant in a catalog.
type FEIndex uint32

// InvalidFEIndex marks a cell slot that has not been assigned a variant yet.
const InvalidFEIndex FEIndex = ^FEIndex(0)

// invalidOffset marks a cell that is not active on this level.
const invalidOffset uint32 = ^uint32(0)

// Catalog answers how many DoFs a cell of the given variant contributes
// on an object of the given geometric dimension. Implementations must be
// pure for the duration of a single Compress/Uncompress call.
type Catalog interface {
	DoFsPerObject(fe FEIndex, dim int) int
}

// ConsistencyError reports a violated internal invariant. It is delivered
// by panic: a broken invariant means the store was corrupted by a caller
// bypassing the population contract, and continuing would propagate wrong
// DoF indices into assembly.
type ConsistencyError struct {
	Op     string // operation that detected the violation
	Cell   int    // cell slot, -1 if not cell specific
	Detail string
}

func (e *ConsistencyError) Error() string {
	if e.Cell < 0 {
		return fmt.Sprintf("doflevel: %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("doflevel: %s: cell %d: %s", e.Op, e.Cell, e.Detail)
}

func fail(op string, cell int, format string, args ...any) {
	panic(&ConsistencyError{Op: op, Cell: cell, Detail: fmt.Sprintf(format, args...)})
}

// Level stores the DoF indices of all cells active on one mesh level.
//
// The four parallel arrays are indexed by the dense cell number of the
// level. dofOffsets points into dofIndices where a cell's run begins, or
// holds invalidOffset for cells not active on this level. The compressed
// bitset carries one flag per cell; a set flag means only the run's first
// index is stored physically.
type Level struct {
	activeFEIndices []FEIndex
	futureFEIndices []FEIndex
	dofOffsets      []uint32
	dofIndices      []uint64
	compressed      *bitset.BitSet

	// Derived cache of flattened per-cell index lists, rebuilt by the
	// owning handler and never touched by Compress/Uncompress.
	cellCacheOffsets []uint32
	cellDoFCache     []uint64

	// Highest cell populated so far, -1 after ClearDoFs. Guards the
	// ascending-order population contract.
	lastPopulated int
}

// New creates an empty level store with numCells cell slots. All cells
// start inactive with no variant assigned.
func New(numCells int) *Level {
	l := &Level{
		activeFEIndices: make([]FEIndex, numCells),
		futureFEIndices: make([]FEIndex, numCells),
		dofOffsets:      make([]uint32, numCells),
		compressed:      bitset.New(uint(numCells)),
		lastPopulated:   -1,
	}
	for i := range l.activeFEIndices {
		l.activeFEIndices[i] = InvalidFEIndex
		l.futureFEIndices[i] = InvalidFEIndex
		l.dofOffsets[i] = invalidOffset
	}
	return l
}

// NumCells returns the number of cell slots on this level.
func (l *Level) NumCells() int { return len(l.dofOffsets) }

// NumDoFIndices returns the current physical length of the flat index
// array. After Compress this may be smaller than the expanded length.
func (l *Level) NumDoFIndices() int { return len(l.dofIndices) }

// IsActive reports whether the cell is active on this level.
func (l *Level) IsActive(cell int) bool {
	return l.dofOffsets[cell] != invalidOffset
}

// IsCompressed reports whether the cell's run is stored compressed.
func (l *Level) IsCompressed(cell int) bool {
	return l.compressed.Test(uint(cell))
}

// ActiveFEIndex returns the variant assigned to the cell.
func (l *Level) ActiveFEIndex(cell int) FEIndex {
	return l.activeFEIndices[cell]
}

// SetActiveFEIndex assigns a variant to the cell. Reassigning the variant
// of a compressed cell would desynchronize the stored run length from the
// catalog, so callers must Normalize (and rebuild the flat array) first.
func (l *Level) SetActiveFEIndex(cell int, fe FEIndex) {
	if l.compressed.Test(uint(cell)) {
		fail("SetActiveFEIndex", cell, "cell is compressed; Normalize before reassigning variants")
	}
	l.activeFEIndices[cell] = fe
}

// FutureFEIndex returns the variant the cell will switch to in the next
// coordinated renumbering pass, or InvalidFEIndex if none is pending.
func (l *Level) FutureFEIndex(cell int) FEIndex {
	return l.futureFEIndices[cell]
}

// SetFutureFEIndex records a pending variant for the cell. The future
// index is plain data: Compress and Uncompress never touch it.
func (l *Level) SetFutureFEIndex(cell int, fe FEIndex) {
	l.futureFEIndices[cell] = fe
}

// ClearDoFs drops all per-cell runs, flags and the cell cache, keeping
// variant assignments. The owner calls this before repopulating the
// level in a fresh distribution pass.
func (l *Level) ClearDoFs() {
	for i := range l.dofOffsets {
		l.dofOffsets[i] = invalidOffset
	}
	l.dofIndices = l.dofIndices[:0]
	l.compressed.ClearAll()
	l.cellCacheOffsets = nil
	l.cellDoFCache = nil
	l.lastPopulated = -1
}

// AppendCellDoFs populates the expanded run for a cell. Cells must be
// appended in strictly increasing order so offsets stay monotonic; the
// run is stored verbatim at the end of the flat array.
func (l *Level) AppendCellDoFs(cell int, dofs []uint64) {
	if cell <= l.lastPopulated {
		fail("AppendCellDoFs", cell, "cells must be populated in increasing order (last was %d)", l.lastPopulated)
	}
	if l.dofOffsets[cell] != invalidOffset {
		fail("AppendCellDoFs", cell, "cell already populated")
	}
	l.dofOffsets[cell] = uint32(len(l.dofIndices))
	l.dofIndices = append(l.dofIndices, dofs...)
	l.lastPopulated = cell
}

// DoFIndex returns the i-th global DoF index of the cell. The cell must
// be active and expanded; random access into a compressed run is a
// contract violation, not a transparent decode.
func (l *Level) DoFIndex(cell, i int) uint64 {
	if !l.IsActive(cell) {
		fail("DoFIndex", cell, "cell not active on this level")
	}
	if l.compressed.Test(uint(cell)) {
		fail("DoFIndex", cell, "cell is compressed; Uncompress before random access")
	}
	return l.dofIndices[int(l.dofOffsets[cell])+i]
}

// SetDoFIndex overwrites the i-th global DoF index of the cell. Same
// expanded-state contract as DoFIndex.
func (l *Level) SetDoFIndex(cell, i int, dof uint64) {
	if !l.IsActive(cell) {
		fail("SetDoFIndex", cell, "cell not active on this level")
	}
	if l.compressed.Test(uint(cell)) {
		fail("SetDoFIndex", cell, "cell is compressed; Uncompress before mutation")
	}
	l.dofIndices[int(l.dofOffsets[cell])+i] = dof
}

// CellDoFs returns the physical run of the cell: the full index list for
// an expanded cell, or the single stored base index for a compressed one.
// The returned slice aliases internal memory; callers must not modify it.
func (l *Level) CellDoFs(cell int) []uint64 {
	if !l.IsActive(cell) {
		return nil
	}
	start, end := l.runExtent(cell)
	return l.dofIndices[start:end]
}

// runExtent locates the physical sub-range of the flat array holding the
// cell's run by scanning for the next active cell (or the array end).
func (l *Level) runExtent(cell int) (start, end int) {
	start, end, _ = l.nextRun(cell)
	return start, end
}

// Normalize clears the compressed flag of every cell without touching
// the flat index array.
//
// This is a pure tag reset, not a data transform: afterwards compressed
// runs still hold a single physical index, so the length invariant is
// violated until the caller rebuilds the flat array wholesale (ClearDoFs
// plus a fresh population pass). It exists for owners about to reassign
// variants, not as a cheap substitute for Uncompress.
func (l *Level) Normalize() {
	l.compressed.ClearAll()
}

// RebuildCellCache flattens the expanded per-cell runs into a cache for
// random access without the next-active-cell scan. The level must be
// fully expanded. The cache is derived state: Compress and Uncompress
// leave it alone, and it is the owner's job to rebuild it after either.
func (l *Level) RebuildCellCache(cat Catalog, dim int) {
	offsets := make([]uint32, len(l.dofOffsets))
	var cache []uint64
	for cell := range l.dofOffsets {
		offsets[cell] = invalidOffset
		if !l.IsActive(cell) {
			continue
		}
		if l.compressed.Test(uint(cell)) {
			fail("RebuildCellCache", cell, "cell is compressed; Uncompress first")
		}
		start, end := l.runExtent(cell)
		if n := cat.DoFsPerObject(l.activeFEIndices[cell], dim); end-start != n {
			fail("RebuildCellCache", cell, "run length %d does not match catalog count %d", end-start, n)
		}
		offsets[cell] = uint32(len(cache))
		cache = append(cache, l.dofIndices[start:end]...)
	}
	l.cellCacheOffsets = offsets
	l.cellDoFCache = cache
}

// CachedCellDoFs returns the cached flattened index list of the cell, or
// nil if the cache has not been rebuilt since the last mutation. The
// returned slice aliases cache memory; callers must not modify it.
func (l *Level) CachedCellDoFs(cell int) []uint64 {
	if l.cellCacheOffsets == nil || l.cellCacheOffsets[cell] == invalidOffset {
		return nil
	}
	start := int(l.cellCacheOffsets[cell])
	next := cell + 1
	for next < len(l.cellCacheOffsets) && l.cellCacheOffsets[next] == invalidOffset {
		next++
	}
	if next < len(l.cellCacheOffsets) {
		return l.cellDoFCache[start:int(l.cellCacheOffsets[next])]
	}
	return l.cellDoFCache[start:]
}

// MemoryConsumption returns the memory footprint in bytes of the four
// parallel arrays, the compressed-flag bitset and the cell cache.
func (l *Level) MemoryConsumption() uintptr {
	var fe FEIndex
	var off uint32
	var dof uint64
	size := uintptr(len(l.activeFEIndices))*unsafe.Sizeof(fe) +
		uintptr(len(l.futureFEIndices))*unsafe.Sizeof(fe) +
		uintptr(len(l.dofOffsets))*unsafe.Sizeof(off) +
		uintptr(len(l.dofIndices))*unsafe.Sizeof(dof) +
		uintptr(len(l.cellCacheOffsets))*unsafe.Sizeof(off) +
		uintptr(len(l.cellDoFCache))*unsafe.Sizeof(dof)
	if l.compressed != nil {
		size += uintptr(l.compressed.BinaryStorageSize())
	}
	return size
}

// RawLevel exposes the parallel arrays of a Level for serialization and
// for reconstructing a level from persisted state. The slices alias the
// level's memory when obtained from Raw; treat them as read-only.
type RawLevel struct {
	ActiveFEIndices []FEIndex
	FutureFEIndices []FEIndex
	DoFOffsets      []uint32
	DoFIndices      []uint64
	Compressed      *bitset.BitSet
}

// Raw returns views of the level's arrays.
func (l *Level) Raw() RawLevel {
	return RawLevel{
		ActiveFEIndices: l.activeFEIndices,
		FutureFEIndices: l.futureFEIndices,
		DoFOffsets:      l.dofOffsets,
		DoFIndices:      l.dofIndices,
		Compressed:      l.compressed,
	}
}

// FromRaw builds a Level that takes ownership of the given arrays. The
// parallel arrays must agree in length; the compressed bitset may be nil
// for a fully expanded level. Only structural (length) validation happens
// here — semantic invariants are enforced by Compress and Uncompress.
func FromRaw(raw RawLevel) (*Level, error) {
	n := len(raw.DoFOffsets)
	if len(raw.ActiveFEIndices) != n || len(raw.FutureFEIndices) != n {
		return nil, fmt.Errorf("doflevel: parallel array length mismatch: offsets %d, active %d, future %d",
			n, len(raw.ActiveFEIndices), len(raw.FutureFEIndices))
	}
	c := raw.Compressed
	if c == nil {
		c = bitset.New(uint(n))
	}
	return &Level{
		activeFEIndices: raw.ActiveFEIndices,
		futureFEIndices: raw.FutureFEIndices,
		dofOffsets:      raw.DoFOffsets,
		dofIndices:      raw.DoFIndices,
		compressed:      c,
		lastPopulated:   n - 1,
	}, nil
}
