package meshdof

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/meshdof/doflevel"
	"github.com/hupe1980/meshdof/fe"
	"github.com/hupe1980/meshdof/indexset"
)

// Handler owns the per-level DoF stores of one mesh hierarchy. It drives
// variant assignment, sequential DoF numbering, and the lock-step
// compress/uncompress passes over all levels.
//
// A Handler is not safe for concurrent use. In a distributed setting each
// process holds an independent Handler for its locally owned levels; any
// renumbering that spans processes is an external collective operation.
type Handler struct {
	collection *fe.Collection
	dim        int
	levels     []*doflevel.Level
	opts       options

	distributed bool
	totalDoFs   uint64
}

// New creates a handler for a mesh with the given geometric dimension and
// one level per entry of cellsPerLevel. All cells start without a variant
// assignment and inactive.
func New(collection *fe.Collection, dim int, cellsPerLevel []int, optFns ...Option) (*Handler, error) {
	if collection == nil || collection.Len() == 0 {
		return nil, fmt.Errorf("meshdof: element collection must hold at least one variant")
	}
	if dim < 1 || dim > 3 {
		return nil, fmt.Errorf("meshdof: dimension must be 1, 2 or 3, got %d", dim)
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	levels := make([]*doflevel.Level, len(cellsPerLevel))
	for i, n := range cellsPerLevel {
		if n < 0 {
			return nil, fmt.Errorf("meshdof: level %d has negative cell count %d", i, n)
		}
		levels[i] = doflevel.New(n)
	}

	return &Handler{
		collection: collection,
		dim:        dim,
		levels:     levels,
		opts:       opts,
	}, nil
}

// NewFromLevels creates a handler around already populated level stores,
// e.g. restored from a checkpoint. The levels are adopted, not copied.
func NewFromLevels(collection *fe.Collection, dim int, levels []*doflevel.Level, optFns ...Option) (*Handler, error) {
	h, err := New(collection, dim, nil, optFns...)
	if err != nil {
		return nil, err
	}
	h.levels = levels
	h.distributed = true
	// Count expanded DoFs via the catalog so the total is exact even when
	// some levels arrive compressed.
	for _, lvl := range levels {
		for cell := 0; cell < lvl.NumCells(); cell++ {
			if lvl.IsActive(cell) {
				h.totalDoFs += uint64(collection.DoFsPerObject(lvl.ActiveFEIndex(cell), dim))
			}
		}
	}
	return h, nil
}

// NumLevels returns the number of mesh levels.
func (h *Handler) NumLevels() int { return len(h.levels) }

// Dim returns the geometric dimension the handler was created with.
func (h *Handler) Dim() int { return h.dim }

// Collection returns the element variant collection.
func (h *Handler) Collection() *fe.Collection { return h.collection }

// Level returns the store of the given mesh level. The returned store
// aliases handler state; mutating it directly bypasses the handler's
// bookkeeping of the distribution state.
func (h *Handler) Level(level int) (*doflevel.Level, error) {
	if level < 0 || level >= len(h.levels) {
		return nil, &ErrLevelOutOfRange{Level: level, NumLevels: len(h.levels)}
	}
	return h.levels[level], nil
}

// SetActiveFEIndex assigns a variant to a cell. If the cell's run is
// currently compressed the level is normalized first (pure tag reset), so
// the assignment always invalidates the numbering: DistributeDoFs must
// run again before DoF indices are read.
func (h *Handler) SetActiveFEIndex(level, cell int, index doflevel.FEIndex) error {
	lvl, err := h.Level(level)
	if err != nil {
		return err
	}
	if cell < 0 || cell >= lvl.NumCells() {
		return &ErrCellOutOfRange{Level: level, Cell: cell, NumCells: lvl.NumCells()}
	}
	if int(index) >= h.collection.Len() {
		return &ErrUnknownVariant{FE: index, NFEs: h.collection.Len()}
	}
	if lvl.IsCompressed(cell) {
		lvl.Normalize()
	}
	lvl.SetActiveFEIndex(cell, index)
	h.distributed = false
	return nil
}

// SetFutureFEIndex records a pending variant for a cell, to be applied by
// ApplyFutureFEIndices in a coordinated renumbering pass.
func (h *Handler) SetFutureFEIndex(level, cell int, index doflevel.FEIndex) error {
	lvl, err := h.Level(level)
	if err != nil {
		return err
	}
	if cell < 0 || cell >= lvl.NumCells() {
		return &ErrCellOutOfRange{Level: level, Cell: cell, NumCells: lvl.NumCells()}
	}
	if index != doflevel.InvalidFEIndex && int(index) >= h.collection.Len() {
		return &ErrUnknownVariant{FE: index, NFEs: h.collection.Len()}
	}
	lvl.SetFutureFEIndex(cell, index)
	return nil
}

// ApplyFutureFEIndices promotes every pending future variant to the
// active one and clears the pending slot. Levels holding compressed runs
// are normalized first. Afterwards the numbering is stale and
// DistributeDoFs must run again.
func (h *Handler) ApplyFutureFEIndices() {
	for _, lvl := range h.levels {
		normalized := false
		for cell := 0; cell < lvl.NumCells(); cell++ {
			future := lvl.FutureFEIndex(cell)
			if future == doflevel.InvalidFEIndex {
				continue
			}
			if !normalized {
				lvl.Normalize()
				normalized = true
			}
			lvl.SetActiveFEIndex(cell, future)
			lvl.SetFutureFEIndex(cell, doflevel.InvalidFEIndex)
			h.distributed = false
		}
	}
}

// DistributeDoFs numbers all DoFs sequentially across levels: every cell
// with an assigned variant becomes active and receives a consecutive run
// of fresh indices. Existing runs are discarded. The per-level cell
// caches are rebuilt as part of the pass.
//
// Returns the total number of DoFs handed out.
func (h *Handler) DistributeDoFs(ctx context.Context) (uint64, error) {
	start := time.Now()

	var next uint64
	for _, lvl := range h.levels {
		if err := ctx.Err(); err != nil {
			h.opts.metrics.RecordDistribute(0, time.Since(start), err)
			return 0, err
		}
		lvl.ClearDoFs()
		for cell := 0; cell < lvl.NumCells(); cell++ {
			index := lvl.ActiveFEIndex(cell)
			if index == doflevel.InvalidFEIndex {
				continue
			}
			n := h.collection.DoFsPerObject(index, h.dim)
			run := make([]uint64, n)
			for i := range run {
				run[i] = next + uint64(i)
			}
			lvl.AppendCellDoFs(cell, run)
			next += uint64(n)
		}
		lvl.RebuildCellCache(h.collection, h.dim)
	}

	h.totalDoFs = next
	h.distributed = true

	h.opts.metrics.RecordDistribute(next, time.Since(start), nil)
	h.opts.logger.LogDistribute(ctx, len(h.levels), next, time.Since(start))
	return next, nil
}

// NDoFs returns the total number of DoFs handed out by the last
// distribution pass.
func (h *Handler) NDoFs() (uint64, error) {
	if !h.distributed {
		return 0, ErrNotDistributed
	}
	return h.totalDoFs, nil
}

// CompressAll compresses every level store, in parallel across levels
// (each store is independently owned, so levels need no coordination
// beyond the final Wait). All levels must be fully expanded.
func (h *Handler) CompressAll(ctx context.Context) error {
	start := time.Now()
	before := h.totalSlots()

	err := h.forEachLevel(ctx, func(lvl *doflevel.Level) {
		lvl.Compress(h.collection, h.dim)
	})

	after := h.totalSlots()
	h.opts.metrics.RecordCompress(before-after, time.Since(start), err)
	h.opts.logger.LogCompress(ctx, before, after, time.Since(start))
	return err
}

// UncompressAll expands every level store back to its full form, in
// parallel across levels, and rebuilds the per-level cell caches.
func (h *Handler) UncompressAll(ctx context.Context) error {
	start := time.Now()

	err := h.forEachLevel(ctx, func(lvl *doflevel.Level) {
		lvl.Uncompress(h.collection, h.dim)
		lvl.RebuildCellCache(h.collection, h.dim)
	})

	h.opts.metrics.RecordUncompress(time.Since(start), err)
	h.opts.logger.LogUncompress(ctx, h.totalSlots(), time.Since(start))
	return err
}

func (h *Handler) forEachLevel(ctx context.Context, fn func(lvl *doflevel.Level)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.parallelism)
	for _, lvl := range h.levels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(lvl)
			return nil
		})
	}
	return g.Wait()
}

func (h *Handler) totalSlots() int {
	total := 0
	for _, lvl := range h.levels {
		total += lvl.NumDoFIndices()
	}
	return total
}

// LocallyOwnedDoFs returns the set of global DoF indices attached to
// cells of the given level. It works in compressed, expanded and mixed
// states; for a sequentially distributed handler the result is a single
// contiguous range.
func (h *Handler) LocallyOwnedDoFs(level int) (*indexset.Set, error) {
	lvl, err := h.Level(level)
	if err != nil {
		return nil, err
	}

	s := indexset.New()
	for cell := 0; cell < lvl.NumCells(); cell++ {
		if !lvl.IsActive(cell) {
			continue
		}
		run := lvl.CellDoFs(cell)
		if lvl.IsCompressed(cell) {
			n := h.collection.DoFsPerObject(lvl.ActiveFEIndex(cell), h.dim)
			s.AddRange(run[0], run[0]+uint64(n))
			continue
		}
		for _, dof := range run {
			s.Add(dof)
		}
	}
	return s, nil
}

// MemoryConsumption returns the summed memory footprint of all level
// stores in bytes.
func (h *Handler) MemoryConsumption() uintptr {
	var total uintptr
	for _, lvl := range h.levels {
		total += lvl.MemoryConsumption()
	}
	return total
}
