package doflevel

// isUnitStride reports whether the run is a consecutive integer sequence.
// Runs of length 0 are not unit stride: they have nothing to compress.
func isUnitStride(run []uint64) bool {
	if len(run) == 0 {
		return false
	}
	for i := 1; i < len(run); i++ {
		if run[i] != run[i-1]+1 {
			return false
		}
	}
	return true
}

// Compress repacks the flat index array so that every unit-stride run is
// stored as its first index only, with the cell's compressed flag set.
// Non-compressible runs are copied verbatim and inactive cells keep their
// sentinel offset.
//
// The level must be fully expanded: Compress on an already compressed
// cell is a contract violation, not an idempotent no-op. Violations of
// the length invariant against the catalog, a pre-set flag, or a sizing
// mismatch between the two passes panic with a *ConsistencyError.
//
// Both arrays are rebuilt into fresh allocations sized by a first pass
// and swapped in at the end, so readers never observe a half-rewritten
// state. Flags of compressed cells are toggled in place.
func (l *Level) Compress(cat Catalog, dim int) {
	if len(l.dofOffsets) == 0 || len(l.dofIndices) == 0 {
		return
	}

	// Sizing pass: count the slots the compressed array needs, verifying
	// per cell that the expanded run length matches the catalog.
	newSize := 0
	for cell := 0; cell < len(l.dofOffsets); {
		if l.dofOffsets[cell] == invalidOffset {
			cell++
			continue
		}
		start, end, next := l.nextRun(cell)
		if l.compressed.Test(uint(cell)) {
			fail("Compress", cell, "cell already compressed; Compress requires a fully expanded level")
		}
		if n := cat.DoFsPerObject(l.activeFEIndices[cell], dim); end-start != n {
			fail("Compress", cell, "run length %d does not match catalog count %d for variant %d",
				end-start, n, l.activeFEIndices[cell])
		}
		if end > start {
			if isUnitStride(l.dofIndices[start:end]) {
				newSize++
			} else {
				newSize += end - start
			}
		}
		cell = next
	}

	// Rewrite pass into freshly allocated arrays.
	newIndices := make([]uint64, 0, newSize)
	newOffsets := make([]uint32, len(l.dofOffsets))
	for i := range newOffsets {
		newOffsets[i] = invalidOffset
	}
	for cell := 0; cell < len(l.dofOffsets); {
		if l.dofOffsets[cell] == invalidOffset {
			cell++
			continue
		}
		start, end, next := l.nextRun(cell)
		newOffsets[cell] = uint32(len(newIndices))
		if end > start {
			if isUnitStride(l.dofIndices[start:end]) {
				newIndices = append(newIndices, l.dofIndices[start])
				l.compressed.Set(uint(cell))
			} else {
				newIndices = append(newIndices, l.dofIndices[start:end]...)
			}
		}
		cell = next
	}

	if len(newIndices) != newSize {
		fail("Compress", -1, "sizing pass computed %d slots but rewrite produced %d", newSize, len(newIndices))
	}
	l.dofIndices = newIndices
	l.dofOffsets = newOffsets
}

// Uncompress restores the fully expanded form: compressed runs are
// regenerated as base, base+1, ..., base+n-1 with the flag cleared, and
// already expanded runs are copied verbatim. A mixed state is the normal
// input right after Compress.
//
// A flagged cell whose physical run length is not exactly 1, an expanded
// cell whose length disagrees with the catalog, or a sizing mismatch
// panics with a *ConsistencyError.
func (l *Level) Uncompress(cat Catalog, dim int) {
	if len(l.dofOffsets) == 0 || len(l.dofIndices) == 0 {
		return
	}

	// Sizing pass: every active cell expands to its catalog count.
	newSize := 0
	for cell := range l.dofOffsets {
		if l.dofOffsets[cell] != invalidOffset {
			newSize += cat.DoFsPerObject(l.activeFEIndices[cell], dim)
		}
	}

	newIndices := make([]uint64, 0, newSize)
	newOffsets := make([]uint32, len(l.dofOffsets))
	for i := range newOffsets {
		newOffsets[i] = invalidOffset
	}
	for cell := 0; cell < len(l.dofOffsets); {
		if l.dofOffsets[cell] == invalidOffset {
			cell++
			continue
		}
		start, end, next := l.nextRun(cell)
		newOffsets[cell] = uint32(len(newIndices))
		n := cat.DoFsPerObject(l.activeFEIndices[cell], dim)
		if !l.compressed.Test(uint(cell)) {
			if end-start != n {
				fail("Uncompress", cell, "run length %d does not match catalog count %d for variant %d",
					end-start, n, l.activeFEIndices[cell])
			}
			newIndices = append(newIndices, l.dofIndices[start:end]...)
		} else {
			if end-start != 1 {
				fail("Uncompress", cell, "compressed cell stores %d indices, want exactly 1", end-start)
			}
			base := l.dofIndices[start]
			for i := 0; i < n; i++ {
				newIndices = append(newIndices, base+uint64(i))
			}
			l.compressed.Clear(uint(cell))
		}
		cell = next
	}

	if len(newIndices) != newSize {
		fail("Uncompress", -1, "sizing pass computed %d slots but rewrite produced %d", newSize, len(newIndices))
	}
	l.dofIndices = newIndices
	l.dofOffsets = newOffsets
}

// nextRun returns the physical extent of the cell's run and the index of
// the next active cell (or NumCells), skipping inactive slots.
func (l *Level) nextRun(cell int) (start, end, next int) {
	start = int(l.dofOffsets[cell])
	next = cell + 1
	for next < len(l.dofOffsets) && l.dofOffsets[next] == invalidOffset {
		next++
	}
	if next < len(l.dofOffsets) {
		return start, int(l.dofOffsets[next]), next
	}
	return start, len(l.dofIndices), next
}
