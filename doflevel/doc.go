// Package doflevel implements the per-level bookkeeping of global degree
// of freedom (DoF) indices for hp-adaptive meshes.
//
// A Level stores, for every cell of one mesh refinement level, which
// finite element variant the cell uses and which globally numbered DoF
// indices are attached to it. Because different variants contribute
// different DoF counts, the per-cell index runs are variable length and
// live back to back in a single flat array.
//
// Between renumbering passes the runs of most cells are consecutive
// integer sequences. Compress exploits that: a unit-stride run is
// replaced by its first index only, and a per-cell flag records the
// compressed state. Uncompress restores the expanded form exactly.
//
// The structure is single threaded. Callers must serialize access; no
// operation blocks or is cancellable.
package doflevel
