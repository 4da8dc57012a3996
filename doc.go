// Package meshdof provides degree-of-freedom (DoF) bookkeeping for
// hp-adaptive mesh-based solvers.
//
// In an hp-adaptive discretization every cell may use a different finite
// element variant, so different cells contribute different numbers of
// globally numbered DoFs. This module stores, per mesh level, which DoF
// indices belong to which cell, and compacts that mapping in memory
// between renumbering passes by collapsing consecutive index runs.
//
// # Quick Start
//
//	ctx := context.Background()
//
//	coll := fe.NewCollection(fe.Q(1), fe.Q(2))
//	h, _ := meshdof.New(coll, 2, []int{64, 256}) // 2D, two levels
//
//	// Assign variants, then number all DoFs sequentially.
//	_ = h.SetActiveFEIndex(0, 3, 1)
//	total, _ := h.DistributeDoFs(ctx)
//
//	// Shrink memory between passes, expand before random access.
//	_ = h.CompressAll(ctx)
//	_ = h.UncompressAll(ctx)
//
// The per-level store lives in package doflevel, the variant catalog in
// package fe, owned-DoF sets in package indexset, and snapshot/restore in
// package checkpoint with pluggable blob storage in package blobstore.
//
// meshdof does not construct bases, assemble systems, or do linear
// algebra; it is the bookkeeping layer those sit on.
package meshdof
