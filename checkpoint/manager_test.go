package checkpoint

import (
	"context"
	"testing"

	"github.com/hupe1980/meshdof/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSaveRestore(t *testing.T) {
	ctx := context.Background()
	h, coll := newDistributedHandler(t)

	store := blobstore.NewMemoryStore()
	m := NewManager(store, WithCompression(CompressionLZ4), WithParallelism(2))

	require.NoError(t, m.Save(ctx, "run-1/step-100", h))

	// One blob per level plus the manifest.
	names, err := store.List(ctx, "run-1/step-100/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"run-1/step-100/levels/000000.bin",
		"run-1/step-100/levels/000001.bin",
		"run-1/step-100/manifest.bin",
	}, names)

	restored, err := m.Restore(ctx, "run-1/step-100", coll)
	require.NoError(t, err)
	requireSameLevels(t, h, restored)
}

func TestManagerCompressedStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	h, coll := newDistributedHandler(t)
	require.NoError(t, h.CompressAll(ctx))

	store := blobstore.NewMemoryStore()
	m := NewManager(store)

	require.NoError(t, m.Save(ctx, "ckpt", h))
	restored, err := m.Restore(ctx, "ckpt", coll)
	require.NoError(t, err)
	requireSameLevels(t, h, restored)
}

func TestManagerIOLimit(t *testing.T) {
	ctx := context.Background()
	h, coll := newDistributedHandler(t)

	store := blobstore.NewMemoryStore()
	// Generous limit so the test stays fast; exercises the throttle path.
	m := NewManager(store, WithIOLimit(8<<20))

	require.NoError(t, m.Save(ctx, "throttled", h))
	restored, err := m.Restore(ctx, "throttled", coll)
	require.NoError(t, err)
	requireSameLevels(t, h, restored)
}

func TestManagerRestoreMissing(t *testing.T) {
	ctx := context.Background()
	_, coll := newDistributedHandler(t)

	m := NewManager(blobstore.NewMemoryStore())
	_, err := m.Restore(ctx, "does-not-exist", coll)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestManagerListAndDelete(t *testing.T) {
	ctx := context.Background()
	h, _ := newDistributedHandler(t)

	store := blobstore.NewMemoryStore()
	m := NewManager(store)

	require.NoError(t, m.Save(ctx, "run-1/step-100", h))
	require.NoError(t, m.Save(ctx, "run-1/step-200", h))

	checkpoints, err := m.List(ctx, "run-1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1/step-100", "run-1/step-200"}, checkpoints)

	require.NoError(t, m.Delete(ctx, "run-1/step-100"))

	checkpoints, err = m.List(ctx, "run-1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1/step-200"}, checkpoints)

	names, err := store.List(ctx, "run-1/step-100/")
	require.NoError(t, err)
	assert.Empty(t, names, "deleted checkpoint leaves no blobs behind")
}

func TestManagerSaveCancelled(t *testing.T) {
	h, _ := newDistributedHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager(blobstore.NewMemoryStore())
	err := m.Save(ctx, "cancelled", h)
	require.ErrorIs(t, err, context.Canceled)
}
