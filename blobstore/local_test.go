package blobstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutOpenRead", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "levels/0.bin", []byte("hello level")))

		b, err := s.Open(ctx, "levels/0.bin")
		require.NoError(t, err)
		defer b.Close()

		assert.Equal(t, int64(11), b.Size())

		p := make([]byte, 5)
		n, err := b.ReadAt(ctx, p, 6)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "level", string(p))

		rc, err := b.ReadRange(ctx, 0, 5)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "hello", string(data))
	})

	t.Run("CreateStreaming", func(t *testing.T) {
		w, err := s.Create(ctx, "levels/1.bin")
		require.NoError(t, err)
		_, err = w.Write([]byte("part1-"))
		require.NoError(t, err)
		_, err = w.Write([]byte("part2"))
		require.NoError(t, err)
		require.NoError(t, w.Sync())
		require.NoError(t, w.Close())

		b, err := s.Open(ctx, "levels/1.bin")
		require.NoError(t, err)
		defer b.Close()
		assert.Equal(t, int64(11), b.Size())
	})

	t.Run("List", func(t *testing.T) {
		names, err := s.List(ctx, "levels/")
		require.NoError(t, err)
		assert.Equal(t, []string{"levels/0.bin", "levels/1.bin"}, names)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "levels/1.bin"))
		require.NoError(t, s.Delete(ctx, "levels/1.bin"), "double delete is fine")

		_, err := s.Open(ctx, "levels/1.bin")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestLocalStore(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	testStore(t, s)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}
