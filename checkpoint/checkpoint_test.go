package checkpoint

import (
	"bytes"
	"context"
	"encoding/binary"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/hupe1980/meshdof"
	"github.com/hupe1980/meshdof/fe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDistributedHandler builds a two-level handler with a mix of
// variants, an unassigned cell, and freshly numbered DoFs.
func newDistributedHandler(t *testing.T) (*meshdof.Handler, *fe.Collection) {
	t.Helper()
	coll := fe.NewCollection(fe.Q(1), fe.Q(2), fe.DGQ(0))
	h, err := meshdof.New(coll, 2, []int{4, 3})
	require.NoError(t, err)

	require.NoError(t, h.SetActiveFEIndex(0, 0, 0))
	require.NoError(t, h.SetActiveFEIndex(0, 1, 0))
	require.NoError(t, h.SetActiveFEIndex(0, 3, 1))
	require.NoError(t, h.SetActiveFEIndex(1, 0, 2))
	require.NoError(t, h.SetActiveFEIndex(1, 2, 0))

	_, err = h.DistributeDoFs(context.Background())
	require.NoError(t, err)
	return h, coll
}

// requireSameLevels compares two handlers array by array.
func requireSameLevels(t *testing.T, want, got *meshdof.Handler) {
	t.Helper()
	require.Equal(t, want.NumLevels(), got.NumLevels())
	require.Equal(t, want.Dim(), got.Dim())

	for l := 0; l < want.NumLevels(); l++ {
		wl, err := want.Level(l)
		require.NoError(t, err)
		gl, err := got.Level(l)
		require.NoError(t, err)

		wraw, graw := wl.Raw(), gl.Raw()
		assert.Equal(t, wraw.ActiveFEIndices, graw.ActiveFEIndices, "level %d active", l)
		assert.Equal(t, wraw.FutureFEIndices, graw.FutureFEIndices, "level %d future", l)
		assert.Equal(t, wraw.DoFOffsets, graw.DoFOffsets, "level %d offsets", l)
		assert.Equal(t, wraw.DoFIndices, graw.DoFIndices, "level %d indices", l)
		assert.Equal(t, wraw.Compressed.Bytes(), graw.Compressed.Bytes(), "level %d flags", l)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	h, coll := newDistributedHandler(t)

	for name, compression := range map[string]Compression{
		"None": CompressionNone,
		"LZ4":  CompressionLZ4,
		"ZSTD": CompressionZSTD,
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Save(&buf, h, compression))

			restored, err := Load(&buf, coll)
			require.NoError(t, err)
			requireSameLevels(t, h, restored)

			wantN, err := h.NDoFs()
			require.NoError(t, err)
			gotN, err := restored.NDoFs()
			require.NoError(t, err)
			assert.Equal(t, wantN, gotN)
		})
	}
}

func TestSaveLoadCompressedStore(t *testing.T) {
	ctx := context.Background()
	h, coll := newDistributedHandler(t)

	// Snapshot the expanded arrays, then checkpoint the compressed form.
	expanded, err := Load(saveBuffer(t, h, CompressionNone), coll)
	require.NoError(t, err)

	require.NoError(t, h.CompressAll(ctx))

	restored, err := Load(saveBuffer(t, h, CompressionZSTD), coll)
	require.NoError(t, err)
	requireSameLevels(t, h, restored)

	lvl, err := restored.Level(0)
	require.NoError(t, err)
	assert.True(t, lvl.IsCompressed(0), "compression flags survive the round trip")

	// Expanding the restored handler recovers the original arrays.
	require.NoError(t, restored.UncompressAll(ctx))
	requireSameLevels(t, expanded, restored)
}

func saveBuffer(t *testing.T, h *meshdof.Handler, compression Compression) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, h, compression))
	return &buf
}

func TestLoadRejectsCorruption(t *testing.T) {
	h, coll := newDistributedHandler(t)
	data := saveBuffer(t, h, CompressionLZ4).Bytes()

	t.Run("FlippedByte", func(t *testing.T) {
		corrupt := bytes.Clone(data)
		corrupt[len(corrupt)/2] ^= 0xff

		_, err := Load(bytes.NewReader(corrupt), coll)
		require.Error(t, err)
		assert.True(t, IsChecksumMismatch(err))
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := Load(bytes.NewReader(data[:8]), coll)
		require.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("BadMagic", func(t *testing.T) {
		corrupt := bytes.Clone(data)
		binary.LittleEndian.PutUint32(corrupt, 0xdeadbeef)
		// Refresh the trailer so only the magic is wrong.
		binary.LittleEndian.PutUint32(corrupt[len(corrupt)-4:], ComputeChecksum(corrupt[:len(corrupt)-4]))

		_, err := Load(bytes.NewReader(corrupt), coll)
		require.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("BadVersion", func(t *testing.T) {
		corrupt := bytes.Clone(data)
		binary.LittleEndian.PutUint32(corrupt[4:], 0x00990000)
		binary.LittleEndian.PutUint32(corrupt[len(corrupt)-4:], ComputeChecksum(corrupt[:len(corrupt)-4]))

		_, err := Load(bytes.NewReader(corrupt), coll)
		require.ErrorIs(t, err, ErrInvalidVersion)
	})
}

func TestSaveToFileLoadFromFile(t *testing.T) {
	h, coll := newDistributedHandler(t)
	path := filepath.Join(t.TempDir(), "ckpt", "mesh.mdof")

	require.NoError(t, SaveToFile(path, h, CompressionZSTD))

	restored, err := LoadFromFile(path, coll)
	require.NoError(t, err)
	requireSameLevels(t, h, restored)
}

func TestLoadFromFileMissing(t *testing.T) {
	coll := fe.NewCollection(fe.Q(1))
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.mdof"), coll)
	require.ErrorIs(t, err, fs.ErrNotExist)
}
