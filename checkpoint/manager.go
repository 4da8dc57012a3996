package checkpoint

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"path"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/meshdof"
	"github.com/hupe1980/meshdof/blobstore"
	"github.com/hupe1980/meshdof/doflevel"
	"github.com/hupe1980/meshdof/fe"
)

// Manager saves and restores handler checkpoints against a blob store.
// Each level becomes its own blob so level uploads and downloads run in
// parallel, plus a small manifest blob recording the mesh dimension and
// level count.
type Manager struct {
	store       blobstore.Store
	compression Compression
	parallelism int
	ioLimiter   *rate.Limiter // nil if unlimited
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCompression selects the block compression for level blobs.
func WithCompression(c Compression) ManagerOption {
	return func(m *Manager) {
		m.compression = c
	}
}

// WithParallelism bounds the number of concurrent blob transfers.
func WithParallelism(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// WithIOLimit throttles blob transfers to the given number of bytes per
// second. Zero or negative means unlimited.
func WithIOLimit(bytesPerSec int64) ManagerOption {
	return func(m *Manager) {
		if bytesPerSec > 0 {
			m.ioLimiter = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
		} else {
			m.ioLimiter = nil
		}
	}
}

// NewManager creates a checkpoint manager on top of the given store.
func NewManager(store blobstore.Store, optFns ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		compression: CompressionZSTD,
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, fn := range optFns {
		fn(m)
	}
	return m
}

func manifestKey(name string) string {
	return path.Join(name, "manifest.bin")
}

func levelKey(name string, level int) string {
	return path.Join(name, fmt.Sprintf("levels/%06d.bin", level))
}

// Save uploads the handler as a checkpoint under the given name. Level
// blobs upload in parallel; the manifest is written last so a checkpoint
// is only discoverable once all of its levels are in place.
func (m *Manager) Save(ctx context.Context, name string, h *meshdof.Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)

	for l := 0; l < h.NumLevels(); l++ {
		lvl, err := h.Level(l)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := saveLevels(&buf, []*doflevel.Level{lvl}, h.Dim(), m.compression); err != nil {
				return fmt.Errorf("checkpoint: encode level %d: %w", l, err)
			}
			if err := m.throttle(ctx, buf.Len()); err != nil {
				return err
			}
			if err := m.store.Put(ctx, levelKey(name, l), buf.Bytes()); err != nil {
				return fmt.Errorf("checkpoint: upload level %d: %w", l, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	manifest := encodeManifest(h.Dim(), h.NumLevels(), m.compression)
	if err := m.store.Put(ctx, manifestKey(name), manifest); err != nil {
		return fmt.Errorf("checkpoint: upload manifest: %w", err)
	}
	return nil
}

// Restore downloads the named checkpoint and rebuilds a handler around
// the given element collection.
func (m *Manager) Restore(ctx context.Context, name string, collection *fe.Collection, optFns ...meshdof.Option) (*meshdof.Handler, error) {
	manifestData, err := m.fetch(ctx, manifestKey(name))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read manifest: %w", err)
	}
	dim, numLevels, err := decodeManifest(manifestData)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: decode manifest: %w", err)
	}

	levels := make([]*doflevel.Level, numLevels)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for l := 0; l < numLevels; l++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			data, err := m.fetch(ctx, levelKey(name, l))
			if err != nil {
				return fmt.Errorf("checkpoint: download level %d: %w", l, err)
			}
			header, decoded, err := loadLevels(data)
			if err != nil {
				return fmt.Errorf("checkpoint: decode level %d: %w", l, err)
			}
			if int(header.Dim) != dim || len(decoded) != 1 {
				return fmt.Errorf("checkpoint: level %d does not match manifest", l)
			}
			levels[l] = decoded[0]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return meshdof.NewFromLevels(collection, dim, levels, optFns...)
}

// Delete removes the named checkpoint from the store, manifest first so
// a concurrent Restore fails fast instead of seeing partial levels.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := m.store.Delete(ctx, manifestKey(name)); err != nil {
		return err
	}
	names, err := m.store.List(ctx, path.Join(name, "levels")+"/")
	if err != nil {
		return err
	}
	for _, n := range names {
		if err := m.store.Delete(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// List returns the names of all checkpoints under the given prefix.
func (m *Manager) List(ctx context.Context, prefix string) ([]string, error) {
	names, err := m.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var checkpoints []string
	for _, n := range names {
		if path.Base(n) == "manifest.bin" {
			checkpoints = append(checkpoints, path.Dir(n))
		}
	}
	return checkpoints, nil
}

func (m *Manager) fetch(ctx context.Context, key string) ([]byte, error) {
	blob, err := m.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	if err := m.throttle(ctx, int(blob.Size())); err != nil {
		return nil, err
	}

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// throttle charges n bytes against the IO limiter, chunked so a single
// large transfer never exceeds the limiter burst.
func (m *Manager) throttle(ctx context.Context, n int) error {
	if m.ioLimiter == nil {
		return nil
	}
	burst := m.ioLimiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := m.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// encodeManifest produces the manifest blob: the file header with no
// payload, closed by the same CRC trailer as the level blobs.
func encodeManifest(dim, numLevels int, compression Compression) []byte {
	var buf bytes.Buffer
	header := fileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Compression: uint8(compression),
		Dim:         uint8(dim),
		NumLevels:   uint32(numLevels),
	}
	_ = binary.Write(&buf, binary.LittleEndian, header)
	_ = binary.Write(&buf, binary.LittleEndian, ComputeChecksum(buf.Bytes()))
	return buf.Bytes()
}

func decodeManifest(data []byte) (dim, numLevels int, err error) {
	if len(data) != fileHeaderSize+4 {
		return 0, 0, ErrTruncated
	}
	body, trailer := data[:fileHeaderSize], data[fileHeaderSize:]
	expected := binary.LittleEndian.Uint32(trailer)
	if actual := ComputeChecksum(body); actual != expected {
		return 0, 0, &ChecksumMismatchError{Expected: expected, Actual: actual}
	}

	var header fileHeader
	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, &header); err != nil {
		return 0, 0, err
	}
	if header.Magic != MagicNumber {
		return 0, 0, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return 0, 0, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, header.Version)
	}
	return int(header.Dim), int(header.NumLevels), nil
}
