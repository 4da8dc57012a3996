// Package checkpoint persists handler level stores in a compact binary
// format: a magic/version header, the raw level arrays as little-endian
// block-compressed payload, and a CRC32 trailer for corruption detection.
// Levels round-trip byte for byte whether they are stored expanded or
// compressed.
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/meshdof"
	"github.com/hupe1980/meshdof/doflevel"
	"github.com/hupe1980/meshdof/fe"
)

// Save writes all levels of the handler to w.
func Save(w io.Writer, h *meshdof.Handler, compression Compression) error {
	levels := make([]*doflevel.Level, h.NumLevels())
	for l := range levels {
		lvl, err := h.Level(l)
		if err != nil {
			return err
		}
		levels[l] = lvl
	}
	return saveLevels(w, levels, h.Dim(), compression)
}

// Load reads a checkpoint stream and rebuilds a handler around the given
// element collection. The collection is not part of the stream; the
// caller supplies the same catalog the handler was built with.
func Load(r io.Reader, collection *fe.Collection, optFns ...meshdof.Option) (*meshdof.Handler, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	header, levels, err := loadLevels(data)
	if err != nil {
		return nil, err
	}
	return meshdof.NewFromLevels(collection, int(header.Dim), levels, optFns...)
}

// SaveToFile writes a checkpoint via a temp file and an atomic rename, so
// a crash mid-write never leaves a half-written checkpoint behind.
func SaveToFile(path string, h *meshdof.Handler, compression Compression) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := Save(tmp, h, compression); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// LoadFromFile reads a checkpoint written by SaveToFile.
func LoadFromFile(path string, collection *fe.Collection, optFns ...meshdof.Option) (*meshdof.Handler, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Load(f, collection, optFns...)
}

// saveLevels encodes the full stream: header, block-compressed level
// sections, CRC32 trailer. The checksum covers the header and the
// encoded payload bytes as they appear on the wire.
func saveLevels(w io.Writer, levels []*doflevel.Level, dim int, compression Compression) error {
	cw := NewChecksumWriter(w)

	header := fileHeader{
		Magic:       MagicNumber,
		Version:     Version,
		Compression: uint8(compression),
		Dim:         uint8(dim),
		NumLevels:   uint32(len(levels)),
	}
	if err := binary.Write(cw, binary.LittleEndian, header); err != nil {
		return err
	}

	bw := newBlockWriter(cw, compression, 0)
	sw := &sliceWriter{w: bw}

	for _, lvl := range levels {
		raw := lvl.Raw()

		var words []uint64
		if raw.Compressed != nil {
			words = raw.Compressed.Bytes()
		}

		lh := levelHeader{
			NumCells:      uint64(len(raw.DoFOffsets)),
			NumDoFIndices: uint64(len(raw.DoFIndices)),
			BitsetWords:   uint64(len(words)),
		}
		if err := sw.writeLevelHeader(lh); err != nil {
			return err
		}
		if err := sw.writeFEIndexSlice(raw.ActiveFEIndices); err != nil {
			return err
		}
		if err := sw.writeFEIndexSlice(raw.FutureFEIndices); err != nil {
			return err
		}
		if err := sw.writeUint32Slice(raw.DoFOffsets); err != nil {
			return err
		}
		if err := sw.writeUint64Slice(raw.DoFIndices); err != nil {
			return err
		}
		if err := sw.writeUint64Slice(words); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	return binary.Write(w, binary.LittleEndian, cw.Sum())
}

// loadLevels decodes a full stream produced by saveLevels.
func loadLevels(data []byte) (fileHeader, []*doflevel.Level, error) {
	var header fileHeader

	if len(data) < fileHeaderSize+4 {
		return header, nil, ErrTruncated
	}

	body, trailer := data[:len(data)-4], data[len(data)-4:]
	expected := binary.LittleEndian.Uint32(trailer)
	if actual := ComputeChecksum(body); actual != expected {
		return header, nil, &ChecksumMismatchError{Expected: expected, Actual: actual}
	}

	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, &header); err != nil {
		return header, nil, err
	}
	if header.Magic != MagicNumber {
		return header, nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return header, nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, header.Version)
	}

	payload, err := decompressBlocks(body[fileHeaderSize:], Compression(header.Compression))
	if err != nil {
		return header, nil, err
	}

	sr := &sliceReader{data: payload}
	levels := make([]*doflevel.Level, 0, header.NumLevels)
	for l := uint32(0); l < header.NumLevels; l++ {
		lh, err := sr.readLevelHeader()
		if err != nil {
			return header, nil, err
		}

		var raw doflevel.RawLevel
		if raw.ActiveFEIndices, err = sr.readFEIndexSlice(int(lh.NumCells)); err != nil {
			return header, nil, err
		}
		if raw.FutureFEIndices, err = sr.readFEIndexSlice(int(lh.NumCells)); err != nil {
			return header, nil, err
		}
		if raw.DoFOffsets, err = sr.readUint32Slice(int(lh.NumCells)); err != nil {
			return header, nil, err
		}
		if raw.DoFIndices, err = sr.readUint64Slice(int(lh.NumDoFIndices)); err != nil {
			return header, nil, err
		}
		words, err := sr.readUint64Slice(int(lh.BitsetWords))
		if err != nil {
			return header, nil, err
		}
		if len(words) > 0 {
			raw.Compressed = bitset.From(words)
		}

		lvl, err := doflevel.FromRaw(raw)
		if err != nil {
			return header, nil, err
		}
		levels = append(levels, lvl)
	}

	return header, levels, nil
}
