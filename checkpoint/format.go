package checkpoint

import "errors"

const (
	// MagicNumber identifies meshdof checkpoint streams (ASCII: "MDOF").
	MagicNumber = 0x4D444F46
	// Version is the current checkpoint format version (v1.0.0).
	Version = 0x00010000
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrTruncated      = errors.New("truncated checkpoint stream")
)

// Compression selects the block compression applied to the payload.
type Compression uint8

const (
	// CompressionNone stores blocks raw.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast, good for hot data).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD block compression (better ratio, good for cold data).
	CompressionZSTD Compression = 2
)

// fileHeader is the 16-byte header at the start of every checkpoint
// stream. The payload blocks follow, and a CRC32 trailer covering the
// header and the encoded payload closes the stream.
type fileHeader struct {
	Magic       uint32 // 0x4D444F46 ("MDOF")
	Version     uint32 // Format version
	Compression uint8  // 0=None, 1=LZ4, 2=ZSTD
	Dim         uint8  // Geometric dimension of the mesh (1..3)
	Padding     [2]byte
	NumLevels   uint32 // Number of level sections in the payload
}

const fileHeaderSize = 16

// levelHeader precedes each level section inside the payload.
type levelHeader struct {
	NumCells      uint64
	NumDoFIndices uint64
	BitsetWords   uint64 // 64-bit words of the compression flag bitset
}
