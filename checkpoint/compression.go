package checkpoint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Block framing: [UncompressedSize uint32][CompressedSize uint32][Data...]
// If CompressedSize == 0, the block is stored raw.

const blockHeaderSize = 8

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// compressBlock encodes one framed block. Blocks that do not shrink by at
// least 10% are stored raw so the reader never pays a decompression cost
// for incompressible data.
func compressBlock(data []byte, compression Compression) ([]byte, error) {
	var compressed []byte
	var err error

	switch compression {
	case CompressionLZ4:
		compressed, err = compressBlockLZ4(data)
	case CompressionZSTD:
		compressed, err = compressBlockZSTD(data)
	case CompressionNone:
		// fall through to the raw branch
	default:
		return nil, errors.New("unknown compression type")
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		result := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(result[4:], 0) // 0 = raw
		copy(result[blockHeaderSize:], data)
		return result, nil
	}

	result := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(result[4:], uint32(len(compressed)))
	copy(result[blockHeaderSize:], compressed)
	return result, nil
}

func compressBlockLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return compressed[:n], nil
}

func compressBlockZSTD(data []byte) ([]byte, error) {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(data, nil), nil
}

// blockWriter buffers payload bytes and emits framed blocks to the
// underlying writer.
type blockWriter struct {
	w           io.Writer
	compression Compression
	blockSize   int
	buffer      *bytes.Buffer
}

func newBlockWriter(w io.Writer, compression Compression, blockSize int) *blockWriter {
	if blockSize <= 0 {
		blockSize = 256 * 1024
	}
	return &blockWriter{
		w:           w,
		compression: compression,
		blockSize:   blockSize,
		buffer:      bytes.NewBuffer(make([]byte, 0, blockSize)),
	}
}

func (c *blockWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		space := c.blockSize - c.buffer.Len()
		if space <= 0 {
			if err := c.flushBlock(); err != nil {
				return total, err
			}
			space = c.blockSize
		}

		toWrite := len(p)
		if toWrite > space {
			toWrite = space
		}

		n, err := c.buffer.Write(p[:toWrite])
		if err != nil {
			return total, err
		}
		total += n
		p = p[n:]
	}
	return total, nil
}

func (c *blockWriter) flushBlock() error {
	if c.buffer.Len() == 0 {
		return nil
	}

	block, err := compressBlock(c.buffer.Bytes(), c.compression)
	if err != nil {
		return err
	}
	if _, err := c.w.Write(block); err != nil {
		return err
	}
	c.buffer.Reset()
	return nil
}

// Flush writes any remaining buffered data as a final block.
func (c *blockWriter) Flush() error {
	return c.flushBlock()
}

// decompressBlocks decodes a sequence of framed blocks back into the
// contiguous payload.
func decompressBlocks(data []byte, compression Compression) ([]byte, error) {
	var result []byte
	off := 0

	for off < len(data) {
		if off+blockHeaderSize > len(data) {
			return nil, ErrTruncated
		}
		uncompressedSize := int(binary.LittleEndian.Uint32(data[off:]))
		compressedSize := int(binary.LittleEndian.Uint32(data[off+4:]))
		off += blockHeaderSize

		if compressedSize == 0 {
			if off+uncompressedSize > len(data) {
				return nil, ErrTruncated
			}
			result = append(result, data[off:off+uncompressedSize]...)
			off += uncompressedSize
			continue
		}

		if off+compressedSize > len(data) {
			return nil, ErrTruncated
		}
		block := data[off : off+compressedSize]
		off += compressedSize

		switch compression {
		case CompressionZSTD:
			dec := getZstdDecoder()
			decoded, err := dec.DecodeAll(block, make([]byte, 0, uncompressedSize))
			putZstdDecoder(dec)
			if err != nil {
				return nil, err
			}
			if len(decoded) != uncompressedSize {
				return nil, errors.New("decompressed size mismatch")
			}
			result = append(result, decoded...)

		default: // LZ4
			decoded := make([]byte, uncompressedSize)
			n, err := lz4.UncompressBlock(block, decoded)
			if err != nil {
				return nil, err
			}
			if n != uncompressedSize {
				return nil, errors.New("decompressed size mismatch")
			}
			result = append(result, decoded...)
		}
	}

	return result, nil
}
