package checkpoint

import (
	"encoding/binary"
	"io"
	"unsafe"

	"github.com/hupe1980/meshdof/doflevel"
)

// Raw slice encoding in little-endian byte order. Slices are written via
// direct memory conversion (native on x86/ARM), mirroring how the level
// arrays are laid out in memory, so encoding a large store costs no
// per-element work.

// sliceWriter writes the level arrays as raw bytes.
type sliceWriter struct {
	w io.Writer
}

func (sw *sliceWriter) writeLevelHeader(h levelHeader) error {
	return binary.Write(sw.w, binary.LittleEndian, h)
}

func (sw *sliceWriter) writeUint32Slice(slice []uint32) error {
	if len(slice) == 0 {
		return nil
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*4)
	_, err := sw.w.Write(byteSlice)
	return err
}

func (sw *sliceWriter) writeUint64Slice(slice []uint64) error {
	if len(slice) == 0 {
		return nil
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*8)
	_, err := sw.w.Write(byteSlice)
	return err
}

func (sw *sliceWriter) writeFEIndexSlice(slice []doflevel.FEIndex) error {
	if len(slice) == 0 {
		return nil
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), len(slice)*4)
	_, err := sw.w.Write(byteSlice)
	return err
}

// sliceReader reads the level arrays back out of a decoded payload.
type sliceReader struct {
	data []byte
	off  int
}

func (sr *sliceReader) take(n int) ([]byte, error) {
	if sr.off+n > len(sr.data) {
		return nil, ErrTruncated
	}
	b := sr.data[sr.off : sr.off+n]
	sr.off += n
	return b, nil
}

func (sr *sliceReader) readLevelHeader() (levelHeader, error) {
	var h levelHeader
	b, err := sr.take(24)
	if err != nil {
		return h, err
	}
	h.NumCells = binary.LittleEndian.Uint64(b[0:])
	h.NumDoFIndices = binary.LittleEndian.Uint64(b[8:])
	h.BitsetWords = binary.LittleEndian.Uint64(b[16:])
	return h, nil
}

func (sr *sliceReader) readUint32Slice(count int) ([]uint32, error) {
	if count == 0 {
		return nil, nil
	}
	b, err := sr.take(count * 4)
	if err != nil {
		return nil, err
	}
	slice := make([]uint32, count)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*4), b)
	return slice, nil
}

func (sr *sliceReader) readUint64Slice(count int) ([]uint64, error) {
	if count == 0 {
		return nil, nil
	}
	b, err := sr.take(count * 8)
	if err != nil {
		return nil, err
	}
	slice := make([]uint64, count)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*8), b)
	return slice, nil
}

func (sr *sliceReader) readFEIndexSlice(count int) ([]doflevel.FEIndex, error) {
	if count == 0 {
		return nil, nil
	}
	b, err := sr.take(count * 4)
	if err != nil {
		return nil, err
	}
	slice := make([]doflevel.FEIndex, count)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&slice[0])), count*4), b)
	return slice, nil
}
