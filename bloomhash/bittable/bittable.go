package bittable

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"

	"github.com/ZanzyTHEbar/bloomhash/bloomhash/common"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// ErrZeroSize is returned when a table is created or opened with no usable bits.
var ErrZeroSize = errors.New("bit table size must be positive")

// BitTable is a fixed-size array of bits backed by a single file.
// Every access addresses its byte by explicit offset, so one BitTable must
// have exactly one writer. Read-only tables may be opened concurrently.
type BitTable struct {
	path     string
	size     uint64
	file     *os.File
	readOnly bool
}

// ByteLen returns the backing file length for size bits: ceil(size/8) plus
// one guard byte.
func ByteLen(size uint64) int64 {
	return int64((size+7)/8) + 1
}

// Locate splits a bit index into the byte holding it and the mask selecting
// it within that byte (least-significant bit first).
func Locate(bitIndex uint64) (byteIndex int64, mask byte) {
	return int64(bitIndex >> 3), 1 << (bitIndex & 7)
}

// Create creates or truncates the file at path and sizes it for size bits,
// all unset.
func Create(path string, size uint64) (*BitTable, error) {
	if size == 0 {
		return nil, ErrZeroSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, common.WrapIO("create table", path, err)
	}
	if err := f.Truncate(ByteLen(size)); err != nil {
		f.Close()
		return nil, common.WrapIO("truncate table", path, err)
	}
	return &BitTable{path: path, size: size, file: f}, nil
}

// Open opens an existing table read-only. The file length is not checked
// here; a short file surfaces as ErrTableTruncated on the first read past
// its end.
func Open(path string, size uint64) (*BitTable, error) {
	if size == 0 {
		return nil, ErrZeroSize
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, common.WrapIO("open table", path, err)
	}
	return &BitTable{path: path, size: size, file: f, readOnly: true}, nil
}

// Size returns the number of usable bits.
func (t *BitTable) Size() uint64 { return t.size }

// Path returns the backing file path.
func (t *BitTable) Path() string { return t.path }

// GetBit reports whether bit index is set. index must be in [0, Size()).
func (t *BitTable) GetBit(index uint64) (bool, error) {
	if t.file == nil {
		return false, common.ErrTableClosed
	}
	t.checkIndex(index)

	byteIndex, mask := Locate(index)
	b, err := t.readByte(byteIndex)
	if err != nil {
		return false, err
	}
	return b&mask != 0, nil
}

// SetBit sets bit index. Setting an already set bit leaves the file untouched.
func (t *BitTable) SetBit(index uint64) error {
	_, _, err := t.setBit(index)
	return err
}

// SetBitTrace is SetBit that also returns the addressed byte before and
// after the update.
func (t *BitTable) SetBitTrace(index uint64) (before, after byte, err error) {
	return t.setBit(index)
}

func (t *BitTable) setBit(index uint64) (byte, byte, error) {
	if t.file == nil {
		return 0, 0, common.ErrTableClosed
	}
	if t.readOnly {
		return 0, 0, common.ErrTableReadOnly
	}
	t.checkIndex(index)

	byteIndex, mask := Locate(index)
	before, err := t.readByte(byteIndex)
	if err != nil {
		return 0, 0, err
	}
	after := before | mask
	if after == before {
		return before, after, nil
	}
	if _, err := t.file.WriteAt([]byte{after}, byteIndex); err != nil {
		return before, before, common.WrapIO("write table", t.path, err)
	}
	return before, after, nil
}

func (t *BitTable) checkIndex(index uint64) {
	if index >= t.size {
		panic(fmt.Sprintf("bittable: index %d out of range [0,%d)", index, t.size))
	}
}

func (t *BitTable) readByte(offset int64) (byte, error) {
	var buf [1]byte
	n, err := t.file.ReadAt(buf[:], offset)
	if n == 1 {
		return buf[0], nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%s: byte %d: %w", t.path, offset, common.ErrTableTruncated)
	}
	return 0, common.WrapIO("read table", t.path, err)
}

// Snapshot returns the indices of every set bit in [0, Size()).
func (t *BitTable) Snapshot() (*roaring64.Bitmap, error) {
	if t.file == nil {
		return nil, common.ErrTableClosed
	}

	want := ByteLen(t.size)
	r := bufio.NewReader(io.NewSectionReader(t.file, 0, want))
	bm := roaring64.New()

	var byteIndex uint64
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, common.WrapIO("read table", t.path, err)
		}
		for b != 0 {
			idx := byteIndex<<3 | uint64(bits.TrailingZeros8(b))
			if idx < t.size {
				bm.Add(idx)
			}
			b &= b - 1
		}
		byteIndex++
	}
	if int64(byteIndex) < want {
		return bm, fmt.Errorf("%s: %d of %d bytes: %w", t.path, byteIndex, want, common.ErrTableTruncated)
	}
	return bm, nil
}

// FillRatio returns the fraction of usable bits that are set.
func (t *BitTable) FillRatio() (float64, error) {
	bm, err := t.Snapshot()
	if err != nil {
		return 0, err
	}
	return float64(bm.GetCardinality()) / float64(t.size), nil
}

// Sync flushes written bytes to stable storage.
func (t *BitTable) Sync() error {
	if t.file == nil {
		return common.ErrTableClosed
	}
	if t.readOnly {
		return nil
	}
	return common.WrapIO("sync table", t.path, t.file.Sync())
}

// Close releases the file handle. Closing twice is a no-op.
func (t *BitTable) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return common.WrapIO("close table", t.path, err)
}
