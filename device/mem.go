// Package device provides concrete BlockDevice implementations: a RAM-backed
// device for testing and volatile volumes, and a device backed by an image
// file on the host filesystem.
package device

import (
	"fmt"
	"sync"

	blockfs "github.com/behrlich/go-blockfs"
)

// Memory is a RAM-backed block device with uniform read/program/erase
// geometry. Contents survive Deinit/Init cycles the way a physical medium
// would; they are lost when the device is garbage collected.
type Memory struct {
	data      []byte
	blockSize int64

	mu     sync.RWMutex
	inited bool
}

var _ blockfs.BlockDevice = (*Memory)(nil)

// NewMemory creates a memory device of the given size with blockSize-byte
// units. Geometry validation happens at Init.
func NewMemory(size, blockSize int64) *Memory {
	return &Memory{
		data:      make([]byte, size),
		blockSize: blockSize,
	}
}

// Init implements BlockDevice.
func (m *Memory) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.blockSize <= 0 || int64(len(m.data))%m.blockSize != 0 {
		return blockfs.NewError("mem.init", blockfs.ErrCodeInvalidParameters,
			fmt.Sprintf("size %d not a multiple of block size %d", len(m.data), m.blockSize))
	}
	m.inited = true
	return nil
}

// Deinit implements BlockDevice.
func (m *Memory) Deinit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inited = false
	return nil
}

// ReadAt implements BlockDevice.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check("mem.read", p, off); err != nil {
		return 0, err
	}
	return copy(p, m.data[off:]), nil
}

// WriteAt implements BlockDevice.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check("mem.write", p, off); err != nil {
		return 0, err
	}
	return copy(m.data[off:], p), nil
}

func (m *Memory) check(op string, p []byte, off int64) error {
	if !m.inited {
		return blockfs.NewError(op, blockfs.ErrCodeNotInitialized, "")
	}
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return blockfs.NewError(op, blockfs.ErrCodeOutOfBounds,
			fmt.Sprintf("[%d,%d) outside %d-byte device", off, off+int64(len(p)), len(m.data)))
	}
	if off%m.blockSize != 0 || int64(len(p))%m.blockSize != 0 {
		return blockfs.NewError(op, blockfs.ErrCodeMisaligned,
			fmt.Sprintf("offset %d length %d not aligned to %d-byte blocks", off, len(p), m.blockSize))
	}
	return nil
}

// Sync implements BlockDevice. Memory needs no flushing.
func (m *Memory) Sync() error {
	return nil
}

// Size implements BlockDevice.
func (m *Memory) Size() int64 {
	return int64(len(m.data))
}

// ReadSize implements BlockDevice.
func (m *Memory) ReadSize() int64 {
	return m.blockSize
}

// WriteSize implements BlockDevice.
func (m *Memory) WriteSize() int64 {
	return m.blockSize
}

// EraseSize implements BlockDevice.
func (m *Memory) EraseSize() int64 {
	return m.blockSize
}
