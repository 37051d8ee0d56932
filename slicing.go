package blockfs

import "fmt"

// SlicingDevice presents a contiguous sub-range of one underlying device as
// an independent device. Translation is offset-only and zero-copy; the
// wrapper adds no buffering and no error recovery.
//
// Negative start or end offsets are resolved against the underlying device's
// size at Init time (a value v becomes Size()+v), and an end of 0 selects
// the end of the underlying device. This makes "the last N bytes" expressible
// as NewSlicingDevice(dev, -N, 0) without knowing the device size up front.
type SlicingDevice struct {
	dev BlockDevice

	// configured bounds, resolved at Init
	start int64
	end   int64

	// resolved state
	off    int64
	size   int64
	inited bool
}

var _ BlockDevice = (*SlicingDevice)(nil)

// NewSlicingDevice creates a slice of dev covering [start, end). The
// underlying device is borrowed and must outlive the slice. Bound validation
// happens at Init, not here.
func NewSlicingDevice(dev BlockDevice, start, end int64) *SlicingDevice {
	return &SlicingDevice{dev: dev, start: start, end: end}
}

// Init initializes the underlying device, resolves the configured bounds and
// validates them. The resolved start and end must each be aligned to the
// underlying erase size (or write size when the device has no erase
// geometry), and must satisfy 0 <= start < end <= Size().
func (s *SlicingDevice) Init() error {
	if err := s.dev.Init(); err != nil {
		return WrapError("slice.init", err)
	}

	total := s.dev.Size()
	start, end := s.start, s.end
	if start < 0 {
		start += total
	}
	if end <= 0 {
		end += total
	}

	unit := alignUnit(s.dev)
	if start < 0 || start >= end || end > total {
		return NewError("slice.init", ErrCodeInvalidSlice,
			fmt.Sprintf("range [%d,%d) on %d-byte device", start, end, total))
	}
	if !aligned(start, unit) || !aligned(end, unit) {
		return NewError("slice.init", ErrCodeInvalidSlice,
			fmt.Sprintf("range [%d,%d) not aligned to %d-byte units", start, end, unit))
	}

	s.off = start
	s.size = end - start
	s.inited = true
	return nil
}

// Deinit deinitializes the underlying device and invalidates the resolved
// bounds.
func (s *SlicingDevice) Deinit() error {
	s.inited = false
	return s.dev.Deinit()
}

// ReadAt reads from the visible range, forwarding to the underlying device
// at the translated offset. Underlying errors propagate unchanged.
func (s *SlicingDevice) ReadAt(p []byte, off int64) (int, error) {
	if !s.inited {
		return 0, NewError("slice.read", ErrCodeNotInitialized, "")
	}
	if off < 0 || off+int64(len(p)) > s.size {
		return 0, NewError("slice.read", ErrCodeOutOfBounds,
			fmt.Sprintf("[%d,%d) outside %d-byte slice", off, off+int64(len(p)), s.size))
	}
	return s.dev.ReadAt(p, off+s.off)
}

// WriteAt programs into the visible range, forwarding to the underlying
// device at the translated offset.
func (s *SlicingDevice) WriteAt(p []byte, off int64) (int, error) {
	if !s.inited {
		return 0, NewError("slice.write", ErrCodeNotInitialized, "")
	}
	if off < 0 || off+int64(len(p)) > s.size {
		return 0, NewError("slice.write", ErrCodeOutOfBounds,
			fmt.Sprintf("[%d,%d) outside %d-byte slice", off, off+int64(len(p)), s.size))
	}
	return s.dev.WriteAt(p, off+s.off)
}

// Sync flushes the underlying device.
func (s *SlicingDevice) Sync() error {
	return s.dev.Sync()
}

// Size returns the visible size, end minus start.
func (s *SlicingDevice) Size() int64 {
	return s.size
}

// ReadSize passes through from the underlying device.
func (s *SlicingDevice) ReadSize() int64 {
	return s.dev.ReadSize()
}

// WriteSize passes through from the underlying device.
func (s *SlicingDevice) WriteSize() int64 {
	return s.dev.WriteSize()
}

// EraseSize passes through from the underlying device.
func (s *SlicingDevice) EraseSize() int64 {
	return s.dev.EraseSize()
}
