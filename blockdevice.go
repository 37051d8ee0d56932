// Package blockfs composes block devices and exposes them through a
// file-system-like API backed by an external FAT driver.
//
// The package has two halves. The composition half slices a device into a
// sub-range (SlicingDevice) or concatenates several devices into one
// contiguous address space (ChainingDevice). The filesystem half binds a
// device to a volume slot in a Registry and adapts POSIX-style open, read,
// write and stat semantics onto a fatlib.Driver.
package blockfs

// BlockDevice is the storage capability everything in this package is built
// on. Offsets and lengths are in bytes; every offset and length passed to
// ReadAt or WriteAt must be a multiple of the relevant unit size.
//
// A device must be initialized with Init before any I/O and deinitialized
// with Deinit to release resources. There is no implicit reinitialization.
//
// Implementations are borrowed, never owned: the caller retains lifetime
// responsibility for a device it hands to a composition wrapper or mounts
// into a Registry.
type BlockDevice interface {
	// Init initializes the device for use.
	Init() error

	// Deinit releases the device's resources.
	Deinit() error

	// ReadAt reads len(p) bytes into p starting at byte offset off.
	// It returns the number of bytes read and a non-nil error whenever
	// n < len(p). Partial reads are never silently successful.
	ReadAt(p []byte, off int64) (n int, err error)

	// WriteAt programs len(p) bytes from p at byte offset off. It returns
	// a non-nil error whenever n < len(p).
	WriteAt(p []byte, off int64) (n int, err error)

	// Sync flushes any buffered writes to the medium.
	Sync() error

	// Size returns the total device size in bytes.
	Size() int64

	// ReadSize returns the minimum read unit in bytes.
	ReadSize() int64

	// WriteSize returns the minimum program unit in bytes.
	WriteSize() int64

	// EraseSize returns the erase unit in bytes, or 0 when the device has
	// no erase geometry.
	EraseSize() int64
}

// alignUnit returns the alignment granularity for slice boundaries on dev:
// the erase size when the device has erase geometry, the write size
// otherwise.
func alignUnit(dev BlockDevice) int64 {
	if es := dev.EraseSize(); es > 0 {
		return es
	}
	return dev.WriteSize()
}

// aligned reports whether v is a non-negative multiple of unit.
func aligned(v, unit int64) bool {
	return unit > 0 && v >= 0 && v%unit == 0
}
