package blockfs

import (
	"fmt"
	"sort"
)

// ChainingDevice presents an ordered list of underlying devices as one
// contiguous address space equal to the sum of their sizes. Operations that
// span a member boundary are split into per-member sub-operations.
//
// The composite read, write and erase unit sizes are the maximum of the
// member unit sizes. Heterogeneous geometries that cannot decompose into
// aligned per-member ranges are rejected at Init rather than padded.
//
// Composite writes are not transactional: a member failure partway through
// aborts the call and earlier member writes stay applied.
type ChainingDevice struct {
	devs []BlockDevice

	// bounds[i] is the composite offset where member i begins;
	// bounds[len(devs)] is the composite size. Built at Init.
	bounds []int64

	readSize  int64
	writeSize int64
	eraseSize int64
	inited    bool
}

var _ BlockDevice = (*ChainingDevice)(nil)

// NewChainingDevice creates a chain over devs in order. The members are
// borrowed and must outlive the chain.
func NewChainingDevice(devs []BlockDevice) *ChainingDevice {
	return &ChainingDevice{devs: append([]BlockDevice(nil), devs...)}
}

// Init initializes every member, derives the composite unit sizes and builds
// the cumulative boundary table. It fails with a configuration error when
// the chain is empty, when a member unit size does not divide the composite
// unit size, or when a member size is not a multiple of the composite write
// (or erase) unit.
func (c *ChainingDevice) Init() error {
	if len(c.devs) == 0 {
		return NewError("chain.init", ErrCodeInvalidParameters, "empty chain")
	}

	for i, dev := range c.devs {
		if err := dev.Init(); err != nil {
			return WrapError(fmt.Sprintf("chain.init[%d]", i), err)
		}
	}

	c.readSize, c.writeSize, c.eraseSize = 1, 1, 0
	for _, dev := range c.devs {
		c.readSize = max64(c.readSize, dev.ReadSize())
		c.writeSize = max64(c.writeSize, dev.WriteSize())
		c.eraseSize = max64(c.eraseSize, dev.EraseSize())
	}

	bounds := make([]int64, len(c.devs)+1)
	for i, dev := range c.devs {
		size := dev.Size()
		if c.readSize%dev.ReadSize() != 0 || c.writeSize%dev.WriteSize() != 0 {
			return NewError("chain.init", ErrCodeIncompatibleChain,
				fmt.Sprintf("member %d unit sizes do not divide composite units %d/%d",
					i, c.readSize, c.writeSize))
		}
		if size%c.writeSize != 0 || (c.eraseSize > 0 && size%c.eraseSize != 0) {
			return NewError("chain.init", ErrCodeIncompatibleChain,
				fmt.Sprintf("member %d size %d not a multiple of composite units %d/%d",
					i, size, c.writeSize, c.eraseSize))
		}
		bounds[i+1] = bounds[i] + size
	}

	c.bounds = bounds
	c.inited = true
	return nil
}

// Deinit deinitializes every member even when some calls fail, reporting the
// first failure, and invalidates the boundary table.
func (c *ChainingDevice) Deinit() error {
	c.inited = false
	c.bounds = nil

	var first error
	for i, dev := range c.devs {
		if err := dev.Deinit(); err != nil && first == nil {
			first = WrapError(fmt.Sprintf("chain.deinit[%d]", i), err)
		}
	}
	return first
}

// ReadAt reads across the chain, splitting at member boundaries.
func (c *ChainingDevice) ReadAt(p []byte, off int64) (int, error) {
	return c.io("chain.read", p, off, false)
}

// WriteAt programs across the chain, splitting at member boundaries. A
// member failure aborts the call immediately; writes already applied to
// earlier members are not rolled back.
func (c *ChainingDevice) WriteAt(p []byte, off int64) (int, error) {
	return c.io("chain.write", p, off, true)
}

// io walks the members covering [off, off+len(p)), performing the transfer
// on each aligned sub-range.
func (c *ChainingDevice) io(op string, p []byte, off int64, write bool) (int, error) {
	unit := c.readSize
	if write {
		unit = c.writeSize
	}

	if !c.inited {
		return 0, NewError(op, ErrCodeNotInitialized, "")
	}
	size := c.bounds[len(c.devs)]
	if off < 0 || off+int64(len(p)) > size {
		return 0, NewError(op, ErrCodeOutOfBounds,
			fmt.Sprintf("[%d,%d) outside %d-byte chain", off, off+int64(len(p)), size))
	}
	if !aligned(off, unit) || !aligned(int64(len(p)), unit) {
		return 0, NewError(op, ErrCodeMisaligned,
			fmt.Sprintf("offset %d length %d not aligned to %d-byte units", off, len(p), unit))
	}

	done := 0
	for len(p) > 0 {
		// First member whose interval contains off. Boundaries are
		// monotonic, so a binary search suffices.
		i := sort.Search(len(c.devs), func(i int) bool { return c.bounds[i+1] > off })

		devOff := off - c.bounds[i]
		n := int64(len(p))
		if rest := c.bounds[i+1] - off; n > rest {
			n = rest
		}

		// The composite request is aligned in aggregate; the decomposed
		// range must also be aligned for the member it lands on.
		memberUnit := c.devs[i].ReadSize()
		if write {
			memberUnit = c.devs[i].WriteSize()
		}
		if !aligned(devOff, memberUnit) || !aligned(n, memberUnit) {
			return done, NewError(op, ErrCodeMisaligned,
				fmt.Sprintf("sub-range [%d,%d) misaligned for member %d", devOff, devOff+n, i))
		}

		var m int
		var err error
		if write {
			m, err = c.devs[i].WriteAt(p[:n], devOff)
		} else {
			m, err = c.devs[i].ReadAt(p[:n], devOff)
		}
		done += m
		if err != nil {
			return done, WrapError(fmt.Sprintf("%s[%d]", op, i), err)
		}

		p = p[n:]
		off += n
	}
	return done, nil
}

// Sync flushes every member, reporting the first failure.
func (c *ChainingDevice) Sync() error {
	for i, dev := range c.devs {
		if err := dev.Sync(); err != nil {
			return WrapError(fmt.Sprintf("chain.sync[%d]", i), err)
		}
	}
	return nil
}

// Size returns the cumulative size of all members.
func (c *ChainingDevice) Size() int64 {
	if !c.inited {
		return 0
	}
	return c.bounds[len(c.devs)]
}

// ReadSize returns the composite read unit.
func (c *ChainingDevice) ReadSize() int64 {
	return c.readSize
}

// WriteSize returns the composite program unit.
func (c *ChainingDevice) WriteSize() int64 {
	return c.writeSize
}

// EraseSize returns the composite erase unit, or 0 when no member has erase
// geometry.
func (c *ChainingDevice) EraseSize() int64 {
	return c.eraseSize
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
