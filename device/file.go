package device

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	blockfs "github.com/behrlich/go-blockfs"
)

// File is a block device backed by an image file on the host filesystem.
// The image must already exist and its size must be a multiple of the
// configured block size. It reports no erase geometry: files rewrite in
// place.
type File struct {
	path      string
	blockSize int64

	mu   sync.Mutex
	f    *os.File
	size int64
}

var _ blockfs.BlockDevice = (*File)(nil)

// NewFile creates a device over the image at path with blockSize-byte
// read/program units. The file is opened at Init.
func NewFile(path string, blockSize int64) *File {
	return &File{path: path, blockSize: blockSize}
}

// Init implements BlockDevice by opening the image read-write.
func (d *File) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f != nil {
		return nil
	}
	if d.blockSize <= 0 {
		return blockfs.NewError("file.init", blockfs.ErrCodeInvalidParameters,
			fmt.Sprintf("block size %d", d.blockSize))
	}

	f, err := os.OpenFile(d.path, os.O_RDWR, 0)
	if err != nil {
		return blockfs.WrapError("file.init", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return blockfs.WrapError("file.init", err)
	}
	if st.Size()%d.blockSize != 0 {
		f.Close()
		return blockfs.NewError("file.init", blockfs.ErrCodeInvalidParameters,
			fmt.Sprintf("image size %d not a multiple of block size %d", st.Size(), d.blockSize))
	}

	d.f = f
	d.size = st.Size()
	return nil
}

// Deinit implements BlockDevice by closing the image.
func (d *File) Deinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	d.size = 0
	if err != nil {
		return blockfs.WrapError("file.deinit", err)
	}
	return nil
}

// ReadAt implements BlockDevice.
func (d *File) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check("file.read", p, off); err != nil {
		return 0, err
	}
	n, err := d.f.ReadAt(p, off)
	if err != nil {
		return n, blockfs.WrapError("file.read", err)
	}
	return n, nil
}

// WriteAt implements BlockDevice.
func (d *File) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check("file.write", p, off); err != nil {
		return 0, err
	}
	n, err := d.f.WriteAt(p, off)
	if err != nil {
		return n, blockfs.WrapError("file.write", err)
	}
	return n, nil
}

func (d *File) check(op string, p []byte, off int64) error {
	if d.f == nil {
		return blockfs.NewError(op, blockfs.ErrCodeNotInitialized, "")
	}
	if off < 0 || off+int64(len(p)) > d.size {
		return blockfs.NewError(op, blockfs.ErrCodeOutOfBounds,
			fmt.Sprintf("[%d,%d) outside %d-byte image", off, off+int64(len(p)), d.size))
	}
	if off%d.blockSize != 0 || int64(len(p))%d.blockSize != 0 {
		return blockfs.NewError(op, blockfs.ErrCodeMisaligned,
			fmt.Sprintf("offset %d length %d not aligned to %d-byte blocks", off, len(p), d.blockSize))
	}
	return nil
}

// Sync implements BlockDevice by fsyncing the image.
func (d *File) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.f == nil {
		return blockfs.NewError("file.sync", blockfs.ErrCodeNotInitialized, "")
	}
	if err := unix.Fsync(int(d.f.Fd())); err != nil {
		return blockfs.WrapError("file.sync", err)
	}
	return nil
}

// Size implements BlockDevice.
func (d *File) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// ReadSize implements BlockDevice.
func (d *File) ReadSize() int64 {
	return d.blockSize
}

// WriteSize implements BlockDevice.
func (d *File) WriteSize() int64 {
	return d.blockSize
}

// EraseSize implements BlockDevice. Image files have no erase geometry.
func (d *File) EraseSize() int64 {
	return 0
}
