package blockfs

import (
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/behrlich/go-blockfs/fatlib"
	"github.com/behrlich/go-blockfs/internal/logging"
)

// FileSystem is one mountable FAT volume. An instance moves between exactly
// two states, unmounted and mounted, and binds one caller-owned BlockDevice
// to one volume slot in its Registry while mounted.
//
// Every operation takes the registry lock: the external library's state is
// not reentrant across volumes, so a single lock serializes all filesystem
// work process-wide.
type FileSystem struct {
	name string
	drv  fatlib.Driver
	reg  *Registry
	id   int // volume id, -1 while unmounted
	log  *logging.Logger
}

// NewFileSystem creates an unmounted filesystem named name, backed by the
// given driver and registry. The name is informational; volumes are
// addressed by the id assigned at mount time.
func NewFileSystem(name string, driver fatlib.Driver, reg *Registry) *FileSystem {
	return &FileSystem{
		name: name,
		drv:  driver,
		reg:  reg,
		id:   -1,
		log:  reg.log.WithDevice(name),
	}
}

// drive returns the short drive identifier for the mounted volume.
func (fs *FileSystem) drive() string {
	return strconv.Itoa(fs.id)
}

// fsPath prefixes name with the volume's drive identifier.
func (fs *FileSystem) fsPath(name string) string {
	return fs.drive() + ":/" + strings.TrimPrefix(name, "/")
}

// Mount binds dev to a free volume slot and mounts it through the driver.
// When force is true the driver verifies the volume immediately instead of
// deferring medium access to first use.
//
// The device is borrowed: the caller keeps ownership and must keep it alive
// until Unmount.
func (fs *FileSystem) Mount(dev BlockDevice, force bool) error {
	fs.reg.mu.Lock()
	defer fs.reg.mu.Unlock()

	if fs.id != -1 {
		return newVolumeError("mount", fs.id, ErrCodeAlreadyMounted, "")
	}

	id, ok := fs.reg.bind(dev)
	if !ok {
		return NewError("mount", ErrCodeNoFreeVolume, "")
	}
	fs.id = id

	res := fs.drv.Mount(fs.drive(), force)
	fs.reg.record(res)
	fs.reg.metrics.RecordMount(res == fatlib.OK)
	if res != fatlib.OK {
		fs.reg.unbind(id)
		fs.id = -1
		return newLibraryError("mount", id, res)
	}

	fs.log.Debug("mounted", "volume", id)
	return nil
}

// Unmount unmounts the volume through the driver and frees the volume slot.
// The slot is cleared even when the driver reports a failure, so it is
// always reusable afterwards.
func (fs *FileSystem) Unmount() error {
	fs.reg.mu.Lock()
	defer fs.reg.mu.Unlock()

	if fs.id == -1 {
		return NewError("unmount", ErrCodeNotMounted, "")
	}

	id := fs.id
	res := fs.drv.Unmount(fs.drive())
	fs.reg.record(res)
	fs.reg.metrics.RecordUnmount(res == fatlib.OK)

	fs.reg.unbind(id)
	fs.id = -1

	if res != fatlib.OK {
		return newLibraryError("unmount", id, res)
	}

	fs.log.Debug("unmounted", "volume", id)
	return nil
}

// Format creates a FAT volume on dev with the given allocation unit (bytes
// per cluster, 0 for the driver default). It mounts a transient unnamed
// instance, formats and unmounts it, never leaving a dangling mount: the
// unmount is attempted even when the format failed, and an unmount failure
// does not override a prior format failure.
func Format(driver fatlib.Driver, reg *Registry, dev BlockDevice, allocationUnit int) error {
	fs := NewFileSystem("", driver, reg)
	if err := fs.Mount(dev, false); err != nil {
		return WrapError("format", err)
	}

	fs.reg.mu.Lock()
	res := driver.Mkfs(fs.drive(), allocationUnit)
	fs.reg.record(res)
	fs.reg.metrics.RecordFormat(res == fatlib.OK)
	fs.reg.mu.Unlock()

	umErr := fs.Unmount()
	if res != fatlib.OK {
		return newLibraryError("format", -1, res)
	}
	if umErr != nil {
		return WrapError("format", umErr)
	}
	return nil
}

// Open opens name with POSIX-style flags (os.O_RDONLY, os.O_RDWR,
// os.O_WRONLY, os.O_CREATE, os.O_TRUNC, os.O_APPEND).
//
// Flag translation: read-only is the default; O_CREAT with O_TRUNC creates
// or truncates, O_CREAT without O_TRUNC opens or creates. O_APPEND
// positions the file at end-of-file after a successful open.
func (fs *FileSystem) Open(name string, flags int) (*File, error) {
	fs.reg.mu.Lock()
	defer fs.reg.mu.Unlock()

	if fs.id == -1 {
		return nil, NewError("open", ErrCodeNotMounted, "")
	}

	var mode fatlib.OpenMode
	switch {
	case flags&os.O_RDWR != 0:
		mode = fatlib.ModeRead | fatlib.ModeWrite
	case flags&os.O_WRONLY != 0:
		mode = fatlib.ModeWrite
	default:
		mode = fatlib.ModeRead
	}
	if flags&os.O_CREATE != 0 {
		if flags&os.O_TRUNC != 0 {
			mode |= fatlib.ModeCreateAlways
		} else {
			mode |= fatlib.ModeOpenAlways
		}
	}

	f, res := fs.drv.Open(fs.fsPath(name), mode)
	fs.reg.record(res)
	if res != fatlib.OK {
		fs.log.Debug("open failed", "name", name, "result", res.String())
		return nil, newLibraryError("open", fs.id, res)
	}

	if flags&os.O_APPEND != 0 {
		if res := f.Seek(f.Size()); res != fatlib.OK {
			fs.reg.record(res)
			f.Close()
			return nil, newLibraryError("open", fs.id, res)
		}
	}

	return &File{name: path.Base(name), f: f, reg: fs.reg}, nil
}

// Remove removes a file or an empty directory.
func (fs *FileSystem) Remove(name string) error {
	fs.reg.mu.Lock()
	defer fs.reg.mu.Unlock()

	if fs.id == -1 {
		return NewError("remove", ErrCodeNotMounted, "")
	}

	res := fs.drv.Unlink(fs.fsPath(name))
	fs.reg.record(res)
	if res != fatlib.OK {
		return newLibraryError("remove", fs.id, res)
	}
	return nil
}

// Rename renames or moves a file or directory within the volume.
func (fs *FileSystem) Rename(oldName, newName string) error {
	fs.reg.mu.Lock()
	defer fs.reg.mu.Unlock()

	if fs.id == -1 {
		return NewError("rename", ErrCodeNotMounted, "")
	}

	res := fs.drv.Rename(fs.fsPath(oldName), fs.fsPath(newName))
	fs.reg.record(res)
	if res != fatlib.OK {
		return newLibraryError("rename", fs.id, res)
	}
	return nil
}

// Mkdir creates a directory. The mode argument is accepted for POSIX-surface
// compatibility; FAT stores no permission bits.
func (fs *FileSystem) Mkdir(name string, mode os.FileMode) error {
	fs.reg.mu.Lock()
	defer fs.reg.mu.Unlock()

	if fs.id == -1 {
		return NewError("mkdir", ErrCodeNotMounted, "")
	}

	res := fs.drv.Mkdir(fs.fsPath(name))
	fs.reg.record(res)
	if res != fatlib.OK {
		return newLibraryError("mkdir", fs.id, res)
	}
	return nil
}

// OpenDir opens a directory for enumeration.
func (fs *FileSystem) OpenDir(name string) (*Dir, error) {
	fs.reg.mu.Lock()
	defer fs.reg.mu.Unlock()

	if fs.id == -1 {
		return nil, NewError("opendir", ErrCodeNotMounted, "")
	}

	d, res := fs.drv.OpenDir(fs.fsPath(name))
	fs.reg.record(res)
	if res != fatlib.OK {
		return nil, newLibraryError("opendir", fs.id, res)
	}
	return &Dir{name: path.Base(name), d: d, reg: fs.reg}, nil
}

// Stat returns information about the named file or directory. Library
// attributes translate to POSIX mode bits: the directory attribute selects
// ModeDir, and the read-only attribute collapses to read+execute permission
// bits for all classes (0555), full access (0777) otherwise.
func (fs *FileSystem) Stat(name string) (os.FileInfo, error) {
	fs.reg.mu.Lock()
	defer fs.reg.mu.Unlock()

	if fs.id == -1 {
		return nil, NewError("stat", ErrCodeNotMounted, "")
	}

	fi, res := fs.drv.Stat(fs.fsPath(name))
	fs.reg.record(res)
	if res != fatlib.OK {
		return nil, newLibraryError("stat", fs.id, res)
	}

	return newFileInfo(path.Base(name), fi), nil
}

// Sync is a successful no-op while mounted: the underlying library is
// always synchronized on write. It fails when the volume is not mounted.
func (fs *FileSystem) Sync() error {
	fs.reg.mu.Lock()
	defer fs.reg.mu.Unlock()

	if fs.id == -1 {
		return NewError("sync", ErrCodeNotMounted, "")
	}

	fs.reg.record(fatlib.OK)
	return nil
}

// Name returns the informational name given at construction.
func (fs *FileSystem) Name() string {
	return fs.name
}

// Mounted reports whether the instance is currently mounted.
func (fs *FileSystem) Mounted() bool {
	fs.reg.mu.Lock()
	defer fs.reg.mu.Unlock()
	return fs.id != -1
}

// VolumeID returns the volume id assigned at mount time, or -1.
func (fs *FileSystem) VolumeID() int {
	fs.reg.mu.Lock()
	defer fs.reg.mu.Unlock()
	return fs.id
}

// fileMode translates library attributes to POSIX mode bits.
func fileMode(attr fatlib.Attr) os.FileMode {
	var mode os.FileMode
	if attr&fatlib.AttrDirectory != 0 {
		mode |= os.ModeDir
	}
	if attr&fatlib.AttrReadOnly != 0 {
		mode |= 0555
	} else {
		mode |= 0777
	}
	return mode
}
