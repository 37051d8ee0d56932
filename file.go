package blockfs

import (
	"io"
	"os"
	"time"

	"github.com/behrlich/go-blockfs/fatlib"
)

// File is one open file handle. It owns the underlying library file object
// exclusively and shares the registry lock with every other filesystem
// operation: all library calls stay mutually exclusive. Closing the handle
// closes the library object.
type File struct {
	name string
	f    fatlib.File
	reg  *Registry
}

// Name returns the base name the file was opened with.
func (f *File) Name() string {
	return f.name
}

// Read reads up to len(p) bytes at the current position. It returns io.EOF
// at end of file.
func (f *File) Read(p []byte) (int, error) {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return f.read(p)
}

// read performs one library read. Caller holds the registry lock.
func (f *File) read(p []byte) (int, error) {
	n, res := f.f.Read(p)
	f.reg.record(res)
	if res != fatlib.OK {
		return n, newLibraryError("file.read", -1, res)
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAt reads len(p) bytes at offset off without disturbing the logical
// read position observed by callers (the library pointer is restored before
// the lock is released).
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()

	pos := f.f.Tell()
	if res := f.f.Seek(off); res != fatlib.OK {
		f.reg.record(res)
		return 0, newLibraryError("file.readat", -1, res)
	}

	total := 0
	for total < len(p) {
		n, err := f.read(p[total:])
		total += n
		if err != nil {
			f.f.Seek(pos)
			return total, err
		}
	}

	if res := f.f.Seek(pos); res != fatlib.OK {
		f.reg.record(res)
		return total, newLibraryError("file.readat", -1, res)
	}
	return total, nil
}

// Write writes len(p) bytes at the current position. A short write (e.g. a
// full volume) returns io.ErrShortWrite.
func (f *File) Write(p []byte) (int, error) {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return f.write(p)
}

// write performs one library write. Caller holds the registry lock.
func (f *File) write(p []byte) (int, error) {
	n, res := f.f.Write(p)
	f.reg.record(res)
	if res != fatlib.OK {
		return n, newLibraryError("file.write", -1, res)
	}
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// WriteString writes s at the current position.
func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// WriteAt writes len(p) bytes at offset off, restoring the prior position.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()

	pos := f.f.Tell()
	if res := f.f.Seek(off); res != fatlib.OK {
		f.reg.record(res)
		return 0, newLibraryError("file.writeat", -1, res)
	}

	n, err := f.write(p)
	if err != nil {
		f.f.Seek(pos)
		return n, err
	}

	if res := f.f.Seek(pos); res != fatlib.OK {
		f.reg.record(res)
		return n, newLibraryError("file.writeat", -1, res)
	}
	return n, nil
}

// Seek moves the read/write position per the io.Seeker contract and returns
// the new absolute offset.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.f.Tell() + offset
	case io.SeekEnd:
		abs = f.f.Size() + offset
	default:
		return 0, NewError("file.seek", ErrCodeInvalidParameters, "invalid whence")
	}

	if abs < 0 {
		return 0, NewError("file.seek", ErrCodeInvalidParameters, "negative position")
	}

	res := f.f.Seek(abs)
	f.reg.record(res)
	if res != fatlib.OK {
		return 0, newLibraryError("file.seek", -1, res)
	}
	return abs, nil
}

// Size returns the current file size in bytes.
func (f *File) Size() int64 {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return f.f.Size()
}

// Truncate changes the file size. Growing the file requires write access;
// the read/write position is clamped to the new size when it would fall
// past the end.
func (f *File) Truncate(size int64) (err error) {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()

	pos := f.f.Tell()
	if res := f.f.Seek(size); res != fatlib.OK {
		f.reg.record(res)
		return newLibraryError("file.truncate", -1, res)
	}

	res := f.f.Truncate()
	f.reg.record(res)
	if res != fatlib.OK {
		return newLibraryError("file.truncate", -1, res)
	}

	if pos > size {
		pos = size
	}
	if res := f.f.Seek(pos); res != fatlib.OK {
		f.reg.record(res)
		return newLibraryError("file.truncate", -1, res)
	}
	return nil
}

// Sync flushes the file's cached data to the medium.
func (f *File) Sync() error {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()

	res := f.f.Sync()
	f.reg.record(res)
	if res != fatlib.OK {
		return newLibraryError("file.sync", -1, res)
	}
	return nil
}

// Close closes the underlying library object. The handle must not be used
// afterwards.
func (f *File) Close() error {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()

	res := f.f.Close()
	f.reg.record(res)
	if res != fatlib.OK {
		return newLibraryError("file.close", -1, res)
	}
	return nil
}

// Stat returns information about the open file. FAT carries no per-handle
// attributes, so the mode reports a plain read/write regular file.
func (f *File) Stat() (os.FileInfo, error) {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return &fileInfo{name: f.name, size: f.f.Size(), mode: 0777}, nil
}

// Readdir fails: a file is not a directory. It exists to satisfy directory
// enumeration interfaces such as afero.File.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	return nil, NewError("file.readdir", ErrCodeInvalidParameters, "not a directory")
}

// Readdirnames fails: a file is not a directory.
func (f *File) Readdirnames(n int) ([]string, error) {
	return nil, NewError("file.readdirnames", ErrCodeInvalidParameters, "not a directory")
}

// Dir is one open directory handle. Like File it owns the library object
// exclusively and serializes access through the registry lock.
type Dir struct {
	name string
	d    fatlib.Dir
	reg  *Registry
}

// Name returns the base name the directory was opened with.
func (d *Dir) Name() string {
	return d.name
}

// Read returns the next directory entry, or io.EOF at the end of the
// directory.
func (d *Dir) Read() (os.FileInfo, error) {
	d.reg.mu.Lock()
	defer d.reg.mu.Unlock()

	fi, res := d.d.Read()
	d.reg.record(res)
	if res != fatlib.OK {
		return nil, newLibraryError("dir.read", -1, res)
	}
	if fi.Name == "" {
		return nil, io.EOF
	}
	return newFileInfo(fi.Name, fi), nil
}

// ReadAll enumerates the remaining entries.
func (d *Dir) ReadAll() ([]os.FileInfo, error) {
	var entries []os.FileInfo
	for {
		fi, err := d.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, fi)
	}
}

// Close closes the underlying library object.
func (d *Dir) Close() error {
	d.reg.mu.Lock()
	defer d.reg.mu.Unlock()

	res := d.d.Close()
	d.reg.record(res)
	if res != fatlib.OK {
		return newLibraryError("dir.close", -1, res)
	}
	return nil
}

// fileInfo adapts a library directory entry to os.FileInfo.
type fileInfo struct {
	name  string
	size  int64
	mode  os.FileMode
	mtime time.Time
}

func newFileInfo(name string, fi fatlib.FileInfo) *fileInfo {
	return &fileInfo{
		name:  name,
		size:  fi.Size,
		mode:  fileMode(fi.Attr),
		mtime: fatlib.DOSTime(fi.Time),
	}
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.mtime }
func (fi *fileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *fileInfo) Sys() interface{}   { return nil }
