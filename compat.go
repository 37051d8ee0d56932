package blockfs

import (
	"io"
	"os"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/behrlich/go-blockfs/fatlib"
)

// Afero adapts a mounted FileSystem to afero.Fs, so tooling written against
// afero can run on a FAT volume. FAT has no ownership or permission
// metadata, so Chmod, Chown and Chtimes fail with EPERM.
type Afero struct {
	fs *FileSystem
}

var (
	_ afero.Fs   = (*Afero)(nil)
	_ afero.File = (*File)(nil)
)

// AsAfero wraps fs in the afero.Fs adapter.
func AsAfero(fs *FileSystem) *Afero {
	return &Afero{fs: fs}
}

// Create implements afero.Fs.
func (a *Afero) Create(name string) (afero.File, error) {
	return a.fs.Open(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
}

// Mkdir implements afero.Fs.
func (a *Afero) Mkdir(name string, perm os.FileMode) error {
	return a.fs.Mkdir(name, perm)
}

// MkdirAll implements afero.Fs, creating missing path components in order
// and tolerating ones that already exist.
func (a *Afero) MkdirAll(p string, perm os.FileMode) error {
	clean := strings.Trim(path.Clean("/"+p), "/")
	if clean == "" {
		return nil
	}

	cur := ""
	for _, part := range strings.Split(clean, "/") {
		cur = path.Join(cur, part)
		if err := a.fs.Mkdir(cur, perm); err != nil && ResultOf(err) != fatlib.Exist {
			return err
		}
	}
	return nil
}

// Open implements afero.Fs.
func (a *Afero) Open(name string) (afero.File, error) {
	return a.fs.Open(name, os.O_RDONLY)
}

// OpenFile implements afero.Fs. The permission argument is ignored; FAT
// stores no permission bits.
func (a *Afero) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	return a.fs.Open(name, flag)
}

// Remove implements afero.Fs.
func (a *Afero) Remove(name string) error {
	return a.fs.Remove(name)
}

// RemoveAll implements afero.Fs, removing name and any children. A missing
// target is not an error.
func (a *Afero) RemoveAll(p string) error {
	fi, err := a.fs.Stat(p)
	if err != nil {
		if res := ResultOf(err); res == fatlib.NoFile || res == fatlib.NoPath {
			return nil
		}
		return err
	}

	if fi.IsDir() {
		dir, err := a.fs.OpenDir(p)
		if err != nil {
			return err
		}
		entries, err := dir.ReadAll()
		dir.Close()
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := a.RemoveAll(path.Join(p, entry.Name())); err != nil {
				return err
			}
		}
	}

	return a.fs.Remove(p)
}

// Rename implements afero.Fs.
func (a *Afero) Rename(oldname, newname string) error {
	return a.fs.Rename(oldname, newname)
}

// Stat implements afero.Fs.
func (a *Afero) Stat(name string) (os.FileInfo, error) {
	return a.fs.Stat(name)
}

// Name implements afero.Fs.
func (a *Afero) Name() string {
	return "blockfs"
}

// Chmod implements afero.Fs; unsupported on FAT.
func (a *Afero) Chmod(name string, mode os.FileMode) error {
	return syscall.EPERM
}

// Chown implements afero.Fs; unsupported on FAT.
func (a *Afero) Chown(name string, uid, gid int) error {
	return syscall.EPERM
}

// Chtimes implements afero.Fs; unsupported on FAT.
func (a *Afero) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return syscall.EPERM
}

// ReadDir enumerates a directory as a convenience on top of OpenDir,
// mirroring afero.ReadDir.
func (a *Afero) ReadDir(name string) ([]os.FileInfo, error) {
	dir, err := a.fs.OpenDir(name)
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	return dir.ReadAll()
}

// WriteFile writes data to name, creating or truncating it.
func (a *Afero) WriteFile(name string, data []byte) error {
	f, err := a.Create(name)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads the whole of name.
func (a *Afero) ReadFile(name string) ([]byte, error) {
	f, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
