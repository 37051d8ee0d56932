package blockfs

import (
	"io"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behrlich/go-blockfs/fatlib"
)

// newTestVolume returns a formatted, unmounted volume plus the registry and
// driver it belongs to.
func newTestVolume(t *testing.T) (*FileSystem, *Registry, *MockDriver, *MockDevice) {
	t.Helper()

	reg := NewRegistry(nil)
	driver := NewMockDriver(reg)
	dev := NewMockDevice(64*1024, 512)

	require.NoError(t, Format(driver, reg, dev, 0))

	return NewFileSystem("test", driver, reg), reg, driver, dev
}

func TestFormatAndMount(t *testing.T) {
	fs, _, _, dev := newTestVolume(t)

	require.NoError(t, fs.Mount(dev, true))
	defer fs.Unmount()

	fi, err := fs.Stat("/")
	require.NoError(t, err)
	assert.True(t, fi.IsDir(), "root of a fresh volume should be a directory")
}

func TestMountUnformattedDevice(t *testing.T) {
	reg := NewRegistry(nil)
	driver := NewMockDriver(reg)
	dev := NewMockDevice(64*1024, 512)

	fs := NewFileSystem("raw", driver, reg)
	err := fs.Mount(dev, true)
	require.Error(t, err)
	assert.Equal(t, fatlib.NoFilesystem, ResultOf(err))
	assert.False(t, fs.Mounted())

	// The failed mount must not leak its slot: formatting and mounting
	// afterwards succeeds.
	require.NoError(t, Format(driver, reg, dev, 0))
	require.NoError(t, fs.Mount(dev, true))
	assert.Equal(t, 0, fs.VolumeID())
	require.NoError(t, fs.Unmount())
}

func TestMountStateMachine(t *testing.T) {
	fs, _, _, dev := newTestVolume(t)

	// Operations before mount fail cleanly.
	_, err := fs.Open("x", os.O_RDONLY)
	assert.True(t, IsCode(err, ErrCodeNotMounted))
	assert.True(t, IsCode(fs.Remove("x"), ErrCodeNotMounted))
	assert.True(t, IsCode(fs.Sync(), ErrCodeNotMounted))
	assert.True(t, IsCode(fs.Unmount(), ErrCodeNotMounted))

	require.NoError(t, fs.Mount(dev, false))
	assert.True(t, fs.Mounted())

	// Double mount is rejected without touching the existing mount.
	err = fs.Mount(NewMockDevice(8192, 512), false)
	assert.True(t, IsCode(err, ErrCodeAlreadyMounted))
	assert.True(t, fs.Mounted())

	assert.NoError(t, fs.Sync())
	require.NoError(t, fs.Unmount())
	assert.False(t, fs.Mounted())
	assert.Equal(t, -1, fs.VolumeID())
}

func TestOpenFlagTranslation(t *testing.T) {
	fs, _, _, dev := newTestVolume(t)
	require.NoError(t, fs.Mount(dev, false))
	defer fs.Unmount()

	// Missing file without O_CREATE fails.
	_, err := fs.Open("nope.txt", os.O_RDONLY)
	require.Error(t, err)
	assert.Equal(t, fatlib.NoFile, ResultOf(err))

	// O_CREATE|O_TRUNC creates.
	f, err := fs.Open("a.txt", os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	require.NoError(t, err)
	_, err = f.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// O_CREATE without O_TRUNC opens the existing file intact.
	f, err = fs.Open("a.txt", os.O_RDWR|os.O_CREATE)
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.Size())
	require.NoError(t, f.Close())

	// O_CREATE|O_TRUNC discards existing contents.
	f, err = fs.Open("a.txt", os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.Size())
	_, err = f.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// O_APPEND positions at end of file.
	f, err = fs.Open("a.txt", os.O_RDWR|os.O_APPEND)
	require.NoError(t, err)
	_, err = f.WriteString(" world")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = fs.Open("a.txt", os.O_RDONLY)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "hello world", string(data))

	// O_WRONLY denies reads.
	f, err = fs.Open("a.txt", os.O_WRONLY)
	require.NoError(t, err)
	_, err = f.Read(make([]byte, 1))
	assert.Equal(t, fatlib.Denied, ResultOf(err))
	require.NoError(t, f.Close())
}

func TestFileReadWriteSeek(t *testing.T) {
	fs, _, _, dev := newTestVolume(t)
	require.NoError(t, fs.Mount(dev, false))
	defer fs.Unmount()

	f, err := fs.Open("data.bin", os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)

	pos, err := f.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	buf := make([]byte, 4)
	_, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "6789", string(buf))

	// ReadAt does not disturb the logical position.
	pos, err = f.Seek(2, io.SeekStart)
	require.NoError(t, err)
	_, err = f.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "4567", string(buf))
	cur, err := f.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, pos, cur)

	// Truncate clamps the position to the new size.
	_, err = f.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(4))
	assert.Equal(t, int64(4), f.Size())
	cur, err = f.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cur)

	// Reading at end of file reports io.EOF.
	_, err = f.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestDirectoryOperations(t *testing.T) {
	fs, _, _, dev := newTestVolume(t)
	require.NoError(t, fs.Mount(dev, false))
	defer fs.Unmount()

	require.NoError(t, fs.Mkdir("docs", 0755))

	f, err := fs.Open("docs/readme.txt", os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	require.NoError(t, err)
	_, err = f.WriteString("notes")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = fs.Open("top.txt", os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Root enumeration sees both entries, sorted by name.
	dir, err := fs.OpenDir("/")
	require.NoError(t, err)
	entries, err := dir.ReadAll()
	require.NoError(t, err)
	require.NoError(t, dir.Close())
	require.Len(t, entries, 2)
	assert.Equal(t, "docs", entries[0].Name())
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, "top.txt", entries[1].Name())

	// Removing a non-empty directory is denied.
	err = fs.Remove("docs")
	assert.Equal(t, fatlib.Denied, ResultOf(err))

	// Rename moves across directories.
	require.NoError(t, fs.Rename("top.txt", "docs/top.txt"))
	_, err = fs.Stat("top.txt")
	assert.Equal(t, fatlib.NoFile, ResultOf(err))
	_, err = fs.Stat("docs/top.txt")
	assert.NoError(t, err)

	// Empty the directory, then it can be removed.
	require.NoError(t, fs.Remove("docs/readme.txt"))
	require.NoError(t, fs.Remove("docs/top.txt"))
	require.NoError(t, fs.Remove("docs"))
}

func TestStatModeTranslation(t *testing.T) {
	fs, _, driver, dev := newTestVolume(t)
	require.NoError(t, fs.Mount(dev, false))
	defer fs.Unmount()

	f, err := fs.Open("file.txt", os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	require.NoError(t, err)
	_, err = f.WriteString("abc")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, fs.Mkdir("dir", 0755))

	fi, err := fs.Stat("file.txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0777), fi.Mode())
	assert.Equal(t, int64(3), fi.Size())
	assert.False(t, fi.IsDir())

	fi, err = fs.Stat("dir")
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	assert.Equal(t, os.ModeDir|0777, fi.Mode())

	// The read-only attribute collapses to 0555.
	require.True(t, driver.SetAttr("0:/file.txt", fatlib.AttrReadOnly|fatlib.AttrArchive))
	fi, err = fs.Stat("file.txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0555), fi.Mode())
}

func TestLastResult(t *testing.T) {
	fs, reg, _, dev := newTestVolume(t)
	require.NoError(t, fs.Mount(dev, false))
	defer fs.Unmount()

	_, err := fs.Open("missing.txt", os.O_RDONLY)
	require.Error(t, err)

	assert.Equal(t, fatlib.NoFile, reg.LastResult())
	assert.Equal(t, syscall.ENOENT, reg.LastErrno())

	_, err = fs.Stat("/")
	require.NoError(t, err)
	assert.Equal(t, fatlib.OK, reg.LastResult())
	assert.Equal(t, syscall.Errno(0), reg.LastErrno())
}

func TestFormatResetsVolume(t *testing.T) {
	fs, reg, driver, dev := newTestVolume(t)
	require.NoError(t, fs.Mount(dev, false))

	f, err := fs.Open("junk.txt", os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, fs.Unmount())

	// Reformatting wipes the namespace.
	require.NoError(t, Format(driver, reg, dev, 0))
	require.NoError(t, fs.Mount(dev, false))
	defer fs.Unmount()

	_, err = fs.Stat("junk.txt")
	assert.Equal(t, fatlib.NoFile, ResultOf(err))

	snap := reg.Metrics().Snapshot()
	assert.Equal(t, uint64(2), snap.Formats)
}

func TestFormatOnChainedSlice(t *testing.T) {
	// The adaptation layer composes with the device layer: a volume on a
	// slice of a chain formats and mounts like any flat device.
	reg := NewRegistry(nil)
	driver := NewMockDriver(reg)

	chain := NewChainingDevice([]BlockDevice{
		NewMockDevice(32*1024, 512),
		NewMockDevice(32*1024, 512),
	})
	slice := NewSlicingDevice(chain, 16*1024, 48*1024)

	require.NoError(t, Format(driver, reg, slice, 0))

	fs := NewFileSystem("composed", driver, reg)
	require.NoError(t, fs.Mount(slice, true))
	defer fs.Unmount()

	f, err := fs.Open("x.txt", os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	require.NoError(t, err)
	_, err = f.WriteString("spanning")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fi, err := fs.Stat("x.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(8), fi.Size())
}
