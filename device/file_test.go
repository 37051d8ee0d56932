package device

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	blockfs "github.com/behrlich/go-blockfs"
)

func newImage(t *testing.T, size int64) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating image: %v", err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatalf("sizing image: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing image: %v", err)
	}
	return path
}

func TestFileRoundTrip(t *testing.T) {
	d := NewFile(newImage(t, 8192), 512)
	if err := d.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	defer d.Deinit()

	if d.Size() != 8192 {
		t.Errorf("Size() = %d, want 8192", d.Size())
	}

	pattern := bytes.Repeat([]byte{0xE7}, 1024)
	if n, err := d.WriteAt(pattern, 4096); err != nil || n != 1024 {
		t.Fatalf("WriteAt() = %d, %v", n, err)
	}
	if err := d.Sync(); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}

	got := make([]byte, 1024)
	if n, err := d.ReadAt(got, 4096); err != nil || n != 1024 {
		t.Fatalf("ReadAt() = %d, %v", n, err)
	}
	if !bytes.Equal(got, pattern) {
		t.Error("Read data does not match written data")
	}
}

func TestFilePersistsAcrossReopen(t *testing.T) {
	path := newImage(t, 4096)

	d := NewFile(path, 512)
	if err := d.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	pattern := bytes.Repeat([]byte{0x19}, 512)
	if _, err := d.WriteAt(pattern, 512); err != nil {
		t.Fatalf("WriteAt() failed: %v", err)
	}
	if err := d.Deinit(); err != nil {
		t.Fatalf("Deinit() failed: %v", err)
	}

	// A fresh device over the same image sees the data.
	d2 := NewFile(path, 512)
	if err := d2.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	defer d2.Deinit()

	got := make([]byte, 512)
	if _, err := d2.ReadAt(got, 512); err != nil {
		t.Fatalf("ReadAt() failed: %v", err)
	}
	if !bytes.Equal(got, pattern) {
		t.Error("Contents did not persist across reopen")
	}
}

func TestFileValidation(t *testing.T) {
	// Missing image fails at Init.
	d := NewFile(filepath.Join(t.TempDir(), "missing.img"), 512)
	if err := d.Init(); err == nil {
		t.Error("Expected Init() on a missing image to fail")
	}

	// Image size not a multiple of the block size fails at Init.
	d = NewFile(newImage(t, 1000), 512)
	if err := d.Init(); !blockfs.IsCode(err, blockfs.ErrCodeInvalidParameters) {
		t.Errorf("Expected invalid parameters error, got %v", err)
	}

	// Operations before Init fail cleanly.
	d = NewFile(newImage(t, 4096), 512)
	if _, err := d.ReadAt(make([]byte, 512), 0); !blockfs.IsCode(err, blockfs.ErrCodeNotInitialized) {
		t.Errorf("Expected not initialized error, got %v", err)
	}
	if err := d.Sync(); !blockfs.IsCode(err, blockfs.ErrCodeNotInitialized) {
		t.Errorf("Expected not initialized error, got %v", err)
	}

	if err := d.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	defer d.Deinit()

	if _, err := d.WriteAt(make([]byte, 512), 4096); !blockfs.IsCode(err, blockfs.ErrCodeOutOfBounds) {
		t.Errorf("Expected out of bounds error, got %v", err)
	}
	if _, err := d.ReadAt(make([]byte, 100), 0); !blockfs.IsCode(err, blockfs.ErrCodeMisaligned) {
		t.Errorf("Expected misaligned error, got %v", err)
	}
}

func TestFileNoEraseGeometry(t *testing.T) {
	d := NewFile(newImage(t, 4096), 512)
	if d.EraseSize() != 0 {
		t.Errorf("EraseSize() = %d, want 0", d.EraseSize())
	}
	if d.ReadSize() != 512 || d.WriteSize() != 512 {
		t.Errorf("Expected 512-byte units, got %d/%d", d.ReadSize(), d.WriteSize())
	}
}
