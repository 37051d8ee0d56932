package device

import (
	"bytes"
	"testing"

	blockfs "github.com/behrlich/go-blockfs"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory(8192, 512)
	if err := m.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	pattern := bytes.Repeat([]byte{0x5A}, 1024)
	if n, err := m.WriteAt(pattern, 2048); err != nil || n != 1024 {
		t.Fatalf("WriteAt() = %d, %v", n, err)
	}

	got := make([]byte, 1024)
	if n, err := m.ReadAt(got, 2048); err != nil || n != 1024 {
		t.Fatalf("ReadAt() = %d, %v", n, err)
	}
	if !bytes.Equal(got, pattern) {
		t.Error("Read data does not match written data")
	}
}

func TestMemoryGeometry(t *testing.T) {
	m := NewMemory(8192, 512)
	if m.Size() != 8192 {
		t.Errorf("Size() = %d, want 8192", m.Size())
	}
	if m.ReadSize() != 512 || m.WriteSize() != 512 || m.EraseSize() != 512 {
		t.Errorf("Expected uniform 512-byte units, got %d/%d/%d",
			m.ReadSize(), m.WriteSize(), m.EraseSize())
	}

	// Size not a multiple of the block size fails at Init.
	bad := NewMemory(1000, 512)
	if err := bad.Init(); !blockfs.IsCode(err, blockfs.ErrCodeInvalidParameters) {
		t.Errorf("Expected invalid parameters error, got %v", err)
	}
}

func TestMemoryChecks(t *testing.T) {
	m := NewMemory(8192, 512)

	buf := make([]byte, 512)
	if _, err := m.ReadAt(buf, 0); !blockfs.IsCode(err, blockfs.ErrCodeNotInitialized) {
		t.Errorf("Expected not initialized error, got %v", err)
	}

	if err := m.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	if _, err := m.ReadAt(buf, 8192); !blockfs.IsCode(err, blockfs.ErrCodeOutOfBounds) {
		t.Errorf("Expected out of bounds error, got %v", err)
	}
	if _, err := m.WriteAt(buf, 100); !blockfs.IsCode(err, blockfs.ErrCodeMisaligned) {
		t.Errorf("Expected misaligned error, got %v", err)
	}
	if _, err := m.ReadAt(make([]byte, 100), 0); !blockfs.IsCode(err, blockfs.ErrCodeMisaligned) {
		t.Errorf("Expected misaligned error, got %v", err)
	}
}

func TestMemoryContentsSurviveDeinit(t *testing.T) {
	m := NewMemory(4096, 512)
	if err := m.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	pattern := bytes.Repeat([]byte{0xC3}, 512)
	if _, err := m.WriteAt(pattern, 0); err != nil {
		t.Fatalf("WriteAt() failed: %v", err)
	}

	if err := m.Deinit(); err != nil {
		t.Fatalf("Deinit() failed: %v", err)
	}
	if err := m.Init(); err != nil {
		t.Fatalf("re-Init() failed: %v", err)
	}

	got := make([]byte, 512)
	if _, err := m.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt() failed: %v", err)
	}
	if !bytes.Equal(got, pattern) {
		t.Error("Contents did not survive a Deinit/Init cycle")
	}
}
