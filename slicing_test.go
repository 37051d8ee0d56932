package blockfs

import (
	"bytes"
	"testing"
)

func TestSlicingDeviceRoundTrip(t *testing.T) {
	base := NewMockDevice(16384, 512)
	slice := NewSlicingDevice(base, 4096, 8192)

	if err := slice.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	if slice.Size() != 4096 {
		t.Errorf("Expected size 4096, got %d", slice.Size())
	}

	pattern := bytes.Repeat([]byte{0xA5}, 512)
	if _, err := slice.WriteAt(pattern, 0); err != nil {
		t.Fatalf("WriteAt() failed: %v", err)
	}

	// The write lands at the translated offset on the base device.
	got := make([]byte, 512)
	if _, err := base.ReadAt(got, 4096); err != nil {
		t.Fatalf("base ReadAt() failed: %v", err)
	}
	if !bytes.Equal(got, pattern) {
		t.Error("Write through slice not visible at translated base offset")
	}

	if _, err := slice.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt() failed: %v", err)
	}
	if !bytes.Equal(got, pattern) {
		t.Error("Read through slice did not return written data")
	}
}

func TestSlicingDeviceNegativeOffsets(t *testing.T) {
	// A slice configured with negative offsets addresses the same range as
	// one configured with the equivalent absolute offsets.
	base := NewMockDevice(16384, 512)

	neg := NewSlicingDevice(base, -8192, 0)
	if err := neg.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if neg.Size() != 8192 {
		t.Errorf("Expected size 8192, got %d", neg.Size())
	}

	pattern := bytes.Repeat([]byte{0x3C}, 512)
	if _, err := neg.WriteAt(pattern, 512); err != nil {
		t.Fatalf("WriteAt() failed: %v", err)
	}
	if err := neg.Deinit(); err != nil {
		t.Fatalf("Deinit() failed: %v", err)
	}

	abs := NewSlicingDevice(base, 8192, 16384)
	if err := abs.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	got := make([]byte, 512)
	if _, err := abs.ReadAt(got, 512); err != nil {
		t.Fatalf("ReadAt() failed: %v", err)
	}
	if !bytes.Equal(got, pattern) {
		t.Error("Negative-offset slice and absolute slice address different ranges")
	}
}

func TestSlicingDeviceInvalidRange(t *testing.T) {
	tests := []struct {
		name  string
		start int64
		end   int64
	}{
		{"start past end", 8192, 4096},
		{"empty range", 4096, 4096},
		{"end past device", 0, 32768},
		{"start before device", -32768, 0},
		{"misaligned start", 100, 4096},
		{"misaligned end", 0, 4100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := NewMockDevice(16384, 512)
			slice := NewSlicingDevice(base, tt.start, tt.end)

			err := slice.Init()
			if err == nil {
				t.Fatal("Expected Init() to fail")
			}
			if !IsCode(err, ErrCodeInvalidSlice) {
				t.Errorf("Expected invalid slice error, got %v", err)
			}
		})
	}
}

func TestSlicingDeviceBounds(t *testing.T) {
	base := NewMockDevice(16384, 512)
	slice := NewSlicingDevice(base, 0, 4096)
	if err := slice.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Reads past the visible range fail even though the base device could
	// satisfy them.
	buf := make([]byte, 512)
	if _, err := slice.ReadAt(buf, 4096); !IsCode(err, ErrCodeOutOfBounds) {
		t.Errorf("Expected out of bounds error, got %v", err)
	}
	if _, err := slice.WriteAt(buf, -512); !IsCode(err, ErrCodeOutOfBounds) {
		t.Errorf("Expected out of bounds error, got %v", err)
	}
}

func TestSlicingDeviceNotInitialized(t *testing.T) {
	slice := NewSlicingDevice(NewMockDevice(16384, 512), 0, 4096)

	buf := make([]byte, 512)
	if _, err := slice.ReadAt(buf, 0); !IsCode(err, ErrCodeNotInitialized) {
		t.Errorf("Expected not initialized error, got %v", err)
	}
	if _, err := slice.WriteAt(buf, 0); !IsCode(err, ErrCodeNotInitialized) {
		t.Errorf("Expected not initialized error, got %v", err)
	}
}

func TestSlicingDeviceGeometryPassThrough(t *testing.T) {
	base := NewMockDevice(16384, 512)
	slice := NewSlicingDevice(base, 0, 8192)
	if err := slice.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	if slice.ReadSize() != 512 || slice.WriteSize() != 512 || slice.EraseSize() != 512 {
		t.Errorf("Expected 512-byte units, got %d/%d/%d",
			slice.ReadSize(), slice.WriteSize(), slice.EraseSize())
	}
}

func TestSlicingDeviceInitFailure(t *testing.T) {
	base := NewMockDevice(16384, 512)
	base.FailInit(NewError("mock.init", ErrCodeIOError, "injected"))

	slice := NewSlicingDevice(base, 0, 4096)
	if err := slice.Init(); !IsCode(err, ErrCodeIOError) {
		t.Errorf("Expected underlying init failure to propagate, got %v", err)
	}
}
