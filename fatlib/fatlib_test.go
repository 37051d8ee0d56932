package fatlib

import (
	"syscall"
	"testing"
	"time"
)

func TestFatTimeBitLayout(t *testing.T) {
	// 2006-01-02 15:04:05 packs field by field:
	// (2006-1980)<<25 | 1<<21 | 2<<16 | 15<<11 | 4<<5 | 5/2
	ts := FatTime(time.Date(2006, time.January, 2, 15, 4, 5, 0, time.Local))

	want := uint32(26)<<25 | uint32(1)<<21 | uint32(2)<<16 |
		uint32(15)<<11 | uint32(4)<<5 | uint32(2)
	if ts != want {
		t.Errorf("FatTime() = %#x, want %#x", ts, want)
	}
}

func TestDOSTimeInverse(t *testing.T) {
	// DOSTime inverts FatTime up to the 2-second granularity of the format.
	tests := []time.Time{
		time.Date(1980, time.January, 1, 0, 0, 0, 0, time.Local),
		time.Date(2006, time.January, 2, 15, 4, 4, 0, time.Local),
		time.Date(2099, time.December, 31, 23, 59, 58, 0, time.Local),
	}

	for _, tt := range tests {
		got := DOSTime(FatTime(tt))
		if !got.Equal(tt) {
			t.Errorf("DOSTime(FatTime(%v)) = %v", tt, got)
		}
	}

	// Odd seconds round down.
	odd := time.Date(2020, time.June, 15, 10, 30, 31, 0, time.Local)
	even := time.Date(2020, time.June, 15, 10, 30, 30, 0, time.Local)
	if got := DOSTime(FatTime(odd)); !got.Equal(even) {
		t.Errorf("Expected odd seconds to round down to %v, got %v", even, got)
	}
}

func TestResultErrno(t *testing.T) {
	tests := []struct {
		res  Result
		want syscall.Errno
	}{
		{OK, 0},
		{DiskErr, syscall.EIO},
		{NotReady, syscall.ENODEV},
		{NoFile, syscall.ENOENT},
		{NoPath, syscall.ENOENT},
		{InvalidName, syscall.EINVAL},
		{Denied, syscall.EACCES},
		{Exist, syscall.EEXIST},
		{WriteProtected, syscall.EACCES},
		{NoFilesystem, syscall.ENODEV},
		{Timeout, syscall.ETIMEDOUT},
		{NotEnoughCore, syscall.ENOMEM},
		{TooManyOpenFiles, syscall.EMFILE},
		{InvalidParameter, syscall.EINVAL},
		{Result(99), syscall.EIO},
	}

	for _, tt := range tests {
		if got := tt.res.Errno(); got != tt.want {
			t.Errorf("%v.Errno() = %v, want %v", tt.res, got, tt.want)
		}
	}
}

func TestResultString(t *testing.T) {
	if OK.String() != "ok" {
		t.Errorf("OK.String() = %q", OK.String())
	}
	if NoFilesystem.String() != "no filesystem" {
		t.Errorf("NoFilesystem.String() = %q", NoFilesystem.String())
	}
	if Result(99).String() != "unknown result" {
		t.Errorf("Result(99).String() = %q", Result(99).String())
	}
}

func TestDiskResultString(t *testing.T) {
	if DiskOK.String() != "ok" {
		t.Errorf("DiskOK.String() = %q", DiskOK.String())
	}
	if DiskResult(99).String() != "unknown disk result" {
		t.Errorf("DiskResult(99).String() = %q", DiskResult(99).String())
	}
}

func TestFileInfoIsDir(t *testing.T) {
	if (FileInfo{Attr: AttrArchive}).IsDir() {
		t.Error("Archive entry reported as directory")
	}
	if !(FileInfo{Attr: AttrDirectory | AttrHidden}).IsDir() {
		t.Error("Directory entry not reported as directory")
	}
}
