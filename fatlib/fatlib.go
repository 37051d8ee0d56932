// Package fatlib defines the contract between go-blockfs and an external FAT
// driver. The driver itself is not part of this module: it is a black box
// that parses and writes the on-disk FAT format, keyed by a short drive
// identifier string ("0", "1", ...). Every driver operation returns a Result
// code. In the other direction the driver performs all medium access through
// the DiskOps callback surface, which go-blockfs implements on top of its
// mounted-volume table.
package fatlib

import (
	"syscall"
	"time"
)

// Result is the result code returned by every driver operation. The values
// mirror the external library's result enumeration so codes can be passed
// through unmodified.
type Result int

const (
	OK               Result = iota // succeeded
	DiskErr                        // hard error in the low-level disk I/O layer
	IntErr                         // assertion failed inside the driver
	NotReady                       // the physical drive cannot work
	NoFile                         // could not find the file
	NoPath                         // could not find the path
	InvalidName                    // the path name format is invalid
	Denied                         // access denied or directory full
	Exist                          // object already exists
	InvalidObject                  // the file/directory object is invalid
	WriteProtected                 // the drive is write protected
	InvalidDrive                   // the drive identifier is invalid
	NotEnabled                     // the volume has no work area
	NoFilesystem                   // there is no valid FAT volume
	MkfsAborted                    // format aborted
	Timeout                        // could not take control within a timeout
	Locked                         // operation rejected by file sharing policy
	NotEnoughCore                  // working buffer could not be allocated
	TooManyOpenFiles               // number of open objects reached the limit
	InvalidParameter               // a given parameter is invalid
)

var resultNames = map[Result]string{
	OK:               "ok",
	DiskErr:          "disk error",
	IntErr:           "internal error",
	NotReady:         "drive not ready",
	NoFile:           "no such file",
	NoPath:           "no such path",
	InvalidName:      "invalid name",
	Denied:           "access denied",
	Exist:            "already exists",
	InvalidObject:    "invalid object",
	WriteProtected:   "write protected",
	InvalidDrive:     "invalid drive",
	NotEnabled:       "volume not enabled",
	NoFilesystem:     "no filesystem",
	MkfsAborted:      "format aborted",
	Timeout:          "timeout",
	Locked:           "locked",
	NotEnoughCore:    "out of memory",
	TooManyOpenFiles: "too many open files",
	InvalidParameter: "invalid parameter",
}

func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return "unknown result"
}

// Errno maps a Result to the closest POSIX errno. Kept for callers migrated
// from a C errno surface; new code should inspect the Result directly.
func (r Result) Errno() syscall.Errno {
	switch r {
	case OK:
		return 0
	case DiskErr, IntErr, InvalidObject:
		return syscall.EIO
	case NotReady, NotEnabled, NoFilesystem:
		return syscall.ENODEV
	case NoFile, NoPath, InvalidDrive:
		return syscall.ENOENT
	case InvalidName, InvalidParameter:
		return syscall.EINVAL
	case Denied, WriteProtected, Locked:
		return syscall.EACCES
	case Exist:
		return syscall.EEXIST
	case Timeout:
		return syscall.ETIMEDOUT
	case NotEnoughCore:
		return syscall.ENOMEM
	case TooManyOpenFiles:
		return syscall.EMFILE
	default:
		return syscall.EIO
	}
}

// OpenMode is the driver's file access mode, a bitwise combination of the
// constants below.
type OpenMode byte

const (
	ModeRead         OpenMode = 0x01
	ModeWrite        OpenMode = 0x02
	ModeOpenExisting OpenMode = 0x00
	ModeCreateNew    OpenMode = 0x04
	ModeCreateAlways OpenMode = 0x08
	ModeOpenAlways   OpenMode = 0x10
)

// Attr is the driver's file attribute byte.
type Attr byte

const (
	AttrReadOnly  Attr = 0x01
	AttrHidden    Attr = 0x02
	AttrSystem    Attr = 0x04
	AttrDirectory Attr = 0x10
	AttrArchive   Attr = 0x20
)

// FileInfo describes one directory entry as reported by the driver.
type FileInfo struct {
	Name string
	Size int64
	Attr Attr
	Time uint32 // modification time, DOS timestamp (see FatTime)
}

// IsDir reports whether the entry is a directory.
func (fi FileInfo) IsDir() bool {
	return fi.Attr&AttrDirectory != 0
}

// File is one open file object owned by the driver. Implementations are not
// required to be safe for concurrent use; go-blockfs serializes all calls
// behind its registry lock.
type File interface {
	// Read reads up to len(p) bytes at the current position.
	Read(p []byte) (int, Result)

	// Write writes len(p) bytes at the current position.
	Write(p []byte) (int, Result)

	// Seek moves the read/write pointer to the absolute byte offset.
	// Seeking past the end of a file opened for writing extends it.
	Seek(offset int64) Result

	// Tell returns the current read/write pointer.
	Tell() int64

	// Size returns the current file size in bytes.
	Size() int64

	// Truncate truncates the file at the current read/write pointer.
	Truncate() Result

	// Sync flushes cached data of the file to the medium.
	Sync() Result

	// Close closes the file. The object must not be used afterwards.
	Close() Result
}

// Dir is one open directory object owned by the driver.
type Dir interface {
	// Read returns the next directory entry. An entry with an empty Name
	// signals the end of the directory.
	Read() (FileInfo, Result)

	// Close closes the directory.
	Close() Result
}

// Driver is the full surface go-blockfs consumes from the external FAT
// implementation. Paths passed to Open, Unlink, Rename, Mkdir, OpenDir and
// Stat carry a drive prefix ("0:/dir/file").
type Driver interface {
	// Mount registers a work area for the drive. When force is false the
	// driver may defer medium access until first use.
	Mount(drive string, force bool) Result

	// Unmount releases the work area for the drive.
	Unmount(drive string) Result

	// Mkfs creates a FAT volume on the drive with the given allocation
	// unit (bytes per cluster, 0 selects the driver default).
	Mkfs(drive string, allocationUnit int) Result

	// Open opens or creates a file.
	Open(path string, mode OpenMode) (File, Result)

	// Unlink removes a file or an empty directory.
	Unlink(path string) Result

	// Rename renames or moves a file or directory.
	Rename(oldPath, newPath string) Result

	// Mkdir creates a directory.
	Mkdir(path string) Result

	// OpenDir opens a directory for enumeration.
	OpenDir(path string) (Dir, Result)

	// Stat returns information about a file or directory.
	Stat(path string) (FileInfo, Result)
}

// FatTime packs a wall-clock time into the 32-bit DOS timestamp the driver
// stamps on directory entries: years since 1980 in the top 7 bits down to
// 2-second granularity in the low 5 bits.
func FatTime(t time.Time) uint32 {
	return uint32(t.Year()-1980)<<25 |
		uint32(t.Month())<<21 |
		uint32(t.Day())<<16 |
		uint32(t.Hour())<<11 |
		uint32(t.Minute())<<5 |
		uint32(t.Second()/2)
}

// Now returns FatTime for the current wall-clock time. Drivers that need a
// get_fattime callback can use it directly.
func Now() uint32 {
	return FatTime(time.Now())
}

// DOSTime unpacks a 32-bit DOS timestamp into a wall-clock time in the
// local location. It is the inverse of FatTime up to the 2-second
// granularity of the format.
func DOSTime(ts uint32) time.Time {
	return time.Date(
		int(ts>>25)+1980,
		time.Month(ts>>21&0x0f),
		int(ts>>16&0x1f),
		int(ts>>11&0x1f),
		int(ts>>5&0x3f),
		int(ts&0x1f)*2,
		0, time.Local)
}
