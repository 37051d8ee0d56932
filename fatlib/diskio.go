package fatlib

// DiskStatus is the status byte returned by DiskOps.Status and
// DiskOps.Initialize. Zero means the drive is initialized and ready;
// the remaining values are flag bits.
type DiskStatus byte

const (
	StatusOK        DiskStatus = 0x00
	StatusNoInit    DiskStatus = 0x01 // drive not initialized
	StatusNoDisk    DiskStatus = 0x02 // no medium in the drive
	StatusProtected DiskStatus = 0x04 // medium is write protected
)

// DiskResult is the result of a DiskOps data transfer or control call.
type DiskResult int

const (
	DiskOK             DiskResult = iota // succeeded
	DiskError                            // unrecoverable hard error
	DiskWriteProtected                   // write on a protected medium
	DiskNotReady                         // drive has not been initialized
	DiskParamError                       // invalid parameter
)

func (r DiskResult) String() string {
	switch r {
	case DiskOK:
		return "ok"
	case DiskError:
		return "hard error"
	case DiskWriteProtected:
		return "write protected"
	case DiskNotReady:
		return "not ready"
	case DiskParamError:
		return "parameter error"
	default:
		return "unknown disk result"
	}
}

// IoctlCmd selects a DiskOps.Ioctl sub-command.
type IoctlCmd byte

const (
	// CtrlSync completes any pending write process on the drive.
	CtrlSync IoctlCmd = iota
	// GetSectorCount queries the number of addressable sectors.
	GetSectorCount
	// GetSectorSize queries the sector size in bytes.
	GetSectorSize
	// GetBlockSize queries the erase block size in sectors.
	GetBlockSize
)

// DiskOps is the callback surface the FAT driver uses for all medium access.
// Calls are addressed by a small integer drive number that indexes the
// mounted-volume table. go-blockfs's Registry implements this interface.
type DiskOps interface {
	// Status returns the current drive status.
	Status(drv int) DiskStatus

	// Initialize initializes the drive and returns its status.
	Initialize(drv int) DiskStatus

	// Read reads count sectors starting at sector into buf.
	Read(drv int, buf []byte, sector, count uint32) DiskResult

	// Write writes count sectors starting at sector from buf.
	Write(drv int, buf []byte, sector, count uint32) DiskResult

	// Ioctl performs a control call. The returned value is meaningful for
	// the Get* queries and zero otherwise.
	Ioctl(drv int, cmd IoctlCmd) (int64, DiskResult)
}
