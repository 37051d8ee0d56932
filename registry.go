package blockfs

import (
	"sync"
	"syscall"

	"go.uber.org/multierr"

	"github.com/behrlich/go-blockfs/fatlib"
	"github.com/behrlich/go-blockfs/internal/logging"
)

// MaxVolumes is the fixed capacity of the mounted-volume table: the maximum
// number of simultaneously mounted volumes per registry.
const MaxVolumes = 4

// Registry owns the mounted-volume table and the process-wide mutex that
// serializes every filesystem operation. It also implements fatlib.DiskOps,
// the callback surface the FAT driver uses for medium access, dispatching by
// volume index into the table.
//
// One registry is shared by all FileSystem instances backed by the same
// driver. The registry borrows the mounted devices; callers keep ownership
// and must keep them alive until unmount.
//
// The DiskOps entry points never take the registry lock themselves: the
// driver only invokes them from inside a driver call, and every driver call
// is already made with the lock held.
type Registry struct {
	mu      sync.Mutex
	volumes [MaxVolumes]BlockDevice
	last    fatlib.Result

	metrics *Metrics
	log     *logging.Logger
}

var _ fatlib.DiskOps = (*Registry)(nil)

// RegistryOptions configures a Registry. Zero values select defaults.
type RegistryOptions struct {
	// Logger for debug/info messages (nil uses the package default).
	Logger *logging.Logger

	// Metrics sink (nil allocates a fresh one).
	Metrics *Metrics
}

// NewRegistry creates an empty volume registry.
func NewRegistry(options *RegistryOptions) *Registry {
	if options == nil {
		options = &RegistryOptions{}
	}

	log := options.Logger
	if log == nil {
		log = logging.Default()
	}

	metrics := options.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	return &Registry{metrics: metrics, log: log}
}

// Metrics returns the registry's metrics sink.
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

// LastResult returns the library result code recorded by the most recent
// driver call, successful or not. It exists for callers migrated from a
// POSIX errno surface; new code should use the returned errors.
func (r *Registry) LastResult() fatlib.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// LastErrno returns LastResult mapped to a POSIX errno.
func (r *Registry) LastErrno() syscall.Errno {
	return r.LastResult().Errno()
}

// Close deinitializes any devices still bound to the table and clears it,
// combining failures. Filesystems must be unmounted first; Close is the
// backstop for teardown, not a substitute for Unmount.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for i, dev := range r.volumes {
		if dev == nil {
			continue
		}
		if derr := dev.Deinit(); derr != nil {
			err = multierr.Append(err, newVolumeError("registry.close", i,
				ErrCodeIOError, derr.Error()))
		}
		r.volumes[i] = nil
	}
	return err
}

// record stores res as the process-wide last result. Caller holds r.mu.
func (r *Registry) record(res fatlib.Result) {
	r.last = res
}

// bind registers dev in the first free slot and returns its volume id.
// Caller holds r.mu.
func (r *Registry) bind(dev BlockDevice) (int, bool) {
	for i := range r.volumes {
		if r.volumes[i] == nil {
			r.volumes[i] = dev
			return i, true
		}
	}
	return -1, false
}

// unbind frees the slot. Caller holds r.mu.
func (r *Registry) unbind(id int) {
	if id >= 0 && id < MaxVolumes {
		r.volumes[id] = nil
	}
}

// device returns the device bound at drv, or nil.
func (r *Registry) device(drv int) BlockDevice {
	if drv < 0 || drv >= MaxVolumes {
		return nil
	}
	return r.volumes[drv]
}

// Status implements fatlib.DiskOps. The drive is reported ready
// unconditionally; the library tracks finer state itself.
func (r *Registry) Status(drv int) fatlib.DiskStatus {
	r.log.Debug("disk status", "drv", drv)
	return fatlib.StatusOK
}

// Initialize implements fatlib.DiskOps by initializing the bound device.
func (r *Registry) Initialize(drv int) fatlib.DiskStatus {
	r.log.Debug("disk initialize", "drv", drv)
	dev := r.device(drv)
	if dev == nil {
		return fatlib.StatusNoInit | fatlib.StatusNoDisk
	}
	if err := dev.Init(); err != nil {
		r.log.Error("device init failed", "drv", drv, "error", err)
		return fatlib.StatusNoInit
	}
	return fatlib.StatusOK
}

// Read implements fatlib.DiskOps. Sector addressing is converted to byte
// addressing using the device's write unit as the sector size. Any device
// error maps to a generic parameter error.
func (r *Registry) Read(drv int, buf []byte, sector, count uint32) fatlib.DiskResult {
	dev := r.device(drv)
	if dev == nil {
		return fatlib.DiskNotReady
	}

	ssize := dev.WriteSize()
	off := int64(sector) * ssize
	length := int64(count) * ssize
	if length > int64(len(buf)) {
		return fatlib.DiskParamError
	}

	_, err := dev.ReadAt(buf[:length], off)
	r.metrics.RecordDiskRead(uint64(length), err == nil)
	if err != nil {
		r.log.Error("disk read failed", "drv", drv, "sector", sector, "count", count, "error", err)
		return fatlib.DiskParamError
	}
	return fatlib.DiskOK
}

// Write implements fatlib.DiskOps.
func (r *Registry) Write(drv int, buf []byte, sector, count uint32) fatlib.DiskResult {
	dev := r.device(drv)
	if dev == nil {
		return fatlib.DiskNotReady
	}

	ssize := dev.WriteSize()
	off := int64(sector) * ssize
	length := int64(count) * ssize
	if length > int64(len(buf)) {
		return fatlib.DiskParamError
	}

	_, err := dev.WriteAt(buf[:length], off)
	r.metrics.RecordDiskWrite(uint64(length), err == nil)
	if err != nil {
		r.log.Error("disk write failed", "drv", drv, "sector", sector, "count", count, "error", err)
		return fatlib.DiskParamError
	}
	return fatlib.DiskOK
}

// Ioctl implements fatlib.DiskOps.
func (r *Registry) Ioctl(drv int, cmd fatlib.IoctlCmd) (int64, fatlib.DiskResult) {
	r.log.Debug("disk ioctl", "drv", drv, "cmd", int(cmd))
	dev := r.device(drv)

	switch cmd {
	case fatlib.CtrlSync:
		// The library is synchronized on write; sync only reports whether a
		// device is bound.
		if dev == nil {
			return 0, fatlib.DiskNotReady
		}
		return 0, fatlib.DiskOK

	case fatlib.GetSectorCount:
		if dev == nil {
			return 0, fatlib.DiskNotReady
		}
		return dev.Size() / dev.WriteSize(), fatlib.DiskOK

	case fatlib.GetSectorSize:
		if dev == nil {
			return 0, fatlib.DiskNotReady
		}
		return dev.WriteSize(), fatlib.DiskOK

	case fatlib.GetBlockSize:
		// Erase geometry is unknown to this layer.
		return 1, fatlib.DiskOK
	}

	return 0, fatlib.DiskParamError
}
