package blockfs

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/behrlich/go-blockfs/fatlib"
)

// MockDevice is a RAM-backed BlockDevice for testing. It enforces the full
// capability contract (explicit init, aligned offsets and lengths, bounds)
// and tracks method calls for verification. Contents survive Deinit/Init
// cycles the way a physical medium would.
type MockDevice struct {
	data      []byte
	blockSize int64

	mu     sync.RWMutex
	inited bool

	initCalls   int
	deinitCalls int
	readCalls   int
	writeCalls  int
	syncCalls   int

	failInit  error
	failRead  error
	failWrite error
	failSync  error
}

var _ BlockDevice = (*MockDevice)(nil)

// NewMockDevice creates a mock device of the given size with uniform
// read/program/erase geometry of blockSize bytes. size must be a multiple
// of blockSize.
func NewMockDevice(size, blockSize int64) *MockDevice {
	if blockSize <= 0 || size <= 0 || size%blockSize != 0 {
		panic(fmt.Sprintf("blockfs: bad mock geometry size=%d block=%d", size, blockSize))
	}
	return &MockDevice{
		data:      make([]byte, size),
		blockSize: blockSize,
	}
}

// Init implements BlockDevice.
func (m *MockDevice) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initCalls++
	if m.failInit != nil {
		return m.failInit
	}
	m.inited = true
	return nil
}

// Deinit implements BlockDevice.
func (m *MockDevice) Deinit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deinitCalls++
	m.inited = false
	return nil
}

// ReadAt implements BlockDevice.
func (m *MockDevice) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls++
	if m.failRead != nil {
		return 0, m.failRead
	}
	if err := m.check("mock.read", p, off); err != nil {
		return 0, err
	}
	return copy(p, m.data[off:]), nil
}

// WriteAt implements BlockDevice.
func (m *MockDevice) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++
	if m.failWrite != nil {
		return 0, m.failWrite
	}
	if err := m.check("mock.write", p, off); err != nil {
		return 0, err
	}
	return copy(m.data[off:], p), nil
}

// check validates init state, alignment and bounds. Caller holds m.mu.
func (m *MockDevice) check(op string, p []byte, off int64) error {
	if !m.inited {
		return NewError(op, ErrCodeNotInitialized, "")
	}
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return NewError(op, ErrCodeOutOfBounds,
			fmt.Sprintf("[%d,%d) outside %d-byte device", off, off+int64(len(p)), len(m.data)))
	}
	if !aligned(off, m.blockSize) || !aligned(int64(len(p)), m.blockSize) {
		return NewError(op, ErrCodeMisaligned,
			fmt.Sprintf("offset %d length %d not aligned to %d-byte blocks", off, len(p), m.blockSize))
	}
	return nil
}

// Sync implements BlockDevice.
func (m *MockDevice) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncCalls++
	return m.failSync
}

// Size implements BlockDevice.
func (m *MockDevice) Size() int64 { return int64(len(m.data)) }

// ReadSize implements BlockDevice.
func (m *MockDevice) ReadSize() int64 { return m.blockSize }

// WriteSize implements BlockDevice.
func (m *MockDevice) WriteSize() int64 { return m.blockSize }

// EraseSize implements BlockDevice.
func (m *MockDevice) EraseSize() int64 { return m.blockSize }

// FailInit injects an error returned by subsequent Init calls (nil clears).
func (m *MockDevice) FailInit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failInit = err
}

// FailReads injects an error returned by subsequent ReadAt calls.
func (m *MockDevice) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRead = err
}

// FailWrites injects an error returned by subsequent WriteAt calls.
func (m *MockDevice) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = err
}

// FailSyncs injects an error returned by subsequent Sync calls.
func (m *MockDevice) FailSyncs(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSync = err
}

// Initialized reports whether the device is currently initialized.
func (m *MockDevice) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inited
}

// CallCounts returns the number of times each method has been called.
func (m *MockDevice) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int{
		"init":   m.initCalls,
		"deinit": m.deinitCalls,
		"read":   m.readCalls,
		"write":  m.writeCalls,
		"sync":   m.syncCalls,
	}
}

// mockMagic marks a MockDriver-formatted medium; Mkfs writes it to sector 0
// and mount verification checks for it.
var mockMagic = []byte("GOBLOCKFS-FAT\x00\x01")

// MockDriver is a fake fatlib.Driver for testing the adaptation layer
// without a real FAT implementation. It keeps file contents in memory but
// goes through the DiskOps shim for everything the volume lifecycle needs:
// mount verification reads sector 0 looking for a format signature, and
// Mkfs writes that signature. Directory and file semantics follow the
// external library's observable behavior (result codes, open modes, the
// end-of-directory convention).
//
// Because file data lives in the driver rather than on the medium, a
// MockDriver instance keys its namespaces by drive identifier; swapping
// different devices through the same slot is not a supported scenario.
type MockDriver struct {
	mu     sync.Mutex
	ops    fatlib.DiskOps
	drives map[string]*mockVolume
}

var _ fatlib.Driver = (*MockDriver)(nil)

type mockVolume struct {
	mounted  bool
	verified bool
	files    map[string]*mockNode // relative path -> node
}

type mockNode struct {
	data  []byte
	attr  fatlib.Attr
	mtime uint32
}

// NewMockDriver creates a mock driver performing medium access through ops.
func NewMockDriver(ops fatlib.DiskOps) *MockDriver {
	return &MockDriver{ops: ops, drives: make(map[string]*mockVolume)}
}

func (d *MockDriver) vol(drive string) *mockVolume {
	v, ok := d.drives[drive]
	if !ok {
		v = &mockVolume{}
		d.drives[drive] = v
	}
	return v
}

// Mount implements fatlib.Driver. A non-forced mount defers medium access
// until first use, so mounting an unformatted device succeeds and the
// missing filesystem is reported by the first real operation.
func (d *MockDriver) Mount(drive string, force bool) fatlib.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := d.vol(drive)
	v.mounted = true
	v.verified = false
	if force {
		return d.verify(drive, v)
	}
	return fatlib.OK
}

// Unmount implements fatlib.Driver.
func (d *MockDriver) Unmount(drive string) fatlib.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := d.vol(drive)
	v.mounted = false
	v.verified = false
	return fatlib.OK
}

// verify initializes the drive and checks sector 0 for the format
// signature. Caller holds d.mu.
func (d *MockDriver) verify(drive string, v *mockVolume) fatlib.Result {
	idx, err := strconv.Atoi(drive)
	if err != nil {
		return fatlib.InvalidDrive
	}

	if st := d.ops.Initialize(idx); st&fatlib.StatusNoInit != 0 {
		return fatlib.NotReady
	}

	ssize, res := d.ops.Ioctl(idx, fatlib.GetSectorSize)
	if res != fatlib.DiskOK {
		return fatlib.DiskErr
	}

	buf := make([]byte, ssize)
	if res := d.ops.Read(idx, buf, 0, 1); res != fatlib.DiskOK {
		return fatlib.DiskErr
	}
	if !bytes.HasPrefix(buf, mockMagic) {
		return fatlib.NoFilesystem
	}

	if v.files == nil {
		v.files = make(map[string]*mockNode)
	}
	v.verified = true
	return fatlib.OK
}

// Mkfs implements fatlib.Driver by writing the format signature to sector 0
// and resetting the drive's namespace.
func (d *MockDriver) Mkfs(drive string, allocationUnit int) fatlib.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := d.vol(drive)
	if !v.mounted {
		return fatlib.NotEnabled
	}
	if allocationUnit < 0 {
		return fatlib.InvalidParameter
	}

	idx, err := strconv.Atoi(drive)
	if err != nil {
		return fatlib.InvalidDrive
	}
	if st := d.ops.Initialize(idx); st&fatlib.StatusNoInit != 0 {
		return fatlib.NotReady
	}

	ssize, res := d.ops.Ioctl(idx, fatlib.GetSectorSize)
	if res != fatlib.DiskOK {
		return fatlib.DiskErr
	}
	if count, res := d.ops.Ioctl(idx, fatlib.GetSectorCount); res != fatlib.DiskOK || count < 1 {
		return fatlib.MkfsAborted
	}

	sector := make([]byte, ssize)
	copy(sector, mockMagic)
	if res := d.ops.Write(idx, sector, 0, 1); res != fatlib.DiskOK {
		return fatlib.DiskErr
	}

	v.files = make(map[string]*mockNode)
	v.verified = true
	return fatlib.OK
}

// lookup parses a drive-prefixed path and verifies the volume is usable.
// Caller holds d.mu.
func (d *MockDriver) lookup(p string) (*mockVolume, string, fatlib.Result) {
	i := strings.Index(p, ":")
	if i < 0 {
		return nil, "", fatlib.InvalidName
	}

	drive := p[:i]
	rel := strings.Trim(path.Clean("/"+p[i+1:]), "/")
	if rel == "." {
		rel = ""
	}

	v := d.vol(drive)
	if !v.mounted {
		return nil, "", fatlib.NotEnabled
	}
	if !v.verified {
		if res := d.verify(drive, v); res != fatlib.OK {
			return nil, "", res
		}
	}
	return v, rel, fatlib.OK
}

func parentOf(rel string) string {
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		return rel[:i]
	}
	return ""
}

func (v *mockVolume) hasDir(rel string) bool {
	if rel == "" {
		return true
	}
	n, ok := v.files[rel]
	return ok && n.attr&fatlib.AttrDirectory != 0
}

// Open implements fatlib.Driver.
func (d *MockDriver) Open(p string, mode fatlib.OpenMode) (fatlib.File, fatlib.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, rel, res := d.lookup(p)
	if res != fatlib.OK {
		return nil, res
	}
	if rel == "" {
		return nil, fatlib.InvalidName
	}

	node := v.files[rel]
	if node != nil && node.attr&fatlib.AttrDirectory != 0 {
		return nil, fatlib.Denied
	}

	switch {
	case node == nil:
		if mode&(fatlib.ModeCreateNew|fatlib.ModeCreateAlways|fatlib.ModeOpenAlways) == 0 {
			return nil, fatlib.NoFile
		}
		if !v.hasDir(parentOf(rel)) {
			return nil, fatlib.NoPath
		}
		node = &mockNode{attr: fatlib.AttrArchive, mtime: fatlib.Now()}
		v.files[rel] = node

	case mode&fatlib.ModeCreateNew != 0:
		return nil, fatlib.Exist

	case mode&fatlib.ModeCreateAlways != 0:
		if node.attr&fatlib.AttrReadOnly != 0 {
			return nil, fatlib.Denied
		}
		node.data = nil
		node.mtime = fatlib.Now()
	}

	if mode&fatlib.ModeWrite != 0 && node.attr&fatlib.AttrReadOnly != 0 {
		return nil, fatlib.Denied
	}

	return &mockFile{node: node, mode: mode}, fatlib.OK
}

// Unlink implements fatlib.Driver.
func (d *MockDriver) Unlink(p string) fatlib.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, rel, res := d.lookup(p)
	if res != fatlib.OK {
		return res
	}
	if rel == "" {
		return fatlib.InvalidName
	}

	node := v.files[rel]
	if node == nil {
		return fatlib.NoFile
	}
	if node.attr&fatlib.AttrReadOnly != 0 {
		return fatlib.Denied
	}
	if node.attr&fatlib.AttrDirectory != 0 {
		for k := range v.files {
			if strings.HasPrefix(k, rel+"/") {
				return fatlib.Denied // directory not empty
			}
		}
	}

	delete(v.files, rel)
	return fatlib.OK
}

// Rename implements fatlib.Driver.
func (d *MockDriver) Rename(oldPath, newPath string) fatlib.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, oldRel, res := d.lookup(oldPath)
	if res != fatlib.OK {
		return res
	}
	v2, newRel, res := d.lookup(newPath)
	if res != fatlib.OK {
		return res
	}
	if v != v2 {
		return fatlib.InvalidDrive
	}
	if oldRel == "" || newRel == "" {
		return fatlib.InvalidName
	}

	node := v.files[oldRel]
	if node == nil {
		return fatlib.NoFile
	}
	if _, exists := v.files[newRel]; exists {
		return fatlib.Exist
	}
	if !v.hasDir(parentOf(newRel)) {
		return fatlib.NoPath
	}

	delete(v.files, oldRel)
	v.files[newRel] = node

	if node.attr&fatlib.AttrDirectory != 0 {
		prefix := oldRel + "/"
		for k, n := range v.files {
			if strings.HasPrefix(k, prefix) {
				delete(v.files, k)
				v.files[newRel+"/"+k[len(prefix):]] = n
			}
		}
	}
	return fatlib.OK
}

// Mkdir implements fatlib.Driver.
func (d *MockDriver) Mkdir(p string) fatlib.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, rel, res := d.lookup(p)
	if res != fatlib.OK {
		return res
	}
	if rel == "" {
		return fatlib.Exist
	}
	if _, exists := v.files[rel]; exists {
		return fatlib.Exist
	}
	if !v.hasDir(parentOf(rel)) {
		return fatlib.NoPath
	}

	v.files[rel] = &mockNode{attr: fatlib.AttrDirectory, mtime: fatlib.Now()}
	return fatlib.OK
}

// OpenDir implements fatlib.Driver.
func (d *MockDriver) OpenDir(p string) (fatlib.Dir, fatlib.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, rel, res := d.lookup(p)
	if res != fatlib.OK {
		return nil, res
	}
	if !v.hasDir(rel) {
		return nil, fatlib.NoPath
	}

	var entries []fatlib.FileInfo
	for k, n := range v.files {
		if parentOf(k) != rel {
			continue
		}
		entries = append(entries, fatlib.FileInfo{
			Name: path.Base(k),
			Size: int64(len(n.data)),
			Attr: n.attr,
			Time: n.mtime,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return &mockDir{entries: entries}, fatlib.OK
}

// Stat implements fatlib.Driver. Unlike the C library, statting the volume
// root succeeds and reports a directory.
func (d *MockDriver) Stat(p string) (fatlib.FileInfo, fatlib.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, rel, res := d.lookup(p)
	if res != fatlib.OK {
		return fatlib.FileInfo{}, res
	}
	if rel == "" {
		return fatlib.FileInfo{Name: "/", Attr: fatlib.AttrDirectory}, fatlib.OK
	}

	node := v.files[rel]
	if node == nil {
		return fatlib.FileInfo{}, fatlib.NoFile
	}
	return fatlib.FileInfo{
		Name: path.Base(rel),
		Size: int64(len(node.data)),
		Attr: node.attr,
		Time: node.mtime,
	}, fatlib.OK
}

// SetAttr overrides the attribute byte of an existing entry. Test hook for
// exercising read-only translation.
func (d *MockDriver) SetAttr(p string, attr fatlib.Attr) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, rel, res := d.lookup(p)
	if res != fatlib.OK || rel == "" {
		return false
	}
	node := v.files[rel]
	if node == nil {
		return false
	}
	node.attr = attr
	return true
}

// mockFile implements fatlib.File over a mockNode.
type mockFile struct {
	node *mockNode
	mode fatlib.OpenMode
	pos  int64
}

func (f *mockFile) Read(p []byte) (int, fatlib.Result) {
	if f.mode&fatlib.ModeRead == 0 {
		return 0, fatlib.Denied
	}
	if f.pos >= int64(len(f.node.data)) {
		return 0, fatlib.OK // end of file reads zero bytes
	}
	n := copy(p, f.node.data[f.pos:])
	f.pos += int64(n)
	return n, fatlib.OK
}

func (f *mockFile) Write(p []byte) (int, fatlib.Result) {
	if f.mode&fatlib.ModeWrite == 0 {
		return 0, fatlib.Denied
	}
	if end := f.pos + int64(len(p)); end > int64(len(f.node.data)) {
		grown := make([]byte, end)
		copy(grown, f.node.data)
		f.node.data = grown
	}
	n := copy(f.node.data[f.pos:], p)
	f.pos += int64(n)
	f.node.mtime = fatlib.Now()
	return n, fatlib.OK
}

func (f *mockFile) Seek(offset int64) fatlib.Result {
	if offset < 0 {
		return fatlib.InvalidParameter
	}
	if offset > int64(len(f.node.data)) {
		if f.mode&fatlib.ModeWrite == 0 {
			// read-only seeks clamp to the file size
			f.pos = int64(len(f.node.data))
			return fatlib.OK
		}
		grown := make([]byte, offset)
		copy(grown, f.node.data)
		f.node.data = grown
	}
	f.pos = offset
	return fatlib.OK
}

func (f *mockFile) Tell() int64 { return f.pos }

func (f *mockFile) Size() int64 { return int64(len(f.node.data)) }

func (f *mockFile) Truncate() fatlib.Result {
	if f.mode&fatlib.ModeWrite == 0 {
		return fatlib.Denied
	}
	f.node.data = f.node.data[:f.pos]
	f.node.mtime = fatlib.Now()
	return fatlib.OK
}

func (f *mockFile) Sync() fatlib.Result { return fatlib.OK }

func (f *mockFile) Close() fatlib.Result { return fatlib.OK }

// mockDir implements fatlib.Dir over a snapshot of entries.
type mockDir struct {
	entries []fatlib.FileInfo
	next    int
}

func (d *mockDir) Read() (fatlib.FileInfo, fatlib.Result) {
	if d.next >= len(d.entries) {
		return fatlib.FileInfo{}, fatlib.OK // empty name signals the end
	}
	fi := d.entries[d.next]
	d.next++
	return fi, fatlib.OK
}

func (d *mockDir) Close() fatlib.Result { return fatlib.OK }
