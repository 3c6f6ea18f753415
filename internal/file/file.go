// Package file implements the kernel's polymorphic, reference-counted file
// object (spec §3 "File (polymorphic)"), grounded on osfile.h/file.cpp's
// variant-dispatch shape (terminal device / filesystem / socket), collapsed
// here onto a small Go interface plus an embeddable RefCounted base.
package file

import (
	"io"
	"sync/atomic"

	"github.com/jncronin/gkos/internal/errno"
)

// Kind tags which variant a File is (spec §3 "Variants: terminal-like
// device file, filesystem file, socket file").
type Kind int

const (
	Device Kind = iota
	Filesystem
	Socket
)

// Stat mirrors the subset of POSIX struct stat the kernel's fstat syscall
// reports.
type Stat struct {
	Size  int64
	Mode  uint32
	IsDir bool
}

// File is the common surface every variant implements (spec §3 "Common
// operations: Read, Write, Fstat, Lseek, Ftruncate, Isatty, Close").
type File interface {
	Kind() Kind
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Fstat() (Stat, error)
	Lseek(offset int64, whence int) (int64, error)
	Ftruncate(size int64) error
	Isatty() bool

	// Close implements the two-phase protocol (spec §3 "Close (two-phase:
	// graceful then forced)", §9): CloseGraceful decrements the reference
	// count and, only once it reaches zero, attempts to flush/release the
	// backend, reporting any error from that release without discarding the
	// reference drop. CloseForced releases regardless of remaining
	// references and never reports an error; once CloseGraceful has
	// attempted the release (whether or not it failed), CloseForced does
	// nothing. It is used by process cleanup (spec §4.10) where the owning
	// process is gone and callers can no longer observe a close error.
	CloseGraceful() (closed bool, err error)
	CloseForced()

	// Retain increments the reference count, used when a file descriptor is
	// inherited across process creation (spec §3 "a file may be inherited
	// across process creation by incrementing its count").
	Retain()
}

// Base provides the reference-counting and backend-release machinery
// shared by every File variant.
type Base struct {
	kind    Kind
	refs    atomic.Int32
	backend io.Closer // nil if the backend has no explicit close step
	closed  atomic.Bool
}

// NewBase constructs a Base with an initial reference count of 1.
func NewBase(kind Kind, backend io.Closer) Base {
	b := Base{kind: kind, backend: backend}
	b.refs.Store(1)
	return b
}

func (b *Base) Kind() Kind { return b.kind }
func (b *Base) Isatty() bool { return b.kind == Device }

func (b *Base) Retain() { b.refs.Add(1) }

// CloseGraceful drops one reference; once it reaches zero it releases the
// backend exactly once, returning closed=true and any error the backend's
// Close returned.
func (b *Base) CloseGraceful() (closed bool, err error) {
	remaining := b.refs.Add(-1)
	if remaining > 0 {
		return false, nil
	}
	if !b.closed.CompareAndSwap(false, true) {
		return true, nil // already released by a racing CloseForced
	}
	if b.backend != nil {
		err = b.backend.Close()
	}
	return true, err
}

// CloseForced releases the backend immediately, ignoring any outstanding
// reference count, and never reports an error (spec §4.10: the process
// that owned this file is already being torn down).
func (b *Base) CloseForced() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	if b.backend != nil {
		_ = b.backend.Close()
	}
}

func unsupported(op string) error { return errno.Wrap(op, errno.EINVAL) }

// DeviceFile models a terminal-like device file (spec §3 "terminal-like
// device file"): reads/writes flow directly through the backend reader and
// writer; seeking and truncation are unsupported.
type DeviceFile struct {
	Base
	R io.Reader
	W io.Writer
}

// NewDeviceFile wraps r/w as a terminal-like device file.
func NewDeviceFile(r io.Reader, w io.Writer, closer io.Closer) *DeviceFile {
	return &DeviceFile{Base: NewBase(Device, closer), R: r, W: w}
}

func (d *DeviceFile) Read(p []byte) (int, error) {
	if d.R == nil {
		return 0, unsupported("read")
	}
	return d.R.Read(p)
}

func (d *DeviceFile) Write(p []byte) (int, error) {
	if d.W == nil {
		return 0, unsupported("write")
	}
	return d.W.Write(p)
}

func (d *DeviceFile) Fstat() (Stat, error)          { return Stat{Mode: 0o020666}, nil }
func (d *DeviceFile) Lseek(int64, int) (int64, error) { return 0, unsupported("lseek") }
func (d *DeviceFile) Ftruncate(int64) error           { return unsupported("ftruncate") }

// FSFile models a filesystem file with an opaque backend handle and path
// (spec §3 "filesystem file (with opaque back-end handle and path)"). The
// actual filesystem back-end is an excluded external collaborator (spec
// §1 Non-goals); Backend only needs to support seeking/reading/writing,
// whatever concrete type a filesystem driver supplies.
type FSFile struct {
	Base
	Path    string
	Backend interface {
		io.ReadWriteSeeker
		Truncate(size int64) error
	}
}

// NewFSFile wraps an already-open filesystem backend handle.
func NewFSFile(path string, backend interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
}, closer io.Closer) *FSFile {
	return &FSFile{Base: NewBase(Filesystem, closer), Path: path, Backend: backend}
}

func (f *FSFile) Read(p []byte) (int, error)  { return f.Backend.Read(p) }
func (f *FSFile) Write(p []byte) (int, error) { return f.Backend.Write(p) }
func (f *FSFile) Fstat() (Stat, error)        { return Stat{}, nil }
func (f *FSFile) Lseek(offset int64, whence int) (int64, error) {
	return f.Backend.Seek(offset, whence)
}
func (f *FSFile) Ftruncate(size int64) error { return f.Backend.Truncate(size) }

// ReadDir is implemented by filesystem directory handles only (spec §3
// "ReadDir"); FSFile's Backend does not itself provide directory iteration,
// since directory back-ends are an excluded external collaborator.
type ReadDirer interface {
	ReadDir() ([]string, error)
}

// SocketFile models a socket file holding an opaque socket handle (spec §3
// "socket file (holding a socket pointer)"). Networking itself is an
// excluded external collaborator (spec §1 Non-goals); this models only the
// file-table-visible shape of a socket descriptor.
type SocketFile struct {
	Base
	Handle interface{}
}

// NewSocketFile wraps an opaque socket handle.
func NewSocketFile(handle interface{}, closer io.Closer) *SocketFile {
	return &SocketFile{Base: NewBase(Socket, closer), Handle: handle}
}

func (s *SocketFile) Read([]byte) (int, error)  { return 0, unsupported("read") }
func (s *SocketFile) Write([]byte) (int, error) { return 0, unsupported("write") }
func (s *SocketFile) Fstat() (Stat, error)      { return Stat{Mode: 0o140666}, nil }
func (s *SocketFile) Lseek(int64, int) (int64, error) { return 0, unsupported("lseek") }
func (s *SocketFile) Ftruncate(int64) error           { return unsupported("ftruncate") }

// Socketer is implemented by socket files only (spec §3
// "Bind/Listen/Accept (socket only)"). Concrete accept/bind/listen
// semantics live with the networking back-end (excluded, spec §1
// Non-goals); this interface is the hook a future back-end would satisfy.
type Socketer interface {
	Bind(addr string) error
	Listen(backlog int) error
	Accept() (SocketFile, error)
}
