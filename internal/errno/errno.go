// Package errno maps kernel-internal failure modes onto the POSIX-ish error
// codes the syscall boundary reports to user space (see spec §7).
package errno

import (
	"errors"
	"fmt"
)

// Errno is a closed enum of the codes the syscall ABI can return via the
// errno slot. Values are deliberately distinct from the real platform
// errno numbers; only the kernel's own dispatcher interprets them.
type Errno int

const (
	OK Errno = iota
	EINVAL
	EFAULT
	ENAMETOOLONG
	ENOMEM
	EMFILE
	EAGAIN
	EBUSY
	ETIMEDOUT
	EDEADLK
	EPERM
	EROFS
	ESRCH
	ECHILD
	ENOTCONN
)

func (e Errno) String() string {
	switch e {
	case OK:
		return "OK"
	case EINVAL:
		return "EINVAL"
	case EFAULT:
		return "EFAULT"
	case ENAMETOOLONG:
		return "ENAMETOOLONG"
	case ENOMEM:
		return "ENOMEM"
	case EMFILE:
		return "EMFILE"
	case EAGAIN:
		return "EAGAIN"
	case EBUSY:
		return "EBUSY"
	case ETIMEDOUT:
		return "ETIMEDOUT"
	case EDEADLK:
		return "EDEADLK"
	case EPERM:
		return "EPERM"
	case EROFS:
		return "EROFS"
	case ESRCH:
		return "ESRCH"
	case ECHILD:
		return "ECHILD"
	case ENOTCONN:
		return "ENOTCONN"
	default:
		return "EUNKNOWN"
	}
}

// Error implements the error interface so an Errno can be returned directly
// wherever a plain error is expected (e.g. from a kernel-internal helper
// that isn't on the syscall ABI boundary yet).
func (e Errno) Error() string {
	return e.String()
}

// SyscallError wraps an Errno with call-site context, the way eventloop's
// sentinel errors get wrapped with fmt.Errorf("%w", ...) before reaching a
// caller. Supports errors.Is/As against the underlying Errno.
type SyscallError struct {
	Op  string
	Err Errno
}

func (e *SyscallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *SyscallError) Unwrap() error {
	return e.Err
}

// Wrap builds a SyscallError, matching the teacher's WrapError(message, cause)
// convenience shape.
func Wrap(op string, err Errno) error {
	if err == OK {
		return nil
	}
	return &SyscallError{Op: op, Err: err}
}

// As extracts the Errno carried by err, if any, defaulting to EINVAL for
// errors that didn't originate from this package — mirroring how the
// dispatcher must always produce *some* code for the errno slot.
func As(err error) Errno {
	if err == nil {
		return OK
	}
	var se *SyscallError
	if errors.As(err, &se) {
		return se.Err
	}
	var e Errno
	if errors.As(err, &e) {
		return e
	}
	return EINVAL
}
