package blockfs

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/behrlich/go-blockfs/fatlib"
)

// Error is the structured error returned by every failing operation in this
// package. It carries the operation name, the volume it happened on when
// applicable, a high-level category, and the external library's result code
// when the failure originated there.
type Error struct {
	Op     string        // operation that failed (e.g. "mount", "chain.init")
	Volume int           // volume id (-1 if not applicable)
	Code   ErrorCode     // high-level error category
	Result fatlib.Result // library result code (OK if not applicable)
	Msg    string        // human-readable message
	Inner  error         // wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	ctx := ""
	if e.Op != "" {
		ctx = fmt.Sprintf(" (op=%s", e.Op)
		if e.Volume >= 0 {
			ctx += fmt.Sprintf(", vol=%d", e.Volume)
		}
		if e.Result != fatlib.OK {
			ctx += fmt.Sprintf(", result=%s", e.Result)
		}
		ctx += ")"
	}

	return fmt.Sprintf("blockfs: %s%s", msg, ctx)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches two structured errors by category.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	return ok && e.Code == te.Code
}

// Errno maps the error to the closest POSIX errno. Failures that carry a
// library result defer to its mapping.
func (e *Error) Errno() syscall.Errno {
	if e.Result != fatlib.OK {
		return e.Result.Errno()
	}
	switch e.Code {
	case ErrCodeOutOfBounds, ErrCodeInvalidParameters, ErrCodeInvalidSlice,
		ErrCodeIncompatibleChain, ErrCodeMisaligned:
		return syscall.EINVAL
	case ErrCodeNotMounted, ErrCodeNotInitialized:
		return syscall.ENODEV
	case ErrCodeAlreadyMounted, ErrCodeNoFreeVolume:
		return syscall.EBUSY
	default:
		return syscall.EIO
	}
}

// ErrorCode is a high-level error category.
type ErrorCode string

const (
	ErrCodeInvalidSlice      ErrorCode = "invalid slice range"
	ErrCodeIncompatibleChain ErrorCode = "incompatible chain alignment"
	ErrCodeMisaligned        ErrorCode = "misaligned request"
	ErrCodeOutOfBounds       ErrorCode = "request out of bounds"
	ErrCodeNotInitialized    ErrorCode = "device not initialized"
	ErrCodeAlreadyMounted    ErrorCode = "already mounted"
	ErrCodeNotMounted        ErrorCode = "not mounted"
	ErrCodeNoFreeVolume      ErrorCode = "no free volume slot"
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"
	ErrCodeIOError           ErrorCode = "I/O error"
	ErrCodeLibraryError      ErrorCode = "library error"
)

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Volume: -1, Code: code, Msg: msg}
}

// newVolumeError creates an error bound to a volume slot.
func newVolumeError(op string, volume int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Volume: volume, Code: code, Msg: msg}
}

// newLibraryError creates an error from a non-OK library result.
func newLibraryError(op string, volume int, res fatlib.Result) *Error {
	return &Error{
		Op:     op,
		Volume: volume,
		Code:   ErrCodeLibraryError,
		Result: res,
		Msg:    res.String(),
	}
}

// WrapError wraps an existing error with operation context. A wrapped
// structured error keeps its category, volume and result.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	var be *Error
	if errors.As(inner, &be) {
		return &Error{
			Op:     op,
			Volume: be.Volume,
			Code:   be.Code,
			Result: be.Result,
			Msg:    be.Msg,
			Inner:  inner,
		}
	}

	return &Error{
		Op:     op,
		Volume: -1,
		Code:   ErrCodeIOError,
		Msg:    inner.Error(),
		Inner:  inner,
	}
}

// IsCode checks whether err carries the given error category.
func IsCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// ResultOf extracts the library result carried by err, or OK when err did
// not originate in the library.
func ResultOf(err error) fatlib.Result {
	var be *Error
	if errors.As(err, &be) {
		return be.Result
	}
	return fatlib.OK
}
