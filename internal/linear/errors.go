package linear

import (
	"errors"
	"fmt"
)

// Kind classifies a device forward failure by the stage that failed.
type Kind int

const (
	TransferFailure Kind = iota + 1
	KernelArgBindFailure
	LaunchFailure
	ReadbackFailure
)

var (
	ErrTransfer      = errors.New("transfer failure")
	ErrKernelArgBind = errors.New("kernel argument bind failure")
	ErrLaunch        = errors.New("launch failure")
	ErrReadback      = errors.New("readback failure")
)

func (k Kind) String() string {
	switch k {
	case TransferFailure:
		return "TransferFailure"
	case KernelArgBindFailure:
		return "KernelArgBindFailure"
	case LaunchFailure:
		return "LaunchFailure"
	case ReadbackFailure:
		return "ReadbackFailure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case TransferFailure:
		return ErrTransfer
	case KernelArgBindFailure:
		return ErrKernelArgBind
	case LaunchFailure:
		return ErrLaunch
	case ReadbackFailure:
		return ErrReadback
	default:
		return nil
	}
}

// Error reports a failed ForwardDevice call. When it is returned the output
// buffer holds no valid result; some device regions may already have been
// overwritten.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("linear: %s: %s", e.Op, e.Kind.sentinel())
	}
	return fmt.Sprintf("linear: %s: %s: %v", e.Op, e.Kind.sentinel(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind, so callers can write
// errors.Is(err, linear.ErrLaunch).
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the failure kind carried by err, or 0 when err is not a
// device forward failure.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}
