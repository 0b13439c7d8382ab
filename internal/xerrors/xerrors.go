// Package xerrors wraps errors with call-site information so the logger can
// print where a failure was created or passed through.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxDepth = 64

// stacked carries the full call stack captured when it was created.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }

// annotated carries a message and the single frame that added it.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error { return a.err }
func (a *annotated) PC() uintptr   { return a.pc }

// stackFrom captures the stack of the caller's caller.
func stackFrom(skip int) []uintptr {
	pcs := make([]uintptr, maxDepth)
	// +2: runtime.Callers and stackFrom
	return pcs[:runtime.Callers(skip+2, pcs)]
}

func pcFrom(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func New(msg string) error { return &stacked{err: errors.New(msg), pcs: stackFrom(1)} }

func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: stackFrom(1)}
}

// WithStack records the current stack on err. nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: stackFrom(1)}
}

// EnsureTrace is WithStack unless some error in the chain already has one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: stackFrom(1)}
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: pcFrom(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: pcFrom(1)}
}

// PanicError is a recovered panic value with the stack of the panicking
// goroutine.
type PanicError struct {
	Value any
	pcs   []uintptr
}

func (p *PanicError) Error() string       { return fmt.Sprintf("panic: %v", p.Value) }
func (p *PanicError) StackPCs() []uintptr { return p.pcs }

// Unwrap exposes the panic value when it is itself an error.
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// FromPanic converts a value returned by recover() into an error. It must be
// called from the deferred function so the captured stack includes the
// frames that panicked.
func FromPanic(v any) error {
	if v == nil {
		return nil
	}
	return &PanicError{Value: v, pcs: stackFrom(1)}
}
