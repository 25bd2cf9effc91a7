// Package fault is the kernel's fatal-error sink.
//
// Invariant violations inside the memory-management core are never returned
// to the caller: the component calls Halt, which logs the failure and stops
// the current flow of control by panicking with an *Error. On real hardware
// this is where the kernel would print and spin forever.
//
// Catch converts a halt back into an ordinary error, which is how tests assert
// that an operation is fatal and how the CLI reports a dead machine.
package fault

import (
	"errors"
	"fmt"

	"github.com/joshuapare/kmem/internal/klog"
)

// Error describes a fatal condition raised by a kernel component.
type Error struct {
	Module  string // component that halted ("pmm", "vmm", ...)
	Message string // formatted detail
	Err     error  // sentinel describing the failure class
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Module, e.Err, e.Message)
}

// Unwrap returns the sentinel.
func (e *Error) Unwrap() error { return e.Err }

// ErrAssert is used when a halt site has no more specific sentinel.
var ErrAssert = errors.New("assertion failed")

// Halt logs the failure and never returns.
func Halt(module string, err error, format string, args ...any) {
	if err == nil {
		err = ErrAssert
	}
	fe := &Error{Module: module, Err: err}
	if format != "" {
		fe.Message = fmt.Sprintf(format, args...)
	}
	klog.Error("kernel halted", "module", module, "err", err, "detail", fe.Message)
	panic(fe)
}

// Assert halts with err when cond is false.
func Assert(cond bool, module string, err error, format string, args ...any) {
	if !cond {
		Halt(module, err, format, args...)
	}
}

// Catch runs fn and returns the *Error it halted with, or nil if fn returned
// normally. Panics that did not come from Halt are propagated.
func Catch(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fe, ok := r.(*Error)
		if !ok {
			panic(r)
		}
		err = fe
	}()
	fn()
	return nil
}

// Is reports whether err is a halt carrying target.
func Is(err, target error) bool {
	var fe *Error
	return errors.As(err, &fe) && errors.Is(fe.Err, target)
}
