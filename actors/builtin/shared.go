package builtin

import (
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/filecoin-project/lockdrop-actors/actors/runtime"
)

///// Code shared by multiple built-in actors. /////

// Propagates a failed send by aborting the current method with the same exit code.
func RequireSuccess(rt runtime.Runtime, e exitcode.ExitCode, msg string, args ...interface{}) {
	if !e.IsSuccess() {
		rt.Abortf(e, msg, args...)
	}
}

// Aborts with an ErrIllegalArgument if predicate is not true.
func RequireParam(rt runtime.Runtime, predicate bool, msg string, args ...interface{}) {
	if !predicate {
		rt.Abortf(exitcode.ErrIllegalArgument, msg, args...)
	}
}

// Aborts with a formatted message if err is not nil.
// The provided message will be suffixed by ": %s" and the provided args suffixed by the err.
// The exit code is taken from err if it carries one, and defaults to defaultExitCode otherwise.
func RequireNoErr(rt runtime.Runtime, err error, defaultExitCode exitcode.ExitCode, msg string, args ...interface{}) {
	if err != nil {
		newMsg := msg + ": %s"
		newArgs := append(args, err)
		code := exitcode.Unwrap(err, defaultExitCode)
		rt.Abortf(code, newMsg, newArgs...)
	}
}

// Aborts if the current message carries value. Used by methods that are not payable.
func RequireNoValue(rt runtime.Runtime) {
	if received := rt.Message().ValueReceived(); !received.IsZero() {
		rt.Abortf(exitcode.ErrIllegalArgument, "method is not payable, received %v", received)
	}
}
