// panic_recovery.go: Panic recovery helpers for observer and hook invocation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"fmt"
	"runtime"
)

// RecoveryHandler receives a recovered panic value and the goroutine stack.
type RecoveryHandler func(recovered interface{}, stack []byte)

// withStackRecover returns a function to defer that logs a recovered panic
// with its stack trace.
//
//	defer withStackRecover(logger, "component", "bus")()
func withStackRecover(logger Logger, args ...any) func() {
	return func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered", append(args, "panic", r, "stack", string(captureStack()))...)
		}
	}
}

// withCustomRecoveryHandler returns a function to defer that hands a
// recovered panic to handler.
func withCustomRecoveryHandler(handler RecoveryHandler) func() {
	return func() {
		if r := recover(); r != nil {
			handler(r, captureStack())
		}
	}
}

// callSafely runs fn and converts a panic into an error.
func callSafely(fn func() error) (err error) {
	defer withCustomRecoveryHandler(func(recovered interface{}, stack []byte) {
		err = fmt.Errorf("panic: %v", recovered)
	})()
	return fn()
}

func captureStack() []byte {
	buf := make([]byte, 64<<10)
	n := runtime.Stack(buf, false)
	return buf[:n]
}
