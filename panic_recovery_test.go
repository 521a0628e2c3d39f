// panic_recovery_test.go: panic recovery helper tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStackRecover(t *testing.T) {
	logger := NewTestLogger()
	func() {
		defer withStackRecover(logger, "component", "bus")()
		panic("observer exploded")
	}()

	messages := logger.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "ERROR", messages[0].Level)
	assert.Equal(t, "Panic recovered", messages[0].Message)
	assert.Equal(t, []any{"component", "bus", "panic", "observer exploded"}, messages[0].Args[:4])
	assert.Equal(t, "stack", messages[0].Args[4])
	assert.Contains(t, messages[0].Args[5], "goroutine")

	// Nothing is logged without a panic.
	func() {
		defer withStackRecover(logger)()
	}()
	assert.Len(t, logger.Messages(), 1)
}

func TestWithCustomRecoveryHandler(t *testing.T) {
	var recovered interface{}
	var stack []byte
	func() {
		defer withCustomRecoveryHandler(func(r interface{}, s []byte) {
			recovered = r
			stack = s
		})()
		panic(42)
	}()
	assert.Equal(t, 42, recovered)
	assert.NotEmpty(t, stack)
}

func TestCallSafely(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
		want string
	}{
		{"Success", func() error { return nil }, ""},
		{"Error", func() error { return errors.New("register failed") }, "register failed"},
		{"Panic", func() error { panic("register exploded") }, "panic: register exploded"},
		{"PanicWithError", func() error { panic(errors.New("bad state")) }, "panic: bad state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := callSafely(tt.fn)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.want)
		})
	}
}
