package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 0, exitCode(context.Canceled))
	assert.Equal(t, 0, exitCode(fmt.Errorf("run: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("task did not complete")))
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("writes the panic log", func(t *testing.T) {
		var (
			written  []byte
			exitWith = -1
		)
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			assert.Equal(t, panicLogFile, name)
			written = data
			return nil
		}
		osExit = func(code int) { exitWith = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Equal(t, 2, exitWith)
		assert.Contains(t, string(written), "panic: boom")
		assert.Contains(t, string(written), "goroutine")
	})

	t.Run("write failure still exits", func(t *testing.T) {
		exitWith := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only filesystem") }
		osExit = func(code int) { exitWith = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 1, exitWith)
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		require.False(t, called)
	})
}
