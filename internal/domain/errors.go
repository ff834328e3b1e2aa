package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBackendUnavailable  = errors.New("privilege backend unavailable")
	ErrSessionStartFailed  = errors.New("root shell session failed to start")
	ErrSessionClosed       = errors.New("root shell session closed")
	ErrInvalidCommand      = errors.New("malformed shell command")
	ErrCopyFailed          = errors.New("archive copy failed")
	ErrInvalidModule       = errors.New("invalid module archive")
	ErrInstallScriptFailed = errors.New("install script failed")
	ErrPathEscape          = errors.New("path escapes content root")
	ErrNotFound            = errors.New("not found")
	ErrUnsafeNavigation    = errors.New("navigation outside allowed origin")
	ErrModuleNotFound      = errors.New("module not found")
	ErrStateChangeRefused  = errors.New("module state change not permitted")
)

// CommandError reports a privileged command that exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	// Kind is the sentinel the error unwraps to; nil means a plain command failure.
	Kind error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return e.Kind
}
