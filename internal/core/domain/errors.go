package domain

import (
	"errors"
	"fmt"
	"strings"

	"go.trai.ch/zerr"
)

var (
	// ErrCommandFailed is returned when a shell command exits non-zero or cannot be launched.
	ErrCommandFailed = zerr.New("command failed")

	// ErrBuildFailed is returned when the build command of a cache spec fails.
	ErrBuildFailed = zerr.New("build failed")

	// ErrUnregisteredCommand is returned when a parameter output is requested for a command
	// that was never registered as a parameter command.
	ErrUnregisteredCommand = zerr.New("parameter command is not registered")

	// ErrEmptyCacheKey is returned when the hash command succeeds but prints nothing.
	ErrEmptyCacheKey = zerr.New("hash command produced an empty cache key")

	// ErrInvalidSpec is returned when a cache spec is missing a required field.
	ErrInvalidSpec = zerr.New("invalid cache spec")

	// ErrRemoteStore is matched by every failure reaching or operating on the remote store.
	ErrRemoteStore = zerr.New("remote store operation failed")

	// ErrObjectNotFound is returned by ObjectStore.Get when no object exists at the key.
	ErrObjectNotFound = zerr.New("object not found")

	// ErrArtifactMissing is returned when a cache marker exists but its artifact does not.
	ErrArtifactMissing = zerr.New("cache marker present but artifact is missing")

	// ErrArtifactCorrupt is returned when a downloaded artifact does not match its marker.
	ErrArtifactCorrupt = zerr.New("artifact does not match cache marker")

	// ErrMarkerDecode is returned when a cache marker body cannot be decoded.
	ErrMarkerDecode = zerr.New("failed to decode cache marker")

	// ErrDiffFormat is matched by every malformed or truncated archive input.
	ErrDiffFormat = zerr.New("malformed archive")

	// ErrUnsafePath is returned when an archive entry or object key escapes its root.
	ErrUnsafePath = zerr.New("path escapes destination root")

	// ErrUnknownCompression is returned for an unsupported compression name.
	ErrUnknownCompression = zerr.New("unknown compression")

	// ErrUnknownRemote is returned when the configured remote kind has no backend.
	ErrUnknownRemote = zerr.New("unknown remote store kind")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrCacheNotFound is returned when a requested cache name is not defined.
	ErrCacheNotFound = zerr.New("cache not found")

	// ErrDiffNotFound is returned when a requested diff name is not defined.
	ErrDiffNotFound = zerr.New("diff not found")

	// ErrInputNotFound is returned when a fingerprint input path matches nothing.
	ErrInputNotFound = zerr.New("input not found")

	// ErrCacheExecutionFailed is returned when one or more caches failed to execute.
	ErrCacheExecutionFailed = zerr.New("cache execution failed")
)

// CommandError describes a shell command that exited non-zero or failed to launch.
// ExitCode is -1 when the process never started. Signal is set when it was killed.
type CommandError struct {
	Command  string
	ExitCode int
	Signal   string
	Stdout   string
	Stderr   string

	kind  error
	cause error
}

// NewCommandError builds a CommandError that matches ErrCommandFailed.
func NewCommandError(command string, res CommandResult, cause error) *CommandError {
	return &CommandError{
		Command:  command,
		ExitCode: res.ExitCode,
		Signal:   res.Signal,
		Stdout:   string(res.Stdout),
		Stderr:   string(res.Stderr),
		kind:     ErrCommandFailed,
		cause:    cause,
	}
}

// NewBuildError builds a CommandError that matches both ErrBuildFailed and ErrCommandFailed.
func NewBuildError(command string, res CommandResult, cause error) *CommandError {
	e := NewCommandError(command, res, cause)
	e.kind = ErrBuildFailed
	return e
}

func (e *CommandError) Error() string {
	var b strings.Builder
	b.WriteString(e.kind.Error())
	switch {
	case e.Signal != "":
		fmt.Fprintf(&b, ": %q killed by signal %s", e.Command, e.Signal)
	case e.ExitCode < 0:
		fmt.Fprintf(&b, ": %q could not be started", e.Command)
	default:
		fmt.Fprintf(&b, ": %q exited with status %d", e.Command, e.ExitCode)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		b.WriteString("\n")
		b.WriteString(stderr)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap exposes the error kind, ErrCommandFailed and the launch failure, if any.
func (e *CommandError) Unwrap() []error {
	errs := []error{e.kind}
	if e.kind != ErrCommandFailed {
		errs = append(errs, ErrCommandFailed)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// StoreError records a failed remote object store operation.
type StoreError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

// NewStoreError wraps err as a StoreError unless it already is one.
func NewStoreError(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Bucket: bucket, Key: key, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("remote store %s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

// Unwrap returns ErrRemoteStore and the underlying cause.
func (e *StoreError) Unwrap() []error {
	return []error{ErrRemoteStore, e.Err}
}

// FormatError reports an archive that could not be parsed.
// Path names the archive source or the entry being read when the failure happened.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed archive: %v", e.Err)
	}
	return fmt.Sprintf("malformed archive at %s: %v", e.Path, e.Err)
}

// Unwrap returns ErrDiffFormat and the underlying cause.
func (e *FormatError) Unwrap() []error {
	return []error{ErrDiffFormat, e.Err}
}
