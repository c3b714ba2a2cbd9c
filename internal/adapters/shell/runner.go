// Package shell provides the shell command runner adapter.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"syscall"

	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/dockyard/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultShell interprets commands.
const DefaultShell = "/bin/sh"

// Runner implements ports.CommandRunner using os/exec.
type Runner struct {
	logger ports.Logger
	shell  string
	dir    string
}

// Option configures a Runner.
type Option func(*Runner)

// WithShell overrides the interpreter used for commands.
func WithShell(shell string) Option {
	return func(r *Runner) {
		r.shell = shell
	}
}

// WithDir runs commands in dir instead of the caller's working directory.
func WithDir(dir string) Option {
	return func(r *Runner) {
		r.dir = dir
	}
}

// NewRunner creates a new Runner.
func NewRunner(logger ports.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger: logger,
		shell:  DefaultShell,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes command with "sh -c" in the caller's environment.
//
// Output is captured into the result. It is also streamed line by line to the vertex
// carried by ctx, or to the logger when there is none.
func (r *Runner) Run(ctx context.Context, command string) (domain.CommandResult, error) {
	var stdout, stderr bytes.Buffer

	var outSink, errSink io.Writer
	var flush func()
	if vertex, ok := ports.VertexFromContext(ctx); ok {
		outSink, errSink = vertex.Stdout(), vertex.Stderr()
		flush = func() {}
	} else {
		outLog := &logWriter{logger: r.logger, level: "info"}
		errLog := &logWriter{logger: r.logger, level: "warn"}
		outSink, errSink = outLog, errLog
		flush = func() {
			_ = outLog.Close()
			_ = errLog.Close()
		}
	}

	cmd := exec.CommandContext(ctx, r.shell, "-c", command) //nolint:gosec // commands come from the workspace config
	cmd.Dir = r.dir
	cmd.Stdout = io.MultiWriter(&stdout, outSink)
	cmd.Stderr = io.MultiWriter(&stderr, errSink)

	err := cmd.Run()
	flush()

	res := domain.CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			res.Signal = ws.Signal().String()
			res.ExitCode = 128 + int(ws.Signal())
		}
		return res, nil
	}

	res.ExitCode = -1
	return res, zerr.With(zerr.Wrap(err, "failed to start command"), "command", command)
}

type logWriter struct {
	logger ports.Logger
	level  string
	buf    []byte
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.buf = append(w.buf, p...)

	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}

	return len(p), nil
}

func (w *logWriter) Close() error {
	if len(w.buf) > 0 {
		w.logLine(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *logWriter) logLine(line []byte) {
	msg := strings.TrimSuffix(string(line), "\r")

	if w.level == "info" {
		w.logger.Info(msg)
	} else {
		w.logger.Warn(msg)
	}
}
