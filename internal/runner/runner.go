// Package runner executes external verification tools and captures their
// output. It knows nothing about backends beyond program, arguments, and
// where the transcript goes.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// maxCapturedBytes caps the in-memory transcript; verification tools can
// be extremely chatty on large state spaces.
const maxCapturedBytes = 8 << 20

// Invocation describes one external tool run.
type Invocation struct {
	// Program is the binary to run, resolved through PATH.
	Program string
	Args    []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// OutputPath, when set, receives the combined transcript.
	OutputPath string
	// Env entries are appended to the inherited environment.
	Env []string
	// Stdin, when set, is fed to the process.
	Stdin []byte
}

// Outcome is what happened to one invocation.
type Outcome struct {
	ExitCode int
	// TimedOut is set when the deadline killed the process, regardless of
	// any partial output it produced.
	TimedOut bool
	// Output is the combined stdout+stderr transcript, possibly truncated.
	Output string
	// Truncated is set when the transcript exceeded the capture cap.
	Truncated bool
	Duration  time.Duration
}

// Runner executes invocations. Stream mirrors tool stderr through the
// logger as it arrives, for verbose runs.
type Runner struct {
	log    *zap.Logger
	stream bool
}

func New(log *zap.Logger, stream bool) *Runner {
	return &Runner{log: log, stream: stream}
}

// Run executes one invocation under a deadline. A non-zero exit is not an
// error: callers classify transcripts, so the Outcome always carries
// whatever the tool produced. Errors mean the process could not be run or
// its transcript could not be persisted.
func (r *Runner) Run(ctx context.Context, inv Invocation, timeout time.Duration) (*Outcome, error) {
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, inv.Program, inv.Args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	if len(inv.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(inv.Stdin)
	}

	var buf bytes.Buffer
	capture := &limitedWriter{w: &buf, max: maxCapturedBytes}
	cmd.Stdout = capture
	var stderr io.Writer = capture
	if r.stream {
		stderr = io.MultiWriter(capture, &logWriter{log: r.log, program: inv.Program})
	}
	cmd.Stderr = stderr

	r.log.Debug("running tool",
		zap.String("program", inv.Program),
		zap.Strings("args", inv.Args),
		zap.String("dir", inv.Dir),
		zap.Duration("timeout", timeout))

	started := time.Now()
	runErr := cmd.Run()
	out := &Outcome{
		Output:    buf.String(),
		Truncated: capture.truncated,
		Duration:  time.Since(started),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		out.TimedOut = true
		out.ExitCode = -1
		r.log.Warn("tool killed on timeout",
			zap.String("program", inv.Program),
			zap.Duration("timeout", timeout))
	} else if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("failed to run %s: %w", inv.Program, runErr)
		}
		out.ExitCode = exitErr.ExitCode()
	}

	if inv.OutputPath != "" {
		if err := os.WriteFile(inv.OutputPath, buf.Bytes(), 0o644); err != nil {
			return nil, fmt.Errorf("failed to persist tool output to %s: %w", inv.OutputPath, err)
		}
	}
	r.log.Debug("tool finished",
		zap.String("program", inv.Program),
		zap.Int("exit", out.ExitCode),
		zap.Bool("timed_out", out.TimedOut),
		zap.Duration("took", out.Duration))
	return out, nil
}

// limitedWriter caps captured output, counting what it discards.
type limitedWriter struct {
	w         io.Writer
	max       int
	written   int
	truncated bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.written >= l.max {
		l.truncated = true
		return len(p), nil
	}
	room := l.max - l.written
	keep := p
	if len(keep) > room {
		keep = keep[:room]
		l.truncated = true
	}
	n, err := l.w.Write(keep)
	l.written += n
	if err != nil {
		return n, err
	}
	return len(p), nil
}

// logWriter forwards tool stderr lines through the logger.
type logWriter struct {
	log     *zap.Logger
	program string
	pending []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	for {
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			break
		}
		line := string(w.pending[:idx])
		w.pending = w.pending[idx+1:]
		if line != "" {
			w.log.Info("tool output", zap.String("program", w.program), zap.String("line", line))
		}
	}
	return len(p), nil
}
