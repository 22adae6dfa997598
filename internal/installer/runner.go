package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// RunOutput captures one child-process invocation. ExitCode is meaningful
// only when Err is nil.
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a child process and waits for it. A nonzero exit is
// reported through ExitCode, not an error; errors mean the process could not
// run to completion (launch failure or context cancellation).
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (RunOutput, error)
}

type execRunner struct {
	maxOutputBytes int
}

// NewExecRunner returns a Runner backed by os/exec with bounded output
// capture.
func NewExecRunner(maxOutputBytes int) Runner {
	if maxOutputBytes < 1 {
		maxOutputBytes = 128 * 1024
	}
	return &execRunner{maxOutputBytes: maxOutputBytes}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (RunOutput, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdout := &limitedBuffer{MaxBytes: r.maxOutputBytes}
	stderr := &limitedBuffer{MaxBytes: r.maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	output := RunOutput{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctx.Err() != nil {
		return output, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		output.ExitCode = exitErr.ExitCode()
		return output, nil
	}
	if err != nil {
		return output, fmt.Errorf("launch %s: %w", name, err)
	}
	return output, nil
}

type limitedBuffer struct {
	MaxBytes  int
	Truncated bool
	buf       bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.MaxBytes < 1 {
		return len(p), nil
	}
	remaining := b.MaxBytes - b.buf.Len()
	if remaining <= 0 {
		b.Truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		_, _ = b.buf.Write(p[:remaining])
		b.Truncated = true
		return len(p), nil
	}
	_, _ = b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	if b.Truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
