package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"transmute/failures"
	"transmute/logger"
)

// Runner executes an external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with exec.CommandContext.
type ExecRunner struct{}

const stderrTail = 2048

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	logger.Debugf("exec: %s %s", name, strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	return classifyExecError(ctx, name, err, stderr.Bytes())
}

func classifyExecError(ctx context.Context, name string, err error, stderr []byte) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failures.New(failures.KindToolTimeout, name, ctx.Err())
	}
	if errors.Is(err, exec.ErrNotFound) {
		return failures.New(failures.KindToolNotFound, name, err)
	}
	msg := strings.TrimSpace(string(stderr))
	if len(msg) > stderrTail {
		msg = msg[len(msg)-stderrTail:]
	}
	if msg == "" {
		return failures.New(failures.KindToolFailed, name, err)
	}
	return failures.New(failures.KindToolFailed, name, fmt.Errorf("%w: %s", err, msg))
}
