package audio

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

// Result is what a finished process left behind. A non-zero ExitCode is not
// an error.
type Result struct {
	ExitCode int
	Stderr   string
	Duration time.Duration
}

// CommandRunner runs an external program under a timeout.
type CommandRunner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*Result, error)
}

// ExecRunner is the os/exec implementation of CommandRunner.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after the process is killed.
	WaitDelay time.Duration
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 2 * time.Second}
}

// Run executes name with args. Exceeding timeout kills the process and returns
// a timeout error; failing to start returns an engine error. Error messages
// name the program by its base name only.
func (r *ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.WaitDelay

	base := filepath.Base(name)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		logger.Warn("process failed to start", logger.String("cmd", name), logger.ErrorField(err))
		return nil, processError("start "+base, name, err)
	}

	err := cmd.Wait()
	res := &Result{Stderr: stderr.String(), Duration: time.Since(start)}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			logger.Warn("process timed out",
				logger.String("cmd", name),
				logger.Duration("timeout", timeout))
			return res, &model.Error{
				Kind:    model.KindTimeout,
				Segment: model.NoSegment,
				Message: base + " timed out after " + timeout.String(),
				Err:     ctxErr,
			}
		}
		return res, model.WrapError(model.KindEngine, base+" cancelled", ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, processError("wait "+base, name, err)
	}

	return res, nil
}

// processError reports err as an engine error with the program's directory
// stripped from its text.
func processError(op, name string, err error) *model.Error {
	msg := err.Error()
	if base := filepath.Base(name); base != name {
		msg = strings.ReplaceAll(msg, name, base)
	}
	return &model.Error{Kind: model.KindEngine, Op: op, Segment: model.NoSegment, Message: msg}
}

// Tail returns the last n characters of s.
func Tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

var _ CommandRunner = (*ExecRunner)(nil)
