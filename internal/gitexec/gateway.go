package gitexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/blamescope/blamescope/internal/blamerr"
)

// Result holds everything a single git invocation produced. A non-zero
// exit code is data, not an error: callers classify it (missing path at
// a revision vs. not a repository) because the distinction depends on
// what was asked.
type Result struct {
	StdoutLines []string
	StderrLines []string
	ExitCode    int
}

// Runner is the subprocess boundary. Components depend on this
// interface so tests can substitute canned output for real git.
type Runner interface {
	Run(ctx context.Context, args []string, stdin []byte) (Result, error)
}

// Gateway executes git as a subprocess, one process per call, with no
// shared mutable state. Background pre-warm calls go through a rate
// limiter so fire-and-forget warming can't swamp the host with forks.
type Gateway struct {
	binary   string
	repoPath string
	logger   *logrus.Logger
	limiter  *rate.Limiter
}

// Async carries the outcome of a background invocation.
type Async struct {
	Result Result
	Err    error
}

// NewGateway creates a gateway rooted at repoPath. ratePerSec/burst
// bound only the async path; synchronous calls are never throttled.
func NewGateway(binary, repoPath string, ratePerSec float64, burst int, logger *logrus.Logger) *Gateway {
	if binary == "" {
		binary = "git"
	}
	if ratePerSec <= 0 {
		ratePerSec = 4
	}
	if burst <= 0 {
		burst = 2
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Gateway{
		binary:   binary,
		repoPath: repoPath,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// Run executes git synchronously. The returned error is reserved for
// spawn failures (binary missing, context cancelled); a process that
// started and exited non-zero comes back as a Result.
func (g *Gateway) Run(ctx context.Context, args []string, stdin []byte) (Result, error) {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = g.repoPath
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		StdoutLines: splitLines(stdout.String()),
		StderrLines: splitLines(stderr.String()),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			g.logger.WithFields(logrus.Fields{
				"args": strings.Join(args, " "),
				"exit": result.ExitCode,
			}).Debug("git exited non-zero")
			return result, nil
		}
		return result, blamerr.Wrap(err, blamerr.KindToolExecutionFailed,
			fmt.Sprintf("failed to run %s %s", g.binary, strings.Join(args, " ")))
	}

	return result, nil
}

// Go executes git in the background and delivers the outcome on the
// returned channel. The channel is buffered so an abandoned caller
// never blocks the worker; the result is simply dropped when nobody
// reads it.
func (g *Gateway) Go(ctx context.Context, args []string, stdin []byte) <-chan Async {
	ch := make(chan Async, 1)
	go func() {
		if err := g.limiter.Wait(ctx); err != nil {
			ch <- Async{Err: err}
			return
		}
		result, err := g.Run(ctx, args, stdin)
		ch <- Async{Result: result, Err: err}
	}()
	return ch
}

// splitLines splits process output into lines, dropping the trailing
// empty line a final newline produces but preserving interior blanks.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}
