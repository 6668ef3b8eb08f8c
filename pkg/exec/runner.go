package exec

import (
	"bytes"
	"context"
	"io"
	"os"
	osexec "os/exec"
	"sync"

	"github.com/flyteorg/flytestdlib/logger"
	"github.com/pkg/errors"
)

// Result captures one finished (or synthesized) invocation.
type Result struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

type Options struct {
	// Echo forwards both streams to Stdout/Stderr as they arrive, in
	// addition to capturing them in the Result. Required for long-running
	// log-tailing invocations.
	Echo bool
	// DryRun records the invocation without starting a process and returns
	// a synthetic zero-status empty Result.
	DryRun bool
	// Echo destinations. Defaults to os.Stdout / os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// Interface runs an external binary. Implementations never retry and never
// interpret the exit status; callers decide whether nonzero is fatal.
type Interface interface {
	Run(ctx context.Context, binary string, args []string, opts Options) (Result, error)
}

// CommandRunner is the os/exec backed Interface. Dry-run invocations are
// recorded on the runner so packaging can be validated without cloud side
// effects.
type CommandRunner struct {
	mu       sync.Mutex
	recorded [][]string
}

func NewCommandRunner() *CommandRunner {
	return &CommandRunner{}
}

func (r *CommandRunner) Run(ctx context.Context, binary string, args []string, opts Options) (Result, error) {
	if opts.DryRun {
		r.mu.Lock()
		r.recorded = append(r.recorded, append([]string{binary}, args...))
		r.mu.Unlock()
		logger.Infof(ctx, "dry-run: %s %v", binary, args)
		return Result{}, nil
	}

	logger.Debugf(ctx, "exec: %s %v", binary, args)

	var stdout, stderr bytes.Buffer
	cmd := osexec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if opts.Echo {
		echoOut, echoErr := opts.Stdout, opts.Stderr
		if echoOut == nil {
			echoOut = os.Stdout
		}
		if echoErr == nil {
			echoErr = os.Stderr
		}
		cmd.Stdout = io.MultiWriter(&stdout, echoOut)
		cmd.Stderr = io.MultiWriter(&stderr, echoErr)
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitStatus = exitErr.ExitCode()
			return res, nil
		}
		return res, errors.Wrapf(err, "failed to start [%s]", binary)
	}
	return res, nil
}

// DryRunInvocations returns every invocation recorded in dry-run mode, in
// order.
func (r *CommandRunner) DryRunInvocations() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.recorded))
	copy(out, r.recorded)
	return out
}
