// Package exectest provides a scriptable exec.Interface for tests.
package exectest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tensorworks/mljobs/pkg/exec"
)

// Response is matched against an invocation by subcommand prefix. An empty
// Match matches anything.
type Response struct {
	Match  string
	Result exec.Result
	Err    error
}

// Runner replays scripted responses instead of starting processes and records
// every invocation it sees along with the options it was run with.
type Runner struct {
	mu        sync.Mutex
	responses []Response
	Calls     [][]string
	Opts      []exec.Options
}

func NewRunner(responses ...Response) *Runner {
	return &Runner{responses: responses}
}

// Enqueue appends further scripted responses.
func (f *Runner) Enqueue(responses ...Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, responses...)
}

func (f *Runner) Run(_ context.Context, binary string, args []string, opts exec.Options) (exec.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	invocation := append([]string{binary}, args...)
	f.Calls = append(f.Calls, invocation)
	f.Opts = append(f.Opts, opts)

	// The first pending response whose Match prefixes the invocation wins,
	// so concurrent callers consume their own scripted responses.
	joined := strings.Join(invocation, " ")
	for i, candidate := range f.responses {
		if candidate.Match != "" && !strings.HasPrefix(joined, candidate.Match) {
			continue
		}
		f.responses = append(f.responses[:i], f.responses[i+1:]...)
		return candidate.Result, candidate.Err
	}
	return exec.Result{}, fmt.Errorf("unexpected invocation %v", invocation)
}
