package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorworks/mljobs/pkg/apis/training"
	"github.com/tensorworks/mljobs/pkg/collect"
	"github.com/tensorworks/mljobs/pkg/errs"
	"github.com/tensorworks/mljobs/pkg/exec"
	"github.com/tensorworks/mljobs/pkg/exec/exectest"
)

func running() exectest.Response {
	return exectest.Response{
		Match:  "gcloud jobs describe",
		Result: exec.Result{Stdout: describeDoc(training.StateRunning)},
	}
}

func succeeded() exectest.Response {
	return exectest.Response{
		Match:  "gcloud jobs describe",
		Result: exec.Result{Stdout: describeDoc(training.StateSucceeded)},
	}
}

func storageOK() []exectest.Response {
	return []exectest.Response{
		{Match: "gsutil ls"},
		{Match: "gsutil -m cp -r"},
	}
}

func TestCollectPollsUntilTerminal(t *testing.T) {
	runner := exectest.NewRunner(running(), running(), succeeded())
	runner.Enqueue(storageOK()...)
	c := testController(runner)

	var events []StatusEvent
	status, err := c.Collect(context.Background(), ByName("train_1"), CollectOptions{
		Destination: t.TempDir(),
		Events:      func(ev StatusEvent) { events = append(events, ev) },
	})
	require.NoError(t, err)
	assert.Equal(t, training.StateSucceeded, status.State)

	// two non-terminal polls, two sleeps, then collection
	require.Len(t, events, 2)
	assert.Equal(t, training.StateRunning, events[0].State)
	assert.Equal(t, training.StateRunning, events[1].State)
	require.Len(t, runner.Calls, 5)
}

func TestCollectImmediatelyTerminal(t *testing.T) {
	runner := exectest.NewRunner(succeeded())
	runner.Enqueue(storageOK()...)
	c := testController(runner)

	dest := t.TempDir()
	status, err := c.Collect(context.Background(), ByName("train_1"), CollectOptions{Destination: dest})
	require.NoError(t, err)
	assert.Equal(t, training.StateSucceeded, status.State)

	// non-tuning job downloads the canonical output wildcard
	assert.Equal(t, []string{"gsutil", "ls", "gs://bucket/train_1/*"}, runner.Calls[1])
	assert.Equal(t, filepath.Join(dest, "train_1"), runner.Calls[2][5])
}

func TestCollectTimeout(t *testing.T) {
	runner := exectest.NewRunner()
	for i := 0; i < 100; i++ {
		runner.Enqueue(running())
	}
	c := testController(runner)

	_, err := c.Collect(context.Background(), ByName("train_1"), CollectOptions{
		Destination: t.TempDir(),
		Timeout:     5 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errs.IsTimeoutExceeded(err))
	// the last observed state rides along on the error
	assert.Contains(t, err.Error(), training.StateRunning)
}

func TestCollectStatusFailureAborts(t *testing.T) {
	runner := exectest.NewRunner(
		running(),
		exectest.Response{
			Match:  "gcloud jobs describe",
			Result: exec.Result{ExitStatus: 1, Stderr: "UNAVAILABLE"},
		},
	)
	c := testController(runner)

	_, err := c.Collect(context.Background(), ByName("train_1"), CollectOptions{Destination: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errs.IsProviderInvocation(err))
}

func TestCollectCancelledKeepsPolling(t *testing.T) {
	cancelled := exectest.Response{
		Match:  "gcloud jobs describe",
		Result: exec.Result{Stdout: describeDoc(training.StateCancelled)},
	}
	runner := exectest.NewRunner()
	for i := 0; i < 100; i++ {
		runner.Enqueue(cancelled)
	}
	c := testController(runner)

	// CANCELLED is not in the collect loop's terminal set, so the only way
	// out for a cancelled job is the timeout.
	_, err := c.Collect(context.Background(), ByName("train_1"), CollectOptions{
		Destination: t.TempDir(),
		Timeout:     5 * time.Millisecond,
	})
	assert.True(t, errs.IsTimeoutExceeded(err))
}

func TestCollectAsync(t *testing.T) {
	runner := exectest.NewRunner(succeeded())
	runner.Enqueue(storageOK()...)
	c := testController(runner)

	handle := c.CollectAsync(context.Background(), ByName("train_1"), CollectOptions{Destination: t.TempDir()}, false)
	require.NoError(t, handle.Wait())
	require.NotNil(t, handle.Status())
	assert.Equal(t, training.StateSucceeded, handle.Status().State)
}

func TestCollectAsyncStreamingFailureDoesNotAbortCollection(t *testing.T) {
	runner := exectest.NewRunner(exectest.Response{
		Match:  "gcloud jobs stream-logs",
		Result: exec.Result{ExitStatus: 1, Stderr: "UNAVAILABLE"},
	})
	runner.Enqueue(succeeded())
	runner.Enqueue(storageOK()...)
	c := testController(runner)

	dest := t.TempDir()
	handle := c.CollectAsync(context.Background(), ByName("train_1"), CollectOptions{Destination: dest}, true)
	require.NoError(t, handle.Wait())
	require.NotNil(t, handle.Status())
	assert.Equal(t, training.StateSucceeded, handle.Status().State)

	// the artifacts were collected despite the failed log stream
	assert.FileExists(t, filepath.Join(dest, "train_1", collect.SidecarName))
}
