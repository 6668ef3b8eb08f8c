package jobs

import (
	"context"
	"time"

	"github.com/flyteorg/flytestdlib/logger"
	"github.com/pkg/errors"

	"github.com/tensorworks/mljobs/pkg/apis/training"
	"github.com/tensorworks/mljobs/pkg/collect"
	"github.com/tensorworks/mljobs/pkg/errs"
	"github.com/tensorworks/mljobs/pkg/trials"
)

// StatusEvent is emitted once per non-terminal poll round. Rendering (the
// overwriting console progress line) is the caller's concern.
type StatusEvent struct {
	State       training.State
	LastUpdated time.Time
}

type CollectOptions struct {
	// Trials selects which tuning trials to collect ("best" when empty).
	Trials trials.Selector
	// Destination is the local directory artifacts are downloaded under.
	Destination string
	// Timeout bounds the wall clock spent polling, measured from the first
	// poll. Zero means poll until a terminal state is observed.
	Timeout time.Duration
	View    collect.ViewMode
	// Events receives one StatusEvent per non-terminal poll. May be nil.
	Events func(StatusEvent)
}

// Collect polls the job until it reaches SUCCEEDED or FAILED, then resolves
// the trial set and downloads its artifacts. Status-fetch failures abort the
// loop immediately; a not-yet-terminal state is the loop's normal
// continuation, not an error. Note that CANCELLED does not stop the loop;
// collecting a cancelled job runs until the timeout.
func (c *Controller) Collect(ctx context.Context, ref JobRef, opts CollectOptions) (*training.JobStatus, error) {
	job, err := ref.Resolve(c.registry)
	if err != nil {
		return nil, err
	}
	resolved := FromJob(job)

	interval := c.cfg.PollInterval.Duration
	start := time.Now()

	var status *training.JobStatus
	for {
		timer := c.metrics.PollRound.Start()
		status, err = c.Status(ctx, resolved)
		timer.Stop()
		c.metrics.PollsTotal.Inc()
		if err != nil {
			return nil, err
		}
		if training.IsTerminal(status.State) {
			break
		}

		if opts.Timeout > 0 && time.Since(start) >= opts.Timeout {
			return nil, errors.Wrapf(errs.ErrTimeoutExceeded,
				"job [%s] still %s after %s", job.Name, status.State, opts.Timeout)
		}
		if opts.Events != nil {
			opts.Events(StatusEvent{State: status.State, LastUpdated: time.Now()})
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	logger.Infof(ctx, "job [%s] reached terminal state %s, collecting into [%s]",
		job.Name, status.State, opts.Destination)

	pairs, err := trials.Resolve(status, opts.Destination, opts.Trials)
	if err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		if _, err := c.collector.Download(ctx, pair, status, opts.View); err != nil {
			return nil, err
		}
	}
	c.metrics.JobsCollected.Inc()
	return status, nil
}
