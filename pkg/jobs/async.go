package jobs

import (
	"context"

	"github.com/flyteorg/flytestdlib/logger"
	"golang.org/x/sync/errgroup"

	"github.com/tensorworks/mljobs/pkg/apis/training"
)

// CollectHandle supervises a detached collection worker.
type CollectHandle struct {
	group  *errgroup.Group
	status *training.JobStatus
}

// Wait blocks until the worker finishes and returns its error, if any.
func (h *CollectHandle) Wait() error {
	return h.group.Wait()
}

// Status returns the terminal status observed by the worker. Only valid
// after Wait returns nil.
func (h *CollectHandle) Status() *training.JobStatus {
	return h.status
}

// CollectAsync runs Collect in a detached worker and returns immediately.
// When streamLogs is set the worker also tails the job's logs for the
// duration of the run, so an interactive caller regains their session while
// both long-lived operations proceed.
func (c *Controller) CollectAsync(ctx context.Context, ref JobRef, opts CollectOptions, streamLogs bool) *CollectHandle {
	handle := &CollectHandle{}
	group, gctx := errgroup.WithContext(ctx)
	handle.group = group

	if streamLogs {
		group.Go(func() error {
			// Log streaming ends when the remote job does. A streaming
			// failure must not abort the collection itself, so it is
			// reported through the logger instead of the group.
			if err := c.StreamLogs(gctx, ref, StreamLogsOptions{}); err != nil {
				logger.Warnf(gctx, "log streaming ended with error: %v", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		status, err := c.Collect(gctx, ref, opts)
		if err != nil {
			return err
		}
		handle.status = status
		return nil
	})
	return handle
}
