package jobs

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/tensorworks/mljobs/pkg/apis/training"
	"github.com/tensorworks/mljobs/pkg/errs"
)

// Registry tracks the most recently submitted or observed job so callers can
// refer to it as "latest". It is a single slot, last-write-wins, and
// intentionally volatile: "latest" only means anything within one process
// lifetime. Access is serialized for callers that collect concurrently.
type Registry struct {
	mu     sync.Mutex
	latest *training.Job
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register stores job as the most recent one. No history is retained.
func (r *Registry) Register(job *training.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = job
}

// Latest returns the most recently registered job.
func (r *Registry) Latest() (*training.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return nil, errors.Wrapf(errs.ErrNoJobRegistered, "cannot resolve \"latest\"")
	}
	return r.latest, nil
}
