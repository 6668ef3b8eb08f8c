package jobs

import (
	"github.com/tensorworks/mljobs/pkg/apis/training"
)

// LatestSentinel is the reserved reference meaning "the most recently
// submitted or observed job in this session".
const LatestSentinel = "latest"

type refKind int

const (
	refLatest refKind = iota
	refName
	refJob
)

// JobRef is a reference to a job: the "latest" sentinel, a plain job name, or
// an already-resolved Job. It is resolved exactly once at the entry of each
// controller operation.
type JobRef struct {
	kind refKind
	name string
	job  *training.Job
}

func LatestJob() JobRef {
	return JobRef{kind: refLatest}
}

// ByName references a job by its provider name. "latest" is recognized as the
// sentinel.
func ByName(name string) JobRef {
	if name == "" || name == LatestSentinel {
		return LatestJob()
	}
	return JobRef{kind: refName, name: name}
}

func FromJob(job *training.Job) JobRef {
	return JobRef{kind: refJob, job: job}
}

// Resolve produces a Job without contacting the provider. A plain name
// synthesizes a minimal Job; the sentinel consults the registry.
func (r JobRef) Resolve(reg *Registry) (*training.Job, error) {
	switch r.kind {
	case refJob:
		return r.job, nil
	case refName:
		return &training.Job{Name: r.name, Kind: "train"}, nil
	default:
		return reg.Latest()
	}
}
