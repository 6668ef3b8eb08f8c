// Package trials resolves which hyperparameter-tuning trials a collection
// should operate on and computes the remote source / local destination pair
// for each.
package trials

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tensorworks/mljobs/pkg/apis/training"
	"github.com/tensorworks/mljobs/pkg/errs"
)

type selectorKind int

const (
	selectBest selectorKind = iota
	selectAll
	selectExplicit
)

// Selector names the trial set to collect: "best", "all", or an explicit
// comma-separated id set.
type Selector struct {
	kind selectorKind
	ids  []int
}

func Best() Selector { return Selector{kind: selectBest} }
func All() Selector  { return Selector{kind: selectAll} }

func Explicit(ids ...int) Selector {
	return Selector{kind: selectExplicit, ids: ids}
}

// ParseSelector parses the CLI form of a trial selector. Numeric ids are not
// validated against the job; the provider download fails per id if absent.
func ParseSelector(s string) (Selector, error) {
	switch strings.TrimSpace(s) {
	case "", "best":
		return Best(), nil
	case "all":
		return All(), nil
	}
	var ids []int
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Selector{}, errors.Wrapf(err, "invalid trial selector [%s]", s)
		}
		ids = append(ids, id)
	}
	return Explicit(ids...), nil
}

// PathPair is one remote-to-local transfer computed for a trial (or for the
// whole job when it is not a tuning job).
type PathPair struct {
	Source      string
	Destination string
	// AllowView is set only when a single trial was requested; batch
	// downloads suppress the interactive viewer.
	AllowView bool
}

// Resolve computes the transfer pairs for status under the given selector.
// Non-tuning jobs always yield exactly one pair rooted at the job's output
// directory.
func Resolve(status *training.JobStatus, destination string, sel Selector) ([]PathPair, error) {
	jobDir := ""
	if status.TrainingInput != nil {
		jobDir = strings.TrimSuffix(status.TrainingInput.JobDir, "/")
	}

	if !status.IsTuningJob() {
		return []PathPair{{
			Source:      jobDir + "/*",
			Destination: filepath.Join(destination, status.JobID),
			AllowView:   true,
		}}, nil
	}

	var listed []trialRec
	if status.TrainingOutput != nil {
		var err error
		listed, err = numericTrials(status.TrainingOutput.Trials)
		if err != nil {
			return nil, err
		}
	}

	switch sel.kind {
	case selectBest:
		best, err := bestTrial(status, listed)
		if err != nil {
			return nil, err
		}
		return []PathPair{trialPair(status, jobDir, destination, best, padWidth(maxID(listed)), true)}, nil

	case selectAll:
		pairs := make([]PathPair, 0, len(listed))
		width := padWidth(maxID(listed))
		for _, t := range listed {
			pairs = append(pairs, trialPair(status, jobDir, destination, t.id, width, false))
		}
		return pairs, nil

	default:
		width := padWidth(maxID(listed))
		if len(listed) == 0 {
			width = padWidth(maxOf(sel.ids))
		}
		pairs := make([]PathPair, 0, len(sel.ids))
		for _, id := range sel.ids {
			pairs = append(pairs, trialPair(status, jobDir, destination, id, width, len(sel.ids) == 1))
		}
		return pairs, nil
	}
}

type trialRec struct {
	id     int
	metric *training.FinalMetric
}

func numericTrials(in []training.Trial) ([]trialRec, error) {
	out := make([]trialRec, 0, len(in))
	for _, t := range in {
		id, err := t.ID()
		if err != nil {
			return nil, errors.Wrapf(errs.ErrParse, "non-numeric trial id [%s]", t.TrialID)
		}
		out = append(out, trialRec{id: id, metric: t.FinalMetric})
	}
	return out, nil
}

// bestTrial selects the trial with extremal objectiveValue per the job's
// optimization goal. Ties break to the first occurrence in listed order.
func bestTrial(status *training.JobStatus, listed []trialRec) (int, error) {
	if len(listed) == 0 {
		return 0, errors.Wrapf(errs.ErrNoTrials, "job %s", status.JobID)
	}

	goal := ""
	if status.TrainingInput != nil && status.TrainingInput.Hyperparameters != nil {
		goal = status.TrainingInput.Hyperparameters.Goal
	}
	if goal != training.GoalMaximize && goal != training.GoalMinimize {
		return 0, errors.Wrapf(errs.ErrParse, "job %s has no optimization goal", status.JobID)
	}

	best := -1
	var bestValue float64
	for i, t := range listed {
		if t.metric == nil {
			return 0, errors.Wrapf(errs.ErrMissingMetric, "trial %d of job %s", t.id, status.JobID)
		}
		v := t.metric.ObjectiveValue
		if best < 0 ||
			(goal == training.GoalMaximize && v > bestValue) ||
			(goal == training.GoalMinimize && v < bestValue) {
			best = i
			bestValue = v
		}
	}
	return listed[best].id, nil
}

func trialPair(status *training.JobStatus, jobDir, destination string, id, width int, allowView bool) PathPair {
	return PathPair{
		Source:      fmt.Sprintf("%s/%d/*", jobDir, id),
		Destination: filepath.Join(destination, fmt.Sprintf("%s_%0*d", status.JobID, width, id)),
		AllowView:   allowView,
	}
}

// padWidth is the digit count of the maximum trial id, so padded suffixes
// sort lexically in run order.
func padWidth(max int) int {
	if max < 1 {
		return 1
	}
	return len(strconv.Itoa(max))
}

func maxID(listed []trialRec) int {
	max := 0
	for _, t := range listed {
		if t.id > max {
			max = t.id
		}
	}
	return max
}

func maxOf(ids []int) int {
	max := 0
	for _, id := range ids {
		if id > max {
			max = id
		}
	}
	return max
}
