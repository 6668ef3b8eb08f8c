// Package training holds the typed view of the provider's training-job
// documents: the submitted configuration under `trainingInput` and the
// describe snapshot including `trainingOutput` trials.
package training

import (
	"fmt"
	"strconv"
	"time"
)

type State = string

const (
	StateQueued     State = "QUEUED"
	StatePreparing  State = "PREPARING"
	StateRunning    State = "RUNNING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
	StateCancelling State = "CANCELLING"
	StateCancelled  State = "CANCELLED"
)

// IsTerminal reports whether no further transition occurs from s. CANCELLED
// is deliberately excluded; the collect poll loop only stops on SUCCEEDED or
// FAILED (see DESIGN.md).
func IsTerminal(s State) bool {
	return s == StateSucceeded || s == StateFailed
}

// Goal values for hyperparameter tuning.
const (
	GoalMaximize = "MAXIMIZE"
	GoalMinimize = "MINIMIZE"
)

// Job identifies one submitted training job. Description is the raw
// describe document as returned by the provider; it is only ever refreshed
// by re-describing, never patched locally.
type Job struct {
	Name        string
	Kind        string
	Description map[string]interface{}
}

// GenerateName builds a job name as <prefix>_<timestamp> for callers that do
// not supply one.
func GenerateName(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s", prefix, now.Format("20060102_150405"))
}

type ParameterSpec struct {
	ParameterName     string    `json:"parameterName"`
	Type              string    `json:"type"`
	MinValue          float64   `json:"minValue,omitempty"`
	MaxValue          float64   `json:"maxValue,omitempty"`
	CategoricalValues []string  `json:"categoricalValues,omitempty"`
	DiscreteValues    []float64 `json:"discreteValues,omitempty"`
	ScaleType         string    `json:"scaleType,omitempty"`
}

type HyperparameterSpec struct {
	Goal                    string          `json:"goal,omitempty"`
	HyperparameterMetricTag string          `json:"hyperparameterMetricTag,omitempty"`
	MaxTrials               int             `json:"maxTrials,omitempty"`
	MaxParallelTrials       int             `json:"maxParallelTrials,omitempty"`
	Params                  []ParameterSpec `json:"params,omitempty"`
}

type TrainingInput struct {
	ScaleTier       string              `json:"scaleTier,omitempty"`
	MasterType      string              `json:"masterType,omitempty"`
	Region          string              `json:"region,omitempty"`
	RuntimeVersion  string              `json:"runtimeVersion,omitempty"`
	JobDir          string              `json:"jobDir,omitempty"`
	PythonModule    string              `json:"pythonModule,omitempty"`
	Hyperparameters *HyperparameterSpec `json:"hyperparameters,omitempty"`
}

type FinalMetric struct {
	ObjectiveValue float64 `json:"objectiveValue"`
	TrainingStep   int64   `json:"trainingStep,omitempty"`
}

// Trial is one hyperparameter configuration evaluated within a tuning job.
// The provider reports trial ids as decimal strings.
type Trial struct {
	TrialID         string            `json:"trialId"`
	Hyperparameters map[string]string `json:"hyperparameters,omitempty"`
	FinalMetric     *FinalMetric      `json:"finalMetric,omitempty"`
}

// ID returns the numeric trial id.
func (t Trial) ID() (int, error) {
	return strconv.Atoi(t.TrialID)
}

type TrainingOutput struct {
	ConsumedMLUnits           float64 `json:"consumedMLUnits,omitempty"`
	CompletedTrialCount       int64   `json:"completedTrialCount,omitempty"`
	Trials                    []Trial `json:"trials,omitempty"`
	IsHyperparameterTuningJob bool    `json:"isHyperparameterTuningJob,omitempty"`
}

// JobStatus is a snapshot of the provider-reported state of one job. It is
// never mutated in place; each poll replaces the previous snapshot.
type JobStatus struct {
	JobID          string          `json:"jobId"`
	State          State           `json:"state"`
	CreateTime     string          `json:"createTime,omitempty"`
	StartTime      string          `json:"startTime,omitempty"`
	EndTime        string          `json:"endTime,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	TrainingInput  *TrainingInput  `json:"trainingInput,omitempty"`
	TrainingOutput *TrainingOutput `json:"trainingOutput,omitempty"`

	// non-serialized fields
	Stderr string                 `json:"-"`
	Raw    map[string]interface{} `json:"-"`
}

// IsTuningJob reports whether the job ran hyperparameter tuning.
func (s *JobStatus) IsTuningJob() bool {
	return s.TrainingOutput != nil && s.TrainingOutput.IsHyperparameterTuningJob
}
