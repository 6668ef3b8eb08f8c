package jobs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	stdconfig "github.com/flyteorg/flytestdlib/config"
	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/ghodss/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorworks/mljobs/pkg/apis/training"
	"github.com/tensorworks/mljobs/pkg/collect"
	"github.com/tensorworks/mljobs/pkg/config"
	"github.com/tensorworks/mljobs/pkg/errs"
	"github.com/tensorworks/mljobs/pkg/exec"
	"github.com/tensorworks/mljobs/pkg/exec/exectest"
)

func testController(runner exec.Interface) *Controller {
	cfg := &config.Config{
		ProviderBinary:      "gcloud",
		StorageBinary:       "gsutil",
		Region:              "us-central1",
		RuntimeVersionFloor: "1.4",
		DefaultModuleName:   "trainer.task",
		PollInterval:        stdconfig.Duration{Duration: time.Millisecond},
		ListPageSize:        50,
	}
	c := NewController(cfg, runner, NewRegistry(), collect.NewCollector(cfg, runner, collect.Viewer{}), promutils.NewTestScope())
	c.Out = io.Discard
	return c
}

func describeDoc(state training.State) string {
	return "jobId: train_1\n" +
		"state: " + state + "\n" +
		"trainingInput:\n" +
		"  jobDir: gs://bucket/train_1\n"
}

func TestCheckRuntimeVersion(t *testing.T) {
	tests := []struct {
		version string
		wantErr bool
	}{
		{"1.3", true},
		{"1.4", false},
		{"1.9", false},
		{"0.12", true},
		{"2.0", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			err := checkRuntimeVersion(tt.version, "1.4")
			if tt.wantErr {
				assert.True(t, errs.IsUnsupportedVersion(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubmitRejectsOldRuntime(t *testing.T) {
	runner := exectest.NewRunner()
	c := testController(runner)

	_, err := c.Submit(context.Background(), SubmitOptions{
		JobName:        "train_1",
		RuntimeVersion: "1.3",
	})
	assert.True(t, errs.IsUnsupportedVersion(err))
	// fails fast, before any provider contact
	assert.Empty(t, runner.Calls)
}

func TestSubmitMergesMachineTypeOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "tuning.yaml")
	doc := "trainingInput:\n" +
		"  scaleTier: STANDARD_1\n" +
		"  runtimeVersion: '1.9'\n" +
		"  hyperparameters:\n" +
		"    goal: MAXIMIZE\n" +
		"    maxTrials: 10\n"
	require.NoError(t, os.WriteFile(configPath, []byte(doc), 0o644))

	runner := exectest.NewRunner(
		exectest.Response{Match: "gcloud jobs submit training train_1"},
		exectest.Response{Match: "gcloud jobs describe train_1", Result: exec.Result{Stdout: describeDoc(training.StateQueued)}},
	)
	c := testController(runner)

	job, err := c.Submit(context.Background(), SubmitOptions{
		JobName:    "train_1",
		ConfigPath: configPath,
		MasterType: "large_model",
	})
	require.NoError(t, err)
	assert.Equal(t, "train_1", job.Name)

	// the submitted config document carries the merged override
	submitted := runner.Calls[0]
	var mergedPath string
	for _, arg := range submitted {
		if strings.HasPrefix(arg, "--config=") {
			mergedPath = strings.TrimPrefix(arg, "--config=")
		}
	}
	require.NotEmpty(t, mergedPath)

	raw, err := os.ReadFile(mergedPath)
	require.NoError(t, err)
	merged := &jobConfigDoc{}
	require.NoError(t, yaml.Unmarshal(raw, merged))
	assert.Equal(t, "large_model", merged.TrainingInput.MasterType)
	// a custom machine type cannot coexist with a preset scale tier
	assert.Equal(t, "CUSTOM", merged.TrainingInput.ScaleTier)
	require.NotNil(t, merged.TrainingInput.Hyperparameters)
	assert.Equal(t, 10, merged.TrainingInput.Hyperparameters.MaxTrials)
}

func TestSubmitDryRun(t *testing.T) {
	runner := exec.NewCommandRunner()
	c := testController(runner)

	job, err := c.Submit(context.Background(), SubmitOptions{
		NamePrefix:     "train",
		RuntimeVersion: "1.9",
		DryRun:         true,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(job.Name, "train_"))

	// the submission was recorded, not executed, and no describe followed
	require.Len(t, runner.DryRunInvocations(), 1)

	latest, err := c.Registry().Latest()
	require.NoError(t, err)
	assert.Same(t, job, latest)
}

func TestSubmitRegistersAndSummarizes(t *testing.T) {
	runner := exectest.NewRunner(
		exectest.Response{
			Match:  "gcloud jobs submit training",
			Result: exec.Result{Stderr: "Job submitted: https://console.cloud.example.com/mlengine/jobs/train_1\n"},
		},
		exectest.Response{Match: "gcloud jobs describe", Result: exec.Result{Stdout: describeDoc(training.StateQueued)}},
	)
	c := testController(runner)
	var out strings.Builder
	c.Out = &out

	job, err := c.Submit(context.Background(), SubmitOptions{JobName: "train_1", RuntimeVersion: "1.9"})
	require.NoError(t, err)
	assert.Contains(t, job.Description, "trainingInput")

	latest, err := c.Registry().Latest()
	require.NoError(t, err)
	assert.Same(t, job, latest)

	summary := out.String()
	assert.Contains(t, summary, "train_1")
	assert.Contains(t, summary, "https://console.cloud.example.com/mlengine/jobs/train_1")
	assert.Contains(t, summary, "mljobs collect train_1")
}

func TestSubmitRegistersDespiteDescribeFailure(t *testing.T) {
	runner := exectest.NewRunner(
		exectest.Response{Match: "gcloud jobs submit training"},
		exectest.Response{
			Match:  "gcloud jobs describe",
			Result: exec.Result{ExitStatus: 1, Stderr: "UNAVAILABLE"},
		},
	)
	c := testController(runner)

	_, err := c.Submit(context.Background(), SubmitOptions{JobName: "train_1", RuntimeVersion: "1.9"})
	require.Error(t, err)

	// the job was created remotely, so "latest" must still reach it
	latest, err := c.Registry().Latest()
	require.NoError(t, err)
	assert.Equal(t, "train_1", latest.Name)
}

func TestSubmitProviderFailure(t *testing.T) {
	runner := exectest.NewRunner(exectest.Response{
		Match:  "gcloud jobs submit training",
		Result: exec.Result{ExitStatus: 1, Stderr: "PERMISSION_DENIED"},
	})
	c := testController(runner)

	_, err := c.Submit(context.Background(), SubmitOptions{JobName: "train_1", RuntimeVersion: "1.9"})
	require.Error(t, err)
	assert.True(t, errs.IsProviderInvocation(err))
	assert.Contains(t, err.Error(), "PERMISSION_DENIED")
}

func TestStatus(t *testing.T) {
	runner := exectest.NewRunner(exectest.Response{
		Match:  "gcloud jobs describe train_1",
		Result: exec.Result{Stdout: describeDoc(training.StateRunning), Stderr: "diagnostics"},
	})
	c := testController(runner)

	status, err := c.Status(context.Background(), ByName("train_1"))
	require.NoError(t, err)
	assert.Equal(t, training.StateRunning, status.State)
	assert.Equal(t, "diagnostics", status.Stderr)
}

func TestStatusParseError(t *testing.T) {
	runner := exectest.NewRunner(exectest.Response{
		Match:  "gcloud jobs describe",
		Result: exec.Result{Stdout: ":\n  - ["},
	})
	c := testController(runner)

	_, err := c.Status(context.Background(), ByName("train_1"))
	assert.True(t, errs.IsParse(err))
}

func TestCancel(t *testing.T) {
	runner := exectest.NewRunner(exectest.Response{Match: "gcloud jobs cancel train_1"})
	c := testController(runner)

	require.NoError(t, c.Cancel(context.Background(), ByName("train_1")))

	runner.Enqueue(exectest.Response{
		Match:  "gcloud jobs cancel train_1",
		Result: exec.Result{ExitStatus: 1, Stderr: "NOT_FOUND"},
	})
	err := c.Cancel(context.Background(), ByName("train_1"))
	assert.True(t, errs.IsProviderInvocation(err))
}

func TestListFlags(t *testing.T) {
	listing := "JOB_ID   STATUS     CREATED\n" +
		"train_1  SUCCEEDED  2018-01-02T15:04:05\n"
	runner := exectest.NewRunner(exectest.Response{
		Match:  "gcloud jobs list",
		Result: exec.Result{Stdout: listing},
	})
	c := testController(runner)

	out, err := c.List(context.Background(), ListOptions{Filter: "state:SUCCEEDED", Limit: 5, SortBy: "createTime"})
	require.NoError(t, err)
	require.Len(t, out.Jobs, 1)
	assert.Equal(t, "train_1", out.Jobs[0].JobID)

	assert.Equal(t, []string{
		"gcloud", "jobs", "list",
		"--filter=state:SUCCEEDED", "--limit=5", "--page-size=50", "--sort-by=createTime",
	}, runner.Calls[0])
}

func TestListURIOnly(t *testing.T) {
	runner := exectest.NewRunner(exectest.Response{
		Match:  "gcloud jobs list",
		Result: exec.Result{Stdout: "projects/p/jobs/train_1\nprojects/p/jobs/train_2\n"},
	})
	c := testController(runner)

	out, err := c.List(context.Background(), ListOptions{URIOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"projects/p/jobs/train_1", "projects/p/jobs/train_2"}, out.URIs)
	assert.Contains(t, runner.Calls[0], "--uri")
}

func TestStreamLogsArgs(t *testing.T) {
	runner := exectest.NewRunner(exectest.Response{Match: "gcloud jobs stream-logs train_1"})
	c := testController(runner)

	err := c.StreamLogs(context.Background(), ByName("train_1"), StreamLogsOptions{
		PollingInterval: 60 * time.Second,
		TaskName:        "master",
		AllowMultiline:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"gcloud", "jobs", "stream-logs", "train_1",
		"--polling-interval=60", "--task-name=master", "--allow-multiline-logs",
	}, runner.Calls[0])

	// log tailing must stream to the caller's console while being captured
	require.Len(t, runner.Opts, 1)
	assert.True(t, runner.Opts[0].Echo)
	assert.Equal(t, c.Out, runner.Opts[0].Stdout)
	assert.Equal(t, c.Out, runner.Opts[0].Stderr)
}

func TestSubmitDryRunPassesThroughInterface(t *testing.T) {
	runner := exectest.NewRunner(exectest.Response{Match: "gcloud jobs submit training"})
	c := testController(runner)

	_, err := c.Submit(context.Background(), SubmitOptions{JobName: "train_1", RuntimeVersion: "1.9", DryRun: true})
	require.NoError(t, err)
	require.Len(t, runner.Opts, 1)
	assert.True(t, runner.Opts[0].DryRun)
}
