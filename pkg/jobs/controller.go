// Package jobs implements the job lifecycle controller: submit, describe,
// cancel, list, log streaming, and the collect poll loop. All provider
// interaction happens through the provider CLI subprocess; the controller
// holds no state beyond the last fetched status and the session registry.
package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/flyteorg/flytestdlib/logger"
	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/ghodss/yaml"
	"github.com/google/uuid"
	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tensorworks/mljobs/pkg/apis/training"
	"github.com/tensorworks/mljobs/pkg/collect"
	"github.com/tensorworks/mljobs/pkg/config"
	"github.com/tensorworks/mljobs/pkg/errs"
	"github.com/tensorworks/mljobs/pkg/exec"
)

type metrics struct {
	Scope         promutils.Scope
	PollRound     promutils.StopWatch
	JobsSubmitted prometheus.Counter
	JobsCollected prometheus.Counter
	PollsTotal    prometheus.Counter
}

func newMetrics(scope promutils.Scope) *metrics {
	return &metrics{
		Scope:         scope,
		PollRound:     scope.MustNewStopWatch("poll_round_time", "Time to perform one status poll round", time.Millisecond),
		JobsSubmitted: scope.MustNewCounter("jobs_submitted_count", "Total number of jobs submitted"),
		JobsCollected: scope.MustNewCounter("jobs_collected_count", "Total number of jobs collected"),
		PollsTotal:    scope.MustNewCounter("polls_count", "Total number of status polls issued"),
	}
}

// Controller drives the job lifecycle against the provider CLI.
type Controller struct {
	cfg       *config.Config
	runner    exec.Interface
	registry  *Registry
	collector *collect.Collector
	metrics   *metrics

	// Out receives human-readable summaries. Defaults to os.Stdout.
	Out io.Writer
}

func NewController(cfg *config.Config, runner exec.Interface, registry *Registry, collector *collect.Collector, scope promutils.Scope) *Controller {
	return &Controller{
		cfg:       cfg,
		runner:    runner,
		registry:  registry,
		collector: collector,
		metrics:   newMetrics(scope),
		Out:       os.Stdout,
	}
}

func (c *Controller) Registry() *Registry {
	return c.registry
}

type SubmitOptions struct {
	// JobName overrides the generated <prefix>_<timestamp> name.
	JobName    string
	NamePrefix string
	// ApplicationDir is the trainer application packaged for upload.
	ApplicationDir string
	// EntryPoint is the script the generated entrypoint module runs.
	EntryPoint string
	ModuleName string
	// ConfigPath is the job configuration document (trainingInput root).
	ConfigPath string
	// MasterType, when set, is merged over the configured machine type and
	// forces the CUSTOM scale tier.
	MasterType     string
	Region         string
	RuntimeVersion string
	JobDir         string
	// Interpreter is passed through to the trainer after the `--` directive.
	Interpreter string
	DryRun      bool
}

type jobConfigDoc struct {
	TrainingInput training.TrainingInput `json:"trainingInput"`
}

// Submit stages the deployment bundle, submits the training job, fetches its
// initial status, and registers it as the session's latest job. In dry-run
// mode no subprocess is started but a Job is still produced and registered.
func (c *Controller) Submit(ctx context.Context, opts SubmitOptions) (*training.Job, error) {
	doc, err := c.loadJobConfig(opts)
	if err != nil {
		return nil, err
	}

	version := opts.RuntimeVersion
	if version == "" {
		version = doc.TrainingInput.RuntimeVersion
	}
	if err := checkRuntimeVersion(version, c.cfg.RuntimeVersionFloor); err != nil {
		return nil, err
	}

	jobName := opts.JobName
	if jobName == "" {
		prefix := opts.NamePrefix
		if prefix == "" {
			prefix = "train"
		}
		jobName = training.GenerateName(prefix, time.Now())
	}

	region := opts.Region
	if region == "" {
		region = c.cfg.Region
	}
	moduleName := opts.ModuleName
	if moduleName == "" {
		moduleName = c.cfg.DefaultModuleName
	}

	bundleConfig, err := stageBundle(doc, opts.EntryPoint)
	if err != nil {
		return nil, err
	}

	b := exec.NewBuilder("jobs", "submit", "training", jobName).
		Appendf("--job-dir=%s", opts.JobDir).
		Appendf("--staging-bucket=%s", c.cfg.StagingBucket).
		Appendf("--package-path=%s", opts.ApplicationDir).
		Appendf("--module-name=%s", moduleName).
		Appendf("--runtime-version=%s", version).
		Appendf("--region=%s", region).
		Appendf("--config=%s", bundleConfig)
	if opts.Interpreter != "" {
		b.Append("--", opts.Interpreter)
	}

	res, err := c.runner.Run(ctx, c.cfg.ProviderBinary, b.Args(), exec.Options{DryRun: opts.DryRun})
	if err != nil {
		return nil, err
	}
	if res.ExitStatus != 0 {
		return nil, errors.Wrapf(errs.ErrProviderInvocation, "submission failed: %s", strings.TrimSpace(res.Stderr))
	}

	job := &training.Job{Name: jobName, Kind: "train"}

	// The job exists remotely once submission returns zero, so it must be
	// reachable as "latest" even if the follow-up describe fails.
	c.registry.Register(job)
	c.metrics.JobsSubmitted.Inc()

	if !opts.DryRun {
		status, err := c.Status(ctx, FromJob(job))
		if err != nil {
			return nil, err
		}
		job.Description = status.Raw
		c.printSubmitSummary(job, res.Stderr)
	}

	logger.Infof(ctx, "submitted job [%s]", jobName)
	return job, nil
}

func (c *Controller) loadJobConfig(opts SubmitOptions) (*jobConfigDoc, error) {
	doc := &jobConfigDoc{}
	if opts.ConfigPath != "" {
		raw, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read job config [%s]", opts.ConfigPath)
		}
		if err := yaml.Unmarshal(raw, doc); err != nil {
			return nil, errors.Wrapf(errs.ErrParse, "job config [%s] is not valid YAML: %v", opts.ConfigPath, err)
		}
	}

	if opts.MasterType != "" {
		override := training.TrainingInput{MasterType: opts.MasterType}
		if err := mergo.Merge(&doc.TrainingInput, override, mergo.WithOverride); err != nil {
			return nil, errors.Wrapf(err, "failed to merge machine type override")
		}
	}
	// A custom machine type cannot coexist with a preset scale tier.
	if doc.TrainingInput.MasterType != "" {
		doc.TrainingInput.ScaleTier = "CUSTOM"
	}
	return doc, nil
}

// stageBundle writes the deployment bundle: the merged job configuration and
// the generated entrypoint module. The directory is left on disk after
// submission; the provider CLI uploads from it.
func stageBundle(doc *jobConfigDoc, entryPoint string) (configPath string, err error) {
	dir := filepath.Join(os.TempDir(), "mljobs-bundle-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to stage deployment bundle")
	}

	if entryPoint != "" {
		module := fmt.Sprintf("import runpy\nrunpy.run_path(%q, run_name=\"__main__\")\n", entryPoint)
		if err := os.WriteFile(filepath.Join(dir, "__main__.py"), []byte(module), 0o644); err != nil {
			return "", errors.Wrapf(err, "failed to write entrypoint module")
		}
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return "", errors.Wrapf(err, "failed to serialize job config")
	}
	configPath = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, raw, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write job config")
	}
	return configPath, nil
}

// checkRuntimeVersion rejects versions below the configured floor. An empty
// version defers to the provider default and is not checked.
func checkRuntimeVersion(version, floor string) error {
	if version == "" || floor == "" {
		return nil
	}
	v, err := versionParts(version)
	if err != nil {
		return errors.Wrapf(errs.ErrUnsupportedVersion, "unparseable runtime version [%s]", version)
	}
	f, err := versionParts(floor)
	if err != nil {
		return errors.Wrapf(err, "unparseable runtime version floor [%s]", floor)
	}
	for i := 0; i < len(v) || i < len(f); i++ {
		vi, fi := 0, 0
		if i < len(v) {
			vi = v[i]
		}
		if i < len(f) {
			fi = f[i]
		}
		if vi > fi {
			return nil
		}
		if vi < fi {
			return errors.Wrapf(errs.ErrUnsupportedVersion,
				"runtime version [%s] is below the minimum supported [%s]", version, floor)
		}
	}
	return nil
}

func versionParts(s string) ([]int, error) {
	parts := strings.Split(s, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (c *Controller) printSubmitSummary(job *training.Job, stderr string) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(c.Out, "Job %q submitted.\n", job.Name)

	urls := training.ScrapeURLs(stderr)
	if urls.Console != "" {
		fmt.Fprintf(c.Out, "Console: %s\n", urls.Console)
	}
	if urls.Logs != "" {
		fmt.Fprintf(c.Out, "Logs:    %s\n", urls.Logs)
	}
	fmt.Fprintf(c.Out, "\nCheck status with:  mljobs status %s\n", job.Name)
	fmt.Fprintf(c.Out, "Stream logs with:   mljobs stream-logs %s\n", job.Name)
	fmt.Fprintf(c.Out, "Collect output with: mljobs collect %s\n", job.Name)
}

// Status resolves ref and fetches the current provider snapshot.
func (c *Controller) Status(ctx context.Context, ref JobRef) (*training.JobStatus, error) {
	job, err := ref.Resolve(c.registry)
	if err != nil {
		return nil, err
	}

	res, err := c.runner.Run(ctx, c.cfg.ProviderBinary, exec.NewBuilder("jobs", "describe", job.Name).Args(), exec.Options{})
	if err != nil {
		return nil, err
	}
	if res.ExitStatus != 0 {
		return nil, errors.Wrapf(errs.ErrProviderInvocation, "describe [%s] failed: %s", job.Name, strings.TrimSpace(res.Stderr))
	}

	status, err := training.ParseDescribe(res.Stdout)
	if err != nil {
		return nil, err
	}
	status.Stderr = res.Stderr
	if status.JobID == "" {
		status.JobID = job.Name
	}
	return status, nil
}

// Cancel requests cancellation; the provider transitions the job through
// CANCELLING to CANCELLED on its own schedule.
func (c *Controller) Cancel(ctx context.Context, ref JobRef) error {
	job, err := ref.Resolve(c.registry)
	if err != nil {
		return err
	}
	res, err := c.runner.Run(ctx, c.cfg.ProviderBinary, exec.NewBuilder("jobs", "cancel", job.Name).Args(), exec.Options{})
	if err != nil {
		return err
	}
	if res.ExitStatus != 0 {
		return errors.Wrapf(errs.ErrProviderInvocation, "cancel [%s] failed: %s", job.Name, strings.TrimSpace(res.Stderr))
	}
	return nil
}

type ListOptions struct {
	Filter   string
	Limit    int
	PageSize int
	SortBy   string
	URIOnly  bool
}

type ListOutput struct {
	Jobs []training.ListedJob
	// URIs is populated instead of Jobs when URIOnly was requested.
	URIs []string
}

func (c *Controller) List(ctx context.Context, opts ListOptions) (*ListOutput, error) {
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = c.cfg.ListPageSize
	}

	b := exec.NewBuilder("jobs", "list").
		Appendf("--filter=%s", opts.Filter).
		Appendf("--limit=%s", positiveInt(opts.Limit)).
		Appendf("--page-size=%s", positiveInt(pageSize)).
		Appendf("--sort-by=%s", opts.SortBy)
	if opts.URIOnly {
		b.Append("--uri")
	}

	res, err := c.runner.Run(ctx, c.cfg.ProviderBinary, b.Args(), exec.Options{})
	if err != nil {
		return nil, err
	}
	if res.ExitStatus != 0 {
		return nil, errors.Wrapf(errs.ErrProviderInvocation, "list failed: %s", strings.TrimSpace(res.Stderr))
	}

	if opts.URIOnly {
		return &ListOutput{URIs: nonEmptyLines(res.Stdout)}, nil
	}
	jobs, err := training.ParseListing(res.Stdout)
	if err != nil {
		return nil, err
	}
	return &ListOutput{Jobs: jobs}, nil
}

func positiveInt(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

type StreamLogsOptions struct {
	PollingInterval time.Duration
	TaskName        string
	AllowMultiline  bool
}

// StreamLogs tails the job's logs to the controller output. It blocks for the
// full duration of the remote invocation.
func (c *Controller) StreamLogs(ctx context.Context, ref JobRef, opts StreamLogsOptions) error {
	job, err := ref.Resolve(c.registry)
	if err != nil {
		return err
	}

	b := exec.NewBuilder("jobs", "stream-logs", job.Name).
		Appendf("--polling-interval=%s", pollingSeconds(opts.PollingInterval)).
		Appendf("--task-name=%s", opts.TaskName)
	if opts.AllowMultiline {
		b.Append("--allow-multiline-logs")
	}

	res, err := c.runner.Run(ctx, c.cfg.ProviderBinary, b.Args(), exec.Options{Echo: true, Stdout: c.Out, Stderr: c.Out})
	if err != nil {
		return err
	}
	if res.ExitStatus != 0 {
		return errors.Wrapf(errs.ErrProviderInvocation, "stream-logs [%s] failed: %s", job.Name, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func pollingSeconds(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return strconv.Itoa(int(d / time.Second))
}
