// Package collect downloads remote training artifacts through the storage
// CLI and annotates them with a properties sidecar describing the job.
package collect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flyteorg/flytestdlib/logger"
	"github.com/magiconair/properties"
	"github.com/pkg/errors"

	"github.com/tensorworks/mljobs/pkg/apis/training"
	"github.com/tensorworks/mljobs/pkg/config"
	"github.com/tensorworks/mljobs/pkg/errs"
	"github.com/tensorworks/mljobs/pkg/exec"
	"github.com/tensorworks/mljobs/pkg/trials"
)

// RemoteScheme is the storage URI prefix the storage CLI understands.
const RemoteScheme = "gs://"

// SidecarName is the properties document written alongside downloaded
// artifacts.
const SidecarName = "mljob.properties"

// ViewMode controls post-download visualization.
type ViewMode string

const (
	ViewNone        ViewMode = ""
	ViewInteractive ViewMode = "view"
	// ViewSave writes a static snapshot next to the artifacts instead of
	// opening an interactive viewer.
	ViewSave ViewMode = "save"
)

// ParseViewMode validates the CLI form of a view mode.
func ParseViewMode(s string) (ViewMode, error) {
	switch mode := ViewMode(s); mode {
	case ViewNone, ViewInteractive, ViewSave:
		return mode, nil
	default:
		return ViewNone, fmt.Errorf("unknown view mode [%s]", s)
	}
}

// Viewer renders a downloaded run directory. Visualization itself is an
// external collaborator; both funcs may be nil.
type Viewer struct {
	View func(ctx context.Context, runDir string) error
	Save func(ctx context.Context, runDir string, snapshotPath string) error
}

type Collector struct {
	cfg    *config.Config
	runner exec.Interface
	viewer Viewer
}

func NewCollector(cfg *config.Config, runner exec.Interface, viewer Viewer) *Collector {
	return &Collector{cfg: cfg, runner: runner, viewer: viewer}
}

// Download transfers one resolved pair into its local destination and writes
// the metadata sidecar. The status is returned unchanged for chaining.
func (c *Collector) Download(ctx context.Context, pair trials.PathPair, status *training.JobStatus, view ViewMode) (*training.JobStatus, error) {
	if _, err := ParseViewMode(string(view)); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(pair.Source, RemoteScheme) {
		return nil, errors.Wrapf(errs.ErrInvalidSource, "[%s] is not a %s path", pair.Source, RemoteScheme)
	}

	// Existence probe. A nonzero listing status means the object does not
	// exist; it is not treated as transient, so there is no retry.
	probe, err := c.runner.Run(ctx, c.cfg.StorageBinary, exec.NewBuilder("ls", pair.Source).Args(), exec.Options{})
	if err != nil {
		return nil, err
	}
	if probe.ExitStatus != 0 {
		return nil, errors.Wrapf(errs.ErrNotFound, "remote path [%s] does not exist: %s", pair.Source, strings.TrimSpace(probe.Stderr))
	}

	if err := os.MkdirAll(pair.Destination, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create destination [%s]", pair.Destination)
	}

	cp, err := c.runner.Run(ctx, c.cfg.StorageBinary, exec.NewBuilder("-m", "cp", "-r", pair.Source, pair.Destination).Args(), exec.Options{})
	if err != nil {
		return nil, err
	}
	if cp.ExitStatus != 0 {
		return nil, errors.Wrapf(errs.ErrProviderInvocation, "copying [%s] failed: %s", pair.Source, strings.TrimSpace(cp.Stderr))
	}
	logger.Infof(ctx, "downloaded [%s] into [%s]", pair.Source, pair.Destination)

	if err := c.writeSidecar(pair.Destination, status); err != nil {
		return nil, err
	}

	return status, c.maybeView(ctx, pair, view)
}

func (c *Collector) writeSidecar(dir string, status *training.JobStatus) error {
	p := properties.NewProperties()
	set := func(key, value string) {
		if value == "" {
			return
		}
		// Set only errors on unsupported value types.
		_, _, _ = p.Set(key, value)
	}

	set("job.id", status.JobID)
	set("job.state", status.State)
	set("job.errorMessage", status.ErrorMessage)
	set("job.createTime", epochOf(status.CreateTime))
	set("job.startTime", epochOf(status.StartTime))
	set("job.endTime", epochOf(status.EndTime))
	if status.TrainingOutput != nil && status.TrainingOutput.ConsumedMLUnits > 0 {
		set("job.consumedMLUnits", strconv.FormatFloat(status.TrainingOutput.ConsumedMLUnits, 'f', -1, 64))
	}
	if status.TrainingInput != nil {
		set("job.masterType", status.TrainingInput.MasterType)
	}
	urls := training.ScrapeURLs(status.Stderr)
	set("job.consoleUrl", urls.Console)
	set("job.logsUrl", urls.Logs)

	f, err := os.Create(filepath.Join(dir, SidecarName))
	if err != nil {
		return errors.Wrapf(err, "failed to create sidecar in [%s]", dir)
	}
	defer f.Close()
	if _, err := p.Write(f, properties.UTF8); err != nil {
		return errors.Wrapf(err, "failed to write sidecar in [%s]", dir)
	}
	return nil
}

// epochOf converts a provider timestamp to a unix-epoch string. Parse
// failure omits the field rather than failing the collection.
func epochOf(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := training.ParseTimestamp(ts)
	if err != nil {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func (c *Collector) maybeView(ctx context.Context, pair trials.PathPair, view ViewMode) error {
	switch view {
	case ViewInteractive:
		if pair.AllowView && c.viewer.View != nil {
			return c.viewer.View(ctx, pair.Destination)
		}
	case ViewSave:
		if pair.AllowView && c.viewer.Save != nil {
			return c.viewer.Save(ctx, pair.Destination, filepath.Join(pair.Destination, "view.html"))
		}
	case ViewNone:
	}
	return nil
}
