package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tensorworks/mljobs/pkg/collect"
	"github.com/tensorworks/mljobs/pkg/jobs"
	"github.com/tensorworks/mljobs/pkg/trials"
)

type CollectOptions struct {
	*RootOptions
	trialSelector  string
	destination    string
	timeoutMinutes int
	view           string
	async          bool
}

func (c *CollectOptions) Collect(ctx context.Context, ref jobs.JobRef) error {
	selector, err := trials.ParseSelector(c.trialSelector)
	if err != nil {
		return err
	}
	// reject a mistyped view mode before waiting on the job
	view, err := collect.ParseViewMode(c.view)
	if err != nil {
		return err
	}

	opts := jobs.CollectOptions{
		Trials:      selector,
		Destination: c.destination,
		Timeout:     time.Duration(c.timeoutMinutes) * time.Minute,
		View:        view,
		Events:      renderStatusLine,
	}

	if c.async {
		handle := c.Controller().CollectAsync(ctx, ref, opts, true)
		return handle.Wait()
	}

	status, err := c.Controller().Collect(ctx, ref, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nJob finished with state %s. Artifacts in %s.\n", status.State, c.destination)
	return nil
}

// renderStatusLine overwrites the previous progress line with the current
// state and poll time.
func renderStatusLine(ev jobs.StatusEvent) {
	fmt.Fprintf(os.Stdout, "\rJob %s as of %s...", ev.State, ev.LastUpdated.Format("15:04:05"))
}

func NewCollectCommand(opts *RootOptions) *cobra.Command {
	collectOpts := &CollectOptions{RootOptions: opts}

	collectCmd := &cobra.Command{
		Use:   "collect [job]",
		Short: "Waits for a job to finish and downloads its output artifacts.",
		Long: `Polls the job until it reaches SUCCEEDED or FAILED, then resolves the
requested trial set and downloads the artifacts into the destination
directory, writing a metadata sidecar alongside them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return collectOpts.Collect(cmd.Context(), jobRefFromArgs(args))
		},
	}

	collectCmd.Flags().StringVar(&collectOpts.trialSelector, "trials", "best", "Trials to collect: best, all, or a comma-separated id set.")
	collectCmd.Flags().StringVarP(&collectOpts.destination, "destination", "d", "runs", "Local directory artifacts are downloaded under.")
	collectCmd.Flags().IntVar(&collectOpts.timeoutMinutes, "timeout", 0, "Give up after this many minutes of polling (0 waits forever).")
	collectCmd.Flags().StringVar(&collectOpts.view, "view", "", "View the collected run: 'view' opens it, 'save' writes a static snapshot.")
	collectCmd.Flags().BoolVar(&collectOpts.async, "async", false, "Collect in a detached worker while also streaming logs.")
	return collectCmd
}
