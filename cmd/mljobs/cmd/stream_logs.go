package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tensorworks/mljobs/pkg/jobs"
)

type StreamLogsOptions struct {
	*RootOptions
	pollingInterval time.Duration
	taskName        string
	allowMultiline  bool
}

func NewStreamLogsCommand(opts *RootOptions) *cobra.Command {
	logsOpts := &StreamLogsOptions{RootOptions: opts}

	logsCmd := &cobra.Command{
		Use:   "stream-logs [job]",
		Short: "Tails the logs of a job until it ends.",
		Long:  `Blocks for the duration of the remote job, forwarding its log output as it arrives. Interrupt to stop following.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return logsOpts.Controller().StreamLogs(cmd.Context(), jobRefFromArgs(args), jobs.StreamLogsOptions{
				PollingInterval: logsOpts.pollingInterval,
				TaskName:        logsOpts.taskName,
				AllowMultiline:  logsOpts.allowMultiline,
			})
		},
	}

	logsCmd.Flags().DurationVar(&logsOpts.pollingInterval, "polling-interval", 0, "Interval between log fetches.")
	logsCmd.Flags().StringVar(&logsOpts.taskName, "task-name", "", "Only show logs for this task.")
	logsCmd.Flags().BoolVar(&logsOpts.allowMultiline, "allow-multiline-logs", false, "Keep multiline log entries intact.")
	return logsCmd
}
