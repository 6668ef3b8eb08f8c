package cmd

import (
	"context"
	"fmt"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"

	"github.com/tensorworks/mljobs/pkg/jobs"
)

type StatusOptions struct {
	*RootOptions
	ref jobs.JobRef
}

func (s *StatusOptions) Status(ctx context.Context) error {
	status, err := s.Controller().Status(ctx, s.ref)
	if err != nil {
		return err
	}
	raw, err := yaml.Marshal(status)
	if err != nil {
		return err
	}
	fmt.Print(string(raw))
	return nil
}

func NewStatusCommand(opts *RootOptions) *cobra.Command {
	statusOpts := &StatusOptions{RootOptions: opts}

	return &cobra.Command{
		Use:   "status [job]",
		Short: "Shows the provider-reported status of a job.",
		Long:  `Describes the job and prints its status document. With no argument, the most recently submitted job of this session is described.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statusOpts.ref = jobRefFromArgs(args)
			return statusOpts.Status(cmd.Context())
		},
	}
}
