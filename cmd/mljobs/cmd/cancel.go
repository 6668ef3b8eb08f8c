package cmd

import (
	"github.com/spf13/cobra"
)

func NewCancelCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [job]",
		Short: "Requests cancellation of a running job.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Controller().Cancel(cmd.Context(), jobRefFromArgs(args))
		},
	}
}
