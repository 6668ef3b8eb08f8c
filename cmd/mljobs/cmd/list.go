package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tensorworks/mljobs/pkg/jobs"
)

type ListOptions struct {
	*RootOptions
	filter   string
	limit    int
	pageSize int
	sortBy   string
	uriOnly  bool
}

func (l *ListOptions) List(ctx context.Context) error {
	out, err := l.Controller().List(ctx, jobs.ListOptions{
		Filter:   l.filter,
		Limit:    l.limit,
		PageSize: l.pageSize,
		SortBy:   l.sortBy,
		URIOnly:  l.uriOnly,
	})
	if err != nil {
		return err
	}

	if l.uriOnly {
		for _, uri := range out.URIs {
			fmt.Println(uri)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB_ID\tSTATUS\tCREATED")
	for _, job := range out.Jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", job.JobID, job.State, job.Created.Format("2006-01-02 15:04:05 MST"))
	}
	return w.Flush()
}

func NewListCommand(opts *RootOptions) *cobra.Command {
	listOpts := &ListOptions{RootOptions: opts}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists jobs known to the provider.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listOpts.List(cmd.Context())
		},
	}

	listCmd.Flags().StringVar(&listOpts.filter, "filter", "", "Provider-side filter expression.")
	listCmd.Flags().IntVar(&listOpts.limit, "limit", 0, "Maximum number of jobs to list.")
	listCmd.Flags().IntVar(&listOpts.pageSize, "page-size", 0, "Jobs requested per provider page.")
	listCmd.Flags().StringVar(&listOpts.sortBy, "sort-by", "", "Provider-side sort key.")
	listCmd.Flags().BoolVar(&listOpts.uriOnly, "uri", false, "Print job URIs instead of the parsed table.")
	return listCmd
}
