package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tensorworks/mljobs/pkg/jobs"
)

type TrainOptions struct {
	*RootOptions
	jobName        string
	namePrefix     string
	applicationDir string
	entryPoint     string
	moduleName     string
	configPath     string
	masterType     string
	region         string
	runtimeVersion string
	jobDir         string
	interpreter    string
	dryRun         bool
}

func (t *TrainOptions) Train(ctx context.Context) error {
	_, err := t.Controller().Submit(ctx, jobs.SubmitOptions{
		JobName:        t.jobName,
		NamePrefix:     t.namePrefix,
		ApplicationDir: t.applicationDir,
		EntryPoint:     t.entryPoint,
		ModuleName:     t.moduleName,
		ConfigPath:     t.configPath,
		MasterType:     t.masterType,
		Region:         t.region,
		RuntimeVersion: t.runtimeVersion,
		JobDir:         t.jobDir,
		Interpreter:    t.interpreter,
		DryRun:         t.dryRun,
	})
	return err
}

func NewTrainCommand(opts *RootOptions) *cobra.Command {
	trainOpts := &TrainOptions{RootOptions: opts}

	trainCmd := &cobra.Command{
		Use:   "train <application-dir>",
		Short: "Submits a training job to the provider.",
		Long: `Stages the trainer application and a generated entrypoint module as a
deployment bundle and submits it as a training job. Prints the job name and
follow-up commands on success.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				trainOpts.applicationDir = args[0]
			}
			return trainOpts.Train(cmd.Context())
		},
	}

	trainCmd.Flags().StringVar(&trainOpts.jobName, "job-name", "", "Explicit job name. Generated as <prefix>_<timestamp> when unset.")
	trainCmd.Flags().StringVar(&trainOpts.namePrefix, "name-prefix", "train", "Prefix used when generating a job name.")
	trainCmd.Flags().StringVarP(&trainOpts.entryPoint, "entrypoint", "e", "", "Trainer script run by the generated entrypoint module.")
	trainCmd.Flags().StringVar(&trainOpts.moduleName, "module-name", "", "Module name submitted to the provider.")
	trainCmd.Flags().StringVarP(&trainOpts.configPath, "job-config", "c", "", "Job configuration document (trainingInput root).")
	trainCmd.Flags().StringVar(&trainOpts.masterType, "master-type", "", "Machine type override. Forces the CUSTOM scale tier.")
	trainCmd.Flags().StringVar(&trainOpts.region, "region", "", "Compute region. Defaults to the configured region.")
	trainCmd.Flags().StringVar(&trainOpts.runtimeVersion, "runtime-version", "", "Provider runtime version.")
	trainCmd.Flags().StringVar(&trainOpts.jobDir, "job-dir", "", "Remote output directory for the job.")
	trainCmd.Flags().StringVar(&trainOpts.interpreter, "interpreter", "", "Pass-through interpreter directive appended after --.")
	trainCmd.Flags().BoolVar(&trainOpts.dryRun, "dry-run", false, "Validate packaging without contacting the provider.")
	return trainCmd
}
