// Commands for the mljobs CLI.
package cmd

import (
	"context"
	"flag"
	"os"

	"github.com/flyteorg/flytestdlib/config"
	"github.com/flyteorg/flytestdlib/config/viper"
	"github.com/flyteorg/flytestdlib/logger"
	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/flyteorg/flytestdlib/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tensorworks/mljobs/pkg/collect"
	mljobsConfig "github.com/tensorworks/mljobs/pkg/config"
	"github.com/tensorworks/mljobs/pkg/errs"
	"github.com/tensorworks/mljobs/pkg/exec"
	"github.com/tensorworks/mljobs/pkg/jobs"
)

const appName = "mljobs"

var (
	cfgFile        string
	configAccessor = viper.NewAccessor(config.Options{StrictMode: true})
)

// RootOptions carries the controller shared by every subcommand. The
// controller is built lazily so configuration is loaded first.
type RootOptions struct {
	controller *jobs.Controller
}

func (r *RootOptions) Controller() *jobs.Controller {
	if r.controller == nil {
		cfg := mljobsConfig.GetConfig()
		runner := exec.NewCommandRunner()
		collector := collect.NewCollector(cfg, runner, collect.Viewer{})
		r.controller = jobs.NewController(cfg, runner, jobs.NewRegistry(), collector, promutils.NewScope(appName))
	}
	return r.controller
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "mljobs submits, monitors and collects cloud ML training jobs",
	Long: `mljobs drives a cloud ML training service through its command-line
tool: submit a training job, watch its status, stream its logs, and collect
its output artifacts (including hyperparameter-tuning trial selection) into a
local directory.`,
	PersistentPreRunE: initConfig,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	version.LogBuildInformation(appName)
	if err := rootCmd.Execute(); err != nil {
		logger.Error(context.TODO(), err)
		os.Exit(errs.ExitCode(err))
	}
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	err := flag.CommandLine.Parse([]string{})
	if err != nil {
		logger.Error(context.TODO(), err)
		os.Exit(-1)
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "",
		"config file (default is $HOME/config.yaml)")

	configAccessor.InitializePflags(rootCmd.PersistentFlags())

	rootOpts := &RootOptions{}
	rootCmd.AddCommand(NewTrainCommand(rootOpts))
	rootCmd.AddCommand(NewStatusCommand(rootOpts))
	rootCmd.AddCommand(NewCancelCommand(rootOpts))
	rootCmd.AddCommand(NewListCommand(rootOpts))
	rootCmd.AddCommand(NewStreamLogsCommand(rootOpts))
	rootCmd.AddCommand(NewCollectCommand(rootOpts))
	rootCmd.AddCommand(viper.GetConfigCommand())
}

func initConfig(cmd *cobra.Command, _ []string) error {
	configAccessor = viper.NewAccessor(config.Options{
		StrictMode:  false,
		SearchPaths: []string{cfgFile},
	})

	configAccessor.InitializePflags(cmd.PersistentFlags())

	return configAccessor.UpdateConfig(context.TODO())
}

// jobRefFromArgs maps the optional positional job argument to a JobRef,
// defaulting to the "latest" sentinel.
func jobRefFromArgs(args []string) jobs.JobRef {
	if len(args) == 0 {
		return jobs.LatestJob()
	}
	return jobs.ByName(args[0])
}
