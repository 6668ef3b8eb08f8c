package config

import (
	"time"

	"github.com/flyteorg/flytestdlib/config"
)

//go:generate pflags Config --default-var=DefaultConfig

var (
	DefaultConfig = &Config{
		ProviderBinary:      "gcloud",
		StorageBinary:       "gsutil",
		Region:              "us-central1",
		RuntimeVersionFloor: "1.4",
		DefaultModuleName:   "trainer.task",
		PollInterval: config.Duration{
			Duration: 30 * time.Second,
		},
		ListPageSize: 50,
	}

	configSection = config.MustRegisterSection("mljobs", DefaultConfig)
)

type Config struct {
	ProviderBinary      string          `json:"provider-binary" pflag:"\"gcloud\",Provider CLI binary used for job operations"`
	StorageBinary       string          `json:"storage-binary" pflag:"\"gsutil\",Storage CLI binary used for artifact transfer"`
	Region              string          `json:"region" pflag:"\"us-central1\",Default compute region for submitted jobs"`
	StagingBucket       string          `json:"staging-bucket" pflag:",Remote bucket used to stage deployment bundles"`
	RuntimeVersionFloor string          `json:"runtime-version-floor" pflag:"\"1.4\",Minimum supported provider runtime version"`
	DefaultModuleName   string          `json:"default-module-name" pflag:"\"trainer.task\",Module name submitted when none is given"`
	PollInterval        config.Duration `json:"poll-interval" pflag:"\"30s\",Interval between status polls while waiting for a job to finish"`
	ListPageSize        int             `json:"list-page-size" pflag:"\"50\",Page size requested from the provider list operation"`
}

func GetConfig() *Config {
	return configSection.GetConfig().(*Config)
}
