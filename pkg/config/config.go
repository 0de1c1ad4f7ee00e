package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DefaultMetricEndpoint = "https://metric-api.newrelic.com/metric/v1"
	DefaultSecretName     = "New_Relic_License"
	DefaultRegion         = "us-west-2"

	// MinPollInterval rejects unit-less values such as POLL_INTERVAL=5,
	// which parse as nanoseconds.
	MinPollInterval = 100 * time.Millisecond
)

type Config struct {
	NewRelic NewRelicConfig
	Poll     PollConfig
	AWS      AWSConfig
	Stats    StatsConfig
	Archive  ArchiveConfig
	Location *time.Location
	FailFast bool
	DryRun   bool
	Debug    bool
	LogLevel string
}

type AWSConfig struct {
	Region string
}

type NewRelicConfig struct {
	SecretName  string
	Endpoint    string
	HTTPTimeout time.Duration
}

type PollConfig struct {
	Interval time.Duration
	MaxWait  time.Duration
}

// StatsConfig enables run statistics in CloudWatch when Namespace is set.
type StatsConfig struct {
	Namespace string
}

// ArchiveConfig enables result archiving in S3 when Bucket is set.
type ArchiveConfig struct {
	Bucket string
	Prefix string
}

// Load reads the configuration from the environment and an optional .env
// file in the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("AWS_REGION", DefaultRegion)
	v.SetDefault("NEW_RELIC_SECRET_NAME", DefaultSecretName)
	v.SetDefault("NEW_RELIC_METRIC_ENDPOINT", DefaultMetricEndpoint)
	v.SetDefault("HTTP_TIMEOUT", "10s")
	v.SetDefault("POLL_INTERVAL", "5s")
	v.SetDefault("POLL_MAX_WAIT", "10m")
	v.SetDefault("TIMESTAMP_TIMEZONE", "UTC")
	v.SetDefault("FAIL_FAST", false)
	v.SetDefault("DRY_RUN", false)
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CLOUDWATCH_NAMESPACE", "")
	v.SetDefault("RESULT_BUCKET", "")
	v.SetDefault("RESULT_PREFIX", "insights-metrics/")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn().Err(err).Msg("Error reading .env file")
		}
	}

	loc, err := time.LoadLocation(v.GetString("TIMESTAMP_TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("load timestamp timezone: %w", err)
	}

	cfg := &Config{
		NewRelic: NewRelicConfig{
			SecretName:  v.GetString("NEW_RELIC_SECRET_NAME"),
			Endpoint:    v.GetString("NEW_RELIC_METRIC_ENDPOINT"),
			HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),
		},
		Poll: PollConfig{
			Interval: v.GetDuration("POLL_INTERVAL"),
			MaxWait:  v.GetDuration("POLL_MAX_WAIT"),
		},
		AWS: AWSConfig{
			Region: v.GetString("AWS_REGION"),
		},
		Stats: StatsConfig{
			Namespace: strings.TrimSpace(v.GetString("CLOUDWATCH_NAMESPACE")),
		},
		Archive: ArchiveConfig{
			Bucket: strings.TrimSpace(v.GetString("RESULT_BUCKET")),
			Prefix: v.GetString("RESULT_PREFIX"),
		},
		Location: loc,
		FailFast: v.GetBool("FAIL_FAST"),
		DryRun:   v.GetBool("DRY_RUN"),
		Debug:    v.GetBool("DEBUG"),
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.NewRelic.SecretName == "" {
		return errors.New("NEW_RELIC_SECRET_NAME must not be empty")
	}
	if c.NewRelic.Endpoint == "" {
		return errors.New("NEW_RELIC_METRIC_ENDPOINT must not be empty")
	}
	if c.Poll.Interval < MinPollInterval {
		return fmt.Errorf("POLL_INTERVAL must be at least %s (use a unit, e.g. 5s): %s", MinPollInterval, c.Poll.Interval)
	}
	if c.Poll.MaxWait < c.Poll.Interval {
		return fmt.Errorf("POLL_MAX_WAIT (%s) must not be shorter than POLL_INTERVAL (%s)", c.Poll.MaxWait, c.Poll.Interval)
	}
	return nil
}
