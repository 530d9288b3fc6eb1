// Package config provides the configuration structure for the voice clone worker.
package config

import (
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults for settings the service file may omit.
const (
	DefaultNATSURL         = "nats://127.0.0.1:4222"
	DefaultJobSubject      = "voice.clone.jobs"
	DefaultQueueGroup      = "voice-clone-workers"
	DefaultModelServiceURL = "http://127.0.0.1:8000"
	DefaultArchiveURL      = "https://myshell-public-repo-host.s3.amazonaws.com/openvoice/checkpoints_v2_0417.zip"
	DefaultVolumeSubdir    = "OpenVoice"
	DefaultWorkDir         = "/app"
	DefaultLogsDir         = "logs"
	DefaultModelTimeout    = 600

	DefaultRetentionMaxAgeMinutes   = 1440
	DefaultRetentionIntervalMinutes = 10
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL             string `toml:"url"`
	JobSubject      string `toml:"job_subject"`
	QueueGroup      string `toml:"queue_group"`
	ReferenceBucket string `toml:"reference_bucket"`
}

// ModelConfig locates the voice model inference sidecar.
type ModelConfig struct {
	ServiceURL     string `toml:"service_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// CheckpointsConfig controls checkpoint provisioning and the shared volume link.
type CheckpointsConfig struct {
	ArchiveURL       string   `toml:"archive_url"`
	LinkPath         string   `toml:"link_path"`
	VolumeCandidates []string `toml:"volume_candidates"`
	VolumeSubdir     string   `toml:"volume_subdir"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	WorkDir     string `toml:"work_dir"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// RetentionConfig controls the scratch and output sweeper. An unset max age takes
// DefaultRetentionMaxAgeMinutes; a negative one disables the sweeper.
type RetentionConfig struct {
	MaxAgeMinutes   int `toml:"max_age_minutes"`
	IntervalMinutes int `toml:"interval_minutes"`
}

// WorkerConfig holds per-job and serving settings.
type WorkerConfig struct {
	JobTimeoutSeconds int    `toml:"job_timeout_seconds"`
	MetricsAddr       string `toml:"metrics_addr"`
}

// Config is the root configuration structure.
type Config struct {
	NATS        NATSConfig        `toml:"nats"`
	Model       ModelConfig       `toml:"model"`
	Checkpoints CheckpointsConfig `toml:"checkpoints"`
	Paths       PathsConfig       `toml:"paths"`
	Retention   RetentionConfig   `toml:"retention"`
	Worker      WorkerConfig      `toml:"worker"`
}

// Load loads the configuration for the voice clone worker and fills unset fields with
// their defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func (c *Config) ApplyDefaults() {
	setDefault(&c.NATS.URL, DefaultNATSURL)
	setDefault(&c.NATS.JobSubject, DefaultJobSubject)
	setDefault(&c.NATS.QueueGroup, DefaultQueueGroup)
	setDefault(&c.Model.ServiceURL, DefaultModelServiceURL)
	setDefault(&c.Checkpoints.ArchiveURL, DefaultArchiveURL)
	setDefault(&c.Checkpoints.VolumeSubdir, DefaultVolumeSubdir)
	setDefault(&c.Paths.WorkDir, DefaultWorkDir)
	setDefault(&c.Paths.BaseLogsDir, DefaultLogsDir)

	if c.Model.TimeoutSeconds <= 0 {
		c.Model.TimeoutSeconds = DefaultModelTimeout
	}

	if c.Checkpoints.VolumeCandidates == nil {
		c.Checkpoints.VolumeCandidates = []string{"/runpod-volume", "/workspace"}
	}

	if c.Retention.MaxAgeMinutes == 0 {
		c.Retention.MaxAgeMinutes = DefaultRetentionMaxAgeMinutes
	}

	if c.Retention.IntervalMinutes <= 0 {
		c.Retention.IntervalMinutes = DefaultRetentionIntervalMinutes
	}
}

// ModelTimeout is the per-request timeout for the inference sidecar.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSeconds) * time.Second
}

// JobTimeout bounds a single job; zero means no bound.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Worker.JobTimeoutSeconds) * time.Second
}

// RetentionMaxAge is how old a scratch or output file must be before it is removed. Zero
// means retention is disabled.
func (c *Config) RetentionMaxAge() time.Duration {
	if c.Retention.MaxAgeMinutes < 0 {
		return 0
	}

	return time.Duration(c.Retention.MaxAgeMinutes) * time.Minute
}

// RetentionInterval is the time between sweeps.
func (c *Config) RetentionInterval() time.Duration {
	return time.Duration(c.Retention.IntervalMinutes) * time.Minute
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
