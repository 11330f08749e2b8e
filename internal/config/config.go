package config

import (
	"fmt"
	"os"
	"time"

	"replbatch/internal/band"
	"replbatch/internal/transfer"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Transfer modes.
const (
	ModeCommand = "command"
	ModeS3      = "s3"
)

// Config represents the application configuration.
type Config struct {
	Destination string     `yaml:"destination"`
	Discovery   Discovery  `yaml:"discovery"`
	Transfer    Transfer   `yaml:"transfer"`
	Run         Run        `yaml:"run"`
	Metrics     Metrics    `yaml:"metrics"`
	Bands       []BandSpec `yaml:"bands"`
	LogLevel    string     `yaml:"log_level"`
}

// Discovery selects where the list of objects to replicate comes from:
// a catalog database query, or a delimited file ("-" for stdin).
type Discovery struct {
	DB    string `yaml:"db"`
	Query string `yaml:"query"`
	File  string `yaml:"file"`
}

// Transfer selects and configures the transfer mechanism.
type Transfer struct {
	Mode    string   `yaml:"mode"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Source  S3Config `yaml:"source"`
	Target  S3Config `yaml:"target"`
}

// S3Config represents S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Bucket    string `yaml:"bucket"`
}

// Run represents run-wide scheduling knobs.
type Run struct {
	Deadline   string `yaml:"deadline"`
	Multiplier int    `yaml:"multiplier"`
	MaxThreads int    `yaml:"max_threads"`
	DryRun     bool   `yaml:"dry_run"`
}

// Metrics configures the optional prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// BandSpec overrides one catalog band from the config file.
type BandSpec struct {
	MinBytes       int64 `yaml:"min_bytes"`
	MaxBytes       int64 `yaml:"max_bytes"`
	Threads        int   `yaml:"threads"`
	MaxConcurrency int   `yaml:"max_concurrency"`
	MaxBatchSize   int   `yaml:"max_batch_size"`
}

// Load loads configuration from file and command line flags.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Transfer: Transfer{
			Mode:    ModeCommand,
			Command: "repl",
		},
		Run: Run{
			Multiplier: 1,
			MaxThreads: 16,
		},
		Metrics: Metrics{
			Addr: ":8080",
		},
	}

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("destination") {
		cfg.Destination, _ = flags.GetString("destination")
	}

	if flags.Changed("discovery-db") {
		cfg.Discovery.DB, _ = flags.GetString("discovery-db")
	}
	if flags.Changed("discovery-query") {
		cfg.Discovery.Query, _ = flags.GetString("discovery-query")
	}
	if flags.Changed("discovery-file") {
		cfg.Discovery.File, _ = flags.GetString("discovery-file")
	}

	if flags.Changed("transfer-mode") {
		cfg.Transfer.Mode, _ = flags.GetString("transfer-mode")
	}
	if flags.Changed("transfer-command") {
		cfg.Transfer.Command, _ = flags.GetString("transfer-command")
	}

	if flags.Changed("src-endpoint") {
		cfg.Transfer.Source.Endpoint, _ = flags.GetString("src-endpoint")
	}
	if flags.Changed("src-access-key") {
		cfg.Transfer.Source.AccessKey, _ = flags.GetString("src-access-key")
	}
	if flags.Changed("src-secret-key") {
		cfg.Transfer.Source.SecretKey, _ = flags.GetString("src-secret-key")
	}
	if flags.Changed("src-secure") {
		cfg.Transfer.Source.Secure, _ = flags.GetBool("src-secure")
	}
	if flags.Changed("src-bucket") {
		cfg.Transfer.Source.Bucket, _ = flags.GetString("src-bucket")
	}

	if flags.Changed("dst-endpoint") {
		cfg.Transfer.Target.Endpoint, _ = flags.GetString("dst-endpoint")
	}
	if flags.Changed("dst-access-key") {
		cfg.Transfer.Target.AccessKey, _ = flags.GetString("dst-access-key")
	}
	if flags.Changed("dst-secret-key") {
		cfg.Transfer.Target.SecretKey, _ = flags.GetString("dst-secret-key")
	}
	if flags.Changed("dst-secure") {
		cfg.Transfer.Target.Secure, _ = flags.GetBool("dst-secure")
	}
	if flags.Changed("dst-bucket") {
		cfg.Transfer.Target.Bucket, _ = flags.GetString("dst-bucket")
	}

	if flags.Changed("deadline") {
		cfg.Run.Deadline, _ = flags.GetString("deadline")
	}
	if flags.Changed("multiplier") {
		cfg.Run.Multiplier, _ = flags.GetInt("multiplier")
	}
	if flags.Changed("max-threads") {
		cfg.Run.MaxThreads, _ = flags.GetInt("max-threads")
	}
	if flags.Changed("dry-run") {
		cfg.Run.DryRun, _ = flags.GetBool("dry-run")
	}

	if flags.Changed("metrics") {
		cfg.Metrics.Enabled, _ = flags.GetBool("metrics")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return nil
}

func (c *Config) validate() error {
	if c.Destination == "" {
		return fmt.Errorf("destination is required")
	}

	if c.Discovery.DB == "" && c.Discovery.File == "" {
		return fmt.Errorf("discovery db or file is required")
	}
	if c.Discovery.DB != "" && c.Discovery.File != "" {
		return fmt.Errorf("discovery db and file are mutually exclusive")
	}

	switch c.Transfer.Mode {
	case ModeCommand:
		if c.Transfer.Command == "" {
			return fmt.Errorf("transfer command is required in command mode")
		}
	case ModeS3:
		if c.Transfer.Source.Endpoint == "" || c.Transfer.Target.Endpoint == "" {
			return fmt.Errorf("source and target endpoints are required in s3 mode")
		}
		if c.Transfer.Source.Bucket == "" {
			return fmt.Errorf("source bucket is required in s3 mode")
		}
	default:
		return fmt.Errorf("unknown transfer mode %q", c.Transfer.Mode)
	}

	if c.Run.Deadline != "" {
		if _, err := time.ParseDuration(c.Run.Deadline); err != nil {
			return fmt.Errorf("invalid deadline %q: %w", c.Run.Deadline, err)
		}
	}
	if c.Run.Multiplier < 1 {
		return fmt.Errorf("multiplier must be positive")
	}
	if c.Run.MaxThreads < 1 {
		return fmt.Errorf("max threads must be positive")
	}

	if _, err := c.Catalog(); err != nil {
		return err
	}

	return nil
}

// DeadlineAt converts the configured deadline duration into an absolute
// timestamp relative to now. The zero time means no deadline.
func (c *Config) DeadlineAt(now time.Time) time.Time {
	if c.Run.Deadline == "" {
		return time.Time{}
	}
	d, err := time.ParseDuration(c.Run.Deadline)
	if err != nil {
		// validate rejects unparsable deadlines up front.
		return time.Time{}
	}
	return now.Add(d)
}

// Catalog returns the configured band catalog: the explicit bands from the
// config file when present, the default heuristic catalog otherwise.
func (c *Config) Catalog() ([]band.Band, error) {
	if len(c.Bands) == 0 {
		return band.DefaultCatalog(c.Run.MaxThreads), nil
	}

	catalog := make([]band.Band, len(c.Bands))
	for i, spec := range c.Bands {
		catalog[i] = band.Band{
			MinBytes:       spec.MinBytes,
			MaxBytes:       spec.MaxBytes,
			Threads:        spec.Threads,
			MaxConcurrency: spec.MaxConcurrency,
			MaxBatchSize:   spec.MaxBatchSize,
		}
	}
	if err := band.Validate(catalog); err != nil {
		return nil, fmt.Errorf("invalid band catalog: %w", err)
	}
	return catalog, nil
}

// SourceS3 returns the source tier settings in transfer form.
func (c *Config) SourceS3() transfer.S3Config {
	return s3Config(c.Transfer.Source)
}

// TargetS3 returns the target tier settings in transfer form.
func (c *Config) TargetS3() transfer.S3Config {
	return s3Config(c.Transfer.Target)
}

func s3Config(s S3Config) transfer.S3Config {
	return transfer.S3Config{
		Endpoint:  s.Endpoint,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		Secure:    s.Secure,
		Bucket:    s.Bucket,
	}
}
