package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newTestFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("destination", "", "")
	flags.String("discovery-db", "", "")
	flags.String("discovery-query", "", "")
	flags.String("discovery-file", "", "")
	flags.String("transfer-mode", "", "")
	flags.String("transfer-command", "", "")
	flags.String("src-endpoint", "", "")
	flags.String("src-access-key", "", "")
	flags.String("src-secret-key", "", "")
	flags.Bool("src-secure", false, "")
	flags.String("src-bucket", "", "")
	flags.String("dst-endpoint", "", "")
	flags.String("dst-access-key", "", "")
	flags.String("dst-secret-key", "", "")
	flags.Bool("dst-secure", false, "")
	flags.String("dst-bucket", "", "")
	flags.String("deadline", "", "")
	flags.Int("multiplier", 1, "")
	flags.Int("max-threads", 16, "")
	flags.Bool("dry-run", false, "")
	flags.Bool("metrics", false, "")
	flags.String("metrics-addr", "", "")
	flags.String("log-level", "", "")
	return flags
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
destination: demoResc
discovery:
  file: objects.txt
transfer:
  mode: command
  command: repl
  args: ["-M"]
run:
  deadline: 6h
  multiplier: 2
  max_threads: 8
log_level: debug
`)

	cfg, err := Load(path, newTestFlags())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Destination != "demoResc" {
		t.Errorf("destination = %q", cfg.Destination)
	}
	if cfg.Run.Deadline != "6h" || cfg.Run.Multiplier != 2 || cfg.Run.MaxThreads != 8 {
		t.Errorf("run = %+v", cfg.Run)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if len(cfg.Transfer.Args) != 1 || cfg.Transfer.Args[0] != "-M" {
		t.Errorf("transfer args = %v", cfg.Transfer.Args)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfigFile(t, `
destination: demoResc
discovery:
  file: objects.txt
run:
  multiplier: 2
`)

	flags := newTestFlags()
	if err := flags.Set("multiplier", "4"); err != nil {
		t.Fatal(err)
	}
	if err := flags.Set("destination", "otherResc"); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.Multiplier != 4 {
		t.Errorf("multiplier = %d, want flag value 4", cfg.Run.Multiplier)
	}
	if cfg.Destination != "otherResc" {
		t.Errorf("destination = %q, want flag value", cfg.Destination)
	}
}

func TestLoadDefaults(t *testing.T) {
	flags := newTestFlags()
	flags.Set("destination", "demoResc")
	flags.Set("discovery-file", "-")

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transfer.Mode != ModeCommand || cfg.Transfer.Command != "repl" {
		t.Errorf("transfer defaults = %+v", cfg.Transfer)
	}
	if cfg.Run.Multiplier != 1 || cfg.Run.MaxThreads != 16 {
		t.Errorf("run defaults = %+v", cfg.Run)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level default = %q", cfg.LogLevel)
	}
	if cfg.Metrics.Addr != ":8080" {
		t.Errorf("metrics addr default = %q", cfg.Metrics.Addr)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(flags *pflag.FlagSet)
		wantErr string
	}{
		{
			name:    "missing destination",
			mutate:  func(flags *pflag.FlagSet) { flags.Set("discovery-file", "-") },
			wantErr: "destination is required",
		},
		{
			name:    "missing discovery",
			mutate:  func(flags *pflag.FlagSet) { flags.Set("destination", "demoResc") },
			wantErr: "discovery db or file is required",
		},
		{
			name: "conflicting discovery",
			mutate: func(flags *pflag.FlagSet) {
				flags.Set("destination", "demoResc")
				flags.Set("discovery-file", "-")
				flags.Set("discovery-db", "catalog.db")
			},
			wantErr: "mutually exclusive",
		},
		{
			name: "bad deadline",
			mutate: func(flags *pflag.FlagSet) {
				flags.Set("destination", "demoResc")
				flags.Set("discovery-file", "-")
				flags.Set("deadline", "tomorrow")
			},
			wantErr: "invalid deadline",
		},
		{
			name: "zero multiplier",
			mutate: func(flags *pflag.FlagSet) {
				flags.Set("destination", "demoResc")
				flags.Set("discovery-file", "-")
				flags.Set("multiplier", "0")
			},
			wantErr: "multiplier must be positive",
		},
		{
			name: "unknown transfer mode",
			mutate: func(flags *pflag.FlagSet) {
				flags.Set("destination", "demoResc")
				flags.Set("discovery-file", "-")
				flags.Set("transfer-mode", "rsync")
			},
			wantErr: "unknown transfer mode",
		},
		{
			name: "s3 mode without endpoints",
			mutate: func(flags *pflag.FlagSet) {
				flags.Set("destination", "demoResc")
				flags.Set("discovery-file", "-")
				flags.Set("transfer-mode", "s3")
			},
			wantErr: "endpoints are required",
		},
	}

	for _, tt := range tests {
		flags := newTestFlags()
		tt.mutate(flags)
		_, err := Load("", flags)
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: error %q, want it to mention %q", tt.name, err, tt.wantErr)
		}
	}
}

func TestDeadlineAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

	cfg := &Config{Run: Run{Deadline: "6h"}}
	if got, want := cfg.DeadlineAt(now), now.Add(6*time.Hour); !got.Equal(want) {
		t.Errorf("DeadlineAt = %v, want %v", got, want)
	}

	cfg = &Config{}
	if got := cfg.DeadlineAt(now); !got.IsZero() {
		t.Errorf("DeadlineAt without deadline = %v, want zero time", got)
	}
}

func TestCatalogDefault(t *testing.T) {
	cfg := &Config{Run: Run{MaxThreads: 4}}

	catalog, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	// t bands for t=1..max_threads plus the trailing zero-size band.
	if len(catalog) != 5 {
		t.Errorf("got %d bands, want 5", len(catalog))
	}
}

func TestCatalogOverride(t *testing.T) {
	cfg := &Config{
		Bands: []BandSpec{
			{MinBytes: 0, MaxBytes: -1, Threads: 2, MaxConcurrency: 3, MaxBatchSize: 10},
		},
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(catalog) != 1 || catalog[0].Threads != 2 {
		t.Errorf("catalog = %v", catalog)
	}
}

func TestCatalogOverrideInvalid(t *testing.T) {
	cfg := &Config{
		Bands: []BandSpec{
			{MinBytes: 100, MaxBytes: -1, Threads: 1, MaxConcurrency: 1, MaxBatchSize: 1},
		},
	}

	if _, err := cfg.Catalog(); err == nil {
		t.Error("expected error for a catalog not covering size 0")
	}
}
