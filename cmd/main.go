package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"replbatch/internal/app"
	"replbatch/internal/classify"
	"replbatch/internal/config"
	"replbatch/internal/logger"
	"replbatch/internal/sched"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit codes. Deadline exhaustion is an expected outcome, not an error,
// and gets its own code so wrappers can tell the cases apart.
const (
	exitOK       = 0
	exitFailures = 2
	exitDeadline = 3
)

var (
	configFile string
	exitCode   = exitOK
)

var rootCmd = &cobra.Command{
	Use:   "replbatch",
	Short: "Replicate storage objects to a destination tier under a time budget",
	Long: `replbatch partitions a replication workload into size-based cohorts and
executes each cohort with bounded concurrency: many single-threaded transfers
for small objects, few multi-threaded transfers for large ones. A global
deadline stops dispatch without killing in-flight transfers. The classify
subcommand sorts the resulting error logs into an actionable taxonomy.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a replication pass",
	RunE:  runReplication,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <error-log>",
	Short: "Classify transfer error logs into per-class report files",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")

	// Destination and discovery flags
	runCmd.Flags().String("destination", "", "destination resource (required)")
	runCmd.Flags().String("discovery-db", "", "catalog database with objects to replicate")
	runCmd.Flags().String("discovery-query", "", "query returning (size, path) rows")
	runCmd.Flags().String("discovery-file", "", "delimited '<size> <path>' file ('-' for stdin)")

	// Transfer flags
	runCmd.Flags().String("transfer-mode", "command", "transfer mechanism (command/s3)")
	runCmd.Flags().String("transfer-command", "repl", "transfer program for command mode")
	runCmd.Flags().String("src-endpoint", "", "source S3 endpoint")
	runCmd.Flags().String("src-access-key", "", "source S3 access key")
	runCmd.Flags().String("src-secret-key", "", "source S3 secret key")
	runCmd.Flags().Bool("src-secure", false, "use HTTPS for source")
	runCmd.Flags().String("src-bucket", "", "source S3 bucket")
	runCmd.Flags().String("dst-endpoint", "", "destination S3 endpoint")
	runCmd.Flags().String("dst-access-key", "", "destination S3 access key")
	runCmd.Flags().String("dst-secret-key", "", "destination S3 secret key")
	runCmd.Flags().Bool("dst-secure", true, "use HTTPS for destination")
	runCmd.Flags().String("dst-bucket", "", "destination S3 bucket")

	// Scheduling flags
	runCmd.Flags().String("deadline", "", "wall-clock budget for the run, e.g. 8h (default unlimited)")
	runCmd.Flags().Int("multiplier", 1, "scale every band's concurrency uniformly")
	runCmd.Flags().Int("max-threads", 16, "largest per-transfer thread count in the band catalog")
	runCmd.Flags().Bool("dry-run", false, "log the cohort plan without transferring")

	// Observability flags
	runCmd.Flags().Bool("metrics", false, "expose prometheus metrics")
	runCmd.Flags().String("metrics-addr", ":8080", "metrics listen address")
	runCmd.Flags().String("log-level", "info", "log level (debug/info/warn/error)")

	classifyCmd.Flags().String("out-dir", ".", "directory for per-class report files")
	classifyCmd.Flags().String("prefix", "", "report file prefix (default derived from the log name)")
	classifyCmd.Flags().String("log-level", "info", "log level (debug/info/warn/error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(classifyCmd)
}

func runReplication(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	application, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("received shutdown signal, draining in-flight transfers...")
		cancel()
	}()

	outcome, err := application.Run(ctx)

	if closeErr := application.Close(); closeErr != nil {
		log.Error("failed to close application", zap.Error(closeErr))
	}

	switch {
	case errors.Is(err, sched.ErrSystemic):
		fmt.Fprintf(os.Stderr, "replication halted after repeated failures: %d files processed, %d failed\n",
			outcome.Completed, outcome.Failed)
		exitCode = exitFailures
	case err != nil:
		return err
	case outcome.TimedOut:
		fmt.Printf("ran out of time: %d files processed, %d failed\n", outcome.Completed, outcome.Failed)
		exitCode = exitDeadline
	case outcome.Failed > 0:
		fmt.Printf("finished with failures: %d files processed, %d failed\n", outcome.Completed, outcome.Failed)
		exitCode = exitFailures
	default:
		fmt.Printf("finished: %d files processed\n", outcome.Completed)
	}

	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	log, err := logger.New(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	input := args[0]
	var in *os.File
	if input == "-" {
		in = os.Stdin
	} else {
		in, err = os.Open(input)
		if err != nil {
			return fmt.Errorf("failed to open error log: %w", err)
		}
		defer in.Close()
	}

	lines, err := classify.ReadLines(in)
	if err != nil {
		return fmt.Errorf("failed to read error log: %w", err)
	}

	outDir, _ := cmd.Flags().GetString("out-dir")
	prefix, _ := cmd.Flags().GetString("prefix")
	if prefix == "" {
		prefix = defaultPrefix(input)
	}

	report := classify.Classify(lines, classify.DefaultRules(), log)
	if err := classify.WriteReport(outDir, prefix, report); err != nil {
		return err
	}

	log.Info("report written",
		zap.String("dir", outDir),
		zap.String("prefix", prefix),
		zap.Int("classified", report.Classified()),
		zap.Int("dropped", report.Dropped),
	)
	return nil
}

// defaultPrefix derives the report prefix from the log file name.
func defaultPrefix(input string) string {
	if input == "-" {
		return "repl"
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
