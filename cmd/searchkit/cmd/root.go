// Package cmd provides the searchkit CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchkit/internal/config"
	serrors "github.com/Aman-CERP/searchkit/internal/errors"
	"github.com/Aman-CERP/searchkit/internal/logging"
	"github.com/Aman-CERP/searchkit/internal/output"
	"github.com/Aman-CERP/searchkit/internal/profiling"
	"github.com/Aman-CERP/searchkit/pkg/coordinator"
	"github.com/Aman-CERP/searchkit/pkg/version"
)

// app is the state shared by every command of one invocation.
type app struct {
	configPath string
	location   string
	logLevel   string
	debug      bool
	format     string
	profiles   profiling.Options

	cfg      *config.Config
	logger   *slog.Logger
	cleanup  func()
	profiler *profiling.Session
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	defer a.shutdown()

	root := a.rootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		a.logFailure(ctx, err)
		fmt.Fprint(os.Stderr, serrors.FormatForCLI(err))
	}
	return err
}

// ExitCode maps the error from Execute to a process exit status: 2 when the
// command line or query was rejected, 1 for any other failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch serrors.GetCode(err) {
	case serrors.ErrCodeInvalidInput, serrors.ErrCodeQueryParse, serrors.ErrCodeQueryTooDeep:
		return 2
	}
	return 1
}

// logFailure records a failed command. Fatal errors log at error level, the
// rest at warn.
func (a *app) logFailure(ctx context.Context, err error) {
	logger := a.logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelWarn
	if serrors.IsFatal(err) {
		level = slog.LevelError
	}
	logger.LogAttrs(ctx, level, "command_failed", serrors.LogAttrs(err)...)
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchkit",
		Short: "Index and query full-text search indexes",
		Long: `searchkit manages on-disk full-text indexes: one writer per index,
cached readers, composable boolean queries and bulk reindexing.

Settings come from .searchkit.yaml in the working directory (or --config),
overridden by SEARCHKIT_* environment variables.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	cmd.SetVersionTemplate("searchkit version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a config file (default .searchkit.yaml in the working directory)")
	cmd.PersistentFlags().StringVarP(&a.location, "index", "i", "", "Index directory")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Log at debug level, to the configured log file or "+logging.DefaultLogPath())
	cmd.PersistentFlags().StringVarP(&a.format, "format", "f", output.FormatText, "Output format: text, json")
	cmd.PersistentFlags().StringVar(&a.profiles.CPU, "profile-cpu", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&a.profiles.Heap, "profile-mem", "", "Write a heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&a.profiles.Trace, "profile-trace", "", "Write an execution trace to file")

	cmd.AddCommand(a.searchCmd())
	cmd.AddCommand(a.countCmd())
	cmd.AddCommand(a.addCmd())
	cmd.AddCommand(a.deleteCmd())
	cmd.AddCommand(a.reindexCmd())
	cmd.AddCommand(a.unlockCmd())
	cmd.AddCommand(a.initCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and installs the logger.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		var wd string
		if wd, err = os.Getwd(); err == nil {
			cfg, err = config.Load(wd)
		}
	}
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.debug {
		cfg.Logging.Level = "debug"
		if cfg.Logging.File == "" {
			cfg.Logging.File = logging.DefaultLogPath()
		}
	}

	fd := os.Stderr.Fd()
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: true,
		Text:          isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.cleanup = cleanup
	slog.SetDefault(logger)
	if a.debug {
		logger.Debug("debug_logging_enabled",
			slog.String("log_file", cfg.Logging.File),
			slog.String("version", version.Version))
	}

	a.profiler, err = profiling.Start(a.profiles)
	return err
}

func (a *app) shutdown() {
	if a.profiler != nil {
		if err := a.profiler.Stop(); err != nil {
			a.logger.Warn("profile_write_failed", slog.String("error", err.Error()))
		}
		a.profiler = nil
	}
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

// withCoordinator builds a Coordinator for the duration of fn and closes it
// afterwards, so pending writes are committed even when fn fails.
func (a *app) withCoordinator(ctx context.Context, fn func(c *coordinator.Coordinator) error) (err error) {
	if a.location == "" {
		return serrors.ValidationError("no index directory given", nil).
			WithSuggestion("pass --index <dir>")
	}
	c, err := coordinator.New(a.cfg, coordinator.Options{
		Logger:     a.logger,
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		return err
	}
	defer func() {
		// Commit pending work even after an interrupt cancelled ctx.
		if cerr := c.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(c)
}

func (a *app) out(cmd *cobra.Command) *output.Writer {
	return output.New(cmd.OutOrStdout(), a.format)
}
