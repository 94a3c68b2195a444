// Package cli implements the command-line interface for localsearch-forecast.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"localsearch-forecast/config"
)

// Flags holds the persistent flags shared by every command
type Flags struct {
	LogLevel     string
	DBDriver     string
	FixturesFile string
}

// runtime is the per-invocation state prepared by PersistentPreRunE
type runtime struct {
	config *config.Config
	logger *logrus.Logger
}

type runtimeContextKey struct{}

// NewRootCmd creates an isolated root command with all subcommands
func NewRootCmd() *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:   "localsearch-forecast",
		Short: "Predict local search rankings, traffic and conversions",
		Long: `localsearch-forecast predicts where a business location will rank for its
keywords, how traffic and conversions follow, and how detected market trends and
what-if scenarios move those numbers.

Configuration is read from the environment (and a .env file when present).
Flags override the matching environment variables.`,
		PersistentPreRunE: createSetup(flags),
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&flags.DBDriver, "db-driver", "", "Store backend (postgres, sqlite, memory); overrides DB_DRIVER")
	cmd.PersistentFlags().StringVar(&flags.FixturesFile, "fixtures", "", "Static provider fixture file; overrides PROVIDER_FIXTURES_FILE")

	cmd.AddCommand(createServeCmd())
	cmd.AddCommand(createPredictCmd())
	cmd.AddCommand(createBatchCmd())
	cmd.AddCommand(createForecastCmd())
	cmd.AddCommand(createModelsCmd())

	return cmd
}

// createSetup loads configuration and the logger for the invoked command
func createSetup(flags *Flags) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg := config.LoadFromEnv()
		if flags.LogLevel != "" {
			if _, err := logrus.ParseLevel(strings.ToLower(flags.LogLevel)); err != nil {
				return fmt.Errorf("invalid log level %q: %w", flags.LogLevel, err)
			}
			cfg.Log.Level = strings.ToLower(flags.LogLevel)
		}
		if flags.DBDriver != "" {
			cfg.Database.Driver = flags.DBDriver
		}
		if flags.FixturesFile != "" {
			cfg.Provider.FixturesFile = flags.FixturesFile
		}

		logger := config.NewLogger(cfg.Log)
		// Log to stderr to keep stdout clean for output
		logger.SetOutput(cmd.ErrOrStderr())

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(context.WithValue(ctx, runtimeContextKey{}, &runtime{config: cfg, logger: logger}))
		return nil
	}
}

func getRuntime(cmd *cobra.Command) (*runtime, error) {
	rt, ok := cmd.Context().Value(runtimeContextKey{}).(*runtime)
	if !ok {
		return nil, fmt.Errorf("command was not initialized")
	}
	return rt, nil
}

// Execute runs the CLI
func Execute() {
	// Set up context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌ "+err.Error())
		cancel()
		os.Exit(1)
	}
}
