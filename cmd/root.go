package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/papertune/internal/config"
	"github.com/signalnine/papertune/internal/logging"
	"github.com/signalnine/papertune/internal/telemetry"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

const defaultConfigFile = "papertune.yaml"

var (
	cfgFile  string
	logLevel string
)

// env is what every command gets after the persistent pre-run.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	shutdown telemetry.Shutdown
}

var app env

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "papertune",
		Short:         "Optimize the system prompt of an arXiv research assistant agent",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd.Context(), cmd.Flags().Changed("config"))
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return teardown(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigFile, "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.AddCommand(newEvalCmd())
	root.AddCommand(newOptimizeCmd())
	root.AddCommand(newAskCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newRegradeCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newDiffCmd())
	return root
}

func setup(ctx context.Context, explicit bool) error {
	cfg, err := loadConfig(cfgFile, explicit)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, Version, cfg.Telemetry.Insecure)
	if err != nil {
		return err
	}
	app = env{cfg: cfg, log: logger, shutdown: shutdown}
	return nil
}

func teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	if app.shutdown != nil {
		err = app.shutdown(ctx)
	}
	if app.log != nil {
		_ = app.log.Sync()
	}
	return err
}

// loadConfig reads path. A missing file is only an error when the path was
// given explicitly; otherwise defaults and the environment are used.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
