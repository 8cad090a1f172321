package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/config"
	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskwidgets/internal/server"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/paths"
)

type options struct {
	configPath string
	logLevel   string
	dev        bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "deskwidgets [flags] [command...]",
		Short: "Desk widget host",
		Long: `Hosts desktop widgets: calendar, to-do, weather, system monitors and notes.

Only one host runs per user. Starting another forwards its command
(addwidget <widget>, hidewidget, settings) to the running host and exits.`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args)
		},
	}
	// Everything after the first positional argument belongs to the command.
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to a TOML config file")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.dev, "dev", false, "development mode: console logs and developer widgets")
	return cmd
}

func loadConfig(cmd *cobra.Command, opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.LoadOptional(paths.ConfigPath())
	}
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		if _, err := logging.ParseLevel(opts.logLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = opts.logLevel
	}
	if opts.dev {
		cfg.Logging.Development = true
		cfg.Host.Developer = true
		if !cmd.Flags().Changed("log-level") {
			cfg.Logging.Level = "debug"
		}
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.Config, args []string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := server.New(cfg)
	owner, err := h.Start(ctx, args)
	if err != nil {
		return fmt.Errorf("start host: %w", err)
	}
	if !owner {
		// forwarded to the running host
		return nil
	}

	runErr := h.Run(ctx)
	if err := h.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
