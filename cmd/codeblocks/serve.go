package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codeblocks/internal/app"
	"codeblocks/internal/config"
	"codeblocks/internal/logging"
)

type serveFlags struct {
	configPath string
	seedFile   string
	port       int
	logEnv     string
}

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the codeblocks server",
		Long: `Run the REST API and the real-time channel.

Configuration precedence: flags > config file > CODEBLOCKS_* environment > defaults.
The config file defaults to $CODEBLOCKS_CONFIG_FILE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(flags)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "JSON config file")
	cmd.Flags().StringVar(&flags.seedFile, "seed", "", "JSON file of exercise definitions to load at startup")
	cmd.Flags().IntVar(&flags.port, "port", 0, "HTTP port")
	cmd.Flags().StringVar(&flags.logEnv, "log-env", "", "logger flavour: development, production or example")
	return cmd
}

// loadServeConfig layers the flags over file, environment and defaults
func loadServeConfig(flags *serveFlags) (*config.Config, error) {
	path := flags.configPath
	if path == "" {
		path = os.Getenv("CODEBLOCKS_CONFIG_FILE")
	}
	cfg := config.LoadConfigWithPrecedence(path)

	if flags.seedFile != "" {
		cfg.SeedFile = flags.seedFile
	}
	if flags.port != 0 {
		cfg.HTTP.Port = flags.port
	}
	if flags.logEnv != "" {
		cfg.Logging.Env = flags.logEnv
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serve runs until SIGINT or SIGTERM, then shuts down gracefully
func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	logger, err := logging.New(cfg.Logging.Env)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApplication(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-ctx.Done()
	logger.Infow("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
