// ABOUTME: Entry point for the debugkit push retention server and CLI
// ABOUTME: Defines the cobra root command, config resolution and the serve command

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/debugkit/internal/config"
	"github.com/2389/debugkit/internal/server"
	"github.com/2389/debugkit/internal/store"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _      _                _    _ _
  __| | ___| |__  _   _  __ _| | _(_) |_
 / _' |/ _ \ '_ \| | | |/ _' | |/ / | __|
| (_| |  __/ |_) | |_| | (_| |   <| | |_
 \__,_|\___|_.__/ \__,_|\__, |_|\_\_|\__|
                        |___/
`

// Environment variables read by the CLI.
const (
	envConfigPath = "DEBUGKIT_CONFIG"
	envDBPath     = "DEBUGKIT_DB_PATH"
)

// cliOptions holds the persistent flags shared by every command.
type cliOptions struct {
	configPath string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "debugkit",
		Short:         "Receive, keep and inspect push notifications",
		Long:          "debugkit stores received push notifications for a rolling number of days and serves them over HTTP.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $"+envConfigPath+" or ~/.config/debugkit/config.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newListCmd(opts),
		newPruneCmd(opts),
		newDaysCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// getConfigPath returns the config file path and whether it was asked for explicitly.
// Priority: --config flag > DEBUGKIT_CONFIG env var > XDG_CONFIG_HOME/debugkit/config.yaml > ~/.config/debugkit/config.yaml
func getConfigPath(flagPath string) (string, bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if envPath := os.Getenv(envConfigPath); envPath != "" {
		return envPath, true
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml", false
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "debugkit", "config.yaml"), false
}

// getDataPath returns the debugkit data directory.
// Priority: XDG_DATA_HOME/debugkit > ~/.local/share/debugkit
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "debugkit")
}

// loadConfig loads the config file, falling back to defaults when the default
// path does not exist. An explicitly named file must exist.
func loadConfig(opts *cliOptions) (*config.Config, string, error) {
	path, explicit := getConfigPath(opts.configPath)

	var cfg *config.Config
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		loaded, err := config.Load(path)
		if err != nil {
			return nil, path, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	case explicit || !errors.Is(statErr, os.ErrNotExist):
		return nil, path, fmt.Errorf("loading config: %w", statErr)
	default:
		cfg = config.Default(filepath.Join(getDataPath(), "pushes.db"))
		path = ""
	}

	if dbPath := os.Getenv(envDBPath); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, path, nil
}

// openStore opens the configured database. Failure here is fatal for every command.
func openStore(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	st, err := store.Open(cfg.Database.Driver, cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening push store %s: %w", cfg.Database.Path, err)
	}
	return st, nil
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and gRPC health servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
}

func runServe(ctx context.Context, out io.Writer, opts *cliOptions) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Fprint(out, banner)
	gray.Fprintf(out, "    version: %s\n\n", version)

	cfg, configPath, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	if configPath == "" {
		configPath = "(defaults)"
	}
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", configPath)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Database:  %s\n", cfg.Database.Path)
	if cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, "Tailscale: ")
		cyan.Fprint(out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	} else {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)
		if cfg.Server.GRPCAddr != "" {
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "gRPC:      %s\n", cfg.Server.GRPCAddr)
		}
	}
	if cfg.Auth.JWTSecret == "" {
		color.New(color.FgYellow).Fprint(out, "    ! ")
		fmt.Fprintln(out, "API auth disabled (auth.jwt_secret not set)")
	}
	fmt.Fprintln(out)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	srv, err := server.New(cfg, st, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if cfg.Retention.StorageDays > 0 {
		days, saved := srv.Retention().SetStorageDays(ctx, cfg.Retention.StorageDays)
		if !saved {
			logger.Warn("could not save storage window from config", "requested", cfg.Retention.StorageDays, "storage_days", days)
		} else {
			logger.Info("storage window from config", "storage_days", days)
		}
	}
	srv.Retention().Prune(ctx, time.Now())

	logger.Info("starting debugkit",
		"version", version,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"storage_days", srv.Retention().StorageDays(ctx),
	)
	return srv.Run(ctx)
}
