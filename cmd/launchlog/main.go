package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/launchlog/launchlog-go/internal/client"
	"github.com/launchlog/launchlog-go/internal/logging"
)

const defaultAPIURL = "http://localhost:3001"

// app holds the state shared by every command of one invocation.
type app struct {
	apiURL    string
	cachePath string
	timeout   time.Duration
	verbose   bool

	logger *slog.Logger
	api    *client.APIClient
	cache  *client.Cache
	svc    *client.DataService
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "launchlog",
		Short: "LaunchLog - focus sessions, tasks and job applications",
		Long: `launchlog talks to a LaunchLog API and keeps a local cache.

Changes made while the API is unreachable are queued and sent, in order,
by the next command that reaches it (or by 'launchlog sync').`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.open,
		PersistentPostRunE: a.close,
	}

	rootCmd.PersistentFlags().StringVar(&a.apiURL, "api", envOr("LAUNCHLOG_API_URL", defaultAPIURL), "API base URL (or set LAUNCHLOG_API_URL)")
	rootCmd.PersistentFlags().StringVar(&a.cachePath, "cache", envOr("LAUNCHLOG_CACHE", defaultCachePath()), "Local cache file (or set LAUNCHLOG_CACHE)")
	rootCmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 15*time.Second, "Per-request timeout")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.statusCmd(),
		a.sessionCmd(),
		a.jobCmd(),
		a.taskCmd(),
		a.dashboardCmd(),
		a.syncCmd(),
		a.resetCmd(),
	)
	return rootCmd
}

func (a *app) open(cmd *cobra.Command, args []string) error {
	a.logger = logging.NewCLI(cmd.ErrOrStderr(), a.verbose)

	if dir := filepath.Dir(a.cachePath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create cache directory: %w", err)
		}
	}

	cache, err := client.OpenCache(cmd.Context(), a.cachePath)
	if err != nil {
		return err
	}
	a.cache = cache
	a.api = client.NewAPIClient(a.apiURL, nil)

	a.svc, err = client.NewDataService(cmd.Context(), a.api, a.cache, a.logger)
	if err != nil {
		return err
	}
	a.logger.Debug("cache opened", "path", a.cachePath, "api", a.apiURL)
	return nil
}

func (a *app) close(cmd *cobra.Command, args []string) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Close()
}

// ctx bounds one command by the --timeout flag.
func (a *app) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "launchlog.db"
	}
	return filepath.Join(dir, "launchlog", "cache.db")
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
