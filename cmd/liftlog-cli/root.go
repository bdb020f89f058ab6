package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/claude/liftlog/internal/client"
	"github.com/claude/liftlog/internal/reconcile"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	login     string
	cacheDir  string
	verbose   bool
	timeout   time.Duration

	api   *client.Client
	cache *reconcile.Cache
	rec   *reconcile.Reconciler
	log   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "liftlog-cli",
	Short:   "Log strength workouts from the terminal",
	Version: Version,
	Long: `liftlog-cli logs workouts against a liftlog server.

A user has at most one active session. Edits are sent in the background
and the last edit to a set always wins. This device keeps a local copy of
each session; when another device changed a session more recently, the
server copy replaces the local one.

QUICK START:

  $ liftlog-cli start --preset <id>        # Start from a preset
  $ liftlog-cli active                     # Show the active session
  $ liftlog-cli set 3f2a --weight 80 --done
  $ liftlog-cli finish                     # Finish and log completed sets

ENVIRONMENT:

  LIFTLOG_SERVER_URL   server address (default http://localhost:8080)
  LIFTLOG_USER         login sent when the server has no tailnet identity`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		api = client.New(serverURL, login)

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		me, err := api.Me(ctx)
		if err != nil {
			return fmt.Errorf("contacting %s: %w", serverURL, err)
		}

		dir := cacheDir
		if dir == "" {
			dir, err = defaultCacheDir()
			if err != nil {
				return err
			}
		}
		cache, err = reconcile.OpenCache(filepath.Join(dir, me.Login))
		if err != nil {
			return err
		}
		rec = reconcile.New(cache, api, me.UserID, log)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if api != nil {
			api.CloseIdleConnections()
		}
		if cache != nil {
			return cache.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("LIFTLOG_SERVER_URL", "http://localhost:8080"), "liftlog server URL")
	rootCmd.PersistentFlags().StringVar(&login, "user", os.Getenv("LIFTLOG_USER"), "login to act as (ignored on a tailnet)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "local session cache directory (default: user cache dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout per command")

	rootCmd.AddCommand(startCmd, activeCmd, showCmd, listCmd, addCmd, suggestCmd,
		setCmd, syncCmd, finishCmd, resumeCmd, deleteCmd, presetsCmd, summaryCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating cache dir: %w", err)
	}
	return filepath.Join(base, "liftlog"), nil
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
