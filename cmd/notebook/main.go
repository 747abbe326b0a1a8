package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/config"
	"github.com/kalambet/notebook/internal/model"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "notebook",
	Short:         "Local notes, tasks, projects and a pomodoro timer",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(notesCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(pomodoroCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func setupLogging(cfg config.Config) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// withApp loads the configuration, opens the notebook, runs fn and closes
// the notebook, which persists whatever fn changed. While a server answers
// on the configured port the notebook is attached to it instead: no
// database is opened and every store command is sent to the server.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	var opts app.Options
	client := newAPIClient(cfg)
	if client.healthy(ctx) {
		slog.Debug("server running, attaching", "url", client.baseURL)
		opts.Backend = client
	}

	a, err := app.New(cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing notebook: %w", cerr)
		}
	}()
	if opts.Backend != nil {
		if err := attach(ctx, a, client); err != nil {
			return err
		}
	}
	return fn(ctx, a)
}

// attach loads the server's collections and timer settings into a.
func attach(ctx context.Context, a *app.App, c *apiClient) error {
	if err := a.Refresh(ctx); err != nil {
		return fmt.Errorf("loading from server: %w", err)
	}
	s, err := c.pomodoroSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading timer settings: %w", err)
	}
	_, err = a.Pomodoro.UpdateSettings(model.SettingsPatch{
		WorkDuration:       &s.WorkDuration,
		ShortBreakDuration: &s.ShortBreakDuration,
		LongBreakDuration:  &s.LongBreakDuration,
	})
	return err
}

// serverClient returns the client of the server a is attached to.
func serverClient(a *app.App) (*apiClient, bool) {
	c, ok := a.Backend().(*apiClient)
	return c, ok
}

// runWithApp adapts withApp to a cobra RunE.
func runWithApp(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(_ context.Context, a *app.App) error {
			return fn(cmd, args, a)
		})
	}
}
