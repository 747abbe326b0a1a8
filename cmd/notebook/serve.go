package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/notebook/internal/api"
	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/config"
	"github.com/kalambet/notebook/internal/ingest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, websocket feed and background sync (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcp, _ := cmd.Flags().GetBool("mcp")
		inbox, _ := cmd.Flags().GetString("inbox")
		origins, _ := cmd.Flags().GetStringSlice("allow-origin")
		return runServer(serveOptions{mcp: mcp, inbox: inbox, origins: origins})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running notebook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show notebook status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
	serveCmd.Flags().String("inbox", "", "directory watched for files to import (default <data_dir>/inbox)")
	serveCmd.Flags().StringSlice("allow-origin", nil, "CORS origins (default *)")
	rootCmd.AddCommand(stopCmd)
}

type serveOptions struct {
	mcp     bool
	inbox   string
	origins []string
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "notebook.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(opts serveOptions) error {
	fmt.Fprintf(os.Stderr, "notebook version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := newAPIClient(cfg)
	pidPath := pidFilePath(cfg.Storage.DataDir)
	if client.healthy(ctx) {
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("notebook is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("notebook is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing notebook: %v\n", err)
		}
	}()

	printStep("loading collections")
	if err := a.Refresh(ctx); err != nil {
		slog.Warn("initial refresh incomplete", "error", err)
	}
	a.Start(ctx)
	slog.Info("auto sync started", "interval", cfg.SyncInterval())

	hub := api.NewHub(opts.origins)
	go hub.Run(ctx)
	unwatch := hub.Watch(a)
	defer unwatch()

	go func() {
		if err := a.Pomodoro.RunTimer(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("pomodoro timer stopped", "error", err)
		}
	}()

	importer := ingest.NewImporter(a.Notes)
	inbox := opts.inbox
	if inbox == "" {
		inbox = filepath.Join(cfg.Storage.DataDir, "inbox")
	}
	worker := ingest.NewWorker(importer, inbox, ingest.Options{}, 2*time.Second)
	go worker.Run(ctx)
	slog.Info("watching inbox", "dir", inbox)

	if opts.mcp {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{App: a}))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			App:            a,
			Importer:       importer,
			Hub:            hub,
			AllowedOrigins: opts.origins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "notebook listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("notebook is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop notebook (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to notebook (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := newAPIClient(cfg)
	if !client.healthy(ctx) {
		printStatus("Server", "stopped")
	} else {
		printStatus("Server", "running on port %d", cfg.Server.Port)
		if rep, err := client.fetchStorage(ctx); err == nil {
			printStatus("Namespace", "%s", rep.Namespace)
			printStatus("Stored", "%s", humanize.Bytes(uint64(rep.SizeBytes)))
			printStatus("Auto sync", "%t", rep.AutoSync)
		}
	}

	mode := "local"
	if cfg.Sync.Remote {
		mode = "remote (SQLite tables)"
	}
	printStatus("Sync mode", "%s every %s", mode, cfg.SyncInterval())
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Backups", "%s", cfg.BackupDir())
	return nil
}
