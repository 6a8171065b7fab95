package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/slotwise/internal/api"
	"github.com/kalambet/slotwise/internal/booking"
	"github.com/kalambet/slotwise/internal/config"
	"github.com/kalambet/slotwise/internal/jobs"
	"github.com/kalambet/slotwise/internal/notify"
	"github.com/kalambet/slotwise/internal/ranking"
	"github.com/kalambet/slotwise/internal/recommend"
	"github.com/kalambet/slotwise/internal/reminder"
	"github.com/kalambet/slotwise/internal/sessionlog"
	"github.com/kalambet/slotwise/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the slotwise server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServer(mcpStdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running slotwise server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show slotwise server and model status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp-stdio", false, "also serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "slotwise.pid")
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

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// app is the wired object graph behind the server.
type app struct {
	store     *storage.Store
	models    *ranking.CachedSource
	booking   *booking.Service
	sweeper   *reminder.Sweeper
	retrainer *jobs.Retrainer
	tree      *jobs.Tree
}

func buildApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	modelStore := ranking.NewFileStore(cfg.ModelPath())
	models := ranking.NewCachedSource(modelStore, cfg.ModelCacheTTL())
	scorer := ranking.NewScorer(models, logger)
	sessions := sessionlog.New(store, logger)

	orch := recommend.NewOrchestrator(store, scorer, sessions, recommend.Options{
		DefaultK:     cfg.Recommend.ReminderK,
		WindowDays:   cfg.Recommend.WindowDays,
		HistoryLimit: cfg.Recommend.HistoryLimit,
	}, logger)

	svc := booking.NewService(store, orch, sessions, booking.Options{
		InteractiveK:    cfg.Recommend.InteractiveK,
		WindowDays:      cfg.Recommend.WindowDays,
		DefaultDuration: cfg.DefaultDuration(),
	}, logger)

	notifier := notify.NewWebhookNotifier(notify.WebhookConfig{
		Endpoint: cfg.Notify.Endpoint,
		Timeout:  cfg.NotifyTimeout(),
		Retries:  cfg.Notify.Retries,
	}, logger)
	sweeper := reminder.NewSweeper(store, orch, notifier, cfg.Recommend.ReminderK, logger)

	retrainer := jobs.NewRetrainer(sessions, ranking.NewTrainer(modelStore, logger), models, cfg.Retrain.Limit, logger)

	tree := jobs.NewTree(logger, jobs.DefaultTreeConfig())
	tree.Add(jobs.NewReminderJob(sweeper, cfg.ReminderInterval(), logger))
	tree.Add(jobs.NewRetrainJob(retrainer, cfg.RetrainInterval(), logger))

	return &app{
		store:     store,
		models:    models,
		booking:   svc,
		sweeper:   sweeper,
		retrainer: retrainer,
		tree:      tree,
	}, nil
}

func (a *app) handler(cfg config.Config, logger *slog.Logger) http.Handler {
	return api.NewAppHandler(api.AppDeps{
		Booking:   a.booking,
		Sweeper:   a.sweeper,
		Retrainer: a.retrainer,
		Models:    a.models,
		Health:    a.store,
		Token:     cfg.Server.Token,
		RateLimit: cfg.Server.RateLimit,
		Logger:    logger,
	})
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "slotwise version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))
	logger := slog.Default()

	// Check if a server is already running via the health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("slotwise is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("slotwise is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	if cfg.Server.Token == "" {
		slog.Warn("SLOTWISE_SERVER_TOKEN is not set; API is unauthenticated")
	}

	jobsCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	treeErr := a.tree.ServeBackground(jobsCtx)
	slog.Info("background jobs started",
		"reminder_interval", cfg.ReminderInterval(),
		"retrain_interval", cfg.RetrainInterval(),
	)

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Booking: a.booking, Models: a.models})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler(cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "slotwise listening on %s\n", addr)
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
	shutdownErr := srv.Shutdown(shutdownCtx)

	cancelJobs()
	select {
	case err := <-treeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("job supervisor stopped with error", "error", err)
		}
	case <-shutdownCtx.Done():
		slog.Warn("job supervisor did not stop in time")
	}
	return shutdownErr
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
		printError("slotwise is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop slotwise (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to slotwise (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    serverURL(cfg),
		token:      cfg.Server.Token,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	resp, err := client.get(ctx, "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", client.baseURL)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		if st, err := fetchModelStatus(ctx, client); err == nil {
			printStatus("Model", "%s", describeModel(st))
		} else {
			printStatus("Model", "unknown (%v)", err)
		}
	}

	printStatus("Reminder sweep", "every %s", cfg.ReminderInterval())
	printStatus("Retrain", "every %s", cfg.RetrainInterval())
	printStatus("Notify endpoint", "%s", cfg.Notify.Endpoint)
	printStatus("Model path", "%s", cfg.ModelPath())
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
