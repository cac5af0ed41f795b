package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/mockmate/internal/api"
	"github.com/kalambet/mockmate/internal/config"
	"github.com/kalambet/mockmate/internal/gateway"
	"github.com/kalambet/mockmate/internal/history"
	"github.com/kalambet/mockmate/internal/interview"
	"github.com/kalambet/mockmate/internal/llm"
	"github.com/kalambet/mockmate/internal/prompts"
	"github.com/kalambet/mockmate/internal/session"
	"github.com/kalambet/mockmate/internal/storage"
	"github.com/kalambet/mockmate/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the mockmate server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running mockmate server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mockmate system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "mockmate.pid")
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

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// backends holds the key-value store for sessions and history plus the
// SQLite store carrying the job queue. They may be the same database.
type backends struct {
	kv    storage.KV
	jobs  *storage.Store
	close func()
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	switch cfg.Storage.Backend {
	case "memory":
		jobs, err := storage.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("opening job store: %w", err)
		}
		return &backends{kv: storage.NewMemoryKV(), jobs: jobs, close: func() { jobs.Close() }}, nil

	case "redis":
		kv, err := storage.OpenRedis(ctx, cfg.Storage.RedisAddr)
		if err != nil {
			return nil, err
		}
		jobs, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			kv.Close()
			return nil, fmt.Errorf("opening job store: %w", err)
		}
		return &backends{kv: kv, jobs: jobs, close: func() {
			jobs.Close()
			kv.Close()
		}}, nil

	default:
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		return &backends{kv: store, jobs: store, close: func() {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
			}
		}}, nil
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "mockmate version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level, os.Stderr)
	slog.SetDefault(logger)

	// A missing key is not fatal: the server starts and LLM-backed calls
	// fail with a configuration error until one is set.
	if err := cfg.Validate(); err != nil {
		logger.Warn("LLM backend not configured", "error", err)
	}

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	logger.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("mockmate is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("mockmate is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()
	logger.Info("storage ready", "backend", cfg.Storage.Backend)

	pm, err := prompts.NewManager()
	if err != nil {
		return fmt.Errorf("loading prompts: %w", err)
	}
	client := llm.NewClientWithOptions(cfg.LLM.APIKey, llm.Options{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: &cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.TimeoutDuration(),
	})
	gw := gateway.New(client, pm, logger.With("component", "gateway"))
	openSessions := func(ctx context.Context, userID string) (interview.SessionStore, error) {
		return session.Open(ctx, b.kv, userID)
	}
	interviews := interview.NewUsers(openSessions, gw, logger.With("component", "interview"))

	// Other users' sessions load on their first request.
	orch, err := interviews.For(ctx, cfg.User.ID)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if s := orch.Session(); s != nil {
		logger.Info("resumed interview session", "user_id", cfg.User.ID, "session_id", s.ID, "question_index", s.CurrentQuestionIndex)
	}
	recorder := history.NewRecorder(b.kv, b.jobs, logger.With("component", "history"))

	defaults := api.Defaults{
		QuestionType: cfg.Interview.QuestionType,
		NumQuestions: cfg.Interview.NumQuestions,
		Difficulty:   cfg.Interview.Difficulty,
		UserID:       cfg.User.ID,
	}

	handler := api.NewAppHandler(api.AppDeps{
		Interviews:     interviews,
		History:        recorder,
		Token:          apiToken,
		AllowedOrigins: splitOrigins(cfg.Server.AllowedOrigins),
		Defaults:       defaults,
		Logger:         logger.With("component", "api"),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	statsWorker := worker.New(b.jobs, recorder, 500*time.Millisecond, logger.With("component", "worker"))
	g.Go(func() error {
		statsWorker.Run(gctx)
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Interviews: interviews,
			History:    recorder,
			Defaults:   defaults,
			Logger:     logger.With("component", "mcp"),
		}, version)
		stdioSrv := server.NewStdioServer(mcpSrv)
		// The stdio transport ends when stdin closes; that must not stop the HTTP server.
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		logger.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "mockmate listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("mockmate is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop mockmate (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to mockmate (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("LLM endpoint", "%s", cfg.LLM.BaseURL)
	printStatus("Model", "%s", cfg.LLM.Model)
	if cfg.LLM.APIKey == "" {
		printStatus("API key", "%s", colorize(colorYellow, "not set"))
	} else {
		llmClient := llm.NewClientWithOptions(cfg.LLM.APIKey, llm.Options{BaseURL: cfg.LLM.BaseURL, Timeout: 5 * time.Second})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		models, err := llmClient.ListModels(ctx)
		cancel()
		if err != nil {
			printStatus("API key", "%s (%v)", colorize(colorRed, "rejected"), err)
		} else {
			printStatus("API key", "valid (%d models available)", len(models))
		}
	}

	apiToken, tokenErr := config.GetAPIToken(config.NewKeychain())
	if tokenErr == nil && running {
		if r, err := apiGet(client, serverURL+"/interview", apiToken); err == nil {
			var view struct {
				Session struct {
					Status string `json:"status"`
				} `json:"session"`
				Progress interview.Progress `json:"progress"`
			}
			if r.StatusCode == http.StatusOK && json.NewDecoder(r.Body).Decode(&view) == nil {
				p := view.Progress
				printStatus("Interview", "%s, %s", view.Session.Status, progressLine(p.Current, p.Total, p.Answered, p.Percentage))
			} else {
				printStatus("Interview", "none")
			}
			r.Body.Close()
		}
		if r, err := apiGet(client, serverURL+"/history?limit="+strconv.Itoa(history.MaxRecords), apiToken); err == nil {
			var records []json.RawMessage
			if json.NewDecoder(r.Body).Decode(&records) == nil {
				printStatus("History", "%d interviews", len(records))
			}
			r.Body.Close()
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if userID != "" {
		req.Header.Set(api.UserIDHeader, userID)
	}
	return client.Do(req)
}
