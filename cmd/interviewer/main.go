package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/interviewer/internal/bank"
	"github.com/pavelanni/interviewer/internal/event"
	"github.com/pavelanni/interviewer/internal/handler"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/session"
	"github.com/pavelanni/interviewer/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "interviewer",
		Short: "Technical interview simulator powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `interviewer --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the interview server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("stream-addr", "", "TCP stream listen address (empty = disabled)")
	f.String("db", "interviewer.db", "SQLite database path")
	f.StringP("questions", "q", "", "Path to questions JSON file (empty = built-in set)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Int("max-followups", 2, "Maximum follow-up questions per main question")
	f.IntP("num-questions", "n", 0, "Number of questions per session (0 = all available)")
	f.StringP("difficulty", "d", "", "Filter questions by difficulty (easy, medium, hard)")
	f.Bool("shuffle", false, "Randomize question order")
	f.Duration("session-timeout", 30*time.Minute, "Idle time before a session expires")
	f.Duration("post-feedback-delay", 3*time.Second, "Pause between feedback and the next question on push transports")
	f.Duration("sweep-interval", 5*time.Minute, "How often expired sessions are swept")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export interview sessions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "interviewer.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("INTERVIEWER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("interviewer")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/interviewer")
	v.AddConfigPath("/etc/interviewer")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open the snapshot database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Load the question bank.
	b, err := bank.Load(v.GetString("questions"), bank.LoadOptions{
		Difficulty: v.GetString("difficulty"),
		Limit:      v.GetInt("num-questions"),
		Shuffle:    v.GetBool("shuffle"),
	})
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	// Create the LLM client and check it is reachable. A failed check is
	// not fatal: the interview degrades to rule-based evaluation.
	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err := llmClient.Ping(context.Background()); err != nil {
		slog.Warn("LLM endpoint unreachable, running with fallback evaluation",
			"url", v.GetString("llm-url"), "error", err)
	} else {
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	cfg := model.Config{
		MaxFollowUps:        v.GetInt("max-followups"),
		QuestionsPerSession: v.GetInt("num-questions"),
		Difficulty:          v.GetString("difficulty"),
		Shuffle:             v.GetBool("shuffle"),
		SessionTimeout:      v.GetDuration("session-timeout"),
		PostFeedbackDelay:   v.GetDuration("post-feedback-delay"),
	}

	sessions := session.NewManager(db)
	dispatcher := event.NewDispatcher(cfg.PostFeedbackDelay)
	svc := handler.NewService(sessions, b, llmClient, dispatcher, cfg.MaxFollowUps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Sweep expired sessions on a fixed interval.
	sweepInterval := v.GetDuration("sweep-interval")
	if sweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := sessions.SweepExpired(cfg.SessionTimeout); n > 0 {
						slog.Info("swept expired sessions", "count", n)
					}
				}
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	handler.New(svc, cfg.SessionTimeout).Routes(r)
	handler.NewWebSocket(svc).Routes(r)

	// Optional raw stream transport alongside HTTP.
	if streamAddr := v.GetString("stream-addr"); streamAddr != "" {
		ln, err := net.Listen("tcp", streamAddr)
		if err != nil {
			return fmt.Errorf("listen stream: %w", err)
		}
		slog.Info("starting stream listener", "addr", streamAddr)
		go func() {
			if err := handler.NewStreamServer(svc).Serve(ctx, ln); err != nil {
				slog.Error("stream server", "error", err)
			}
		}()
	}

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"questions", b.Len(),
		"difficulty", cfg.Difficulty,
		"max_followups", cfg.MaxFollowUps,
		"shuffle", cfg.Shuffle,
		"session_timeout", cfg.SessionTimeout,
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	sessions, err := db.ExportAll()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	export := model.InterviewExport{
		ExportedAt: time.Now().UTC(),
		Sessions:   sessions,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	return nil
}
