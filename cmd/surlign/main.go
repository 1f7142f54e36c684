// Command surlign anchors text highlights on web pages and keeps them
// resolvable as the pages change.
//
// Usage:
//
//	surlign -config surlign.yaml           # run the HTTP API
//	surlign -db surlign.db                 # run with defaults
//	surlign -db surlign.db -mcp            # serve MCP tools on stdio
//	surlign -db surlign.db -pages          # list highlighted pages and exit
//	surlign -db surlign.db -export <url>   # export one page as markdown and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/surlign/highlighter"
	"github.com/hazyhaar/surlign/internal/store"
	"github.com/hazyhaar/surlign/mirror"
	"github.com/hazyhaar/surlign/shield"
)

func main() {
	configPath := flag.String("config", "", "path to surlign.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite database")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools on stdio instead of HTTP")
	listPages := flag.Bool("pages", false, "list highlighted pages and exit")
	exportURL := flag.String("export", "", "export a page's highlights as markdown and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dbPath, *listen, *mcpMode, *listPages, *exportURL); err != nil {
		logger.Error("surlign: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath, listen string, mcpMode, listPages bool, exportURL string) error {
	cfg, err := resolveConfig(configPath, dbPath, listen)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	svc := highlighter.New(cfg, st, logger)

	// One-shot: list pages.
	if listPages {
		keys, err := svc.Pages(ctx, "")
		if err != nil {
			return fmt.Errorf("pages: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	// One-shot: export.
	if exportURL != "" {
		md, err := svc.ExportMarkdown(ctx, exportURL, nil)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Println(md)
		return nil
	}

	// MCP stdio mode.
	if mcpMode {
		srv := mcp.NewServer(&mcp.Implementation{Name: "surlign", Version: "0.1.0"}, nil)
		svc.RegisterMCP(srv)
		logger.Info("surlign: serving MCP on stdio", "db", cfg.DBPath)
		return srv.Run(ctx, &mcp.StdioTransport{})
	}

	if cfg.Mirror.URL != "" {
		mc := mirror.New(cfg.Mirror.URL, nil)
		defer mc.Close()
		go syncLoop(ctx, logger, svc, mc, time.Duration(cfg.Mirror.IntervalMS)*time.Millisecond)
	}

	// HTTP mode.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	if cfg.Auth.PasswordHash != "" {
		r.Use(basicAuth(cfg.Auth.User, cfg.Auth.PasswordHash))
	}
	svc.Routes(r)

	httpSrv := &http.Server{Addr: cfg.Listen, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("surlign: listening", "addr", cfg.Listen, "db", cfg.DBPath)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("surlign: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// syncLoop runs the bidirectional mirror exchange: pull the peer's changes,
// then push anything changed locally since the previous round.
func syncLoop(ctx context.Context, logger *slog.Logger, svc *highlighter.Service, mc *mirror.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSync int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().UnixMilli()
		applied, err := mc.Pull(ctx, svc, lastSync)
		if err != nil {
			logger.Warn("mirror: pull failed", "error", err)
			continue
		}
		if applied > 0 {
			logger.Info("mirror: pulled changes", "applied", applied)
		}

		changed, err := svc.ChangedSince(ctx, lastSync)
		if err != nil {
			logger.Warn("mirror: local changes", "error", err)
			continue
		}
		for _, h := range changed {
			mc.PushAsync(h)
		}
		lastSync = cutoff
	}
}

// basicAuth rejects requests whose credentials don't match the configured
// user and bcrypt password hash.
func basicAuth(user, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || u != user ||
				bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="surlign"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveConfig(configPath, dbPath, listen string) (*highlighter.Config, error) {
	var cfg *highlighter.Config
	if configPath != "" {
		var err error
		cfg, err = highlighter.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = highlighter.DefaultConfig()
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if listen != "" {
		cfg.Listen = listen
	}
	return cfg, nil
}
