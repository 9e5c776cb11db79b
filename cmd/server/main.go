package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunobiangulo/worksheet"
	"github.com/brunobiangulo/worksheet/record"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON or YAML)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	cfg := worksheet.DefaultConfig()
	if *configPath != "" {
		loaded, err := worksheet.LoadConfig(*configPath)
		if err != nil {
			slog.Error("loading config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	applyEnv(&cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cfg.Registerer = reg

	apiKey := os.Getenv("WORKSHEET_API_KEY")
	corsOrigins := os.Getenv("WORKSHEET_CORS_ORIGINS")
	uploadRate := envFloat("WORKSHEET_UPLOAD_RATE", 2)

	engine, err := worksheet.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	retention, err := startRetention(engine, cfg.RetentionDays, os.Getenv("WORKSHEET_RETENTION_SCHEDULE"))
	if err != nil {
		slog.Error("starting retention job", "error", err)
		os.Exit(1)
	}

	mux := newMux(newHandler(engine))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	// Middleware chain: recovery -> cors -> auth -> rate limit -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = rateLimitMiddleware(uploadRate, handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if retention != nil {
		<-retention.Stop().Done()
	}

	slog.Info("server stopped")
}

func newMux(h *handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /extract", h.handleExtract)
	mux.HandleFunc("GET /extractions", h.handleListExtractions)
	mux.HandleFunc("GET /extractions/{id}", h.handleGetExtraction)
	mux.HandleFunc("DELETE /extractions/{id}", h.handleDeleteExtraction)
	mux.HandleFunc("GET /extractions/{id}/export", h.handleExport)
	mux.HandleFunc("GET /records/search", h.handleSearch)
	mux.HandleFunc("GET /records/similar", h.handleSimilar)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

// applyEnv overrides config fields from environment variables.
func applyEnv(cfg *worksheet.Config) {
	if v := os.Getenv("WORKSHEET_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("WORKSHEET_STORAGE_DIR"); v != "" {
		cfg.StorageDir = v
	}
	if v := os.Getenv("WORKSHEET_DISABLE_STORE"); v != "" {
		cfg.DisableStore, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("WORKSHEET_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetentionDays = n
		} else {
			slog.Warn("ignoring WORKSHEET_RETENTION_DAYS", "value", v, "error", err)
		}
	}
	if v := os.Getenv("WORKSHEET_ROW_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RowTolerance = f
		} else {
			slog.Warn("ignoring WORKSHEET_ROW_TOLERANCE", "value", v, "error", err)
		}
	}
	if v := os.Getenv("WORKSHEET_SCRAP_SCOPE"); v != "" {
		cfg.Policy.ScrapScope = record.ScrapScope(strings.ToLower(strings.TrimSpace(v)))
	}
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring invalid number", "key", key, "value", v)
		return fallback
	}
	return f
}
