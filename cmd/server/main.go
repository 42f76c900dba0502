// Command server boots the counsel backend: configuration, logging, tracing,
// SQLite storage, the document index, provider clients, and the HTTP server,
// then shuts everything down in order on SIGINT/SIGTERM.
package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/lexstream/go-counsel-backend/internal/citations"
	"github.com/lexstream/go-counsel-backend/internal/classify"
	"github.com/lexstream/go-counsel-backend/internal/config"
	httpapi "github.com/lexstream/go-counsel-backend/internal/http"
	"github.com/lexstream/go-counsel-backend/internal/llm"
	"github.com/lexstream/go-counsel-backend/internal/observability"
	"github.com/lexstream/go-counsel-backend/internal/repo"
	"github.com/lexstream/go-counsel-backend/internal/research"
	"github.com/lexstream/go-counsel-backend/internal/respond"
	"github.com/lexstream/go-counsel-backend/internal/search"
	"github.com/lexstream/go-counsel-backend/internal/services"
	"github.com/lexstream/go-counsel-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=v1.2.3".
var version = "dev"

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogging(cfg)

	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting counsel backend")
	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("AUTH_JWT_SECRET is empty: API trusts the X-User-ID header (dev mode)")
	}

	ctx := context.Background()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}
	if cfg.OTEL.Enabled {
		// Span per query, attached to the provider SetupOTel installed.
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Fatal().Err(err).Msg("database tracing setup failed")
		}
	}

	docs, err := repo.ListAllDocuments(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("load documents failed")
	}
	idx := search.NewDocumentIndex(docs)
	log.Info().Int("documents", len(docs)).Msg("document index built")

	llmc := llm.New(llm.Options{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		FastModel:    cfg.LLM.FastModel,
		CapableModel: cfg.LLM.CapableModel,
		Timeout:      cfg.LLM.Timeout,
	}, log.Logger)
	researcher := research.New(research.Options{
		BaseURL: cfg.Research.BaseURL,
		APIKey:  cfg.Research.APIKey,
		Model:   cfg.Research.Model,
		Timeout: cfg.Research.Timeout,
	}, log.Logger)

	classifier := classify.New(llmc, cfg.LLM.FastModel, log.Logger)
	responder := respond.New(llmc, researcher, cfg.LLM.FastModel, cfg.LLM.CapableModel, log.Logger)

	verify := services.NewVerifyService(db, citations.NewVerifier(researcher, log.Logger), log.Logger, cfg.VerifyQueueDepth)
	verify.MaxChecks = cfg.VerifyMaxChecks

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, idx, httpapi.Services{
		Classifier: classifier,
		Responder:  responder,
		Verifier:   verify,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	// Queued verification notes still land in the database before exit.
	verify.Close()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown failed")
	}
	log.Info().Msg("server exited")
}

// setupLogging configures the global zerolog logger: level from config,
// pretty console output for development, and an optional file sink appended
// alongside stderr.
func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	sysutil.SetLogLevel(cfg.LogLevel)

	var w io.Writer = os.Stderr
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.LogFile).Msg("log file unavailable, logging to stderr only")
		} else {
			w = zerolog.MultiLevelWriter(w, f)
		}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}
