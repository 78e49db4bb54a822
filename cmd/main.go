package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"support-agent/handler"
	"support-agent/internal/config"
	"support-agent/internal/delivery"
	"support-agent/internal/integrations/gemini"
	"support-agent/internal/integrations/huggingface"
	"support-agent/internal/integrations/messenger"
	"support-agent/internal/integrations/qdrant"
	"support-agent/internal/repository"
	"support-agent/internal/retrieval"
	"support-agent/internal/usecase"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	// ---- Configuration (read only here) ----
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on process environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	// ---- Storage ----
	store, err := repository.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Error("failed to open history store", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	page, err := messenger.NewClient(cfg.PageID, cfg.AccessToken, cfg.GraphAPIVersion)
	if err != nil {
		logger.Error("failed to create messenger client", "err", err)
		os.Exit(1)
	}

	embedder, err := huggingface.NewClient(cfg.HuggingFaceKey, cfg.EmbeddingModel)
	if err != nil {
		logger.Error("failed to create embedding client", "err", err)
		os.Exit(1)
	}
	searcher, err := qdrant.NewClient(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection)
	if err != nil {
		logger.Error("failed to create vector search client", "err", err)
		os.Exit(1)
	}
	retriever, err := retrieval.New(embedder, searcher, cfg.RetrievalK)
	if err != nil {
		logger.Error("failed to create retriever", "err", err)
		os.Exit(1)
	}

	reasoner, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel,
		gemini.WithTimeout(cfg.EventTimeout))
	if err != nil {
		logger.Error("failed to create reasoning client", "err", err)
		os.Exit(1)
	}

	// ---- Wiring ----
	orchestrator, err := usecase.NewOrchestrator(store, reasoner, retriever.Retrieve, cfg.HistoryWindow, logger)
	if err != nil {
		logger.Error("failed to create orchestrator", "err", err)
		os.Exit(1)
	}
	coordinator, err := delivery.NewCoordinator(page, cfg.HandoverAppID, cfg.ReplyDelay, logger)
	if err != nil {
		logger.Error("failed to create delivery coordinator", "err", err)
		os.Exit(1)
	}
	h, err := handler.New(orchestrator, coordinator, store, handler.Config{
		PageID:         cfg.PageID,
		VerifyToken:    cfg.VerifyToken,
		ModeratorAppID: cfg.ModeratorAppID,
		WakePhrase:     cfg.WakePhrase,
		EventTimeout:   cfg.EventTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to create webhook handler", "err", err)
		os.Exit(1)
	}

	// ---- HTTP server ----
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	h.Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("webhook listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
		os.Exit(1)
	}
}
