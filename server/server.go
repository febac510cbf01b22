package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"audioscribe/config"
	"audioscribe/core/asr"
	"audioscribe/core/audio"
	"audioscribe/core/pipeline"
	"audioscribe/logger"
	"audioscribe/storage"
	"audioscribe/store"
)

// Start initializes all components and runs the HTTP server until SIGINT or
// SIGTERM.
func Start() {
	cfg := config.Load()

	logger.Init(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	})
	defer logger.Sync()

	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		logger.Fatal("create temp directory", logger.ErrorField(err))
	}

	statusStore, err := store.NewStatusStore(cfg.StatusFile)
	if err != nil {
		logger.Fatal("open status store", logger.ErrorField(err))
	}
	defer statusStore.Close()
	if err := statusStore.Watch(); err != nil {
		logger.Warn("status document watch disabled", logger.ErrorField(err))
	}

	resultStore, err := store.NewResultStore(cfg.ResultDir)
	if err != nil {
		logger.Fatal("open result store", logger.ErrorField(err))
	}

	mediaStore, err := storage.NewMediaStore(cfg)
	if err != nil {
		logger.Fatal("connect media store", logger.ErrorField(err))
	}

	extractor := audio.NewFFmpegExtractor(cfg.FFmpegPath, cfg.SampleRate, cfg.Channels)
	recognizer := asr.NewClient(cfg.ASRBaseURL, cfg.ASRAPIKey, cfg.ASRModel, cfg.ASRPollInterval, cfg.ASRMaxWait)

	hub := NewProgressHub()
	exec := pipeline.NewExecutor(mediaStore, extractor, mediaStore, recognizer,
		statusStore, resultStore, cfg.TempDir, hub)
	orch := pipeline.NewOrchestrator(mediaStore, exec, statusStore, hub)

	apiHandler := NewAPIHandler(orch, statusStore, resultStore, mediaStore)

	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 批处理触发
	router.HandleFunc("/process", apiHandler.ProcessHandler).Methods(http.MethodPost)
	router.HandleFunc("/process/async", apiHandler.ProcessAsyncHandler).Methods(http.MethodPost)

	// 查询接口
	router.HandleFunc("/items", apiHandler.ListItemsHandler).Methods(http.MethodGet)
	router.HandleFunc("/items/{id}", apiHandler.ItemDetailHandler).Methods(http.MethodGet)
	router.HandleFunc("/items/{id}/result", apiHandler.ItemResultHandler).Methods(http.MethodGet)
	router.HandleFunc("/stats", apiHandler.StatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/health", apiHandler.HealthHandler).Methods(http.MethodGet)

	// 进度推送
	router.HandleFunc("/ws/progress", hub.HandleWS)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// A synchronous /process blocks for the whole run, so the response
		// deadline cannot be bounded here.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", logger.ErrorField(err))
	}
	logger.Info("server stopped")
}
