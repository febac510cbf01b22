package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"audioscribe/config"
	"audioscribe/core/asr"
	"audioscribe/core/audio"
	"audioscribe/core/pipeline"
	"audioscribe/logger"
	"audioscribe/storage"
	"audioscribe/store"
)

// processCmd runs one synchronous batch over every pending item and exits.
// Useful from cron or for operator-driven reprocessing without the server.
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "处理所有待转写的媒体后退出",
	Run: func(cmd *cobra.Command, args []string) {
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

		exec := pipeline.NewExecutor(mediaStore, extractor, mediaStore, recognizer,
			statusStore, resultStore, cfg.TempDir, nil)
		orch := pipeline.NewOrchestrator(mediaStore, exec, statusStore, nil)

		summary, err := orch.Run(context.Background())
		if err != nil {
			logger.Error("batch run failed", logger.ErrorField(err))
			os.Exit(1)
		}

		fmt.Printf("total=%d processed=%d success=%d failed=%d\n",
			summary.Total, summary.Processed, summary.Success, summary.Failed)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
