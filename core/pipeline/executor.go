package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"audioscribe/logger"
	"audioscribe/model"
	"audioscribe/store"
)

// Lister is the upstream collaborator that knows every item.
type Lister interface {
	ListItems(ctx context.Context) ([]model.Item, error)
}

// MediaFetcher downloads one item's media object to a local path.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, item model.Item, destPath string) error
}

// AudioExtractor converts downloaded media to the audio encoding the
// recognition service expects and returns the audio file path.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, mediaPath string) (string, error)
}

// AudioPublisher makes an extracted audio file reachable by URL for the
// recognition service.
type AudioPublisher interface {
	PublishAudio(ctx context.Context, id, audioPath string) (string, error)
}

// Recognizer turns an audio URL into a transcript.
type Recognizer interface {
	Transcribe(ctx context.Context, audioURL string) (*model.TranscriptResult, error)
}

// DurationProber is implemented by extractors that can measure a file's audio
// length. When the recognition service reports no duration, the executor falls
// back to probing the local audio file.
type DurationProber interface {
	ProbeDuration(ctx context.Context, audioPath string) (float64, error)
}

// Notifier receives progress events during a run. Implementations must not
// block; a nil Notifier disables notifications.
type Notifier interface {
	RunStarted(runID string, counts model.AsyncSummary)
	ItemState(itemID string, state model.State, errCode string)
	RunFinished(runID string, summary model.RunSummary, runErr error)
}

// Executor drives one item through the four pipeline stages: fetch media,
// extract audio, recognize, persist. It owns every status transition for the
// item. The transcript is persisted before the completed status, so any
// reader that observes completed can fetch the result.
type Executor struct {
	fetcher    MediaFetcher
	extractor  AudioExtractor
	publisher  AudioPublisher
	recognizer Recognizer
	status     *store.StatusStore
	results    *store.ResultStore
	tempDir    string
	notifier   Notifier
}

// NewExecutor wires the stage collaborators. notifier may be nil.
func NewExecutor(
	fetcher MediaFetcher,
	extractor AudioExtractor,
	publisher AudioPublisher,
	recognizer Recognizer,
	status *store.StatusStore,
	results *store.ResultStore,
	tempDir string,
	notifier Notifier,
) *Executor {
	return &Executor{
		fetcher:    fetcher,
		extractor:  extractor,
		publisher:  publisher,
		recognizer: recognizer,
		status:     status,
		results:    results,
		tempDir:    tempDir,
		notifier:   notifier,
	}
}

// Process runs item through all stages once. It returns nil on success, a
// *StageError with Fatal unset when the item failed but the run may continue,
// and any other error (including fatal stage errors) when the run must abort.
// On a fatal stage failure the item is reverted to pending, best effort, so
// it stays eligible for the next run.
func (e *Executor) Process(ctx context.Context, item model.Item) error {
	start := time.Now()
	logger.Info("processing item", logger.String("id", item.ID))

	if err := e.status.Upsert(item.ID, model.StateProcessing, ""); err != nil {
		return fmt.Errorf("persist processing state for %s: %w", item.ID, err)
	}
	e.notifyState(item.ID, model.StateProcessing, "")

	transcript, stageErr := e.runStages(ctx, item)
	if stageErr == nil {
		// Result before status: readers who see completed must find the
		// transcript.
		if err := e.results.Put(item.ID, transcript); err != nil {
			stageErr = newStageError(CodeResultWriteFailed, err)
		}
	}

	if stageErr != nil {
		if stageErr.Fatal {
			if err := e.status.Upsert(item.ID, model.StatePending, ""); err != nil {
				logger.Error("could not revert item to pending",
					logger.String("id", item.ID), logger.ErrorField(err))
			}
			e.notifyState(item.ID, model.StatePending, "")
			return stageErr
		}

		logger.Warn("item failed",
			logger.String("id", item.ID),
			logger.String("code", stageErr.Code),
			logger.ErrorField(stageErr.Err))
		if err := e.status.Upsert(item.ID, model.StateFailed, stageErr.Code); err != nil {
			return fmt.Errorf("persist failed state for %s: %w", item.ID, err)
		}
		e.notifyState(item.ID, model.StateFailed, stageErr.Code)
		return stageErr
	}

	if err := e.status.Upsert(item.ID, model.StateCompleted, ""); err != nil {
		return fmt.Errorf("persist completed state for %s: %w", item.ID, err)
	}
	e.notifyState(item.ID, model.StateCompleted, "")

	logger.Info("item completed",
		logger.String("id", item.ID),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// runStages executes stages 1-3 and returns the transcript. Temporary media
// and audio files are removed before returning.
func (e *Executor) runStages(ctx context.Context, item model.Item) (*model.TranscriptResult, *StageError) {
	ext := path.Ext(item.MediaObject)
	if ext == "" {
		ext = ".bin"
	}
	mediaPath := filepath.Join(e.tempDir, item.ID+ext)
	defer os.Remove(mediaPath)

	if err := e.fetcher.FetchMedia(ctx, item, mediaPath); err != nil {
		return nil, newStageError(CodeDownloadFailed, err)
	}

	audioPath, err := e.extractor.ExtractAudio(ctx, mediaPath)
	if err != nil {
		return nil, newStageError(CodeAudioExtractFailed, err)
	}
	defer os.Remove(audioPath)

	audioURL, err := e.publisher.PublishAudio(ctx, item.ID, audioPath)
	if err != nil {
		return nil, newStageError(CodeAudioUploadFailed, err)
	}

	transcript, err := e.recognizer.Transcribe(ctx, audioURL)
	if err != nil {
		return nil, newStageError(CodeASRFailed, err)
	}
	transcript.ItemID = item.ID

	if transcript.AudioDuration == 0 {
		if prober, ok := e.extractor.(DurationProber); ok {
			if dur, probeErr := prober.ProbeDuration(ctx, audioPath); probeErr == nil {
				transcript.AudioDuration = dur
			} else {
				logger.Warn("probe audio duration",
					logger.String("id", item.ID), logger.ErrorField(probeErr))
			}
		}
	}
	return transcript, nil
}

func (e *Executor) notifyState(itemID string, state model.State, errCode string) {
	if e.notifier != nil {
		e.notifier.ItemState(itemID, state, errCode)
	}
}
