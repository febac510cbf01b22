package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"audioscribe/model"
	"audioscribe/store"
)

type fakeLister struct {
	items []model.Item
	err   error
}

func (f *fakeLister) ListItems(ctx context.Context) ([]model.Item, error) {
	return f.items, f.err
}

type fakeFetcher struct {
	err error
}

func (f *fakeFetcher) FetchMedia(ctx context.Context, item model.Item, destPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(destPath, []byte("media"), 0644)
}

type fakeExtractor struct {
	err      error
	probeDur float64
}

func (f *fakeExtractor) ExtractAudio(ctx context.Context, mediaPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	audioPath := mediaPath + ".wav"
	if err := os.WriteFile(audioPath, []byte("audio"), 0644); err != nil {
		return "", err
	}
	return audioPath, nil
}

func (f *fakeExtractor) ProbeDuration(ctx context.Context, audioPath string) (float64, error) {
	return f.probeDur, nil
}

type fakePublisher struct {
	err error
}

func (f *fakePublisher) PublishAudio(ctx context.Context, id, audioPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "http://media.test/audio/" + id + ".wav", nil
}

type fakeRecognizer struct {
	mu        sync.Mutex
	calls     int
	err       error
	errOnCall int // fail only the n-th call; 0 means f.err applies to every call
	block     chan struct{}
	result    *model.TranscriptResult // optional override of the canned transcript
}

func (f *fakeRecognizer) Transcribe(ctx context.Context, audioURL string) (*model.TranscriptResult, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if f.err != nil && (f.errOnCall == 0 || f.errOnCall == n) {
		return nil, f.err
	}
	if f.result != nil {
		r := *f.result
		return &r, nil
	}
	return &model.TranscriptResult{
		Text:          "recognized text",
		Segments:      []model.TranscriptSegment{{Start: 0, End: 1, Text: "recognized text", Confidence: 0.9}},
		Confidence:    0.9,
		AudioDuration: 1,
	}, nil
}

func (f *fakeRecognizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	status     *store.StatusStore
	results    *store.ResultStore
	lister     *fakeLister
	fetcher    *fakeFetcher
	extractor  *fakeExtractor
	publisher  *fakePublisher
	recognizer *fakeRecognizer
	exec       *Executor
	orch       *Orchestrator
}

func newTestEnv(t *testing.T, items ...model.Item) *testEnv {
	t.Helper()

	dir := t.TempDir()
	status, err := store.NewStatusStore(filepath.Join(dir, "status.json"))
	if err != nil {
		t.Fatalf("status store: %v", err)
	}
	results, err := store.NewResultStore(filepath.Join(dir, "output"))
	if err != nil {
		t.Fatalf("result store: %v", err)
	}
	tempDir := filepath.Join(dir, "temp")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		t.Fatalf("temp dir: %v", err)
	}

	env := &testEnv{
		status:     status,
		results:    results,
		lister:     &fakeLister{items: items},
		fetcher:    &fakeFetcher{},
		extractor:  &fakeExtractor{},
		publisher:  &fakePublisher{},
		recognizer: &fakeRecognizer{},
	}
	env.exec = NewExecutor(env.fetcher, env.extractor, env.publisher, env.recognizer,
		status, results, tempDir, nil)
	env.orch = NewOrchestrator(env.lister, env.exec, status, nil)
	return env
}

func item(id string) model.Item {
	return model.Item{ID: id, Title: id, MediaObject: "videos/" + id + ".mp4"}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
