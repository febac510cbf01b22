package asr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestService(t *testing.T, taskStatus string) *httptest.Server {
	t.Helper()

	var polls atomic.Int32
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/services/audio/asr/transcription", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("submit method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-DashScope-Async"); got != "enable" {
			t.Errorf("X-DashScope-Async = %q", got)
		}

		var body struct {
			Model string `json:"model"`
			Input struct {
				FileURLs []string `json:"file_urls"`
			} `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode submit body: %v", err)
		}
		if body.Model != "fun-asr" || len(body.Input.FileURLs) != 1 {
			t.Errorf("submit body = %+v", body)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{"task_id": "task-42"},
		})
	})

	mux.HandleFunc("/tasks/task-42", func(w http.ResponseWriter, r *http.Request) {
		// First poll still running, then the final status.
		status := taskStatus
		if polls.Add(1) == 1 {
			status = "RUNNING"
		}
		out := map[string]any{"task_status": status}
		if status == "SUCCEEDED" {
			out["results"] = []map[string]any{
				{"transcription_url": server.URL + "/transcripts/task-42.json"},
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"output": out})
	})

	mux.HandleFunc("/transcripts/task-42.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"transcripts": []map[string]any{
				{
					"text": "hello world",
					"sentences": []map[string]any{
						{
							"begin_time": 0,
							"end_time":   1500,
							"text":       "hello",
							"words": []map[string]any{
								{"punctuation_probability": 0.8},
								{"punctuation_probability": 1.0},
							},
						},
						{
							"begin_time": 1500,
							"end_time":   2600,
							"text":       "world",
							"words":      []map[string]any{},
						},
					},
				},
			},
			"properties": map[string]any{
				"original_duration_in_milliseconds": 2600,
			},
		})
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestTranscribeSuccess(t *testing.T) {
	service := newTestService(t, "SUCCEEDED")
	client := NewClient(service.URL, "test-key", "fun-asr", 10*time.Millisecond, 2*time.Second)

	result, err := client.Transcribe(context.Background(), "http://media.test/audio/a.wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	if result.Text != "hello world" {
		t.Fatalf("text = %q", result.Text)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(result.Segments))
	}
	first := result.Segments[0]
	if first.Start != 0 || first.End != 1.5 || first.Text != "hello" {
		t.Fatalf("first segment = %+v", first)
	}
	if first.Confidence != 0.9 {
		t.Fatalf("first segment confidence = %v, want mean word probability 0.9", first.Confidence)
	}
	if second := result.Segments[1]; second.Confidence != 0 {
		t.Fatalf("second segment confidence = %v, want 0 without words", second.Confidence)
	}
	if result.AudioDuration != 2.6 {
		t.Fatalf("duration = %v, want 2.6", result.AudioDuration)
	}
	if result.Confidence <= 0 || result.Confidence > 1 {
		t.Fatalf("overall confidence = %v, want in (0,1]", result.Confidence)
	}
}

func TestTranscribeTaskFailed(t *testing.T) {
	service := newTestService(t, "FAILED")
	client := NewClient(service.URL, "test-key", "fun-asr", 10*time.Millisecond, 2*time.Second)

	_, err := client.Transcribe(context.Background(), "http://media.test/audio/a.wav")
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("error = %v, want ErrTaskFailed", err)
	}
}

func TestTranscribeTimesOut(t *testing.T) {
	service := newTestService(t, "RUNNING")
	client := NewClient(service.URL, "test-key", "fun-asr", 5*time.Millisecond, 30*time.Millisecond)

	_, err := client.Transcribe(context.Background(), "http://media.test/audio/a.wav")
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("error = %v, want ErrTaskFailed after wait budget", err)
	}
}

func TestTranscribeSubmitRejected(t *testing.T) {
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer service.Close()

	client := NewClient(service.URL, "wrong-key", "fun-asr", 10*time.Millisecond, time.Second)
	if _, err := client.Transcribe(context.Background(), "http://media.test/a.wav"); err == nil {
		t.Fatal("expected submit error")
	}
}
