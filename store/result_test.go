package store

import (
	"errors"
	"testing"

	"audioscribe/model"
)

func TestResultRoundTrip(t *testing.T) {
	s, err := NewResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewResultStore: %v", err)
	}

	want := &model.TranscriptResult{
		ItemID: "item-1",
		Text:   "hello world",
		Segments: []model.TranscriptSegment{
			{Start: 0, End: 1.5, Text: "hello", Confidence: 0.9},
			{Start: 1.5, End: 2.5, Text: "world", Confidence: 0.8},
		},
		Confidence:    0.85,
		AudioDuration: 2.5,
	}

	if err := s.Put("item-1", want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := s.Get("item-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected stored transcript")
	}
	if got.Text != want.Text || len(got.Segments) != 2 || got.AudioDuration != 2.5 {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	// Idempotent retry with identical content.
	if err := s.Put("item-1", want); err != nil {
		t.Fatalf("repeat put: %v", err)
	}
}

func TestResultAbsent(t *testing.T) {
	s, err := NewResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewResultStore: %v", err)
	}

	_, ok, err := s.Get("never-seen")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected absence, got a transcript")
	}
}

func TestResultRejectsBadIdentifiers(t *testing.T) {
	s, err := NewResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewResultStore: %v", err)
	}

	for _, id := range []string{"", "a/b", `a\b`, "../escape"} {
		if err := s.Put(id, &model.TranscriptResult{}); !errors.Is(err, ErrBadItemID) {
			t.Errorf("Put(%q) error = %v, want ErrBadItemID", id, err)
		}
		if _, _, err := s.Get(id); !errors.Is(err, ErrBadItemID) {
			t.Errorf("Get(%q) error = %v, want ErrBadItemID", id, err)
		}
	}
}
