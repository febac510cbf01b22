package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"audioscribe/logger"
	"audioscribe/model"
)

// ErrTaskFailed is returned when the recognition service reports a task as
// failed or the task does not finish within the configured wait budget.
var ErrTaskFailed = errors.New("recognition task failed")

// Client talks to the asynchronous speech-recognition HTTP service. The
// service pulls audio from a URL we hand it: submit a transcription task,
// poll the task until it settles, then fetch the transcript document the
// task points at.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	pollInterval time.Duration
	maxWait      time.Duration
	httpClient   *http.Client
}

// NewClient creates a recognition client. baseURL is the API root, without a
// trailing slash.
func NewClient(baseURL, apiKey, model string, pollInterval, maxWait time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		model:        model,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

type submitResponse struct {
	Output struct {
		TaskID string `json:"task_id"`
	} `json:"output"`
}

type taskResponse struct {
	Output struct {
		TaskStatus string `json:"task_status"`
		Results    []struct {
			TranscriptionURL string `json:"transcription_url"`
		} `json:"results"`
	} `json:"output"`
}

type transcriptionDocument struct {
	Transcripts []struct {
		Text      string `json:"text"`
		Sentences []struct {
			BeginTime int64  `json:"begin_time"` // milliseconds
			EndTime   int64  `json:"end_time"`   // milliseconds
			Text      string `json:"text"`
			Words     []struct {
				PunctuationProbability *float64 `json:"punctuation_probability"`
			} `json:"words"`
		} `json:"sentences"`
	} `json:"transcripts"`
	Properties struct {
		OriginalDurationMs int64 `json:"original_duration_in_milliseconds"`
	} `json:"properties"`
}

// Transcribe runs one audio URL through the service and returns the parsed
// transcript.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (*model.TranscriptResult, error) {
	taskID, err := c.submitTask(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	logger.Info("recognition task submitted", logger.String("taskId", taskID))

	transcriptionURL, err := c.waitForResult(ctx, taskID)
	if err != nil {
		return nil, err
	}

	doc, err := c.fetchTranscription(ctx, transcriptionURL)
	if err != nil {
		return nil, err
	}
	return parseTranscription(doc), nil
}

func (c *Client) submitTask(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"input": map[string]any{
			"file_urls": []string{audioURL},
		},
		"parameters": map[string]any{
			"channel_id": []int{0},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/services/audio/asr/transcription", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DashScope-Async", "enable")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit recognition task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("submit recognition task: HTTP %d: %s", resp.StatusCode, data)
	}

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse submit response: %w", err)
	}
	if parsed.Output.TaskID == "" {
		return "", fmt.Errorf("%w: no task id in submit response", ErrTaskFailed)
	}
	return parsed.Output.TaskID, nil
}

// waitForResult polls the task until it succeeds, fails, or the wait budget
// runs out. It returns the transcript document URL of the first result.
func (c *Client) waitForResult(ctx context.Context, taskID string) (string, error) {
	deadline := time.Now().Add(c.maxWait)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: task %s did not finish within %s", ErrTaskFailed, taskID, c.maxWait)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/tasks/"+taskID, nil)
		if err != nil {
			return "", fmt.Errorf("build poll request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("poll task %s: %w", taskID, err)
		}

		var parsed taskResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("poll task %s: HTTP %d", taskID, resp.StatusCode)
		}
		if decodeErr != nil {
			return "", fmt.Errorf("parse poll response: %w", decodeErr)
		}

		switch parsed.Output.TaskStatus {
		case "SUCCEEDED":
			if len(parsed.Output.Results) == 0 || parsed.Output.Results[0].TranscriptionURL == "" {
				return "", fmt.Errorf("%w: task %s succeeded without a transcript", ErrTaskFailed, taskID)
			}
			return parsed.Output.Results[0].TranscriptionURL, nil
		case "FAILED":
			return "", fmt.Errorf("%w: task %s", ErrTaskFailed, taskID)
		default:
			logger.Debug("recognition task still running",
				logger.String("taskId", taskID),
				logger.String("status", parsed.Output.TaskStatus))
		}
	}
}

func (c *Client) fetchTranscription(ctx context.Context, url string) (*transcriptionDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build transcript request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch transcript: HTTP %d", resp.StatusCode)
	}

	var doc transcriptionDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse transcript document: %w", err)
	}
	return &doc, nil
}

// parseTranscription flattens the service's document into our model. Segment
// confidence is the mean word punctuation probability, the only per-word
// quality signal the service exposes; overall confidence is the mean over
// segments.
func parseTranscription(doc *transcriptionDocument) *model.TranscriptResult {
	result := &model.TranscriptResult{
		Segments:      []model.TranscriptSegment{},
		AudioDuration: float64(doc.Properties.OriginalDurationMs) / 1000.0,
	}

	if len(doc.Transcripts) == 0 {
		return result
	}

	first := doc.Transcripts[0]
	result.Text = first.Text

	for _, sentence := range first.Sentences {
		confidence := 0.0
		if len(sentence.Words) > 0 {
			sum := 0.0
			for _, w := range sentence.Words {
				if w.PunctuationProbability != nil {
					sum += *w.PunctuationProbability
				} else {
					sum += 0.5
				}
			}
			confidence = sum / float64(len(sentence.Words))
		}

		result.Segments = append(result.Segments, model.TranscriptSegment{
			Start:      float64(sentence.BeginTime) / 1000.0,
			End:        float64(sentence.EndTime) / 1000.0,
			Text:       sentence.Text,
			Confidence: clamp01(confidence),
		})
	}

	sort.SliceStable(result.Segments, func(i, j int) bool {
		return result.Segments[i].Start < result.Segments[j].Start
	})

	if len(result.Segments) > 0 {
		sum := 0.0
		for _, seg := range result.Segments {
			sum += seg.Confidence
		}
		result.Confidence = clamp01(sum / float64(len(result.Segments)))
	}
	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
