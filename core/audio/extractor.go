package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"audioscribe/logger"
)

// FFmpegExtractor pulls the audio track out of a media file as PCM WAV in
// the sample rate and channel layout the recognition service expects.
type FFmpegExtractor struct {
	ffmpegPath string
	sampleRate int
	channels   int
}

// NewFFmpegExtractor creates an extractor using the given ffmpeg binary.
// ffprobe is expected alongside it.
func NewFFmpegExtractor(ffmpegPath string, sampleRate, channels int) *FFmpegExtractor {
	return &FFmpegExtractor{
		ffmpegPath: ffmpegPath,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// ExtractAudio converts mediaPath to a WAV file next to it (same base name)
// and returns the output path. A partial output file is removed on failure.
func (e *FFmpegExtractor) ExtractAudio(ctx context.Context, mediaPath string) (string, error) {
	if _, err := os.Stat(mediaPath); err != nil {
		return "", fmt.Errorf("media file not readable: %w", err)
	}

	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	outputPath := base + ".wav"

	args := []string{
		"-y",
		"-i", mediaPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(e.sampleRate),
		"-ac", strconv.Itoa(e.channels),
		outputPath,
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("running ffmpeg",
		logger.String("input", mediaPath),
		logger.String("output", outputPath))

	if err := cmd.Run(); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg failed for %s: %w\n%s", mediaPath, err, stderr.String())
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("ffmpeg produced no output for %s: %w", mediaPath, err)
	}
	return outputPath, nil
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeDuration uses ffprobe to read the duration of an audio file in seconds.
func (e *FFmpegExtractor) ProbeDuration(ctx context.Context, inputFile string) (float64, error) {
	ffprobePath := strings.Replace(e.ffmpegPath, "ffmpeg", "ffprobe", 1)

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, ffprobePath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w\n%s", inputFile, err, stderr.String())
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}

	duration, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probeData.Format.Duration, err)
	}
	return duration, nil
}
