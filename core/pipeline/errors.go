package pipeline

import (
	"errors"
	"fmt"
	"syscall"
)

// Stage error codes. These are opaque strings surfaced verbatim in the item
// status document and in API responses.
const (
	CodeDownloadFailed     = "DOWNLOAD_FAILED"
	CodeAudioExtractFailed = "AUDIO_EXTRACT_FAILED"
	CodeAudioUploadFailed  = "AUDIO_UPLOAD_FAILED"
	CodeASRFailed          = "ASR_FAILED"
	CodeResultWriteFailed  = "RESULT_WRITE_FAILED"
)

// ErrRunInProgress is returned when a trigger arrives while a run holds the
// single-flight guard.
var ErrRunInProgress = errors.New("a processing run is already in progress")

// ErrUpstreamUnavailable wraps listing failures: the run aborted before any
// state was touched.
var ErrUpstreamUnavailable = errors.New("upstream listing unavailable")

// StageError is a classified failure of one pipeline stage for one item.
// Fatal marks conditions that must abort the whole run instead of just
// failing the item; today that is only disk exhaustion.
type StageError struct {
	Code  string
	Fatal bool
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func newStageError(code string, err error) *StageError {
	return &StageError{Code: code, Err: err, Fatal: isDiskFull(err)}
}

func isDiskFull(err error) bool {
	return errors.Is(err, syscall.ENOSPC)
}
