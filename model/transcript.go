package model

// TranscriptSegment is one time-bounded span of recognized speech.
// Offsets are seconds from the start of the audio, Start <= End.
type TranscriptSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TranscriptResult is the full recognition output for one item. It is written
// exactly once, when the item completes, and is immutable afterwards.
type TranscriptResult struct {
	ItemID        string              `json:"itemId"`
	Text          string              `json:"text"`
	Segments      []TranscriptSegment `json:"segments"`
	Confidence    float64             `json:"confidence"`    // overall, in [0,1]
	AudioDuration float64             `json:"audioDuration"` // seconds
}
