package model

import "time"

// State is the processing state of a single item.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateCompleted, StateFailed:
		return true
	}
	return false
}

// StatusEntry records the processing state of one item.
// CreatedAt is set the first time the item is seen and never changes.
// Error is only set while State is failed.
type StatusEntry struct {
	State     State     `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Error     string    `json:"error,omitempty"`
}

// StatusCollection is the full status document persisted to disk.
// It is always written as one complete snapshot.
type StatusCollection struct {
	LastUpdated time.Time              `json:"lastUpdated"`
	Items       map[string]StatusEntry `json:"items"`
}

// NewStatusCollection returns an empty collection ready for use.
func NewStatusCollection() StatusCollection {
	return StatusCollection{
		LastUpdated: time.Now(),
		Items:       make(map[string]StatusEntry),
	}
}

// Clone returns a deep copy so callers can read without holding store locks.
func (c StatusCollection) Clone() StatusCollection {
	out := StatusCollection{
		LastUpdated: c.LastUpdated,
		Items:       make(map[string]StatusEntry, len(c.Items)),
	}
	for id, entry := range c.Items {
		out.Items[id] = entry
	}
	return out
}
