// Package voiceline holds the materialized voice lines and answers exact
// lookups against their canonical text.
package voiceline

import "errors"

// ErrEmptyCanonical is returned when an item without canonical text is
// offered for insertion. Such an item could never be matched.
var ErrEmptyCanonical = errors.New("voiceline: empty canonical text")

// Response is one stored voice line.
type Response struct {
	ID            int    `json:"id"`
	CanonicalText string `json:"canonical_text"`
	OriginalText  string `json:"original_text"`
	AudioURL      string `json:"audio_url"`
	OwnerID       int    `json:"owner_id"`
}

// Owner is the character that speaks a set of responses.
type Owner struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	ImagePath string `json:"image_path"`
}

// Item is a response waiting to be inserted. It gets its id and owner on
// insertion.
type Item struct {
	OriginalText  string
	CanonicalText string
	AudioURL      string
}

// Snapshot is the full content of a [Store], used to persist it between
// runs.
type Snapshot struct {
	Version   string            `json:"version"`
	Owners    []Owner           `json:"owners"`
	Responses []Response        `json:"responses"`
	Icons     map[string]string `json:"icons"`
}
