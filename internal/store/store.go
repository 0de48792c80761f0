// Package store keeps an audit log of emitted diagnoses. Conversation sessions
// are never persisted.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Sources of a diagnosis.
const (
	SourceDialogue = "dialogue"
	SourceQuick    = "quick"
	SourceSymptoms = "symptoms"
	SourceModel    = "model"
)

// Record is one emitted diagnosis.
type Record struct {
	ID        uuid.UUID
	Source    string
	UserID    string
	Symptoms  []string
	Disease   string
	Language  string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// NewRecord fills in an ID and timestamp. payload is marshaled to JSON; a
// value that cannot be marshaled is stored as null.
func NewRecord(source, userID string, symptoms []string, disease, language string, payload any) Record {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	if symptoms == nil {
		symptoms = []string{}
	}
	return Record{
		ID:        uuid.New(),
		Source:    source,
		UserID:    userID,
		Symptoms:  symptoms,
		Disease:   disease,
		Language:  language,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
}

// Recorder persists diagnosis records.
type Recorder interface {
	Record(ctx context.Context, r Record) error
}

// Nop discards records.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Record) error { return nil }
