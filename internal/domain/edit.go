package domain

import (
	"time"
)

// EditOutcome represents how a committed edit resolved
type EditOutcome string

const (
	EditOutcomeSucceeded EditOutcome = "succeeded"
	EditOutcomeDegraded  EditOutcome = "degraded"
	EditOutcomeFailed    EditOutcome = "failed"
)

// EditRecord is one committed edit pass of an editor session
type EditRecord struct {
	ID        string `json:"id" dynamodbav:"id"`
	SessionID string `json:"session_id" dynamodbav:"session_id"`
	UserID    string `json:"user_id,omitempty" dynamodbav:"user_id,omitempty"`

	// Recipe
	Mode   string            `json:"mode" dynamodbav:"mode"`
	Params map[string]string `json:"params,omitempty" dynamodbav:"params,omitempty"`

	// Media before and after the edit
	SourceLocator string `json:"source_locator" dynamodbav:"source_locator"`
	ResultURL     string `json:"result_url,omitempty" dynamodbav:"result_url,omitempty"`

	Outcome EditOutcome `json:"outcome" dynamodbav:"outcome"`
	Error   string      `json:"error,omitempty" dynamodbav:"error,omitempty"`

	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

// NewEditRecord creates an EditRecord stamped with the current time
func NewEditRecord(id, sessionID, mode string) *EditRecord {
	return &EditRecord{
		ID:        id,
		SessionID: sessionID,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
}

// IsDegraded returns true if the edit resolved to the fallback media
func (r *EditRecord) IsDegraded() bool {
	return r.Outcome == EditOutcomeDegraded
}
