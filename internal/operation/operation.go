// Copyright 2025 James Ross
package operation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the CRUD intent an Operation carries against a provider.
type Kind string

const (
	Create Kind = "CREATE"
	Read   Kind = "READ"
	Update Kind = "UPDATE"
	Delete Kind = "DELETE"
)

// Status reflects which tier currently holds an Operation.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInFlight   Status = "IN_FLIGHT"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusDeadLetter Status = "DEAD_LETTER"
	StatusUnknown    Status = "UNKNOWN"
)

// Operation is a CRUD intent against a named external provider. It is
// immutable once enqueued except for ScheduledAt, StartedAt,
// CompletedAt, RetryCount, ExternalID, ErrorMessage and ResponseData.
type Operation struct {
	ID           uuid.UUID      `json:"id"`
	Kind         Kind           `json:"kind"`
	Provider     string         `json:"provider"`
	RecordID     string         `json:"record_id,omitempty"`
	Record       map[string]any `json:"record,omitempty"`
	Priority     int            `json:"priority"`
	CreatedAt    time.Time      `json:"created_at"`
	ScheduledAt  *time.Time     `json:"scheduled_at,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	RetryCount   int            `json:"retry_count"`
	ExternalID   string         `json:"external_id,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ResponseData map[string]any `json:"response_data,omitempty"`
}

// New constructs an Operation, assigning a fresh ID and created_at.
// It does not validate the result; callers should call Validate before
// admitting the operation to the pending tier.
func New(kind Kind, provider string, priority int, recordID string, record map[string]any) Operation {
	return Operation{
		ID:        uuid.New(),
		Kind:      kind,
		Provider:  provider,
		RecordID:  recordID,
		Record:    record,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate enforces the invariants in §3 that must hold before an
// operation is accepted at all: CREATE/UPDATE require a record, and
// priority is 1..10. A missing record_id on READ/UPDATE/DELETE is not
// checked here — it is a dispatch-time failure (see
// internal/dispatch.Client.Dispatch) that routes the operation to
// dead_letter through the normal retry/failure path, per §8.
func (o Operation) Validate() error {
	switch o.Kind {
	case Create, Update:
		if o.Record == nil {
			return fmt.Errorf("operation %s: %s requires a non-null record", o.ID, o.Kind)
		}
	case Read, Delete:
	default:
		return fmt.Errorf("operation %s: unknown kind %q", o.ID, o.Kind)
	}
	if o.Priority < 1 || o.Priority > 10 {
		return fmt.Errorf("operation %s: priority %d out of range [1,10]", o.ID, o.Priority)
	}
	return nil
}

// Marshal serializes the operation to its canonical byte string form.
func (o Operation) Marshal() (string, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("marshal operation: %w", err)
	}
	return string(b), nil
}

// Unmarshal parses an Operation from its canonical byte string form.
func Unmarshal(s string) (Operation, error) {
	var o Operation
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		return Operation{}, fmt.Errorf("unmarshal operation: %w", err)
	}
	return o, nil
}

// Due reports whether the operation's scheduled_at (if any) has arrived.
func (o Operation) Due(now time.Time) bool {
	return o.ScheduledAt == nil || !o.ScheduledAt.After(now)
}
