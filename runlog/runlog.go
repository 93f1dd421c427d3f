// Package runlog records the append-only event log of a run: scheduling
// decisions, reuse versus recompute outcomes, failures, promotion. Every
// event carries an integrity hash over its canonical encoding.
package runlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventKind names what happened.
type EventKind string

const (
	EventRunStarted        EventKind = "run_started"
	EventRunClassified     EventKind = "run_classified"
	EventColumnScheduled   EventKind = "column_scheduled"
	EventColumnReused      EventKind = "column_reused"
	EventColumnRecomputed  EventKind = "column_recomputed"
	EventColumnFailed      EventKind = "column_failed"
	EventModificationTaken EventKind = "modification_taken"
	EventRunPromoted       EventKind = "run_promoted"
	EventRunFinalized      EventKind = "run_finalized"
)

type Event struct {
	ID         string
	RunNumber  int64
	OccurredAt time.Time
	Kind       EventKind

	// Column is the rendered column id for column-scoped events, empty
	// for run-scoped ones.
	Column string

	Detail any
}

func (e Event) Validate() error {
	if e.RunNumber < 1 {
		return errors.New("run number must be >= 1")
	}
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(string(e.Kind)) == "" {
		return errors.New("event kind is required")
	}
	return nil
}

// ComputeIntegritySHA256 hashes the canonical encoding of an event. The
// hash is stable across processes for identical events.
func ComputeIntegritySHA256(event Event, detailJSON []byte) (string, error) {
	type integrityInput struct {
		RunNumber  int64           `json:"run_number"`
		OccurredAt time.Time       `json:"occurred_at"`
		Kind       string          `json:"kind"`
		Column     string          `json:"column,omitempty"`
		Detail     json.RawMessage `json:"detail"`
	}
	in := integrityInput{
		RunNumber:  event.RunNumber,
		OccurredAt: event.OccurredAt.UTC(),
		Kind:       strings.TrimSpace(string(event.Kind)),
		Column:     strings.TrimSpace(event.Column),
		Detail:     detailJSON,
	}
	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const insertEventQuery = `INSERT INTO vulcan_run_events (
		event_id,
		run_number,
		occurred_at,
		kind,
		column_id,
		detail,
		integrity_sha256
	) VALUES ($1,$2,$3,$4,$5,$6,$7)
	RETURNING event_id`

// Insert writes one event. The returned id identifies the stored row.
func Insert(ctx context.Context, q QueryRower, event Event) (string, error) {
	if q == nil {
		return "", errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}

	detail := event.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return "", fmt.Errorf("marshal detail: %w", err)
	}
	integrity, err := ComputeIntegritySHA256(event, detailJSON)
	if err != nil {
		return "", err
	}

	var column sql.NullString
	if strings.TrimSpace(event.Column) != "" {
		column = sql.NullString{String: strings.TrimSpace(event.Column), Valid: true}
	}

	var id string
	err = q.QueryRowContext(
		ctx,
		insertEventQuery,
		event.ID,
		event.RunNumber,
		event.OccurredAt.UTC(),
		strings.TrimSpace(string(event.Kind)),
		column,
		detailJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert run event: %w", err)
	}
	return id, nil
}
