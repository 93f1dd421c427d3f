package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MemoryAppender keeps events in order in memory, for tests and
// single-process experiments.
type MemoryAppender struct {
	events []StoredEvent
}

// StoredEvent is an appended event with its computed integrity hash.
type StoredEvent struct {
	Event           Event
	DetailJSON      []byte
	IntegritySHA256 string
}

func NewMemoryAppender() *MemoryAppender {
	return &MemoryAppender{}
}

func (a *MemoryAppender) Append(ctx context.Context, event Event) (string, error) {
	if a == nil {
		return "", errors.New("memory appender not initialized")
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
	a.events = append(a.events, StoredEvent{
		Event:           event,
		DetailJSON:      detailJSON,
		IntegritySHA256: integrity,
	})
	return event.ID, nil
}

// Events returns the appended events in order.
func (a *MemoryAppender) Events() []StoredEvent {
	if a == nil {
		return nil
	}
	out := make([]StoredEvent, len(a.events))
	copy(out, a.events)
	return out
}
