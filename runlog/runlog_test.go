package runlog

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func testEvent() Event {
	return Event{
		RunNumber:  3,
		OccurredAt: time.Date(2026, 5, 14, 9, 30, 0, 0, time.UTC),
		Kind:       EventColumnRecomputed,
		Column:     "201",
		Detail:     map[string]any{"output_key": "earth-run-0003-201-output.vul"},
	}
}

func TestIntegrityIsDeterministic(t *testing.T) {
	event := testEvent()
	detail := []byte(`{"output_key":"earth-run-0003-201-output.vul"}`)

	first, err := ComputeIntegritySHA256(event, detail)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	second, err := ComputeIntegritySHA256(event, detail)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if first != second {
		t.Fatalf("integrity hash not deterministic: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected a hex sha256, got %q", first)
	}
}

func TestIntegrityChangesWithEvent(t *testing.T) {
	detail := []byte(`{}`)
	base, err := ComputeIntegritySHA256(testEvent(), detail)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}

	changed := testEvent()
	changed.Kind = EventColumnFailed
	got, err := ComputeIntegritySHA256(changed, detail)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if got == base {
		t.Fatalf("kind change must change the integrity hash")
	}

	other, err := ComputeIntegritySHA256(testEvent(), []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if other == base {
		t.Fatalf("detail change must change the integrity hash")
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{"missing run number", func(e *Event) { e.RunNumber = 0 }},
		{"missing timestamp", func(e *Event) { e.OccurredAt = time.Time{} }},
		{"missing kind", func(e *Event) { e.Kind = " " }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			event := testEvent()
			tc.mutate(&event)
			if err := event.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := testEvent().Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
}

func TestMemoryAppenderKeepsOrderAndIntegrity(t *testing.T) {
	a := NewMemoryAppender()
	ctx := context.Background()

	kinds := []EventKind{EventRunStarted, EventColumnScheduled, EventColumnReused, EventRunFinalized}
	for _, kind := range kinds {
		event := testEvent()
		event.Kind = kind
		if _, err := a.Append(ctx, event); err != nil {
			t.Fatalf("Append(%s) err=%v", kind, err)
		}
	}

	events := a.Events()
	if len(events) != len(kinds) {
		t.Fatalf("expected %d events, got %d", len(kinds), len(events))
	}
	for i, stored := range events {
		if stored.Event.Kind != kinds[i] {
			t.Fatalf("position %d: got kind %s, want %s", i, stored.Event.Kind, kinds[i])
		}
		if stored.IntegritySHA256 == "" || stored.Event.ID == "" {
			t.Fatalf("stored event missing id or integrity: %+v", stored)
		}
	}
}

func TestRecorderSerializesConcurrentWriters(t *testing.T) {
	a := NewMemoryAppender()
	r := NewRecorder(a)
	ctx := context.Background()

	const writers = 8
	const perWriter = 20
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				event := testEvent()
				if err := r.Record(ctx, event); err != nil {
					t.Errorf("Record() err=%v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := r.Appended(); got != writers*perWriter {
		t.Fatalf("Appended() = %d, want %d", got, writers*perWriter)
	}
	if got := len(a.Events()); got != writers*perWriter {
		t.Fatalf("stored %d events, want %d", got, writers*perWriter)
	}
}

func TestInsertQueryShape(t *testing.T) {
	if !strings.Contains(insertEventQuery, "integrity_sha256") {
		t.Fatalf("expected the integrity column in the insert query")
	}
	if !strings.Contains(insertEventQuery, "RETURNING event_id") {
		t.Fatalf("expected the insert query to return the event id")
	}
}
