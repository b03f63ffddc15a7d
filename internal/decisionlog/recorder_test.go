package decisionlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	entries   []Entry
	appendErr error
}

func (s *memoryStore) Append(ctx context.Context, entry Entry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestRecordDecisionFillsDefaultsAndClassifies(t *testing.T) {
	store := &memoryStore{}
	at := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	rec := NewRecorder(store, nil, nil).WithClock(func() time.Time { return at })

	rec.RecordDecision(context.Background(), Entry{
		ActorID:      uuid.New(),
		Action:       ActionAdminOverride,
		ResourceType: "audit",
		Outcome:      OutcomeAllowed,
		Context:      map[string]any{"reason": "incident 7", "session_token": "abc"},
	})

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	require.NotEqual(t, uuid.Nil, entry.ID)
	require.Equal(t, at, entry.At)
	require.Equal(t, RiskHigh, entry.Risk)
	require.True(t, entry.SecurityEvent)
	require.Equal(t, "incident 7", entry.Context["reason"])
	require.Equal(t, RedactionMarker, entry.Context["session_token"])
}

func TestRecordDecisionOverridesCallerClassification(t *testing.T) {
	store := &memoryStore{}
	rec := NewRecorder(store, nil, nil)

	// Callers cannot downgrade: the classifier is authoritative.
	rec.RecordDecision(context.Background(), Entry{
		Action:        ActionAccessDenied,
		Outcome:       OutcomeDenied,
		Risk:          RiskLow,
		SecurityEvent: false,
	})

	require.Equal(t, RiskHigh, store.entries[0].Risk)
	require.True(t, store.entries[0].SecurityEvent)
}

func TestRecordDecisionSwallowsStoreFailure(t *testing.T) {
	store := &memoryStore{appendErr: errors.New("disk full")}
	rec := NewRecorder(store, nil, nil)

	// Must not panic or surface the error; the primary operation's
	// outcome is already decided by the time logging runs.
	rec.RecordDecision(context.Background(), Entry{Action: ActionView, Outcome: OutcomeAllowed})
	require.Empty(t, store.entries)
}

func TestRecordDecisionNilRecorder(t *testing.T) {
	var rec *Recorder
	rec.RecordDecision(context.Background(), Entry{Action: ActionView})
}
