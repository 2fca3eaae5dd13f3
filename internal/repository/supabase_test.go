package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupabaseJournal_FillsIDAndTime(t *testing.T) {
	var got *JournalEntry
	j := newJournal(func(entry *JournalEntry) error {
		got = entry
		return nil
	})

	require.NoError(t, j.Record(context.Background(), &JournalEntry{Kind: "send", Outcome: "ok"}))
	require.NotNil(t, got)
	assert.NotEmpty(t, got.ID)
	assert.NotEmpty(t, got.CreatedAt)
}

func TestSupabaseJournal_InsertError(t *testing.T) {
	j := newJournal(func(*JournalEntry) error { return errors.New("relation does not exist") })

	err := j.Record(context.Background(), &JournalEntry{})
	assert.ErrorContains(t, err, "relation does not exist")
}

func TestSupabaseJournal_HonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	j := newJournal(func(*JournalEntry) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := j.Record(ctx, &JournalEntry{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSupabaseJournal_BoundsPendingWrites(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	j := newJournal(func(*JournalEntry) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < maxPendingInserts; i++ {
		assert.ErrorIs(t, j.Record(ctx, &JournalEntry{}), context.Canceled)
	}
	assert.ErrorIs(t, j.Record(context.Background(), &JournalEntry{}), ErrJournalBusy)
}
