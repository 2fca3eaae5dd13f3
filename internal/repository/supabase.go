package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"
)

const (
	journalTable = "transfer_journal"

	// maxPendingInserts: сколько зависших вставок может висеть одновременно.
	// postgrest-go не принимает ctx, поэтому брошенная вставка живёт до ответа сервера.
	maxPendingInserts = 16
)

var ErrJournalBusy = errors.New("journal has too many pending writes")

// SupabaseJournal пишет итог каждого исполнения в таблицу transfer_journal.
// Состояние сценариев сюда не попадает, только результат.
type SupabaseJournal struct {
	insert  func(entry *JournalEntry) error
	pending chan struct{}
}

func NewSupabaseJournal(url, key string) (*SupabaseJournal, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return newJournal(func(entry *JournalEntry) error {
		_, _, err := client.From(journalTable).Insert(entry, false, "", "minimal", "").Execute()
		return err
	}), nil
}

func newJournal(insert func(entry *JournalEntry) error) *SupabaseJournal {
	return &SupabaseJournal{
		insert:  insert,
		pending: make(chan struct{}, maxPendingInserts),
	}
}

// Record ждёт вставку не дольше, чем живёт ctx
func (j *SupabaseJournal) Record(ctx context.Context, entry *JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt == "" {
		entry.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	select {
	case j.pending <- struct{}{}:
	default:
		return ErrJournalBusy
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-j.pending }()
		done <- j.insert(entry)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to record journal entry: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to record journal entry: %w", ctx.Err())
	}
}
