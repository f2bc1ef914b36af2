package knowledge

import "context"

// Store persists knowledge entries and the bounded learning log.
type Store interface {
	CreateEntry(ctx context.Context, entry *Entry) error
	GetEntry(ctx context.Context, id string) (*Entry, error)
	UpdateEntry(ctx context.Context, entry *Entry) error

	// ListEntries returns entries, optionally filtered by type.
	ListEntries(ctx context.Context, entryType string) ([]*Entry, error)

	// AppendLearningEvent records the event and trims the log to the
	// most recent limit records.
	AppendLearningEvent(ctx context.Context, event *LearningEvent, limit int) error

	// ListLearningEvents returns the log, newest first.
	ListLearningEvents(ctx context.Context) ([]*LearningEvent, error)
}
