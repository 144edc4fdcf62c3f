package core

import "context"

// RecordRepository persists intake records.
//
// Create fails with ErrDuplicate when the ticket id exists. Update loads the
// record, applies fn and writes the result atomically; fn must not change the
// ticket id.
type RecordRepository interface {
	Create(ctx context.Context, rec IntakeRecord) error
	FindByTicket(ctx context.Context, ticketID string) (IntakeRecord, error)
	FindLatestByIdentity(ctx context.Context, identity string) (IntakeRecord, error)
	List(ctx context.Context, filter RecordFilter) ([]IntakeRecord, error)
	Update(ctx context.Context, ticketID string, fn func(*IntakeRecord) error) (IntakeRecord, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// IdempotencyStore remembers processed transport message ids.
type IdempotencyStore interface {
	// MarkProcessed records key and reports whether it was seen before.
	MarkProcessed(ctx context.Context, key string) (duplicate bool, err error)
}
