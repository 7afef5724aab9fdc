package tracklog

import "context"

// Repository persists audit entries. Save appends; entries are never updated.
type Repository interface {
	Save(ctx context.Context, entry *Entry) error
}
