package table

import (
	"context"
	"sync"

	"github.com/couchcryptid/station-table-service/internal/domain"
)

// MemoryChangelog keeps entries in process memory. It satisfies the
// Changelog contract within one process lifetime only and is meant for local
// runs and tests.
type MemoryChangelog struct {
	mu      sync.Mutex
	entries []domain.ChangelogEntry
}

// NewMemoryChangelog returns a changelog pre-filled with entries, in order.
func NewMemoryChangelog(entries ...domain.ChangelogEntry) *MemoryChangelog {
	return &MemoryChangelog{entries: cloneEntries(entries)}
}

// Append records a copy of entry.
func (c *MemoryChangelog) Append(ctx context.Context, entry domain.ChangelogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, cloneEntry(entry))
	return nil
}

// Replay calls fn for each entry in append order.
func (c *MemoryChangelog) Replay(ctx context.Context, fn func(domain.ChangelogEntry) error) error {
	for _, entry := range c.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns a copy of the log contents.
func (c *MemoryChangelog) Entries() []domain.ChangelogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneEntries(c.entries)
}

// Close is a no-op.
func (c *MemoryChangelog) Close() error { return nil }

func cloneEntries(entries []domain.ChangelogEntry) []domain.ChangelogEntry {
	out := make([]domain.ChangelogEntry, len(entries))
	for i, e := range entries {
		out[i] = cloneEntry(e)
	}
	return out
}

func cloneEntry(e domain.ChangelogEntry) domain.ChangelogEntry {
	if e.Value != nil {
		v := *e.Value
		e.Value = &v
	}
	return e
}
