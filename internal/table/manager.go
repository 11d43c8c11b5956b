// Package table maintains the materialized station table. Every mutation is
// appended to a changelog before it becomes visible in memory, and the
// in-memory rows are rebuilt by replaying that changelog on startup.
package table

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/station-table-service/internal/domain"
	"github.com/couchcryptid/station-table-service/internal/observability"
)

var (
	// ErrNotReady is returned by reads and writes issued before recovery completes.
	ErrNotReady = errors.New("table is recovering")
	// ErrRecovering is returned when Recover is called more than once.
	ErrRecovering = errors.New("table recovery already started")
	// ErrRecovery wraps any failure while replaying the changelog.
	ErrRecovery = errors.New("table recovery failed")
)

// Changelog is the durable, ordered log backing the table.
type Changelog interface {
	// Append durably records one entry. The entry is committed only when
	// Append returns nil.
	Append(ctx context.Context, entry domain.ChangelogEntry) error
	// Replay calls fn for every retained entry from the earliest to the
	// latest, in log order.
	Replay(ctx context.Context, fn func(domain.ChangelogEntry) error) error
}

// State is the lifecycle state of a Manager.
type State int32

const (
	StateRecovering State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "recovering"
}

const lockStripes = 64

// Manager owns the station table and its changelog.
type Manager struct {
	changelog Changelog
	logger    *slog.Logger
	metrics   *observability.Metrics

	state   atomic.Int32
	started atomic.Bool

	mu   sync.RWMutex
	rows map[int64]domain.TransformedStation

	seed  maphash.Seed
	locks [lockStripes]sync.Mutex
}

// New creates a Manager in the recovering state. Call Recover before use.
func New(changelog Changelog, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{
		changelog: changelog,
		logger:    logger,
		metrics:   metrics,
		rows:      make(map[int64]domain.TransformedStation),
		seed:      maphash.MakeSeed(),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// CheckReadiness returns nil once the table has finished recovery.
func (m *Manager) CheckReadiness(_ context.Context) error {
	if m.State() != StateReady {
		return ErrNotReady
	}
	return nil
}

// Recover replays the changelog into an empty table and moves the manager to
// the ready state. On failure the manager stays in the recovering state.
func (m *Manager) Recover(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrRecovering
	}

	start := time.Now()
	m.logger.Info("table recovery started")

	rows := make(map[int64]domain.TransformedStation)
	var applied int
	err := m.changelog.Replay(ctx, func(entry domain.ChangelogEntry) error {
		applyEntry(rows, entry)
		applied++
		return nil
	})
	if err != nil {
		m.logger.Error("table recovery failed", "error", err, "entries_applied", applied)
		return fmt.Errorf("%w: %w", ErrRecovery, err)
	}

	m.mu.Lock()
	m.rows = rows
	m.mu.Unlock()

	m.metrics.RecoveredEntries.Add(float64(applied))
	m.metrics.RecoveryDuration.Observe(time.Since(start).Seconds())
	m.metrics.TableRows.Set(float64(len(rows)))
	m.metrics.TableReady.Set(1)
	m.state.Store(int32(StateReady))

	m.logger.Info("table recovery complete",
		"entries_applied", applied,
		"rows", len(rows),
		"duration", time.Since(start),
	)
	return nil
}

// Upsert replaces the row for station.StationID. The changelog append must
// succeed before the new value becomes visible; on append failure the table
// is left unchanged.
func (m *Manager) Upsert(ctx context.Context, station domain.TransformedStation) error {
	return m.mutate(ctx, domain.ChangelogEntry{Key: station.StationID, Value: &station})
}

// Delete removes a row by appending a tombstone.
func (m *Manager) Delete(ctx context.Context, stationID int64) error {
	return m.mutate(ctx, domain.ChangelogEntry{Key: stationID})
}

func (m *Manager) mutate(ctx context.Context, entry domain.ChangelogEntry) error {
	if m.State() != StateReady {
		return ErrNotReady
	}

	// Same-key mutations are serialized so the log order and the in-memory
	// order agree.
	lock := m.keyLock(entry.Key)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	if err := m.changelog.Append(ctx, entry); err != nil {
		m.metrics.ChangelogAppendErrors.Inc()
		return fmt.Errorf("append changelog entry for station %d: %w", entry.Key, err)
	}

	m.mu.Lock()
	applyEntry(m.rows, entry)
	rows := len(m.rows)
	m.mu.Unlock()

	m.metrics.Upserts.Inc()
	m.metrics.UpsertDuration.Observe(time.Since(start).Seconds())
	m.metrics.TableRows.Set(float64(rows))
	return nil
}

// Get returns the current row for a station. The boolean is false when the
// station has never been assigned or was deleted.
func (m *Manager) Get(stationID int64) (domain.TransformedStation, bool, error) {
	if m.State() != StateReady {
		return domain.TransformedStation{}, false, ErrNotReady
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	station, ok := m.rows[stationID]
	return station, ok, nil
}

// Snapshot returns a copy of every row ordered by station id.
func (m *Manager) Snapshot() ([]domain.TransformedStation, error) {
	if m.State() != StateReady {
		return nil, ErrNotReady
	}
	m.mu.RLock()
	out := make([]domain.TransformedStation, 0, len(m.rows))
	for _, station := range m.rows {
		out = append(out, station)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.TransformedStation) int {
		switch {
		case a.StationID < b.StationID:
			return -1
		case a.StationID > b.StationID:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

// Len returns the number of rows currently held.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func (m *Manager) keyLock(key int64) *sync.Mutex {
	return &m.locks[maphash.Comparable(m.seed, key)%lockStripes]
}

func applyEntry(rows map[int64]domain.TransformedStation, entry domain.ChangelogEntry) {
	if entry.Tombstone() {
		delete(rows, entry.Key)
		return
	}
	rows[entry.Key] = *entry.Value
}
