// Package journal records garbage collections in a SQLite database so runs
// can be compared after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"fortio.org/safecast"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/quark/heap"
)

var log = commonlog.GetLogger("quark.journal")

// Event is one recorded collection.
type Event struct {
	RuntimeID string
	heap.GCStats
}

// Summary aggregates the events of one runtime.
type Summary struct {
	RuntimeID   string
	Collections int
	Reclaimed   uint64
	MaxCapacity uint64
	Total       time.Duration
}

// Journal is a collection log backed by SQLite. It is safe for concurrent
// use by several runtimes.
type Journal struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// One connection, so the pragma below covers every statement.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS gc_events (
		runtime_id      TEXT    NOT NULL,
		sequence        INTEGER NOT NULL,
		bytes_before    INTEGER NOT NULL,
		bytes_after     INTEGER NOT NULL,
		objects_copied  INTEGER NOT NULL,
		capacity_before INTEGER NOT NULL,
		capacity_after  INTEGER NOT NULL,
		duration_ns     INTEGER NOT NULL,
		recorded_at     INTEGER NOT NULL,
		PRIMARY KEY (runtime_id, sequence)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("journal open at %s", path)
	return &Journal{db: db, path: path}, nil
}

// Path returns the database file.
func (j *Journal) Path() string { return j.path }

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record stores one collection.
func (j *Journal) Record(ctx context.Context, e Event) error {
	cols, err := columns(e.GCStats)
	if err != nil {
		return fmt.Errorf("recording collection %d: %w", e.Sequence, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err = j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO gc_events (runtime_id, sequence, bytes_before, bytes_after,
			objects_copied, capacity_before, capacity_after, duration_ns, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RuntimeID, cols[0], cols[1], cols[2], cols[3], cols[4], cols[5],
		e.Duration.Nanoseconds(), e.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording collection %d: %w", e.Sequence, err)
	}
	return nil
}

// columns converts the unsigned counters SQLite cannot store directly.
func columns(s heap.GCStats) ([6]int64, error) {
	var out [6]int64
	for i, v := range []uint64{s.Sequence, s.BytesBefore, s.BytesAfter, s.ObjectsCopied, s.CapacityBefore, s.CapacityAfter} {
		n, err := safecast.Conv[int64](v)
		if err != nil {
			return out, err
		}
		out[i] = n
	}
	return out, nil
}

// Events returns the collections of one runtime in order.
func (j *Journal) Events(ctx context.Context, runtimeID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT sequence, bytes_before, bytes_after, objects_copied, capacity_before,
			capacity_after, duration_ns, recorded_at
		FROM gc_events WHERE runtime_id = ? ORDER BY sequence`, runtimeID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var cols [6]int64
		var duration, recorded int64
		if err := rows.Scan(&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &duration, &recorded); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e := Event{RuntimeID: runtimeID}
		e.Sequence = uint64(cols[0])
		e.BytesBefore = uint64(cols[1])
		e.BytesAfter = uint64(cols[2])
		e.ObjectsCopied = uint64(cols[3])
		e.CapacityBefore = uint64(cols[4])
		e.CapacityAfter = uint64(cols[5])
		e.Duration = time.Duration(duration)
		e.Timestamp = time.Unix(0, recorded)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Summaries aggregates every runtime in the journal, most collections first.
func (j *Journal) Summaries(ctx context.Context) ([]Summary, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT runtime_id, COUNT(*), SUM(bytes_before - bytes_after),
			MAX(capacity_after), SUM(duration_ns)
		FROM gc_events GROUP BY runtime_id ORDER BY COUNT(*) DESC, runtime_id`)
	if err != nil {
		return nil, fmt.Errorf("querying summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var reclaimed, capacity, total int64
		if err := rows.Scan(&s.RuntimeID, &s.Collections, &reclaimed, &capacity, &total); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		if reclaimed > 0 {
			s.Reclaimed = uint64(reclaimed)
		}
		s.MaxCapacity = uint64(capacity)
		s.Total = time.Duration(total)
		out = append(out, s)
	}
	return out, rows.Err()
}
