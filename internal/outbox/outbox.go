// Package outbox implements the device-side durable publish queue (spec.md
// C3): a bounded, single-writer/single-reader FIFO backed by SQLite, used
// to hold publishes the device cannot hand off to the broker right now.
package outbox

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // registration side-effect only
)

const schema = `
CREATE TABLE IF NOT EXISTS outbox (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	topic      TEXT NOT NULL,
	payload    BLOB NOT NULL,
	qos        INTEGER NOT NULL,
	timestamp  REAL NOT NULL,
	created_at REAL NOT NULL
);
`

// Record is one queued publish.
type Record struct {
	ID        int64
	Topic     string
	Payload   []byte
	QoS       byte
	Timestamp float64
	CreatedAt float64
}

// Outbox is a bounded durable FIFO for one device. It is safe for use by
// at most one writer goroutine and one reader goroutine concurrently;
// both the device client's publish path and its replay path serialize
// through the same *Outbox, so no additional locking is needed.
type Outbox struct {
	db          *sql.DB
	maxCapacity int
}

// Open opens (creating if absent) the SQLite-backed outbox file for a
// single device at {queueDir}/{deviceID}_queue.db, per spec.md §6.
func Open(queueDir, deviceID string, maxCapacity int) (*Outbox, error) {
	path := filepath.Join(queueDir, deviceID+"_queue.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("opening outbox db: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer invariant; also avoids WAL readers racing ack/evict

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating outbox schema: %w", err)
	}

	return &Outbox{db: db, maxCapacity: maxCapacity}, nil
}

// Close releases the underlying database handle.
func (o *Outbox) Close() error {
	return o.db.Close()
}

// Append durably appends a record to the tail of the queue. Every commit
// is fsynced (synchronous=FULL above) so an append that returns nil
// survives a crash. If the queue is at capacity, the oldest record is
// evicted first (drop-oldest, per spec.md C3's eviction policy).
func (o *Outbox) Append(topic string, payload []byte, qos byte, timestamp, createdAt float64) error {
	tx, err := o.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning append tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&count); err != nil {
		return fmt.Errorf("counting outbox rows: %w", err)
	}
	if count >= o.maxCapacity {
		if _, err := tx.Exec(`DELETE FROM outbox WHERE id = (SELECT MIN(id) FROM outbox)`); err != nil {
			return fmt.Errorf("evicting oldest outbox row: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO outbox (topic, payload, qos, timestamp, created_at) VALUES (?, ?, ?, ?, ?)`,
		topic, payload, qos, timestamp, createdAt,
	); err != nil {
		return fmt.Errorf("inserting outbox row: %w", err)
	}

	return tx.Commit()
}

// PeekBatch returns up to n records from the head of the queue without
// removing them. The caller acknowledges successfully handed-off records
// with Ack once the broker has accepted them.
func (o *Outbox) PeekBatch(n int) ([]Record, error) {
	rows, err := o.db.Query(
		`SELECT id, topic, payload, qos, timestamp, created_at FROM outbox ORDER BY id ASC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("querying outbox batch: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Topic, &r.Payload, &r.QoS, &r.Timestamp, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning outbox row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ack permanently removes the given record IDs from the queue. Replay
// must only ack records it confirmed the broker accepted; per the
// conservative partial-success resolution (spec.md C4 Open Question),
// records not yet handed to the client are never acked, so they remain
// for the next replay attempt.
func (o *Outbox) Ack(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := o.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning ack tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM outbox WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("preparing ack delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("deleting acked row %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// Size returns the current number of queued records.
func (o *Outbox) Size() (int, error) {
	var count int
	if err := o.db.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting outbox rows: %w", err)
	}
	return count, nil
}

// Clear removes all queued records.
func (o *Outbox) Clear() error {
	if _, err := o.db.Exec(`DELETE FROM outbox`); err != nil {
		return fmt.Errorf("clearing outbox: %w", err)
	}
	return nil
}
