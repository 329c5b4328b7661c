package event

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Othernet-Project/fsal/internal/store"
)

// Queue is the persistent change-event table, a durable FIFO supporting
// add, add-many, peek and drain. Deleting drained rows is the client's
// acknowledgement; peek then drain is the documented usage.
type Queue struct {
	store *store.Store
}

// NewQueue wraps a Store for event-queue operations.
func NewQueue(s *store.Store) *Queue {
	return &Queue{store: s}
}

// Add inserts a single event row.
func (q *Queue) Add(ctx context.Context, e Event) error {
	_, err := q.store.DB().ExecContext(ctx,
		`INSERT INTO events (type, src, is_dir) VALUES (?, ?, ?)`,
		string(e.Type), e.Src, boolToInt(e.IsDir))
	if err != nil {
		return fmt.Errorf("event: add %s: %w", e, err)
	}
	return nil
}

// AddMany inserts a batch of events in one transaction.
func (q *Queue) AddMany(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	return q.store.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (type, src, is_dir) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("event: prepare add_many: %w", err)
		}
		defer stmt.Close()
		for _, e := range events {
			if _, err := stmt.ExecContext(ctx, string(e.Type), e.Src, boolToInt(e.IsDir)); err != nil {
				return fmt.Errorf("event: add_many %s: %w", e, err)
			}
		}
		return nil
	})
}

// Peek returns up to limit oldest events in ascending id order, without
// removing them.
func (q *Queue) Peek(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.store.DB().QueryContext(ctx,
		`SELECT type, src, is_dir FROM events ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("event: peek: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Drain selects the oldest limit ids and deletes them in one transaction.
// Returns the drained events so the caller can act on them without a
// second round trip.
func (q *Queue) Drain(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var drained []Event
	err := q.store.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, type, src, is_dir FROM events ORDER BY id LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("event: select drain batch: %w", err)
		}
		var ids []int64
		for rows.Next() {
			var id int64
			var typ, src string
			var isDir int
			if err := rows.Scan(&id, &typ, &src, &isDir); err != nil {
				rows.Close()
				return fmt.Errorf("event: scan drain row: %w", err)
			}
			ids = append(ids, id)
			drained = append(drained, Event{Type: Type(typ), Src: src, IsDir: isDir != 0})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if len(ids) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM events WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("event: prepare drain delete: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("event: drain delete %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drained, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var typ, src string
		var isDir int
		if err := rows.Scan(&typ, &src, &isDir); err != nil {
			return nil, fmt.Errorf("event: scan row: %w", err)
		}
		out = append(out, Event{Type: Type(typ), Src: src, IsDir: isDir != 0})
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
