package storage

import (
	"fmt"
	"strings"
)

// Enqueue appends a hit to the outbox and returns its id.
func (d *DB) Enqueue(e OutboxEntry) (int64, error) {
	res, err := d.db.Exec(
		"INSERT INTO outbox (created_at, kind, payload) VALUES (?, ?, ?)",
		e.CreatedAt, e.Kind, string(e.Payload),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// PendingOutbox returns up to limit unsent entries of the given kinds, oldest
// first. No kinds selects every kind.
func (d *DB) PendingOutbox(kinds []string, limit int) ([]OutboxEntry, error) {
	query := "SELECT id, created_at, kind, payload, attempts FROM outbox WHERE sent_at IS NULL"
	args := make([]any, 0, len(kinds)+1)
	if len(kinds) > 0 {
		query += fmt.Sprintf(" AND kind IN (%s)", placeholders(len(kinds)))
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var payload string
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Kind, &payload, &e.Attempts); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		result = append(result, e)
	}
	return result, rows.Err()
}

// PendingCount returns the number of unsent entries.
func (d *DB) PendingCount() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL").Scan(&n)
	return n, err
}

// MarkSent records a successful upload of the given entries.
func (d *DB) MarkSent(ids []int64, at int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, at)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := d.db.Exec(
		fmt.Sprintf("UPDATE outbox SET sent_at = ? WHERE id IN (%s)", placeholders(len(ids))),
		args...,
	)
	return err
}

// MarkFailed bumps the attempt counter of the given entries. They stay pending.
func (d *DB) MarkFailed(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := d.db.Exec(
		fmt.Sprintf("UPDATE outbox SET attempts = attempts + 1 WHERE id IN (%s)", placeholders(len(ids))),
		args...,
	)
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// DiscardExhausted deletes unsent entries that failed maxAttempts times or
// more and returns how many were removed.
func (d *DB) DiscardExhausted(maxAttempts int) (int64, error) {
	res, err := d.db.Exec("DELETE FROM outbox WHERE sent_at IS NULL AND attempts >= ?", maxAttempts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
