package storage

import "fmt"

// DeleteOlderThan deletes observations, discharge events and already sent
// outbox rows recorded before the given unix epoch. Pending outbox rows are
// kept. Returns the total number of deleted rows.
func (d *DB) DeleteOlderThan(before int64) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}

	var total int64
	stmts := []struct {
		table string
		query string
	}{
		{"battery_observations", "DELETE FROM battery_observations WHERE timestamp < ?"},
		{"discharge_events", "DELETE FROM discharge_events WHERE timestamp < ?"},
		{"outbox", "DELETE FROM outbox WHERE sent_at IS NOT NULL AND sent_at < ?"},
	}

	for _, s := range stmts {
		res, err := tx.Exec(s.query, before)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("delete from %s: %w", s.table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}
