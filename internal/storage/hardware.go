package storage

import "database/sql"

// HardwareInfo returns the last reported value of a hardware fact.
func (d *DB) HardwareInfo(key string) (string, bool, error) {
	var v string
	err := d.db.QueryRow("SELECT value FROM hardware_info WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetHardwareInfo records the reported value of a hardware fact.
func (d *DB) SetHardwareInfo(key, value string, at int64) error {
	_, err := d.db.Exec(
		"INSERT INTO hardware_info (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value, at,
	)
	return err
}

// AllHardwareInfo returns every recorded fact ordered by key.
func (d *DB) AllHardwareInfo() ([]HardwareRecord, error) {
	rows, err := d.db.Query("SELECT key, value, updated_at FROM hardware_info ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HardwareRecord
	for rows.Next() {
		var r HardwareRecord
		if err := rows.Scan(&r.Key, &r.Value, &r.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
