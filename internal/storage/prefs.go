package storage

import (
	"database/sql"
	"strconv"
)

// Pref keys shared by the daemon components.
const (
	PrefScreenChangeTime = "screen_change_time"
	PrefBootTime         = "boot_time"
	PrefClientID         = "client_id"
	PrefLatestSendTime   = "latest_send_time"
)

// Pref returns the stored value for key and whether it was present.
func (d *DB) Pref(key string) (string, bool, error) {
	var v string
	err := d.db.QueryRow("SELECT value FROM prefs WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetPref stores value under key, replacing any previous value.
func (d *DB) SetPref(key, value string) error {
	_, err := d.db.Exec(
		"INSERT INTO prefs (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// DeletePref removes key.
func (d *DB) DeletePref(key string) error {
	_, err := d.db.Exec("DELETE FROM prefs WHERE key = ?", key)
	return err
}

// PrefInt returns an integer pref. A value that does not parse counts as absent.
func (d *DB) PrefInt(key string) (int64, bool, error) {
	v, ok, err := d.Pref(key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// SetPrefInt stores an integer pref.
func (d *DB) SetPrefInt(key string, value int64) error {
	return d.SetPref(key, strconv.FormatInt(value, 10))
}
