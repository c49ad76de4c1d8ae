package analytics

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cptspacemanspiff/power-analytics/internal/storage"
)

// PrefStore reads and writes string prefs.
type PrefStore interface {
	Pref(key string) (string, bool, error)
	SetPref(key, value string) error
}

// ClientID returns the persistent anonymous client id, creating it on first use.
func ClientID(store PrefStore) (string, error) {
	id, ok, err := store.Pref(storage.PrefClientID)
	if err != nil {
		return "", fmt.Errorf("read client id: %w", err)
	}
	if ok {
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
	}

	id = uuid.NewString()
	if err := store.SetPref(storage.PrefClientID, id); err != nil {
		return "", fmt.Errorf("store client id: %w", err)
	}
	return id, nil
}
