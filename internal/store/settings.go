package store

import (
	"database/sql"
	"errors"
	"strconv"
)

// Setting keys.
const (
	SettingActiveProfile = "active_profile"
	SettingEnabled       = "enabled"
)

// SettingsRepository stores key/value settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value of key, or ErrNotFound.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// Set inserts or replaces the value of key.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (r *SettingsRepository) Delete(key string) error {
	_, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// ActiveProfile returns the ID of the active profile, or ErrNotFound.
func (r *SettingsRepository) ActiveProfile() (string, error) {
	return r.Get(SettingActiveProfile)
}

// SetActiveProfile records the active profile ID.
func (r *SettingsRepository) SetActiveProfile(id string) error {
	return r.Set(SettingActiveProfile, id)
}

// Enabled returns the stored processing switch, or def when unset.
func (r *SettingsRepository) Enabled(def bool) (bool, error) {
	v, err := r.Get(SettingEnabled)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return strconv.ParseBool(v)
}

// SetEnabled stores the processing switch.
func (r *SettingsRepository) SetEnabled(enabled bool) error {
	return r.Set(SettingEnabled, strconv.FormatBool(enabled))
}
