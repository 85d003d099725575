package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

type SettingsStore struct {
	db DBTX
}

func NewSettingsStore(db DBTX) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) WithTx(tx *sql.Tx) *SettingsStore {
	return &SettingsStore{db: tx}
}

// Lookup returns the stored value and whether the key exists.
func (s *SettingsStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT setting_value FROM settings WHERE setting_key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	value, ok, err := s.Lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("setting %q not found", key)
	}
	return value, nil
}

func (s *SettingsStore) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT setting_key, setting_value FROM settings ORDER BY setting_key`)
	if err != nil {
		return nil, fmt.Errorf("get all settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// Set writes a value. It updates first and inserts when nothing matched, which
// works on both SQLite and MySQL without dialect-specific upserts.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	now := dbTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE settings SET setting_value = ?, updated_at = ? WHERE setting_key = ?`,
		value, now, key,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	// MySQL reports 0 affected rows when the value is unchanged.
	if _, ok, err := s.Lookup(ctx, key); err != nil {
		return err
	} else if ok {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (setting_key, setting_value, updated_at) VALUES (?, ?, ?)`,
		key, value, now,
	); err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// SeedDefaults inserts any default setting that is not stored yet. Existing
// values are left alone.
func (s *SettingsStore) SeedDefaults(ctx context.Context, defaults map[string]string) error {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		_, ok, err := s.Lookup(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO settings (setting_key, setting_value, updated_at) VALUES (?, ?, ?)`,
			key, defaults[key], dbTime(time.Now()),
		); err != nil {
			return fmt.Errorf("seed setting %q: %w", key, err)
		}
	}
	return nil
}
