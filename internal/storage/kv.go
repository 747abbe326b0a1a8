package storage

import (
	"database/sql"
	"fmt"
	"unicode/utf8"

	"github.com/kalambet/notebook/internal/kv"
)

var (
	_ kv.Backend  = (*Store)(nil)
	_ kv.Replacer = (*Store)(nil)
)

// SetQuota caps the summed character length of every kv key and value.
// Zero removes the cap.
func (s *Store) SetQuota(n int) {
	s.quotaMu.Lock()
	s.quota = n
	s.quotaMu.Unlock()
}

func (s *Store) currentQuota() int {
	s.quotaMu.RLock()
	defer s.quotaMu.RUnlock()
	return s.quota
}

func (s *Store) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) GetItem(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) SetItem(key, value string) error {
	if quota := s.currentQuota(); quota > 0 {
		var used int
		if err := s.db.QueryRow(
			"SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv WHERE key != ?", key,
		).Scan(&used); err != nil {
			return fmt.Errorf("measuring kv usage: %w", err)
		}
		if used+utf8.RuneCountInString(key)+utf8.RuneCountInString(value) > quota {
			return ErrQuotaExceeded
		}
	}
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *Store) RemoveItem(key string) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return err
}

// ReplacePrefix deletes every key starting with prefix and writes items in
// one transaction. Nothing changes if any write fails or the result would
// exceed the quota.
func (s *Store) ReplacePrefix(prefix string, items map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM kv WHERE substr(key, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix,
	); err != nil {
		return fmt.Errorf("clearing prefix: %w", err)
	}

	for k, v := range items {
		if _, err := tx.Exec(`
			INSERT INTO kv (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			k, v,
		); err != nil {
			return fmt.Errorf("writing %s: %w", k, err)
		}
	}

	if quota := s.currentQuota(); quota > 0 {
		var used int
		if err := tx.QueryRow("SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv").Scan(&used); err != nil {
			return fmt.Errorf("measuring kv usage: %w", err)
		}
		if used > quota {
			return ErrQuotaExceeded
		}
	}

	return tx.Commit()
}
