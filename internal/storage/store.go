// Package storage persists daemon state as versioned JSON records in the
// resource_state table. Records are keyed by kind and ID.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Record kinds written by the daemon.
const (
	// KindVirtualLight holds vlight.Memory by virtual light ID.
	KindVirtualLight = "virtual_light"
	// KindEntity holds memory platform entity states by entity ID.
	KindEntity = "entity"
)

// Kinds lists every record kind the daemon owns.
var Kinds = []string{KindVirtualLight, KindEntity}

// ErrUnknownKind is returned for kinds outside Kinds.
var ErrUnknownKind = errors.New("unknown record kind")

// Record is a stored payload with its write count.
type Record struct {
	Payload   []byte
	Version   int64
	UpdatedAt time.Time
}

// Store reads and writes records. Writes are serialized.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
	now     func() time.Time
}

// NewStore creates a store over an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func checkKind(kind string) error {
	if !slices.Contains(Kinds, kind) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return nil
}

// Load returns the record for (kind, id). A missing record has version 0
// and a nil payload.
func (s *Store) Load(kind, id string) (Record, error) {
	var (
		rec       Record
		payload   string
		updatedAt int64
	)
	err := s.db.QueryRow(
		`SELECT payload, version, updated_at FROM resource_state WHERE kind = ? AND id = ?`,
		kind, id,
	).Scan(&payload, &rec.Version, &updatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Record{}, nil
	case err != nil:
		return Record{}, fmt.Errorf("failed to load %s %s: %w", kind, id, err)
	}

	rec.Payload = []byte(payload)
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return rec, nil
}

// LoadKind returns every record of kind keyed by ID.
func (s *Store) LoadKind(kind string) (map[string]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, payload, version, updated_at FROM resource_state WHERE kind = ?`,
		kind,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", kind, err)
	}
	defer rows.Close()

	records := make(map[string]Record)
	for rows.Next() {
		var (
			id, payload string
			rec         Record
			updatedAt   int64
		)
		if err := rows.Scan(&id, &payload, &rec.Version, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", kind, err)
		}
		rec.Payload = []byte(payload)
		rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		records[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", kind, err)
	}
	return records, nil
}

// Save writes payload for (kind, id) and bumps its version.
func (s *Store) Save(kind, id string, payload []byte) error {
	if err := checkKind(kind); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO resource_state (kind, id, payload, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			payload = excluded.payload,
			version = resource_state.version + 1,
			updated_at = excluded.updated_at
	`, kind, id, string(payload), s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", kind, id, err)
	}

	log.Debug().Str("kind", kind).Str("id", id).Int("bytes", len(payload)).Msg("Saved record")
	return nil
}

// Remove deletes the record for (kind, id), if any.
func (s *Store) Remove(kind, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM resource_state WHERE kind = ? AND id = ?`, kind, id); err != nil {
		return fmt.Errorf("failed to remove %s %s: %w", kind, id, err)
	}
	return nil
}

// Reset deletes every record of the given kinds in one transaction and
// returns how many were removed. With no kinds it resets all of Kinds.
func (s *Store) Reset(kinds ...string) (int64, error) {
	if len(kinds) == 0 {
		kinds = Kinds
	}
	for _, kind := range kinds {
		if err := checkKind(kind); err != nil {
			return 0, err
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var removed int64
	for _, kind := range kinds {
		res, err := tx.Exec(`DELETE FROM resource_state WHERE kind = ?`, kind)
		if err != nil {
			return 0, fmt.Errorf("failed to reset %s records: %w", kind, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to reset %s records: %w", kind, err)
		}
		removed += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reset: %w", err)
	}

	log.Info().Strs("kinds", kinds).Int64("removed", removed).Msg("Reset stored state")
	return removed, nil
}
