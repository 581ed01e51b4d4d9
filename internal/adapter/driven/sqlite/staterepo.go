package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
	"github.com/ericfisherdev/seewatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StateStore = (*StateRepo)(nil)

// StateRepo is the SQLite implementation of the StateStore port: a flat
// key/value table plus the versioned lecture snapshot stored in it.
type StateRepo struct {
	db *DB
}

// NewStateRepo creates a new StateRepo.
func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

// Get returns the value stored under key, and false when there is none.
func (r *StateRepo) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM state WHERE key = ?`

	var value string
	err := r.db.Reader.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores or replaces the value under key.
func (r *StateRepo) Set(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

	if _, err := r.db.Writer.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

// LoadLectures decodes the lecture snapshot. Both the versioned object and the
// legacy bare array (version 0) are accepted; anything else wraps
// driven.ErrCorruptState.
func (r *StateRepo) LoadLectures(ctx context.Context) ([]model.Lecture, error) {
	raw, ok, err := r.Get(ctx, model.StateKeyLectures)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []model.Lecture{}, nil
	}
	return decodeLectureSnapshot([]byte(raw))
}

// SaveLectures stores lectures as the current snapshot version.
func (r *StateRepo) SaveLectures(ctx context.Context, lectures []model.Lecture) error {
	if lectures == nil {
		lectures = []model.Lecture{}
	}
	data, err := json.Marshal(model.LectureSnapshot{Version: model.LectureSnapshotVersion, Lectures: lectures})
	if err != nil {
		return fmt.Errorf("marshal lecture snapshot: %w", err)
	}
	return r.Set(ctx, model.StateKeyLectures, string(data))
}

func decodeLectureSnapshot(raw []byte) ([]model.Lecture, error) {
	trimmed := bytes.TrimSpace(raw)

	var lectures []model.Lecture
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &lectures); err != nil {
			return nil, fmt.Errorf("legacy lecture list: %w: %w", driven.ErrCorruptState, err)
		}
	case len(trimmed) > 0 && trimmed[0] == '{':
		var snap model.LectureSnapshot
		if err := json.Unmarshal(trimmed, &snap); err != nil {
			return nil, fmt.Errorf("lecture snapshot: %w: %w", driven.ErrCorruptState, err)
		}
		if snap.Version < 1 || snap.Version > model.LectureSnapshotVersion {
			return nil, fmt.Errorf("lecture snapshot version %d: %w", snap.Version, driven.ErrCorruptState)
		}
		lectures = snap.Lectures
	default:
		return nil, fmt.Errorf("lecture snapshot: unrecognised value: %w", driven.ErrCorruptState)
	}

	if lectures == nil {
		lectures = []model.Lecture{}
	}
	return lectures, nil
}
