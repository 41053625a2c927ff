package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/mattn/go-sqlite3"
)

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// encodeTrack serializes a track for a TEXT column; nil becomes NULL.
func encodeTrack(t *models.UniversalTrack) (sql.NullString, error) {
	if t == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode track: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeTrack(s sql.NullString) (*models.UniversalTrack, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var t models.UniversalTrack
	if err := json.Unmarshal([]byte(s.String), &t); err != nil {
		return nil, fmt.Errorf("failed to decode track: %w", err)
	}
	return &t, nil
}
