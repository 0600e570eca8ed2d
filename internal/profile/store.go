package profile

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a user has no profile row.
var ErrNotFound = errors.New("profile not found")

// Store is the read-only profile query interface the matcher consumes.
// The platform's profile service owns all writes.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	ListMatchable(ctx context.Context, excludeUserID string, limit int) ([]*Profile, error)
}

// PostgresStore reads profiles from the platform database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, available_from, available_to, working_hours, timezone, updated_at
		FROM user_profiles
		WHERE user_id = $1`, userID)

	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query profile")
	}

	return p, nil
}

func (s *PostgresStore) ListMatchable(ctx context.Context, excludeUserID string, limit int) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, available_from, available_to, working_hours, timezone, updated_at
		FROM user_profiles
		WHERE user_id <> $1 AND matchable = TRUE
		ORDER BY updated_at DESC
		LIMIT $2`, excludeUserID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list matchable profiles")
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan profile")
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var workingHours []byte

	if err := row.Scan(&p.UserID, &p.AvailableFrom, &p.AvailableTo, &workingHours, &p.Timezone, &p.UpdatedAt); err != nil {
		return nil, err
	}

	if len(workingHours) > 0 {
		if err := json.Unmarshal(workingHours, &p.WorkingHours); err != nil {
			return nil, errors.Wrap(err, "failed to decode working hours")
		}
	}

	return &p, nil
}
