package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"telemetry_relay/internal/models"
)

// ProfileSQLite stores each profile as one JSON document.
type ProfileSQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ ProfileRepo = (*ProfileSQLite)(nil)

func NewProfileSQLite(db *sql.DB) *ProfileSQLite {
	return &ProfileSQLite{db: db, now: time.Now}
}

const (
	upsertProfileSQL = `
		INSERT INTO profiles (user_id, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at
	`
	selectProfileSQL     = `SELECT body FROM profiles WHERE user_id = ?`
	selectAllProfilesSQL = `SELECT user_id, body FROM profiles ORDER BY user_id`
)

// Save upserts the profile document.
func (r *ProfileSQLite) Save(ctx context.Context, p *models.Profile) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile %d: %w", p.UserID, err)
	}
	_, err = r.db.ExecContext(ctx, upsertProfileSQL,
		p.UserID,
		string(b),
		r.now().UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert profile %d: %w", p.UserID, err)
	}
	return nil
}

// Load returns (nil, nil) when the user has no stored profile.
func (r *ProfileSQLite) Load(ctx context.Context, userID int) (*models.Profile, error) {
	var body string
	err := r.db.QueryRowContext(ctx, selectProfileSQL, userID).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select profile %d: %w", userID, err)
	}
	return decodeProfile(userID, body)
}

func (r *ProfileSQLite) LoadAll(ctx context.Context) ([]*models.Profile, error) {
	rows, err := r.db.QueryContext(ctx, selectAllProfilesSQL)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	defer rows.Close()

	var out []*models.Profile
	for rows.Next() {
		var (
			userID int
			body   string
		)
		if err := rows.Scan(&userID, &body); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p, err := decodeProfile(userID, body)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeProfile(userID int, body string) (*models.Profile, error) {
	dashes, err := models.ParseDashboards([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("decode profile %d: %w", userID, err)
	}
	return models.NewProfile(userID, dashes), nil
}
