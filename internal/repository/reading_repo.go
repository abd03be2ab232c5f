package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"telemetry_relay/internal/models"
)

// DefaultReadingLimit caps a reading listing when no limit is given.
const DefaultReadingLimit = 500

const insertReadingSQL = `
		INSERT INTO pin_readings (user_id, dash_id, device_id, pin_type, pin, value, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

const selectReadingsSQL = `SELECT user_id, dash_id, device_id, pin_type, pin, value, at FROM pin_readings`

// ReadingSQLite keeps the history of pin values reported by hardware.
type ReadingSQLite struct {
	db *sql.DB
}

var _ ReadingRepo = (*ReadingSQLite)(nil)

func NewReadingSQLite(db *sql.DB) *ReadingSQLite { return &ReadingSQLite{db: db} }

func (r *ReadingSQLite) Process(ctx context.Context, rd models.Reading) error {
	if rd.At.IsZero() {
		rd.At = time.Now()
	}
	_, err := r.db.ExecContext(ctx, insertReadingSQL,
		rd.UserID,
		rd.DashID,
		rd.DeviceID,
		rd.PinType.String(),
		rd.Pin,
		rd.Value,
		rd.At.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("insert reading %d-%d %s%d: %w", rd.DashID, rd.DeviceID, rd.PinType, rd.Pin, err)
	}
	return nil
}

// List returns the newest readings of one pin first.
func (r *ReadingSQLite) List(ctx context.Context, f ReadingFilter) ([]models.Reading, error) {
	conds := []string{"user_id = ?", "dash_id = ?", "device_id = ?", "pin_type = ?", "pin = ?"}
	args := []any{f.UserID, f.DashID, f.DeviceID, f.PinType.String(), f.Pin}

	if !f.From.IsZero() {
		conds = append(conds, "at >= ?")
		args = append(args, f.From.UTC().Format(timestampLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "at <= ?")
		args = append(args, f.To.UTC().Format(timestampLayout))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultReadingLimit
	}
	args = append(args, limit)

	q := selectReadingsSQL + " WHERE " + strings.Join(conds, " AND ") + " ORDER BY at DESC, id DESC LIMIT ?"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select readings: %w", err)
	}
	defer rows.Close()

	out := make([]models.Reading, 0, limit)
	for rows.Next() {
		var (
			rd      models.Reading
			typName string
		)
		if err := rows.Scan(&rd.UserID, &rd.DashID, &rd.DeviceID, &typName, &rd.Pin, &rd.Value, &rd.At); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if err := rd.PinType.UnmarshalText([]byte(typName)); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		rd.At = rd.At.UTC()
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
