package store

import (
	"context"
	"fmt"
	"time"

	"market-sync/internal/series"
)

func (s *Store) InsertEvent(ctx context.Context, e series.Event) error {
	if s == nil || s.db == nil {
		return nil
	}
	if e.TS == 0 {
		e.TS = time.Now().Unix()
	}
	d := s.dialect
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO sync_events (pass_id, ts, series, date, outcome, kind, reason, created_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`, d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6), d.ph(7), d.ph(8)),
		e.PassID, e.TS, e.Series, e.Date, string(e.Outcome), string(e.Kind), e.Reason, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// QueryEvents returns recent events, optionally for one series or pass.
func (s *Store) QueryEvents(ctx context.Context, seriesID, passID string, limit int) ([]series.Event, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	d := s.dialect
	query := `SELECT pass_id, ts, series, date, outcome, kind, reason FROM sync_events WHERE 1 = 1`
	var args []any
	if seriesID != "" {
		args = append(args, seriesID)
		query += " AND series = " + d.ph(len(args))
	}
	if passID != "" {
		args = append(args, passID)
		query += " AND pass_id = " + d.ph(len(args))
	}
	args = append(args, limit)
	query += " ORDER BY id DESC LIMIT " + d.ph(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []series.Event
	for rows.Next() {
		var e series.Event
		var outcome, kind string
		if err := rows.Scan(&e.PassID, &e.TS, &e.Series, &e.Date, &outcome, &kind, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Outcome = series.Outcome(outcome)
		e.Kind = series.Kind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows event: %w", err)
	}
	return out, nil
}
