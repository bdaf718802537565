package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sshwatch/sshwatch/internal/models"
)

// InsertEvent stores a new event and returns its assigned id. The unique
// constraint over (timestamp, username, hostname, event_type, ip_address) is
// the authoritative dedup guard: a conflicting insert returns inserted=false
// rather than an error, so concurrent shippers racing on the same event cannot
// corrupt state.
func (r *PostgresRepository) InsertEvent(ctx context.Context, e *models.Event) (int64, bool, error) {
	q := `INSERT INTO ssh_events (
	        timestamp, event_type, username, hostname, ip_address,
	        status, auth_method, raw_message, created_at
	      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	      ON CONFLICT (timestamp, username, hostname, event_type, ip_address) DO NOTHING
	      RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, q,
		e.Timestamp, e.EventType, e.Username, e.Hostname, e.IPAddress,
		e.Status, e.AuthMethod, e.RawMessage, e.CreatedAt,
	).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Conflict with an existing row: already stored.
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("insert event: %w", err)
	}
	return id, true, nil
}

// FindDuplicate is the fast-path dedup probe: exact match on raw message text,
// second-truncated timestamp, and username. It absorbs shipper retries that
// resend identical payloads with slightly different secondary fields.
func (r *PostgresRepository) FindDuplicate(ctx context.Context, rawMessage string, ts time.Time, username string) (bool, error) {
	q := `SELECT id FROM ssh_events
	      WHERE raw_message = $1 AND timestamp = $2 AND username = $3
	      LIMIT 1`

	var id int64
	err := r.pool.QueryRow(ctx, q, rawMessage, ts, username).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("find duplicate: %w", err)
	}
	return true, nil
}

// ListEvents returns events ordered by timestamp descending with the total
// row count.
func (r *PostgresRepository) ListEvents(ctx context.Context, limit, offset int) ([]models.Event, int64, error) {
	q := `SELECT id, timestamp, event_type, username, hostname, ip_address,
	             status, auth_method, raw_message, created_at
	      FROM ssh_events
	      ORDER BY timestamp DESC
	      LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ssh_events`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// EventsByIDs hydrates events for the given ids, preserving the input order.
// IDs with no matching row are silently omitted.
func (r *PostgresRepository) EventsByIDs(ctx context.Context, ids []int64) ([]models.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q := `SELECT id, timestamp, event_type, username, hostname, ip_address,
	             status, auth_method, raw_message, created_at
	      FROM ssh_events
	      WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("events by ids: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}
	out := make([]models.Event, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Stats returns the aggregate login outcome totals and the top-10 usernames
// by attempt count with per-user success/failure breakdown.
func (r *PostgresRepository) Stats(ctx context.Context) (*models.StatsResponse, error) {
	totals := models.StatsTotals{}
	q := `SELECT
	        COUNT(*) FILTER (WHERE event_type = 'login' AND status = 'success'),
	        COUNT(*) FILTER (WHERE event_type = 'login' AND status = 'failed')
	      FROM ssh_events`
	if err := r.pool.QueryRow(ctx, q).Scan(&totals.LoginSuccess, &totals.LoginFailed); err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}

	uq := `SELECT username,
	              COUNT(*) AS total,
	              COUNT(*) FILTER (WHERE status = 'failed') AS failed,
	              COUNT(*) FILTER (WHERE status = 'success') AS success
	       FROM ssh_events
	       GROUP BY username
	       ORDER BY COUNT(*) DESC
	       LIMIT 10`
	rows, err := r.pool.Query(ctx, uq)
	if err != nil {
		return nil, fmt.Errorf("stats users: %w", err)
	}
	defer rows.Close()

	userStats := []models.UserStat{}
	for rows.Next() {
		var s models.UserStat
		if err := rows.Scan(&s.Username, &s.Total, &s.Failed, &s.Success); err != nil {
			return nil, fmt.Errorf("scan user stat: %w", err)
		}
		userStats = append(userStats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats users: %w", err)
	}

	return &models.StatsResponse{Total: totals, UserStats: userStats}, nil
}

// SourceActivity aggregates the behavior of one source IP over a trailing
// window, scanning at most rowCap recent rows to keep cost bounded under
// failed-login floods. Both time boundaries are bound parameters.
func (r *PostgresRepository) SourceActivity(ctx context.Context, ip string, since, recentSince time.Time, rowCap int) (*SourceActivity, error) {
	q := `SELECT COUNT(*),
	             COUNT(*) FILTER (WHERE status = 'failed'),
	             COUNT(DISTINCT username),
	             COUNT(*) FILTER (WHERE status = 'failed' AND timestamp > $4)
	      FROM (
	        SELECT username, status, timestamp
	        FROM ssh_events
	        WHERE ip_address = $1 AND timestamp > $2
	        ORDER BY timestamp DESC
	        LIMIT $3
	      ) recent`

	var a SourceActivity
	err := r.pool.QueryRow(ctx, q, ip, since, rowCap, recentSince).Scan(
		&a.Total, &a.Failed, &a.DistinctUsernames, &a.RecentFailures,
	)
	if err != nil {
		return nil, fmt.Errorf("source activity: %w", err)
	}
	return &a, nil
}

// SourceActivity is the windowed aggregate for one source IP.
type SourceActivity struct {
	Total             int64
	Failed            int64
	DistinctUsernames int64
	RecentFailures    int64
}

func scanEvents(rows pgx.Rows) ([]models.Event, error) {
	events := []models.Event{}
	for rows.Next() {
		var e models.Event
		var hostname, authMethod *string
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.EventType, &e.Username, &hostname,
			&e.IPAddress, &e.Status, &authMethod, &e.RawMessage, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if hostname != nil {
			e.Hostname = *hostname
		}
		if authMethod != nil {
			e.AuthMethod = *authMethod
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
