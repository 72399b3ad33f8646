package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/semachat/sema/internal/domain"
)

type CallLogRepo struct {
	pool *pgxpool.Pool
}

func NewCallLogRepo(pool *pgxpool.Pool) *CallLogRepo {
	return &CallLogRepo{pool: pool}
}

func (r *CallLogRepo) Record(ctx context.Context, rec *domain.CallRecord) error {
	// Terminal transitions are idempotent upstream, but a timer/hangup race
	// can reach persistence twice. The conflict clause keeps the first write.
	query := `
		INSERT INTO call_log (id, caller_id, callee_id, media, status, reason, started_at, ended_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.CallerID, rec.CalleeID, rec.Media, rec.Status, rec.Reason,
		rec.StartedAt, rec.EndedAt, rec.Duration.Milliseconds(),
	)
	return err
}

func (r *CallLogRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.CallRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, caller_id, callee_id, media, status, reason, started_at, ended_at, duration_ms
		FROM call_log
		WHERE caller_id = $1 OR callee_id = $1
		ORDER BY started_at DESC
		LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.CallRecord
	for rows.Next() {
		var rec domain.CallRecord
		var durationMs int64
		if err := rows.Scan(
			&rec.ID, &rec.CallerID, &rec.CalleeID, &rec.Media, &rec.Status,
			&rec.Reason, &rec.StartedAt, &rec.EndedAt, &durationMs,
		); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
