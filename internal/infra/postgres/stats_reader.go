package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizhub-service/internal/domain"
)

// StatsReader serves the aggregate queries over a pgx pool, separate from the
// ORM path: the aggregates are plain SQL and read-only, and the pool keeps
// them off the transactional connections.
type StatsReader struct {
	pool *pgxpool.Pool
}

func NewStatsReader(pool *pgxpool.Pool) *StatsReader {
	return &StatsReader{pool: pool}
}

// UserStats aggregates a user's finished attempts; in-progress attempts never
// count. A nil companyID means system-wide.
func (r *StatsReader) UserStats(ctx context.Context, userID uuid.UUID, companyID *uuid.UUID) (domain.UserStats, error) {
	stats := domain.UserStats{UserID: userID, CompanyID: companyID}

	query := `SELECT count(*),
	                 coalesce(avg(score), 0),
	                 coalesce(sum(correct_answers_count), 0),
	                 coalesce(sum(total_questions_count), 0)
	          FROM attempts
	          WHERE user_id = $1 AND status <> 'in_progress'`
	args := []interface{}{userID}
	if companyID != nil {
		query += ` AND company_id = $2`
		args = append(args, *companyID)
	}

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.AttemptCount,
		&stats.AverageScore,
		&stats.TotalCorrect,
		&stats.TotalAnswered,
	)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("user stats: %w", err)
	}
	return stats, nil
}

// QuizStats aggregates finished attempts against one quiz version.
func (r *StatsReader) QuizStats(ctx context.Context, quizID uuid.UUID) (domain.QuizStats, error) {
	stats := domain.QuizStats{QuizID: quizID, UpdatedAt: time.Now()}

	err := r.pool.QueryRow(ctx,
		`SELECT count(*), coalesce(avg(score), 0)
		 FROM attempts
		 WHERE quiz_id = $1 AND status <> 'in_progress'`, quizID).
		Scan(&stats.AttemptCount, &stats.AverageScore)
	if err != nil {
		return domain.QuizStats{}, fmt.Errorf("quiz stats: %w", err)
	}
	return stats, nil
}
