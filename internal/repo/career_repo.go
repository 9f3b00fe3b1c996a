package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CareerRepo — справочник профессий O*NET по навыкам.
type CareerRepo struct {
	pool  *pgxpool.Pool
	limit int
}

// NewCareerRepo создаёт новый CareerRepo. limit — максимум профессий на навык.
func NewCareerRepo(pool *pgxpool.Pool, limit int) *CareerRepo {
	if limit <= 0 {
		limit = 5
	}
	return &CareerRepo{pool: pool, limit: limit}
}

// CareersForSkill возвращает профессии, для которых навык особенно важен.
func (r *CareerRepo) CareersForSkill(ctx context.Context, skill string) ([]string, error) {
	query := `
		SELECT job_title
		FROM onet_skill_careers
		WHERE skill_name = $1
		ORDER BY importance DESC, job_title ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, skill, r.limit)
	if err != nil {
		return nil, fmt.Errorf("query careers: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan career: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}
