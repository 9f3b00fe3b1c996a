package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Playroom/internal/domain"
)

// ScanRepo — репозиторий для работы со сканами.
type ScanRepo struct {
	pool *pgxpool.Pool
}

// NewScanRepo создаёт новый ScanRepo.
func NewScanRepo(pool *pgxpool.Pool) *ScanRepo {
	return &ScanRepo{pool: pool}
}

const scanColumns = `id, content_path, content_hash, subject_age, status, error, result, created_at`

// Create создаёт новый скан.
// Возвращает ErrAlreadyExists, если скан с таким content_hash уже есть.
func (r *ScanRepo) Create(ctx context.Context, scan *domain.Scan) error {
	query := `
		INSERT INTO scans (id, content_path, content_hash, subject_age, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		scan.ID,
		scan.ContentPath,
		scan.ContentHash,
		scan.SubjectAge,
		scan.Status,
		scan.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// GetByID возвращает скан по ID.
func (r *ScanRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE id = $1`
	return scanScan(r.pool.QueryRow(ctx, query, id))
}

// GetByHash возвращает скан по хэшу содержимого.
func (r *ScanRepo) GetByHash(ctx context.Context, hash string) (*domain.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE content_hash = $1`
	return scanScan(r.pool.QueryRow(ctx, query, hash))
}

// ListPending возвращает все pending сканы.
// Порядок (created_at, id) стабилен и задаёт позиционную корреляцию внутри run.
func (r *ScanRepo) ListPending(ctx context.Context) ([]domain.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE status = 'pending' ORDER BY created_at ASC, id ASC`
	return r.list(ctx, query)
}

// ListCreatedBefore возвращает сканы, созданные раньше cutoff.
func (r *ScanRepo) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE created_at < $1 ORDER BY created_at ASC`
	return r.list(ctx, query, cutoff)
}

// CountSince возвращает количество сканов, созданных начиная с since.
func (r *ScanRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM scans WHERE created_at >= $1`, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count scans: %w", err)
	}
	return count, nil
}

// ListContentPaths возвращает множество путей, на которые ссылаются сканы.
func (r *ScanRepo) ListContentPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT content_path FROM scans WHERE content_path <> ''`)
	if err != nil {
		return nil, fmt.Errorf("list content paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan content path: %w", err)
		}
		paths[p] = struct{}{}
	}
	return paths, rows.Err()
}

// Complete записывает результат и переводит скан в done одним UPDATE.
// При ошибке статус не меняется.
func (r *ScanRepo) Complete(ctx context.Context, id uuid.UUID, payload domain.Payload) error {
	resultJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	result, err := r.pool.Exec(ctx,
		`UPDATE scans SET result = $2, status = 'done', error = NULL WHERE id = $1`,
		id, resultJSON,
	)
	if err != nil {
		return fmt.Errorf("complete scan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Fail переводит скан в error с причиной.
func (r *ScanRepo) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE scans SET status = 'error', error = $2 WHERE id = $1 AND status = 'pending'`,
		id, nullString(reason),
	)
	if err != nil {
		return fmt.Errorf("fail scan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет скан по ID.
func (r *ScanRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete scan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func (r *ScanRepo) list(ctx context.Context, query string, args ...any) ([]domain.Scan, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []domain.Scan
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, *scan)
	}
	return scans, rows.Err()
}

// scanScan сканирует одну строку в Scan.
// pgx.Rows реализует pgx.Row, поэтому функция обслуживает и QueryRow, и Query.
func scanScan(row pgx.Row) (*domain.Scan, error) {
	var scan domain.Scan
	var resultJSON []byte
	var scanError *string

	err := row.Scan(
		&scan.ID,
		&scan.ContentPath,
		&scan.ContentHash,
		&scan.SubjectAge,
		&scan.Status,
		&scanError,
		&resultJSON,
		&scan.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan scan: %w", err)
	}

	if resultJSON != nil {
		var payload domain.Payload
		if err := json.Unmarshal(resultJSON, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		scan.Result = &payload
	}
	if scanError != nil {
		scan.Error = *scanError
	}

	return &scan, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
