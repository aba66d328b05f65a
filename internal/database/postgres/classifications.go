package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-moments/internal/prompt"
)

// ClassificationRepository stores prompt classification results per media item.
type ClassificationRepository struct {
	pool *Pool
}

// NewClassificationRepository creates a repository backed by pool.
func NewClassificationRepository(pool *Pool) *ClassificationRepository {
	return &ClassificationRepository{pool: pool}
}

// LoadClassification implements prompt.Persister.
func (r *ClassificationRepository) LoadClassification(ctx context.Context, mediaID int64) (prompt.Result, bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT categories FROM media_classifications WHERE media_id = $1`, mediaID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get classification: %w", err)
	}

	result := prompt.Result{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("decode classification of %d: %w", mediaID, err)
	}
	return result, true, nil
}

// SaveClassification implements prompt.Persister.
func (r *ClassificationRepository) SaveClassification(ctx context.Context, mediaID int64, result prompt.Result) error {
	if result == nil {
		result = prompt.Result{}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode classification: %w", err)
	}

	query := `
		INSERT INTO media_classifications (media_id, categories, classified_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (media_id) DO UPDATE SET
			categories = EXCLUDED.categories,
			classified_at = EXCLUDED.classified_at
	`
	if _, err := r.pool.Exec(ctx, query, mediaID, raw); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	return nil
}

// Count returns the number of stored classifications.
func (r *ClassificationRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM media_classifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count classifications: %w", err)
	}
	return n, nil
}

// DeleteAll removes every stored classification and returns how many there were.
func (r *ClassificationRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM media_classifications`)
	if err != nil {
		return 0, fmt.Errorf("delete classifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
