package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"enhancer/internal/domain"
	"enhancer/internal/infra"
	"enhancer/internal/sqlinline"
)

// HistoryRepositoryPG implements domain.HistoryRepository.
type HistoryRepositoryPG struct {
	sql infra.SQLExecutor
	now func() time.Time
}

// NewHistoryRepository creates a history repository backed by PostgreSQL.
func NewHistoryRepository(sql infra.SQLExecutor) *HistoryRepositoryPG {
	return &HistoryRepositoryPG{sql: sql, now: time.Now}
}

// Insert appends a record, assigning ID and CreatedAt when they are empty.
func (r *HistoryRepositoryPG) Insert(ctx context.Context, record *domain.HistoryRecord) error {
	if record == nil {
		return fmt.Errorf("history record is required")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now().UTC()
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertHistory,
		record.ID,
		record.UserID,
		record.UserEmail,
		record.SourceImagePath,
		record.ResultImagePath,
		record.EnhancementLabel,
		record.CategoryLabel,
		record.PromptUsed,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListByUser returns the newest records first.
func (r *HistoryRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectHistoryByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	var items []domain.HistoryRecord
	for rows.Next() {
		var h domain.HistoryRecord
		if err := rows.Scan(&h.ID, &h.UserID, &h.UserEmail, &h.SourceImagePath, &h.ResultImagePath,
			&h.EnhancementLabel, &h.CategoryLabel, &h.PromptUsed, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return items, nil
}

var _ domain.HistoryRepository = (*HistoryRepositoryPG)(nil)
