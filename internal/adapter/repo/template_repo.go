package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"enhancer/internal/domain"
	"enhancer/internal/infra"
	"enhancer/internal/sqlinline"
)

// TemplateRepositoryPG implements domain.TemplateRepository.
type TemplateRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewTemplateRepository creates a template repository backed by PostgreSQL.
func NewTemplateRepository(sql infra.SQLExecutor) *TemplateRepositoryPG {
	return &TemplateRepositoryPG{sql: sql}
}

// GetTemplates loads the active templates for ids in a single round trip.
func (r *TemplateRepositoryPG) GetTemplates(ctx context.Context, ids []string) (map[string]domain.EnhancementTemplate, error) {
	out := make(map[string]domain.EnhancementTemplate, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectActiveTemplatesByIDs, ids)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	items, err := scanTemplates(rows)
	if err != nil {
		return nil, err
	}
	for _, tpl := range items {
		out[tpl.EnhancementID] = tpl
	}
	return out, nil
}

// GetCategoryPrompt returns the category's system preamble, or nil when none is stored.
func (r *TemplateRepositoryPG) GetCategoryPrompt(ctx context.Context, category string) (*domain.CategoryPrompt, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, nil
	}
	var cp domain.CategoryPrompt
	err := r.sql.QueryRow(ctx, sqlinline.QSelectCategoryPrompt, category).Scan(&cp.CategoryLabel, &cp.SystemPreamble)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query category prompt: %w", err)
	}
	if strings.TrimSpace(cp.SystemPreamble) == "" {
		return nil, nil
	}
	return &cp, nil
}

// ListActive returns the enhancement menu for a category; an empty category lists everything.
func (r *TemplateRepositoryPG) ListActive(ctx context.Context, category string) ([]domain.EnhancementTemplate, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListActiveTemplates, strings.TrimSpace(category))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return scanTemplates(rows)
}

func scanTemplates(rows pgx.Rows) ([]domain.EnhancementTemplate, error) {
	defer rows.Close()
	var items []domain.EnhancementTemplate
	for rows.Next() {
		var tpl domain.EnhancementTemplate
		if err := rows.Scan(&tpl.EnhancementID, &tpl.Title, &tpl.PromptTemplate, &tpl.Category, &tpl.IsActive); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		items = append(items, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return items, nil
}

var _ domain.TemplateRepository = (*TemplateRepositoryPG)(nil)
