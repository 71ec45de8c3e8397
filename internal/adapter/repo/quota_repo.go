package repo

import (
	"context"
	"fmt"

	"enhancer/internal/domain"
	"enhancer/internal/infra"
	"enhancer/internal/sqlinline"
)

// QuotaRepositoryPG implements domain.QuotaRepository. Every method expects an
// already-normalized email.
type QuotaRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewQuotaRepository creates a quota repository backed by PostgreSQL.
func NewQuotaRepository(sql infra.SQLExecutor) *QuotaRepositoryPG {
	return &QuotaRepositoryPG{sql: sql}
}

// MonthlyUsage returns the generations recorded for email in period.
func (r *QuotaRepositoryPG) MonthlyUsage(ctx context.Context, email, period string) (int, error) {
	var used int
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectMonthlyUsage, email, period).Scan(&used); err != nil {
		return 0, fmt.Errorf("query monthly usage: %w", err)
	}
	return used, nil
}

// MonthlyLimit returns the explicit per-account limit if one exists.
func (r *QuotaRepositoryPG) MonthlyLimit(ctx context.Context, email string) (int, bool, error) {
	var limit int
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectMonthlyLimit, email).Scan(&limit); err != nil {
		if infra.IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query monthly limit: %w", err)
	}
	return limit, true, nil
}

// Increment adds one generation in a single statement and returns the new total.
func (r *QuotaRepositoryPG) Increment(ctx context.Context, email, period string) (int, error) {
	var used int
	if err := r.sql.QueryRow(ctx, sqlinline.QIncrementMonthlyUsage, email, period).Scan(&used); err != nil {
		return 0, fmt.Errorf("increment monthly usage: %w", err)
	}
	return used, nil
}

// SetLimit stores an explicit monthly limit for email.
func (r *QuotaRepositoryPG) SetLimit(ctx context.Context, email string, limit int) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QUpsertMonthlyLimit, email, limit); err != nil {
		return fmt.Errorf("set monthly limit: %w", err)
	}
	return nil
}

// Reset zeroes the usage counter of email for period.
func (r *QuotaRepositoryPG) Reset(ctx context.Context, email, period string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QResetMonthlyUsage, email, period); err != nil {
		return fmt.Errorf("reset monthly usage: %w", err)
	}
	return nil
}

var _ domain.QuotaRepository = (*QuotaRepositoryPG)(nil)
