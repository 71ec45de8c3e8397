package imagegen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"enhancer/internal/domain"
)

// NormalizeEmail produces the quota key for an email so that case or Unicode
// width variants of one address share a counter.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFKC.String(strings.TrimSpace(email))))
}

// QuotaKey resolves the counter key for a caller. Usage is keyed by email;
// callers with an id but no email fall back to an id-scoped key. An empty key
// means the caller is anonymous.
func QuotaKey(callerID, email string) string {
	if e := NormalizeEmail(email); e != "" {
		return e
	}
	if id := strings.TrimSpace(callerID); id != "" {
		return "user:" + id
	}
	return ""
}

// QuotaGuard enforces the monthly generation allowance.
type QuotaGuard struct {
	repo         domain.QuotaRepository
	defaultLimit int
	now          func() time.Time
}

// NewQuotaGuard constructs a guard. defaultLimit applies to accounts without an
// explicit limit row.
func NewQuotaGuard(repo domain.QuotaRepository, defaultLimit int) *QuotaGuard {
	return &QuotaGuard{repo: repo, defaultLimit: defaultLimit, now: time.Now}
}

// Status reads usage and limit for key in the current period.
func (g *QuotaGuard) Status(ctx context.Context, key string) (domain.QuotaStatus, error) {
	period := domain.QuotaPeriod(g.now())
	used, err := g.repo.MonthlyUsage(ctx, key, period)
	if err != nil {
		return domain.QuotaStatus{}, fmt.Errorf("read usage: %w", err)
	}
	limit, found, err := g.repo.MonthlyLimit(ctx, key)
	if err != nil {
		return domain.QuotaStatus{}, fmt.Errorf("read limit: %w", err)
	}
	if !found {
		limit = g.defaultLimit
	}
	return domain.QuotaStatus{Email: key, Period: period, Used: used, Limit: limit}, nil
}

// Check denies callers whose usage reached their limit with a
// *domain.QuotaError. Anonymous callers are always allowed.
func (g *QuotaGuard) Check(ctx context.Context, callerID, email string) error {
	key := QuotaKey(callerID, email)
	if key == "" {
		return nil
	}
	status, err := g.Status(ctx, key)
	if err != nil {
		return err
	}
	if status.Used >= status.Limit {
		return &domain.QuotaError{Current: status.Used, Limit: status.Limit}
	}
	return nil
}

// Record counts one successful generation. It is a single atomic statement in
// the store, so concurrent generations are never undercounted.
func (g *QuotaGuard) Record(ctx context.Context, callerID, email string) (int, error) {
	key := QuotaKey(callerID, email)
	if key == "" {
		return 0, nil
	}
	used, err := g.repo.Increment(ctx, key, domain.QuotaPeriod(g.now()))
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return used, nil
}
