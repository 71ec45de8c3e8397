package domain

import (
	"context"
	"time"
)

// TemplateRepository reads enhancement templates and category preambles.
type TemplateRepository interface {
	// GetTemplates returns the active templates among ids, keyed by id. Missing
	// ids are simply absent from the map.
	GetTemplates(ctx context.Context, ids []string) (map[string]EnhancementTemplate, error)
	// GetCategoryPrompt returns nil without error when the category has none.
	GetCategoryPrompt(ctx context.Context, category string) (*CategoryPrompt, error)
	ListActive(ctx context.Context, category string) ([]EnhancementTemplate, error)
}

// QuotaRepository tracks monthly generation usage keyed by normalized email.
type QuotaRepository interface {
	MonthlyUsage(ctx context.Context, email, period string) (int, error)
	// MonthlyLimit reports found=false when the account has no explicit limit.
	MonthlyLimit(ctx context.Context, email string) (limit int, found bool, err error)
	// Increment atomically adds one generation and returns the new total.
	Increment(ctx context.Context, email, period string) (int, error)
	SetLimit(ctx context.Context, email string, limit int) error
	Reset(ctx context.Context, email, period string) error
}

// HistoryRepository is the append-only generation history.
type HistoryRepository interface {
	Insert(ctx context.Context, record *HistoryRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]HistoryRecord, error)
}

// JobRepository persists the generation journal.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	// MarkSucceeded reports true only for the call that performed the transition.
	MarkSucceeded(ctx context.Context, taskID, resultURL string) (bool, error)
	MarkFinished(ctx context.Context, taskID string, state JobState, reason string) error
	GetByTaskID(ctx context.Context, taskID string) (*GenerationJob, error)
	// RenewLease sets the lease of a POLLING job to lease from now.
	RenewLease(ctx context.Context, taskID string, lease time.Duration) error
	// ClaimStale leases up to limit POLLING jobs whose lease expired.
	ClaimStale(ctx context.Context, lease time.Duration, limit int) ([]GenerationJob, error)
}
