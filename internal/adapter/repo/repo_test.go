package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"enhancer/internal/domain"
	"enhancer/internal/sqlinline"
)

func TestTemplateRepositoryGetTemplates(t *testing.T) {
	exec := &stubExecutor{rows: [][]any{
		{"clean_background", "Clean background", "Replace the background with pure white.", "", true},
		{"add_female_model", "Add female model", "Show the product worn by a model.", "clothing", true},
	}}
	repo := NewTemplateRepository(exec)

	got, err := repo.GetTemplates(context.Background(), []string{"clean_background", "add_female_model", "missing"})
	if err != nil {
		t.Fatalf("GetTemplates error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("templates len = %d, want 2", len(got))
	}
	if got["add_female_model"].Category != "clothing" {
		t.Fatalf("unexpected template: %#v", got["add_female_model"])
	}
	if exec.calls[0].query != sqlinline.QSelectActiveTemplatesByIDs {
		t.Fatalf("unexpected query used")
	}
}

func TestTemplateRepositoryEmptyIDsSkipsQuery(t *testing.T) {
	exec := &stubExecutor{}
	got, err := NewTemplateRepository(exec).GetTemplates(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("GetTemplates(nil) = %v, %v", got, err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("expected no database call")
	}
}

func TestTemplateRepositoryCategoryPromptMissing(t *testing.T) {
	repo := NewTemplateRepository(&stubExecutor{})
	cp, err := repo.GetCategoryPrompt(context.Background(), "clothing")
	if err != nil {
		t.Fatalf("GetCategoryPrompt error: %v", err)
	}
	if cp != nil {
		t.Fatalf("expected nil category prompt, got %#v", cp)
	}
}

func TestTemplateRepositoryPropagatesConnectivityErrors(t *testing.T) {
	boom := errors.New("connection refused")
	repo := NewTemplateRepository(&stubExecutor{err: boom})
	if _, err := repo.GetTemplates(context.Background(), []string{"x"}); !errors.Is(err, boom) {
		t.Fatalf("GetTemplates err = %v, want wrapped connectivity error", err)
	}
	if _, err := repo.GetCategoryPrompt(context.Background(), "clothing"); !errors.Is(err, boom) {
		t.Fatalf("GetCategoryPrompt err = %v, want wrapped connectivity error", err)
	}
}

func TestQuotaRepositoryLimitNotFound(t *testing.T) {
	repo := NewQuotaRepository(&stubExecutor{})
	limit, found, err := repo.MonthlyLimit(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("MonthlyLimit error: %v", err)
	}
	if found || limit != 0 {
		t.Fatalf("MonthlyLimit = %d, %v; want 0, false", limit, found)
	}
}

func TestQuotaRepositoryIncrementUsesSingleStatement(t *testing.T) {
	exec := &stubExecutor{row: []any{4}}
	repo := NewQuotaRepository(exec)
	used, err := repo.Increment(context.Background(), "a@example.com", "2026-10")
	if err != nil {
		t.Fatalf("Increment error: %v", err)
	}
	if used != 4 {
		t.Fatalf("used = %d, want 4", used)
	}
	if len(exec.calls) != 1 || exec.calls[0].query != sqlinline.QIncrementMonthlyUsage {
		t.Fatalf("increment must be one upsert statement, calls=%d", len(exec.calls))
	}
	if exec.calls[0].args[0] != "a@example.com" || exec.calls[0].args[1] != "2026-10" {
		t.Fatalf("unexpected args: %#v", exec.calls[0].args)
	}
}

func TestHistoryRepositoryInsertAssignsIdentity(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewHistoryRepository(exec)
	fixed := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	rec := &domain.HistoryRecord{UserID: "u1", ResultImagePath: "u1/1-enhanced.png", PromptUsed: "p"}
	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !rec.CreatedAt.Equal(fixed) {
		t.Fatalf("CreatedAt = %s, want %s", rec.CreatedAt, fixed)
	}
	if len(exec.calls[0].args) != 9 {
		t.Fatalf("expected 9 args, got %d", len(exec.calls[0].args))
	}
}

func TestJobRepositoryMarkSucceededOnce(t *testing.T) {
	first := &stubExecutor{row: []any{"job-1"}}
	ok, err := NewJobRepository(first).MarkSucceeded(context.Background(), "task-1", "u/1.png")
	if err != nil || !ok {
		t.Fatalf("first MarkSucceeded = %v, %v; want true", ok, err)
	}

	second := &stubExecutor{}
	ok, err = NewJobRepository(second).MarkSucceeded(context.Background(), "task-1", "u/1.png")
	if err != nil || ok {
		t.Fatalf("repeated MarkSucceeded = %v, %v; want false", ok, err)
	}
}

func TestJobRepositoryGetByTaskIDNotFound(t *testing.T) {
	_, err := NewJobRepository(&stubExecutor{}).GetByTaskID(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestJobRepositoryClaimStale(t *testing.T) {
	lease := time.Date(2026, 10, 17, 8, 3, 0, 0, time.UTC)
	created := lease.Add(-10 * time.Minute)
	exec := &stubExecutor{rows: [][]any{
		{"job-1", "task-1", "u1", "a@example.com", "u1/src.jpg", "prompt", "clothing", "Add female model", "POLLING", lease, created},
	}}
	jobs, err := NewJobRepository(exec).ClaimStale(context.Background(), 3*time.Minute, 5)
	if err != nil {
		t.Fatalf("ClaimStale error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].TaskID != "task-1" || jobs[0].State != domain.JobStatePolling {
		t.Fatalf("unexpected jobs: %#v", jobs)
	}
	if exec.calls[0].args[0] != 180 || exec.calls[0].args[1] != 5 {
		t.Fatalf("unexpected claim args: %#v", exec.calls[0].args)
	}
}

func TestJobRepositoryRenewLease(t *testing.T) {
	exec := &stubExecutor{}
	if err := NewJobRepository(exec).RenewLease(context.Background(), "task-1", 90*time.Second); err != nil {
		t.Fatalf("RenewLease error: %v", err)
	}
	if len(exec.calls) != 1 || exec.calls[0].query != sqlinline.QRenewJobLease {
		t.Fatalf("unexpected calls: %#v", exec.calls)
	}
	if exec.calls[0].args[0] != "task-1" || exec.calls[0].args[1] != 90 {
		t.Fatalf("unexpected renew args: %#v", exec.calls[0].args)
	}

	failing := &stubExecutor{err: errors.New("conn reset")}
	if err := NewJobRepository(failing).RenewLease(context.Background(), "task-1", time.Minute); err == nil {
		t.Fatalf("expected error to propagate")
	}
}
