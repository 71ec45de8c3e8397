package imagegen

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"enhancer/internal/domain"
	"enhancer/internal/infra"
)

// Recoverer resumes journal entries whose owning process stopped polling. It
// polls by task id and never resubmits.
type Recoverer struct {
	jobs        domain.JobRepository
	poller      Awaiter
	persister   *Persister
	logger      *infra.Logger
	lease       time.Duration
	batchSize   int
	concurrency int
}

// RecovererOptions configures a Recoverer.
type RecovererOptions struct {
	Lease       time.Duration
	BatchSize   int
	Concurrency int
	Logger      *infra.Logger
}

// NewRecoverer constructs a Recoverer.
func NewRecoverer(jobs domain.JobRepository, poller Awaiter, persister *Persister, opts RecovererOptions) *Recoverer {
	if opts.Lease <= 0 {
		opts.Lease = 3 * time.Minute
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = opts.Concurrency * 4
	}
	if opts.Logger == nil {
		opts.Logger = infra.NopLogger()
	}
	return &Recoverer{
		jobs:        jobs,
		poller:      poller,
		persister:   persister,
		logger:      opts.Logger,
		lease:       opts.Lease,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
	}
}

// RunOnce claims one batch of stale jobs and drives each to a terminal state.
// It returns the number of claimed jobs.
func (r *Recoverer) RunOnce(ctx context.Context) (int, error) {
	claimed, err := r.jobs.ClaimStale(ctx, r.lease, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, job := range claimed {
		g.Go(func() error {
			r.resume(gctx, job)
			return nil
		})
	}
	return len(claimed), g.Wait()
}

// Run calls RunOnce every interval until ctx is done.
func (r *Recoverer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := r.RunOnce(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			r.logger.Error().Err(err).Msg("recovery: claim failed")
		case n > 0:
			r.logger.Info().Int("jobs", n).Msg("recovery: batch processed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Recoverer) resume(ctx context.Context, job domain.GenerationJob) {
	log := r.logger.With().Str("task_id", job.TaskID).Str("user_id", job.UserID).Logger()
	log.Info().Msg("recovery: resuming poll")
	stop := holdLease(ctx, r.jobs, job.TaskID, r.lease, r.logger)
	defer stop()

	polled, err := r.poller.Await(ctx, job.TaskID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if ferr := r.jobs.MarkFinished(ctx, job.TaskID, JobStateFor(err), err.Error()); ferr != nil {
			log.Warn().Err(ferr).Msg("recovery: journal update failed")
		}
		log.Warn().Err(err).Msg("recovery: job did not succeed")
		return
	}

	persisted, err := r.persister.Persist(ctx, PersistInput{
		TaskID:           job.TaskID,
		CallerID:         job.UserID,
		CallerEmail:      job.UserEmail,
		SourceImage:      job.SourceImage,
		ResultURL:        polled.ResultURL,
		Prompt:           job.Prompt,
		EnhancementLabel: job.EnhancementLabel,
		CategoryLabel:    job.CategoryLabel,
	})
	if err != nil {
		if ferr := r.jobs.MarkFinished(ctx, job.TaskID, domain.JobStateFailed, err.Error()); ferr != nil {
			log.Warn().Err(ferr).Msg("recovery: journal update failed")
		}
		log.Error().Err(err).Msg("recovery: result unusable")
		return
	}
	log.Info().Str("storage_key", persisted.StorageKey).Int("warnings", len(persisted.Warnings)).Msg("recovery: job completed")
}
