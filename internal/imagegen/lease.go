package imagegen

import (
	"context"
	"time"

	"enhancer/internal/domain"
	"enhancer/internal/infra"
)

// holdLease renews the journal lease of taskID every third of lease until
// stop is called, so a recovery worker never claims a task that is still
// being polled. stop waits for the renewal goroutine to exit.
func holdLease(ctx context.Context, jobs domain.JobRepository, taskID string, lease time.Duration, logger *infra.Logger) (stop func()) {
	if jobs == nil || taskID == "" || lease <= 0 {
		return func() {}
	}
	every := lease / 3
	if every <= 0 {
		every = lease
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := jobs.RenewLease(ctx, taskID, lease); err != nil {
					logger.Warn().Err(err).Str("task_id", taskID).Str("stage", "journal").Msg("imagegen: lease renewal failed")
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}
