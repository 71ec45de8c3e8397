package kie

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"enhancer/internal/domain"
	"enhancer/internal/infra"
)

// Phase is the observed lifecycle stage of a provider job.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseProcessing Phase = "processing"
	PhaseSucceeded  Phase = "success"
	PhaseFailed     Phase = "fail"
	PhaseTimedOut   Phase = "timeout"
)

// Observation is one status response. Valid is false when the response could
// not be read at all; such observations only consume an attempt.
type Observation struct {
	Valid      bool
	State      string
	ResultURLs []string
	FailCode   string
	FailMsg    string
}

// Machine is the poll state for one task. It is advanced only by Transition.
type Machine struct {
	TaskID      string
	Phase       Phase
	Attempts    int
	MaxAttempts int
	ResultURL   string
	Err         error
}

// NewMachine starts a task in the pending phase.
func NewMachine(taskID string, maxAttempts int) Machine {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return Machine{TaskID: taskID, Phase: PhasePending, MaxAttempts: maxAttempts}
}

// Terminal reports whether polling has stopped.
func (m Machine) Terminal() bool {
	switch m.Phase {
	case PhaseSucceeded, PhaseFailed, PhaseTimedOut:
		return true
	default:
		return false
	}
}

// Transition applies one observation. Terminal machines are returned unchanged.
func Transition(m Machine, obs Observation) Machine {
	if m.Terminal() {
		return m
	}
	m.Attempts++

	if obs.Valid {
		switch normalizeState(obs.State) {
		case PhasePending:
			m.Phase = PhasePending
		case PhaseProcessing:
			m.Phase = PhaseProcessing
		case PhaseSucceeded:
			if u := firstURL(obs.ResultURLs); u != "" {
				m.Phase = PhaseSucceeded
				m.ResultURL = u
			} else {
				m.Phase = PhaseFailed
				m.Err = &domain.UpstreamError{
					Kind:    domain.ErrMalformedSuccess,
					Message: "success without result urls",
					TaskID:  m.TaskID,
				}
			}
		case PhaseFailed:
			m.Phase = PhaseFailed
			m.Err = &domain.UpstreamError{
				Kind:    domain.ErrGenerationFailed,
				Code:    obs.FailCode,
				Message: obs.FailMsg,
				TaskID:  m.TaskID,
			}
		}
	}

	if !m.Terminal() && m.Attempts >= m.MaxAttempts {
		m.Phase = PhaseTimedOut
		m.Err = &domain.UpstreamError{
			Kind:    domain.ErrTimeout,
			Message: fmt.Sprintf("no terminal state after %d polls", m.Attempts),
			TaskID:  m.TaskID,
		}
	}
	return m
}

func normalizeState(s string) Phase {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "waiting", "queuing", "pending":
		return PhasePending
	case "generating", "processing":
		return PhaseProcessing
	case "success":
		return PhaseSucceeded
	case "fail", "failed":
		return PhaseFailed
	default:
		return ""
	}
}

func firstURL(urls []string) string {
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

// StatusFetcher is satisfied by *Client.
type StatusFetcher interface {
	Status(ctx context.Context, taskID string) (Observation, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval    time.Duration
	MaxAttempts int
	Sleep       Sleeper
	Logger      *infra.Logger
}

// Poller drives a Machine to a terminal phase, waiting Interval before every
// status request. Concurrent callers awaiting the same task share one loop.
type Poller struct {
	fetcher     StatusFetcher
	interval    time.Duration
	maxAttempts int
	sleep       Sleeper
	logger      *infra.Logger
	flight      singleflight.Group
}

// PollResult is the successful outcome of Await.
type PollResult struct {
	TaskID    string
	ResultURL string
	Attempts  int
}

// NewPoller builds a poller. Zero options fall back to 2s and 60 attempts.
func NewPoller(fetcher StatusFetcher, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 60
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	if opts.Logger == nil {
		opts.Logger = infra.NopLogger()
	}
	return &Poller{
		fetcher:     fetcher,
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
	}
}

// Budget is the longest Await can take excluding request latency.
func (p *Poller) Budget() time.Duration {
	return p.interval * time.Duration(p.maxAttempts)
}

// Await polls taskID until it succeeds, fails or exhausts its attempts.
// Failure outcomes are *domain.UpstreamError values carrying the task id.
func (p *Poller) Await(ctx context.Context, taskID string) (PollResult, error) {
	v, err, shared := p.flight.Do(taskID, func() (any, error) {
		return p.run(ctx, taskID)
	})
	if shared {
		p.logger.Debug().Str("task_id", taskID).Msg("kie: joined in-flight poll")
	}
	if err != nil {
		return PollResult{}, err
	}
	return v.(PollResult), nil
}

func (p *Poller) run(ctx context.Context, taskID string) (PollResult, error) {
	m := NewMachine(taskID, p.maxAttempts)
	for !m.Terminal() {
		if err := p.sleep(ctx, p.interval); err != nil {
			return PollResult{}, fmt.Errorf("poll %s: %w", taskID, err)
		}
		obs, err := p.fetcher.Status(ctx, taskID)
		if err != nil {
			p.logger.Debug().Err(err).Str("task_id", taskID).Int("attempt", m.Attempts+1).Msg("kie: status unavailable")
			obs = Observation{}
		}
		m = Transition(m, obs)
	}

	p.logger.Info().
		Str("task_id", taskID).
		Str("phase", string(m.Phase)).
		Int("attempts", m.Attempts).
		Msg("kie: poll finished")

	if m.Phase != PhaseSucceeded {
		return PollResult{}, m.Err
	}
	return PollResult{TaskID: taskID, ResultURL: m.ResultURL, Attempts: m.Attempts}, nil
}
