package imagegen

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"enhancer/internal/domain"
	"enhancer/internal/infra"
	"enhancer/internal/providers/kie"
)

// Submitter is satisfied by *kie.Client.
type Submitter interface {
	Submit(ctx context.Context, req kie.SubmitRequest) (*kie.Submission, error)
}

// Awaiter is satisfied by *kie.Poller.
type Awaiter interface {
	Await(ctx context.Context, taskID string) (kie.PollResult, error)
}

// Result is the outcome of one generation. A debug result carries the would-be
// payload and no generated URL.
type Result struct {
	GeneratedURL string
	PromptUsed   string
	TaskID       string
	Variant      Variant
	ImageURLs    []string
	Debug        bool
	Payload      *kie.Payload
	Warnings     []domain.Warning
}

// Deps groups the Orchestrator collaborators.
type Deps struct {
	Assembler *Assembler
	Selector  *Selector
	Quota     *QuotaGuard
	Submitter Submitter
	Poller    Awaiter
	Persister *Persister
	Jobs      domain.JobRepository
	Signer    URLSigner
	Logger    *infra.Logger
	// JobLease keeps the recovery worker away from a job this process is
	// still polling.
	JobLease time.Duration
}

// Orchestrator runs the generation pipeline: assemble, select references,
// check quota, submit, poll, persist. Stages run strictly in that order.
type Orchestrator struct {
	assembler *Assembler
	selector  *Selector
	quota     *QuotaGuard
	submitter Submitter
	poller    Awaiter
	persister *Persister
	jobs      domain.JobRepository
	signer    URLSigner
	logger    *infra.Logger
	jobLease  time.Duration
	now       func() time.Time
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	lease := deps.JobLease
	if lease <= 0 {
		lease = 3 * time.Minute
	}
	return &Orchestrator{
		assembler: deps.Assembler,
		selector:  deps.Selector,
		quota:     deps.Quota,
		submitter: deps.Submitter,
		poller:    deps.Poller,
		persister: deps.Persister,
		jobs:      deps.Jobs,
		signer:    deps.Signer,
		logger:    logger,
		jobLease:  lease,
		now:       time.Now,
	}
}

// Generate turns a request into a stored, signed image. Validation and quota
// errors are returned before any provider call. Once a task is submitted it is
// polled to the end even if ctx is cancelled by the client going away.
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := o.logger.With().
		Str("request_id", req.RequestID).
		Str("user_id", req.CallerID).
		Logger()

	assembled, err := o.assembler.Assemble(ctx, req.EnhancementIDs, req.CategoryLabel, req.Custom)
	if err != nil {
		return nil, err
	}

	sourceURL, err := o.ResolveRef(req.CallerID, req.SourceImage)
	if err != nil {
		return nil, &domain.ValidationError{Field: "sourceImage", Reason: err.Error()}
	}
	wm := req.Watermark.Normalize()
	if wm.Kind == domain.WatermarkLogo {
		if wm.LogoRef, err = o.ResolveRef(req.CallerID, wm.LogoRef); err != nil {
			return nil, &domain.ValidationError{Field: "watermark.logoRef", Reason: err.Error()}
		}
	}
	sel := o.selector.Select(assembled.Text, assembled.KeywordText(), sourceURL, wm)
	log.Debug().
		Str("stage", "select").
		Str("variant", string(sel.Variant)).
		Int("images", len(sel.ImageURLs)).
		Msg("imagegen: references selected")

	if err := o.quota.Check(ctx, req.CallerID, req.CallerEmail); err != nil {
		return nil, err
	}

	sub, err := o.submitter.Submit(ctx, kie.SubmitRequest{
		Prompt:    sel.Prompt,
		ImageURLs: sel.ImageURLs,
		Debug:     req.Debug,
	})
	if err != nil {
		log.Warn().Err(err).Str("stage", "submit").Msg("imagegen: submission failed")
		return nil, err
	}
	result := &Result{
		PromptUsed: sel.Prompt,
		Variant:    sel.Variant,
		ImageURLs:  sel.ImageURLs,
	}
	if sub.Debug {
		payload := sub.Payload
		result.Debug = true
		result.Payload = &payload
		return result, nil
	}
	result.TaskID = sub.TaskID
	log = log.With().Str("task_id", sub.TaskID).Logger()

	// The provider has charged for the task; keep observing it regardless of
	// the caller.
	pollCtx := context.WithoutCancel(ctx)

	job := &domain.GenerationJob{
		TaskID:           sub.TaskID,
		UserID:           req.CallerID,
		UserEmail:        req.CallerEmail,
		SourceImage:      req.SourceImage,
		Prompt:           sel.Prompt,
		CategoryLabel:    req.CategoryLabel,
		EnhancementLabel: assembled.Label(),
		LeaseUntil:       o.now().Add(o.jobLease),
	}
	journaled := false
	if o.jobs != nil {
		if err := o.jobs.Create(pollCtx, job); err != nil {
			result.Warnings = append(result.Warnings, domain.Warning{Stage: "journal", Err: err})
			log.Warn().Err(err).Str("stage", "journal").Msg("imagegen: journal write failed")
		} else {
			journaled = true
			stop := holdLease(pollCtx, o.jobs, sub.TaskID, o.jobLease, o.logger)
			defer stop()
		}
	}

	polled, err := o.poller.Await(pollCtx, sub.TaskID)
	if err != nil {
		o.finish(pollCtx, sub.TaskID, err)
		if errors.Is(err, domain.ErrMalformedSuccess) {
			log.Error().Err(err).Str("stage", "poll").Msg("imagegen: provider contract violation")
		} else {
			log.Warn().Err(err).Str("stage", "poll").Msg("imagegen: generation did not succeed")
		}
		return nil, err
	}

	persisted, err := o.persister.Persist(pollCtx, PersistInput{
		TaskID:           sub.TaskID,
		CallerID:         req.CallerID,
		CallerEmail:      req.CallerEmail,
		SourceImage:      req.SourceImage,
		ResultURL:        polled.ResultURL,
		Prompt:           sel.Prompt,
		EnhancementLabel: assembled.Label(),
		CategoryLabel:    req.CategoryLabel,
		Unjournaled:      !journaled,
	})
	if err != nil {
		var upErr *domain.UpstreamError
		if errors.As(err, &upErr) && upErr.TaskID == "" {
			upErr.TaskID = sub.TaskID
		}
		o.finish(pollCtx, sub.TaskID, err)
		log.Error().Err(err).Str("stage", "persist").Msg("imagegen: provider contract violation")
		return nil, err
	}

	result.GeneratedURL = persisted.URL
	result.Warnings = append(result.Warnings, persisted.Warnings...)
	log.Info().
		Str("variant", string(sel.Variant)).
		Int("attempts", polled.Attempts).
		Int("warnings", len(result.Warnings)).
		Msg("imagegen: generation completed")
	return result, nil
}

// ReferencePrefix holds shared assets any caller may reference.
const ReferencePrefix = "references/"

// ResolveRef passes URLs through and turns storage keys into signed URLs.
// A key is only signed when it lives under references/, {callerID}/ or
// uploads/{callerID}/.
func (o *Orchestrator) ResolveRef(callerID, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("reference is empty")
	}
	if strings.Contains(ref, "://") || strings.HasPrefix(strings.ToLower(ref), "data:") {
		return ref, nil
	}
	key, ok := OwnedKey(callerID, ref)
	if !ok {
		return "", fmt.Errorf("storage key %q is not accessible to this caller", ref)
	}
	if o.signer == nil {
		return "", fmt.Errorf("storage key %q cannot be signed", ref)
	}
	return o.signer.SignedURL(key)
}

// OwnedKey cleans a storage key and reports whether callerID may use it.
func OwnedKey(callerID, ref string) (string, bool) {
	raw := strings.ReplaceAll(ref, "\\", "/")
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", false
		}
	}
	key := strings.TrimPrefix(path.Clean("/"+raw), "/")
	if key == "" {
		return "", false
	}
	if strings.HasPrefix(key, ReferencePrefix) {
		return key, true
	}
	owner := strings.TrimSpace(callerID)
	if owner == "" || strings.Contains(owner, "/") {
		return "", false
	}
	if strings.HasPrefix(key, owner+"/") || strings.HasPrefix(key, "uploads/"+owner+"/") {
		return key, true
	}
	return "", false
}

// finish records a terminal failure in the journal. Cancellation leaves the
// job in POLLING for the recovery worker.
func (o *Orchestrator) finish(ctx context.Context, taskID string, cause error) {
	if o.jobs == nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return
	}
	if err := o.jobs.MarkFinished(ctx, taskID, JobStateFor(cause), cause.Error()); err != nil {
		o.logger.Warn().Err(err).Str("task_id", taskID).Str("stage", "journal").Msg("imagegen: journal update failed")
	}
}

// JobStateFor maps a terminal poll error to a journal state.
func JobStateFor(err error) domain.JobState {
	if errors.Is(err, domain.ErrTimeout) {
		return domain.JobStateTimedOut
	}
	return domain.JobStateFailed
}
