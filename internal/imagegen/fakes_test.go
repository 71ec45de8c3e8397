package imagegen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"enhancer/internal/domain"
	"enhancer/internal/providers/kie"
)

type fakeTemplates struct {
	templates map[string]domain.EnhancementTemplate
	preambles map[string]string
	err       error
	calls     int
}

func (f *fakeTemplates) GetTemplates(_ context.Context, ids []string) (map[string]domain.EnhancementTemplate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.EnhancementTemplate)
	for _, id := range ids {
		if tpl, ok := f.templates[id]; ok {
			out[id] = tpl
		}
	}
	return out, nil
}

func (f *fakeTemplates) GetCategoryPrompt(_ context.Context, category string) (*domain.CategoryPrompt, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.preambles[category]
	if !ok {
		return nil, nil
	}
	return &domain.CategoryPrompt{CategoryLabel: category, SystemPreamble: p}, nil
}

func (f *fakeTemplates) ListActive(context.Context, string) ([]domain.EnhancementTemplate, error) {
	return nil, nil
}

type fakeQuota struct {
	mu        sync.Mutex
	usage     map[string]int
	limits    map[string]int
	incrErr   error
	increment int
}

func newFakeQuota() *fakeQuota {
	return &fakeQuota{usage: map[string]int{}, limits: map[string]int{}}
}

func (f *fakeQuota) MonthlyUsage(_ context.Context, email, period string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage[email+"|"+period], nil
}

func (f *fakeQuota) MonthlyLimit(_ context.Context, email string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limits[email]
	return l, ok, nil
}

func (f *fakeQuota) Increment(_ context.Context, email, period string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.increment++
	f.usage[email+"|"+period]++
	return f.usage[email+"|"+period], nil
}

func (f *fakeQuota) SetLimit(_ context.Context, email string, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits[email] = limit
	return nil
}

func (f *fakeQuota) Reset(_ context.Context, email, period string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.usage, email+"|"+period)
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records []domain.HistoryRecord
	err     error
}

func (f *fakeHistory) Insert(_ context.Context, record *domain.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeHistory) ListByUser(context.Context, string, int) ([]domain.HistoryRecord, error) {
	return f.records, nil
}

type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[string]*domain.GenerationJob
	stale     []domain.GenerationJob
	createErr error
	renewals  int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]*domain.GenerationJob{}}
}

func (f *fakeJobs) Create(_ context.Context, job *domain.GenerationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *job
	cp.State = domain.JobStatePolling
	f.jobs[job.TaskID] = &cp
	return nil
}

func (f *fakeJobs) MarkSucceeded(_ context.Context, taskID, resultURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[taskID]
	if !ok || job.State == domain.JobStateSucceeded {
		return false, nil
	}
	job.State = domain.JobStateSucceeded
	job.ResultURL = resultURL
	return true, nil
}

func (f *fakeJobs) MarkFinished(_ context.Context, taskID string, state domain.JobState, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[taskID]
	if !ok {
		job = &domain.GenerationJob{TaskID: taskID}
		f.jobs[taskID] = job
	}
	job.State = state
	job.Failure = reason
	return nil
}

func (f *fakeJobs) GetByTaskID(_ context.Context, taskID string) (*domain.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

// ClaimStale hands out the seeded stale jobs plus any POLLING job whose lease
// has run out, leasing each like the claim query does.
func (f *fakeJobs) ClaimStale(_ context.Context, lease time.Duration, _ int) ([]domain.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	out := f.stale
	f.stale = nil
	for i := range out {
		out[i].LeaseUntil = now.Add(lease)
		cp := out[i]
		f.jobs[cp.TaskID] = &cp
	}
	for _, job := range f.jobs {
		if job.State == domain.JobStatePolling && job.LeaseUntil.Before(now) {
			job.LeaseUntil = now.Add(lease)
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeJobs) RenewLease(_ context.Context, taskID string, lease time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[taskID]; ok && job.State == domain.JobStatePolling {
		job.LeaseUntil = time.Now().Add(lease)
		f.renewals++
	}
	return nil
}

func (f *fakeJobs) renewCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renewals
}

func (f *fakeJobs) state(taskID string) domain.JobState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[taskID]; ok {
		return job.State
	}
	return ""
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Write(_ context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.objects[key] = data
	return key, nil
}

type fakeSigner struct{}

func (fakeSigner) SignedURL(key string) (string, error) {
	return "https://files.test/" + key + "?sig=ok", nil
}

type countingSubmitter struct {
	mu     sync.Mutex
	calls  int
	taskID string
	err    error
	last   kie.SubmitRequest
}

func (c *countingSubmitter) Submit(_ context.Context, req kie.SubmitRequest) (*kie.Submission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = req
	sub := &kie.Submission{Debug: req.Debug, Payload: kie.Payload{
		Model: kie.DefaultModel,
		Input: kie.PayloadInput{Prompt: req.Prompt, ImageURLs: req.ImageURLs, OutputFormat: kie.OutputFormat, ImageSize: kie.ImageSize},
	}}
	if req.Debug {
		return sub, nil
	}
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	sub.TaskID = c.taskID
	if sub.TaskID == "" {
		sub.TaskID = fmt.Sprintf("task-%d", c.calls)
	}
	return sub, nil
}

type scriptedStatus struct {
	mu    sync.Mutex
	obs   []kie.Observation
	calls int
}

func (s *scriptedStatus) Status(context.Context, string) (kie.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.obs) == 0 {
		return kie.Observation{}, errors.New("no script")
	}
	idx := s.calls - 1
	if idx >= len(s.obs) {
		idx = len(s.obs) - 1
	}
	return s.obs[idx], nil
}

func succeedWith(url string) *scriptedStatus {
	return &scriptedStatus{obs: []kie.Observation{{Valid: true, State: "success", ResultURLs: []string{url}}}}
}

func noSleep(context.Context, time.Duration) error { return nil }

// dataURI is a tiny PNG-ish payload encoded as a data URI.
const dataURI = "data:image/png;base64,iVBORw0KGgo="

type harness struct {
	templates *fakeTemplates
	quota     *fakeQuota
	history   *fakeHistory
	jobs      *fakeJobs
	store     *fakeStore
	submitter *countingSubmitter
	status    *scriptedStatus
	orch      *Orchestrator
	persister *Persister
	poller    *kie.Poller
}

var testAssets = ReferenceAssets{
	Female:      "https://assets.test/model-female.jpg",
	FemaleHijab: "https://assets.test/model-female-hijab.jpg",
	Male:        "https://assets.test/model-male.jpg",
}

func newHarness(status *scriptedStatus) *harness {
	h := &harness{
		templates: &fakeTemplates{
			templates: map[string]domain.EnhancementTemplate{
				"add_female_model": {EnhancementID: "add_female_model", Title: "Add female model", PromptTemplate: "Show the garment worn by a professional female model."},
				"white_background": {EnhancementID: "white_background", Title: "White background", PromptTemplate: "Replace the background with pure white."},
				"soft_shadow":      {EnhancementID: "soft_shadow", Title: "Soft shadow", PromptTemplate: "Add a soft natural shadow under the product."},
			},
			preambles: map[string]string{},
		},
		quota:     newFakeQuota(),
		history:   &fakeHistory{},
		jobs:      newFakeJobs(),
		store:     newFakeStore(),
		submitter: &countingSubmitter{},
		status:    status,
	}
	guard := NewQuotaGuard(h.quota, 10)
	h.poller = kie.NewPoller(status, kie.PollerOptions{Interval: time.Millisecond, MaxAttempts: 5, Sleep: noSleep})
	h.persister = NewPersister(PersisterDeps{
		Store:   h.store,
		Signer:  fakeSigner{},
		History: h.history,
		Jobs:    h.jobs,
		Quota:   guard,
	})
	h.orch = NewOrchestrator(Deps{
		Assembler: NewAssembler(h.templates),
		Selector:  NewSelector(testAssets),
		Quota:     guard,
		Submitter: h.submitter,
		Poller:    h.poller,
		Persister: h.persister,
		Jobs:      h.jobs,
		Signer:    fakeSigner{},
	})
	return h
}

// slowAwaiter stands in for a provider that takes longer than a job lease.
type slowAwaiter struct {
	delay   time.Duration
	url     string
	once    sync.Once
	started chan struct{}
}

func newSlowAwaiter(delay time.Duration, url string) *slowAwaiter {
	return &slowAwaiter{delay: delay, url: url, started: make(chan struct{})}
}

func (a *slowAwaiter) Await(ctx context.Context, taskID string) (kie.PollResult, error) {
	a.once.Do(func() { close(a.started) })
	select {
	case <-time.After(a.delay):
		return kie.PollResult{TaskID: taskID, ResultURL: a.url, Attempts: 1}, nil
	case <-ctx.Done():
		return kie.PollResult{}, ctx.Err()
	}
}
