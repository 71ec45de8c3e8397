package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"enhancer/internal/domain"
	"enhancer/internal/infra"
)

const maxResultBytes = 25 << 20

// ObjectStore is satisfied by *storage.FileStore.
type ObjectStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// URLSigner is satisfied by *storage.Signer.
type URLSigner interface {
	SignedURL(key string) (string, error)
}

// PersistInput describes one finished generation.
type PersistInput struct {
	TaskID           string
	CallerID         string
	CallerEmail      string
	SourceImage      string
	ResultURL        string
	Prompt           string
	EnhancementLabel string
	CategoryLabel    string
	// Unjournaled marks a task with no journal row, so nothing can claim it.
	Unjournaled bool
}

// Persisted is the client-facing outcome. Warnings list bookkeeping stages that
// failed after the image was produced.
type Persisted struct {
	URL        string
	StorageKey string
	Warnings   []domain.Warning
}

// Persister stores results and performs history and quota bookkeeping once
// per task.
type Persister struct {
	store   ObjectStore
	signer  URLSigner
	history domain.HistoryRepository
	jobs    domain.JobRepository
	quota   *QuotaGuard
	client  *http.Client
	logger  *infra.Logger
	now     func() time.Time
	newID   func() string
}

// PersisterDeps groups the Persister collaborators.
type PersisterDeps struct {
	Store      ObjectStore
	Signer     URLSigner
	History    domain.HistoryRepository
	Jobs       domain.JobRepository
	Quota      *QuotaGuard
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// NewPersister constructs a Persister.
func NewPersister(deps PersisterDeps) *Persister {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	logger := deps.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Persister{
		store:   deps.Store,
		signer:  deps.Signer,
		history: deps.History,
		jobs:    deps.Jobs,
		quota:   deps.Quota,
		client:  client,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Persist saves the result under a caller-scoped key and returns a signed URL.
// Only an undecodable data URI is fatal; every other failure degrades to the
// provider URL plus a warning.
func (p *Persister) Persist(ctx context.Context, in PersistInput) (Persisted, error) {
	out := Persisted{URL: in.ResultURL}
	warn := func(stage string, err error) {
		w := domain.Warning{Stage: stage, Err: err}
		out.Warnings = append(out.Warnings, w)
		p.logger.Warn().Err(err).
			Str("stage", stage).
			Str("task_id", in.TaskID).
			Str("user_id", in.CallerID).
			Msg("imagegen: bookkeeping failed")
	}

	data, err := p.load(ctx, in.ResultURL)
	switch {
	case errors.Is(err, domain.ErrMalformedSuccess):
		return Persisted{}, err
	case err != nil:
		warn("fetch", err)
	default:
		key := ResultKey(in.CallerID, p.now(), p.newID())
		stored, err := p.store.Write(ctx, key, data)
		if err != nil {
			warn("storage", err)
			break
		}
		out.StorageKey = stored
		signed, err := p.signer.SignedURL(stored)
		if err != nil {
			warn("sign", err)
			break
		}
		out.URL = signed
	}

	resultRef := out.StorageKey
	if resultRef == "" {
		resultRef = in.ResultURL
	}
	if !in.Unjournaled && !p.claim(ctx, in.TaskID, resultRef, warn) {
		p.logger.Info().Str("task_id", in.TaskID).Msg("imagegen: result already recorded")
		return out, nil
	}

	if p.history != nil {
		record := &domain.HistoryRecord{
			UserID:           in.CallerID,
			UserEmail:        in.CallerEmail,
			SourceImagePath:  in.SourceImage,
			ResultImagePath:  resultRef,
			EnhancementLabel: in.EnhancementLabel,
			CategoryLabel:    in.CategoryLabel,
			PromptUsed:       in.Prompt,
		}
		if err := p.history.Insert(ctx, record); err != nil {
			warn("history", err)
		}
	}
	if p.quota != nil {
		if _, err := p.quota.Record(ctx, in.CallerID, in.CallerEmail); err != nil {
			warn("quota", err)
		}
	}
	return out, nil
}

// claim marks the journal entry succeeded. It returns false only when another
// observer already did the bookkeeping for this task.
func (p *Persister) claim(ctx context.Context, taskID, resultRef string, warn func(string, error)) bool {
	if p.jobs == nil || taskID == "" {
		return true
	}
	first, err := p.jobs.MarkSucceeded(ctx, taskID, resultRef)
	if err != nil {
		warn("journal", err)
		return true
	}
	return first
}

func (p *Persister) load(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(strings.ToLower(ref), "data:") {
		data, err := DecodeDataURI(ref)
		if err != nil {
			return nil, &domain.UpstreamError{Kind: domain.ErrMalformedSuccess, Message: err.Error()}
		}
		return data, nil
	}
	return p.fetch(ctx, ref)
}

func (p *Persister) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch result: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	if len(data) > maxResultBytes {
		return nil, fmt.Errorf("result exceeds %d bytes", maxResultBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("result is empty")
	}
	return data, nil
}

// DecodeDataURI decodes a base64 data URI such as "data:image/png;base64,...".
func DecodeDataURI(uri string) ([]byte, error) {
	uri = strings.TrimSpace(uri)
	if len(uri) < 5 || !strings.EqualFold(uri[:5], "data:") {
		return nil, errors.New("not a data uri")
	}
	meta, payload, ok := strings.Cut(uri[5:], ",")
	if !ok {
		return nil, errors.New("data uri without payload")
	}
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return nil, errors.New("data uri is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("decode data uri: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("data uri is empty")
	}
	return data, nil
}

// ResultKey is the caller-scoped storage key of a generated image. id keeps
// results finishing in the same millisecond apart.
func ResultKey(callerID string, at time.Time, id string) string {
	owner := strings.TrimSpace(callerID)
	if owner == "" {
		owner = "anonymous"
	}
	return fmt.Sprintf("%s/%d-%s-enhanced.png", owner, at.UnixMilli(), id)
}
