package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"enhancer/internal/domain"
	"enhancer/internal/infra"
)

const (
	// DefaultModel is the upstream image-edit model every job is submitted to.
	DefaultModel = "google/nano-banana-edit"
	// OutputFormat and ImageSize are fixed for every generation.
	OutputFormat = "png"
	ImageSize    = "1:1"

	defaultBaseURL = "https://api.kie.ai"
	createTaskPath = "/api/v1/jobs/createTask"
	recordInfoPath = "/api/v1/jobs/recordInfo"
	maxErrorBody   = 512
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("kie: api key is required")

// Options configures the provider client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client talks to the provider's asynchronous job API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// Payload is the exact JSON body sent to the job-creation endpoint.
type Payload struct {
	Model string       `json:"model"`
	Input PayloadInput `json:"input"`
}

// PayloadInput carries the prompt and the ordered image list. Position 0 is the
// product photo, position 1 the optional model reference.
type PayloadInput struct {
	Prompt       string   `json:"prompt"`
	ImageURLs    []string `json:"image_urls"`
	OutputFormat string   `json:"output_format"`
	ImageSize    string   `json:"image_size"`
}

// SubmitRequest is the input of Submit.
type SubmitRequest struct {
	Prompt    string
	ImageURLs []string
	Debug     bool
}

// Submission is the outcome of Submit. In debug mode TaskID is empty and
// nothing was sent upstream.
type Submission struct {
	TaskID   string  `json:"taskId,omitempty"`
	Debug    bool    `json:"debug"`
	Endpoint string  `json:"endpoint"`
	Payload  Payload `json:"payload"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type createTaskData struct {
	TaskID string `json:"taskId"`
}

type recordInfoData struct {
	TaskID     string `json:"taskId"`
	Model      string `json:"model"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailCode   string `json:"failCode"`
	FailMsg    string `json:"failMsg"`
}

type resultPayload struct {
	ResultURLs []string `json:"resultUrls"`
}

// NewClient constructs a client with defaults for every unset option.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Model returns the upstream model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c != nil && c.apiKey != ""
}

// BuildPayload assembles the provider request body without side effects.
func (c *Client) BuildPayload(prompt string, imageURLs []string) Payload {
	urls := make([]string, len(imageURLs))
	copy(urls, imageURLs)
	return Payload{
		Model: c.model,
		Input: PayloadInput{
			Prompt:       prompt,
			ImageURLs:    urls,
			OutputFormat: OutputFormat,
			ImageSize:    ImageSize,
		},
	}
}

// Submit creates a provider job and returns its task id. Failures are typed
// *domain.UpstreamError values and are never retried here.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if c == nil {
		return nil, errors.New("kie client not configured")
	}
	sub := &Submission{
		Debug:    req.Debug,
		Endpoint: createTaskPath,
		Payload:  c.BuildPayload(req.Prompt, req.ImageURLs),
	}
	if req.Debug {
		return sub, nil
	}
	if c.apiKey == "" {
		return nil, &domain.UpstreamError{Kind: domain.ErrSubmissionFailed, Message: ErrMissingAPIKey.Error()}
	}

	body, err := json.Marshal(sub.Payload)
	if err != nil {
		return nil, fmt.Errorf("kie: encode payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createTaskPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kie: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.UpstreamError{Kind: domain.ErrSubmissionFailed, Message: transportMessage(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.UpstreamError{Kind: domain.ErrSubmissionFailed, StatusCode: resp.StatusCode, Message: "read response: " + err.Error()}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	status := resp.StatusCode
	// The provider also reports errors inside a 200 envelope.
	if status >= 200 && status < 300 && decodeErr == nil && env.Code != 0 && env.Code != http.StatusOK {
		status = env.Code
	}
	if kind := classifyStatus(status); kind != nil {
		upErr := &domain.UpstreamError{Kind: kind, StatusCode: status, Message: strings.TrimSpace(env.Msg)}
		if kind == domain.ErrSubmissionFailed {
			upErr.Body = truncate(string(raw))
		}
		c.logger.Warn().Int("status", status).Str("kind", kind.Error()).Msg("kie: submission rejected")
		return nil, upErr
	}
	if decodeErr != nil {
		return nil, &domain.UpstreamError{Kind: domain.ErrSubmissionFailed, StatusCode: status, Message: "malformed response", Body: truncate(string(raw))}
	}

	var data createTaskData
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &data)
	}
	sub.TaskID = strings.TrimSpace(data.TaskID)
	if sub.TaskID == "" {
		return nil, &domain.UpstreamError{Kind: domain.ErrSubmissionFailed, StatusCode: status, Message: "missing task id", Body: truncate(string(raw))}
	}
	c.logger.Info().Str("task_id", sub.TaskID).Int("images", len(req.ImageURLs)).Msg("kie: task submitted")
	return sub, nil
}

// Status fetches the job record for taskID. Any error means the observation
// was not well formed and the poller should try again on the next tick.
func (c *Client) Status(ctx context.Context, taskID string) (Observation, error) {
	if c == nil {
		return Observation{}, errors.New("kie client not configured")
	}
	endpoint := c.baseURL + recordInfoPath + "?" + url.Values{"taskId": {taskID}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Observation{}, fmt.Errorf("kie: build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Observation{}, fmt.Errorf("kie: status request: %s", transportMessage(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Observation{}, fmt.Errorf("kie: status http %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Observation{}, fmt.Errorf("kie: decode status: %w", err)
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return Observation{}, fmt.Errorf("kie: status code %d: %s", env.Code, env.Msg)
	}
	var data recordInfoData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Observation{}, fmt.Errorf("kie: decode record: %w", err)
	}

	obs := Observation{
		Valid:    true,
		State:    data.State,
		FailCode: strings.TrimSpace(data.FailCode),
		FailMsg:  strings.TrimSpace(data.FailMsg),
	}
	if rj := strings.TrimSpace(data.ResultJSON); rj != "" {
		var result resultPayload
		if err := json.Unmarshal([]byte(rj), &result); err == nil {
			obs.ResultURLs = result.ResultURLs
		}
	}
	return obs, nil
}

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return domain.ErrUpstreamRateLimited
	case status == http.StatusPaymentRequired:
		return domain.ErrUpstreamQuotaExhausted
	default:
		return domain.ErrSubmissionFailed
	}
}

// transportMessage drops the request URL from transport errors so provider
// endpoints do not leak to callers.
func transportMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return err.Error()
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "..."
}
