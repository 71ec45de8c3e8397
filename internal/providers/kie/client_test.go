package kie

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"enhancer/internal/domain"
)

type captureTransport struct {
	responses map[string]responseStub
	lastBody  []byte
	lastAuth  string
	calls     int
}

type responseStub struct {
	status int
	body   []byte
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{responses: map[string]responseStub{}}
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	c.lastAuth = req.Header.Get("Authorization")
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
	}
	stub, ok := c.responses[req.URL.Path]
	if !ok {
		stub = responseStub{status: http.StatusNotFound, body: []byte("not found")}
	}
	return &http.Response{
		StatusCode: stub.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(string(stub.body))),
		Request:    req,
	}, nil
}

func (c *captureTransport) setJSON(path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[path] = responseStub{status: status, body: body}
}

func newTestClient(transport *captureTransport) *Client {
	return NewClient(Options{
		APIKey:     "secret-key",
		BaseURL:    "https://kie.test/",
		HTTPClient: &http.Client{Transport: transport},
	})
}

func TestSubmitSendsPayload(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(createTaskPath, http.StatusOK, map[string]any{
		"code": 200,
		"msg":  "success",
		"data": map[string]any{"taskId": "task-1"},
	})
	client := newTestClient(transport)

	sub, err := client.Submit(context.Background(), SubmitRequest{
		Prompt:    "place the product on marble",
		ImageURLs: []string{"https://cdn.test/product.png", "https://cdn.test/model.jpg"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.TaskID != "task-1" {
		t.Fatalf("task id = %q, want task-1", sub.TaskID)
	}
	if transport.lastAuth != "Bearer secret-key" {
		t.Fatalf("authorization = %q", transport.lastAuth)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["model"] != DefaultModel {
		t.Fatalf("model = %v, want %s", payload["model"], DefaultModel)
	}
	input := payload["input"].(map[string]any)
	if input["output_format"] != "png" || input["image_size"] != "1:1" {
		t.Fatalf("unexpected output settings: %v", input)
	}
	urls := input["image_urls"].([]any)
	if len(urls) != 2 || urls[0] != "https://cdn.test/product.png" {
		t.Fatalf("image_urls = %v", urls)
	}
}

func TestSubmitDebugSkipsNetwork(t *testing.T) {
	transport := newCaptureTransport()
	client := newTestClient(transport)

	sub, err := client.Submit(context.Background(), SubmitRequest{
		Prompt:    "p",
		ImageURLs: []string{"https://cdn.test/a.png"},
		Debug:     true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if transport.calls != 0 {
		t.Fatalf("debug submit made %d calls", transport.calls)
	}
	if !sub.Debug || sub.TaskID != "" {
		t.Fatalf("unexpected debug submission: %+v", sub)
	}
	if sub.Payload.Input.Prompt != "p" {
		t.Fatalf("payload prompt = %q", sub.Payload.Input.Prompt)
	}
}

func TestSubmitClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   map[string]any
		want   error
	}{
		{"http 429", http.StatusTooManyRequests, map[string]any{"msg": "slow down"}, domain.ErrUpstreamRateLimited},
		{"http 402", http.StatusPaymentRequired, map[string]any{"msg": "credits"}, domain.ErrUpstreamQuotaExhausted},
		{"envelope 429", http.StatusOK, map[string]any{"code": 429, "msg": "slow down"}, domain.ErrUpstreamRateLimited},
		{"envelope 402", http.StatusOK, map[string]any{"code": 402, "msg": "no credits"}, domain.ErrUpstreamQuotaExhausted},
		{"http 500", http.StatusInternalServerError, map[string]any{"msg": "boom"}, domain.ErrSubmissionFailed},
		{"missing task id", http.StatusOK, map[string]any{"code": 200, "data": map[string]any{}}, domain.ErrSubmissionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := newCaptureTransport()
			transport.setJSON(createTaskPath, tc.status, tc.body)
			client := newTestClient(transport)

			_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "p", ImageURLs: []string{"u"}})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			var upErr *domain.UpstreamError
			if !errors.As(err, &upErr) {
				t.Fatalf("expected *domain.UpstreamError, got %T", err)
			}
			if strings.Contains(err.Error(), "secret-key") {
				t.Fatalf("error leaks api key: %v", err)
			}
		})
	}
}

func TestSubmitWithoutKey(t *testing.T) {
	transport := newCaptureTransport()
	client := NewClient(Options{HTTPClient: &http.Client{Transport: transport}})
	_, err := client.Submit(context.Background(), SubmitRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrSubmissionFailed) {
		t.Fatalf("err = %v, want submission failed", err)
	}
	if transport.calls != 0 {
		t.Fatalf("expected no outbound call, got %d", transport.calls)
	}
}

func TestStatusParsesResultJSON(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(recordInfoPath, http.StatusOK, map[string]any{
		"code": 200,
		"data": map[string]any{
			"taskId":     "task-1",
			"state":      "success",
			"resultJson": `{"resultUrls":["https://cdn.test/out.png"]}`,
		},
	})
	client := newTestClient(transport)

	obs, err := client.Status(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !obs.Valid || obs.State != "success" {
		t.Fatalf("unexpected observation: %+v", obs)
	}
	if len(obs.ResultURLs) != 1 || obs.ResultURLs[0] != "https://cdn.test/out.png" {
		t.Fatalf("result urls = %v", obs.ResultURLs)
	}
}

func TestStatusNon2xxIsError(t *testing.T) {
	transport := newCaptureTransport()
	transport.setJSON(recordInfoPath, http.StatusBadGateway, map[string]any{"msg": "down"})
	client := newTestClient(transport)

	if _, err := client.Status(context.Background(), "task-1"); err == nil {
		t.Fatalf("expected error for 502 status")
	}
}
