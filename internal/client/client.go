// Package client is a small HTTP client for the prediction API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"titanic-predictor/internal/api"
	"titanic-predictor/internal/health"
	"titanic-predictor/internal/validation"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status int
	Detail api.ErrorDetail
	Body   string
}

func (e *APIError) Error() string {
	if e.Detail.ErrorCode != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Detail.ErrorCode, e.Detail.Message)
	}
	return fmt.Sprintf("api: status %d, body: %s", e.Status, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == http.StatusServiceUnavailable
}

type Client struct {
	rest *resty.Client
}

type Option func(*resty.Client)

// WithRetries retries 503 and transport errors up to n times.
func WithRetries(n int, wait time.Duration) Option {
	return func(r *resty.Client) {
		r.SetRetryCount(n).
			SetRetryWaitTime(wait).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				return err != nil || resp.StatusCode() == http.StatusServiceUnavailable
			})
	}
}

func New(base, token string, timeout time.Duration, opts ...Option) *Client {
	r := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	if token != "" {
		r.SetAuthToken(token)
	}
	for _, o := range opts {
		o(r)
	}
	return &Client{rest: r}
}

// Predict scores one passenger.
func (c *Client) Predict(ctx context.Context, in validation.PassengerInput) (*api.PredictResponse, error) {
	out := &api.PredictResponse{}
	if err := c.do(ctx, http.MethodPost, "/predict", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health returns the quick status.
func (c *Client) Health(ctx context.Context) (*health.QuickStatus, error) {
	out := &health.QuickStatus{}
	if err := c.do(ctx, http.MethodGet, "/health", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// HealthDetailed runs every server-side check. An unhealthy service answers
// 503 with a full report, so the report is returned alongside the error.
func (c *Client) HealthDetailed(ctx context.Context) (*health.Report, error) {
	out := &health.Report{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("detailed", "true").
		SetResult(out).
		SetError(out).
		Get("/health")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return out, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return out, nil
}

func (c *Client) ModelsInfo(ctx context.Context) (*api.ModelsInfo, error) {
	out := &api.ModelsInfo{}
	if err := c.do(ctx, http.MethodGet, "/models/info", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	apiErr := &api.ErrorDetail{}
	req := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Detail: *apiErr, Body: resp.String()}
	}
	return nil
}
