// internal/analysis/client.go

// Package analysis talks to the external image-analysis webhook. It returns
// whatever JSON the webhook produced; interpreting it is the job of the
// nutrition package.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mcp-meal-snap/internal/logger"
)

var (
	ErrNotConfigured    = errors.New("analysis webhook not configured")
	ErrUnavailable      = errors.New("analysis service unavailable")
	ErrResponseTooLarge = errors.New("analysis response too large")
)

const (
	maxResponseBytes = 5 << 20
	maxRetryDelay    = 10 * time.Second
)

type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ClientOptions struct {
	WebhookURL   string
	Timeout      time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	MockFallback bool
	Transport    http.RoundTripper
	Logger       *slog.Logger
}

type WebhookClient struct {
	httpClient   *http.Client
	webhookURL   string
	maxAttempts  int
	retryDelay   time.Duration
	mockFallback bool
	logger       *slog.Logger
}

func NewWebhookClient(opts ClientOptions) *WebhookClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	return &WebhookClient{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(opts.Transport),
		},
		webhookURL:   opts.WebhookURL,
		maxAttempts:  opts.MaxAttempts,
		retryDelay:   opts.RetryDelay,
		mockFallback: opts.MockFallback,
		logger:       opts.Logger,
	}
}

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Analyze uploads img and returns the decoded response. When the webhook
// cannot be reached and mock fallback is enabled, a canned analysis chosen by
// file name is returned instead.
func (c *WebhookClient) Analyze(ctx context.Context, img Image) (any, error) {
	if c.webhookURL == "" {
		if c.mockFallback {
			c.logger.Warn("analysis webhook not configured, using mock analysis", "filename", img.Filename)
			return MockAnalysis(img.Filename), nil
		}
		return nil, ErrNotConfigured
	}

	attempt := 0
	operation := func() (any, error) {
		attempt++
		payload, err := c.call(ctx, img)
		if err == nil {
			return payload, nil
		}
		c.logger.Warn("analysis webhook call failed",
			"attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
		var statusErr *StatusError
		switch {
		case errors.As(err, &statusErr) && !statusErr.retryable(),
			errors.Is(err, ErrResponseTooLarge),
			ctx.Err() != nil:
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	payload, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     c.retryDelay,
			RandomizationFactor: 0.1,
			Multiplier:          2,
			MaxInterval:         maxRetryDelay,
		}),
		backoff.WithMaxTries(uint(c.maxAttempts)),
	)
	if err != nil {
		if c.mockFallback && ctx.Err() == nil {
			c.logger.Warn("falling back to mock analysis", "filename", img.Filename, "error", err)
			return MockAnalysis(img.Filename), nil
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return payload, nil
}

func (c *WebhookClient) call(ctx context.Context, img Image) (any, error) {
	body, contentType, err := encodeImage(img)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(raw) > maxResponseBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	c.logger.Debug("analysis webhook responded",
		"status", resp.StatusCode, "bytes", len(raw), "duration", time.Since(start))

	return decodeResponse(raw), nil
}

func encodeImage(img Image) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := img.Filename
	if filename == "" {
		filename = "meal"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="image"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// decodeResponse never fails. Bodies that are not JSON are handed on as an
// "output" text field, the same place an LLM-backed webhook puts its answer.
func decodeResponse(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	var payload any
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return map[string]any{"output": string(trimmed)}
	}
	return payload
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
