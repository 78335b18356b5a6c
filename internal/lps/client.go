package lps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lpsbridge/iso8583-adaptor/internal/models"
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the legacy switch client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to the relay.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client posts acknowledgements back to the relay that fronts the legacy
// switch. The relay owns the ISO8583 wire encoding; the adaptor only sends
// the JSON payloads it understands.
type Client struct {
	logger     zerolog.Logger
	baseURL    string
	httpClient HTTPClient
}

// NewClient constructs a legacy switch client rooted at baseURL.
func NewClient(baseURL string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("lps client: base URL is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	client := &Client{
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SendAuthorizationResponse acknowledges a 0100 with the amounts the payer
// will be prompted to approve.
func (c *Client) SendAuthorizationResponse(ctx context.Context, lpsID string, response models.LegacyAuthorizationResponse) error {
	return c.post(ctx, lpsID, "/authorizationResponses", response)
}

// SendFinancialResponse acknowledges a completed financial request.
func (c *Client) SendFinancialResponse(ctx context.Context, lpsID string, response models.LegacyFinancialResponse) error {
	return c.post(ctx, lpsID, "/financialResponses", response)
}

func (c *Client) post(ctx context.Context, lpsID, path string, payload any) error {
	if strings.TrimSpace(lpsID) == "" {
		return errors.New("lps client: lps id is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("lps client: marshal payload: %w", err)
	}

	endpoint := c.baseURL + "/" + url.PathEscape(lpsID) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("lps client: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lps client: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("lps_id", lpsID).
			Str("path", path).
			Msg("legacy switch relay rejected acknowledgement")
		return fmt.Errorf("lps client: POST %s: unexpected status %d", path, resp.StatusCode)
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 16*1024)) //nolint:errcheck
	return nil
}
