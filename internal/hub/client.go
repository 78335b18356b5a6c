package hub

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

// Option customises the hub client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to the hub.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBodyLimit adjusts how many bytes are retained from error response bodies.
func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// Client talks to the payment hub's FSPIOP-style REST surface. Every call
// carries the adaptor's fsp id as fspiop-source and the addressed party as
// fspiop-destination.
type Client struct {
	logger       zerolog.Logger
	baseURL      string
	fspID        string
	httpClient   HTTPClient
	maxBodyBytes int64
}

// NewClient constructs a hub client rooted at baseURL, identifying itself
// as fspID.
func NewClient(baseURL, fspID string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("hub client: base URL is required")
	}
	if strings.TrimSpace(fspID) == "" {
		return nil, errors.New("hub client: fsp id is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	client := &Client{
		logger:       logger,
		baseURL:      strings.TrimRight(baseURL, "/"),
		fspID:        strings.TrimSpace(fspID),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		maxBodyBytes: 16 * 1024,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// PostTransactionRequests forwards a transaction request to the payer fsp.
func (c *Client) PostTransactionRequests(ctx context.Context, request models.TransactionRequest, destination string) error {
	return c.send(ctx, http.MethodPost, "/transactionRequests", request, destination)
}

// PutQuotes answers a quote request.
func (c *Client) PutQuotes(ctx context.Context, quoteID string, response models.QuotesIDPutResponse, destination string) error {
	return c.send(ctx, http.MethodPut, "/quotes/"+url.PathEscape(quoteID), response, destination)
}

// PutTransfers answers a transfer request with the fulfilment.
func (c *Client) PutTransfers(ctx context.Context, transferID string, response models.TransfersIDPutResponse, destination string) error {
	return c.send(ctx, http.MethodPut, "/transfers/"+url.PathEscape(transferID), response, destination)
}

// PutTransfersError reports a failed transfer back to its originator.
func (c *Client) PutTransfersError(ctx context.Context, transferID string, info models.ErrorInformation, destination string) error {
	payload := struct {
		ErrorInformation models.ErrorInformation `json:"errorInformation"`
	}{ErrorInformation: info}
	return c.send(ctx, http.MethodPut, "/transfers/"+url.PathEscape(transferID)+"/error", payload, destination)
}

func (c *Client) send(ctx context.Context, method, path string, payload any, destination string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("hub client: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("hub client: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("fspiop-source", c.fspID)
	if destination != "" {
		req.Header.Set("fspiop-destination", destination)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("path", path).
			Str("body", string(snippet)).
			Msg("hub rejected request")
		return fmt.Errorf("hub client: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBodyBytes)) //nolint:errcheck
	return nil
}
