package accountlookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the account lookup client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to the lookup service.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client asks the account lookup service to resolve the fsp that owns a
// party identifier. Resolution is asynchronous: the answer arrives later as
// a parties callback, correlated by the trace id sent here.
type Client struct {
	logger     zerolog.Logger
	baseURL    string
	fspID      string
	httpClient HTTPClient
}

// NewClient constructs an account lookup client rooted at baseURL,
// identifying itself as fspID.
func NewClient(baseURL, fspID string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("account lookup client: base URL is required")
	}
	if strings.TrimSpace(fspID) == "" {
		return nil, errors.New("account lookup client: fsp id is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	client := &Client{
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		fspID:      strings.TrimSpace(fspID),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// RequestFspIDFromMSISDN asks the lookup service which fsp serves the given
// MSISDN. traceID correlates the eventual parties callback.
func (c *Client) RequestFspIDFromMSISDN(ctx context.Context, traceID, msisdn string) error {
	if strings.TrimSpace(msisdn) == "" {
		return errors.New("account lookup client: msisdn is required")
	}

	endpoint := c.baseURL + "/parties/MSISDN/" + url.PathEscape(msisdn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("account lookup client: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("fspiop-source", c.fspID)
	if traceID != "" {
		req.Header.Set("traceid", traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("account lookup client: GET parties: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("trace_id", traceID).
			Msg("account lookup rejected party request")
		return fmt.Errorf("account lookup client: GET parties: unexpected status %d", resp.StatusCode)
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 16*1024)) //nolint:errcheck
	return nil
}
