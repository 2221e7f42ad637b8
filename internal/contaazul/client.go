// Package contaazul implements the outbound client for the Conta Azul API:
// bounded retry on transient failure classes, token-expiry recovery and
// page-by-page retrieval of the paged search endpoints.
package contaazul

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"conta-sync-service/internal/record"

	"github.com/rs/zerolog"
)

// ErrNoAccessToken is returned when no usable credential can be obtained for
// a request, including after the bounded refresh attempts on 401.
var ErrNoAccessToken = errors.New("no access token")

// TokenSource supplies the bearer token for outbound requests. Refresh is
// invoked on 401 responses, at most twice per logical operation.
type TokenSource interface {
	Token() (string, error)
	Refresh() (string, error)
}

// APIError is a non-2xx response that exhausted (or never qualified for)
// local retries.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("conta azul API returned status %d", e.Status)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokens      TokenSource
	log         zerolog.Logger
	sleep       func(time.Duration)
	maxAttempts int
	backoff     time.Duration
}

func NewClient(baseURL string, tokens TokenSource, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		tokens:      tokens,
		log:         log.With().Str("component", "contaazul-client").Logger(),
		sleep:       time.Sleep,
		maxAttempts: 4,
		backoff:     2 * time.Second,
	}
}

// Search calls the paged search endpoint of a resource with a JSON filter
// body. Sort field is optional (ascending when set).
func (c *Client) Search(resource string, filter map[string]interface{}, page, pageSize int, sortAsc string) ([]record.Record, error) {
	q := url.Values{}
	q.Set("pagina", strconv.Itoa(page))
	q.Set("tamanho_pagina", strconv.Itoa(pageSize))
	if sortAsc != "" {
		q.Set("ordenacao_asc", sortAsc)
	}
	endpoint := fmt.Sprintf("%s/%s/buscar?%s", c.baseURL, resource, q.Encode())
	if filter == nil {
		filter = map[string]interface{}{}
	}
	return c.do(http.MethodPost, endpoint, filter)
}

// List calls an unfiltered listing endpoint with optional query parameters.
func (c *Client) List(resource string, params url.Values) ([]record.Record, error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, resource)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return c.do(http.MethodGet, endpoint, nil)
}

// GetSub fetches the sub-resource collection of one parent record, e.g.
// the installments of a financial event.
func (c *Client) GetSub(resource, parentID, sub string) ([]record.Record, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/%s", c.baseURL, resource, url.PathEscape(parentID), sub)
	return c.do(http.MethodGet, endpoint, nil)
}

func (c *Client) do(method, endpoint string, body interface{}) ([]record.Record, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	tokenRefreshes := 0
	retried400 := false
	backoff := c.backoff

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		token, err := c.tokens.Token()
		if err != nil || token == "" {
			return nil, ErrNoAccessToken
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, endpoint, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Timeouts and connection errors are transient.
			if attempt == c.maxAttempts {
				return nil, fmt.Errorf("request failed: %w", err)
			}
			c.log.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).Msg("Request failed, retrying")
			c.sleep(backoff)
			backoff *= 2
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			tokenRefreshes++
			if tokenRefreshes > 2 {
				return nil, ErrNoAccessToken
			}
			c.log.Warn().Str("endpoint", endpoint).Msg("Got 401, refreshing token")
			if _, err := c.tokens.Refresh(); err != nil {
				return nil, ErrNoAccessToken
			}
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt == c.maxAttempts {
				return nil, &APIError{Status: resp.StatusCode, Body: string(data)}
			}
			c.log.Warn().Str("endpoint", endpoint).Dur("backoff", backoff).Msg("Rate limited, backing off")
			c.sleep(backoff)
			backoff *= 2
			continue

		case resp.StatusCode == http.StatusBadRequest && !retried400:
			// The API intermittently rejects well-formed requests.
			retried400 = true
			c.log.Warn().Str("endpoint", endpoint).Msg("Got 400, retrying once")
			continue

		case resp.StatusCode >= 400:
			c.log.Error().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("Request rejected")
			return nil, &APIError{Status: resp.StatusCode, Body: string(data)}
		}

		return decodeItems(data)
	}

	return nil, &APIError{Status: http.StatusTooManyRequests}
}

// decodeItems accepts the three response shapes the API is known to produce:
// an {itens: [...]} / {items: [...]} envelope, a bare array, or a single
// object (sub-resource endpoints).
func decodeItems(data []byte) ([]record.Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	switch v := raw.(type) {
	case []interface{}:
		return toRecords(v), nil
	case map[string]interface{}:
		rec := record.Record(v)
		for _, key := range []string{"itens", "items"} {
			if rec.Has(key) {
				if list, ok := v[key].([]interface{}); ok {
					return toRecords(list), nil
				}
				return nil, nil
			}
		}
		return []record.Record{rec}, nil
	}
	return nil, nil
}

func toRecords(list []interface{}) []record.Record {
	out := make([]record.Record, 0, len(list))
	for _, el := range list {
		if m, ok := el.(map[string]interface{}); ok {
			out = append(out, record.Record(m))
		}
	}
	return out
}
