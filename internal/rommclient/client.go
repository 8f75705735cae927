// Package rommclient implements the HTTP client for the remote
// ROM-management service: rom-id resolution, remote save listing with
// content-addressed hashing, and upload/download with atomic write.
package rommclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/romm-sync/saveport/internal/config"
)

// Client is an authorized HTTP client for the remote ROM-management
// service. One static credential is sent on every request; there is no
// token refresh or expiry to manage.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	// romIDCache maps a rom name to its resolved remote id. It is
	// process-local and read-mostly. A Rust rom-id cache would recover
	// from a poisoned lock by taking the inner value (mutex poisoning on
	// panic); Go's sync.RWMutex has no
	// equivalent poisoned state; a panic while holding it simply never
	// unlocks, which is the same failure mode stdlib mutexes always
	// have. Nothing further to translate here.
	mu         sync.RWMutex
	romIDCache map[string]int64
}

// New builds a Client from the configured remote service URL and API key.
func New(cfg config.RommConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: http.DefaultClient,
		logger:     logger,
		romIDCache: make(map[string]int64),
	}
}

// joinURL concatenates base and endpoint, normalizing exactly one "/"
// between them.
func joinURL(base, endpoint string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// do issues an authorized request against endpoint (joined to the base
// URL). The caller is responsible for closing the response body on a 2xx
// result.
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	u := joinURL(c.baseURL, endpoint)

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("rommclient: building request for %s %s: %w", method, endpoint, err)
	}
	req.Header.Set("authorization", c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("rommclient: request", "method", method, "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rommclient: %s %s: %w", method, endpoint, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rommclient: %s %s: HTTP %d: %s", method, endpoint, resp.StatusCode, snippet)
	}

	return resp, nil
}

// getJSON issues a GET against endpoint and decodes the JSON response body
// into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rommclient: decoding response from %s: %w", endpoint, err)
	}
	return nil
}

// romID resolves rom to its remote id, consulting the cache first.
func (c *Client) romID(ctx context.Context, rom string) (int64, error) {
	c.mu.RLock()
	id, ok := c.romIDCache[rom]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	found, err := c.romSchema(ctx, rom)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.romIDCache[rom] = found.ID
	c.mu.Unlock()

	return found.ID, nil
}

func (c *Client) romSchema(ctx context.Context, rom string) (romSchema, error) {
	endpoint := "/api/roms?search_term=" + url.QueryEscape(rom)

	var found []romSchema
	if err := c.getJSON(ctx, endpoint, &found); err != nil {
		return romSchema{}, err
	}

	switch len(found) {
	case 0:
		return romSchema{}, fmt.Errorf("rommclient: rom %q: %w", rom, ErrRomNotFound)
	case 1:
		return found[0], nil
	default:
		return romSchema{}, fmt.Errorf("rommclient: rom %q matched %d roms: %w", rom, len(found), ErrTooManyRoms)
	}
}
