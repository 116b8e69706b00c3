// Package directory talks to the public game-server directory API.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"archean-status-relay/config"
)

var (
	// ErrRequestFailure is returned when the directory could not be reached or answered with a non-2xx status.
	ErrRequestFailure = errors.New("directory request failed")
	// ErrInvalidSchema is returned when the directory answered with a payload of the wrong shape.
	ErrInvalidSchema = errors.New("invalid directory response schema")
)

// maxBodyBytes bounds how much of a directory response is read.
const maxBodyBytes = 8 << 20

// Client fetches server listings from the directory. It keeps no state between calls.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a directory client from the directory configuration.
func NewClient(cfg config.DirectoryConfig) *Client {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn().Err(err).Str("proxy", cfg.HTTPProxy).Msg("invalid proxy URL, directory client will not use a proxy")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// FetchAll returns every server currently listed by the directory.
func (c *Client) FetchAll(ctx context.Context) ([]ServerSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/servers", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrRequestFailure, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("%w: received status code %d", ErrRequestFailure, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrRequestFailure, err)
	}

	var apiResp ApiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if apiResp.Servers == nil {
		return nil, fmt.Errorf("%w: missing \"servers\" key", ErrInvalidSchema)
	}

	servers := make([]ServerSnapshot, 0, len(*apiResp.Servers))
	for i, raw := range *apiResp.Servers {
		snapshot, err := raw.toSnapshot()
		if err != nil {
			return nil, fmt.Errorf("server record %d: %w", i, err)
		}
		servers = append(servers, snapshot)
	}
	return servers, nil
}

// FindByAddress returns the listed server at host:port, or nil when it is not listed.
// Not being listed is a normal state and is not reported as an error.
func (c *Client) FindByAddress(ctx context.Context, host string, port int) (*ServerSnapshot, error) {
	servers, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range servers {
		if servers[i].Address.Host == host && servers[i].Address.Port == port {
			return &servers[i], nil
		}
	}
	return nil, nil
}

// FindByID returns the listed server with the given directory id, or nil when it is not listed.
func (c *Client) FindByID(ctx context.Context, id int64) (*ServerSnapshot, error) {
	servers, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range servers {
		if servers[i].ID == id {
			return &servers[i], nil
		}
	}
	return nil, nil
}
