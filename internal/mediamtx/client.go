package mediamtx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/camlink/camerad/internal/logging"
)

// Client is a typed HTTP client for the MediaMTX v3 API. All mutating
// operations are idempotent with respect to server state.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a MediaMTX API client with the request discipline
// used throughout the service: 10 s total timeout, 5 s connect
// timeout, pooled connections capped at 10 total and 5 per host.
func NewClient(cfg Config) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 5 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		MaxConnsPerHost:     5,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		cfg:     cfg,
		baseURL: cfg.APIBaseURL(),
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
		logger: logging.GetLogger("mediamtx"),
	}
}

// Config returns the client's connection settings.
func (c *Client) Config() Config { return c.cfg }

// do performs one request with a correlation id attached.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	correlationID := logging.NewCorrelationID()
	req.Header.Set("X-Correlation-ID", correlationID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Op: method + " " + path, Err: err}
	}
	c.logger.Debug("MediaMTX request",
		"method", method, "path", path,
		"status", resp.StatusCode, "correlation_id", correlationID)
	return resp, nil
}

// HealthCheck probes the API and reports status and latency. Transport
// errors surface as ConnectionError.
func (c *Client) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	start := time.Now()
	resp, err := c.do(ctx, http.MethodGet, "/v3/paths/list?itemsPerPage=1", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return &HealthCheckResult{
		Status:         "healthy",
		Version:        resp.Header.Get("Server"),
		ResponseTimeMS: elapsed,
	}, nil
}

// CreateStream creates a path for the given source. A 409 (path
// already exists) is treated as success so retries and re-connects are
// idempotent; the returned URLs are identical either way.
func (c *Client) CreateStream(ctx context.Context, name, source string, conf *PathConf) (StreamURLs, error) {
	if conf == nil {
		conf = &PathConf{}
	}
	conf.Source = source

	resp, err := c.do(ctx, http.MethodPost, "/v3/config/paths/add/"+name, conf)
	if err != nil {
		return StreamURLs{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		c.logger.Info("Created MediaMTX path", "path", name, "source", source)
	case http.StatusConflict:
		c.logger.Debug("MediaMTX path already exists", "path", name)
	default:
		return StreamURLs{}, fmt.Errorf("failed to create path %s: %s", name, readError(resp))
	}
	return c.cfg.URLsFor(name), nil
}

// DeleteStream removes a path. 404 is idempotent success.
func (c *Client) DeleteStream(ctx context.Context, name string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v3/config/paths/delete/"+name, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		c.logger.Info("Deleted MediaMTX path", "path", name)
		return nil
	case http.StatusNotFound:
		c.logger.Debug("MediaMTX path already absent", "path", name)
		return nil
	default:
		return fmt.Errorf("failed to delete path %s: %s", name, readError(resp))
	}
}

// PatchPath updates the configuration of an existing path.
func (c *Client) PatchPath(ctx context.Context, name string, conf *PathConf) error {
	resp, err := c.do(ctx, http.MethodPatch, "/v3/config/paths/patch/"+name, conf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("patch path %s: %w", name, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to patch path %s: %s", name, readError(resp))
	}
	return nil
}

// GetStreamList returns all paths as client-facing stream summaries.
func (c *Client) GetStreamList(ctx context.Context) ([]Stream, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v3/paths/list", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list paths: %s", readError(resp))
	}

	var list PathList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode path list: %w", err)
	}

	streams := make([]Stream, 0, len(list.Items))
	for _, item := range list.Items {
		streams = append(streams, toStream(item))
	}
	return streams, nil
}

// GetStreamStatus returns the runtime state of one path. A 404 maps to
// ErrNotFound.
func (c *Client) GetStreamStatus(ctx context.Context, name string) (*PathInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v3/paths/get/"+name, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("path %s: %w", name, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get path %s: %s", name, readError(resp))
	}

	var info PathInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode path info: %w", err)
	}
	return &info, nil
}

// UpdateConfiguration applies a schema-validated patch to the global
// MediaMTX configuration. Validation happens locally before any
// network call.
func (c *Client) UpdateConfiguration(ctx context.Context, options map[string]any) error {
	if err := ValidateConfigOptions(options); err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPatch, "/v3/config/global/patch", options)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to update configuration: %s", readError(resp))
	}
	c.logger.Info("Updated MediaMTX configuration", "keys", len(options))
	return nil
}

// toStream flattens a PathInfo into the client-facing summary.
func toStream(info *PathInfo) Stream {
	s := Stream{
		Name:      info.Name,
		Ready:     info.Ready,
		Readers:   len(info.Readers),
		BytesSent: info.BytesSent,
	}
	if info.Source != nil {
		s.Source = info.Source.Type
	}
	return s
}

// readError extracts a short error description from a response body.
func readError(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, msg)
}
