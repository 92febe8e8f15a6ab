package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/loykin/jitter/internal/gesture"
)

// Client talks to a jitter server over its HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
	TLS     *TLSClientConfig
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	CACert     string // CA certificate file path
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8480/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new API client. It fails only when the TLS settings cannot be loaded.
func New(config Config) (*Client, error) {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.TLS != nil {
		tlsConfig, err := setupClientTLS(*config.TLS)
		if err != nil {
			return nil, fmt.Errorf("TLS setup: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
	}, nil
}

// IsReachable checks if the server is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Server unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Notify sends one gesture record to the producer endpoint of its category.
func (c *Client) Notify(ctx context.Context, rec gesture.Record) error {
	cat, err := categoryOf(rec)
	if err != nil {
		return err
	}
	if err := gesture.Validate(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	c.logger.Debug("Notifying gesture", "category", cat.String(), "id", rec.GestureID(), "phase", rec.GesturePhase().String())
	return c.do(ctx, http.MethodPost, c.baseURL+"/notify/"+cat.String(), data, nil)
}

func categoryOf(rec gesture.Record) (gesture.Category, error) {
	switch rec.(type) {
	case gesture.Circle:
		return gesture.CategoryCircle, nil
	case gesture.Swipe:
		return gesture.CategorySwipe, nil
	case gesture.ScreenTap:
		return gesture.CategoryScreenTap, nil
	case gesture.KeyTap:
		return gesture.CategoryKeyTap, nil
	}
	return 0, fmt.Errorf("%w: %T", gesture.ErrUnknownCategory, rec)
}

// CircleBatch drains circle gestures matching q.
func (c *Client) CircleBatch(ctx context.Context, q BatchQuery) ([]gesture.Circle, error) {
	v := url.Values{}
	if q.MinProgress != nil {
		v.Set("min_progress", strconv.FormatFloat(*q.MinProgress, 'g', -1, 64))
	}
	if q.MinRadius != nil {
		v.Set("min_radius", strconv.FormatFloat(*q.MinRadius, 'g', -1, 64))
	}
	return batch[gesture.Circle](ctx, c, gesture.CategoryCircle, v)
}

func (c *Client) SwipeBatch(ctx context.Context) ([]gesture.Swipe, error) {
	return batch[gesture.Swipe](ctx, c, gesture.CategorySwipe, nil)
}

func (c *Client) ScreenTapBatch(ctx context.Context) ([]gesture.ScreenTap, error) {
	return batch[gesture.ScreenTap](ctx, c, gesture.CategoryScreenTap, nil)
}

func (c *Client) KeyTapBatch(ctx context.Context) ([]gesture.KeyTap, error) {
	return batch[gesture.KeyTap](ctx, c, gesture.CategoryKeyTap, nil)
}

func batch[T gesture.Record](ctx context.Context, c *Client, cat gesture.Category, q url.Values) ([]T, error) {
	u := c.baseURL + "/batch/" + cat.String()
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var resp batchResponse[T]
	if err := c.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Gestures, nil
}

// Status returns per-category buffer stats.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var st StatusResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SetConsumption toggles consumption for one category, or all when category is empty.
func (c *Client) SetConsumption(ctx context.Context, category string, enabled bool) (map[string]bool, error) {
	v := url.Values{"enabled": {strconv.FormatBool(enabled)}}
	if category != "" {
		v.Set("category", category)
	}
	var resp ConsumptionResponse
	if err := c.do(ctx, http.MethodPut, c.baseURL+"/consumption?"+v.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Consumption, nil
}

// Reset empties every buffer on the server.
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.baseURL+"/reset", nil, nil)
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(cfg TLSClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.SkipVerify, // #nosec G402 opt-in for self-signed development certificates
	}
	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// do performs an HTTP request and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{Status: resp.StatusCode}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Message: errorResp.Error}
}
