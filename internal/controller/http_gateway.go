package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/plcsnmp/plcsnmp/internal/auth"
)

const (
	maxResponseBodySize   = 4 << 20 // 4MB
	defaultRequestTimeout = 3 * time.Second
	tokenClientName       = "plcsnmp"
)

// DeviceInfo describes the controller answering the connect check
type DeviceInfo struct {
	Name    string `json:"name"`
	Vendor  string `json:"vendor"`
	Version string `json:"version"`
}

type stateBody struct {
	State string `json:"state"`
}

type writeBody struct {
	Value string `json:"value"`
}

// HTTPConfig holds the endpoint settings of an HTTPGateway
type HTTPConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// HTTPGateway talks to the controller tag API over JSON/HTTP.
//
// A transport failure marks the gateway disconnected; the owner is expected
// to discard it and create a new one through its Factory.
type HTTPGateway struct {
	baseURL    string
	httpClient *http.Client
	tokens     *auth.Service
	timeout    time.Duration
	logger     *slog.Logger

	mu        sync.RWMutex
	connected bool
	closed    bool
	device    DeviceInfo
}

// NewHTTPGateway creates an unconnected HTTPGateway. tokens may be nil when
// the controller API is not protected.
func NewHTTPGateway(cfg HTTPConfig, tokens *auth.Service, logger *slog.Logger) *HTTPGateway {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPGateway{
		baseURL: "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		tokens:  tokens,
		timeout: timeout,
		logger:  logger.With("component", "controller", "endpoint", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))),
	}
}

// NewHTTPFactory returns a Factory producing HTTPGateways for one endpoint
func NewHTTPFactory(cfg HTTPConfig, tokens *auth.Service, logger *slog.Logger) Factory {
	return func() Gateway {
		return NewHTTPGateway(cfg, tokens, logger)
	}
}

// Connect queries the controller's device endpoint
func (g *HTTPGateway) Connect(ctx context.Context) error {
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		return fmt.Errorf("%w: gateway closed", ErrNotConnected)
	}

	var info DeviceInfo
	if err := g.do(ctx, http.MethodGet, "/api/v1/device", nil, &info); err != nil {
		return err
	}

	g.mu.Lock()
	g.connected = true
	g.device = info
	g.mu.Unlock()

	g.logger.Debug("controller connected", "device", info.Name, "vendor", info.Vendor, "version", info.Version)
	return nil
}

// Close marks the gateway closed and drops idle connections
func (g *HTTPGateway) Close() error {
	g.mu.Lock()
	g.connected = false
	g.closed = true
	g.mu.Unlock()

	g.httpClient.CloseIdleConnections()
	return nil
}

// Connected reports the last known connectivity
func (g *HTTPGateway) Connected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected
}

// Device returns the controller identity reported on connect
func (g *HTTPGateway) Device() DeviceInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.device
}

// RunState reads the controller's operating mode
func (g *HTTPGateway) RunState(ctx context.Context) (RunState, error) {
	var body stateBody
	if err := g.do(ctx, http.MethodGet, "/api/v1/state", nil, &body); err != nil {
		return RunStateUnknown, err
	}
	return ParseRunState(body.State), nil
}

// Symbols lists all symbols carrying annotations
func (g *HTTPGateway) Symbols(ctx context.Context) ([]Symbol, error) {
	var symbols []Symbol
	if err := g.do(ctx, http.MethodGet, "/api/v1/symbols?annotated=true", nil, &symbols); err != nil {
		return nil, err
	}
	return symbols, nil
}

// Write stores value into the named symbol
func (g *HTTPGateway) Write(ctx context.Context, name, value string) error {
	return g.do(ctx, http.MethodPut, "/api/v1/symbols/"+url.PathEscape(name), writeBody{Value: value}, nil)
}

// do performs one API call. Transport errors are reported as ErrNotConnected
// and flip the connected flag.
func (g *HTTPGateway) do(parent context.Context, method, path string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(parent, g.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.tokens != nil {
		token, _, err := g.tokens.IssueToken(tokenClientName)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// a cancelled caller is not a connectivity problem
		if parent.Err() != nil {
			return parent.Err()
		}
		g.markDisconnected()
		return fmt.Errorf("%w: %s %s: %v", ErrNotConnected, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		g.markDisconnected()
		return fmt.Errorf("%w: failed to read response: %v", ErrNotConnected, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Message: apiErrorMessage(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (g *HTTPGateway) markDisconnected() {
	g.mu.Lock()
	g.connected = false
	g.mu.Unlock()
}

// APIError is a non-2xx answer from the controller tag API
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("controller api %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("controller api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// apiErrorMessage extracts the message of an {"error":{"message":...}} body
func apiErrorMessage(data []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ""
	}
	return envelope.Error.Message
}
