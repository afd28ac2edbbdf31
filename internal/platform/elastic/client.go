// Package elastic is a minimal Elasticsearch HTTP API client covering the
// operations a rolling upgrade needs: node version lookup, shard-allocation
// toggling, synced flush, node listing and cluster health.
package elastic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultPort    = 9200
	defaultTimeout = 30 * time.Second
)

// AllocationMode is the cluster-wide shard allocation setting.
type AllocationMode string

const (
	// AllocationNone disables shard allocation for the cluster.
	AllocationNone AllocationMode = "none"
	// AllocationAll enables shard allocation for the cluster.
	AllocationAll AllocationMode = "all"
)

// Health is the aggregate cluster health status.
type Health string

const (
	// HealthGreen means all shards are allocated and replicated.
	HealthGreen Health = "green"
	// HealthYellow means all primary shards are allocated but replication is degraded.
	HealthYellow Health = "yellow"
	// HealthRed means some primary shards are unallocated.
	HealthRed Health = "red"
	// HealthUnknown means the status could not be determined.
	HealthUnknown Health = "unknown"
)

// Credentials is an optional basic-auth username/password pair applied
// uniformly to every call. The zero value means unauthenticated.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) empty() bool {
	return c.Username == ""
}

// Config holds client configuration.
type Config struct {
	// Port is the Elasticsearch HTTP port. If zero, 9200 is used.
	Port int

	// TLS selects https instead of http.
	TLS bool

	// InsecureSkipVerify disables TLS certificate verification, for clusters
	// running with self-signed certificates.
	InsecureSkipVerify bool

	// Credentials is the optional basic-auth pair for every request.
	Credentials Credentials

	// Timeout is the per-request timeout. If zero, 30s is used.
	Timeout time.Duration
}

// Client issues Elasticsearch API calls against individual cluster nodes.
// The credential pair is captured once at construction and never threaded
// through call sites.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new Elasticsearch API client.
func NewClient(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	transport := http.DefaultTransport
	if cfg.TLS && cfg.InsecureSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402 -- explicit opt-in for self-signed clusters
		}
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// NodeURL returns the base URL for a node.
func (c *Client) NodeURL(host string) string {
	scheme := "http"
	if c.config.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, c.config.Port)
}

// NodeVersion returns the Elasticsearch version reported by the node's root
// endpoint (the version.number JSON field).
func (c *Client) NodeVersion(ctx context.Context, host string) (string, error) {
	body, status, err := c.do(ctx, http.MethodGet, c.NodeURL(host)+"/", nil)
	if err != nil {
		return "", fmt.Errorf("get node version from %s: %w", host, err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("get node version from %s: unexpected status %d", host, status)
	}

	var info struct {
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("parse node info from %s: %w", host, err)
	}
	if info.Version.Number == "" {
		return "", fmt.Errorf("node %s did not report a version number", host)
	}

	return info.Version.Number, nil
}

// SetAllocation sets the cluster-wide transient shard allocation mode via the
// given node. A non-2xx response is an error.
func (c *Client) SetAllocation(ctx context.Context, host string, mode AllocationMode) error {
	payload := map[string]any{
		"transient": map[string]string{
			"cluster.routing.allocation.enable": string(mode),
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode allocation settings: %w", err)
	}

	_, status, err := c.do(ctx, http.MethodPut, c.NodeURL(host)+"/_cluster/settings", data)
	if err != nil {
		return fmt.Errorf("set shard allocation to %q via %s: %w", mode, host, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("set shard allocation to %q via %s: unexpected status %d", mode, host, status)
	}

	return nil
}

// SyncedFlush requests a synced flush via the given node. Callers treat the
// outcome as best-effort; the returned error exists only for logging.
func (c *Client) SyncedFlush(ctx context.Context, host string) error {
	_, status, err := c.do(ctx, http.MethodPost, c.NodeURL(host)+"/_flush/synced", []byte("{}"))
	if err != nil {
		return fmt.Errorf("synced flush via %s: %w", host, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("synced flush via %s: status %d", host, status)
	}
	return nil
}

// ListNodes returns the plain-text node listing from the given node.
func (c *Client) ListNodes(ctx context.Context, host string) (string, error) {
	body, status, err := c.do(ctx, http.MethodGet, c.NodeURL(host)+"/_cat/nodes", nil)
	if err != nil {
		return "", fmt.Errorf("list nodes via %s: %w", host, err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("list nodes via %s: unexpected status %d", host, status)
	}
	return string(body), nil
}

// Health returns the cluster health as reported by the given node.
// Connectivity failures and unrecognized responses yield HealthUnknown
// together with the underlying error for logging.
func (c *Client) Health(ctx context.Context, host string) (Health, error) {
	body, status, err := c.do(ctx, http.MethodGet, c.NodeURL(host)+"/_cat/health", nil)
	if err != nil {
		return HealthUnknown, fmt.Errorf("cluster health via %s: %w", host, err)
	}
	if status != http.StatusOK {
		return HealthUnknown, fmt.Errorf("cluster health via %s: unexpected status %d", host, status)
	}

	text := string(body)
	switch {
	case strings.Contains(text, string(HealthGreen)):
		return HealthGreen, nil
	case strings.Contains(text, string(HealthYellow)):
		return HealthYellow, nil
	case strings.Contains(text, string(HealthRed)):
		return HealthRed, nil
	default:
		return HealthUnknown, fmt.Errorf("cluster health via %s: unrecognized response %q", host, strings.TrimSpace(text))
	}
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !c.config.Credentials.empty() {
		req.SetBasicAuth(c.config.Credentials.Username, c.config.Credentials.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	return data, resp.StatusCode, nil
}
