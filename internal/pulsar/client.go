// Copyright 2026 The Pulsar Console Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pulsar talks to the broker's admin REST API. It is the only
// package that reaches the external permission store.
package pulsar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
)

// PermissionStore is the slice of the admin API the sync engine needs.
type PermissionStore interface {
	GetNamespacePermissions(ctx context.Context, tenant, namespace string) (map[string][]string, error)
	GrantNamespacePermission(ctx context.Context, tenant, namespace, role string, actions []string) error
	RevokeNamespacePermission(ctx context.Context, tenant, namespace, role string) error
	ListNamespaces(ctx context.Context, tenant string) ([]string, error)
}

// TenantLister enumerates tenants, used by scheduled tenant-wide syncs.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// Config configures the admin client.
type Config struct {
	AdminURL string

	// AuthToken is the broker bearer token. A "file://" value is read
	// from disk at client construction.
	AuthToken string

	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int
}

// Client is an admin REST client with retry, rate limiting and
// distributed tracing on every request.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *slog.Logger
}

// NewClient creates an admin client. Connection failures are not
// detected here; every call reports them as ErrUpstreamUnavailable.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.AdminURL == "" {
		return nil, fmt.Errorf("%w: pulsar admin URL is required", rbac.ErrInvalidArgument)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}

	token := cfg.AuthToken
	if strings.HasPrefix(token, "file://") {
		data, err := os.ReadFile(strings.TrimPrefix(token, "file://"))
		if err != nil {
			return nil, fmt.Errorf("failed to read pulsar token file: %w", err)
		}
		token = strings.TrimSpace(string(data))
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.AdminURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}, nil
}

// apiError is the broker's error envelope.
type apiError struct {
	Reason string `json:"reason"`
}

// GetNamespacePermissions returns the broker's role -> actions map for
// a namespace.
func (c *Client) GetNamespacePermissions(ctx context.Context, tenant, namespace string) (map[string][]string, error) {
	path := fmt.Sprintf("/admin/v2/namespaces/%s/%s/permissions",
		url.PathEscape(tenant), url.PathEscape(namespace))

	var out map[string][]string
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string][]string{}
	}
	return out, nil
}

// GrantNamespacePermission sets a role's actions on a namespace. The
// broker replaces the role's action set wholesale.
func (c *Client) GrantNamespacePermission(ctx context.Context, tenant, namespace, role string, actions []string) error {
	path := fmt.Sprintf("/admin/v2/namespaces/%s/%s/permissions/%s",
		url.PathEscape(tenant), url.PathEscape(namespace), url.PathEscape(role))
	return c.do(ctx, http.MethodPost, path, actions, nil)
}

// RevokeNamespacePermission removes every action a role holds on a
// namespace.
func (c *Client) RevokeNamespacePermission(ctx context.Context, tenant, namespace, role string) error {
	path := fmt.Sprintf("/admin/v2/namespaces/%s/%s/permissions/%s",
		url.PathEscape(tenant), url.PathEscape(namespace), url.PathEscape(role))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ListNamespaces returns the namespaces of a tenant as "tenant/ns"
// paths, the way the broker reports them.
func (c *Client) ListNamespaces(ctx context.Context, tenant string) ([]string, error) {
	path := "/admin/v2/namespaces/" + url.PathEscape(tenant)

	var out []string
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTenants returns every tenant in the cluster.
func (c *Client) ListTenants(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, "/admin/v2/tenants", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do issues one logical request with retries. Connection failures and
// gateway errors (502/503/504) are retried with exponential backoff;
// other statuses are mapped to domain errors immediately.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			c.logger.WarnContext(ctx, "pulsar admin request failed",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			continue
		}

		if resp.StatusCode == http.StatusBadGateway ||
			resp.StatusCode == http.StatusServiceUnavailable ||
			resp.StatusCode == http.StatusGatewayTimeout {
			resp.Body.Close()
			lastErr = fmt.Errorf("broker returned %d", resp.StatusCode)
			c.logger.WarnContext(ctx, "pulsar admin request failed",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.Int("status", resp.StatusCode))
			continue
		}

		return c.handleResponse(resp, out)
	}

	return fmt.Errorf("%w: %s %s failed after %d attempts: %v",
		rbac.ErrUpstreamUnavailable, method, path, c.maxRetries, lastErr)
}

func (c *Client) handleResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("pulsar resource %w", rbac.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("pulsar: %s: %w", readReason(resp.Body), rbac.ErrConflict)
	case resp.StatusCode >= 400:
		return fmt.Errorf("pulsar admin API error (%d): %s", resp.StatusCode, readReason(resp.Body))
	case resp.StatusCode == http.StatusNoContent || out == nil:
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode pulsar response: %w", err)
	}
	return nil
}

func readReason(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "no detail"
	}
	var e apiError
	if json.Unmarshal(data, &e) == nil && e.Reason != "" {
		return e.Reason
	}
	return string(data)
}
