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

package pulsar_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsarconsole/pulsarconsole/internal/pulsar"
	"github.com/pulsarconsole/pulsarconsole/internal/rbac"
)

func newTestClient(t *testing.T, handler http.Handler) *pulsar.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := pulsar.NewClient(pulsar.Config{
		AdminURL:   srv.URL,
		AuthToken:  "test-token",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestGetNamespacePermissions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/admin/v2/namespaces/tenantA/ns1/permissions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string][]string{
			"viewer": {"consume"},
			"app":    {"produce", "consume"},
		})
	}))

	perms, err := client.GetNamespacePermissions(context.Background(), "tenantA", "ns1")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"viewer": {"consume"},
		"app":    {"produce", "consume"},
	}, perms)
}

func TestGrantNamespacePermission(t *testing.T) {
	var gotBody []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/v2/namespaces/tenantA/ns1/permissions/viewer", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.GrantNamespacePermission(context.Background(), "tenantA", "ns1", "viewer", []string{"consume", "produce"})
	require.NoError(t, err)
	assert.Equal(t, []string{"consume", "produce"}, gotBody)
}

func TestRevokeNamespacePermission(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/admin/v2/namespaces/tenantA/ns1/permissions/viewer", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.RevokeNamespacePermission(context.Background(), "tenantA", "ns1", "viewer")
	require.NoError(t, err)
}

func TestListNamespaces(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/v2/namespaces/tenantA", r.URL.Path)
		json.NewEncoder(w).Encode([]string{"tenantA/ns1", "tenantA/ns2"})
	}))

	namespaces, err := client.ListNamespaces(context.Background(), "tenantA")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenantA/ns1", "tenantA/ns2"}, namespaces)
}

func TestErrorMapping(t *testing.T) {
	status := http.StatusNotFound
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"reason": "boom"})
	}))

	_, err := client.GetNamespacePermissions(context.Background(), "tenantA", "missing")
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	status = http.StatusConflict
	err = client.GrantNamespacePermission(context.Background(), "tenantA", "ns1", "viewer", []string{"consume"})
	assert.ErrorIs(t, err, rbac.ErrConflict)
}

func TestRetriesThenUpstreamUnavailable(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client, err := pulsar.NewClient(pulsar.Config{
		AdminURL:   srv.URL,
		MaxRetries: 2,
		Timeout:    time.Second,
	}, nil)
	require.NoError(t, err)

	_, err = client.GetNamespacePermissions(context.Background(), "tenantA", "ns1")
	assert.ErrorIs(t, err, rbac.ErrUpstreamUnavailable)
	assert.Equal(t, 2, calls)
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := pulsar.NewClient(pulsar.Config{}, nil)
	assert.ErrorIs(t, err, rbac.ErrInvalidArgument)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer, err := pulsar.NewTokenIssuer([]byte("broker-secret"), time.Hour)
	require.NoError(t, err)

	token, err := issuer.IssueToken("console-admin")
	require.NoError(t, err)

	role, err := issuer.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "console-admin", role)
}

func TestTokenIssuer_RejectsWrongSecret(t *testing.T) {
	issuer, err := pulsar.NewTokenIssuer([]byte("broker-secret"), 0)
	require.NoError(t, err)
	other, err := pulsar.NewTokenIssuer([]byte("not-the-secret"), 0)
	require.NoError(t, err)

	token, err := issuer.IssueToken("console-admin")
	require.NoError(t, err)

	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}
