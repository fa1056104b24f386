// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package polar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	client := NewClient()
	if client == nil {
		t.Fatal("NewClient() returned nil")
	}

	if client.httpClient == nil {
		t.Error("HTTP client not initialized")
	}

	if client.httpClient.Timeout != requestTimeout {
		t.Errorf("HTTP client timeout = %v, want %v", client.httpClient.Timeout, requestTimeout)
	}

	if client.organizationID != "" {
		t.Error("Organization ID should be empty initially")
	}
}

func TestSetOrganizationID(t *testing.T) {
	testOrgID := "test-org-123"
	client := NewClient(WithOrganizationID(testOrgID))

	assert.Equal(t, testOrgID, client.organizationID)
}

func TestWithEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		expected string
	}{
		{"production", "production", polarAPIBaseURL},
		{"sandbox", "sandbox", polarSandboxAPIBaseURL},
		{"unknown env keeps default", "staging", polarAPIBaseURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(WithEnvironment(tt.env))
			assert.Equal(t, tt.expected, client.baseURL)
		})
	}
}

func TestIsClientConfigured(t *testing.T) {
	tests := []struct {
		name     string
		orgID    string
		expected bool
	}{
		{
			name:     "empty org ID returns false",
			orgID:    "",
			expected: false,
		},
		{
			name:     "non-empty org ID returns true",
			orgID:    "test-org",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(WithOrganizationID(tt.orgID))

			result := client.IsClientConfigured()
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestValidateLicense_NoOrgID(t *testing.T) {
	client := NewClient()
	// Don't set organization ID

	result, err := client.Validate(context.Background(), ValidateRequest{})
	assert.ErrorIs(t, err, ErrBadRequestData)
	assert.Nil(t, result)
}

func TestActivateStatusCodeMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"bad request maps to malformed key", http.StatusBadRequest, ErrMalformedKey},
		{"unauthorized maps to auth failure", http.StatusUnauthorized, ErrAuthFailed},
		{"forbidden maps to expired or device limit", http.StatusForbidden, ErrKeyExpired},
		{"not found maps to key not found", http.StatusNotFound, ErrKeyNotFound},
		{"conflict maps to already activated", http.StatusConflict, ErrAlreadyActivated},
		{"internal error maps to server unavailable", http.StatusInternalServerError, ErrServerUnavailable},
		{"bad gateway maps to server unavailable", http.StatusBadGateway, ErrServerUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client := NewClient(WithBaseURL(server.URL), WithOrganizationID("test-org"))

			_, err := client.Activate(context.Background(), ActivateRequest{Key: "key-1", Label: "device-1"})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestActivateTransportErrorIsServerUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient(WithBaseURL(server.URL), WithOrganizationID("test-org"))

	_, err := client.Activate(context.Background(), ActivateRequest{Key: "key-1", Label: "device-1"})
	require.ErrorIs(t, err, ErrServerUnavailable)
}

func TestActivateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, activateEndpoint, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ActivateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "key-1", req.Key)
		assert.Equal(t, "device-1", req.Label)
		assert.Equal(t, "test-org", req.OrganizationID)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "act-7", "license_key": {"status": "granted"}}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithOrganizationID("test-org"))

	resp, err := client.Activate(context.Background(), ActivateRequest{Key: "key-1", Label: "device-1"})
	require.NoError(t, err)
	assert.Equal(t, "act-7", resp.ID)
	assert.Equal(t, "granted", resp.LicenseKey.Status)
}

func TestActivateNotGranted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "act-7", "license_key": {"status": "disabled"}}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithOrganizationID("test-org"))

	_, err := client.Activate(context.Background(), ActivateRequest{Key: "key-1", Label: "device-1"})
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestValidateReturnsStatus(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		valid  bool
		status string
	}{
		{"granted", `{"status": "granted"}`, true, "granted"},
		{"revoked", `{"status": "revoked"}`, false, "revoked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, validateEndpoint, r.URL.Path)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(WithBaseURL(server.URL), WithOrganizationID("test-org"))

			resp, err := client.Validate(context.Background(), ValidateRequest{Key: "key-1"})
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.valid, resp.ValidLicense())
		})
	}
}

func TestMaskLicenseKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "short key returns stars",
			key:      "123",
			expected: "***",
		},
		{
			name:     "8 char key returns stars",
			key:      "12345678",
			expected: "***",
		},
		{
			name:     "long key returns first 8 plus stars",
			key:      "123456789012345",
			expected: "12345678***",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MaskLicenseKey(tt.key)
			assert.Equal(t, tt.expected, result)
		})
	}
}
