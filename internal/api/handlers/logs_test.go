// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dilag-app/dilag/internal/config"
)

func TestLogsHandler_GetLogSettings(t *testing.T) {
	appConfig := createTestConfig(t)

	handler := NewLogsHandler(appConfig)

	req := httptest.NewRequest(http.MethodGet, "/log-settings", http.NoBody)
	rec := httptest.NewRecorder()

	handler.GetLogSettings(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var settings config.LogSettingsResponse
	if err := json.NewDecoder(rec.Body).Decode(&settings); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if settings.Level == "" {
		t.Error("expected non-empty level")
	}
}

func TestLogsHandler_UpdateLogSettings_InvalidLevel(t *testing.T) {
	appConfig := createTestConfig(t)
	handler := NewLogsHandler(appConfig)

	body := strings.NewReader(`{"level": "INVALID"}`)
	req := httptest.NewRequest(http.MethodPut, "/log-settings", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.UpdateLogSettings(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestLogsHandler_UpdateLogSettings_InvalidMaxSize(t *testing.T) {
	appConfig := createTestConfig(t)
	handler := NewLogsHandler(appConfig)

	body := strings.NewReader(`{"maxSize": 0}`)
	req := httptest.NewRequest(http.MethodPut, "/log-settings", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.UpdateLogSettings(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestLogsHandler_UpdateLogSettings_InvalidMaxBackups(t *testing.T) {
	appConfig := createTestConfig(t)
	handler := NewLogsHandler(appConfig)

	body := strings.NewReader(`{"maxBackups": -1}`)
	req := httptest.NewRequest(http.MethodPut, "/log-settings", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.UpdateLogSettings(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestLogsHandler_UpdateLogSettings_InvalidJSON(t *testing.T) {
	appConfig := createTestConfig(t)
	handler := NewLogsHandler(appConfig)

	body := strings.NewReader(`{invalid json}`)
	req := httptest.NewRequest(http.MethodPut, "/log-settings", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.UpdateLogSettings(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

// createTestConfig creates a minimal AppConfig for testing.
func createTestConfig(t *testing.T) *config.AppConfig {
	t.Helper()

	appConfig, err := config.New(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	return appConfig
}
