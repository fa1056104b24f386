// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dilag-app/dilag/internal/config"
)

// LogsHandler handles log settings endpoints.
type LogsHandler struct {
	appConfig *config.AppConfig
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(appConfig *config.AppConfig) *LogsHandler {
	return &LogsHandler{
		appConfig: appConfig,
	}
}

// Routes registers the log routes on the provided router.
func (h *LogsHandler) Routes(r chi.Router) {
	r.Get("/log-settings", h.GetLogSettings)
	r.Put("/log-settings", h.UpdateLogSettings)
}

// GetLogSettings returns the current log settings.
func (h *LogsHandler) GetLogSettings(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.appConfig.GetLogSettings())
}

// UpdateLogSettings updates the log settings.
func (h *LogsHandler) UpdateLogSettings(w http.ResponseWriter, r *http.Request) {
	var update config.LogSettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		RespondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	// Validate log level if provided
	if update.Level != nil {
		validLevels := map[string]bool{
			"trace": true, "debug": true, "info": true, "warn": true, "error": true,
			"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true, "ERROR": true,
		}
		if !validLevels[*update.Level] {
			RespondError(w, http.StatusBadRequest, "invalid log level: "+*update.Level)
			return
		}
	}

	// Validate maxSize if provided
	if update.MaxSize != nil && *update.MaxSize < 1 {
		RespondError(w, http.StatusBadRequest, "maxSize must be at least 1 MB")
		return
	}

	// Validate maxBackups if provided
	if update.MaxBackups != nil && *update.MaxBackups < 0 {
		RespondError(w, http.StatusBadRequest, "maxBackups cannot be negative")
		return
	}

	settings, err := h.appConfig.UpdateLogSettings(update)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, settings)
}
