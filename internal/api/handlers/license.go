// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dilag-app/dilag/internal/licensing"
	"github.com/dilag-app/dilag/internal/polar"
)

// LicenseHandler handles license related HTTP requests
type LicenseHandler struct {
	licenseService *licensing.Service
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(licenseService *licensing.Service) *LicenseHandler {
	return &LicenseHandler{
		licenseService: licenseService,
	}
}

// ActivateLicenseRequest represents the request body for license activation
type ActivateLicenseRequest struct {
	LicenseKey string `json:"licenseKey"`
}

// PurchaseURLResponse carries the storefront URL for the UI's buy button
type PurchaseURLResponse struct {
	URL string `json:"url"`
}

func (h *LicenseHandler) Routes(r chi.Router) {
	r.Get("/status", h.GetStatus)
	r.Get("/purchase-url", h.GetPurchaseURL)
	r.Post("/trial", h.StartTrial)
	r.Post("/activate", h.ActivateLicense)
	r.Post("/validate", h.ValidateLicense)
	r.Delete("/", h.ResetLicense)
}

// GetStatus resolves and returns the current entitlement status. Resolution
// never fails; degraded conditions surface as an Error-typed status.
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.licenseService.Status(r.Context()))
}

// GetPurchaseURL returns the storefront URL
func (h *LicenseHandler) GetPurchaseURL(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, PurchaseURLResponse{URL: h.licenseService.PurchaseURL()})
}

// StartTrial begins the one-time trial period
func (h *LicenseHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	status, err := h.licenseService.StartTrial(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to start trial")
		RespondError(w, trialErrorStatusCode(err), err.Error())
		return
	}

	log.Info().Int("daysRemaining", status.DaysRemaining).Msg("Trial started")

	RespondJSON(w, http.StatusOK, status)
}

// ActivateLicense activates a license key for this device
func (h *LicenseHandler) ActivateLicense(w http.ResponseWriter, r *http.Request) {
	var req ActivateLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error().Err(err).Msg("Failed to decode activate license request")
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.LicenseKey == "" {
		RespondError(w, http.StatusBadRequest, "License key is required")
		return
	}

	status, err := h.licenseService.Activate(r.Context(), req.LicenseKey)
	if err != nil {
		log.Error().
			Err(err).
			Str("licenseKey", polar.MaskLicenseKey(req.LicenseKey)).
			Msg("Failed to activate license")
		RespondError(w, licenseErrorStatusCode(err), err.Error())
		return
	}

	log.Info().
		Str("licenseKey", polar.MaskLicenseKey(req.LicenseKey)).
		Msg("License activated successfully")

	RespondJSON(w, http.StatusOK, status)
}

// ValidateLicense re-validates the stored license key with the authority
func (h *LicenseHandler) ValidateLicense(w http.ResponseWriter, r *http.Request) {
	status, err := h.licenseService.Validate(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to validate license")
		RespondError(w, licenseErrorStatusCode(err), err.Error())
		return
	}

	log.Debug().Str("status", string(status.Type)).Msg("License validated")

	RespondJSON(w, http.StatusOK, status)
}

// ResetLicense wipes all local licensing state
func (h *LicenseHandler) ResetLicense(w http.ResponseWriter, r *http.Request) {
	if err := h.licenseService.Reset(); err != nil {
		log.Error().Err(err).Msg("Failed to reset license state")
		RespondError(w, http.StatusInternalServerError, "Failed to reset license state")
		return
	}

	log.Info().Msg("License state reset")

	RespondJSON(w, http.StatusNoContent, nil)
}

// trialErrorStatusCode maps trial errors to HTTP status codes.
func trialErrorStatusCode(err error) int {
	switch {
	case errors.Is(err, licensing.ErrTrialAlreadyStarted):
		return http.StatusConflict
	case errors.Is(err, licensing.ErrTrustedTimeUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// licenseErrorStatusCode maps activation/validation errors to HTTP status
// codes, mirroring the authority's own semantics where one exists.
func licenseErrorStatusCode(err error) int {
	switch {
	case errors.Is(err, polar.ErrMalformedKey), errors.Is(err, polar.ErrBadRequestData), errors.Is(err, licensing.ErrNoLicenseKey):
		return http.StatusBadRequest
	case errors.Is(err, polar.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, polar.ErrKeyExpired), errors.Is(err, licensing.ErrLicenseInvalid):
		return http.StatusForbidden
	case errors.Is(err, polar.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, polar.ErrAlreadyActivated):
		return http.StatusConflict
	case errors.Is(err, polar.ErrServerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
