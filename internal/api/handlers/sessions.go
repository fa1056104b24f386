// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dilag-app/dilag/internal/designs"
	"github.com/dilag-app/dilag/internal/sessions"
)

// SessionsHandler handles design-session CRUD and the designs inside them
type SessionsHandler struct {
	store       *sessions.Store
	templateDir string
}

func NewSessionsHandler(store *sessions.Store, templateDir string) *SessionsHandler {
	return &SessionsHandler{
		store:       store,
		templateDir: templateDir,
	}
}

func (h *SessionsHandler) Routes(r chi.Router) {
	r.Get("/", h.ListSessions)
	r.Post("/", h.SaveSession)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Delete("/", h.DeleteSession)
		r.Get("/designs", h.ListDesigns)
		r.Delete("/designs/{filename}", h.DeleteDesign)
		r.Post("/designs/copy", h.CopyDesigns)
	})
}

// ListSessions returns all stored session metadata
func (h *SessionsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.store.List())
}

// SaveSession creates or updates a session. New sessions get a working
// directory initialized from the web project template when one is configured.
func (h *SessionsHandler) SaveSession(w http.ResponseWriter, r *http.Request) {
	var meta sessions.Meta
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		log.Error().Err(err).Msg("Failed to decode session request")
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	isNew := meta.ID == ""

	saved, err := h.store.Save(meta)
	if err != nil {
		log.Error().Err(err).Msg("Failed to save session")
		RespondError(w, http.StatusInternalServerError, "Failed to save session")
		return
	}

	if isNew {
		cwd, err := h.store.CreateDir(saved.ID)
		if err != nil {
			log.Error().Err(err).Str("sessionID", saved.ID).Msg("Failed to create session directory")
			RespondError(w, http.StatusInternalServerError, "Failed to create session directory")
			return
		}

		if h.templateDir != "" {
			if err := h.store.InitializeProject(h.templateDir, cwd); err != nil {
				log.Error().Err(err).Str("sessionID", saved.ID).Msg("Failed to initialize session project")
				RespondError(w, http.StatusInternalServerError, "Failed to initialize session project")
				return
			}
		}

		log.Info().Str("sessionID", saved.ID).Str("name", saved.Name).Msg("Session created")
	}

	RespondJSON(w, http.StatusOK, saved)
}

// DeleteSession removes a session and its working directory
func (h *SessionsHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.store.Delete(sessionID); err != nil {
		log.Error().Err(err).Str("sessionID", sessionID).Msg("Failed to delete session")
		RespondError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	log.Info().Str("sessionID", sessionID).Msg("Session deleted")

	RespondJSON(w, http.StatusNoContent, nil)
}

// ListDesigns returns the HTML designs found in a session's working directory
func (h *SessionsHandler) ListDesigns(w http.ResponseWriter, r *http.Request) {
	meta, err := h.sessionFromRequest(w, r)
	if err != nil {
		return
	}

	RespondJSON(w, http.StatusOK, designs.LoadSessionDesigns(meta.Cwd))
}

// DeleteDesign removes one design file from a session
func (h *SessionsHandler) DeleteDesign(w http.ResponseWriter, r *http.Request) {
	meta, err := h.sessionFromRequest(w, r)
	if err != nil {
		return
	}

	filename := chi.URLParam(r, "filename")
	path, err := designs.ResolvePath(meta.Cwd, filename)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := designs.Delete(path); err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Failed to delete design")
		RespondError(w, http.StatusNotFound, "Design not found")
		return
	}

	RespondJSON(w, http.StatusNoContent, nil)
}

// CopyDesignsRequest names the session to copy designs into
type CopyDesignsRequest struct {
	DestinationID string `json:"destination_id"`
}

// CopyDesignsResponse reports how many designs were copied
type CopyDesignsResponse struct {
	Copied int `json:"copied"`
}

// CopyDesigns copies all designs from this session into another one
func (h *SessionsHandler) CopyDesigns(w http.ResponseWriter, r *http.Request) {
	source, err := h.sessionFromRequest(w, r)
	if err != nil {
		return
	}

	var req CopyDesignsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	dest, err := h.store.Get(req.DestinationID)
	if err != nil {
		RespondError(w, http.StatusNotFound, "Destination session not found")
		return
	}

	copied, err := designs.CopySessionDesigns(source.Cwd, dest.Cwd)
	if err != nil {
		log.Error().Err(err).Str("sourceID", source.ID).Str("destinationID", dest.ID).Msg("Failed to copy designs")
		RespondError(w, http.StatusInternalServerError, "Failed to copy designs")
		return
	}

	RespondJSON(w, http.StatusOK, CopyDesignsResponse{Copied: copied})
}

func (h *SessionsHandler) sessionFromRequest(w http.ResponseWriter, r *http.Request) (sessions.Meta, error) {
	sessionID := chi.URLParam(r, "sessionID")

	meta, err := h.store.Get(sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			RespondError(w, http.StatusNotFound, "Session not found")
		} else {
			RespondError(w, http.StatusInternalServerError, "Failed to load session")
		}
		return sessions.Meta{}, err
	}

	return meta, nil
}
