// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dilag-app/dilag/internal/agent"
)

// AgentHandler controls the OpenCode agent server and the preview dev server
type AgentHandler struct {
	supervisor *agent.Supervisor
	devServer  *agent.DevServer
}

func NewAgentHandler(supervisor *agent.Supervisor, devServer *agent.DevServer) *AgentHandler {
	return &AgentHandler{
		supervisor: supervisor,
		devServer:  devServer,
	}
}

// AgentStatusResponse reports the agent server's tracked state
type AgentStatusResponse struct {
	Running bool `json:"running"`
	Port    int  `json:"port,omitempty"`
}

// AgentPortResponse carries the port a started agent server listens on
type AgentPortResponse struct {
	Port int `json:"port"`
}

// InstallationResponse reports the installation state of external tooling
type InstallationResponse struct {
	OpenCode agent.CheckResult `json:"opencode"`
	Bun      agent.CheckResult `json:"bun"`
}

func (h *AgentHandler) Routes(r chi.Router) {
	r.Get("/status", h.GetStatus)
	r.Get("/installation", h.CheckInstallation)
	r.Post("/start", h.Start)
	r.Post("/stop", h.Stop)
	r.Post("/restart", h.Restart)
}

func (h *AgentHandler) DevServerRoutes(r chi.Router) {
	r.Get("/status", h.DevServerStatus)
	r.Post("/start", h.StartDevServer)
	r.Post("/stop", h.StopDevServer)
}

// GetStatus reports whether the agent server is running and on which port
func (h *AgentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, AgentStatusResponse{
		Running: h.supervisor.Running(),
		Port:    h.supervisor.Port(),
	})
}

// CheckInstallation probes for the opencode and bun binaries
func (h *AgentHandler) CheckInstallation(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, InstallationResponse{
		OpenCode: h.supervisor.CheckInstallation(r.Context()),
		Bun:      agent.CheckBun(r.Context()),
	})
}

// Start launches the agent server if it is not already running
func (h *AgentHandler) Start(w http.ResponseWriter, r *http.Request) {
	port, err := h.supervisor.Start(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to start agent server")
		RespondError(w, agentErrorStatusCode(err), err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, AgentPortResponse{Port: port})
}

// Stop terminates the agent server
func (h *AgentHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.supervisor.Stop()
	RespondJSON(w, http.StatusNoContent, nil)
}

// Restart stops the agent server and starts a fresh one on a new port
func (h *AgentHandler) Restart(w http.ResponseWriter, r *http.Request) {
	port, err := h.supervisor.Restart(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to restart agent server")
		RespondError(w, agentErrorStatusCode(err), err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, AgentPortResponse{Port: port})
}

// StartDevServerRequest names the session whose project should be served
type StartDevServerRequest struct {
	SessionCwd string `json:"session_cwd"`
}

// DevServerStatus reports the preview server's tracked state
func (h *AgentHandler) DevServerStatus(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.devServer.Status())
}

// StartDevServer launches the preview dev server for a session's project
func (h *AgentHandler) StartDevServer(w http.ResponseWriter, r *http.Request) {
	var req StartDevServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SessionCwd == "" {
		RespondError(w, http.StatusBadRequest, "session_cwd is required")
		return
	}

	port, err := h.devServer.Start(r.Context(), req.SessionCwd)
	if err != nil {
		log.Error().Err(err).Str("cwd", req.SessionCwd).Msg("Failed to start dev server")
		RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, AgentPortResponse{Port: port})
}

// StopDevServer terminates the preview dev server
func (h *AgentHandler) StopDevServer(w http.ResponseWriter, r *http.Request) {
	h.devServer.Stop()
	RespondJSON(w, http.StatusNoContent, nil)
}

func agentErrorStatusCode(err error) int {
	if errors.Is(err, agent.ErrAgentNotInstalled) {
		return http.StatusFailedDependency
	}
	return http.StatusInternalServerError
}
