// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

// Manager owns the prometheus registry and the trust-engine counters. All
// record methods are nil-safe so callers can run without metrics wired.
type Manager struct {
	registry *prometheus.Registry

	statusChecks   *prometheus.CounterVec
	trustedTime    *prometheus.CounterVec
	authorityCalls *prometheus.CounterVec
}

func NewManager() *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	statusChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dilag_license_status_checks_total",
		Help: "License status resolutions by resulting status.",
	}, []string{"status"})

	trustedTime := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dilag_trusted_time_fetches_total",
		Help: "Trusted time fetch attempts by outcome.",
	}, []string{"outcome"})

	authorityCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dilag_license_authority_calls_total",
		Help: "Calls to the license authority by operation and outcome.",
	}, []string{"operation", "outcome"})

	registry.MustRegister(statusChecks, trustedTime, authorityCalls)

	log.Debug().Msg("Metrics manager initialized")

	return &Manager{
		registry:       registry,
		statusChecks:   statusChecks,
		trustedTime:    trustedTime,
		authorityCalls: authorityCalls,
	}
}

func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) RecordStatusCheck(status string) {
	if m == nil {
		return
	}
	m.statusChecks.WithLabelValues(status).Inc()
}

func (m *Manager) RecordTrustedTimeFetch(outcome string) {
	if m == nil {
		return
	}
	m.trustedTime.WithLabelValues(outcome).Inc()
}

func (m *Manager) RecordAuthorityCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.authorityCalls.WithLabelValues(operation, outcome).Inc()
}
