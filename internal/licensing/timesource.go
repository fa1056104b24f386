// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrTrustedTimeUnavailable is returned when no time source could be reached.
// The oracle never fabricates a time; callers decide how to degrade.
var ErrTrustedTimeUnavailable = errors.New("could not fetch server time, check your internet connection")

const (
	primaryTimeURL     = "https://worldtimeapi.org/api/timezone/Etc/UTC"
	trustedTimeTimeout = 5 * time.Second
)

// Fallback hosts are well-known and highly available; any reachable web
// server with a sane Date header will do.
var defaultFallbackURLs = []string{
	"https://cloudflare.com/cdn-cgi/trace",
	"https://www.google.com",
}

// TimeSource acquires a timestamp that is not derived from the local system
// clock, so that simply changing the clock does not move it.
type TimeSource struct {
	primaryURL   string
	fallbackURLs []string

	httpClient *http.Client
}

type TimeSourceOptFunc func(*TimeSource)

// WithPrimaryURL overrides the primary JSON time service endpoint.
func WithPrimaryURL(url string) TimeSourceOptFunc {
	return func(ts *TimeSource) {
		ts.primaryURL = url
	}
}

// WithFallbackURLs overrides the HTTP-date fallback hosts.
func WithFallbackURLs(urls ...string) TimeSourceOptFunc {
	return func(ts *TimeSource) {
		ts.fallbackURLs = urls
	}
}

// WithTimeHTTPClient sets a custom HTTP client to use for requests.
func WithTimeHTTPClient(httpClient *http.Client) TimeSourceOptFunc {
	return func(ts *TimeSource) {
		ts.httpClient = httpClient
	}
}

// NewTimeSource creates a time source with the default endpoints.
func NewTimeSource(opts ...TimeSourceOptFunc) *TimeSource {
	ts := &TimeSource{
		primaryURL:   primaryTimeURL,
		fallbackURLs: defaultFallbackURLs,

		httpClient: &http.Client{
			Timeout: trustedTimeTimeout,
		},
	}

	for _, opt := range opts {
		opt(ts)
	}

	return ts
}

type worldTimeResponse struct {
	UnixTime int64 `json:"unixtime"`
}

// FetchTrustedTime returns a unix timestamp from the primary time service,
// falling back to HTTP Date headers from the fallback hosts. It returns
// ErrTrustedTimeUnavailable when every source fails.
func (ts *TimeSource) FetchTrustedTime(ctx context.Context) (int64, error) {
	if t, err := ts.fetchPrimary(ctx); err == nil {
		return t, nil
	} else {
		log.Debug().Err(err).Str("url", ts.primaryURL).Msg("Primary time service unavailable, trying HTTP date fallbacks")
	}

	for _, url := range ts.fallbackURLs {
		if t, err := ts.fetchDateHeader(ctx, url); err == nil {
			return t, nil
		} else {
			log.Debug().Err(err).Str("url", url).Msg("HTTP date fallback failed")
		}
	}

	return 0, ErrTrustedTimeUnavailable
}

func (ts *TimeSource) fetchPrimary(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.primaryURL, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var timeData worldTimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&timeData); err != nil {
		return 0, errors.Wrap(err, "failed to decode time response")
	}

	return timeData.UnixTime, nil
}

func (ts *TimeSource) fetchDateHeader(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	dateHeader := resp.Header.Get("Date")
	if dateHeader == "" {
		return 0, errors.New("no Date header in response")
	}

	parsed, err := http.ParseTime(dateHeader)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse Date header %q", dateHeader)
	}

	return parsed.Unix(), nil
}
