// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package polar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNoOrganizationID = errors.New("organization ID not configured")
	ErrBadRequestData   = errors.New("bad request data")

	// Authority rejections. Each maps to a specific user-facing reason and is
	// never eligible for offline grace.
	ErrMalformedKey     = errors.New("invalid license key format, please check your license key")
	ErrAuthFailed       = errors.New("license key authentication failed")
	ErrKeyExpired       = errors.New("license key is expired or has reached its device limit")
	ErrKeyNotFound      = errors.New("license key not found")
	ErrAlreadyActivated = errors.New("license key already activated on maximum devices")

	// ErrServerUnavailable covers HTTP 5xx and transport failures. It is the
	// only error kind the trust engine applies grace-period leniency to.
	ErrServerUnavailable = errors.New("license server temporarily unavailable, please try again")

	ErrCouldNotUnmarshalData = errors.New("could not unmarshal data")
)

const (
	polarAPIBaseURL        = "https://api.polar.sh"
	polarSandboxAPIBaseURL = "https://sandbox-api.polar.sh"
	validateEndpoint       = "/v1/customer-portal/license-keys/validate"
	activateEndpoint       = "/v1/customer-portal/license-keys/activate"

	requestTimeout = 10 * time.Second

	statusGranted = "granted"
)

// ValidationResponse represents the response from the validate endpoint
type ValidationResponse struct {
	Status string `json:"status"`
}

func (v *ValidationResponse) ValidLicense() bool {
	return v.Status == statusGranted
}

// ActivationResponse represents the response from the activate endpoint
type ActivationResponse struct {
	ID         string `json:"id"`
	LicenseKey struct {
		Status string `json:"status"`
	} `json:"license_key"`
}

// Client wraps the Polar customer-portal API for license management
type Client struct {
	baseURL        string
	environment    string
	organizationID string
	userAgent      string

	httpClient *http.Client
}

type OptFunc func(*Client)

// WithOrganizationID sets the organization ID to use for requests.
func WithOrganizationID(organizationID string) OptFunc {
	return func(c *Client) {
		c.organizationID = organizationID
	}
}

// WithEnvironment sets the environment to use for requests.
// Valid values are "production" and "sandbox".
func WithEnvironment(env string) OptFunc {
	return func(c *Client) {
		switch env {
		case "production":
			c.baseURL = polarAPIBaseURL
			c.environment = env
		case "sandbox":
			c.baseURL = polarSandboxAPIBaseURL
			c.environment = env
		}
	}
}

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(baseURL string) OptFunc {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithUserAgent(userAgent string) OptFunc {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithHTTPClient sets a custom HTTP client to use for requests
func WithHTTPClient(httpClient *http.Client) OptFunc {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Polar API client with the default HTTP client
func NewClient(opts ...OptFunc) *Client {
	c := &Client{
		baseURL:        polarAPIBaseURL,
		environment:    "production",
		organizationID: "",
		userAgent:      "polar-go",

		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type ActivateRequest struct {
	// License key
	Key string `json:"key"`

	// Set a label to associate with this specific activation. The trust
	// engine uses the device identifier here.
	Label string `json:"label"`

	// Organization ID
	OrganizationID string `json:"organization_id"`
}

func (r *ActivateRequest) Validate() []error {
	var err []error
	if r.Key == "" {
		err = append(err, errors.New("key is required"))
	}
	if r.Label == "" {
		err = append(err, errors.New("label is required"))
	}
	if r.OrganizationID == "" {
		err = append(err, ErrNoOrganizationID)
	}

	return err
}

// Activate activates a license key against the Polar API. The returned
// activation ID is kept for audit and support; there is no remote
// deactivation call.
func (c *Client) Activate(ctx context.Context, activateReq ActivateRequest) (*ActivationResponse, error) {
	if activateReq.OrganizationID == "" {
		activateReq.OrganizationID = c.organizationID
	}

	if err := activateReq.Validate(); len(err) > 0 {
		return nil, errors.Wrap(ErrBadRequestData, fmt.Sprintf("invalid request: %v", err))
	}

	body, err := c.post(ctx, activateEndpoint, activateReq)
	if err != nil {
		return nil, err
	}

	var response ActivationResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, ErrCouldNotUnmarshalData
	}

	if response.LicenseKey.Status != statusGranted {
		return nil, errors.Wrapf(ErrAuthFailed, "activation rejected: %s", response.LicenseKey.Status)
	}

	return &response, nil
}

type ValidateRequest struct {
	Key            string `json:"key"`
	OrganizationID string `json:"organization_id"`
}

func (r *ValidateRequest) Validate() []error {
	var err []error
	if r.Key == "" {
		err = append(err, errors.New("key is required"))
	}
	if r.OrganizationID == "" {
		err = append(err, ErrNoOrganizationID)
	}

	return err
}

// Validate checks a license key against the Polar API. A response with a
// non-granted status is returned to the caller as-is; deciding what an
// explicit rejection means is the trust engine's job.
func (c *Client) Validate(ctx context.Context, validateReq ValidateRequest) (*ValidationResponse, error) {
	if validateReq.OrganizationID == "" {
		validateReq.OrganizationID = c.organizationID
	}

	if err := validateReq.Validate(); len(err) > 0 {
		return nil, errors.Wrap(ErrBadRequestData, fmt.Sprintf("invalid request: %v", err))
	}

	body, err := c.post(ctx, validateEndpoint, validateReq)
	if err != nil {
		return nil, err
	}

	var response ValidationResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, ErrCouldNotUnmarshalData
	}

	return &response, nil
}

// post sends a JSON request and maps non-2xx responses onto the error
// taxonomy: specific sentinels for 4xx rejections, ErrServerUnavailable for
// 5xx and transport failures.
func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, ErrBadRequestData
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrServerUnavailable, "request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusCreated:
		return body, nil

	case resp.StatusCode == http.StatusBadRequest:
		return nil, ErrMalformedKey

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAuthFailed

	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrKeyExpired

	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrKeyNotFound

	case resp.StatusCode == http.StatusConflict:
		return nil, ErrAlreadyActivated

	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(ErrServerUnavailable, "status code: %d", resp.StatusCode)

	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}

// Helper functions

// MaskLicenseKey masks a license key for logging (shows first 8 chars + ***)
func MaskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}

// IsClientConfigured checks if the Polar client is properly configured
func (c *Client) IsClientConfigured() bool {
	return c.organizationID != ""
}
