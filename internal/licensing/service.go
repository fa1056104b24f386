// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dilag-app/dilag/internal/metrics"
	"github.com/dilag-app/dilag/internal/polar"
)

const (
	// TrialDays is the length of the free trial.
	TrialDays = 7
	// GracePeriod is how long an activated license runs offline before the
	// caller should attempt background re-validation.
	GracePeriod = 3 * 24 * time.Hour
	// ExtendedGrace is the hard offline limit; beyond it the license requires
	// a successful re-validation before it counts as activated again.
	ExtendedGrace = 7 * 24 * time.Hour

	secondsPerDay = 86400

	defaultPurchaseURL = "https://buy.polar.sh/polar_cl_6SB0k022Or8r5hVCfL4TSrsrWRibVOeuV0u9u2uIOmd"
)

var (
	ErrTrialAlreadyStarted = errors.New("trial already started")
	ErrNoLicenseKey        = errors.New("no license to validate")
	// ErrLicenseInvalid means the authority explicitly refused the key. No
	// grace period applies to revocations.
	ErrLicenseInvalid = errors.New("license is no longer valid")
)

// Service is the trial/activation trust engine. It owns the load-mutate-save
// cycle on the persisted record; every operation is a single critical
// section so a status poll can never interleave with a half-written
// activation.
type Service struct {
	mu sync.Mutex

	store       *Store
	client      *polar.Client
	timeSource  *TimeSource
	metrics     *metrics.Manager
	purchaseURL string

	deviceID func() (string, error)
	now      func() time.Time
}

type ServiceOptFunc func(*Service)

// WithPurchaseURL overrides the checkout URL handed to the UI.
func WithPurchaseURL(url string) ServiceOptFunc {
	return func(s *Service) {
		if url != "" {
			s.purchaseURL = url
		}
	}
}

// WithMetrics wires the prometheus counters.
func WithMetrics(m *metrics.Manager) ServiceOptFunc {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDeviceIDFunc overrides device identity resolution, mainly for tests.
func WithDeviceIDFunc(fn func() (string, error)) ServiceOptFunc {
	return func(s *Service) {
		s.deviceID = fn
	}
}

// WithNowFunc overrides the local clock, mainly for tests.
func WithNowFunc(fn func() time.Time) ServiceOptFunc {
	return func(s *Service) {
		s.now = fn
	}
}

// NewService creates the trust engine around its collaborators.
func NewService(store *Store, client *polar.Client, timeSource *TimeSource, opts ...ServiceOptFunc) *Service {
	s := &Service{
		store:       store,
		client:      client,
		timeSource:  timeSource,
		purchaseURL: defaultPurchaseURL,
		deviceID:    DeviceID,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ResolveStatus computes the current license status from the record, the
// trusted time (nil when no fetch succeeded) and the local clock. It is a
// pure function; all transition and grace-period logic lives here.
func ResolveStatus(record Record, trustedTime *int64, localTime int64) Status {
	if record.IsActivated && record.LicenseKey != nil {
		// Never validated, e.g. a migrated older record. Treated leniently.
		if record.LastValidatedAt == nil {
			return Status{Type: StatusActivated}
		}

		elapsed := localTime - *record.LastValidatedAt
		if elapsed < 0 {
			elapsed = 0
		}

		// Within GracePeriod the license is simply valid; between
		// GracePeriod and ExtendedGrace it is still usable but the caller
		// should re-validate in the background (see NeedsRevalidation).
		if time.Duration(elapsed)*time.Second < ExtendedGrace {
			return Status{Type: StatusActivated}
		}

		return Status{Type: StatusRequiresValidation}
	}

	if record.TrialStartUTC != nil {
		// Clock-rollback defense: when no trusted time is available, the
		// highest trusted timestamp ever observed is a floor under the
		// local clock. It is only ever a floor; a fresh trusted reading
		// always wins.
		now := localTime
		if trustedTime != nil {
			now = *trustedTime
		} else if record.LastServerTimeCheck != nil && *record.LastServerTimeCheck > now {
			now = *record.LastServerTimeCheck
		}

		daysElapsed := (now - *record.TrialStartUTC) / secondsPerDay
		if daysElapsed >= TrialDays {
			return Status{Type: StatusTrialExpired}
		}

		return TrialStatus(int(TrialDays - daysElapsed))
	}

	return Status{Type: StatusNoLicense}
}

// NeedsRevalidation reports whether an activated record has left the initial
// grace period and a background re-validation attempt is due.
func NeedsRevalidation(record Record, localTime int64) bool {
	if !record.IsActivated || record.LastValidatedAt == nil {
		return false
	}
	elapsed := localTime - *record.LastValidatedAt
	if elapsed < 0 {
		elapsed = 0
	}
	return time.Duration(elapsed)*time.Second >= GracePeriod
}

// Status resolves the current license status. On the trial path it consults
// the time oracle; a fresh trusted reading is persisted into the high-water
// mark best-effort, and a failed fetch silently falls back to
// max(local clock, high-water mark). That asymmetry with StartTrial is
// deliberate: starting a trial is a one-time trust-sensitive event, a status
// poll is not.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.store.Load()

	var trusted *int64
	if !record.IsActivated && record.TrialStartUTC != nil {
		if t, err := s.timeSource.FetchTrustedTime(ctx); err == nil {
			s.metrics.RecordTrustedTimeFetch("ok")
			trusted = &t
			if record.ObserveTrustedTime(t) {
				// Best effort, a failed save must not break the status poll.
				if saveErr := s.store.Save(record); saveErr != nil {
					log.Warn().Err(saveErr).Msg("Failed to persist trusted time high-water mark")
				}
			}
		} else {
			s.metrics.RecordTrustedTimeFetch("failed")
			log.Debug().Err(err).Msg("Trusted time unavailable, using high-water mark fallback")
		}
	}

	status := ResolveStatus(record, trusted, s.now().Unix())
	s.metrics.RecordStatusCheck(string(status.Type))
	return status
}

// StartTrial begins the one and only trial. It is trust-anchored: a trusted
// time fetch must succeed, and a second call fails while trial_start_utc is
// already set.
func (s *Service) StartTrial(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trusted, err := s.timeSource.FetchTrustedTime(ctx)
	if err != nil {
		s.metrics.RecordTrustedTimeFetch("failed")
		return Status{}, err
	}
	s.metrics.RecordTrustedTimeFetch("ok")

	record := s.store.Load()
	if record.TrialStartUTC != nil {
		return Status{}, ErrTrialAlreadyStarted
	}

	record.TrialStartUTC = &trusted
	record.ObserveTrustedTime(trusted)

	if err := s.store.Save(record); err != nil {
		return Status{}, err
	}

	log.Info().Int64("trialStart", trusted).Msg("Trial started")

	return TrialStatus(TrialDays), nil
}

// Activate binds the key to this device via the authority. Activation always
// requires a live round trip; rejections are returned as typed errors with
// no state change.
func (s *Service) Activate(ctx context.Context, key string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deviceID, err := s.deviceID()
	if err != nil {
		return Status{}, err
	}

	resp, err := s.client.Activate(ctx, polar.ActivateRequest{Key: key, Label: deviceID})
	if err != nil {
		s.metrics.RecordAuthorityCall("activate", "error")
		log.Error().Err(err).Str("licenseKey", polar.MaskLicenseKey(key)).Msg("License activation failed")
		return Status{}, err
	}
	s.metrics.RecordAuthorityCall("activate", "ok")

	now := s.now().Unix()
	activatedAt := now
	validatedAt := now

	record := s.store.Load()
	record.LicenseKey = &key
	record.ActivationID = &resp.ID
	record.DeviceID = &deviceID
	record.IsActivated = true
	record.ActivatedAt = &activatedAt
	record.LastValidatedAt = &validatedAt

	if err := s.store.Save(record); err != nil {
		return Status{}, err
	}

	log.Info().
		Str("licenseKey", polar.MaskLicenseKey(key)).
		Str("activationId", resp.ID).
		Msg("License activated")

	return Status{Type: StatusActivated}, nil
}

// Validate re-checks the stored key against the authority. An explicit
// rejection is a hard error; a transport failure within ExtendedGrace of the
// last successful validation is forgiven.
func (s *Service) Validate(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.store.Load()
	if record.LicenseKey == nil {
		return Status{}, ErrNoLicenseKey
	}

	resp, err := s.client.Validate(ctx, polar.ValidateRequest{Key: *record.LicenseKey})

	switch {
	case err == nil && resp.ValidLicense():
		s.metrics.RecordAuthorityCall("validate", "ok")

		now := s.now().Unix()
		record.LastValidatedAt = &now
		if err := s.store.Save(record); err != nil {
			return Status{}, err
		}

		log.Debug().Str("licenseKey", polar.MaskLicenseKey(*record.LicenseKey)).Msg("License validated")
		return Status{Type: StatusActivated}, nil

	case err == nil:
		// The authority answered and said no. Revoked keys get no grace.
		s.metrics.RecordAuthorityCall("validate", "rejected")
		return Status{}, errors.Wrapf(ErrLicenseInvalid, "validation status: %s", resp.Status)

	case errors.Is(err, polar.ErrServerUnavailable):
		s.metrics.RecordAuthorityCall("validate", "unavailable")

		if record.LastValidatedAt != nil {
			elapsed := s.now().Unix() - *record.LastValidatedAt
			if elapsed < 0 {
				elapsed = 0
			}
			if time.Duration(elapsed)*time.Second < ExtendedGrace {
				log.Warn().
					Err(err).
					Str("licenseKey", polar.MaskLicenseKey(*record.LicenseKey)).
					Msg("License server unreachable, within offline grace window")
				return Status{Type: StatusActivated}, nil
			}
		}

		return Status{}, err

	default:
		s.metrics.RecordAuthorityCall("validate", "rejected")
		return Status{}, err
	}
}

// Reset deletes the persisted record entirely. Idempotent; used for support
// and testing.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Reset()
}

// PurchaseURL returns the checkout URL for buying a license.
func (s *Service) PurchaseURL() string {
	return s.purchaseURL
}
