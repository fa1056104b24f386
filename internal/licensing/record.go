// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

// Record is the single durable piece of licensing state, persisted as one
// JSON document in the app data directory. Status is never stored; it is
// always derived from the record and the best available time.
type Record struct {
	// LicenseKey is the opaque key entered by the user.
	LicenseKey *string `json:"license_key,omitempty"`
	// ActivationID is the authority-assigned activation handle, kept for
	// audit and support purposes only.
	ActivationID *string `json:"activation_id,omitempty"`
	// DeviceID is the machine identifier the activation was bound to.
	DeviceID *string `json:"device_id,omitempty"`
	// TrialStartUTC is set exactly once, from trusted time.
	TrialStartUTC *int64 `json:"trial_start_utc,omitempty"`
	// LastValidatedAt is the last successful remote re-validation (local clock).
	LastValidatedAt *int64 `json:"last_validated_at,omitempty"`
	// ActivatedAt is when activation succeeded (local clock).
	ActivatedAt *int64 `json:"activated_at,omitempty"`
	// IsActivated is true only after a successful activation call.
	IsActivated bool `json:"is_activated"`
	// LastServerTimeCheck is the highest trusted timestamp ever observed.
	// It never decreases across writes.
	LastServerTimeCheck *int64 `json:"last_server_time_check,omitempty"`
}

// ObserveTrustedTime raises the trusted-time high-water mark. It only ever
// moves forward; an older reading never overwrites a newer one. Returns true
// when the record changed and should be persisted.
func (r *Record) ObserveTrustedTime(ts int64) bool {
	if r.LastServerTimeCheck != nil && *r.LastServerTimeCheck >= ts {
		return false
	}
	r.LastServerTimeCheck = &ts
	return true
}

// StatusType discriminates the license status union.
type StatusType string

const (
	StatusNoLicense          StatusType = "NoLicense"
	StatusTrial              StatusType = "Trial"
	StatusActivated          StatusType = "Activated"
	StatusTrialExpired       StatusType = "TrialExpired"
	StatusRequiresValidation StatusType = "RequiresValidation"
	StatusError              StatusType = "Error"
)

// Status is the resolved entitlement state handed to the UI. The JSON shape
// uses a "type" discriminator with payload fields only where they apply.
type Status struct {
	Type          StatusType `json:"type"`
	DaysRemaining int        `json:"days_remaining,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// TrialStatus builds a Trial status with the given days remaining.
func TrialStatus(daysRemaining int) Status {
	return Status{Type: StatusTrial, DaysRemaining: daysRemaining}
}

// ErrorStatus wraps an error message into a Status for RPC responses.
func ErrorStatus(message string) Status {
	return Status{Type: StatusError, Message: message}
}
