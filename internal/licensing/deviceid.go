// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"github.com/keygen-sh/machineid"
	"github.com/pkg/errors"
)

const machineIDAppID = "dilag"

// DeviceID resolves the stable per-machine identifier that activations are
// bound to. The raw machine ID is hashed with the app ID so the identifier is
// app-scoped and cannot be correlated across products.
//
// Failure blocks activation (a license cannot be bound to an unidentifiable
// device) but never blocks trial usage.
func DeviceID() (string, error) {
	id, err := machineid.ProtectedID(machineIDAppID)
	if err != nil {
		return "", errors.Wrap(err, "failed to get machine ID")
	}
	return id, nil
}
