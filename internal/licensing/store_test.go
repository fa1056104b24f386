// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(t.TempDir())

	record := store.Load()

	assert.Nil(t, record.LicenseKey)
	assert.Nil(t, record.ActivationID)
	assert.Nil(t, record.DeviceID)
	assert.Nil(t, record.TrialStartUTC)
	assert.Nil(t, record.LastValidatedAt)
	assert.Nil(t, record.ActivatedAt)
	assert.False(t, record.IsActivated)
	assert.Nil(t, record.LastServerTimeCheck)
}

func TestStoreLoadCorruptFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o644))

	record := store.Load()

	assert.False(t, record.IsActivated)
	assert.Nil(t, record.LicenseKey)
}

func TestStoreSaveCreatesParentDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	store := NewStore(dir)

	require.NoError(t, store.Save(Record{IsActivated: true, LicenseKey: strPtr("key-123456789")}))
	require.FileExists(t, store.Path())
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	original := Record{
		LicenseKey:          strPtr("test-key"),
		ActivationID:        strPtr("act-123"),
		DeviceID:            strPtr("device-456"),
		TrialStartUTC:       int64Ptr(1700000000),
		LastValidatedAt:     int64Ptr(1700000100),
		ActivatedAt:         int64Ptr(1700000050),
		IsActivated:         true,
		LastServerTimeCheck: int64Ptr(1700000200),
	}

	require.NoError(t, store.Save(original))
	loaded := store.Load()
	assert.Equal(t, original, loaded)

	// Saving an unmodified just-loaded record must reproduce the same content.
	require.NoError(t, store.Save(loaded))
	assert.Equal(t, original, store.Load())
}

func TestStoreResetIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save(Record{IsActivated: true}))
	require.NoError(t, store.Reset())
	require.NoError(t, store.Reset())

	record := store.Load()
	assert.False(t, record.IsActivated)
	assert.Nil(t, record.LicenseKey)
	assert.Nil(t, record.TrialStartUTC)
}

func TestObserveTrustedTimeIsMonotonic(t *testing.T) {
	var record Record

	assert.True(t, record.ObserveTrustedTime(1700000000))
	require.NotNil(t, record.LastServerTimeCheck)
	assert.Equal(t, int64(1700000000), *record.LastServerTimeCheck)

	// An older reading never overwrites a newer one.
	assert.False(t, record.ObserveTrustedTime(1690000000))
	assert.Equal(t, int64(1700000000), *record.LastServerTimeCheck)

	// Equal readings do not dirty the record.
	assert.False(t, record.ObserveTrustedTime(1700000000))

	assert.True(t, record.ObserveTrustedTime(1700000001))
	assert.Equal(t, int64(1700000001), *record.LastServerTimeCheck)
}
