// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package licensing

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const recordFileName = "license.json"

// Store persists the license record as a single JSON document. It assumes at
// most one writer at a time within the process; the Service serializes its
// load-mutate-save cycles around it.
type Store struct {
	path string
}

// NewStore creates a store rooted in the given data directory.
func NewStore(dataDir string) *Store {
	return &Store{path: filepath.Join(dataDir, recordFileName)}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted record. A missing or unparsable file yields a zero
// record: corruption downgrades to "no license" rather than blocking startup.
func (s *Store) Load() Record {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", s.path).Msg("Failed to read license file, treating as empty")
		}
		return Record{}
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("License file unparsable, treating as empty")
		return Record{}
	}

	return record
}

// Save writes the record with a full-file overwrite, creating parent
// directories as needed.
func (s *Store) Save(record Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create data directory")
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode license record")
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write license file")
	}

	return nil
}

// Reset deletes the backing file, returning the system to the "no record"
// state. It is idempotent.
func (s *Store) Reset() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove license file")
	}
	return nil
}
