// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sessions persists design-session metadata and manages the
// per-session working directories the agent and dev server operate in.
package sessions

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	storeFileName = "sessions.json"
	sessionsDir   = "sessions"
)

var ErrSessionNotFound = errors.New("session not found")

// Meta is the locally stored metadata for one design session.
type Meta struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	Cwd       string `json:"cwd"`
}

type storeFile struct {
	Sessions []Meta `json:"sessions"`
}

// Store is the JSON-backed session list plus the session directory tree. Like
// the license store it tolerates a corrupt file by starting over empty.
type Store struct {
	mu      sync.Mutex
	dataDir string
}

func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// Dir returns the directory holding all session folders.
func (s *Store) Dir() string {
	return filepath.Join(s.dataDir, sessionsDir)
}

// Cwd returns the working directory for a session id.
func (s *Store) Cwd(id string) string {
	return filepath.Join(s.Dir(), id)
}

func (s *Store) filePath() string {
	return filepath.Join(s.dataDir, storeFileName)
}

func (s *Store) load() storeFile {
	data, err := os.ReadFile(s.filePath())
	if err != nil {
		return storeFile{}
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Warn().Err(err).Str("path", s.filePath()).Msg("Sessions file unparsable, starting empty")
		return storeFile{}
	}

	return file
}

func (s *Store) save(file storeFile) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create data directory")
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode sessions")
	}

	return errors.Wrap(os.WriteFile(s.filePath(), data, 0o644), "failed to write sessions file")
}

// List returns all session metadata.
func (s *Store) List() []Meta {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := s.load()
	if file.Sessions == nil {
		return []Meta{}
	}
	return file.Sessions
}

// Save upserts a session's metadata. A missing id or created_at is filled in.
func (s *Store) Save(meta Meta) (Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.CreatedAt == "" {
		meta.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if meta.Cwd == "" {
		meta.Cwd = s.Cwd(meta.ID)
	}

	file := s.load()
	replaced := false
	for i := range file.Sessions {
		if file.Sessions[i].ID == meta.ID {
			file.Sessions[i] = meta
			replaced = true
			break
		}
	}
	if !replaced {
		file.Sessions = append(file.Sessions, meta)
	}

	return meta, s.save(file)
}

// Get returns a session's metadata by id.
func (s *Store) Get(id string) (Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, meta := range s.load().Sessions {
		if meta.ID == id {
			return meta, nil
		}
	}
	return Meta{}, ErrSessionNotFound
}

// Delete removes a session's metadata and its working directory. Deleting an
// unknown id only cleans up whatever is on disk.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := s.load()
	kept := file.Sessions[:0]
	for _, meta := range file.Sessions {
		if meta.ID != id {
			kept = append(kept, meta)
		}
	}
	file.Sessions = kept

	if err := s.save(file); err != nil {
		return err
	}

	sessionDir := s.Cwd(id)
	if err := os.RemoveAll(sessionDir); err != nil {
		return errors.Wrapf(err, "failed to remove session directory %s", sessionDir)
	}

	return nil
}

// CreateDir ensures the working directory for a session exists and returns
// its path.
func (s *Store) CreateDir(id string) (string, error) {
	dir := s.Cwd(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create session directory")
	}
	return dir, nil
}

// InitializeProject copies the web-project template tree into a session's
// working directory.
func (s *Store) InitializeProject(templateDir, sessionCwd string) error {
	info, err := os.Stat(templateDir)
	if err != nil {
		return errors.Wrapf(err, "web project template not found at %s", templateDir)
	}
	if !info.IsDir() {
		return errors.Errorf("web project template %s is not a directory", templateDir)
	}

	return copyDirRecursive(templateDir, sessionCwd)
}

func copyDirRecursive(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return errors.Wrap(err, "failed to create destination directory")
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrap(err, "failed to read source directory")
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyDirRecursive(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "failed to copy %s", src)
	}

	return nil
}
