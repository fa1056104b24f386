// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfigDirRespectsXDGConfigHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("APPDATA", "")

	dir := GetDefaultConfigDir()

	expected := filepath.Join(tmpDir, "dilag")
	assert.Equal(t, filepath.Clean(expected), filepath.Clean(dir))
}

func TestGetDefaultConfigDirDockerPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/config")
	t.Setenv("APPDATA", "")

	dir := GetDefaultConfigDir()

	assert.Equal(t, "/config", dir)
}

func TestGetDefaultConfigDirFallsBackToOsDefault(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", "")

	var expected string
	if runtime.GOOS == "windows" {
		t.Setenv("APPDATA", tmpDir)
		expected = filepath.Join(tmpDir, "dilag")
	} else {
		t.Setenv("APPDATA", "")
		t.Setenv("HOME", tmpDir)
		expected = filepath.Join(tmpDir, ".config", "dilag")
	}

	dir := GetDefaultConfigDir()

	assert.Equal(t, filepath.Clean(expected), filepath.Clean(dir))
}

func TestGenerateConfigCreatesFile(t *testing.T) {
	tmpDir := t.TempDir()

	path, err := GenerateConfig(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# config.toml - Auto-generated")
	assert.Contains(t, string(data), "[licensing]")
}

func TestGenerateConfigDoesNotOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = 9999\n"), 0o644))

	_, err := GenerateConfig(tmpDir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "port = 9999\n", string(data))
}

func TestNewLoadsDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := New(tmpDir, "test")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Config.Host)
	assert.Equal(t, 7575, cfg.Config.Port)
	assert.Equal(t, "INFO", cfg.Config.LogLevel)
	assert.Equal(t, "production", cfg.Config.Licensing.Environment)
	assert.NotEmpty(t, cfg.Config.DataDir)
	assert.FileExists(t, filepath.Join(tmpDir, "config.toml"))
}

func TestNewReadsExistingFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := "host = \"0.0.0.0\"\nport = 8888\nlogLevel = \"debug\"\n\n[licensing]\norganizationId = \"org_123\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0o644))

	cfg, err := New(tmpDir, "test")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Config.Host)
	assert.Equal(t, 8888, cfg.Config.Port)
	assert.Equal(t, "DEBUG", cfg.Config.LogLevel)
	assert.Equal(t, "org_123", cfg.Config.Licensing.OrganizationID)
}

func TestResolveLogPath(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := New(tmpDir, "test")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.ResolveLogPath(""))
	assert.Equal(t, "/var/log/dilag.log", cfg.ResolveLogPath("/var/log/dilag.log"))
	assert.Equal(t, filepath.Join(tmpDir, "log", "dilag.log"), cfg.ResolveLogPath(filepath.Join("log", "dilag.log")))
}
