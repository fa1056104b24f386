// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreePort(t *testing.T) {
	port, err := FreePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	ln.Close()
}

func TestPortInUse(t *testing.T) {
	port, err := FreePort()
	require.NoError(t, err)

	assert.False(t, portInUse(port))

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer ln.Close()

	assert.True(t, portInUse(port))
}

func TestSupervisor_EnsureConfig(t *testing.T) {
	dataDir := t.TempDir()
	supervisor := NewSupervisor(dataDir)

	require.NoError(t, supervisor.ensureConfig())

	data, err := os.ReadFile(filepath.Join(dataDir, "opencode", "opencode.json"))
	require.NoError(t, err)

	var config map[string]any
	require.NoError(t, json.Unmarshal(data, &config))

	assert.Equal(t, false, config["autoupdate"])
	assert.Equal(t, "disabled", config["share"])

	agents, ok := config["agent"].(map[string]any)
	require.True(t, ok)
	designer, ok := agents["designer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "primary", designer["mode"])
	assert.NotEmpty(t, designer["prompt"])
}

func TestSupervisor_StartWithoutBinary(t *testing.T) {
	supervisor := NewSupervisor(t.TempDir())
	supervisor.binaryPath = func() (string, error) {
		return "", ErrAgentNotInstalled
	}

	_, err := supervisor.Start(context.Background())
	assert.ErrorIs(t, err, ErrAgentNotInstalled)
	assert.False(t, supervisor.Running())
	assert.Zero(t, supervisor.Port())
}

func TestSupervisor_StopWithoutProcess(t *testing.T) {
	supervisor := NewSupervisor(t.TempDir())
	supervisor.Stop()
	assert.False(t, supervisor.Running())
}

func TestCheckTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script helper is unix only")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-tool")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 1.2.3\n"), 0o755))

	result := checkTool(context.Background(), script)
	assert.True(t, result.Installed)
	assert.Equal(t, "1.2.3", result.Version)
	assert.Empty(t, result.Error)
}

func TestCheckTool_Missing(t *testing.T) {
	result := checkTool(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.False(t, result.Installed)
	assert.NotEmpty(t, result.Error)
}

func TestProjectReady(t *testing.T) {
	cwd := t.TempDir()
	assert.False(t, ProjectReady(cwd))

	require.NoError(t, os.WriteFile(filepath.Join(cwd, "package.json"), []byte("{}"), 0o644))
	assert.True(t, ProjectReady(cwd))
}

func TestDevServer_StartValidations(t *testing.T) {
	server := NewDevServer()

	_, err := server.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	emptyCwd := t.TempDir()
	_, err = server.Start(context.Background(), emptyCwd)
	assert.ErrorContains(t, err, "package.json")
}

func TestDevServer_StatusIdle(t *testing.T) {
	server := NewDevServer()

	status := server.Status()
	assert.False(t, status.Running)
	assert.Equal(t, DevServerPort, status.Port)
	assert.Empty(t, status.SessionCwd)
}
