// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package agent

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DevServerPort is the fixed port the preview dev server always runs on, so
// the UI can point an iframe at a stable address.
const DevServerPort = 5173

// DevServerStatus is the externally visible state of the preview server.
type DevServerStatus struct {
	Running    bool   `json:"running"`
	PID        int    `json:"pid,omitempty"`
	Port       int    `json:"port"`
	SessionCwd string `json:"session_cwd,omitempty"`
}

// DevServer supervises the `bun run dev` process serving a session's web
// project for live preview.
type DevServer struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	done       chan struct{}
	sessionCwd string

	bunPath func() (string, error)
}

func NewDevServer() *DevServer {
	return &DevServer{bunPath: bunPath}
}

// bunPath locates the bun binary in its common install locations, falling
// back to PATH.
func bunPath() (string, error) {
	home, _ := os.UserHomeDir()

	candidates := []string{
		"/opt/homebrew/bin/bun",
		"/usr/local/bin/bun",
		"/usr/bin/bun",
		filepath.Join(home, ".bun/bin/bun"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath("bun"); err == nil {
		return path, nil
	}

	return "", errors.New("bun not found in PATH or common locations")
}

// ProjectReady reports whether a session directory holds a runnable web
// project.
func ProjectReady(sessionCwd string) bool {
	_, err := os.Stat(filepath.Join(sessionCwd, "package.json"))
	return err == nil
}

// Start launches the dev server for a session's project, installing
// dependencies first when node_modules is missing. If a tracked process
// already exists its port is returned unchanged.
func (d *DevServer) Start(ctx context.Context, sessionCwd string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd != nil {
		return DevServerPort, nil
	}

	if _, err := os.Stat(sessionCwd); err != nil {
		return 0, errors.Wrapf(err, "session directory does not exist: %s", sessionCwd)
	}
	if !ProjectReady(sessionCwd) {
		return 0, errors.Errorf("no package.json found in %s", sessionCwd)
	}

	bun, err := d.bunPath()
	if err != nil {
		return 0, err
	}

	if _, err := os.Stat(filepath.Join(sessionCwd, "node_modules")); err != nil {
		log.Info().Str("cwd", sessionCwd).Msg("Installing web project dependencies")

		install := exec.CommandContext(ctx, bun, "install")
		install.Dir = sessionCwd
		if out, err := install.CombinedOutput(); err != nil {
			return 0, errors.Wrapf(err, "bun install failed: %s", string(out))
		}
	}

	cmd := exec.Command(bun, "run", "dev", "--port", "5173")
	cmd.Dir = sessionCwd
	forwardOutput(cmd, "devserver")

	log.Info().Int("port", DevServerPort).Str("cwd", sessionCwd).Msg("Starting dev server")

	if err := cmd.Start(); err != nil {
		return 0, errors.Wrap(err, "failed to start dev server")
	}

	d.cmd = cmd
	d.done = make(chan struct{})
	d.sessionCwd = sessionCwd

	go d.reap(cmd, d.done)

	if err := waitForPort(ctx, DevServerPort, 15*time.Second); err != nil {
		d.stopLocked()
		return 0, errors.Wrap(err, "dev server did not become ready")
	}

	return DevServerPort, nil
}

func (d *DevServer) reap(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	close(done)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == cmd {
		log.Warn().Err(err).Msg("Dev server exited")
		d.cmd = nil
		d.sessionCwd = ""
	}
}

// Stop terminates the tracked dev server. Safe to call when nothing is
// running.
func (d *DevServer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *DevServer) stopLocked() {
	if d.cmd == nil {
		return
	}

	terminate(d.cmd, d.done)
	d.cmd = nil
	d.sessionCwd = ""
}

// Status reports whether the tracked process is live and its port answering.
func (d *DevServer) Status() DevServerStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := DevServerStatus{Port: DevServerPort}
	if d.cmd == nil {
		return status
	}

	status.Running = portInUse(DevServerPort)
	status.SessionCwd = d.sessionCwd
	if d.cmd.Process != nil {
		status.PID = d.cmd.Process.Pid
	}
	return status
}
