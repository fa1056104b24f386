// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package agent supervises the local OpenCode agent server and the per-session
// web dev server as child processes.
package agent

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

//go:embed web-designer-prompt.md
var designerPrompt string

var ErrAgentNotInstalled = errors.New("opencode binary not found")

// CheckResult reports whether an external tool is installed.
type CheckResult struct {
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FreePort asks the kernel for an unused loopback port.
func FreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, errors.Wrap(err, "failed to find free port")
	}
	defer ln.Close()

	return ln.Addr().(*net.TCPAddr).Port, nil
}

// binaryPath locates the opencode binary in its common install locations,
// falling back to PATH.
func binaryPath() (string, error) {
	home, _ := os.UserHomeDir()

	candidates := []string{
		filepath.Join(home, ".opencode/bin/opencode"),
		filepath.Join(home, ".npm-global/bin/opencode"),
		filepath.Join(home, ".bun/bin/opencode"),
		"/opt/homebrew/bin/opencode",
		"/usr/local/bin/opencode",
		"/usr/bin/opencode",
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath("opencode"); err == nil {
		return path, nil
	}

	return "", ErrAgentNotInstalled
}

// Supervisor owns the OpenCode agent server child process. One instance per
// application; all methods are safe for concurrent use.
type Supervisor struct {
	mu      sync.Mutex
	dataDir string
	cmd     *exec.Cmd
	done    chan struct{}
	port    int

	binaryPath func() (string, error)
}

func NewSupervisor(dataDir string) *Supervisor {
	return &Supervisor{
		dataDir:    dataDir,
		binaryPath: binaryPath,
	}
}

// Port returns the port the agent server was started on, or 0.
func (s *Supervisor) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Running reports whether a tracked agent process exists.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// ensureConfig writes the OpenCode config that registers the designer agent.
// XDG_CONFIG_HOME is pointed at the data dir, so the file lives under
// dataDir/opencode/opencode.json.
func (s *Supervisor) ensureConfig() error {
	configDir := filepath.Join(s.dataDir, "opencode")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create opencode config directory")
	}

	config := map[string]any{
		"$schema":    "https://opencode.ai/config.json",
		"autoupdate": false,
		"share":      "disabled",
		"agent": map[string]any{
			"designer": map[string]any{
				"mode":        "primary",
				"prompt":      designerPrompt,
				"description": "Web UI design agent for creating React/TanStack Router pages",
				"permission": map[string]any{
					"bash": "deny",
				},
			},
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode opencode config")
	}

	return errors.Wrap(os.WriteFile(filepath.Join(configDir, "opencode.json"), data, 0o644), "failed to write opencode config")
}

// Start launches the agent server on a free port and waits for it to accept
// connections. If a tracked process already exists its port is returned.
func (s *Supervisor) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return s.port, nil
	}

	binary, err := s.binaryPath()
	if err != nil {
		return 0, err
	}

	if err := s.ensureConfig(); err != nil {
		return 0, err
	}

	port, err := FreePort()
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(binary, "serve", "--port", fmt.Sprintf("%d", port), "--hostname", "127.0.0.1")
	cmd.Env = append(os.Environ(), "XDG_CONFIG_HOME="+s.dataDir)
	forwardOutput(cmd, "opencode")

	log.Info().Int("port", port).Str("binary", binary).Msg("Starting agent server")

	if err := cmd.Start(); err != nil {
		return 0, errors.Wrap(err, "failed to start agent server")
	}

	s.cmd = cmd
	s.done = make(chan struct{})
	s.port = port

	go s.reap(cmd, s.done)

	if err := waitForPort(ctx, port, 15*time.Second); err != nil {
		s.stopLocked()
		return 0, errors.Wrap(err, "agent server did not become ready")
	}

	return port, nil
}

// reap waits on the child so it never becomes a zombie, and clears the
// tracked process when it exits on its own. The done channel closes before
// the lock is taken so a concurrent Stop holding the lock can observe the
// exit.
func (s *Supervisor) reap(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == cmd {
		log.Warn().Err(err).Msg("Agent server exited")
		s.cmd = nil
		s.port = 0
	}
}

// Stop terminates the tracked agent process. Safe to call when nothing is
// running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	if s.cmd == nil {
		return
	}

	terminate(s.cmd, s.done)
	s.cmd = nil
	s.port = 0
}

// Restart stops any tracked process, clears the OpenCode model cache, and
// starts a fresh server on a new port.
func (s *Supervisor) Restart(ctx context.Context) (int, error) {
	s.Stop()

	if cacheDir, err := os.UserCacheDir(); err == nil {
		cachePath := filepath.Join(cacheDir, "opencode", "models.json")
		if err := os.Remove(cachePath); err == nil {
			log.Debug().Str("path", cachePath).Msg("Cleared agent model cache")
		}
	}

	return s.Start(ctx)
}

// CheckInstallation runs `opencode --version` and reports the result.
func (s *Supervisor) CheckInstallation(ctx context.Context) CheckResult {
	binary, err := s.binaryPath()
	if err != nil {
		binary = "opencode"
	}

	return checkTool(ctx, binary)
}

// CheckBun reports whether the bun runtime is available.
func CheckBun(ctx context.Context) CheckResult {
	bun, err := bunPath()
	if err != nil {
		return CheckResult{Error: err.Error()}
	}
	return checkTool(ctx, bun)
}

func checkTool(ctx context.Context, binary string) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "--version").CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return CheckResult{Error: msg}
	}

	return CheckResult{
		Installed: true,
		Version:   strings.TrimSpace(string(out)),
	}
}

// terminate sends SIGTERM and escalates to SIGKILL if the process ignores
// it. done is the channel the reaper closes once the child has been waited
// on.
func terminate(cmd *exec.Cmd, done <-chan struct{}) {
	if cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn().Int("pid", cmd.Process.Pid).Msg("Process ignored SIGTERM, killing")
		_ = cmd.Process.Kill()
	}
}

// waitForPort polls until something accepts connections on the loopback port.
func waitForPort(ctx context.Context, port int, timeout time.Duration) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	return retry.Do(
		func() error {
			conn, err := net.DialTimeout("tcp", addr, time.Second)
			if err != nil {
				return err
			}
			return conn.Close()
		},
		retry.Context(ctx),
		retry.Attempts(uint(timeout/(250*time.Millisecond))),
		retry.Delay(250*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

// portInUse reports whether the loopback port already has a listener.
func portInUse(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return true
	}
	ln.Close()
	return false
}

// forwardOutput pipes a child's stdout/stderr into the structured log.
func forwardOutput(cmd *exec.Cmd, name string) {
	stdout, err := cmd.StdoutPipe()
	if err == nil {
		go logLines(stdout, name, "stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err == nil {
		go logLines(stderr, name, "stderr")
	}
}

func logLines(r io.Reader, name, stream string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Debug().Str("process", name).Str("stream", stream).Msg(scanner.Text())
	}
}
