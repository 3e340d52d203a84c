package models

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// DaemonManager abstracts the host service manager. Install writes the
// service definition and ingress artifact but never starts anything;
// start and stop are separate operations so the reconciler's desired
// state stays explicit.
type DaemonManager interface {
	Install(tunnel *PersistentTunnel) error
	Uninstall(name, account string) error
	Start(name, account string) error
	Stop(name, account string) error
	Status(tunnel *PersistentTunnel) TunnelStatus
}

// DetectDaemonManager picks the adapter for the current host.
func DetectDaemonManager() DaemonManager {
	switch runtime.GOOS {
	case "darwin":
		return NewLaunchdManager()
	case "linux":
		return NewSystemdManager()
	default:
		return UnsupportedManager{}
	}
}

// commandResult captures one service-manager invocation.
type commandResult struct {
	Stdout string
	Stderr string
	Ok     bool
}

// commandRunner lets tests substitute the real process execution.
type commandRunner func(name string, args ...string) commandResult

func runCommand(name string, args ...string) commandResult {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Ok:     err == nil,
	}
}

var cloudflaredCandidates = map[string][]string{
	"darwin": {"/opt/homebrew/bin/cloudflared", "/usr/local/bin/cloudflared"},
	"linux":  {"/usr/local/bin/cloudflared", "/usr/bin/cloudflared"},
}

// FindCloudflared resolves the cloudflared binary, preferring the
// well-known install locations over PATH so services keep working even
// when launched outside a login shell.
func FindCloudflared() string {
	for _, path := range cloudflaredCandidates[runtime.GOOS] {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	if path, err := exec.LookPath("cloudflared"); err == nil {
		return path
	}
	if runtime.GOOS == "darwin" {
		return "/opt/homebrew/bin/cloudflared"
	}
	return "/usr/local/bin/cloudflared"
}

func IsCloudflaredInstalled() bool {
	_, err := exec.LookPath("cloudflared")
	if err == nil {
		return true
	}
	for _, path := range cloudflaredCandidates[runtime.GOOS] {
		if _, statErr := os.Stat(path); statErr == nil {
			return true
		}
	}
	return false
}

// ReadLogTail returns the last n lines of a tunnel's log file, or a
// placeholder when no log exists yet.
func ReadLogTail(tunnel *PersistentTunnel, n int) ([]string, error) {
	logPath := tunnel.LogPath()

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return []string{"No logs yet"}, nil
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	if len(data) == 0 {
		return []string{"No logs yet"}, nil
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func defaultLaunchAgentsDir() string {
	return filepath.Join(userHomeDir(), "Library", "LaunchAgents")
}

func defaultSystemdUserDir() string {
	return filepath.Join(userHomeDir(), ".config", "systemd", "user")
}

// UnsupportedManager fails every lifecycle operation; ephemeral
// foreground tunnels still work on such hosts.
type UnsupportedManager struct{}

func (UnsupportedManager) Install(*PersistentTunnel) error {
	return &DaemonError{Operation: "install service", Detail: "not supported on this platform, use `cftun run` for ephemeral tunnels"}
}

func (UnsupportedManager) Uninstall(string, string) error {
	return &DaemonError{Operation: "uninstall service", Detail: "not supported on this platform"}
}

func (UnsupportedManager) Start(string, string) error {
	return &DaemonError{Operation: "start service", Detail: "not supported on this platform, use `cftun run` for ephemeral tunnels"}
}

func (UnsupportedManager) Stop(string, string) error {
	return &DaemonError{Operation: "stop service", Detail: "not supported on this platform"}
}

func (UnsupportedManager) Status(*PersistentTunnel) TunnelStatus {
	return StatusStopped
}
