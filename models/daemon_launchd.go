package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const launchdLabelPrefix = "com.cftun"

// LaunchdManager manages per-tunnel launchd user agents on macOS.
type LaunchdManager struct {
	agentsDir string
	run       commandRunner
}

func NewLaunchdManager() *LaunchdManager {
	return &LaunchdManager{
		agentsDir: defaultLaunchAgentsDir(),
		run:       runCommand,
	}
}

func launchdLabel(account, name string) string {
	if account == "" {
		return fmt.Sprintf("%s.%s", launchdLabelPrefix, name)
	}
	return fmt.Sprintf("%s.%s.%s", launchdLabelPrefix, account, name)
}

func legacyLaunchdLabel(name string) string {
	return fmt.Sprintf("%s.%s", launchdLabelPrefix, name)
}

func (m *LaunchdManager) plistPath(account, name string) string {
	return filepath.Join(m.agentsDir, launchdLabel(account, name)+".plist")
}

func (m *LaunchdManager) legacyPlistPath(name string) string {
	return filepath.Join(m.agentsDir, legacyLaunchdLabel(name)+".plist")
}

// findPlistPath prefers the account-namespaced plist, falling back to
// the un-namespaced one written before multi-account support.
func (m *LaunchdManager) findPlistPath(account, name string) (string, bool) {
	path := m.plistPath(account, name)
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	legacy := m.legacyPlistPath(name)
	if _, err := os.Stat(legacy); err == nil {
		return legacy, true
	}
	return "", false
}

func (m *LaunchdManager) isLabelLoaded(label string) bool {
	return m.run("launchctl", "list", label).Ok
}

func (m *LaunchdManager) findLabel(account, name string) string {
	label := launchdLabel(account, name)
	if m.isLabelLoaded(label) {
		return label
	}
	legacy := legacyLaunchdLabel(name)
	if m.isLabelLoaded(legacy) {
		return legacy
	}
	return label
}

func (m *LaunchdManager) generatePlist(tunnel *PersistentTunnel) string {
	runAtLoad := "false"
	if tunnel.AutoStart {
		runAtLoad = "true"
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>tunnel</string>
        <string>--config</string>
        <string>%s</string>
        <string>--metrics</string>
        <string>localhost:%d</string>
        <string>run</string>
    </array>
    <key>RunAtLoad</key>
    <%s/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
    <key>StandardOutPath</key>
    <string>%s</string>
    <key>StandardErrorPath</key>
    <string>%s</string>
    <key>ProcessType</key>
    <string>Background</string>
</dict>
</plist>
`,
		launchdLabel(tunnel.AccountName, tunnel.Name),
		FindCloudflared(),
		tunnel.ConfigFilePath(),
		tunnel.GetMetricsPort(),
		runAtLoad,
		tunnel.LogPath(),
		tunnel.LogPath(),
	)
}

func (m *LaunchdManager) Install(tunnel *PersistentTunnel) error {
	if _, err := EnsureLogsDir(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.agentsDir, 0755); err != nil {
		return fmt.Errorf("failed to create LaunchAgents directory: %w", err)
	}
	if err := WriteTunnelConfig(tunnel); err != nil {
		return err
	}

	path := m.plistPath(tunnel.AccountName, tunnel.Name)
	if err := os.WriteFile(path, []byte(m.generatePlist(tunnel)), 0644); err != nil {
		return fmt.Errorf("failed to write plist: %w", err)
	}
	return nil
}

func (m *LaunchdManager) Uninstall(name, account string) error {
	// Best effort, the agent may not be loaded
	m.Stop(name, account)

	for _, path := range []string{m.plistPath(account, name), m.legacyPlistPath(name)} {
		if _, err := os.Stat(path); err == nil {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove plist: %w", err)
			}
		}
	}
	return nil
}

func (m *LaunchdManager) Start(name, account string) error {
	path, ok := m.findPlistPath(account, name)
	if !ok {
		return &DaemonError{
			Operation: "start tunnel",
			Detail:    fmt.Sprintf("service definition not found for '%s', try adding it again", name),
		}
	}

	result := m.run("launchctl", "load", "-w", path)
	if !result.Ok {
		stderr := strings.TrimSpace(result.Stderr)
		if !strings.Contains(stderr, "already loaded") && stderr != "" {
			return &DaemonError{Operation: "start tunnel", Detail: stderr}
		}
	}
	return nil
}

func (m *LaunchdManager) Stop(name, account string) error {
	path, ok := m.findPlistPath(account, name)
	if !ok {
		return nil
	}

	result := m.run("launchctl", "unload", path)
	if !result.Ok {
		stderr := strings.TrimSpace(result.Stderr)
		if !strings.Contains(stderr, "not find") && !strings.Contains(stderr, "not loaded") && stderr != "" {
			return &DaemonError{Operation: "stop tunnel", Detail: stderr}
		}
	}
	return nil
}

// isRunning scans the full launchctl job table for a live PID under
// either label.
func (m *LaunchdManager) isRunning(name, account string) bool {
	result := m.run("launchctl", "list")
	if !result.Ok {
		return false
	}

	label := launchdLabel(account, name)
	legacy := legacyLaunchdLabel(name)
	for _, line := range strings.Split(result.Stdout, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 || (parts[2] != label && parts[2] != legacy) {
			continue
		}
		if _, err := strconv.Atoi(parts[0]); err == nil {
			return true
		}
	}
	return false
}

func (m *LaunchdManager) Status(tunnel *PersistentTunnel) TunnelStatus {
	label := m.findLabel(tunnel.AccountName, tunnel.Name)

	result := m.run("launchctl", "list", label)
	if !result.Ok {
		return StatusStopped
	}

	if !strings.Contains(result.Stdout, `"PID"`) {
		return StatusStopped
	}

	// With KeepAlive the job can show a PID alongside a stale nonzero
	// LastExitStatus, so a live-PID scan breaks the tie.
	if strings.Contains(result.Stdout, `"LastExitStatus" = 0`) ||
		!strings.Contains(result.Stdout, `"LastExitStatus"`) ||
		m.isRunning(tunnel.Name, tunnel.AccountName) {
		return StatusRunning
	}
	return StatusError
}
