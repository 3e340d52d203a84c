package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const systemdServicePrefix = "cftun-"

// SystemdManager manages per-tunnel systemd user units on Linux.
type SystemdManager struct {
	unitDir string
	run     commandRunner
}

func NewSystemdManager() *SystemdManager {
	return &SystemdManager{
		unitDir: defaultSystemdUserDir(),
		run:     runCommand,
	}
}

func systemdServiceName(account, name string) string {
	if account == "" {
		return fmt.Sprintf("%s%s.service", systemdServicePrefix, name)
	}
	return fmt.Sprintf("%s%s-%s.service", systemdServicePrefix, account, name)
}

func legacySystemdServiceName(name string) string {
	return fmt.Sprintf("%s%s.service", systemdServicePrefix, name)
}

func (m *SystemdManager) servicePath(service string) string {
	return filepath.Join(m.unitDir, service)
}

// resolveService prefers the account-namespaced unit, falling back to
// the un-namespaced one written before multi-account support.
func (m *SystemdManager) resolveService(account, name string) (string, bool) {
	service := systemdServiceName(account, name)
	if _, err := os.Stat(m.servicePath(service)); err == nil {
		return service, true
	}
	legacy := legacySystemdServiceName(name)
	if _, err := os.Stat(m.servicePath(legacy)); err == nil {
		return legacy, true
	}
	return service, false
}

func (m *SystemdManager) generateUnit(tunnel *PersistentTunnel) string {
	return fmt.Sprintf(`[Unit]
Description=Cloudflare Tunnel - %s
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s tunnel --config %s --metrics localhost:%d run
Restart=on-failure
RestartSec=5
StandardOutput=append:%s
StandardError=append:%s

[Install]
WantedBy=default.target
`,
		tunnel.Name,
		FindCloudflared(),
		tunnel.ConfigFilePath(),
		tunnel.GetMetricsPort(),
		tunnel.LogPath(),
		tunnel.LogPath(),
	)
}

func (m *SystemdManager) daemonReload() error {
	result := m.run("systemctl", "--user", "daemon-reload")
	if !result.Ok {
		return &DaemonError{Operation: "reload systemd", Detail: strings.TrimSpace(result.Stderr)}
	}
	return nil
}

func (m *SystemdManager) Install(tunnel *PersistentTunnel) error {
	if _, err := EnsureLogsDir(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.unitDir, 0755); err != nil {
		return fmt.Errorf("failed to create systemd user directory: %w", err)
	}
	if err := WriteTunnelConfig(tunnel); err != nil {
		return err
	}

	service := systemdServiceName(tunnel.AccountName, tunnel.Name)
	if err := os.WriteFile(m.servicePath(service), []byte(m.generateUnit(tunnel)), 0644); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	if err := m.daemonReload(); err != nil {
		return err
	}

	if tunnel.AutoStart {
		result := m.run("systemctl", "--user", "enable", service)
		if !result.Ok {
			return &DaemonError{Operation: "enable service", Detail: strings.TrimSpace(result.Stderr)}
		}
	} else {
		// May not be enabled, ignore failures
		m.run("systemctl", "--user", "disable", service)
	}
	return nil
}

func (m *SystemdManager) Uninstall(name, account string) error {
	service, _ := m.resolveService(account, name)

	// Best effort, the unit may not be running or enabled
	m.run("systemctl", "--user", "stop", service)
	m.run("systemctl", "--user", "disable", service)

	for _, svc := range []string{systemdServiceName(account, name), legacySystemdServiceName(name)} {
		path := m.servicePath(svc)
		if _, err := os.Stat(path); err == nil {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove service file: %w", err)
			}
		}
	}

	return m.daemonReload()
}

func (m *SystemdManager) Start(name, account string) error {
	service, found := m.resolveService(account, name)
	if !found {
		return &DaemonError{
			Operation: "start tunnel",
			Detail:    fmt.Sprintf("service definition not found for '%s', try adding it again", name),
		}
	}

	result := m.run("systemctl", "--user", "start", service)
	if !result.Ok {
		return &DaemonError{Operation: "start tunnel", Detail: strings.TrimSpace(result.Stderr)}
	}
	return nil
}

func (m *SystemdManager) Stop(name, account string) error {
	service, found := m.resolveService(account, name)
	if !found {
		return nil
	}

	result := m.run("systemctl", "--user", "stop", service)
	if !result.Ok {
		stderr := strings.TrimSpace(result.Stderr)
		if !strings.Contains(stderr, "not loaded") && stderr != "" {
			return &DaemonError{Operation: "stop tunnel", Detail: stderr}
		}
	}
	return nil
}

func (m *SystemdManager) Status(tunnel *PersistentTunnel) TunnelStatus {
	service, _ := m.resolveService(tunnel.AccountName, tunnel.Name)

	result := m.run("systemctl", "--user", "is-active", service)
	switch strings.TrimSpace(result.Stdout) {
	case "active":
		return StatusRunning
	case "failed":
		return StatusError
	default:
		return StatusStopped
	}
}
