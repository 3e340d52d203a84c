package models

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
)

// Notifier delivers a user-facing alert when a tunnel changes health.
type Notifier interface {
	Notify(title, message string)
}

// SystemNotifier shells out to the platform notification tool. Failures
// are ignored; notifications are best effort.
type SystemNotifier struct{}

func (SystemNotifier) Notify(title, message string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", message, title)
		cmd = exec.Command("osascript", "-e", script)
	case "linux":
		cmd = exec.Command("notify-send", title, message)
	default:
		return
	}
	if err := cmd.Run(); err != nil {
		log.Debug().Err(err).Msg("notification failed")
	}
}

// HealthChecker probes tunnel hostnames over HTTPS and tracks the last
// observed status per tunnel so notifications fire only on transitions.
type HealthChecker struct {
	client   *http.Client
	notifier Notifier
	last     map[string]HealthStatus
}

func NewHealthChecker(notifier Notifier) *HealthChecker {
	return &HealthChecker{
		client: &http.Client{
			Timeout: 5 * time.Second,
			// Probing reachability, not certificate hygiene. Tunnels
			// often front dev services with self-signed upstreams.
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		notifier: notifier,
		last:     make(map[string]HealthStatus),
	}
}

// Probe issues a HEAD request against the public hostname. Any HTTP
// response below 500 counts as healthy since the edge and origin both
// answered; 5xx and transport errors count as unhealthy.
func (h *HealthChecker) Probe(ctx context.Context, hostname string) HealthStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+hostname, nil)
	if err != nil {
		return HealthUnhealthy
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return HealthUnhealthy
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return HealthUnhealthy
	}
	return HealthHealthy
}

// Observe records the new status for a tunnel and fires a notification
// when it crosses between healthy and unhealthy. Returns true when a
// transition occurred.
func (h *HealthChecker) Observe(name string, status HealthStatus) bool {
	prev := h.last[name]
	h.last[name] = status

	switch {
	case prev == HealthHealthy && status == HealthUnhealthy:
		if h.notifier != nil {
			h.notifier.Notify("Tunnel unhealthy", fmt.Sprintf("%s is not responding", name))
		}
		return true
	case prev == HealthUnhealthy && status == HealthHealthy:
		if h.notifier != nil {
			h.notifier.Notify("Tunnel recovered", fmt.Sprintf("%s is healthy again", name))
		}
		return true
	}
	return false
}

// CheckEntry probes one reconciled entry and updates its health field.
// Stopped tunnels are not probed.
func (h *HealthChecker) CheckEntry(ctx context.Context, entry *TunnelEntry) {
	if entry.Status != StatusRunning || entry.Tunnel.Hostname == "" {
		entry.Health = HealthUnknown
		return
	}
	status := h.Probe(ctx, entry.Tunnel.Hostname)
	h.Observe(entry.Tunnel.Name, status)
	entry.Health = status
}
