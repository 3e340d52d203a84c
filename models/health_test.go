package models

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordingNotifier struct {
	titles []string
}

func (n *recordingNotifier) Notify(title, message string) {
	n.titles = append(n.titles, title)
}

func probeServer(t *testing.T, status int) string {
	t.Helper()
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "https://")
}

func TestProbeClassification(t *testing.T) {
	checker := NewHealthChecker(nil)
	ctx := context.Background()

	cases := []struct {
		status int
		want   HealthStatus
	}{
		{200, HealthHealthy},
		{301, HealthHealthy},
		{404, HealthHealthy},
		{500, HealthUnhealthy},
		{503, HealthUnhealthy},
	}
	for _, tc := range cases {
		hostname := probeServer(t, tc.status)
		if got := checker.Probe(ctx, hostname); got != tc.want {
			t.Errorf("Probe with %d = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestProbeConnectionFailure(t *testing.T) {
	checker := NewHealthChecker(nil)
	if got := checker.Probe(context.Background(), "127.0.0.1:1"); got != HealthUnhealthy {
		t.Errorf("unreachable host = %s, want unhealthy", got)
	}
}

func TestObserveNotifiesOnEdgesOnly(t *testing.T) {
	notifier := &recordingNotifier{}
	checker := NewHealthChecker(notifier)

	// Healthy, Healthy, Unhealthy: exactly one notification
	checker.Observe("app", HealthHealthy)
	checker.Observe("app", HealthHealthy)
	checker.Observe("app", HealthUnhealthy)
	if len(notifier.titles) != 1 {
		t.Fatalf("notifications = %d, want 1 (%v)", len(notifier.titles), notifier.titles)
	}
	if notifier.titles[0] != "Tunnel unhealthy" {
		t.Errorf("notification title = %q", notifier.titles[0])
	}

	// Staying unhealthy stays quiet, recovery notifies once
	checker.Observe("app", HealthUnhealthy)
	checker.Observe("app", HealthHealthy)
	if len(notifier.titles) != 2 {
		t.Fatalf("notifications = %d, want 2 (%v)", len(notifier.titles), notifier.titles)
	}
	if notifier.titles[1] != "Tunnel recovered" {
		t.Errorf("recovery title = %q", notifier.titles[1])
	}
}

func TestObserveTracksPerTunnel(t *testing.T) {
	notifier := &recordingNotifier{}
	checker := NewHealthChecker(notifier)

	checker.Observe("a", HealthHealthy)
	checker.Observe("b", HealthUnhealthy)
	// b was never healthy, no notification for either
	if len(notifier.titles) != 0 {
		t.Errorf("unexpected notifications: %v", notifier.titles)
	}

	checker.Observe("a", HealthUnhealthy)
	checker.Observe("b", HealthHealthy)
	if len(notifier.titles) != 2 {
		t.Errorf("notifications = %d, want 2", len(notifier.titles))
	}
}

func TestCheckEntrySkipsStopped(t *testing.T) {
	checker := NewHealthChecker(nil)
	entry := TunnelEntry{
		Tunnel: PersistentTunnel{Name: "app", Hostname: "app.example.com"},
		Status: StatusStopped,
		Health: HealthHealthy,
	}
	checker.CheckEntry(context.Background(), &entry)
	if entry.Health != HealthUnknown {
		t.Errorf("stopped tunnel health = %s, want unknown", entry.Health)
	}
}
