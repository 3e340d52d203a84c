package models

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubDaemon struct {
	statuses map[string]TunnelStatus
}

func (d *stubDaemon) Install(*PersistentTunnel) error      { return nil }
func (d *stubDaemon) Uninstall(name, account string) error { return nil }
func (d *stubDaemon) Start(name, account string) error     { return nil }
func (d *stubDaemon) Stop(name, account string) error      { return nil }
func (d *stubDaemon) Status(t *PersistentTunnel) TunnelStatus {
	if s, ok := d.statuses[t.Name]; ok {
		return s
	}
	return StatusStopped
}

type stubLister struct {
	tunnels []RemoteTunnel
	err     error
}

func (l *stubLister) ListTunnels(ctx context.Context, accountID string) ([]RemoteTunnel, error) {
	return l.tunnels, l.err
}

func testAccount() *Account {
	return &Account{
		Name:      "work",
		AccountID: "acc-1",
		Zones:     []ZoneInfo{{ID: "z1", Name: "example.com"}},
	}
}

func seedState(t *testing.T, tunnels ...PersistentTunnel) {
	t.Helper()
	state := &TunnelState{Tunnels: tunnels}
	if err := state.Save(); err != nil {
		t.Fatalf("seeding state: %v", err)
	}
}

func TestReconcileManagedOnly(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())
	seedState(t,
		PersistentTunnel{Name: "app", AccountName: "work", Hostname: "app.example.com"},
		PersistentTunnel{Name: "other", AccountName: "personal"},
	)

	daemon := &stubDaemon{statuses: map[string]TunnelStatus{"app": StatusStopped}}
	r := NewReconciler(daemon, &stubLister{})

	entries, err := r.Reconcile(context.Background(), testAccount(), nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 (other account excluded)", len(entries))
	}
	if entries[0].Kind != KindManaged || entries[0].Status != StatusStopped {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestReconcileDiscoversEphemeral(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())
	seedState(t, PersistentTunnel{Name: "app", AccountName: "work"})

	deleted := time.Now()
	lister := &stubLister{tunnels: []RemoteTunnel{
		{ID: "t1", Name: "cftun-app"},                       // already managed
		{ID: "t2", Name: "cftun-orphan"},                    // true orphan
		{ID: "t3", Name: "cftun-gone", DeletedAt: &deleted}, // soft-deleted
		{ID: "t4", Name: "unrelated-tunnel"},                // not ours
	}}
	r := NewReconciler(&stubDaemon{}, lister)

	entries, err := r.Reconcile(context.Background(), testAccount(), nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	var ephemeral []TunnelEntry
	for _, e := range entries {
		if e.Kind == KindEphemeral {
			ephemeral = append(ephemeral, e)
		}
	}
	if len(ephemeral) != 1 {
		t.Fatalf("ephemeral entries = %d, want 1: %+v", len(ephemeral), entries)
	}
	orphan := ephemeral[0]
	if orphan.Tunnel.Name != "orphan" || orphan.Tunnel.TunnelID != "t2" {
		t.Errorf("orphan = %+v", orphan.Tunnel)
	}
	// No artifact on disk: unknown target, stopped
	if orphan.Tunnel.Target != "unknown" {
		t.Errorf("target = %q, want unknown", orphan.Tunnel.Target)
	}
	if orphan.Status != StatusStopped {
		t.Errorf("status = %s, want stopped without artifact", orphan.Status)
	}
}

func TestReconcileEphemeralArtifactRecovery(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())
	seedState(t)

	if _, err := WriteEphemeralConfig("t2", "/tmp/t2.json", "demo.example.com", "localhost:9000"); err != nil {
		t.Fatal(err)
	}

	lister := &stubLister{tunnels: []RemoteTunnel{{ID: "t2", Name: "cftun-demo"}}}
	r := NewReconciler(&stubDaemon{}, lister)

	entries, err := r.Reconcile(context.Background(), testAccount(), nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Tunnel.Hostname != "demo.example.com" {
		t.Errorf("hostname = %q", e.Tunnel.Hostname)
	}
	if e.Tunnel.Target != "http://localhost:9000" {
		t.Errorf("target = %q", e.Tunnel.Target)
	}
	if e.Status != StatusRunning {
		t.Errorf("status = %s, artifact presence should mean running", e.Status)
	}
	// Zone inferred from the hostname suffix
	if e.Tunnel.ZoneID != "z1" || e.Tunnel.ZoneName != "example.com" {
		t.Errorf("zone = %q/%q", e.Tunnel.ZoneID, e.Tunnel.ZoneName)
	}
}

func TestReconcileImportTransition(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())
	seedState(t)

	lister := &stubLister{tunnels: []RemoteTunnel{{ID: "t2", Name: "cftun-orphan"}}}
	r := NewReconciler(&stubDaemon{}, lister)
	ctx := context.Background()
	acct := testAccount()

	entries, err := r.Reconcile(ctx, acct, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Kind != KindEphemeral {
		t.Fatalf("expected one ephemeral entry, got %+v", entries)
	}

	// Import it into managed state
	state, _ := LoadState()
	state.Add(PersistentTunnel{Name: "orphan", AccountName: "work", TunnelID: "t2"})
	if err := state.Save(); err != nil {
		t.Fatal(err)
	}

	entries, err = r.Reconcile(ctx, acct, entries)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries after import = %d, want 1 (no duplicate)", len(entries))
	}
	if entries[0].Kind != KindManaged {
		t.Errorf("kind after import = %v, want managed", entries[0].Kind)
	}
}

func TestReconcileRemoteFailureKeepsManaged(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())
	seedState(t, PersistentTunnel{Name: "app", AccountName: "work"})

	lister := &stubLister{err: errors.New("api down")}
	r := NewReconciler(&stubDaemon{statuses: map[string]TunnelStatus{"app": StatusRunning}}, lister)

	entries, err := r.Reconcile(context.Background(), testAccount(), nil)
	if err != nil {
		t.Fatalf("remote failure must not abort the pass: %v", err)
	}
	if len(entries) != 1 || entries[0].Tunnel.Name != "app" {
		t.Errorf("managed entries lost on remote failure: %+v", entries)
	}
}

func TestReconcileCarriesOverHistoryAndHealth(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())
	seedState(t, PersistentTunnel{Name: "app", AccountName: "work"})

	r := NewReconciler(&stubDaemon{}, &stubLister{})

	previous := []TunnelEntry{{
		Tunnel:  PersistentTunnel{Name: "app"},
		History: MetricsHistory{Samples: []uint64{1, 2, 3}, LastTotal: 6},
		Health:  HealthHealthy,
	}}

	entries, err := r.Reconcile(context.Background(), testAccount(), previous)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Health != HealthHealthy {
		t.Errorf("health not carried over: %s", entries[0].Health)
	}
	if len(entries[0].History.Samples) != 3 || entries[0].History.LastTotal != 6 {
		t.Errorf("history not carried over: %+v", entries[0].History)
	}
}

func TestReconcileMigratesLegacyEntries(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())
	seedState(t, PersistentTunnel{Name: "old"})

	r := NewReconciler(&stubDaemon{}, &stubLister{})
	r.MigrationAccount = "work"

	entries, err := r.Reconcile(context.Background(), testAccount(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("migrated entry not visible for account: %+v", entries)
	}
}
