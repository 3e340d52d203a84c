package models

import (
	"os"
	"strings"
	"testing"
)

func TestLoadStateMissing(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())

	state, err := LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if len(state.Tunnels) != 0 {
		t.Errorf("expected empty state, got %d tunnels", len(state.Tunnels))
	}
}

func TestStateMigrationAssignsAccount(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())

	state := &TunnelState{Tunnels: []PersistentTunnel{
		{Name: "old", Target: "localhost:3000"},
		{Name: "new", AccountName: "work", Target: "localhost:4000"},
	}}
	if err := state.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	migrated, err := LoadAndMigrateState("default")
	if err != nil {
		t.Fatalf("LoadAndMigrateState: %v", err)
	}
	if migrated.Tunnels[0].AccountName != "default" {
		t.Errorf("legacy tunnel account = %q, want default", migrated.Tunnels[0].AccountName)
	}
	if migrated.Tunnels[1].AccountName != "work" {
		t.Errorf("existing account overwritten: %q", migrated.Tunnels[1].AccountName)
	}

	// Migration persists: a plain load now sees the account name
	reloaded, err := LoadState()
	if err != nil {
		t.Fatalf("LoadState after migration: %v", err)
	}
	if reloaded.Tunnels[0].AccountName != "default" {
		t.Errorf("migration not persisted: %q", reloaded.Tunnels[0].AccountName)
	}
}

func TestStateFindAndRemove(t *testing.T) {
	state := &TunnelState{Tunnels: []PersistentTunnel{
		{Name: "app", AccountName: "work"},
		{Name: "app", AccountName: "personal"},
	}}

	tunnel, ok := state.Find("app", "personal")
	if !ok || tunnel.AccountName != "personal" {
		t.Fatalf("Find returned %+v, %v", tunnel, ok)
	}

	if _, ok := state.Find("app", "other"); ok {
		t.Error("Find matched wrong account")
	}

	if got := len(state.TunnelsForAccount("work")); got != 1 {
		t.Errorf("TunnelsForAccount(work) = %d entries", got)
	}

	if !state.Remove("app", "work") {
		t.Fatal("Remove failed")
	}
	if len(state.Tunnels) != 1 || state.Tunnels[0].AccountName != "personal" {
		t.Errorf("wrong tunnel removed: %+v", state.Tunnels)
	}
	if state.Remove("app", "work") {
		t.Error("Remove reported success twice")
	}
}

func TestStateFindAny(t *testing.T) {
	state := &TunnelState{Tunnels: []PersistentTunnel{
		{Name: "app", AccountName: "work", Target: "localhost:3000"},
		{Name: "app", AccountName: "personal", Target: "localhost:4000"},
		{Name: "blog", AccountName: "personal"},
	}}

	t.Run("prefers the given account", func(t *testing.T) {
		tunnel, ok := state.FindAny("app", "personal")
		if !ok || tunnel.Target != "localhost:4000" {
			t.Fatalf("FindAny = %+v, %v", tunnel, ok)
		}
	})

	t.Run("falls back across accounts", func(t *testing.T) {
		tunnel, ok := state.FindAny("blog", "work")
		if !ok || tunnel.AccountName != "personal" {
			t.Fatalf("FindAny = %+v, %v", tunnel, ok)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		if _, ok := state.FindAny("ghost", "work"); ok {
			t.Error("FindAny matched a missing tunnel")
		}
	})
}

func TestStateAddUniqueRejectsDuplicateKey(t *testing.T) {
	state := &TunnelState{}
	if err := state.AddUnique(PersistentTunnel{Name: "app", AccountName: "work"}); err != nil {
		t.Fatalf("AddUnique: %v", err)
	}

	if err := state.AddUnique(PersistentTunnel{Name: "app", AccountName: "work"}); err == nil {
		t.Error("duplicate (name, account) accepted")
	}
	if len(state.Tunnels) != 1 {
		t.Fatalf("duplicate was appended: %d entries", len(state.Tunnels))
	}

	// Same name under another account is a different key
	if err := state.AddUnique(PersistentTunnel{Name: "app", AccountName: "personal"}); err != nil {
		t.Errorf("same name under another account rejected: %v", err)
	}
	if len(state.Tunnels) != 2 {
		t.Errorf("entries = %d, want 2", len(state.Tunnels))
	}
}

func TestDeriveMetricsPort(t *testing.T) {
	names := []string{"app", "api", "blog", "x", "a-rather-long-tunnel-name"}
	for _, name := range names {
		port := DeriveMetricsPort(name)
		if port < 21000 || port > 21999 {
			t.Errorf("port for %q = %d, outside 21000-21999", name, port)
		}
		if port != DeriveMetricsPort(name) {
			t.Errorf("port for %q not deterministic", name)
		}
	}

	tunnel := PersistentTunnel{Name: "app", MetricsPort: 21500}
	if tunnel.GetMetricsPort() != 21500 {
		t.Errorf("explicit port not honored: %d", tunnel.GetMetricsPort())
	}
}

func TestNormalizeTarget(t *testing.T) {
	cases := map[string]string{
		"localhost:3000":         "http://localhost:3000",
		"http://localhost:3000":  "http://localhost:3000",
		"https://localhost:3000": "https://localhost:3000",
		"10.0.0.5:8080":          "http://10.0.0.5:8080",
	}
	for in, want := range cases {
		if got := NormalizeTarget(in); got != want {
			t.Errorf("NormalizeTarget(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteTunnelConfig(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())

	tunnel := PersistentTunnel{
		Name:     "app",
		Target:   "localhost:3000",
		Hostname: "app.example.com",
		TunnelID: "tid-1",
	}
	if err := WriteTunnelConfig(&tunnel); err != nil {
		t.Fatalf("WriteTunnelConfig: %v", err)
	}

	data, err := os.ReadFile(tunnel.ConfigFilePath())
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	content := string(data)
	for _, want := range []string{"tunnel: tid-1", "hostname: app.example.com", "service: http://localhost:3000", "http_status:404"} {
		if !strings.Contains(content, want) {
			t.Errorf("artifact missing %q:\n%s", want, content)
		}
	}
}

func TestEphemeralConfigRoundTrip(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())

	path, err := WriteEphemeralConfig("tid-9", "/tmp/tid-9.json", "demo.example.com", "localhost:8080")
	if err != nil {
		t.Fatalf("WriteEphemeralConfig: %v", err)
	}
	if path != EphemeralConfigPath("tid-9") {
		t.Errorf("unexpected path %q", path)
	}

	hostname, target, ok := ParseEphemeralConfig("tid-9")
	if !ok {
		t.Fatal("ParseEphemeralConfig reported not ok")
	}
	if hostname != "demo.example.com" {
		t.Errorf("hostname = %q", hostname)
	}
	if target != "http://localhost:8080" {
		t.Errorf("target = %q", target)
	}
}

func TestParseEphemeralConfigTolerant(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())

	t.Run("missing file", func(t *testing.T) {
		if _, _, ok := ParseEphemeralConfig("no-such-id"); ok {
			t.Error("expected not ok for missing artifact")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		if err := os.WriteFile(EphemeralConfigPath("bad"), []byte("{{{not yaml"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, _, ok := ParseEphemeralConfig("bad"); ok {
			t.Error("expected not ok for malformed artifact")
		}
	})

	t.Run("no ingress rule", func(t *testing.T) {
		if err := os.WriteFile(EphemeralConfigPath("empty"), []byte("tunnel: empty\ningress:\n  - service: http_status:404\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, _, ok := ParseEphemeralConfig("empty"); ok {
			t.Error("expected not ok when only the catch-all rule exists")
		}
	})
}
