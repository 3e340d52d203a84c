package models

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// TunnelNamePrefix marks remote tunnel resources owned by this tool.
// Local short names map to "cftun-<short>" on the control plane.
const TunnelNamePrefix = "cftun-"

func RemoteTunnelName(shortName string) string {
	return TunnelNamePrefix + shortName
}

// TunnelLister is the slice of the control plane the reconciler needs.
type TunnelLister interface {
	ListTunnels(ctx context.Context, accountID string) ([]RemoteTunnel, error)
}

// Reconciler merges the desired-state ledger, daemon-observed status
// and remotely discovered tunnels into one per-account view.
type Reconciler struct {
	Daemon DaemonManager
	Remote TunnelLister

	// MigrationAccount is assigned to ledger entries written before
	// multi-account support. Defaults to the reconciled account.
	MigrationAccount string
}

func NewReconciler(daemon DaemonManager, remote TunnelLister) *Reconciler {
	return &Reconciler{Daemon: daemon, Remote: remote}
}

// Reconcile runs one pass for the given account. Entries are rebuilt
// from scratch; metrics history and health are carried over from the
// previous pass by tunnel name. A remote listing failure downgrades
// the pass to managed-only instead of failing it.
func (r *Reconciler) Reconcile(ctx context.Context, account *Account, previous []TunnelEntry) ([]TunnelEntry, error) {
	migrate := r.MigrationAccount
	if migrate == "" {
		migrate = account.Name
	}
	state, err := LoadAndMigrateState(migrate)
	if err != nil {
		return nil, err
	}

	prevByName := make(map[string]*TunnelEntry, len(previous))
	for i := range previous {
		prevByName[previous[i].Tunnel.Name] = &previous[i]
	}

	managed := state.TunnelsForAccount(account.Name)
	managedNames := make(map[string]bool, len(managed))
	entries := make([]TunnelEntry, 0, len(managed))

	for _, tunnel := range managed {
		managedNames[tunnel.Name] = true

		status := r.Daemon.Status(&tunnel)
		var metrics *TunnelMetrics
		if status == StatusRunning {
			if m := FetchMetrics(ctx, tunnel.MetricsURL()); m.Available {
				metrics = m
			}
		}

		entry := TunnelEntry{
			Tunnel:  tunnel,
			Kind:    KindManaged,
			Status:  status,
			Metrics: metrics,
		}
		if prev, ok := prevByName[tunnel.Name]; ok {
			entry.History = prev.History
			entry.Health = prev.Health
		}
		if metrics != nil {
			entry.History.Record(metrics.TotalRequests)
		}
		entries = append(entries, entry)
	}

	if r.Remote != nil {
		remote, err := r.Remote.ListTunnels(ctx, account.AccountID)
		if err != nil {
			log.Warn().Err(err).Str("account", account.Name).
				Msg("remote tunnel listing failed, skipping ephemeral discovery")
			return entries, nil
		}
		entries = append(entries, r.discoverEphemeral(account, remote, managedNames, prevByName)...)
	}

	return entries, nil
}

func (r *Reconciler) discoverEphemeral(account *Account, remote []RemoteTunnel, managedNames map[string]bool, prevByName map[string]*TunnelEntry) []TunnelEntry {
	var entries []TunnelEntry

	for _, rt := range remote {
		if rt.DeletedAt != nil {
			continue
		}
		if !strings.HasPrefix(rt.Name, TunnelNamePrefix) {
			continue
		}
		short := strings.TrimPrefix(rt.Name, TunnelNamePrefix)
		if managedNames[short] {
			continue
		}

		hostname, target, parsed := ParseEphemeralConfig(rt.ID)
		if !parsed {
			hostname = short
			target = "unknown"
		}

		// Artifact presence stands in for liveness here. It only
		// exists while a foreground run owns the tunnel, but nothing
		// corroborates that the process is still alive.
		status := StatusStopped
		if _, err := os.Stat(EphemeralConfigPath(rt.ID)); err == nil {
			status = StatusRunning
		}

		zoneID, zoneName := inferZone(account, hostname)

		entry := TunnelEntry{
			Tunnel: PersistentTunnel{
				Name:        short,
				AccountName: account.Name,
				Target:      target,
				ZoneID:      zoneID,
				ZoneName:    zoneName,
				Hostname:    hostname,
				TunnelID:    rt.ID,
			},
			Kind:   KindEphemeral,
			Status: status,
			Health: HealthUnknown,
		}
		if prev, ok := prevByName[short]; ok {
			entry.History = prev.History
			entry.Health = prev.Health
		}
		entries = append(entries, entry)
	}

	return entries
}

// inferZone matches the hostname against the account's cached zones by
// domain suffix.
func inferZone(account *Account, hostname string) (zoneID, zoneName string) {
	for _, zone := range account.Zones {
		if hostname == zone.Name || strings.HasSuffix(hostname, "."+zone.Name) {
			return zone.ID, zone.Name
		}
	}
	return "", ""
}
