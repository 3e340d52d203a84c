package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cftun/models"
	"cftun/views"
)

func newRootCmd() *cobra.Command {
	var accountFlag string

	root := &cobra.Command{
		Use:           "cftun",
		Short:         "Manage Cloudflare tunnels as host services",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return views.RunDashboard(accountFlag)
		},
	}

	root.PersistentFlags().StringVarP(&accountFlag, "account", "a", "", "account to operate on (default: selected account)")

	root.AddCommand(
		newInitCmd(),
		newAddCmd(&accountFlag),
		newRunCmd(&accountFlag),
		newStartCmd(&accountFlag),
		newStopCmd(&accountFlag),
		newRestartCmd(&accountFlag),
		newLogsCmd(&accountFlag),
		newListCmd(&accountFlag),
		newDeleteCmd(&accountFlag),
		newZonesCmd(&accountFlag),
		newAccountCmd(),
		newResetCmd(),
	)
	return root
}

func loadAccount(accountFlag string) (*models.Config, *models.Account, error) {
	cfg, err := models.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	acct, err := cfg.GetAccount(accountFlag)
	if err != nil {
		return nil, nil, err
	}
	return cfg, acct, nil
}

// findTunnel resolves a tunnel by name, preferring the given account
// but falling back to any account when the flag was not set, and
// returns the account that owns it.
func findTunnel(cfg *models.Config, acct *models.Account, state *models.TunnelState, name string) (*models.PersistentTunnel, *models.Account, error) {
	tunnel, ok := state.FindAny(name, acct.Name)
	if !ok {
		return nil, nil, fmt.Errorf("tunnel '%s' not found, run `cftun list` to see available tunnels", name)
	}
	if tunnel.AccountName == acct.Name {
		return tunnel, acct, nil
	}
	owner, err := cfg.GetAccount(tunnel.AccountName)
	if err != nil {
		return nil, nil, err
	}
	return tunnel, owner, nil
}

func resolveZone(acct *models.Account, zoneFlag string) (zoneID, zoneName string, err error) {
	if zoneFlag == "" {
		return acct.DefaultZoneID, acct.DefaultZoneName, nil
	}
	for _, zone := range acct.Zones {
		if zone.Name == zoneFlag {
			return zone.ID, zone.Name, nil
		}
	}
	return "", "", fmt.Errorf("zone '%s' not found, run `cftun zones` to see available zones", zoneFlag)
}

// ensureRemoteTunnel finds or creates the remote tunnel resource for a
// short name and verifies the credentials file is usable.
func ensureRemoteTunnel(ctx context.Context, client *models.CloudflareClient, shortName string) (*models.RemoteTunnel, error) {
	remoteName := models.RemoteTunnelName(shortName)

	tunnel, err := client.GetTunnelByName(ctx, remoteName)
	if err != nil {
		return nil, err
	}
	if tunnel != nil {
		credsPath := models.CredentialsPathFor(tunnel.ID)
		if _, err := os.Stat(credsPath); os.IsNotExist(err) {
			return nil, fmt.Errorf(
				"credentials file not found: %s\nthis tunnel may have been created elsewhere, delete it with `cftun delete %s` and try again",
				credsPath, shortName)
		}
		fmt.Printf("✓ Using existing tunnel: %s\n", tunnel.Name)
		return tunnel, nil
	}

	fmt.Printf("Creating tunnel: %s\n", remoteName)
	return client.CreateTunnel(ctx, remoteName)
}

func newAddCmd(accountFlag *string) *cobra.Command {
	var zoneFlag string
	var startFlag bool

	cmd := &cobra.Command{
		Use:   "add <name> <target>",
		Short: "Add a persistent tunnel managed by the service manager",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, target := args[0], args[1]
			ctx := cmd.Context()

			_, acct, err := loadAccount(*accountFlag)
			if err != nil {
				return err
			}

			state, err := models.LoadState()
			if err != nil {
				return err
			}
			if _, exists := state.Find(name, acct.Name); exists {
				return fmt.Errorf("tunnel '%s' already exists for account '%s', use `cftun delete %s` first", name, acct.Name, name)
			}

			zoneID, zoneName, err := resolveZone(acct, zoneFlag)
			if err != nil {
				return err
			}

			client, err := models.NewClientForAccount(acct)
			if err != nil {
				return err
			}

			hostname := name + "." + zoneName
			fmt.Printf("Adding tunnel: %s -> %s\n", hostname, target)

			remote, err := ensureRemoteTunnel(ctx, client, name)
			if err != nil {
				return err
			}

			fmt.Println("Configuring DNS record...")
			if err := client.EnsureDNSRecord(ctx, zoneID, hostname, remote.ID); err != nil {
				return err
			}
			fmt.Printf("✓ DNS configured: %s\n", hostname)

			tunnel := models.PersistentTunnel{
				Name:        name,
				AccountName: acct.Name,
				Target:      target,
				ZoneID:      zoneID,
				ZoneName:    zoneName,
				Hostname:    hostname,
				TunnelID:    remote.ID,
				Enabled:     startFlag,
			}

			daemon := models.DetectDaemonManager()
			if err := daemon.Install(&tunnel); err != nil {
				return err
			}
			fmt.Println("✓ Service installed")

			state.Add(tunnel)
			if err := state.Save(); err != nil {
				return err
			}

			if startFlag {
				if err := daemon.Start(name, acct.Name); err != nil {
					return err
				}
				fmt.Printf("✓ Tunnel started\n\nTunnel running: https://%s\n", hostname)
			} else {
				fmt.Printf("\nTunnel added. Start with: cftun start %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&zoneFlag, "zone", "z", "", "zone to create the hostname in (default: account default zone)")
	cmd.Flags().BoolVarP(&startFlag, "start", "s", false, "start the tunnel immediately")
	return cmd
}

func newRunCmd(accountFlag *string) *cobra.Command {
	var zoneFlag string

	cmd := &cobra.Command{
		Use:   "run [name] <target>",
		Short: "Run an ephemeral foreground tunnel, cleaned up on exit",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name, target string
			if len(args) == 2 {
				name, target = args[0], args[1]
			} else {
				target = args[0]
			}

			_, acct, err := loadAccount(*accountFlag)
			if err != nil {
				return err
			}
			zoneID, zoneName, err := resolveZone(acct, zoneFlag)
			if err != nil {
				return err
			}

			subdomain := name
			switch {
			case subdomain == "":
				subdomain = "cftun-" + uuid.NewString()[:8]
			case strings.Contains(subdomain, "."):
				// Full hostname given, strip the zone suffix if present
				subdomain = strings.TrimSuffix(subdomain, "."+zoneName)
			}
			hostname := subdomain + "." + zoneName

			client, err := models.NewClientForAccount(acct)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Setting up tunnel: %s -> %s\n", hostname, target)
			remote, err := ensureRemoteTunnel(ctx, client, subdomain)
			if err != nil {
				return err
			}

			fmt.Println("Configuring DNS record...")
			if err := client.EnsureDNSRecord(ctx, zoneID, hostname, remote.ID); err != nil {
				return err
			}
			fmt.Printf("✓ DNS configured: %s\n", hostname)

			fmt.Println("\nStarting tunnel (Ctrl+C to stop)...")
			err = models.RunEphemeral(ctx, models.EphemeralSpec{
				TunnelID:        remote.ID,
				CredentialsPath: models.CredentialsPathFor(remote.ID),
				Hostname:        hostname,
				Target:          target,
			}, os.Stdout)
			if err != nil {
				return err
			}

			// The dashboard can import a running ephemeral tunnel into
			// managed state; keep the remote resources in that case.
			state, err := models.LoadState()
			if err == nil {
				for _, t := range state.Tunnels {
					if t.TunnelID == remote.ID {
						fmt.Println("\nTunnel was imported as managed, keeping resources.")
						return nil
					}
				}
			}

			fmt.Println("\nCleaning up...")
			cleanupCtx := context.Background()
			if err := client.DeleteDNSRecord(cleanupCtx, zoneID, hostname); err != nil {
				log.Warn().Err(err).Msg("failed to delete DNS record")
			} else {
				fmt.Printf("✓ Removed DNS record: %s\n", hostname)
			}
			if err := client.DeleteTunnel(cleanupCtx, remote.ID); err != nil {
				log.Warn().Err(err).Msg("failed to delete tunnel")
			} else {
				fmt.Printf("✓ Removed tunnel: %s\n", remote.Name)
			}
			if err := os.Remove(models.CredentialsPathFor(remote.ID)); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Msg("failed to delete credentials file")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&zoneFlag, "zone", "z", "", "zone to create the hostname in (default: account default zone)")
	return cmd
}

func newStartCmd(accountFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start <name>",
		Short: "Start a managed tunnel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := cmd.Context()

			cfg, acct, err := loadAccount(*accountFlag)
			if err != nil {
				return err
			}
			state, err := models.LoadState()
			if err != nil {
				return err
			}
			tunnel, owner, err := findTunnel(cfg, acct, state, name)
			if err != nil {
				return err
			}

			client, err := models.NewClientForAccount(owner)
			if err != nil {
				return err
			}
			// Recreate the DNS record if it was removed manually
			if err := client.EnsureDNSRecord(ctx, tunnel.ZoneID, tunnel.Hostname, tunnel.TunnelID); err != nil {
				return err
			}

			daemon := models.DetectDaemonManager()
			if err := daemon.Install(tunnel); err != nil {
				return err
			}
			if err := daemon.Start(name, tunnel.AccountName); err != nil {
				return err
			}

			tunnel.Enabled = true
			if err := state.Save(); err != nil {
				return err
			}

			fmt.Printf("✓ Started tunnel: %s\n  https://%s\n", name, tunnel.Hostname)
			return nil
		},
	}
}

func newStopCmd(accountFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a managed tunnel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			cfg, acct, err := loadAccount(*accountFlag)
			if err != nil {
				return err
			}
			state, err := models.LoadState()
			if err != nil {
				return err
			}
			tunnel, _, err := findTunnel(cfg, acct, state, name)
			if err != nil {
				return err
			}

			daemon := models.DetectDaemonManager()
			if err := daemon.Stop(name, tunnel.AccountName); err != nil {
				return err
			}

			tunnel.Enabled = false
			if err := state.Save(); err != nil {
				return err
			}

			fmt.Printf("✓ Stopped tunnel: %s\n  %s\n", name, tunnel.Hostname)
			return nil
		},
	}
}

func newRestartCmd(accountFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Restart a managed tunnel, regenerating its service definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx := cmd.Context()

			cfg, acct, err := loadAccount(*accountFlag)
			if err != nil {
				return err
			}
			state, err := models.LoadState()
			if err != nil {
				return err
			}
			tunnel, owner, err := findTunnel(cfg, acct, state, name)
			if err != nil {
				return err
			}

			fmt.Printf("Restarting tunnel: %s\n", name)

			daemon := models.DetectDaemonManager()
			if err := daemon.Stop(name, tunnel.AccountName); err != nil {
				log.Warn().Err(err).Msg("stop before restart failed")
			}

			client, err := models.NewClientForAccount(owner)
			if err != nil {
				return err
			}
			if err := client.EnsureDNSRecord(ctx, tunnel.ZoneID, tunnel.Hostname, tunnel.TunnelID); err != nil {
				return err
			}

			if err := daemon.Install(tunnel); err != nil {
				return err
			}
			if err := daemon.Start(name, tunnel.AccountName); err != nil {
				return err
			}

			tunnel.Enabled = true
			if err := state.Save(); err != nil {
				return err
			}

			fmt.Printf("✓ Restarted tunnel: %s\n  https://%s\n", name, tunnel.Hostname)
			return nil
		},
	}
}

func newLogsCmd(accountFlag *string) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs <name>",
		Short: "Show a tunnel's log output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			cfg, acct, err := loadAccount(*accountFlag)
			if err != nil {
				return err
			}
			state, err := models.LoadState()
			if err != nil {
				return err
			}
			tunnel, _, err := findTunnel(cfg, acct, state, name)
			if err != nil {
				return err
			}

			if _, err := os.Stat(tunnel.LogPath()); os.IsNotExist(err) {
				fmt.Printf("No logs yet for tunnel '%s'\n", name)
				return nil
			}

			if follow {
				return tailFollow(tunnel.LogPath(), lines)
			}

			logLines, err := models.ReadLogTail(tunnel, lines)
			if err != nil {
				return err
			}
			for _, line := range logLines {
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow the log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	return cmd
}

func newListCmd(accountFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List managed tunnels and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, acct, err := loadAccount(*accountFlag)
			if err != nil {
				return err
			}
			state, err := models.LoadAndMigrateState(acct.Name)
			if err != nil {
				return err
			}

			tunnels := state.TunnelsForAccount(acct.Name)
			if len(tunnels) == 0 {
				fmt.Printf("No tunnels configured for account '%s'.\n", acct.Name)
				fmt.Println("Add one with: cftun add <name> <target>")
				return nil
			}

			daemon := models.DetectDaemonManager()
			fmt.Printf("Tunnels for account '%s':\n", acct.Name)
			for i := range tunnels {
				status := daemon.Status(&tunnels[i])
				fmt.Printf("  %s %-12s %s -> %s (%s)\n",
					status.Symbol(), tunnels[i].Name, tunnels[i].Hostname, tunnels[i].Target, status)
			}
			return nil
		},
	}
}

func newDeleteCmd(accountFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a tunnel and its remote resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Accept the remote-resource name too
			name := strings.TrimPrefix(args[0], models.TunnelNamePrefix)
			ctx := cmd.Context()

			cfg, acct, err := loadAccount(*accountFlag)
			if err != nil {
				return err
			}

			state, err := models.LoadState()
			if err != nil {
				return err
			}

			tunnel, managed := state.FindAny(name, acct.Name)
			owner := acct
			if managed && tunnel.AccountName != acct.Name {
				if owner, err = cfg.GetAccount(tunnel.AccountName); err != nil {
					return err
				}
			}
			client, err := models.NewClientForAccount(owner)
			if err != nil {
				return err
			}

			if !managed {
				// Possibly an ephemeral leftover from `cftun run`
				remote, err := client.GetTunnelByName(ctx, models.RemoteTunnelName(name))
				if err != nil {
					return err
				}
				if remote == nil {
					fmt.Printf("Tunnel '%s' not found for account '%s'.\n", name, acct.Name)
					return nil
				}
				if err := os.Remove(models.CredentialsPathFor(remote.ID)); err != nil && !os.IsNotExist(err) {
					log.Warn().Err(err).Msg("failed to remove credentials file")
				}
				if err := client.DeleteTunnel(ctx, remote.ID); err != nil {
					return err
				}
				fmt.Printf("✓ Deleted tunnel: %s\n", remote.Name)
				return nil
			}

			removed := *tunnel
			daemon := models.DetectDaemonManager()
			if err := daemon.Stop(name, removed.AccountName); err != nil {
				log.Warn().Err(err).Msg("failed to stop tunnel")
			}
			if err := daemon.Uninstall(name, removed.AccountName); err != nil {
				log.Warn().Err(err).Msg("failed to uninstall service")
			}

			state.Remove(name, removed.AccountName)

			if err := client.DeleteDNSRecord(ctx, removed.ZoneID, removed.Hostname); err != nil {
				log.Warn().Err(err).Msg("failed to delete DNS record")
			} else {
				fmt.Println("✓ Deleted DNS record")
			}
			if err := client.DeleteTunnel(ctx, removed.TunnelID); err != nil {
				log.Warn().Err(err).Msg("failed to delete remote tunnel")
			} else {
				fmt.Println("✓ Deleted remote tunnel")
			}

			for _, path := range []string{removed.CredentialsPath(), removed.ConfigFilePath(), removed.LogPath()} {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					log.Warn().Err(err).Str("path", path).Msg("failed to remove file")
				}
			}

			if err := state.Save(); err != nil {
				return err
			}
			fmt.Printf("✓ Deleted tunnel: %s\n", name)
			return nil
		},
	}
}

// tailFollow hands the terminal to tail -f, matching what users expect
// from log following.
func tailFollow(path string, lines int) error {
	cmd := exec.Command("tail", "-f", "-n", strconv.Itoa(lines), path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to tail log file: %w", err)
	}
	return nil
}
