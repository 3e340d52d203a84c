package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"cftun/models"
)

func promptLine(prompt string) (string, error) {
	fmt.Println(prompt)
	fmt.Print("> ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func confirm(prompt string) bool {
	answer, err := promptLine(prompt + " [y/N]")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Set up cftun with a Cloudflare account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !models.IsCloudflaredInstalled() {
				return fmt.Errorf("cloudflared is not installed, install it first:\n  brew install cloudflare/cloudflare/cloudflared")
			}

			var accountName string
			if _, err := os.Stat(models.GetConfigPath()); err == nil {
				cfg, err := models.LoadConfig()
				if err != nil {
					return err
				}

				fmt.Printf("cftun is already configured with %d account(s):\n", len(cfg.Accounts))
				for _, acct := range cfg.Accounts {
					marker := ""
					if acct.Name == cfg.SelectedAccount {
						marker = " (default)"
					}
					fmt.Printf("  - %s%s\n", acct.Name, marker)
				}

				choice, err := promptLine("\nWhat would you like to do?\n  [a] Add a new account\n  [r] Reinitialize (remove all accounts and start fresh)\n  [q] Quit")
				if err != nil {
					return err
				}
				switch strings.ToLower(choice) {
				case "a":
				case "r":
					if !confirm("This will remove all accounts and tunnels. Are you sure?") {
						fmt.Println("Cancelled.")
						return nil
					}
					if err := resetEverything(cmd.Context()); err != nil {
						return err
					}
					fmt.Println()
				default:
					fmt.Println("Cancelled.")
					return nil
				}

				accountName, err = promptLine("Enter a name for this account (e.g., 'work', 'personal'):")
				if err != nil {
					return err
				}
			} else {
				fmt.Println("Initializing cftun...")
				fmt.Println("✓ cloudflared found")
				var err error
				accountName, err = promptLine("\nEnter a name for this account (e.g., 'dev', 'work', 'personal'):")
				if err != nil {
					return err
				}
			}
			if accountName == "" {
				return fmt.Errorf("account name cannot be empty")
			}

			token, err := promptLine("\nEnter your Cloudflare API token:\n  Required permissions: Zone->Zone->Edit, Zone->DNS->Edit, Account->Cloudflare Tunnel->Edit")
			if err != nil {
				return err
			}
			if token == "" {
				return fmt.Errorf("API token cannot be empty")
			}

			fmt.Println("\nVerifying token and fetching zones...")
			client, err := models.NewCloudflareClient(token, "")
			if err != nil {
				return err
			}
			zones, accountID, err := client.ListZones(cmd.Context())
			if err != nil {
				return err
			}
			if len(zones) == 0 {
				return fmt.Errorf("no zones found for this API token")
			}

			fmt.Printf("✓ Found %d zone(s):\n", len(zones))
			for i, zone := range zones {
				fmt.Printf("  %d. %s (%s)\n", i+1, zone.Name, zone.ID)
			}
			fmt.Printf("\nSetting default zone to: %s (change with `cftun zones default <domain>`)\n", zones[0].Name)

			account := models.Account{
				Name:            accountName,
				APIToken:        token,
				AccountID:       accountID,
				DefaultZoneID:   zones[0].ID,
				DefaultZoneName: zones[0].Name,
				Zones:           zones,
			}

			cfg, err := models.LoadConfig()
			if err != nil {
				cfg = &models.Config{SelectedAccount: accountName}
			}
			if err := cfg.AddAccount(account); err != nil {
				return err
			}

			if len(cfg.Accounts) > 1 && cfg.SelectedAccount != accountName {
				if confirm(fmt.Sprintf("\nSet '%s' as the default account?", accountName)) {
					if err := cfg.SelectAccount(accountName); err != nil {
						return err
					}
					fmt.Printf("Default account set to '%s'\n", accountName)
				}
			}

			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Printf("\n✓ Account '%s' added to %s\n", accountName, models.GetConfigPath())
			fmt.Println("\nYou're ready! Try:")
			fmt.Println("  cftun                                 # open the dashboard")
			fmt.Println("  cftun add myapp localhost:3000 -s     # add and start a tunnel")
			fmt.Println("  cftun run localhost:3000              # ephemeral tunnel")
			return nil
		},
	}
}

func newZonesCmd(accountFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "List zones for the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, acct, err := loadAccount(*accountFlag)
			if err != nil {
				return err
			}

			fmt.Printf("Available zones for account '%s':\n", acct.Name)
			for _, zone := range acct.Zones {
				marker := ""
				if zone.ID == acct.DefaultZoneID {
					marker = " (default)"
				}
				fmt.Printf("  %s%s\n", zone.Name, marker)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "default <domain>",
		Short: "Set the default zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := args[0]

			cfg, acct, err := loadAccount(*accountFlag)
			if err != nil {
				return err
			}

			for _, zone := range acct.Zones {
				if zone.Name == domain {
					acct.DefaultZoneID = zone.ID
					acct.DefaultZoneName = zone.Name
					if err := cfg.Save(); err != nil {
						return err
					}
					fmt.Printf("Default zone set to: %s\n", domain)
					return nil
				}
			}
			return fmt.Errorf("zone '%s' not found, run `cftun zones` to see available zones", domain)
		},
	})
	return cmd
}

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage configured accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listAccounts()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listAccounts()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "select <name>",
		Aliases: []string{"default"},
		Short:   "Set the default account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := models.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.SelectAccount(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Printf("Default account set to: %s\n", args[0])
			return nil
		},
	})

	var yes bool
	remove := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an account and its tunnels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return removeAccount(cmd.Context(), args[0], yes)
		},
	}
	remove.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.AddCommand(remove)

	return cmd
}

func listAccounts() error {
	cfg, err := models.LoadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Accounts) == 0 {
		fmt.Println("No accounts configured.")
		fmt.Println("Run `cftun init` to add an account.")
		return nil
	}

	fmt.Println("Configured accounts:")
	for _, acct := range cfg.Accounts {
		marker := ""
		if acct.Name == cfg.SelectedAccount {
			marker = " (default)"
		}
		fmt.Printf("  %s - %d zones%s\n", acct.Name, len(acct.Zones), marker)
		for _, zone := range acct.Zones {
			zoneMarker := ""
			if zone.ID == acct.DefaultZoneID {
				zoneMarker = " (default)"
			}
			fmt.Printf("      - %s%s\n", zone.Name, zoneMarker)
		}
	}
	return nil
}

func removeAccount(ctx context.Context, name string, skipConfirm bool) error {
	cfg, err := models.LoadConfig()
	if err != nil {
		return err
	}
	if _, err := cfg.GetAccount(name); err != nil {
		return fmt.Errorf("account '%s' not found, configured accounts: %s", name, strings.Join(cfg.AccountNames(), ", "))
	}
	if len(cfg.Accounts) == 1 {
		return models.ErrCannotRemoveLast
	}

	state, err := models.LoadState()
	if err != nil {
		return err
	}
	tunnels := state.TunnelsForAccount(name)

	if !skipConfirm {
		if len(tunnels) > 0 {
			fmt.Printf("Account '%s' has %d tunnel(s). Removing the account will also delete these tunnels.\n", name, len(tunnels))
		}
		if !confirm(fmt.Sprintf("Are you sure you want to remove account '%s'?", name)) {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if len(tunnels) > 0 {
		acct, _ := cfg.GetAccount(name)
		client, err := models.NewClientForAccount(acct)
		if err != nil {
			return err
		}
		daemon := models.DetectDaemonManager()

		for _, tunnel := range tunnels {
			fmt.Printf("Removing tunnel '%s'... ", tunnel.Name)
			teardownTunnel(ctx, daemon, client, &tunnel)
			state.Remove(tunnel.Name, name)
			fmt.Println("done")
		}
		if err := state.Save(); err != nil {
			return err
		}
	}

	if err := cfg.RemoveAccount(name); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Printf("✓ Account '%s' removed.\n", name)
	return nil
}

// teardownTunnel removes everything belonging to one tunnel, best
// effort. Each failure is logged and the rest proceeds.
func teardownTunnel(ctx context.Context, daemon models.DaemonManager, client *models.CloudflareClient, tunnel *models.PersistentTunnel) {
	if err := daemon.Stop(tunnel.Name, tunnel.AccountName); err != nil {
		log.Warn().Err(err).Str("tunnel", tunnel.Name).Msg("failed to stop tunnel")
	}
	if err := daemon.Uninstall(tunnel.Name, tunnel.AccountName); err != nil {
		log.Warn().Err(err).Str("tunnel", tunnel.Name).Msg("failed to uninstall service")
	}
	if client != nil {
		if err := client.DeleteDNSRecord(ctx, tunnel.ZoneID, tunnel.Hostname); err != nil {
			log.Warn().Err(err).Str("tunnel", tunnel.Name).Msg("failed to delete DNS record")
		}
		if err := client.DeleteTunnel(ctx, tunnel.TunnelID); err != nil {
			log.Warn().Err(err).Str("tunnel", tunnel.Name).Msg("failed to delete remote tunnel")
		}
	}
	for _, path := range []string{tunnel.CredentialsPath(), tunnel.ConfigFilePath(), tunnel.LogPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove file")
		}
	}
}

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove all tunnels, accounts and configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(models.GetConfigPath()); os.IsNotExist(err) {
				fmt.Println("cftun is not configured. Nothing to reset.")
				return nil
			}

			if !yes {
				fmt.Println("This will:")
				fmt.Println("  - Stop all running tunnels")
				fmt.Println("  - Remove all tunnel configurations")
				fmt.Println("  - Delete tunnels from Cloudflare")
				fmt.Println("  - Remove cftun configuration")
				if !confirm("\nAre you sure?") {
					fmt.Println("Cancelled.")
					return nil
				}
			}

			fmt.Println("Resetting cftun...")
			return resetEverything(cmd.Context())
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func resetEverything(ctx context.Context) error {
	cfg, _ := models.LoadConfig()

	state, err := models.LoadState()
	if err != nil {
		state = &models.TunnelState{}
	}

	daemon := models.DetectDaemonManager()
	for i := range state.Tunnels {
		tunnel := state.Tunnels[i]
		fmt.Printf("Removing tunnel '%s'... ", tunnel.Name)

		if tunnel.AccountName == "" && cfg != nil {
			tunnel.AccountName = cfg.SelectedAccount
		}

		var client *models.CloudflareClient
		if cfg != nil {
			if acct, err := cfg.GetAccount(tunnel.AccountName); err == nil {
				client, _ = models.NewClientForAccount(acct)
			}
		}

		teardownTunnel(ctx, daemon, client, &tunnel)
		fmt.Println("done")
	}

	for _, path := range []string{models.GetTunnelsPath(), models.GetConfigPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove file")
		}
	}

	// Only removes them when empty
	configDir := models.GetConfigDir()
	os.Remove(filepath.Join(configDir, models.TunnelConfigsDir))
	os.Remove(filepath.Join(configDir, models.LogsDir))

	fmt.Println("\n✓ cftun has been reset.")
	fmt.Println("Run `cftun init` to set up with new credentials.")
	return nil
}
