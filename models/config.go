package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultConfigDir  = ".cftun"
	DefaultConfigFile = "config.json"

	// EnvConfigDir overrides the config directory location.
	EnvConfigDir = "CFTUN_DIR"

	// DefaultAccountName is assigned when migrating a legacy
	// single-account config document.
	DefaultAccountName = "default"
)

type ZoneInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Account struct {
	Name            string     `json:"name"`
	APIToken        string     `json:"api_token"`
	AccountID       string     `json:"account_id"`
	DefaultZoneID   string     `json:"default_zone_id"`
	DefaultZoneName string     `json:"default_zone_name"`
	Zones           []ZoneInfo `json:"zones"`
}

type Config struct {
	SelectedAccount string    `json:"selected_account"`
	Accounts        []Account `json:"accounts"`
}

// legacyConfig is the old single-account document layout, kept only so
// existing installs keep working. It is migrated on first load.
type legacyConfig struct {
	APIToken        string     `json:"api_token"`
	AccountID       string     `json:"account_id"`
	DefaultZoneID   string     `json:"default_zone_id"`
	DefaultZoneName string     `json:"default_zone_name"`
	Zones           []ZoneInfo `json:"zones"`
}

func GetConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigDir
	}
	return filepath.Join(home, DefaultConfigDir)
}

func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), DefaultConfigFile)
}

// decodeConfig tries the current schema, then the legacy one. The
// second return reports that the legacy decoder was used and the
// result needs persisting. An accounts key marks the current schema
// even when the list is empty.
func decodeConfig(data []byte) (*Config, bool, error) {
	var probe struct {
		Accounts *[]Account `json:"accounts"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.Accounts != nil {
		var config Config
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, false, fmt.Errorf("failed to parse config file: %w", err)
		}
		return &config, false, nil
	}

	var legacy legacyConfig
	if err := json.Unmarshal(data, &legacy); err == nil && legacy.APIToken != "" {
		return &Config{
			SelectedAccount: DefaultAccountName,
			Accounts: []Account{{
				Name:            DefaultAccountName,
				APIToken:        legacy.APIToken,
				AccountID:       legacy.AccountID,
				DefaultZoneID:   legacy.DefaultZoneID,
				DefaultZoneName: legacy.DefaultZoneName,
				Zones:           legacy.Zones,
			}},
		}, true, nil
	}

	return nil, false, fmt.Errorf("unrecognized config format in %s", GetConfigPath())
}

// LoadConfig reads the config document, migrating a legacy
// single-account layout to the multi-account one. Migrations are
// persisted immediately so the old layout is only ever decoded once.
func LoadConfig() (*Config, error) {
	configPath := GetConfigPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, ErrConfigMissing
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, migrated, err := decodeConfig(data)
	if err != nil {
		return nil, err
	}

	if migrated {
		if err := config.Save(); err != nil {
			return nil, fmt.Errorf("failed to persist migrated config: %w", err)
		}
	}

	return config, nil
}

func (c *Config) Save() error {
	configDir := GetConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetAccount returns the named account, or the selected one when name
// is empty. The pointer aliases the Accounts slice so callers can
// mutate the account in place before saving.
func (c *Config) GetAccount(name string) (*Account, error) {
	if name == "" {
		name = c.SelectedAccount
	}
	if name == "" && len(c.Accounts) > 0 {
		return &c.Accounts[0], nil
	}
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, &NotFoundError{Kind: "account", Name: name}
}

func (c *Config) AddAccount(account Account) error {
	for i := range c.Accounts {
		if c.Accounts[i].Name == account.Name {
			return fmt.Errorf("account '%s' already exists", account.Name)
		}
	}
	c.Accounts = append(c.Accounts, account)
	if c.SelectedAccount == "" {
		c.SelectedAccount = account.Name
	}
	return nil
}

func (c *Config) RemoveAccount(name string) error {
	if len(c.Accounts) <= 1 {
		return ErrCannotRemoveLast
	}
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			c.Accounts = append(c.Accounts[:i], c.Accounts[i+1:]...)
			if c.SelectedAccount == name {
				c.SelectedAccount = c.Accounts[0].Name
			}
			return nil
		}
	}
	return &NotFoundError{Kind: "account", Name: name}
}

func (c *Config) SelectAccount(name string) error {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			c.SelectedAccount = name
			return nil
		}
	}
	return &NotFoundError{Kind: "account", Name: name}
}

// AccountNames returns account names in document order.
func (c *Config) AccountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for i := range c.Accounts {
		names = append(names, c.Accounts[i].Name)
	}
	return names
}
