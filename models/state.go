package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	TunnelsFile      = "tunnels.json"
	TunnelConfigsDir = "tunnel-configs"
	LogsDir          = "logs"
)

// PersistentTunnel is one managed tunnel in the desired-state ledger.
// Tunnels are keyed by (Name, AccountName); AccountName is empty on
// documents written before multi-account support.
type PersistentTunnel struct {
	Name        string `json:"name"`
	AccountName string `json:"account_name"`
	Target      string `json:"target"`
	ZoneID      string `json:"zone_id"`
	ZoneName    string `json:"zone_name"`
	Hostname    string `json:"hostname"`
	TunnelID    string `json:"tunnel_id"`
	Enabled     bool   `json:"enabled"`
	AutoStart   bool   `json:"auto_start"`
	MetricsPort int    `json:"metrics_port,omitempty"`
}

func (t *PersistentTunnel) CredentialsPath() string {
	return filepath.Join(GetConfigDir(), t.TunnelID+".json")
}

func (t *PersistentTunnel) ConfigFilePath() string {
	return filepath.Join(GetConfigDir(), TunnelConfigsDir, t.Name+".yml")
}

func (t *PersistentTunnel) LogPath() string {
	return filepath.Join(GetConfigDir(), LogsDir, t.Name+".log")
}

// GetMetricsPort returns the stored metrics port, or derives a stable
// one from the tunnel name in the 21000-21999 range.
func (t *PersistentTunnel) GetMetricsPort() int {
	if t.MetricsPort != 0 {
		return t.MetricsPort
	}
	return DeriveMetricsPort(t.Name)
}

func (t *PersistentTunnel) MetricsURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/metrics", t.GetMetricsPort())
}

// DeriveMetricsPort hashes a tunnel name into the 21000-21999 port
// range so each tunnel gets a stable metrics endpoint without any
// coordination.
func DeriveMetricsPort(name string) int {
	var hash uint32
	for _, b := range []byte(name) {
		hash = (hash + uint32(b)) * 31
	}
	return 21000 + int(hash%1000)
}

type TunnelState struct {
	Tunnels []PersistentTunnel `json:"tunnels"`
}

func GetTunnelsPath() string {
	return filepath.Join(GetConfigDir(), TunnelsFile)
}

func LoadState() (*TunnelState, error) {
	statePath := GetTunnelsPath()

	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		return &TunnelState{}, nil
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state TunnelState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}

// LoadAndMigrateState loads the ledger and assigns any tunnels written
// before multi-account support to defaultAccount, persisting the
// result so the migration happens once.
func LoadAndMigrateState(defaultAccount string) (*TunnelState, error) {
	state, err := LoadState()
	if err != nil {
		return nil, err
	}

	migrated := false
	for i := range state.Tunnels {
		if state.Tunnels[i].AccountName == "" && defaultAccount != "" {
			state.Tunnels[i].AccountName = defaultAccount
			migrated = true
		}
	}
	if migrated {
		if err := state.Save(); err != nil {
			return nil, fmt.Errorf("failed to persist migrated state: %w", err)
		}
	}

	return state, nil
}

func (s *TunnelState) Save() error {
	if err := os.MkdirAll(GetConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(GetTunnelsPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

func (s *TunnelState) Add(tunnel PersistentTunnel) {
	s.Tunnels = append(s.Tunnels, tunnel)
}

// AddUnique rejects a duplicate (name, account_name) key instead of
// appending a second entry. The same name under a different account is
// fine.
func (s *TunnelState) AddUnique(tunnel PersistentTunnel) error {
	if _, exists := s.Find(tunnel.Name, tunnel.AccountName); exists {
		return fmt.Errorf("tunnel '%s' already exists for account '%s'", tunnel.Name, tunnel.AccountName)
	}
	s.Add(tunnel)
	return nil
}

func (s *TunnelState) Find(name, account string) (*PersistentTunnel, bool) {
	for i := range s.Tunnels {
		if s.Tunnels[i].Name == name && s.Tunnels[i].AccountName == account {
			return &s.Tunnels[i], true
		}
	}
	return nil, false
}

// FindAny matches by name alone, preferring the given account. Used by
// CLI commands where the account flag is optional.
func (s *TunnelState) FindAny(name, preferredAccount string) (*PersistentTunnel, bool) {
	if t, ok := s.Find(name, preferredAccount); ok {
		return t, true
	}
	for i := range s.Tunnels {
		if s.Tunnels[i].Name == name {
			return &s.Tunnels[i], true
		}
	}
	return nil, false
}

func (s *TunnelState) TunnelsForAccount(account string) []PersistentTunnel {
	var out []PersistentTunnel
	for _, t := range s.Tunnels {
		if t.AccountName == account {
			out = append(out, t)
		}
	}
	return out
}

func (s *TunnelState) Remove(name, account string) bool {
	for i := range s.Tunnels {
		if s.Tunnels[i].Name == name && s.Tunnels[i].AccountName == account {
			s.Tunnels = append(s.Tunnels[:i], s.Tunnels[i+1:]...)
			return true
		}
	}
	return false
}

// TunnelConfigFile is the cloudflared YAML config artifact.
type TunnelConfigFile struct {
	Tunnel          string        `yaml:"tunnel"`
	CredentialsFile string        `yaml:"credentials-file"`
	Ingress         []IngressRule `yaml:"ingress"`
	LogFile         string        `yaml:"logfile,omitempty"`
}

type IngressRule struct {
	Hostname string `yaml:"hostname,omitempty"`
	Service  string `yaml:"service,omitempty"`
}

// NormalizeTarget prefixes schemeless targets with http://.
func NormalizeTarget(target string) string {
	if strings.Contains(target, "://") {
		return target
	}
	return "http://" + target
}

func BuildTunnelConfig(t *PersistentTunnel) *TunnelConfigFile {
	return &TunnelConfigFile{
		Tunnel:          t.TunnelID,
		CredentialsFile: t.CredentialsPath(),
		LogFile:         t.LogPath(),
		Ingress: []IngressRule{
			{Hostname: t.Hostname, Service: NormalizeTarget(t.Target)},
			{Service: "http_status:404"},
		},
	}
}

// WriteTunnelConfig renders the ingress artifact for a managed tunnel.
func WriteTunnelConfig(t *PersistentTunnel) error {
	configsDir := filepath.Join(GetConfigDir(), TunnelConfigsDir)
	if err := os.MkdirAll(configsDir, 0755); err != nil {
		return fmt.Errorf("failed to create tunnel-configs directory: %w", err)
	}

	data, err := yaml.Marshal(BuildTunnelConfig(t))
	if err != nil {
		return fmt.Errorf("failed to marshal tunnel config: %w", err)
	}

	if err := os.WriteFile(t.ConfigFilePath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write tunnel config: %w", err)
	}

	return nil
}

func EnsureLogsDir() (string, error) {
	logsDir := filepath.Join(GetConfigDir(), LogsDir)
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}
	return logsDir, nil
}

// EphemeralConfigPath is where the ingress artifact for a foreground
// (unmanaged) tunnel lives. Its presence doubles as the liveness
// heuristic for ephemeral tunnels during reconciliation.
func EphemeralConfigPath(tunnelID string) string {
	return filepath.Join(GetConfigDir(), "tunnel-"+tunnelID+".yml")
}

func WriteEphemeralConfig(tunnelID, credentialsPath, hostname, target string) (string, error) {
	if err := os.MkdirAll(GetConfigDir(), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &TunnelConfigFile{
		Tunnel:          tunnelID,
		CredentialsFile: credentialsPath,
		Ingress: []IngressRule{
			{Hostname: hostname, Service: NormalizeTarget(target)},
			{Service: "http_status:404"},
		},
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tunnel config: %w", err)
	}

	path := EphemeralConfigPath(tunnelID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write tunnel config: %w", err)
	}

	return path, nil
}

// ParseEphemeralConfig recovers hostname and target from an ephemeral
// artifact, best effort. Missing or malformed files just report not-ok.
func ParseEphemeralConfig(tunnelID string) (hostname, target string, ok bool) {
	data, err := os.ReadFile(EphemeralConfigPath(tunnelID))
	if err != nil {
		return "", "", false
	}

	var config TunnelConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return "", "", false
	}

	for _, rule := range config.Ingress {
		if rule.Hostname != "" && !strings.HasPrefix(rule.Service, "http_status:") {
			return rule.Hostname, rule.Service, true
		}
	}
	return "", "", false
}
