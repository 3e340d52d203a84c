package models

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudflare/cloudflare-go"
)

// TunnelDNSSuffix is the CNAME target domain for tunnel routes.
const TunnelDNSSuffix = ".cfargotunnel.com"

// RemoteTunnel is a cfd_tunnel resource as seen by the API.
type RemoteTunnel struct {
	ID        string
	Name      string
	DeletedAt *time.Time
}

// TunnelCredentials is the credentials file format cloudflared expects.
type TunnelCredentials struct {
	AccountTag   string `json:"AccountTag"`
	TunnelID     string `json:"TunnelID"`
	TunnelSecret string `json:"TunnelSecret"`
}

// CloudflareClient wraps the Cloudflare API for one account.
type CloudflareClient struct {
	api       *cloudflare.API
	accountID string
}

func NewCloudflareClient(apiToken, accountID string, opts ...cloudflare.Option) (*CloudflareClient, error) {
	if apiToken == "" {
		return nil, fmt.Errorf("cloudflare API token is required")
	}

	api, err := cloudflare.NewWithAPIToken(apiToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloudflare API client: %w", err)
	}

	return &CloudflareClient{api: api, accountID: accountID}, nil
}

func NewClientForAccount(account *Account, opts ...cloudflare.Option) (*CloudflareClient, error) {
	return NewCloudflareClient(account.APIToken, account.AccountID, opts...)
}

func (c *CloudflareClient) AccountID() string {
	return c.accountID
}

// ListZones returns the zones this token can see, and the account ID
// they belong to. Used during setup to validate the token and discover
// the account.
func (c *CloudflareClient) ListZones(ctx context.Context) ([]ZoneInfo, string, error) {
	zones, err := c.api.ListZones(ctx)
	if err != nil {
		return nil, "", &RemoteAPIError{Operation: "list zones", Err: err}
	}

	var accountID string
	infos := make([]ZoneInfo, 0, len(zones))
	for _, zone := range zones {
		infos = append(infos, ZoneInfo{ID: zone.ID, Name: zone.Name})
		if accountID == "" {
			accountID = zone.Account.ID
		}
	}
	return infos, accountID, nil
}

// ListTunnels returns all tunnels on the account, including recently
// soft-deleted ones. Callers filter on DeletedAt.
func (c *CloudflareClient) ListTunnels(ctx context.Context, accountID string) ([]RemoteTunnel, error) {
	if accountID == "" {
		accountID = c.accountID
	}
	rc := cloudflare.AccountIdentifier(accountID)

	tunnels, _, err := c.api.ListTunnels(ctx, rc, cloudflare.TunnelListParams{})
	if err != nil {
		return nil, &RemoteAPIError{Operation: "list tunnels", Err: err}
	}

	out := make([]RemoteTunnel, 0, len(tunnels))
	for _, t := range tunnels {
		out = append(out, RemoteTunnel{ID: t.ID, Name: t.Name, DeletedAt: t.DeletedAt})
	}
	return out, nil
}

// GetTunnelByName finds a live tunnel by its full remote name, or nil.
func (c *CloudflareClient) GetTunnelByName(ctx context.Context, name string) (*RemoteTunnel, error) {
	rc := cloudflare.AccountIdentifier(c.accountID)

	tunnels, _, err := c.api.ListTunnels(ctx, rc, cloudflare.TunnelListParams{
		Name:      name,
		IsDeleted: cloudflare.BoolPtr(false),
	})
	if err != nil {
		return nil, &RemoteAPIError{Operation: "find tunnel", Err: err}
	}

	for _, t := range tunnels {
		if t.Name == name {
			return &RemoteTunnel{ID: t.ID, Name: t.Name, DeletedAt: t.DeletedAt}, nil
		}
	}
	return nil, nil
}

// CreateTunnel creates a locally-configured tunnel with a fresh secret
// and writes its credentials file next to the other config documents.
func (c *CloudflareClient) CreateTunnel(ctx context.Context, name string) (*RemoteTunnel, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate tunnel secret: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(secret)

	rc := cloudflare.AccountIdentifier(c.accountID)
	tunnel, err := c.api.CreateTunnel(ctx, rc, cloudflare.TunnelCreateParams{
		Name:      name,
		Secret:    encoded,
		ConfigSrc: "local",
	})
	if err != nil {
		return nil, &RemoteAPIError{Operation: "create tunnel", Err: err}
	}

	creds := TunnelCredentials{
		AccountTag:   c.accountID,
		TunnelID:     tunnel.ID,
		TunnelSecret: encoded,
	}
	if err := WriteCredentials(creds); err != nil {
		return nil, err
	}

	return &RemoteTunnel{ID: tunnel.ID, Name: tunnel.Name}, nil
}

func (c *CloudflareClient) DeleteTunnel(ctx context.Context, tunnelID string) error {
	rc := cloudflare.AccountIdentifier(c.accountID)
	if err := c.api.DeleteTunnel(ctx, rc, tunnelID); err != nil {
		return &RemoteAPIError{Operation: "delete tunnel", Err: err}
	}
	return nil
}

// EnsureDNSRecord points hostname at the tunnel via a proxied CNAME,
// creating or updating as needed. Calling it again with the same
// arguments is a no-op.
func (c *CloudflareClient) EnsureDNSRecord(ctx context.Context, zoneID, hostname, tunnelID string) error {
	rc := cloudflare.ZoneIdentifier(zoneID)
	target := tunnelID + TunnelDNSSuffix

	records, _, err := c.api.ListDNSRecords(ctx, rc, cloudflare.ListDNSRecordsParams{
		Type: "CNAME",
		Name: hostname,
	})
	if err != nil {
		return &RemoteAPIError{Operation: "list DNS records", Err: err}
	}

	if len(records) > 0 {
		record := records[0]
		if record.Content == target {
			return nil
		}
		_, err := c.api.UpdateDNSRecord(ctx, rc, cloudflare.UpdateDNSRecordParams{
			ID:      record.ID,
			Type:    "CNAME",
			Name:    hostname,
			Content: target,
			Proxied: cloudflare.BoolPtr(true),
		})
		if err != nil {
			return &RemoteAPIError{Operation: "update DNS record", Err: err}
		}
		return nil
	}

	_, err = c.api.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
		Type:    "CNAME",
		Name:    hostname,
		Content: target,
		Proxied: cloudflare.BoolPtr(true),
		TTL:     1,
	})
	if err != nil {
		return &RemoteAPIError{Operation: "create DNS record", Err: err}
	}
	return nil
}

// DeleteDNSRecord removes the CNAME for hostname if one exists.
func (c *CloudflareClient) DeleteDNSRecord(ctx context.Context, zoneID, hostname string) error {
	rc := cloudflare.ZoneIdentifier(zoneID)

	records, _, err := c.api.ListDNSRecords(ctx, rc, cloudflare.ListDNSRecordsParams{
		Type: "CNAME",
		Name: hostname,
	})
	if err != nil {
		return &RemoteAPIError{Operation: "list DNS records", Err: err}
	}

	for _, record := range records {
		if err := c.api.DeleteDNSRecord(ctx, rc, record.ID); err != nil {
			return &RemoteAPIError{Operation: "delete DNS record", Err: err}
		}
	}
	return nil
}

// WriteCredentials persists a cloudflared credentials file keyed by
// tunnel ID.
func WriteCredentials(creds TunnelCredentials) error {
	if err := os.MkdirAll(GetConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	path := CredentialsPathFor(creds.TunnelID)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

func CredentialsPathFor(tunnelID string) string {
	return filepath.Join(GetConfigDir(), tunnelID+".json")
}
