package views

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"cftun/models"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	metricsInterval = 5 * time.Second
	healthInterval  = 30 * time.Second
)

type inputMode int

const (
	modeNormal inputMode = iota
	modeAddName
	modeAddTarget
	modeAddZone
	modeConfirm
)

type Model struct {
	config     *models.Config
	account    *models.Account
	reconciler *models.Reconciler
	client     *models.CloudflareClient
	daemon     models.DaemonManager
	health     *models.HealthChecker

	entries  []models.TunnelEntry
	selected int
	logs     []string

	mode          inputMode
	input         textinput.Model
	newName       string
	newTarget     string
	zoneSelected  int
	importing     bool
	importEntry   *models.TunnelEntry
	confirmText   string
	pendingDelete *models.TunnelEntry

	width         int
	height        int
	showHelp      bool
	loading       bool
	statusMessage string
	errorMessage  string
}

type entriesMsg []models.TunnelEntry
type logsMsg []string
type errorMsg string
type statusMsg string
type metricsTickMsg time.Time
type healthTickMsg time.Time
type actionDoneMsg struct {
	status string
	err    error
}

// RunDashboard opens the interactive dashboard for an account.
func RunDashboard(accountName string) error {
	config, err := models.LoadConfig()
	if err != nil {
		return err
	}
	account, err := config.GetAccount(accountName)
	if err != nil {
		return err
	}

	client, err := models.NewClientForAccount(account)
	if err != nil {
		return err
	}

	model := NewModel(config, account, client)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func NewModel(config *models.Config, account *models.Account, client *models.CloudflareClient) Model {
	input := textinput.New()
	input.CharLimit = 128
	input.Width = 40

	daemon := models.DetectDaemonManager()
	reconciler := models.NewReconciler(daemon, client)
	if len(config.Accounts) > 0 {
		reconciler.MigrationAccount = config.Accounts[0].Name
	}

	return Model{
		config:        config,
		account:       account,
		client:        client,
		daemon:        daemon,
		reconciler:    reconciler,
		health:        models.NewHealthChecker(models.SystemNotifier{}),
		input:         input,
		statusMessage: "Loading...",
		loading:       true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadEntries(),
		metricsTickCmd(),
		healthTickCmd(),
	)
}

func metricsTickCmd() tea.Cmd {
	return tea.Tick(metricsInterval, func(t time.Time) tea.Msg {
		return metricsTickMsg(t)
	})
}

func healthTickCmd() tea.Cmd {
	return tea.Tick(healthInterval, func(t time.Time) tea.Msg {
		return healthTickMsg(t)
	})
}

func (m Model) loadEntries() tea.Cmd {
	reconciler := m.reconciler
	account := m.account
	previous := m.entries
	return func() tea.Msg {
		entries, err := reconciler.Reconcile(context.Background(), account, previous)
		if err != nil {
			if models.IsAuthenticationError(err) {
				return errorMsg("Authentication failed - check API token and permissions")
			}
			if models.IsRemoteAPIError(err) {
				return errorMsg(fmt.Sprintf("Cloudflare API error: %v", err))
			}
			return errorMsg(fmt.Sprintf("Failed to load tunnels: %v", err))
		}
		return entriesMsg(entries)
	}
}

func (m Model) checkAllHealth() tea.Cmd {
	health := m.health
	entries := make([]models.TunnelEntry, len(m.entries))
	copy(entries, m.entries)
	return func() tea.Msg {
		ctx := context.Background()
		for i := range entries {
			health.CheckEntry(ctx, &entries[i])
		}
		return entriesMsg(entries)
	}
}

func (m Model) selectedEntry() *models.TunnelEntry {
	if m.selected >= 0 && m.selected < len(m.entries) {
		return &m.entries[m.selected]
	}
	return nil
}

func (m *Model) refreshLogs() {
	entry := m.selectedEntry()
	if entry == nil {
		m.logs = []string{"No tunnel selected"}
		return
	}

	if entry.Kind == models.KindManaged {
		lines, err := models.ReadLogTail(&entry.Tunnel, 100)
		if err != nil {
			m.logs = []string{fmt.Sprintf("Error reading logs: %v", err)}
			return
		}
		m.logs = lines
		return
	}

	if entry.Tunnel.Target != "unknown" && entry.Tunnel.Target != "" {
		m.logs = []string{
			"Ephemeral tunnel (created with `cftun run`)",
			"",
			"Hostname: " + entry.Tunnel.Hostname,
			"Target:   " + entry.Tunnel.Target,
			"Zone:     " + entry.Tunnel.ZoneName,
			"",
			"Press [m] to import as managed tunnel",
			"Press [d] to delete from Cloudflare",
		}
	} else {
		m.logs = []string{
			"Ephemeral tunnel (created with `cftun run`)",
			"",
			"Config not found - tunnel may not be running.",
			"",
			"Press [m] to import (will prompt for target)",
			"Press [d] to delete from Cloudflare",
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case entriesMsg:
		m.entries = msg
		m.loading = false
		if m.selected >= len(m.entries) && len(m.entries) > 0 {
			m.selected = len(m.entries) - 1
		}
		m.refreshLogs()
		if m.statusMessage == "Loading..." {
			m.statusMessage = "Ready"
		}
		return m, nil

	case errorMsg:
		m.errorMessage = string(msg)
		m.loading = false
		return m, nil

	case statusMsg:
		m.statusMessage = string(msg)
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
		} else {
			m.statusMessage = msg.status
			m.errorMessage = ""
		}
		return m, m.loadEntries()

	case metricsTickMsg:
		return m, tea.Batch(m.loadEntries(), metricsTickCmd())

	case healthTickMsg:
		return m, tea.Batch(m.checkAllHealth(), healthTickCmd())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode != modeNormal {
		return m.handleInputKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp

	case "up", "k":
		if m.selected > 0 {
			m.selected--
			m.refreshLogs()
		}

	case "down", "j":
		if m.selected < len(m.entries)-1 {
			m.selected++
			m.refreshLogs()
		}

	case "tab":
		return m.cycleAccount()

	case "r":
		m.loading = true
		m.statusMessage = "Refreshing..."
		m.errorMessage = ""
		return m, m.loadEntries()

	case "a":
		m.mode = modeAddName
		m.importing = false
		m.newName = ""
		m.newTarget = ""
		m.zoneSelected = 0
		m.input.SetValue("")
		m.input.Placeholder = "tunnel name (becomes <name>.<zone>)"
		m.input.Focus()

	case "m":
		return m.startImport()

	case "s":
		if entry := m.selectedEntry(); entry != nil && entry.Kind == models.KindManaged {
			return m, m.startTunnel(entry.Tunnel)
		}

	case "S":
		if entry := m.selectedEntry(); entry != nil && entry.Kind == models.KindManaged {
			return m, m.stopTunnel(entry.Tunnel)
		}

	case "R":
		if entry := m.selectedEntry(); entry != nil && entry.Kind == models.KindManaged {
			return m, m.restartTunnel(entry.Tunnel)
		}

	case "A":
		if entry := m.selectedEntry(); entry != nil && entry.Kind == models.KindManaged {
			return m, m.toggleAutoStart(entry.Tunnel)
		}

	case "d":
		if entry := m.selectedEntry(); entry != nil {
			m.pendingDelete = entry
			m.confirmText = fmt.Sprintf("Delete tunnel '%s' and its remote resources? [y/N]", entry.Tunnel.Name)
			m.mode = modeConfirm
		}

	case "c":
		if entry := m.selectedEntry(); entry != nil {
			m.statusMessage = fmt.Sprintf("Checking health of %s...", entry.Tunnel.Name)
			return m, m.checkOneHealth(m.selected)
		}

	case "o":
		if entry := m.selectedEntry(); entry != nil && entry.Tunnel.Hostname != "" {
			openBrowser("https://" + entry.Tunnel.Hostname)
			m.statusMessage = "Opened https://" + entry.Tunnel.Hostname
		}
	}

	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeConfirm:
		switch msg.String() {
		case "y", "Y":
			entry := m.pendingDelete
			m.mode = modeNormal
			m.pendingDelete = nil
			if entry != nil {
				m.statusMessage = fmt.Sprintf("Deleting %s...", entry.Tunnel.Name)
				return m, m.deleteTunnel(*entry)
			}
		default:
			m.mode = modeNormal
			m.pendingDelete = nil
			m.statusMessage = "Cancelled"
		}
		return m, nil

	case modeAddZone:
		switch msg.String() {
		case "esc":
			m.mode = modeNormal
			m.importing = false
		case "up", "k":
			if m.zoneSelected > 0 {
				m.zoneSelected--
			}
		case "down", "j":
			if m.zoneSelected < len(m.account.Zones)-1 {
				m.zoneSelected++
			}
		case "enter":
			if m.zoneSelected < len(m.account.Zones) {
				zone := m.account.Zones[m.zoneSelected]
				m.mode = modeNormal
				if m.importing {
					m.importing = false
					entry := m.importEntry
					m.importEntry = nil
					if entry != nil {
						return m, m.importTunnel(*entry, m.newTarget, zone)
					}
					return m, nil
				}
				m.statusMessage = fmt.Sprintf("Creating tunnel %s...", m.newName)
				return m, m.addTunnel(m.newName, m.newTarget, zone)
			}
		}
		return m, nil
	}

	// Text entry modes
	switch msg.String() {
	case "esc":
		m.mode = modeNormal
		m.importing = false
		m.input.Blur()
		return m, nil

	case "enter":
		value := strings.TrimSpace(m.input.Value())
		if value == "" {
			return m, nil
		}
		switch m.mode {
		case modeAddName:
			for i := range m.entries {
				if m.entries[i].Tunnel.Name == value {
					m.statusMessage = fmt.Sprintf("Tunnel '%s' already exists", value)
					return m, nil
				}
			}
			m.newName = value
			m.input.SetValue("")
			m.input.Placeholder = "target (e.g. localhost:3000)"
			m.mode = modeAddTarget
		case modeAddTarget:
			m.newTarget = value
			m.input.SetValue("")
			m.input.Blur()
			if m.importing && m.importEntry != nil && m.importEntry.Tunnel.ZoneID != "" {
				entry := m.importEntry
				zone := models.ZoneInfo{ID: entry.Tunnel.ZoneID, Name: entry.Tunnel.ZoneName}
				m.mode = modeNormal
				m.importing = false
				m.importEntry = nil
				return m, m.importTunnel(*entry, m.newTarget, zone)
			}
			m.mode = modeAddZone
			m.zoneSelected = 0
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) cycleAccount() (tea.Model, tea.Cmd) {
	if len(m.config.Accounts) < 2 {
		return m, nil
	}
	idx := 0
	for i := range m.config.Accounts {
		if m.config.Accounts[i].Name == m.account.Name {
			idx = i
			break
		}
	}
	next := &m.config.Accounts[(idx+1)%len(m.config.Accounts)]

	client, err := models.NewClientForAccount(next)
	if err != nil {
		m.errorMessage = err.Error()
		return m, nil
	}

	m.account = next
	m.client = client
	m.reconciler = models.NewReconciler(m.daemon, client)
	if len(m.config.Accounts) > 0 {
		m.reconciler.MigrationAccount = m.config.Accounts[0].Name
	}
	m.entries = nil
	m.selected = 0
	m.loading = true
	m.statusMessage = fmt.Sprintf("Switched to account '%s'", next.Name)
	return m, m.loadEntries()
}

func (m Model) startImport() (tea.Model, tea.Cmd) {
	entry := m.selectedEntry()
	if entry == nil || entry.Kind != models.KindEphemeral {
		m.statusMessage = "Only ephemeral tunnels can be imported"
		return m, nil
	}

	hasTarget := entry.Tunnel.Target != "" && entry.Tunnel.Target != "unknown"
	hasZone := entry.Tunnel.ZoneID != ""

	if hasTarget && hasZone {
		zone := models.ZoneInfo{ID: entry.Tunnel.ZoneID, Name: entry.Tunnel.ZoneName}
		m.statusMessage = fmt.Sprintf("Importing %s...", entry.Tunnel.Name)
		return m, m.importTunnel(*entry, entry.Tunnel.Target, zone)
	}

	m.importing = true
	imported := *entry
	m.importEntry = &imported
	m.newTarget = entry.Tunnel.Target
	if !hasTarget {
		m.mode = modeAddTarget
		m.input.SetValue("")
		m.input.Placeholder = "target (e.g. localhost:3000)"
		m.input.Focus()
	} else {
		m.mode = modeAddZone
		m.zoneSelected = 0
	}
	return m, nil
}

// Commands below run the mutation off the event loop and report back
// through actionDoneMsg, which triggers a reload.

func (m Model) addTunnel(name, target string, zone models.ZoneInfo) tea.Cmd {
	client := m.client
	daemon := m.daemon
	account := m.account
	return func() tea.Msg {
		ctx := context.Background()

		remoteName := models.RemoteTunnelName(name)
		remote, err := client.GetTunnelByName(ctx, remoteName)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		if remote == nil {
			remote, err = client.CreateTunnel(ctx, remoteName)
			if err != nil {
				return actionDoneMsg{err: err}
			}
		}

		hostname := name + "." + zone.Name
		if err := client.EnsureDNSRecord(ctx, zone.ID, hostname, remote.ID); err != nil {
			return actionDoneMsg{err: err}
		}

		tunnel := models.PersistentTunnel{
			Name:        name,
			AccountName: account.Name,
			Target:      target,
			ZoneID:      zone.ID,
			ZoneName:    zone.Name,
			Hostname:    hostname,
			TunnelID:    remote.ID,
			Enabled:     true,
		}
		if err := daemon.Install(&tunnel); err != nil {
			return actionDoneMsg{err: err}
		}

		state, err := models.LoadState()
		if err != nil {
			return actionDoneMsg{err: err}
		}
		if err := state.AddUnique(tunnel); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := state.Save(); err != nil {
			return actionDoneMsg{err: err}
		}

		if err := daemon.Start(name, account.Name); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("Tunnel '%s' created and started", name)}
	}
}

func (m Model) importTunnel(entry models.TunnelEntry, target string, zone models.ZoneInfo) tea.Cmd {
	client := m.client
	daemon := m.daemon
	account := m.account
	return func() tea.Msg {
		ctx := context.Background()

		hostname := entry.Tunnel.Hostname
		if hostname == "" || !strings.Contains(hostname, ".") {
			hostname = entry.Tunnel.Name + "." + zone.Name
		}
		if err := client.EnsureDNSRecord(ctx, zone.ID, hostname, entry.Tunnel.TunnelID); err != nil {
			return actionDoneMsg{err: err}
		}

		tunnel := models.PersistentTunnel{
			Name:        entry.Tunnel.Name,
			AccountName: account.Name,
			Target:      target,
			ZoneID:      zone.ID,
			ZoneName:    zone.Name,
			Hostname:    hostname,
			TunnelID:    entry.Tunnel.TunnelID,
			Enabled:     false,
		}
		if err := daemon.Install(&tunnel); err != nil {
			return actionDoneMsg{err: err}
		}

		state, err := models.LoadState()
		if err != nil {
			return actionDoneMsg{err: err}
		}
		if err := state.AddUnique(tunnel); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := state.Save(); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("Imported '%s' as managed", tunnel.Name)}
	}
}

func (m Model) startTunnel(tunnel models.PersistentTunnel) tea.Cmd {
	client := m.client
	daemon := m.daemon
	return func() tea.Msg {
		ctx := context.Background()
		if err := client.EnsureDNSRecord(ctx, tunnel.ZoneID, tunnel.Hostname, tunnel.TunnelID); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := daemon.Install(&tunnel); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := daemon.Start(tunnel.Name, tunnel.AccountName); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := setEnabled(tunnel.Name, tunnel.AccountName, true); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("Started '%s'", tunnel.Name)}
	}
}

func (m Model) stopTunnel(tunnel models.PersistentTunnel) tea.Cmd {
	daemon := m.daemon
	return func() tea.Msg {
		if err := daemon.Stop(tunnel.Name, tunnel.AccountName); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := setEnabled(tunnel.Name, tunnel.AccountName, false); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("Stopped '%s'", tunnel.Name)}
	}
}

func (m Model) restartTunnel(tunnel models.PersistentTunnel) tea.Cmd {
	client := m.client
	daemon := m.daemon
	return func() tea.Msg {
		ctx := context.Background()
		daemon.Stop(tunnel.Name, tunnel.AccountName)
		if err := client.EnsureDNSRecord(ctx, tunnel.ZoneID, tunnel.Hostname, tunnel.TunnelID); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := daemon.Install(&tunnel); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := daemon.Start(tunnel.Name, tunnel.AccountName); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := setEnabled(tunnel.Name, tunnel.AccountName, true); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("Restarted '%s'", tunnel.Name)}
	}
}

func (m Model) toggleAutoStart(tunnel models.PersistentTunnel) tea.Cmd {
	daemon := m.daemon
	return func() tea.Msg {
		state, err := models.LoadState()
		if err != nil {
			return actionDoneMsg{err: err}
		}
		stored, ok := state.Find(tunnel.Name, tunnel.AccountName)
		if !ok {
			return actionDoneMsg{err: fmt.Errorf("tunnel '%s' not found", tunnel.Name)}
		}
		stored.AutoStart = !stored.AutoStart
		if err := daemon.Install(stored); err != nil {
			return actionDoneMsg{err: err}
		}
		if err := state.Save(); err != nil {
			return actionDoneMsg{err: err}
		}
		label := "disabled"
		if stored.AutoStart {
			label = "enabled"
		}
		return actionDoneMsg{status: fmt.Sprintf("Auto-start %s for '%s'", label, tunnel.Name)}
	}
}

func (m Model) deleteTunnel(entry models.TunnelEntry) tea.Cmd {
	client := m.client
	daemon := m.daemon
	account := m.account
	return func() tea.Msg {
		ctx := context.Background()
		tunnel := entry.Tunnel

		if entry.Kind == models.KindManaged {
			daemon.Stop(tunnel.Name, tunnel.AccountName)
			daemon.Uninstall(tunnel.Name, tunnel.AccountName)
			client.DeleteDNSRecord(ctx, tunnel.ZoneID, tunnel.Hostname)
		}
		if err := client.DeleteTunnel(ctx, tunnel.TunnelID); err != nil {
			return actionDoneMsg{err: err}
		}
		if entry.Kind == models.KindManaged {
			state, err := models.LoadState()
			if err != nil {
				return actionDoneMsg{err: err}
			}
			state.Remove(tunnel.Name, account.Name)
			if err := state.Save(); err != nil {
				return actionDoneMsg{err: err}
			}
		}
		return actionDoneMsg{status: fmt.Sprintf("Deleted '%s'", tunnel.Name)}
	}
}

func (m Model) checkOneHealth(index int) tea.Cmd {
	health := m.health
	entries := make([]models.TunnelEntry, len(m.entries))
	copy(entries, m.entries)
	return func() tea.Msg {
		if index < 0 || index >= len(entries) {
			return statusMsg("No tunnel selected")
		}
		health.CheckEntry(context.Background(), &entries[index])
		return entriesMsg(entries)
	}
}

func setEnabled(name, account string, enabled bool) error {
	state, err := models.LoadState()
	if err != nil {
		return err
	}
	if tunnel, ok := state.Find(name, account); ok {
		tunnel.Enabled = enabled
		return state.Save()
	}
	return nil
}

func openBrowser(url string) {
	switch runtime.GOOS {
	case "darwin":
		exec.Command("open", url).Start()
	case "linux":
		exec.Command("xdg-open", url).Start()
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	accountStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stoppedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorRowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	ephemeralStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func (m Model) View() string {
	var sections []string

	header := titleStyle.Render("cftun") +
		accountStyle.Render(fmt.Sprintf(" account: %s", m.account.Name))
	if len(m.config.Accounts) > 1 {
		header += accountStyle.Render(" (tab to switch)")
	}
	sections = append(sections, header)

	if m.showHelp {
		sections = append(sections, m.renderHelp())
		return strings.Join(sections, "\n")
	}

	sections = append(sections, m.renderTunnels())

	if entry := m.selectedEntry(); entry != nil {
		sections = append(sections, m.renderMetrics(entry))
	}

	switch m.mode {
	case modeAddName, modeAddTarget:
		label := "Name"
		if m.mode == modeAddTarget {
			label = "Target"
		}
		sections = append(sections, paneStyle.Render(label+": "+m.input.View()))
	case modeAddZone:
		sections = append(sections, m.renderZonePicker())
	case modeConfirm:
		sections = append(sections, paneStyle.Render(errorStyle.Render(m.confirmText)))
	default:
		sections = append(sections, m.renderLogs())
	}

	sections = append(sections, m.renderStatusBar())
	sections = append(sections, helpStyle.Render(
		"a:add m:import s:start S:stop R:restart d:delete A:autostart c:health r:refresh o:open ?:help q:quit"))

	return strings.Join(sections, "\n")
}

func (m Model) renderTunnels() string {
	if m.loading && len(m.entries) == 0 {
		return paneStyle.Render("Loading tunnels...")
	}
	if len(m.entries) == 0 {
		return paneStyle.Render("No tunnels. Press [a] to add one or run `cftun add <name> <target>`.")
	}

	var rows []string
	rows = append(rows, headerStyle.Render(fmt.Sprintf("  %-2s %-14s %-28s %-22s %-8s %-9s %s",
		"", "NAME", "HOSTNAME", "TARGET", "STATUS", "HEALTH", "ACTIVITY")))

	for i, entry := range m.entries {
		style := stoppedStyle
		switch {
		case entry.Kind == models.KindEphemeral:
			style = ephemeralStyle
		case entry.Status == models.StatusRunning:
			style = runningStyle
		case entry.Status == models.StatusError:
			style = errorRowStyle
		}

		name := entry.Tunnel.Name
		if entry.Kind == models.KindEphemeral {
			name += " *"
		}

		row := fmt.Sprintf("%s %-14s %-28s %-22s %-8s %-9s %s",
			entry.Status.Symbol(),
			truncate(name, 14),
			truncate(entry.Tunnel.Hostname, 28),
			truncate(entry.Tunnel.Target, 22),
			entry.Status,
			entry.Health,
			entry.History.Sparkline(20),
		)

		if i == m.selected {
			rows = append(rows, selectedStyle.Render("> "+row))
		} else {
			rows = append(rows, "  "+style.Render(row))
		}
	}

	return paneStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) renderMetrics(entry *models.TunnelEntry) string {
	if entry.Metrics == nil {
		return paneStyle.Render(accountStyle.Render("metrics: unavailable"))
	}
	metrics := entry.Metrics
	line := fmt.Sprintf("requests: %d  errors: %d  connections: %d  in-flight: %d  edges: %s",
		metrics.TotalRequests,
		metrics.RequestErrors,
		metrics.HAConnections,
		metrics.ConcurrentRequests,
		metrics.LocationsString(),
	)
	return paneStyle.Render(line)
}

func (m Model) renderZonePicker() string {
	var rows []string
	rows = append(rows, headerStyle.Render("Select zone (enter to confirm, esc to cancel):"))
	for i, zone := range m.account.Zones {
		if i == m.zoneSelected {
			rows = append(rows, selectedStyle.Render("> "+zone.Name))
		} else {
			rows = append(rows, "  "+zone.Name)
		}
	}
	return paneStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) renderLogs() string {
	lines := m.logs
	maxLines := 10
	if m.height > 30 {
		maxLines = m.height - 22
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	if len(lines) == 0 {
		lines = []string{"No logs"}
	}
	return paneStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderStatusBar() string {
	if m.errorMessage != "" {
		return errorStyle.Render("✗ " + m.errorMessage)
	}
	return statusBarStyle.Render(m.statusMessage)
}

func (m Model) renderHelp() string {
	help := []string{
		"Keys:",
		"  j/k, up/down   select tunnel",
		"  tab            switch account",
		"  a              add a managed tunnel",
		"  m              import an ephemeral tunnel as managed",
		"  s / S          start / stop selected tunnel",
		"  R              restart selected tunnel",
		"  A              toggle start-at-boot",
		"  d              delete selected tunnel",
		"  c              check health now",
		"  r              refresh",
		"  o              open hostname in browser",
		"  q              quit",
		"",
		"Legend: ● running  ○ stopped  ✗ error  * ephemeral",
	}
	return paneStyle.Render(strings.Join(help, "\n"))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
