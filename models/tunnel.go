package models

type TunnelStatus string

const (
	StatusRunning TunnelStatus = "running"
	StatusStopped TunnelStatus = "stopped"
	StatusError   TunnelStatus = "error"
)

func (s TunnelStatus) Symbol() string {
	switch s {
	case StatusRunning:
		return "●"
	case StatusError:
		return "✗"
	default:
		return "○"
	}
}

type TunnelKind int

const (
	KindManaged TunnelKind = iota
	// KindEphemeral marks tunnels discovered on the remote account that
	// are not in the local ledger (typically `cftun run` sessions).
	KindEphemeral
)

type HealthStatus int

const (
	HealthUnknown HealthStatus = iota
	HealthChecking
	HealthHealthy
	HealthUnhealthy
)

func (h HealthStatus) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	case HealthChecking:
		return "checking"
	default:
		return "unknown"
	}
}

// TunnelEntry is one row of the reconciled view: the desired state plus
// everything observed about it this pass.
type TunnelEntry struct {
	Tunnel  PersistentTunnel
	Kind    TunnelKind
	Status  TunnelStatus
	Metrics *TunnelMetrics
	History MetricsHistory
	Health  HealthStatus
}

const maxHistorySamples = 30

// MetricsHistory keeps per-interval request deltas derived from the
// monotonically increasing total_requests counter. A counter going
// backwards means cloudflared restarted, so the new total is taken as
// the delta.
type MetricsHistory struct {
	Samples   []uint64
	LastTotal uint64
}

func (h *MetricsHistory) Record(total uint64) {
	delta := total
	if total >= h.LastTotal {
		delta = total - h.LastTotal
	}
	h.Samples = append(h.Samples, delta)
	if len(h.Samples) > maxHistorySamples {
		h.Samples = h.Samples[len(h.Samples)-maxHistorySamples:]
	}
	h.LastTotal = total
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the most recent samples as unicode blocks, newest
// on the right.
func (h *MetricsHistory) Sparkline(width int) string {
	if width <= 0 || len(h.Samples) == 0 {
		return ""
	}

	samples := h.Samples
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}

	var max uint64
	for _, v := range samples {
		if v > max {
			max = v
		}
	}

	out := make([]rune, 0, len(samples))
	for _, v := range samples {
		if max == 0 {
			out = append(out, sparkBlocks[0])
			continue
		}
		idx := int(v * uint64(len(sparkBlocks)-1) / max)
		out = append(out, sparkBlocks[idx])
	}
	return string(out)
}
