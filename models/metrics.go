package models

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TunnelMetrics holds counters scraped from cloudflared's local
// Prometheus endpoint. Available is false when the scrape failed,
// which is normal for a tunnel that is not running.
type TunnelMetrics struct {
	TotalRequests      uint64
	RequestErrors      uint64
	HAConnections      uint64
	ConcurrentRequests uint64
	ResponseCodes      map[int]uint64
	EdgeLocations      []string
	Available          bool
}

func (m *TunnelMetrics) LocationsString() string {
	if len(m.EdgeLocations) == 0 {
		return "None"
	}
	return strings.Join(m.EdgeLocations, ", ")
}

var metricsClient = &http.Client{Timeout: 2 * time.Second}

// FetchMetrics scrapes a cloudflared metrics endpoint. It never
// returns an error; unreachable endpoints yield Available=false.
func FetchMetrics(ctx context.Context, metricsURL string) *TunnelMetrics {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
	if err != nil {
		return &TunnelMetrics{}
	}

	resp, err := metricsClient.Do(req)
	if err != nil {
		return &TunnelMetrics{}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TunnelMetrics{}
	}

	return ParsePrometheusMetrics(string(body))
}

// ParsePrometheusMetrics pulls the cloudflared tunnel counters out of
// Prometheus text exposition format.
func ParsePrometheusMetrics(text string) *TunnelMetrics {
	metrics := &TunnelMetrics{
		ResponseCodes: make(map[int]uint64),
		Available:     true,
	}

	for _, line := range strings.Split(text, "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "cloudflared_tunnel_total_requests "):
			if v, ok := extractValue(line); ok {
				metrics.TotalRequests = v
			}
		case strings.HasPrefix(line, "cloudflared_tunnel_request_errors "):
			if v, ok := extractValue(line); ok {
				metrics.RequestErrors = v
			}
		case strings.HasPrefix(line, "cloudflared_tunnel_ha_connections "):
			if v, ok := extractValue(line); ok {
				metrics.HAConnections = v
			}
		case strings.HasPrefix(line, "cloudflared_tunnel_concurrent_requests_per_tunnel "):
			if v, ok := extractValue(line); ok {
				metrics.ConcurrentRequests = v
			}
		case strings.HasPrefix(line, "cloudflared_tunnel_response_by_code{"):
			code, codeOK := extractLabel(line, "status_code")
			v, valOK := extractValue(line)
			if codeOK && valOK {
				if n, err := strconv.Atoi(code); err == nil {
					metrics.ResponseCodes[n] = v
				}
			}
		case strings.HasPrefix(line, "cloudflared_tunnel_server_locations{"):
			if loc, ok := extractLabel(line, "edge_location"); ok {
				if !containsString(metrics.EdgeLocations, loc) {
					metrics.EdgeLocations = append(metrics.EdgeLocations, loc)
				}
			}
		}
	}

	sort.Strings(metrics.EdgeLocations)
	return metrics
}

func extractValue(line string) (uint64, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return uint64(f), true
}

func extractLabel(line, label string) (string, bool) {
	marker := label + `="`
	start := strings.Index(line, marker)
	if start < 0 {
		return "", false
	}
	start += len(marker)
	end := strings.Index(line[start:], `"`)
	if end < 0 {
		return "", false
	}
	return line[start : start+end], true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
