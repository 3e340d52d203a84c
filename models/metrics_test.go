package models

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

const metricsFixture = `
# HELP cloudflared_tunnel_total_requests Total requests
# TYPE cloudflared_tunnel_total_requests counter
cloudflared_tunnel_total_requests 42
cloudflared_tunnel_request_errors 2
cloudflared_tunnel_ha_connections 4
cloudflared_tunnel_concurrent_requests_per_tunnel 1
cloudflared_tunnel_response_by_code{status_code="200"} 35
cloudflared_tunnel_response_by_code{status_code="404"} 5
cloudflared_tunnel_server_locations{connection_id="0",edge_location="dfw08"} 1
cloudflared_tunnel_server_locations{connection_id="1",edge_location="den01"} 1
`

func TestParsePrometheusMetrics(t *testing.T) {
	metrics := ParsePrometheusMetrics(metricsFixture)

	if !metrics.Available {
		t.Error("expected Available")
	}
	if metrics.TotalRequests != 42 {
		t.Errorf("TotalRequests = %d, want 42", metrics.TotalRequests)
	}
	if metrics.RequestErrors != 2 {
		t.Errorf("RequestErrors = %d, want 2", metrics.RequestErrors)
	}
	if metrics.HAConnections != 4 {
		t.Errorf("HAConnections = %d, want 4", metrics.HAConnections)
	}
	if metrics.ConcurrentRequests != 1 {
		t.Errorf("ConcurrentRequests = %d, want 1", metrics.ConcurrentRequests)
	}
	if metrics.ResponseCodes[200] != 35 || metrics.ResponseCodes[404] != 5 {
		t.Errorf("ResponseCodes = %v", metrics.ResponseCodes)
	}
	if want := []string{"den01", "dfw08"}; !reflect.DeepEqual(metrics.EdgeLocations, want) {
		t.Errorf("EdgeLocations = %v, want %v", metrics.EdgeLocations, want)
	}
}

func TestLocationsString(t *testing.T) {
	m := &TunnelMetrics{}
	if m.LocationsString() != "None" {
		t.Errorf("empty locations = %q", m.LocationsString())
	}
	m.EdgeLocations = []string{"den01", "dfw08"}
	if m.LocationsString() != "den01, dfw08" {
		t.Errorf("locations = %q", m.LocationsString())
	}
}

func TestFetchMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, metricsFixture)
	}))
	defer server.Close()

	metrics := FetchMetrics(context.Background(), server.URL+"/metrics")
	if !metrics.Available {
		t.Fatal("expected Available")
	}
	if metrics.TotalRequests != 42 {
		t.Errorf("TotalRequests = %d, want 42", metrics.TotalRequests)
	}
}

func TestFetchMetricsUnreachable(t *testing.T) {
	// Nothing listens here; the scrape must degrade, not fail
	metrics := FetchMetrics(context.Background(), "http://127.0.0.1:1/metrics")
	if metrics.Available {
		t.Error("expected unavailable metrics for unreachable endpoint")
	}
}
