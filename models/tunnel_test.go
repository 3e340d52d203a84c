package models

import (
	"reflect"
	"testing"
)

func TestMetricsHistoryDeltas(t *testing.T) {
	var h MetricsHistory
	for _, total := range []uint64{0, 5, 12, 12, 20} {
		h.Record(total)
	}
	want := []uint64{0, 5, 7, 0, 8}
	if !reflect.DeepEqual(h.Samples, want) {
		t.Errorf("samples = %v, want %v", h.Samples, want)
	}
}

func TestMetricsHistoryCounterReset(t *testing.T) {
	var h MetricsHistory
	h.Record(20)
	// cloudflared restarted, counter starts over
	h.Record(3)
	if got := h.Samples[len(h.Samples)-1]; got != 3 {
		t.Errorf("delta after reset = %d, want 3", got)
	}
	if h.LastTotal != 3 {
		t.Errorf("LastTotal = %d, want 3", h.LastTotal)
	}
}

func TestMetricsHistoryCapacity(t *testing.T) {
	var h MetricsHistory
	for i := uint64(0); i < 100; i++ {
		h.Record(i * 2)
	}
	if len(h.Samples) != maxHistorySamples {
		t.Errorf("len = %d, want %d", len(h.Samples), maxHistorySamples)
	}
	// Oldest samples dropped, so every remaining delta is 2
	for i, v := range h.Samples {
		if v != 2 {
			t.Errorf("sample %d = %d, want 2", i, v)
		}
	}
}

func TestSparkline(t *testing.T) {
	var h MetricsHistory
	if h.Sparkline(10) != "" {
		t.Error("empty history should render empty sparkline")
	}

	h.Samples = []uint64{0, 1, 2, 4, 8}
	line := h.Sparkline(10)
	if runes := []rune(line); len(runes) != 5 {
		t.Errorf("sparkline width = %d, want 5", len(runes))
	}

	// Only the most recent samples fit in a narrow width
	narrow := h.Sparkline(3)
	if runes := []rune(narrow); len(runes) != 3 {
		t.Errorf("narrow sparkline width = %d, want 3", len(runes))
	}
}

func TestTunnelStatusSymbol(t *testing.T) {
	cases := map[TunnelStatus]string{
		StatusRunning: "●",
		StatusStopped: "○",
		StatusError:   "✗",
	}
	for status, want := range cases {
		if got := status.Symbol(); got != want {
			t.Errorf("Symbol(%s) = %q, want %q", status, got, want)
		}
	}
}

func TestHealthStatusString(t *testing.T) {
	if HealthHealthy.String() != "healthy" || HealthUnknown.String() != "unknown" {
		t.Error("health status strings wrong")
	}
}
