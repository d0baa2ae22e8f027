package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nirvagold/hermes/internal/fanout"
	"github.com/nirvagold/hermes/internal/metrics"
)

func TestSampleAppliesDeltaOnce(t *testing.T) {
	m := metrics.New()
	stats := &fanout.Stats{}
	stats.MessagesBroadcast.Store(10)

	var prev fanout.StatsSnapshot
	m.Sample(stats, &prev)
	if prev.MessagesBroadcast != 10 {
		t.Fatalf("prev snapshot = %d, want 10", prev.MessagesBroadcast)
	}

	stats.MessagesBroadcast.Store(15)
	m.Sample(stats, &prev)
	if prev.MessagesBroadcast != 15 {
		t.Fatalf("prev snapshot after second sample = %d, want 15", prev.MessagesBroadcast)
	}
}

func TestHandlerServesPrometheusFormat(t *testing.T) {
	m := metrics.New()
	stats := &fanout.Stats{}
	stats.MessagesDropped.Store(3)
	var prev fanout.StatsSnapshot
	m.Sample(stats, &prev)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hermes_messages_dropped_total") {
		t.Fatalf("response missing expected metric name: %s", rec.Body.String())
	}
}
