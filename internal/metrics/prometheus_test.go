package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesSnapshot(t *testing.T) {
	m := New()
	m.Inc("foo")
	m.Add("bar", 2)
	m.Inc(`quote"back\slash`)

	active := 3
	h := PrometheusHandler(m, GaugeFunc("active_debates", "Debates currently registered.", func() int { return active }))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE debate_signaling_events_total counter",
		`debate_signaling_events_total{event="bar"} 2`,
		`debate_signaling_events_total{event="foo"} 1`,
		`debate_signaling_events_total{event="quote\"back\\slash"} 1`,
		"# TYPE debate_signaling_active_debates gauge",
		"debate_signaling_active_debates 3",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	rr := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestMetrics_SnapshotIsACopy(t *testing.T) {
	m := New()
	m.Inc(DebatesCreated)

	snap := m.Snapshot()
	snap[DebatesCreated] = 100

	if got := m.Get(DebatesCreated); got != 1 {
		t.Fatalf("Get=%d, want 1", got)
	}
}
