package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mxauth "github.com/Physolia/mxauth"
)

type fakeSource struct {
	snapshot mxauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() mxauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) EventsDropped() uint64                   { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: mxauth.MetricsSnapshot{
			Counters:   map[mxauth.MetricID]uint64{},
			Histograms: map[mxauth.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: mxauth.MetricsSnapshot{
			Counters: map[mxauth.MetricID]uint64{
				mxauth.MetricSessionCreated: 7,
			},
			Histograms: map[mxauth.MetricID][]uint64{
				mxauth.MetricRegisterLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "mxauth_session_created_total 7") {
		t.Fatalf("expected session_created counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "mxauth_register_latency_seconds_bucket{le=\"0.025\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "mxauth_register_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "mxauth_events_dropped_total 2") {
		t.Fatalf("expected events dropped counter in output, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: mxauth.MetricsSnapshot{
			Counters:   map[mxauth.MetricID]uint64{mxauth.MetricLoginSuccess: 1},
			Histograms: map[mxauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: mxauth.MetricsSnapshot{
			Counters: map[mxauth.MetricID]uint64{
				mxauth.MetricFlowNegotiated:     120,
				mxauth.MetricStageSubmitted:     800,
				mxauth.MetricStageFailure:       14,
				mxauth.MetricLoginSuccess:       400,
				mxauth.MetricLoginFailure:       9,
				mxauth.MetricSessionCreated:     410,
				mxauth.MetricDummyAutoSubmitted: 60,
			},
			Histograms: map[mxauth.MetricID][]uint64{
				mxauth.MetricRegisterLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
