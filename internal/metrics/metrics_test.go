package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorRecordsHTTPMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	instrumented := collector.InstrumentHandler(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	instrumented.ServeHTTP(rr, req)

	if !handlerInvoked {
		t.Fatal("expected handler to be invoked")
	}

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `watcher_http_requests_total{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}

	if !strings.Contains(body, `watcher_http_request_duration_seconds_count{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestCollectorRecordsPipelineMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	collector.ObserveRun("ok", 3*time.Second)
	collector.ObserveRun("ok", 7*time.Second)
	collector.ObserveRun("timeout", 100*time.Second)
	collector.AlertPublished()

	body := scrape(t, collector)
	if !strings.Contains(body, `watcher_pipeline_runs_total{result="ok"} 2`) {
		t.Fatalf("runs_total ok not recorded, body=%q", body)
	}
	if !strings.Contains(body, `watcher_pipeline_runs_total{result="timeout"} 1`) {
		t.Fatalf("runs_total timeout not recorded, body=%q", body)
	}
	if !strings.Contains(body, `watcher_pipeline_alerts_total 1`) {
		t.Fatalf("alerts_total not recorded, body=%q", body)
	}
}

func TestCollectorPoolGauge(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	leased := 3
	if err := collector.RegisterPoolGauge(func() int { return leased }); err != nil {
		t.Fatalf("RegisterPoolGauge returned error: %v", err)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `watcher_browser_renderers_in_use 3`) {
		t.Fatalf("pool gauge not exposed, body=%q", body)
	}
}

func scrape(t *testing.T, collector *Collector) string {
	t.Helper()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}

	return rr.Body.String()
}
