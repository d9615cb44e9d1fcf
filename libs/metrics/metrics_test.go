package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestWithHTTPMetricsUsesPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := WithHTTPMetrics(mux)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}

	body := scrape(t)
	if !strings.Contains(body, `route="GET /things/{id}"`) {
		t.Fatal("expected the mux pattern as route label")
	}
	if strings.Contains(body, "/things/42") {
		t.Fatal("raw path must not be used as a label")
	}
}

func TestRecordJob(t *testing.T) {
	RecordJob("test-kind", "succeeded", 10*time.Millisecond)
	if !strings.Contains(scrape(t), `jobqueue_jobs_processed_total{kind="test-kind",outcome="succeeded"} 1`) {
		t.Fatal("expected job counter in exposition")
	}
}
