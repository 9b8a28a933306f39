package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(cacheLookups.WithLabelValues("t", "hit"))
	CacheLookup("t", true)
	CacheLookup("t", false)
	if got := testutil.ToFloat64(cacheLookups.WithLabelValues("t", "hit")); got != before+1 {
		t.Errorf("hits = %v, want %v", got, before+1)
	}

	DedupRemoved("Z", 0)
	DedupRemoved("Z", 3)
	if got := testutil.ToFloat64(dedupRemoved.WithLabelValues("Z")); got != 3 {
		t.Errorf("dedup = %v, want 3", got)
	}
}

func TestHandler(t *testing.T) {
	ModelCall("m", "ok")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `weekcal_model_calls_total{model="m",result="ok"}`) {
		t.Errorf("body missing model counter:\n%s", rec.Body.String())
	}
}
