package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestStatusJSONIncludesSections(t *testing.T) {
	srv := New(Options{
		Gatherer: prometheus.NewRegistry(),
		Sections: map[string]Provider{
			"relays": func() any { return []string{"p1"} },
		},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"generatedAt", "resources", "relays"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("missing %q in %s", key, rec.Body.String())
		}
	}
}

func TestMetricsEndpointUsesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "status_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	srv := New(Options{Gatherer: reg})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "status_test_total 1") {
		t.Fatalf("metrics output missing counter:\n%s", rec.Body.String())
	}
}

func TestNilTrackerSnapshot(t *testing.T) {
	var r *ResourceTracker
	if snap := r.Snapshot(); len(snap.History) != 0 {
		t.Fatal("expected empty snapshot")
	}
}

func TestResourceHistoryKeepsNewestOldestFirst(t *testing.T) {
	r := &ResourceTracker{limit: 3}
	for i := 1; i <= 5; i++ {
		r.record(ResourcePoint{Goroutines: i})
	}
	snap := r.Snapshot()
	if snap.Current.Goroutines != 5 {
		t.Fatalf("current = %d", snap.Current.Goroutines)
	}
	var got []int
	for _, p := range snap.History {
		got = append(got, p.Goroutines)
	}
	if len(got) != 3 || got[0] != 3 || got[1] != 4 || got[2] != 5 {
		t.Fatalf("history = %v, want [3 4 5]", got)
	}
}

func TestExtraRoutesAreMounted(t *testing.T) {
	srv := New(Options{
		Gatherer: prometheus.NewRegistry(),
		Routes: map[string]http.Handler{
			"/autoconfig/": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("pac:" + r.URL.Path))
			}),
		},
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/autoconfig/p1.pac", nil))
	if rec.Body.String() != "pac:/autoconfig/p1.pac" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}
