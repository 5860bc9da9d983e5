package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sentinel-hq/aegis/pkg/config"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestCacheEntriesTracksStats(t *testing.T) {
	m := New(&config.MetricsConfig{Namespace: "aegis"})

	size := int64(3)
	backend := "local"
	m.RegisterCacheSize(func() (string, int64) { return backend, size })

	body := scrape(t, m)
	if !strings.Contains(body, `aegis_cache_entries{backend="local"} 3`) {
		t.Errorf("gauge missing or stale:\n%s", body)
	}

	// The callback is read on every scrape, so growth and failover show up
	// without any explicit Set call.
	size = 7
	backend = "redis"
	body = scrape(t, m)
	if !strings.Contains(body, `aegis_cache_entries{backend="redis"} 7`) {
		t.Errorf("gauge not live:\n%s", body)
	}
}

func TestCountersAppearInExposition(t *testing.T) {
	m := New(&config.MetricsConfig{Namespace: "aegis"})

	m.CacheHitsTotal.Inc()
	m.RequestsTotal.WithLabelValues("openai", "completed").Inc()

	body := scrape(t, m)
	if !strings.Contains(body, "aegis_cache_hits_total 1") {
		t.Errorf("cache hits counter missing:\n%s", body)
	}
	if !strings.Contains(body, `aegis_requests_total{dialect="openai",outcome="completed"} 1`) {
		t.Errorf("requests counter missing:\n%s", body)
	}
}
