package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/starford/commentmap/internal/models"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func assertContains(t *testing.T, body string, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if !strings.Contains(body, l) {
			t.Errorf("metrics output missing %q", l)
		}
	}
}

type stubEnricher struct {
	out []models.EnrichedComment
}

func (s stubEnricher) Enrich(_, _ []models.RawComment) []models.EnrichedComment {
	return s.out
}

func TestEnricher_RecordsOutcomes(t *testing.T) {
	m := New()
	frame := "1:1"
	stub := stubEnricher{out: []models.EnrichedComment{
		{FrameID: &frame},
		{FrameID: &frame, IsReply: true},
		{FrameName: "Other"},
	}}

	e := m.Enricher(stub)
	got := e.Enrich(nil, nil)
	if len(got) != 3 {
		t.Fatalf("wrapped enricher returned %d comments", len(got))
	}

	assertContains(t, scrape(t, m),
		`commentmap_enrich_runs_total 1`,
		`commentmap_comments_enriched_total{outcome="placed"} 2`,
		`commentmap_comments_enriched_total{outcome="fallback"} 1`,
		`commentmap_replies_enriched_total 1`,
		`commentmap_enrich_duration_seconds_count 1`,
	)
}

func TestEvents_CountsAndForwards(t *testing.T) {
	m := New()
	var forwarded []string
	cb := m.Events(func(kind, name string) { forwarded = append(forwarded, kind+":"+name) })

	cb("batch.updated", "a.json")
	cb("batch.updated", "b.json")
	cb("batch.deleted", "a.json")

	if len(forwarded) != 3 || forwarded[2] != "batch.deleted:a.json" {
		t.Errorf("forwarded = %v", forwarded)
	}
	assertContains(t, scrape(t, m),
		`commentmap_index_events_total{kind="batch.updated"} 2`,
		`commentmap_index_events_total{kind="batch.deleted"} 1`,
	)
}

func TestEvents_NilNext(t *testing.T) {
	m := New()
	m.Events(nil)("document.reloaded", "/tmp/design.json")
	assertContains(t, scrape(t, m), `commentmap_index_events_total{kind="document.reloaded"} 1`)
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/batches/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/frames", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})

	for _, path := range []string{"/batches/a.json", "/batches/b.json", "/frames"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assertContains(t, scrape(t, m),
		`commentmap_http_requests_total{method="GET",route="/batches/{name}",status="404"} 2`,
		`commentmap_http_requests_total{method="GET",route="/frames",status="200"} 1`,
	)
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.EnrichRunsTotal.Inc()
	assertContains(t, scrape(t, b), `commentmap_enrich_runs_total 0`)
}
