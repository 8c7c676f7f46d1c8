package obs

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                 "/",
		"/metrics":         "/metrics",
		"/api/orgs/01HZX3J4K5M6N7P8Q9R0S1T2V3":         "/api/orgs/:id",
		"/api/orgs/01HZX3J4K5M6N7P8Q9R0S1T2V3/members": "/api/orgs/:id/members",
		"/api/invitations/" + "abcdefghijklmnopqrstuvwxyz0123456789-_ABCDE": "/api/invitations/:id",
		"/api/auth/init?org_id=1": "/api/auth/init",
		"/api/users/me":           "/api/users/me",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestDomainCounters(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(emailsSent.WithLabelValues("invite", "error"))
	EmailSent("invite", errors.New("smtp down"))
	if got := testutil.ToFloat64(emailsSent.WithLabelValues("invite", "error")); got != before+1 {
		t.Fatalf("expected counter %v, got %v", before+1, got)
	}

	SetReady(true)
	if got := testutil.ToFloat64(readyGauge); got != 1 {
		t.Fatalf("expected ready gauge 1, got %v", got)
	}
	SetReady(false)
	if got := testutil.ToFloat64(readyGauge); got != 0 {
		t.Fatalf("expected ready gauge 0, got %v", got)
	}
}

func TestInstrumentCountsRequests(t *testing.T) {
	Init()
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/probe", "418"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/probe", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/probe", "418")); got != before+1 {
		t.Fatalf("expected %v requests, got %v", before+1, got)
	}
}

func TestBuildInfo(t *testing.T) {
	Init()

	b := Build()
	if b.Version != Version || b.Commit != Commit || b.GoVersion == "" || b.StartedAt.IsZero() {
		t.Fatalf("unexpected build info: %+v", b)
	}
	if !strings.Contains(b.String(), "accounts "+Version) {
		t.Fatalf("unexpected version line %q", b.String())
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() != "accounts_build_info" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["version"] == Version && labels["commit"] == Commit && m.GetGauge().GetValue() == 1 {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("accounts_build_info not exported")
	}
}
