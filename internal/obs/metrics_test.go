package obs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"

	"worktrack.org/internal/auth"
	"worktrack.org/internal/ids"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCanonicalPath(t *testing.T) {
	id := ids.New()
	cases := []struct {
		in, want string
	}{
		{in: "", want: "/"},
		{in: "/metrics", want: "/metrics"},
		{in: "/v1/tasks/" + id, want: "/v1/tasks/:id"},
		{in: "/v1/tasks/" + id + "/status", want: "/v1/tasks/:id/status"},
		{in: "/v1/teams/" + id + "/members/" + id, want: "/v1/teams/:id/members/:id"},
		{in: "/v1/tasks?limit=10", want: "/v1/tasks"},
		{in: "/v1/tasks/not-an-id", want: "/v1/tasks/not-an-id"},
	}
	for _, tc := range cases {
		if got := CanonicalPath(tc.in); got != tc.want {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestObserveCounters(t *testing.T) {
	Init()
	Init()

	before := counterValue(t, authzDecisions.WithLabelValues("view_entity", "deny", "not_team_member"))
	ObserveDecision("view_entity", "deny", "not_team_member")
	if got := counterValue(t, authzDecisions.WithLabelValues("view_entity", "deny", "not_team_member")); got != before+1 {
		t.Fatalf("decision counter = %v, want %v", got, before+1)
	}

	ObserveToken("refresh", fmt.Errorf("wrapped: %w", auth.ErrTokenReused))
	if got := counterValue(t, tokenOperations.WithLabelValues("refresh", "reused")); got < 1 {
		t.Fatalf("token counter not incremented")
	}
}

func TestInstrumentRecordsStatus(t *testing.T) {
	Init()
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/teams", nil)
	rec := httptest.NewRecorder()
	before := counterValue(t, httpRequestsTotal.WithLabelValues("GET", "/v1/teams", "418"))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if got := counterValue(t, httpRequestsTotal.WithLabelValues("GET", "/v1/teams", "418")); got != before+1 {
		t.Fatalf("request counter = %v, want %v", got, before+1)
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	l := Logger()
	original := l.Out
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(original)

	LogRequest(logrus.Fields{"method": "GET", "status": 200})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "http request" || entry["method"] != "GET" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("missing ts field: %v", entry)
	}
}

func TestPublishBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	started := time.Unix(1_700_000_000, 0)
	if err := PublishBuild(reg, Build{Version: "1.2.0", Started: started}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := PublishBuild(reg, Build{Version: "1.2.0", Started: started}); err == nil {
		t.Fatal("registering twice should fail")
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := map[string]*dto.Metric{}
	for _, f := range families {
		got[f.GetName()] = f.GetMetric()[0]
	}
	info := got["worktrack_build_info"]
	if info == nil || info.GetGauge().GetValue() != 1 {
		t.Fatalf("missing build info: %v", got)
	}
	labels := map[string]string{}
	for _, l := range info.GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	if labels["version"] != "1.2.0" || labels["commit"] != "unknown" || labels["go"] == "" {
		t.Fatalf("unexpected labels: %v", labels)
	}
	if v := got["worktrack_started_at_seconds"].GetGauge().GetValue(); v != 1_700_000_000 {
		t.Fatalf("unexpected start time: %v", v)
	}
}
