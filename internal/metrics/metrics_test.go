package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func expectLines(t *testing.T, body string, lines ...string) {
	t.Helper()
	for _, want := range lines {
		if !strings.Contains(body, want+"\n") {
			t.Fatalf("metrics output missing %q\n%s", want, body)
		}
	}
}

func TestObserveCommand(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()))

	m.ObserveCommand(ResultOK, 20*time.Millisecond, 100)
	m.ObserveCommand(ResultOK, 30*time.Millisecond, 50)
	m.ObserveCommand(ResultUnauthorised, time.Millisecond, 0)

	expectLines(t, scrape(t, m),
		`rconsole_commands_total{result="ok"} 2`,
		`rconsole_commands_total{result="unauthorised"} 1`,
		`rconsole_response_bytes_total 150`,
		`rconsole_command_duration_seconds_count 3`,
	)
}

func TestConnectGauge(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()))

	m.ObserveConnect(ResultAuthFailed)
	expectLines(t, scrape(t, m), `rconsole_session_connected 0`)

	m.ObserveConnect(ResultOK)
	expectLines(t, scrape(t, m),
		`rconsole_session_connected 1`,
		`rconsole_connects_total{result="ok"} 1`,
		`rconsole_connects_total{result="auth_failed"} 1`,
	)

	m.SetDisconnected()
	expectLines(t, scrape(t, m), `rconsole_session_connected 0`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCommand(ResultOK, time.Second, 10)
	m.ObserveConnect(ResultOK)
	m.SetDisconnected()
}

func TestDefaultRegistryIncludesRuntime(t *testing.T) {
	m := New(WithNamespace("test"), WithConstLabels(prometheus.Labels{"server": "a"}))
	m.ObserveCommand(ResultOK, time.Millisecond, 4)

	body := scrape(t, m)
	expectLines(t, body,
		`test_commands_total{result="ok",server="a"} 1`,
		`test_response_bytes_total{server="a"} 4`,
	)
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("go collector not registered")
	}
}
