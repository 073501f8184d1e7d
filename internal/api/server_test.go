package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/energizer-project/rconsole/internal/config"
	"github.com/energizer-project/rconsole/internal/db"
	"github.com/energizer-project/rconsole/internal/metrics"
	"github.com/energizer-project/rconsole/internal/network"
	"github.com/energizer-project/rconsole/internal/session"
)

func startMock(t *testing.T) string {
	t.Helper()

	srv := &network.Server{Password: "secret", Handler: network.DefaultHandler}
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := srv.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		cancel()
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

type fixture struct {
	handler http.Handler
	session *session.Session
	history *db.HistoryDatabase
}

func newFixture(t *testing.T, token string, withHistory bool) *fixture {
	t.Helper()

	addr := startMock(t)
	sess := session.New(session.Options{
		Address:     addr,
		Password:    "secret",
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	t.Cleanup(func() { sess.Close() })

	cfg := config.DefaultConfig()
	cfg.API.Token = token
	cfg.API.RateLimitRPS = 0

	var history *db.HistoryDatabase
	if withHistory {
		var err error
		history, err = db.NewHistoryDatabase(filepath.Join(t.TempDir(), "history.db"), 0)
		if err != nil {
			t.Fatalf("open history: %v", err)
		}
		t.Cleanup(func() { history.Close() })
	}

	m := metrics.New(metrics.WithRegistry(prometheus.NewRegistry()))
	srv := NewServer(cfg, sess, history, m)
	return &fixture{handler: srv.Handler(), session: sess, history: history}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestPingIsPublic(t *testing.T) {
	f := newFixture(t, "token-123456789012", false)

	rec := f.do(t, http.MethodGet, "/api/public/ping", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode(t, rec)["service"]; got != "rconsole" {
		t.Errorf("service = %v", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestTokenRequired(t *testing.T) {
	f := newFixture(t, "token-123456789012", false)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", "token-123456789012", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/status", tt.token, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCommandNotConnected(t *testing.T) {
	f := newFixture(t, "", false)

	rec := f.do(t, http.MethodPost, "/api/command", "", map[string]string{"command": "status"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	f := newFixture(t, "", false)

	rec := f.do(t, http.MethodPost, "/api/reconnect", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconnect status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/command", "", map[string]string{"command": "echo hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("command status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["output"]; got != "hello" {
		t.Errorf("output = %q, want %q", got, "hello")
	}

	rec = f.do(t, http.MethodGet, "/api/status", "", nil)
	status := decode(t, rec)
	sess, ok := status["session"].(map[string]interface{})
	if !ok {
		t.Fatalf("status has no session: %v", status)
	}
	if sess["state"] != "authenticated" {
		t.Errorf("state = %v, want authenticated", sess["state"])
	}
}

func TestCommandValidation(t *testing.T) {
	f := newFixture(t, "", false)
	if err := f.session.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"missing command", map[string]string{}, http.StatusBadRequest},
		{"embedded NUL", map[string]string{"command": "a\x00b"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/command", "", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t, "", true)
	for _, cmd := range []string{"status", "say hi", "status"} {
		if _, err := f.history.Record(db.Entry{Command: cmd}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	tests := []struct {
		path string
		code int
		want int
	}{
		{"/api/history", http.StatusOK, 3},
		{"/api/history?limit=1", http.StatusOK, 1},
		{"/api/history?q=say", http.StatusOK, 1},
		{"/api/history?q=nothing", http.StatusOK, 0},
		{"/api/history?limit=abc", http.StatusBadRequest, -1},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.path, "", nil)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if tt.want < 0 {
				return
			}
			entries, ok := decode(t, rec)["entries"].([]interface{})
			if !ok {
				t.Fatalf("entries missing: %s", rec.Body.String())
			}
			if len(entries) != tt.want {
				t.Errorf("entries = %d, want %d", len(entries), tt.want)
			}
		})
	}
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, "", false)

	rec := f.do(t, http.MethodGet, "/api/history", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "", false)
	if err := f.session.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rconsole_connects_total") {
		t.Errorf("metrics output missing connects counter:\n%s", rec.Body.String())
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	f := newFixture(t, "", false)

	rec := f.do(t, http.MethodGet, "/api/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(1)
	rl.now = func() time.Time { return now }

	// Burst is twice the rate.
	for i := 0; i < 2; i++ {
		if !rl.Allow("a") {
			t.Fatalf("request %d denied", i)
		}
	}
	if rl.Allow("a") {
		t.Fatal("third request allowed")
	}
	if !rl.Allow("b") {
		t.Fatal("other client denied")
	}

	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Fatal("request after refill denied")
	}

	now = now.Add(time.Hour)
	if n := rl.Forget(time.Minute); n != 2 {
		t.Errorf("Forget removed %d, want 2", n)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}

	for _, tt := range tests {
		if got := extractBearerToken(tt.header); got != tt.want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
