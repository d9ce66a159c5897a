package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/craftlink/craftlink/internal/auth"
	"github.com/craftlink/craftlink/internal/domain"
	"github.com/craftlink/craftlink/internal/rcon/rcontest"
	"github.com/craftlink/craftlink/internal/storage"
	"github.com/gorilla/websocket"
)

type staticStatus domain.ServerStatus

func (s staticStatus) Status() domain.ServerStatus { return domain.ServerStatus(s) }

type testEnv struct {
	router   *Router
	registry *storage.Registry
	console  *rcontest.Console
}

func newTestEnv(t *testing.T, status domain.ServerStatus) *testEnv {
	t.Helper()
	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}
	env := &testEnv{
		registry: storage.NewRegistry(storage.NewMemory()),
		console:  rcontest.NewConsole(),
	}
	env.router = NewRouter(env.registry, staticStatus(status), env.console,
		auth.NewService("secret", time.Hour, "admin", hash))
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/login", `{"username":"admin","password":"hunter22"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	return decode[LoginResponse](t, rec).Token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, domain.ServerStatus{})
	rec := env.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env := newTestEnv(t, domain.ServerStatus{
		Online:      []string{"steve"},
		OnlineCount: 1,
		Players:     []domain.PlayerStatus{{ChatID: "A", GameUsername: "steve", Health: 20}},
		LastUpdated: now,
	})

	rec := env.do(t, http.MethodGet, "/api/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[StatusResponse](t, rec)
	if got.OnlineCount != 1 || len(got.Players) != 1 || got.MonitorEnabled {
		t.Errorf("status = %+v", got)
	}
	if got.LastUpdated == nil || !got.LastUpdated.Equal(now) {
		t.Errorf("last_updated = %v", got.LastUpdated)
	}
}

func TestStatusBeforeFirstTick(t *testing.T) {
	env := newTestEnv(t, domain.ServerStatus{})
	rec := env.do(t, http.MethodGet, "/api/status", "", "")
	body := rec.Body.String()
	if !strings.Contains(body, `"online":[]`) || strings.Contains(body, "last_updated") {
		t.Errorf("body = %s", body)
	}
}

func TestUsersEndpoint(t *testing.T) {
	env := newTestEnv(t, domain.ServerStatus{})
	if err := env.registry.SetUsers(context.Background(), []domain.LinkedUser{
		{ChatID: "A", GameUsername: "steve", TotalPlaySeconds: 10},
		{ChatID: "B", GameUsername: "Alex", TotalPlaySeconds: 3600},
		{ChatID: "C", GameUsername: "bob", TotalPlaySeconds: 60},
	}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Alex", "bob", "steve"}},
		{"?sort=name", []string{"Alex", "bob", "steve"}},
		{"?sort=play_time&limit=1", []string{"Alex"}},
		{"?limit=2&offset=1", []string{"bob", "steve"}},
		{"?offset=10", []string{}},
	}
	for _, tt := range tests {
		rec := env.do(t, http.MethodGet, "/api/users"+tt.query, "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.query, rec.Code)
		}
		got := decode[UsersResponse](t, rec)
		if got.Total != 3 {
			t.Errorf("%s: total = %d", tt.query, got.Total)
		}
		names := []string{}
		for _, u := range got.Users {
			names = append(names, u.GameUsername)
		}
		if strings.Join(names, ",") != strings.Join(tt.want, ",") {
			t.Errorf("%s: users = %v, want %v", tt.query, names, tt.want)
		}
	}

	if rec := env.do(t, http.MethodGet, "/api/users?sort=bogus", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bogus sort status = %d", rec.Code)
	}
}

func TestUserEndpoint(t *testing.T) {
	env := newTestEnv(t, domain.ServerStatus{})
	if err := env.registry.SetUsers(context.Background(), []domain.LinkedUser{
		{ChatID: "A", GameUsername: "steve", TotalPlaySeconds: 3661},
	}); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/users/A", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[UserResponse](t, rec); got.GameUsername != "steve" || got.PlayTime != "1h 01m 01s" {
		t.Errorf("user = %+v", got)
	}

	if rec := env.do(t, http.MethodGet, "/api/users/Z", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing user status = %d", rec.Code)
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t, domain.ServerStatus{})
	tests := []struct {
		body string
		code int
	}{
		{`{`, http.StatusBadRequest},
		{`{"username":"admin"}`, http.StatusBadRequest},
		{`{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		if rec := env.do(t, http.MethodPost, "/api/auth/login", tt.body, ""); rec.Code != tt.code {
			t.Errorf("login %s: status = %d, want %d", tt.body, rec.Code, tt.code)
		}
	}
}

func TestRconRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, domain.ServerStatus{})

	if rec := env.do(t, http.MethodPost, "/api/rcon", `{"command":"list"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/rcon", `{"command":"list"}`, "forged"); rec.Code != http.StatusUnauthorized {
		t.Errorf("forged token status = %d", rec.Code)
	}
	if sent := env.console.Sent(); len(sent) != 0 {
		t.Errorf("unauthenticated commands reached the console: %q", sent)
	}
}

func TestRconPassthrough(t *testing.T) {
	env := newTestEnv(t, domain.ServerStatus{})
	env.console.Online("steve")
	token := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/rcon", `{"command":"/list"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[RconResponse](t, rec); !strings.Contains(got.Output, "online: steve") {
		t.Errorf("output = %q", got.Output)
	}
	if sent := env.console.Sent(); len(sent) != 1 || sent[0] != "list" {
		t.Errorf("commands = %q", sent)
	}

	if rec := env.do(t, http.MethodPost, "/api/rcon", `{"command":"  "}`, token); rec.Code != http.StatusBadRequest {
		t.Errorf("empty command status = %d", rec.Code)
	}
}

func TestWebSocketReceivesEvents(t *testing.T) {
	env := newTestEnv(t, domain.ServerStatus{})
	env.router.StartWebSocketHub()
	defer env.router.StopWebSocketHub()

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.router.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	env.router.Hub().Publish(domain.NewEvent(domain.EventPlayerJoin, domain.PlayerEvent{GameUsername: "steve"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		ID    string             `json:"id"`
		Event string             `json:"event"`
		Data  domain.PlayerEvent `json:"data"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Event != domain.EventPlayerJoin || got.Data.GameUsername != "steve" || got.ID == "" {
		t.Errorf("event = %+v", got)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		headers map[string]string
		remote  string
		want    string
	}{
		{map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "10.0.0.1:5000", "1.2.3.4"},
		{map[string]string{"X-Real-IP": " 5.6.7.8 "}, "10.0.0.1:5000", "5.6.7.8"},
		{nil, "9.9.9.9:1234", "9.9.9.9"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		for k, v := range tt.headers {
			req.Header.Set(k, v)
		}
		if got := getClientIP(req); got != tt.want {
			t.Errorf("getClientIP = %q, want %q", got, tt.want)
		}
	}
}
