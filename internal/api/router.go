package api

import (
	"net/http"

	"github.com/craftlink/craftlink/internal/auth"
	"github.com/craftlink/craftlink/internal/domain"
	"github.com/craftlink/craftlink/internal/rcon"
	"github.com/craftlink/craftlink/internal/storage"
)

// StatusSource provides the last assembled server snapshot
type StatusSource interface {
	Status() domain.ServerStatus
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux      *http.ServeMux
	registry *storage.Registry
	status   StatusSource
	console  rcon.Executor
	wsHub    *WebSocketHub
	auth     *auth.Service
}

// NewRouter creates a new HTTP router
func NewRouter(registry *storage.Registry, status StatusSource, console rcon.Executor, authService *auth.Service) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		registry: registry,
		status:   status,
		console:  console,
		wsHub:    NewWebSocketHub(),
		auth:     authService,
	}

	r.mux.HandleFunc("GET /api/status", r.handleGetStatus)
	r.mux.HandleFunc("GET /api/users", r.handleGetUsers)
	r.mux.HandleFunc("GET /api/users/{chatID}", r.handleGetUser)

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)

	// Console passthrough (admin only)
	r.mux.HandleFunc("POST /api/rcon", r.requireAdmin(r.handleRconCommand))

	// WebSocket endpoint
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// Hub returns the WebSocket hub so it can be attached as an event sink
func (r *Router) Hub() *WebSocketHub {
	return r.wsHub
}

// StartWebSocketHub starts broadcasting events to WebSocket clients
func (r *Router) StartWebSocketHub() {
	go r.wsHub.Run()
}

// StopWebSocketHub disconnects all clients and stops the hub
func (r *Router) StopWebSocketHub() {
	r.wsHub.Stop()
}
