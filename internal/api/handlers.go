package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/craftlink/craftlink/internal/domain"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	OnlineCount    int                   `json:"online_count"`
	Online         []string              `json:"online"`
	Players        []domain.PlayerStatus `json:"players"`
	LastUpdated    *time.Time            `json:"last_updated,omitempty"`
	MonitorEnabled bool                  `json:"monitor_enabled"`
}

// UserResponse is a linked user with its play time pre-formatted
type UserResponse struct {
	domain.LinkedUser
	PlayTime string `json:"play_time"`
}

// UsersResponse is the body of GET /api/users
type UsersResponse struct {
	Users []UserResponse `json:"users"`
	Total int            `json:"total"`
}

func newUserResponse(u domain.LinkedUser) UserResponse {
	return UserResponse{LinkedUser: u, PlayTime: domain.FormatPlayTime(u.TotalPlaySeconds)}
}

// handleGetStatus returns the last display snapshot
func (r *Router) handleGetStatus(w http.ResponseWriter, req *http.Request) {
	monitor, err := r.registry.ActivityMonitor(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := r.status.Status()
	resp := StatusResponse{
		OnlineCount:    status.OnlineCount,
		Online:         status.Online,
		Players:        status.Players,
		MonitorEnabled: monitor.Enabled(),
	}
	if resp.Online == nil {
		resp.Online = []string{}
	}
	if resp.Players == nil {
		resp.Players = []domain.PlayerStatus{}
	}
	if !status.LastUpdated.IsZero() {
		resp.LastUpdated = &status.LastUpdated
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetUsers returns linked users, most played first by default
func (r *Router) handleGetUsers(w http.ResponseWriter, req *http.Request) {
	sortBy := req.URL.Query().Get("sort")
	if sortBy == "" {
		sortBy = "play_time"
	}
	if !validateSort(sortBy) {
		writeError(w, http.StatusBadRequest, "invalid sort")
		return
	}
	limit := parseLimit(req, 50, 500)
	offset := parseOffset(req)

	users, err := r.registry.Users(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sorted := slices.Clone(users)
	switch sortBy {
	case "play_time":
		slices.SortStableFunc(sorted, func(a, b domain.LinkedUser) int {
			switch {
			case a.TotalPlaySeconds > b.TotalPlaySeconds:
				return -1
			case a.TotalPlaySeconds < b.TotalPlaySeconds:
				return 1
			}
			return 0
		})
	case "name":
		slices.SortStableFunc(sorted, func(a, b domain.LinkedUser) int {
			return strings.Compare(strings.ToLower(a.GameUsername), strings.ToLower(b.GameUsername))
		})
	}

	resp := UsersResponse{Users: []UserResponse{}, Total: len(sorted)}
	if offset < len(sorted) {
		end := min(offset+limit, len(sorted))
		for _, u := range sorted[offset:end] {
			resp.Users = append(resp.Users, newUserResponse(u))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetUser returns the record owned by a chat identity
func (r *Router) handleGetUser(w http.ResponseWriter, req *http.Request) {
	chatID := req.PathValue("chatID")

	users, err := r.registry.Users(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	idx := domain.FindByChatID(users, chatID)
	if idx == -1 {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(users[idx]))
}

// handleHealth returns a simple health check response
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
