package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// RconRequest is the request body for RCON commands
type RconRequest struct {
	Command string `json:"command"`
}

// RconResponse is the response body for RCON commands
type RconResponse struct {
	Output string `json:"output"`
}

// handleRconCommand runs a raw console command on the game server (admin only)
func (r *Router) handleRconCommand(w http.ResponseWriter, req *http.Request) {
	var rconReq RconRequest
	if err := json.NewDecoder(req.Body).Decode(&rconReq); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	command := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rconReq.Command), "/"))
	if command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	claims := r.getAuthClaims(req)
	slog.Info("Console command", "user", claims.Username, "command", command)

	output, err := r.console.Execute(req.Context(), command)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, RconResponse{Output: output})
}
