package rcon

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/craftlink/craftlink/internal/domain"
)

const (
	onlineMarker    = "online: "
	notExistsMarker = "does not exist"
)

var (
	countPattern  = regexp.MustCompile(`There are (\d+)`)
	posPattern    = regexp.MustCompile(`Pos: \[(-?[0-9.Ee+-]+)d, (-?[0-9.Ee+-]+)d, (-?[0-9.Ee+-]+)d\]`)
	healthPattern = regexp.MustCompile(`Health: ([0-9.]+)f`)
)

// ParseOnlineCount extracts the player count from a `list` response.
// Returns 0 when the count is missing.
func ParseOnlineCount(resp string) int {
	m := countPattern.FindStringSubmatch(resp)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// ParseOnlinePlayers extracts the online usernames from a `list` response
// in the order the server reported them.
// Format: There are 2 of a max of 20 players online: steve, alex
func ParseOnlinePlayers(resp string) []string {
	idx := strings.Index(resp, onlineMarker)
	if idx == -1 {
		return []string{}
	}

	rest := resp[idx+len(onlineMarker):]
	if nl := strings.IndexAny(rest, "\r\n"); nl != -1 {
		rest = rest[:nl]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return []string{}
	}

	players := make([]string, 0, strings.Count(rest, ", ")+1)
	for _, name := range strings.Split(rest, ", ") {
		name = strings.TrimSpace(name)
		if name != "" {
			players = append(players, name)
		}
	}
	return players
}

// WhitelistAddRejected reports whether a `whitelist add` response says the
// account is not a real Minecraft account.
func WhitelistAddRejected(resp string) bool {
	return strings.Contains(resp, notExistsMarker)
}

// ParseEntity extracts position and health from a `data get entity` response.
// The boolean is true only when both were found.
func ParseEntity(resp string) (domain.Telemetry, bool) {
	var t domain.Telemetry

	if m := posPattern.FindStringSubmatch(resp); m != nil {
		x, errX := strconv.ParseFloat(m[1], 64)
		y, errY := strconv.ParseFloat(m[2], 64)
		z, errZ := strconv.ParseFloat(m[3], 64)
		if errX == nil && errY == nil && errZ == nil {
			t.Position = &domain.Position{X: x, Y: y, Z: z}
		}
	}

	if m := healthPattern.FindStringSubmatch(resp); m != nil {
		if h, err := strconv.ParseFloat(m[1], 64); err == nil {
			t.Health = &h
		}
	}

	return t, t.Complete()
}
