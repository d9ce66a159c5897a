package bot

import "strings"

// Command names
const (
	CmdJoin     = "join"
	CmdHelp     = "help"
	CmdSetGuild = "set guild"
	CmdProfile  = "profile"
	CmdList     = "list"
	CmdMonitor  = "monitor"
	CmdDebug    = "$debug"
)

// Command is a parsed prefix command
type Command struct {
	Name string
	Args []string
}

// Arg returns the i-th argument or ""
func (c Command) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// ParseCommand recognises a prefixed chat message. Messages without the
// prefix, or with an unknown command or wrong arity, report false.
func ParseCommand(prefix, content string) (Command, bool) {
	rest, ok := strings.CutPrefix(content, prefix)
	if !ok || prefix == "" {
		return Command{}, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Command{}, false
	}

	switch fields[0] {
	case CmdJoin:
		if len(fields) == 2 {
			return Command{Name: CmdJoin, Args: fields[1:]}, true
		}
	case CmdHelp:
		if len(fields) == 1 {
			return Command{Name: CmdHelp}, true
		}
	case "set":
		if len(fields) == 2 && fields[1] == "guild" {
			return Command{Name: CmdSetGuild}, true
		}
	case CmdProfile:
		if len(fields) <= 2 {
			return Command{Name: CmdProfile, Args: fields[1:]}, true
		}
	case CmdList:
		if len(fields) == 1 {
			return Command{Name: CmdList}, true
		}
	case CmdMonitor:
		// Anything after "monitor" is handed over so a bad mode gets a usage reply
		return Command{Name: CmdMonitor, Args: fields[1:]}, true
	case CmdDebug:
		return Command{Name: CmdDebug}, true
	}
	return Command{}, false
}
