package bot

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		content string
		want    Command
		ok      bool
	}{
		{"::join steve", Command{Name: CmdJoin, Args: []string{"steve"}}, true},
		{"::join   steve  ", Command{Name: CmdJoin, Args: []string{"steve"}}, true},
		{"::join", Command{}, false},
		{"::join a b", Command{}, false},
		{"::help", Command{Name: CmdHelp}, true},
		{"::set guild", Command{Name: CmdSetGuild}, true},
		{"::set channel", Command{}, false},
		{"::profile", Command{Name: CmdProfile, Args: []string{}}, true},
		{"::profile alex", Command{Name: CmdProfile, Args: []string{"alex"}}, true},
		{"::list", Command{Name: CmdList}, true},
		{"::monitor playerList on", Command{Name: CmdMonitor, Args: []string{"playerList", "on"}}, true},
		{"::monitor", Command{Name: CmdMonitor, Args: []string{}}, true},
		{"::$debug hello there", Command{Name: CmdDebug}, true},
		{"join steve", Command{}, false},
		{"::", Command{}, false},
		{"::dance", Command{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseCommand("::", tt.content)
		if ok != tt.ok {
			t.Errorf("ParseCommand(%q) ok = %v, want %v", tt.content, ok, tt.ok)
			continue
		}
		if ok && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseCommand(%q) = %#v, want %#v", tt.content, got, tt.want)
		}
	}
}

func TestCommandArg(t *testing.T) {
	c := Command{Name: CmdProfile}
	if c.Arg(0) != "" {
		t.Errorf("Arg(0) = %q, want empty", c.Arg(0))
	}
}
