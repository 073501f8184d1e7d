package network

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Handler returns the output for one authenticated command.
type Handler func(command string) string

// CommandTable dispatches on the first word of a command.
type CommandTable map[string]func(args []string) string

// Handler returns a Handler backed by the table. Unknown commands get the
// usual "Unknown command" reply.
func (t CommandTable) Handler() Handler {
	return func(command string) string {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return ""
		}
		fn, ok := t[strings.ToLower(fields[0])]
		if !ok {
			return fmt.Sprintf("Unknown command \"%s\"\n", fields[0])
		}
		return fn(fields[1:])
	}
}

// Names returns the sorted command names.
func (t CommandTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var startedAt = time.Now()

// DefaultCommands is the command set of the mock server.
func DefaultCommands() CommandTable {
	table := CommandTable{
		"status": func([]string) string {
			return fmt.Sprintf("hostname: rconsole mock\nversion : 1.0.0\nuptime  : %s\nplayers : 0 humans, 0 bots (16 max)\n",
				time.Since(startedAt).Round(time.Second))
		},
		"echo": func(args []string) string {
			return strings.Join(args, " ")
		},
		"say": func(args []string) string {
			return "Console: " + strings.Join(args, " ") + "\n"
		},
		// cvarlist produces output long enough to span several packets.
		"cvarlist": func([]string) string {
			var b strings.Builder
			for i := 0; i < 400; i++ {
				fmt.Fprintf(&b, "mock_cvar_%03d                            : %d : , \"sv\" : mock variable %d\n", i, i, i)
			}
			fmt.Fprintf(&b, "--------------\n%d total convars/concommands\n", 400)
			return b.String()
		},
	}
	table["help"] = func([]string) string {
		return "Available commands: " + strings.Join(table.Names(), ", ")
	}
	return table
}

// DefaultHandler answers with DefaultCommands.
func DefaultHandler(command string) string {
	return defaultHandler(command)
}

var defaultHandler = DefaultCommands().Handler()
