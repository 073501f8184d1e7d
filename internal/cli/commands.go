package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/energizer-project/rconsole/internal/db"
)

const defaultHistoryRows = 20

// local runs a console command that never reaches the server.
func (c *Console) local(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case ":help", ":h", ":?":
		c.printHelp()
	case ":status", ":s":
		c.printStatus()
	case ":history":
		return c.printHistory(args)
	case ":reconnect":
		if err := c.session.Reconnect(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Reconnected.")
	case ":quit", ":exit", ":q":
		return errQuit
	default:
		return fmt.Errorf("unknown local command %q, type :help", cmd)
	}
	return nil
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, "Local commands:")
	fmt.Fprintln(c.out, "  :status        Show session state")
	fmt.Fprintln(c.out, "  :history [n]   Show the last n commands (default 20)")
	fmt.Fprintln(c.out, "  :reconnect     Drop the connection and log in again")
	fmt.Fprintln(c.out, "  :quit          Leave the console")
	fmt.Fprintln(c.out, "  :help          Show this help message")
	fmt.Fprintln(c.out, "Any other line is sent to the server as a command.")
}

// printStatus displays the session snapshot in a formatted table.
func (c *Console) printStatus() {
	info := c.session.Info()

	connectedAt := "-"
	if !info.ConnectedAt.IsZero() {
		connectedAt = info.ConnectedAt.Format(time.RFC3339)
	}

	tw := newTable(c.out, []string{"Field", "Value"})
	tw.AppendBulk([][]string{
		{"Session", info.ID},
		{"Address", info.Address},
		{"Local address", orDash(info.LocalAddress)},
		{"State", info.State},
		{"Multi-packet", strconv.FormatBool(info.MultiPacket)},
		{"Connected at", connectedAt},
		{"Commands", strconv.FormatUint(info.Commands, 10)},
		{"Failures", strconv.FormatUint(info.Failures, 10)},
		{"Last latency", info.LastLatency.String()},
		{"Last error", orDash(info.LastError)},
	})
	tw.Render()
}

func (c *Console) printHistory(args []string) error {
	if c.history == nil {
		return fmt.Errorf("history is disabled")
	}

	limit := defaultHistoryRows
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	entries, err := c.history.Recent(limit)
	if err != nil {
		return err
	}
	renderHistory(c.out, entries)
	return nil
}

// renderHistory prints entries oldest first.
func renderHistory(w io.Writer, entries []db.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history.")
		return
	}

	tw := newTable(w, []string{"ID", "Time", "Command", "Result", "Latency"})
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		result := "ok"
		if e.Failed() {
			result = truncate(e.Error, 40)
		}
		tw.Append([]string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			truncate(e.Command, 40),
			result,
			e.Duration.Round(time.Microsecond).String(),
		})
	}
	tw.Render()
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
