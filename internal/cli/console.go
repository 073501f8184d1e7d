// Package cli implements the rconsole command line: the cobra command
// tree and the interactive console.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconsole/internal/db"
	"github.com/energizer-project/rconsole/internal/session"
)

// Prompt is printed before every console line.
const Prompt = ">> "

// errQuit ends the console loop without an error.
var errQuit = errors.New("quit")

// Console is the interactive read-execute-print loop. Lines starting with
// ':' are handled locally; everything else is sent to the server.
type Console struct {
	session *session.Session
	history *db.HistoryDatabase

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

// NewConsole creates a console. history may be nil.
func NewConsole(sess *session.Session, history *db.HistoryDatabase, in io.Reader, out, errOut io.Writer) *Console {
	return &Console{
		session: sess,
		history: history,
		in:      bufio.NewReader(in),
		out:     out,
		errOut:  errOut,
	}
}

// Run reads lines until EOF, :quit or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintf(c.out, "rconsole %s. Type :help for local commands.\n", c.session.Info().Address)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprint(c.out, Prompt)
		line, err := c.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read input: %w", err)
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) != "" {
			if execErr := c.execute(ctx, line); execErr != nil {
				if errors.Is(execErr, errQuit) {
					return nil
				}
				fmt.Fprintf(c.errOut, "ERROR: %v\n", execErr)
			}
		}

		if eof {
			fmt.Fprintln(c.out)
			return nil
		}
	}
}

func (c *Console) execute(ctx context.Context, line string) error {
	if strings.HasPrefix(line, ":") {
		fields := strings.Fields(line)
		return c.local(ctx, strings.ToLower(fields[0]), fields[1:])
	}

	out, err := c.session.Execute(ctx, line)
	if err != nil {
		log.Debug().Err(err).Str("command", line).Msg("console command failed")
		return err
	}

	fmt.Fprint(c.out, out)
	if out != "" && !strings.HasSuffix(out, "\n") {
		fmt.Fprintln(c.out)
	}
	return nil
}
