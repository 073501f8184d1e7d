package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/energizer-project/rconsole/internal/api"
	"github.com/energizer-project/rconsole/internal/config"
	"github.com/energizer-project/rconsole/internal/db"
	"github.com/energizer-project/rconsole/internal/network"
	"github.com/energizer-project/rconsole/internal/scheduler"
)

func (a *app) consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Open an interactive console (default)",
		Args:  cobra.NoArgs,
		RunE:  a.runConsole,
	}
}

func (a *app) runConsole(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	rt, err := newServices(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.session.Open(ctx); err != nil {
		return err
	}

	console := NewConsole(rt.session, rt.history, a.in, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return console.Run(ctx)
}

func (a *app) execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command...>",
		Short: "Run one command and print its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := newServices(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.session.Open(ctx); err != nil {
				return err
			}

			out, err := rt.session.Execute(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), out)
			if out != "" && !strings.HasSuffix(out, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored command history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h := a.cfg.GetHistory()
			if !h.Enabled {
				return errors.New("history is disabled in the configuration")
			}

			history, err := db.NewHistoryDatabase(h.Path, h.MaxEntries)
			if err != nil {
				return err
			}
			defer history.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			search, _ := cmd.Flags().GetString("search")

			var entries []db.Entry
			if search != "" {
				entries, err = history.Search(search, limit)
			} else {
				entries, err = history.Recent(limit)
			}
			if err != nil {
				return err
			}

			renderHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().Int("limit", defaultHistoryRows, "Number of entries to print")
	cmd.Flags().String("search", "", "Only print commands containing this text")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			rt, err := newServices(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			// The gateway stays up without a connection; clients can
			// POST /api/reconnect once the server is reachable.
			if err := rt.session.Open(ctx); err != nil {
				log.Warn().Err(err).Msg("starting gateway without an RCON connection")
			}

			go scheduler.NewScheduler(a.cfg, rt.history, rt.session).Start(ctx)

			server := api.NewServer(a.cfg, rt.session, rt.history, rt.metrics)
			return server.Start(ctx)
		},
	}
}

func (a *app) mockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a local mock RCON server",
		Long: `Run a local RCON server that answers status, echo, say, cvarlist and
help. It authenticates with the configured password and listens on the
configured address and port unless --listen is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			addr, _ := cmd.Flags().GetString("listen")
			if addr == "" {
				addr = a.cfg.Address()
			}

			srv := &network.Server{
				Password: a.cfg.GetServer().Password,
				Handler:  network.DefaultHandler,
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mock RCON server listening on %s\n", addr)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().String("listen", "", "Listen address (default: the configured server address)")
	return cmd
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or update the configuration file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.RunSetupWizard(a.cfg, a.in, cmd.OutOrStdout())
		},
	}
}
