package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/energizer-project/rconsole/internal/config"
	"github.com/energizer-project/rconsole/internal/util"
)

// EnvPrefix prefixes every environment override, e.g. RCON_PASSWORD.
const EnvPrefix = "rcon"

// app carries state shared by the subcommands of one root command.
type app struct {
	v   *viper.Viper
	in  io.Reader
	cfg *config.Config
}

// NewRootCmd builds the rconsole command tree. Running the root command
// without a subcommand opens the console.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), in: os.Stdin}

	root := &cobra.Command{
		Use:   "rconsole",
		Short: "Source RCON console",
		Long: fmt.Sprintf(`rconsole (v%s)

An interactive console, one-shot executor and HTTP gateway for game
servers speaking the Source RCON protocol.

Every persistent flag can also be set from the environment as
RCON_<FLAG> (e.g. RCON_PASSWORD, RCON_MULTI_PACKET), or in a .env file.`, util.Version),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runConsole,
	}

	flags := root.PersistentFlags()
	flags.String("config", config.DefaultConfigFile, "Path to the TOML configuration file")
	flags.String("address", "", "RCON server host")
	flags.Int("port", 0, "RCON server port")
	flags.String("password", "", "RCON password")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.Bool("multi-packet", false, "Reassemble responses split over several packets")

	root.AddCommand(
		a.consoleCmd(),
		a.execCmd(),
		a.historyCmd(),
		a.serveCmd(),
		a.mockCmd(),
		a.initCmd(),
		versionCmd(),
	)
	return root
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads .env files, binds flags and environment, loads the config
// file and applies overrides. Precedence: flag > env > file > default.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(a.v.GetString("config"))
	if err != nil {
		return err
	}
	a.applyOverrides(cfg)
	a.cfg = cfg

	if err := util.InitLogger(cfg.LogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if cmd.Name() == "init" || cmd.Name() == "version" {
		return nil
	}
	return validation.Err()
}

func (a *app) applyOverrides(cfg *config.Config) {
	server := cfg.GetServer()
	if a.v.IsSet("address") {
		server.Address = a.v.GetString("address")
	}
	if a.v.IsSet("port") {
		server.Port = a.v.GetInt("port")
	}
	if a.v.IsSet("password") {
		server.Password = a.v.GetString("password")
	}
	if a.v.IsSet("multi-packet") {
		server.MultiPacket = a.v.GetBool("multi-packet")
	}
	cfg.SetServer(server)

	if a.v.IsSet("log-level") {
		cfg.SetLogLevel(a.v.GetString("log-level"))
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rconsole",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rconsole v%s\n", util.Version)
		},
	}
}
