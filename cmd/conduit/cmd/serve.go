package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zeusync/conduit/internal/config"
	"github.com/zeusync/conduit/internal/injector"
)

var (
	serveConfig = config.Default()
	serveCmd    = &cobra.Command{
		Use:     "serve",
		Short:   "Start the transport server",
		Long:    `Start the transport server. Settings come from the YAML file given by --config, then flags, then environment variables in the form CONDUIT_<FLAG> (e.g. CONDUIT_HTTP_ADDR=0.0.0.0:8080).`,
		PreRunE: processServeConfig,
		RunE:    runServe,
	}
)

func init() {
	flags := serveCmd.Flags()
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("http-addr", serveConfig.Server.HTTPAddr, "Address of the WebSocket listener")
	flags.String("path", serveConfig.Server.Path, "HTTP path accepting WebSocket upgrades")
	flags.String("auth-token", "", "Shared token clients must present when connecting")
	flags.Bool("quic", false, "Also accept QUIC connections")
	flags.String("quic-addr", serveConfig.QUIC.Addr, "Address of the QUIC listener")
	flags.String("log-level", serveConfig.Log.Level, "Log level (debug, info, warn, error)")
}

// processServeConfig merges the config file with flag and env overrides.
func processServeConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return err
	}

	if viper.IsSet("http-addr") {
		cfg.Server.HTTPAddr = viper.GetString("http-addr")
	}
	if viper.IsSet("path") {
		cfg.Server.Path = viper.GetString("path")
	}
	if viper.IsSet("auth-token") {
		cfg.Server.AuthToken = viper.GetString("auth-token")
	}
	if viper.IsSet("quic") {
		cfg.QUIC.Enabled = viper.GetBool("quic")
	}
	if viper.IsSet("quic-addr") {
		cfg.QUIC.Addr = viper.GetString("quic-addr")
	}
	if viper.IsSet("log-level") {
		cfg.Log.Level = viper.GetString("log-level")
	}

	serveConfig = cfg
	return serveConfig.Validate()
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := injector.InitializeServer(serveConfig)
	return srv.Run(ctx)
}
