package cmd

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const Version = "0.3.0"

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "conduit",
		Short: "persistent connection transport server",
		Long: fmt.Sprintf(`conduit (v%s)

Accepts WebSocket and QUIC connections and exposes each one as a transport
with message, error and close streams.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of conduit",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("conduit v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.AddCommand(versionCmd, serveCmd, sendCmd)
}

// initConfig loads .env files and lets CONDUIT_<FLAG> variables override flags.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("conduit")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
