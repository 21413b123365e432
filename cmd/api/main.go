package main

// @title WPS Bot Bridge API
// @version 1.0
// @description Receives WPS bot events, answers them through an OpenAI-compatible LLM gateway.

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /
// @schemes http
import (
	"os"

	_ "wps-bot-bridge/docs"
	protocol "wps-bot-bridge/protocal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveOpts protocol.ServeOptions

// rootCmd serves when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "wps-bot",
	Short: "WPS bot event bridge to an OpenAI-compatible LLM",
	Long: `Receives signed bot events from the WPS open platform, keeps a short
conversation context per chat and replies with answers from an
OpenAI-compatible chat completion gateway.`,
	Version:       protocol.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	return protocol.ServeHTTP(serveOpts)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serveOpts.Env, "env", "", "the environment to use, merges config.<env>.yaml")
	rootCmd.PersistentFlags().StringVar(&serveOpts.ConfigPath, "config", "./configs", "directory holding config.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newSimulateCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Errorln(err)
		os.Exit(1)
	}
}
