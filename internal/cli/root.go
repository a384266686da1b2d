// Package cli implements the stampwire command line interface.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "stampwire",
	Short: "Webhook signing and delivery for stamp processing events",
	Long: `Stampwire signs, delivers, and verifies webhook notifications for
stamp processing events.

  - HMAC-SHA256 signatures over {id}.{timestamp}.{body}
  - Replay protection via timestamp tolerance and delivery receipts
  - Seamless secret rotation with multi-signature headers
  - SQLite-backed outbound queue with retries and a dead letter queue

Start the receiver:
  stampwire serve

Mint a signing secret for a new endpoint:
  stampwire secret generate`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./stampwire.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// setupLogging configures the default console logger. serve reconfigures
// it from file config once loaded.
func setupLogging() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}
