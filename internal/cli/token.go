package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Real-Craft-Tech/stampwire/internal/config"
	"github.com/Real-Craft-Tech/stampwire/internal/server"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin API bearer token",
	Long: `Mint a bearer token for the admin API using the configured JWT
secret. The token expires after the configured TTL.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Token subject claim")

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		return err
	}

	if !cfg.Admin.Enabled {
		return errors.New("admin API is disabled in configuration")
	}

	token, err := server.GenerateAdminToken(cfg.Admin.JWT, tokenSubject)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
