package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Real-Craft-Tech/stampwire/internal/secrets"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage signing secrets",
}

var secretGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new signing secret",
	Long: `Generate a new whsec_ signing secret.

Add the secret to the endpoint's entry in the endpoints file. During
rotation keep the old secret listed alongside the new one until all
senders have switched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := secrets.Generate()
		if err != nil {
			return err
		}
		fmt.Println(secret)
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretGenerateCmd)
	rootCmd.AddCommand(secretCmd)
}
