// Package cli wires the portal's commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/nexushub/portal/internal/config"
)

// Shared CLI flags
var envFile string

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portal",
		Short: "Nexus portal - web gateway to the agent orchestrator",
		Long: `The portal serves the agent directory, registration and the chat channel
to browsers and relays every request to the orchestrator.

Run 'portal serve' to start the gateway, or 'portal chat' to talk to a running one.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(envFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with KEY=VALUE settings loaded before the environment is read")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newAgentsCmd())
	rootCmd.AddCommand(newRegisterCmd())

	return rootCmd
}
