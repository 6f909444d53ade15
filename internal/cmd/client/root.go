package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the Courier client.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "courier",
		Short: "Courier client commands",
	}
	AddMessageCommands(root, baseURL)
	return root
}

// AddMessageCommands registers the message commands on parent.
func AddMessageCommands(parent *cobra.Command, baseURL BaseURLFunc) {
	parent.AddCommand(
		newPublishCommand(),
		newQueryCommand(),
		newSubscribeCommand(),
		newTopicsCommand(baseURL),
		newStatsCommand(baseURL),
	)
}
