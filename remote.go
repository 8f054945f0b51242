package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mudler/LocalCircle/pkg/client"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
)

func remoteFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:3000", "address of a running server")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("LOCALCIRCLE_API_KEY"), "API key of the server")
}

func agentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the agents of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewClient(serverURL, apiKey, 0)
			agents, err := c.ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, a := range agents {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Block.State, a.Status.Text)
			}
			return nil
		},
	}
	remoteFlags(cmd)
	return cmd
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <agent-id> <message>",
		Short: "Send a message to an agent of a running server",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.NewClient(serverURL, apiKey, 0)
			reply, err := c.SendMessage(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range reply.Messages {
				fmt.Fprintf(out, "%s: %s\n", m.SenderName, m.Summary())
			}
			if reply.Skipped > 0 {
				fmt.Fprintf(out, "(%d commands skipped)\n", reply.Skipped)
			}
			return nil
		},
	}
	remoteFlags(cmd)
	return cmd
}
