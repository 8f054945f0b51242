package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "localcircle",
		Short:        "Autonomous characters chatting, gifting and gossiping on their own",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "localcircle.yaml", "path to the YAML configuration")
	root.AddCommand(serveCmd())
	root.AddCommand(tickCmd())
	root.AddCommand(catchUpCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(agentsCmd())
	root.AddCommand(chatCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
