package cmd

import (
	"github.com/spf13/cobra"
	"renderqueue/config"
	server2 "renderqueue/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start render queue http server",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
