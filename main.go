package main

import (
	"os"

	"github.com/jailfriend/go-call-infra/cmd/cert"
	"github.com/jailfriend/go-call-infra/cmd/db"
	"github.com/jailfriend/go-call-infra/cmd/server"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "call-infra",
		Short: "Real-time peer call infrastructure",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.AddCommand(
		server.New(),
		db.New(),
		cert.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
