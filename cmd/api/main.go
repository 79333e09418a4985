package main

// @title           Yacht Club Membership API
// @version         1.0
// @description     Membership token registry, NFC card verification and payment reconciliation.

// @host      localhost:8888
// @BasePath  /

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "yachtclub",
		Short:   "Yacht club membership registry API",
		Version: Version,
		// serve is the default
		RunE: func(cmd *cobra.Command, args []string) error { return serve() },
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(hashKeyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
