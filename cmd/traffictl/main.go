// Package main is the traffictl CLI entrypoint.
// @title tunnelctl API
// @version 1.0
// @description HTTP surface of the tunnel traffic controller: liveness probes and the bearer-guarded traffic lifecycle endpoints.
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "traffictl",
		Short: "traffictl is the tunnel traffic lifecycle controller",
		Long:  "traffictl fronts the tunnel master's authenticated API and brokers traffic lifecycle requests from a workload orchestrator.",
	}

	rootCmd.AddCommand(newServeCommand(), newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
