package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mr1hm/guard-dispatch/internal/cli"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "dispatchctl",
		Short: "Operator tools for the guard dispatch service",
		Long: `dispatchctl seeds the site roster, inspects incidents and the beacon graph,
and runs escalation sweeps against the dispatch database.`,
		SilenceUsage: true,
	}
	cli.AddPersistentFlags(rootCmd)

	rootCmd.AddCommand(cli.SeedCmd())
	rootCmd.AddCommand(cli.IncidentsCmd())
	rootCmd.AddCommand(cli.SweepCmd())
	rootCmd.AddCommand(cli.GraphCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
