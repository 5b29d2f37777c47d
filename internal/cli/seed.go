package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mr1hm/guard-dispatch/internal/seed"
)

// SeedCmd returns the seed command
func SeedCmd() *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load beacons, proximity edges and guards from a YAML roster",
		Long: `Validate a site roster and upsert it into the dispatch database.

The roster is written in one transaction. Beacons and edges are overwritten,
but edges dropped from the file are not removed. Guards that already exist
keep their current location and duty status. Send SIGHUP to a running
guard-dispatch to pick up graph changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.Load(file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "%s %s: %d beacons, %d edges, %d guards\n",
					color.New(color.FgGreen).Sprint("VALID"), file, len(f.Beacons), len(f.Edges), len(f.Guards))
				return nil
			}

			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			sum, err := seed.Apply(cmd.Context(), db, f, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Applied %s: %d beacons, %d edges, %d guards (%d new)\n",
				file, sum.Beacons, sum.Edges, sum.Guards, sum.NewGuards)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "roster YAML file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without writing")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
