package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mr1hm/guard-dispatch/internal/proximity"
)

// GraphCmd returns the graph command
func GraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <beacon>",
		Short: "Print the search rings around a beacon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			beacons, err := db.ListBeacons(ctx)
			if err != nil {
				return err
			}
			edges, err := db.ListEdges(ctx)
			if err != nil {
				return err
			}
			g, err := proximity.New(beacons, edges)
			if err != nil {
				return err
			}

			origin := args[0]
			if !g.Has(origin) {
				return fmt.Errorf("unknown or inactive beacon %q", origin)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Search from %s (%d beacons)\n", color.New(color.Bold).Sprint(origin), g.Len())
			for ring := range g.Search(origin) {
				fmt.Fprintf(out, "  ring %d: %s\n", ring.Level, strings.Join(ring.Beacons, ", "))
			}
			return nil
		},
	}
}
