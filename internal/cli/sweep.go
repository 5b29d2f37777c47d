package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mr1hm/guard-dispatch/internal/escalation"
)

// SweepCmd returns the sweep command
func SweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one escalation sweep, expiring overdue alerts",
		Long: `Expire every assignment alert past its response deadline and offer the
incident to the next guard. The running service does this on its own; use this
when the service is down or to force an immediate pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			engine, cfg, cleanup, err := openEngine(cmd.Context(), db)
			if err != nil {
				return err
			}
			defer cleanup()

			n := escalation.New(engine, cfg.Dispatch.SweepInterval, nil).Sweep(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Expired %d alert(s)\n", n)
			return nil
		},
	}
}
