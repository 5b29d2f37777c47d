package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mr1hm/guard-dispatch/internal/models"
	"github.com/mr1hm/guard-dispatch/internal/repository"
)

// IncidentsCmd returns the incidents command
func IncidentsCmd() *cobra.Command {
	var (
		status string
		beacon string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "List incidents, most recent signal first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := repository.IncidentFilter{Limit: limit, BeaconID: beacon}
			if status != "" {
				s := models.IncidentStatus(strings.ToUpper(status))
				if s != models.IncidentCreated && s != models.IncidentAssigned && s != models.IncidentInProgress && s != models.IncidentResolved {
					return fmt.Errorf("unknown status %q", status)
				}
				filter.Status = &s
			}

			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			incidents, err := db.ListIncidents(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(incidents) == 0 {
				fmt.Fprintln(out, "No incidents.")
				return nil
			}
			for _, inc := range incidents {
				scope := ""
				if inc.SystemWide {
					scope = " [system-wide]"
				}
				fmt.Fprintf(out, "%s  %-11s  %-8s  %-10s  last signal %s%s\n",
					inc.ID, statusColor(inc.Status), priorityColor(inc.Priority), inc.BeaconID,
					inc.LastSignalAt.Local().Format("2006-01-02 15:04:05"), scope)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (CREATED, ASSIGNED, IN_PROGRESS, RESOLVED)")
	cmd.Flags().StringVarP(&beacon, "beacon", "b", "", "filter by beacon")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum incidents to show")

	return cmd
}
