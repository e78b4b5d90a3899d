package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/internal/engine"
)

var maintainOwner string

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the memory maintenance passes",
	Long:  "Run decay, inference cleanup, importance classification, consolidation, and inference generation for one owner or for all owners.",
	RunE:  runMaintain,
}

func init() {
	maintainCmd.Flags().StringVar(&maintainOwner, "owner", "", "restrict maintenance to one owner")
}

func runMaintain(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if maintainOwner != "" {
		res, err := a.engine.RunMemoryMaintenance(ctx, maintainOwner)
		if err != nil {
			return fmt.Errorf("maintenance for %s: %w", maintainOwner, err)
		}
		printMaintenance(res)
		return nil
	}

	results, err := a.engine.RunMaintenanceForAllOwners(ctx)
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	for i := range results {
		printMaintenance(&results[i])
	}
	fmt.Printf("maintained %d owners\n", len(results))
	return nil
}

func printMaintenance(res *engine.MaintenanceResult) {
	fmt.Printf("owner %s (%s)\n", res.OwnerID, res.Duration.Round(time.Millisecond))
	fmt.Printf("  decay: %d decayed, %d archived of %d examined\n",
		res.Decay.Decayed, res.Decay.Archived, res.Decay.Examined)
	fmt.Printf("  classified: %d, inferences expired: %d\n", res.Classified, res.InferencesExpired)
	fmt.Printf("  consolidated: %d of %d examined\n",
		res.Consolidation.Consolidated, res.Consolidation.Examined)
	fmt.Printf("  inferences stored: %d of %d proposed\n",
		res.Inference.Stored, res.Inference.Proposed)
}
