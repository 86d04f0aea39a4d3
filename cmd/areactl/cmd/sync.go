package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mountly/mountly-backend/internal/areasync"
)

var (
	workerID string
	areaID   string
	areaName string
)

func optionsNone() areasync.Options { return areasync.Options{} }

func addAreaFlags(c *cobra.Command) {
	c.Flags().StringVar(&workerID, "worker", "", "worker ID owning the area")
	c.Flags().StringVar(&areaID, "area", "", "existing area ID to update (empty creates one)")
	c.Flags().StringVar(&areaName, "name", "", "area display name")
	_ = c.MarkFlagRequired("worker")
}

// report prints the end state and validates what the backend stored.
func report(ctx context.Context, c *areasync.Controller) error {
	st := c.State()
	for _, e := range st.Errors {
		fmt.Println("warning:", e)
	}
	if st.AreaID == "" {
		return nil
	}
	res, err := c.ValidateSyncState(ctx, st.AreaID, len(st.SyncedZips))
	if err != nil {
		return err
	}
	status := "in sync"
	if !res.InSync {
		status = fmt.Sprintf("OUT OF SYNC (backend has %d)", res.Actual)
	}
	fmt.Printf("area %s: %d postal codes, %s\n", st.AreaID, len(st.SyncedZips), status)
	return nil
}

var syncCmd = &cobra.Command{
	Use:   "sync <polygon.json|->",
	Short: "Compute a polygon's postal codes and store them",
	Long: `Compute the postal codes of a polygon locally, push them to the
service-area API and check the stored count.

Examples:
  areactl sync --worker w-123 --name "North Side" north-side.json
  areactl sync --worker w-123 --area 5f0c6b8e-7a76-4c0e-9a43-0b8f3c7d9e11 north-side.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		vertices, err := readPolygon(args[0])
		if err != nil {
			return err
		}
		ix, err := loadIndex(ctx)
		if err != nil {
			return err
		}
		c := newController(ix, optionsNone())
		defer c.Close()

		zips, err := c.ComputeZipCodes(ctx, vertices, nil)
		if err != nil {
			return err
		}
		if len(zips) == 0 {
			fmt.Println("No postal codes inside the polygon, nothing to sync")
			return nil
		}
		if err := c.SyncToBackend(ctx, areasync.SyncInput{
			AreaID:   areaID,
			WorkerID: workerID,
			AreaName: areaName,
			ZipCodes: zips,
			Polygon:  vertices,
		}); err != nil {
			return err
		}
		return report(ctx, c)
	},
}

func init() {
	addAreaFlags(syncCmd)
	rootCmd.AddCommand(syncCmd)
}
