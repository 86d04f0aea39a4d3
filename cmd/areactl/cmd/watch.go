package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mountly/mountly-backend/internal/areasync"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync polygon edits read from stdin",
	Long: `Read one polygon per line from stdin, as an editor would emit while a
vertex is dragged, and sync them through the throttle. Only the last edit
of each burst reaches the API. On EOF the pending edit is flushed and the
stored state validated.

Example:
  editor-events | areactl watch --worker w-123 --name "North Side"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		ix, err := loadIndex(ctx)
		if err != nil {
			return err
		}
		c := newController(ix, areasync.Options{
			OnStateChange: func(s areasync.SyncState) {
				if s.Phase == areasync.PhaseSynced || s.Phase == areasync.PhaseError {
					fmt.Fprintf(os.Stderr, "%s: %d synced, %d errors\n", s.Phase, len(s.SyncedZips), len(s.Errors))
				}
			},
		})
		defer c.Close()

		area := areasync.AreaRef{AreaID: areaID, WorkerID: workerID, AreaName: areaName}
		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
		for sc.Scan() {
			if len(sc.Bytes()) == 0 {
				continue
			}
			vertices, err := parsePolygon(sc.Bytes())
			if err != nil {
				log.Sugar().Warnf("skipping line: %v", err)
				continue
			}
			c.HandlePolygonChange(area, vertices)
			if ctx.Err() != nil {
				break
			}
		}
		if err := sc.Err(); err != nil {
			return err
		}

		if err := c.Flush(ctx); err != nil {
			return err
		}
		return report(ctx, c)
	},
}

func init() {
	addAreaFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}
