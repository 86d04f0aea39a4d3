package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mountly/mountly-backend/internal/zcta"
)

var lookupLat, lookupLng string

var lookupCmd = &cobra.Command{
	Use:   "lookup [zip]",
	Short: "Show which workers cover a postal code or coordinate",
	Long: `Ask the API who covers a postal code. With --lat and --lng the
coordinate is first resolved to a postal code with the local dataset.

Examples:
  areactl lookup 60614
  areactl lookup --lat 41.92 --lng -87.65`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var zip string
		if len(args) == 1 {
			zip = zcta.NormalizeZip(args[0])
		} else {
			p, err := zcta.ParsePoint(lookupLat, lookupLng)
			if err != nil {
				return err
			}
			ix, err := loadIndex(ctx)
			if err != nil {
				return err
			}
			var ok bool
			if zip, ok = ix.FindZipcodeAt(p); !ok {
				fmt.Println("No postal code at that coordinate")
				return nil
			}
		}

		cov, err := newBackend().Coverage(ctx, zip)
		if err != nil {
			return err
		}
		if !cov.Covered {
			fmt.Printf("%s: not covered\n", cov.Zip)
			return nil
		}
		fmt.Printf("%s: %d providers\n", cov.Zip, len(cov.Providers))
		for _, p := range cov.Providers {
			fmt.Printf("  %s  %s (%s)\n", p.WorkerID, p.AreaName, p.AreaID)
		}
		return nil
	},
}

func init() {
	lookupCmd.Flags().StringVar(&lookupLat, "lat", "", "latitude")
	lookupCmd.Flags().StringVar(&lookupLng, "lng", "", "longitude")
	rootCmd.AddCommand(lookupCmd)
}
