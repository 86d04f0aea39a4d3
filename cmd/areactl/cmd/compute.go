package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var computeCmd = &cobra.Command{
	Use:   "compute <polygon.json|->",
	Short: "Print the postal codes a polygon covers",
	Long: `Load the ZCTA dataset and print the postal codes assigned to a polygon.

Examples:
  areactl compute north-side.json
  areactl compute --mode intersection --min-overlap 0.3 - < north-side.geojson`,
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

		zips, err := newController(ix, optionsNone()).ComputeZipCodes(ctx, vertices, nil)
		if err != nil {
			return err
		}
		if len(zips) == 0 {
			fmt.Println("No postal codes inside the polygon")
			return nil
		}
		fmt.Printf("%d postal codes\n%s\n", len(zips), strings.Join(zips, "\n"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(computeCmd)
}
