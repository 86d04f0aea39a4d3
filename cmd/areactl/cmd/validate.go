package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var expected int

var validateCmd = &cobra.Command{
	Use:   "validate <area-id>",
	Short: "Compare the backend's stored postal-code count with an expectation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newController(nil, optionsNone())
		defer c.Close()

		res, err := c.ValidateSyncState(context.Background(), args[0], expected)
		if err != nil {
			return err
		}
		if res.InSync {
			fmt.Printf("area %s in sync: %d postal codes\n", res.AreaID, res.Actual)
			return nil
		}
		return fmt.Errorf("area %s out of sync: expected %d postal codes, backend has %d", res.AreaID, res.Expected, res.Actual)
	},
}

func init() {
	validateCmd.Flags().IntVar(&expected, "expected", 0, "expected number of postal codes")
	_ = validateCmd.MarkFlagRequired("expected")
	rootCmd.AddCommand(validateCmd)
}
