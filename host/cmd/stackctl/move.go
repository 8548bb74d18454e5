package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newMoveCmd(a *app) *cobra.Command {
	var degrees float64

	cmd := &cobra.Command{
		Use:   "move [steps]",
		Short: "Move the motor by steps, or by degrees using the transmission ratio",
		Example: `  stackctl move 200
  stackctl move -- -200
  stackctl move --degrees 12.5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			useDegrees := cmd.Flags().Changed("degrees")
			if useDegrees == (len(args) == 1) {
				return fmt.Errorf("give either a step count or --degrees")
			}

			var steps int64
			if !useDegrees {
				var err error
				if steps, err = strconv.ParseInt(args[0], 10, 32); err != nil {
					return fmt.Errorf("invalid step count %q: %w", args[0], err)
				}
			}

			r, stop, err := a.connect(cmd)
			if err != nil {
				return err
			}
			defer stop()

			ctx, cancel := interruptible(cmd)
			defer cancel()

			if useDegrees {
				n, err := r.MoveDegrees(ctx, degrees)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %g degrees (%d steps)\n", degrees, n)
				return nil
			}
			if err := r.Move(ctx, int32(steps)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %d steps\n", steps)
			return nil
		},
	}
	cmd.Flags().Float64Var(&degrees, "degrees", 0, "rotation in degrees, converted with the device transmission ratio")
	return cmd
}
