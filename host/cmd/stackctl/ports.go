package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stackctl/host/output"
	"stackctl/host/serial"
)

// listPorts is replaced in tests
var listPorts = serial.ListPorts

func newPortsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and flag the likely rig",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := listPorts()
			if err != nil {
				return err
			}
			a.print(cmd, ports)

			if a.cfg.Output != output.FormatTable {
				return nil
			}
			for _, p := range ports {
				if p.Likely {
					fmt.Fprintf(cmd.OutOrStdout(), "\nlikely rig: %s\n", output.Likely(p.Device))
					return nil
				}
			}
			if len(ports) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), output.Dim("\nno port looks like the rig"))
			}
			return nil
		},
	}
}
