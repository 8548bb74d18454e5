package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"stackctl/protocol"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the stackctl version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stackctl version %s (%s, %d kinds, %d byte packets)\n",
				protocol.ProtocolVersion, runtime.Version(), len(protocol.Kinds()), protocol.DefaultPacketSize)
		},
	}
}
