package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"usdcx/bridge/internal/blockchain/stacks"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <recipient>",
		Short: "Decode a hex bridge recipient back to its Stacks address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := stacks.DecodeFromBridgeHex(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), address)
			return nil
		},
	}
}
