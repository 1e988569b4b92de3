package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "addrcodec",
		Short: "Convert Stacks addresses to and from xReserve recipients",
		Long: `addrcodec encodes a Stacks c32check address as the 32-byte recipient passed to
xReserve depositToRemote, and decodes such a recipient back to the address.`,
		SilenceUsage: true,
	}

	root.AddCommand(newEncodeCmd(), newDecodeCmd())
	return root
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
