package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"usdcx/bridge/internal/blockchain/stacks"
)

func newEncodeCmd() *cobra.Command {
	var (
		publicKey string
		network   string
	)

	cmd := &cobra.Command{
		Use:   "encode [address]",
		Short: "Encode a Stacks address as a 0x-prefixed bridge recipient",
		Example: `  addrcodec encode SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7
  addrcodec encode --public-key 0279be66...1798 --network testnet`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := encodeTarget(args, publicKey, network)
			if err != nil {
				return err
			}

			recipient, err := stacks.EncodeForBridgeHex(address)
			if err != nil {
				return err
			}

			if publicKey != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "address: %s\n", address)
			}
			fmt.Fprintln(cmd.OutOrStdout(), recipient)
			return nil
		},
	}

	cmd.Flags().StringVar(&publicKey, "public-key", "", "hex secp256k1 public key to derive the address from")
	cmd.Flags().StringVar(&network, "network", "mainnet", "network of the derived address (mainnet or testnet)")
	return cmd
}

func encodeTarget(args []string, publicKey, network string) (string, error) {
	switch {
	case publicKey != "" && len(args) > 0:
		return "", fmt.Errorf("pass either an address or --public-key, not both")
	case publicKey != "":
		if network != "mainnet" && network != "testnet" {
			return "", fmt.Errorf("invalid network %q", network)
		}
		addr, err := stacks.AddressFromPublicKey(publicKey, network)
		if err != nil {
			return "", err
		}
		return addr.String(), nil
	case len(args) == 1:
		return args[0], nil
	}
	return "", fmt.Errorf("an address or --public-key is required")
}
