package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bardlex/turtlego/pkg/address"
)

type addressInfo struct {
	Address        string `json:"address"`
	Prefix         uint64 `json:"prefix"`
	IsIntegrated   bool   `json:"isIntegrated"`
	PaymentID      string `json:"paymentID,omitempty"`
	Standard       string `json:"standardAddress"`
	PublicSpendKey string `json:"publicSpendKey"`
	PublicViewKey  string `json:"publicViewKey"`
}

func describe(a *address.Address) addressInfo {
	return addressInfo{
		Address:        a.String(),
		Prefix:         a.Prefix,
		IsIntegrated:   a.IsIntegrated(),
		PaymentID:      a.PaymentID,
		Standard:       a.Standard().String(),
		PublicSpendKey: a.PublicSpendKeyHex(),
		PublicViewKey:  a.PublicViewKeyHex(),
	}
}

// Address commands work offline
func (c *command) initAddressCmd() {
	a := &cobra.Command{
		Use:   "address",
		Short: "Decode and build TurtleCoin addresses",
	}

	a.AddCommand(
		&cobra.Command{
			Use:   "decode <address>",
			Short: "Print the keys and payment ID of an address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				addr, err := address.Decode(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, describe(addr))
			},
		},
		&cobra.Command{
			Use:   "integrate <address> <payment-id>",
			Short: "Build an integrated address",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				addr, err := address.Decode(args[0])
				if err != nil {
					return err
				}
				integrated, err := addr.Integrate(args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, describe(integrated))
			},
		},
	)

	c.root.AddCommand(a)
}
