package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bardlex/turtlego/pkg/walletapi"
)

func (c *command) initWalletCmd() {
	w := &cobra.Command{
		Use:   "wallet",
		Short: "Drive a wallet-api instance",
	}

	walletCmd := func(use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, wallet *walletapi.Client, args []string) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				wallet, err := c.wallet()
				if err != nil {
					return err
				}
				v, err := run(cmd, wallet, args)
				if err != nil {
					return err
				}
				return printJSON(cmd, v)
			},
		}
	}
	done := map[string]bool{"ok": true}

	var filePassword string
	open := walletCmd("open <file>", "Open a wallet file", cobra.ExactArgs(1), func(cmd *cobra.Command, wallet *walletapi.Client, args []string) (any, error) {
		return done, wallet.Open(contextOf(cmd), args[0], filePassword, walletapi.NodeConfig{})
	})
	open.Flags().StringVar(&filePassword, "file-password", "", "wallet file password")

	create := walletCmd("create <file>", "Create a wallet file and open it", cobra.ExactArgs(1), func(cmd *cobra.Command, wallet *walletapi.Client, args []string) (any, error) {
		return done, wallet.Create(contextOf(cmd), args[0], filePassword, walletapi.NodeConfig{})
	})
	create.Flags().StringVar(&filePassword, "file-password", "", "wallet file password")

	var start, end uint64
	transactions := walletCmd("transactions", "List transactions", cobra.NoArgs, func(cmd *cobra.Command, wallet *walletapi.Client, _ []string) (any, error) {
		if start == 0 && end == 0 {
			return wallet.Transactions(contextOf(cmd))
		}
		return wallet.TransactionsRange(contextOf(cmd), start, end)
	})
	transactions.Flags().Uint64Var(&start, "start", 0, "first block height")
	transactions.Flags().Uint64Var(&end, "end", 0, "last block height, 0 for the tip")

	var paymentID string
	send := walletCmd("send <address> <amount>", "Send coins to an address", cobra.ExactArgs(2), func(cmd *cobra.Command, wallet *walletapi.Client, args []string) (any, error) {
		amount, err := strconv.ParseFloat(args[1], 64)
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("invalid amount %q", args[1])
		}
		dest, err := wallet.NewDestination(args[0], amount)
		if err != nil {
			return nil, err
		}
		return wallet.SendBasic(contextOf(cmd), walletapi.BasicTransfer{
			Destination: dest.Address,
			Amount:      dest.Amount,
			PaymentID:   paymentID,
		})
	})
	send.Flags().StringVar(&paymentID, "payment-id", "", "64 character hex payment ID")

	w.AddCommand(
		open,
		create,
		walletCmd("close", "Save and close the open wallet", cobra.NoArgs, func(cmd *cobra.Command, wallet *walletapi.Client, _ []string) (any, error) {
			return done, wallet.Close(contextOf(cmd))
		}),
		walletCmd("status", "Print the wallet status", cobra.NoArgs, func(cmd *cobra.Command, wallet *walletapi.Client, _ []string) (any, error) {
			return wallet.Status(contextOf(cmd))
		}),
		walletCmd("addresses", "List the wallet addresses", cobra.NoArgs, func(cmd *cobra.Command, wallet *walletapi.Client, _ []string) (any, error) {
			return wallet.Addresses(contextOf(cmd))
		}),
		walletCmd("balance [address]", "Print the balance of the wallet or one address", cobra.MaximumNArgs(1), func(cmd *cobra.Command, wallet *walletapi.Client, args []string) (any, error) {
			var addr string
			if len(args) == 1 {
				addr = args[0]
			}
			return wallet.Balance(contextOf(cmd), addr)
		}),
		walletCmd("validate <address>", "Check an address with the wallet", cobra.ExactArgs(1), func(cmd *cobra.Command, wallet *walletapi.Client, args []string) (any, error) {
			return wallet.ValidateAddress(contextOf(cmd), args[0])
		}),
		transactions,
		send,
	)

	c.root.AddCommand(w)
}
