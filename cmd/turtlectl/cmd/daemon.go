package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bardlex/turtlego/pkg/daemon"
)

func (c *command) initDaemonCmd() {
	d := &cobra.Command{
		Use:   "daemon",
		Short: "Query TurtleCoind",
	}

	// nodeCmd builds a subcommand that prints what run returns for the connected node
	nodeCmd := func(use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, node daemon.Node, args []string) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				node, err := c.node(contextOf(cmd))
				if err != nil {
					return fmt.Errorf("connect to TurtleCoind: %w", err)
				}
				v, err := run(cmd, node, args)
				if err != nil {
					return err
				}
				return printJSON(cmd, v)
			},
		}
	}

	d.AddCommand(
		nodeCmd("info", "Print the node summary", cobra.NoArgs, func(cmd *cobra.Command, node daemon.Node, _ []string) (any, error) {
			switch n := node.(type) {
			case *daemon.Client:
				return n.Info(contextOf(cmd))
			case *daemon.LegacyNode:
				return n.Client().Info(contextOf(cmd))
			}
			return nil, fmt.Errorf("unsupported node %T", node)
		}),
		nodeCmd("height", "Print the local and network height", cobra.NoArgs, func(cmd *cobra.Command, node daemon.Node, _ []string) (any, error) {
			return node.Height(contextOf(cmd))
		}),
		nodeCmd("peers", "Print the peer lists", cobra.NoArgs, func(cmd *cobra.Command, node daemon.Node, _ []string) (any, error) {
			return node.Peers(contextOf(cmd))
		}),
		nodeCmd("fee", "Print the node operator fee", cobra.NoArgs, func(cmd *cobra.Command, node daemon.Node, _ []string) (any, error) {
			return node.Fee(contextOf(cmd))
		}),
		nodeCmd("count", "Print the block count", cobra.NoArgs, func(cmd *cobra.Command, node daemon.Node, _ []string) (any, error) {
			n, err := node.BlockCount(contextOf(cmd))
			if err != nil {
				return nil, err
			}
			return map[string]uint64{"count": n}, nil
		}),
		nodeCmd("last", "Print the last block header", cobra.NoArgs, func(cmd *cobra.Command, node daemon.Node, _ []string) (any, error) {
			return node.LastBlock(contextOf(cmd))
		}),
		nodeCmd("block <hash|height>", "Print a block", cobra.ExactArgs(1), func(cmd *cobra.Command, node daemon.Node, args []string) (any, error) {
			return block(cmd, node, args[0])
		}),
		nodeCmd("submit <blob>", "Submit a solved block", cobra.ExactArgs(1), func(cmd *cobra.Command, node daemon.Node, args []string) (any, error) {
			hash, err := node.SubmitBlock(contextOf(cmd), args[0])
			if err != nil {
				return nil, err
			}
			return map[string]string{"hash": hash}, nil
		}),
		nodeCmd("send <blob>", "Relay a signed transaction", cobra.ExactArgs(1), func(cmd *cobra.Command, node daemon.Node, args []string) (any, error) {
			hash, err := node.SubmitTransaction(contextOf(cmd), args[0])
			if err != nil {
				return nil, err
			}
			return map[string]string{"hash": hash}, nil
		}),
		nodeCmd("status <hash>...", "Print where transactions are", cobra.MinimumNArgs(1), func(cmd *cobra.Command, node daemon.Node, args []string) (any, error) {
			return node.TransactionsStatus(contextOf(cmd), args)
		}),
	)

	var reserve int
	template := nodeCmd("template <address>", "Print a block template", cobra.ExactArgs(1), func(cmd *cobra.Command, node daemon.Node, args []string) (any, error) {
		return node.BlockTemplate(contextOf(cmd), args[0], reserve)
	})
	template.Flags().IntVar(&reserve, "reserve", 8, "reserved bytes in the coinbase extra")
	d.AddCommand(template)

	c.root.AddCommand(d)
}

// block looks a block up by hash, or by height when id is a number
func block(cmd *cobra.Command, node daemon.Node, id string) (any, error) {
	ctx := contextOf(cmd)
	// A 64 digit hash overflows uint64, so only heights parse
	height, err := strconv.ParseUint(id, 10, 64)
	byHeight := err == nil

	switch n := node.(type) {
	case *daemon.Client:
		if byHeight {
			return n.Block(ctx, daemon.ByHeight(height))
		}
		return n.Block(ctx, daemon.ByHash(id))
	case *daemon.LegacyNode:
		hash := id
		if byHeight {
			h, err := n.Client().BlockHeaderByHeight(ctx, height)
			if err != nil {
				return nil, err
			}
			hash = h.Hash
		}
		return n.Client().Block(ctx, hash)
	}
	return nil, fmt.Errorf("unsupported node %T", node)
}
