// Package cmd implements turtlectl, a command line client for TurtleCoind and
// wallet-api that prints every answer as JSON.
package cmd

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/bardlex/turtlego/internal/config"
	"github.com/bardlex/turtlego/pkg/daemon"
	"github.com/bardlex/turtlego/pkg/log"
	"github.com/bardlex/turtlego/pkg/transport"
	"github.com/bardlex/turtlego/pkg/walletapi"
)

const optionNameVerbosity = "verbosity"

type command struct {
	root   *cobra.Command
	cfg    *config.Config
	logger *log.Logger
	store  SyncStore
}

type option func(*command)

// NewCommand builds the turtlectl command tree. Without WithConfig the settings come
// from the environment, as for the services.
func NewCommand(opts ...option) (c *command, err error) {
	c = &command{
		root: &cobra.Command{
			Use:           "turtlectl",
			Short:         "TurtleCoind and wallet-api client",
			SilenceErrors: true,
			SilenceUsage:  true,
		},
	}

	for _, o := range opts {
		o(c)
	}
	if c.cfg == nil {
		if c.cfg, err = config.Load(); err != nil {
			return nil, err
		}
	}

	c.initGlobalFlags()
	c.root.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		v, _ := cmd.Flags().GetString(optionNameVerbosity)
		c.logger = log.NewWithWriter(cmd.ErrOrStderr(), "turtlectl", c.cfg.Version, v, "text")
	}

	c.initDaemonCmd()
	c.initWalletCmd()
	c.initAddressCmd()
	c.initSyncCmd()
	c.initVersionCmd()
	return c, nil
}

// Execute runs the command
func (c *command) Execute() error {
	return c.root.Execute()
}

// Execute parses command line arguments and runs appropriate functions
func Execute() error {
	c, err := NewCommand()
	if err != nil {
		return err
	}
	return c.Execute()
}

// WithArgs sets the command line arguments, mostly for tests
func WithArgs(a ...string) func(c *command) {
	return func(c *command) {
		c.root.SetArgs(a)
	}
}

// WithOutput sets where command output and errors are written
func WithOutput(w io.Writer) func(c *command) {
	return func(c *command) {
		c.root.SetOut(w)
		c.root.SetErr(w)
	}
}

// WithConfig replaces the environment configuration
func WithConfig(cfg *config.Config) func(c *command) {
	return func(c *command) {
		cp := *cfg
		c.cfg = &cp
	}
}

// WithSyncStore replaces the databases read by the sync commands
func WithSyncStore(s SyncStore) func(c *command) {
	return func(c *command) {
		c.store = s
	}
}

func (c *command) initGlobalFlags() {
	f := c.root.PersistentFlags()
	f.StringVar(&c.cfg.DaemonHost, "daemon-host", c.cfg.DaemonHost, "TurtleCoind host")
	f.IntVar(&c.cfg.DaemonPort, "daemon-port", c.cfg.DaemonPort, "TurtleCoind port")
	f.BoolVar(&c.cfg.DaemonSSL, "daemon-ssl", c.cfg.DaemonSSL, "use HTTPS for TurtleCoind")
	f.BoolVar(&c.cfg.DaemonLegacy, "legacy", c.cfg.DaemonLegacy, "use the pre-1.0 TurtleCoind API without detection")
	f.DurationVar(&c.cfg.DaemonTimeout, "timeout", c.cfg.DaemonTimeout, "TurtleCoind request timeout")
	f.StringVar(&c.cfg.WalletHost, "wallet-host", c.cfg.WalletHost, "wallet-api host")
	f.IntVar(&c.cfg.WalletPort, "wallet-port", c.cfg.WalletPort, "wallet-api port")
	f.BoolVar(&c.cfg.WalletSSL, "wallet-ssl", c.cfg.WalletSSL, "use HTTPS for wallet-api")
	f.StringVar(&c.cfg.WalletPassword, "wallet-password", c.cfg.WalletPassword, "wallet-api RPC password")
	f.String(optionNameVerbosity, "warn", "log verbosity level: debug, info, warn, error")
}

func (c *command) transportOptions() []transport.Option {
	return []transport.Option{transport.WithLogger(c.logger)}
}

// node connects to TurtleCoind, detecting the API generation unless --legacy is set
func (c *command) node(ctx context.Context) (daemon.Node, error) {
	if c.cfg.DaemonLegacy {
		client, err := daemon.NewLegacyClient(c.cfg.Daemon(), c.transportOptions()...)
		if err != nil {
			return nil, err
		}
		return daemon.NewLegacyNode(client), nil
	}

	node, _, err := daemon.Detect(ctx, c.cfg.Daemon(), c.transportOptions()...)
	return node, err
}

func (c *command) wallet() (*walletapi.Client, error) {
	return walletapi.NewClient(c.cfg.Wallet(), c.transportOptions()...)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (c *command) initVersionCmd() {
	v := &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(c.cfg.Version)
		},
	}
	v.SetOut(c.root.OutOrStdout())
	c.root.AddCommand(v)
}
