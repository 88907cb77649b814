package cli

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"msgboard/discovery"
	"msgboard/network"
)

const pruneInterval = time.Hour

func newInitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data dir, owner key and database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			height, err := rt.chain.Height(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Node ID:         %s\n", rt.cfg.NodeID)
			fmt.Fprintf(out, "Node Name:       %s\n", rt.cfg.NodeName)
			fmt.Fprintf(out, "Variant:         %s\n", rt.cfg.Variant)
			fmt.Fprintf(out, "Owner:           %s\n", rt.owner)
			fmt.Fprintf(out, "Contract:        %s\n", rt.contract)
			fmt.Fprintf(out, "Fee:             %d\n", rt.registry.Config().Fee)
			fmt.Fprintf(out, "Block Height:    %d\n", height)
			fmt.Fprintf(out, "Config File:     %s\n", rt.cfgPath)
			fmt.Fprintf(out, "Database File:   %s\n", rt.dbPath)
			return nil
		},
	}
}

func newMineCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mine [blocks]",
		Short: "Advance the local chain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireLocal(opts, "mine"); err != nil {
				return err
			}
			blocks := uint64(1)
			if len(args) == 1 {
				parsed, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid block count %q", args[0])
				}
				blocks = parsed
			}

			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			height, err := rt.node.Mine(cmd.Context(), blocks)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), height)
			return err
		},
	}
}

func newMintCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mint <principal|key:name> <amount>",
		Short: "Credit test tokens to an account on the local chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireLocal(opts, "mint"); err != nil {
				return err
			}
			account, err := resolveAccount(opts, args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}

			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			balance, err := rt.node.Mint(cmd.Context(), account, amount)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", account, balance)
			return err
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry over TCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireLocal(opts, "serve"); err != nil {
				return err
			}
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					rt.log.WithError(err).Warn("database close error")
				}
			}()

			address := rt.cfg.ListenAddress
			if listen != "" {
				address = listen
			}
			server, err := network.Listen(address, rt.node, network.ServerOptions{Logger: rt.log})
			if err != nil {
				return err
			}
			defer func() { _ = server.Close() }()

			log := rt.log.WithFields(logrus.Fields{
				"node_id":  rt.cfg.NodeID,
				"address":  server.Addr().String(),
				"owner":    rt.owner,
				"contract": rt.contract,
				"variant":  rt.cfg.Variant,
			})
			log.Info("node listening")

			if rt.cfg.Discovery {
				broadcaster, err := discovery.StartBroadcaster(discovery.Config{
					SelfNodeID:    rt.cfg.NodeID,
					NodeName:      rt.cfg.NodeName,
					ListeningPort: server.Addr().(*net.TCPAddr).Port,
					Registry:      rt.contract,
					Owner:         rt.owner,
					Variant:       rt.cfg.Variant,
				})
				if err != nil {
					log.WithError(err).Warn("discovery broadcast failed")
				} else {
					defer broadcaster.Stop()
					log.Info("discovery broadcast running")
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pruneLoop(ctx, rt, log)
			log.Info("node shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: config listen_address)")
	return cmd
}

// pruneLoop expires replay and audit records until ctx is done.
func pruneLoop(ctx context.Context, rt *runtime, log logrus.FieldLogger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rt.node.PruneSeenCalls(ctx); err != nil {
				log.WithError(err).Warn("prune seen calls failed")
			}
			if _, err := rt.node.PruneSecurityEvents(ctx); err != nil {
				log.WithError(err).Warn("prune security events failed")
			}
		}
	}
}
