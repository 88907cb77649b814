// Package cli implements the msgboard command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"msgboard/chain"
	"msgboard/config"
	"msgboard/models"
	"msgboard/network"
)

type rootOptions struct {
	dataDir string
	node    string
	key     string
}

// backend runs calls and queries either in-process or on a remote node.
type backend interface {
	Submit(ctx context.Context, call chain.Call) (models.Receipt, error)
	Query(ctx context.Context, function string, args any) (json.RawMessage, error)
	Close() error
}

// NewRootCommand returns the `msgboard` command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "msgboard",
		Short:         "Message registry node and client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "data directory (default: $MSGBOARD_DATA_DIR or the user data dir)")
	root.PersistentFlags().StringVar(&opts.node, "node", "", "remote node address host:port; empty runs against the local data dir")
	root.PersistentFlags().StringVar(&opts.key, "key", config.DefaultOwnerKeyName, "account key used to sign calls")

	root.AddCommand(
		newInitCommand(opts),
		newKeysCommand(opts),
		newPostCommand(opts),
		newSendCommand(opts),
		newEditCommand(opts),
		newDeleteCommand(opts),
		newMarkReadCommand(opts),
		newWithdrawCommand(opts),
		newGetCommand(opts),
		newFieldCommand(opts),
		newIsAuthorCommand(opts),
		newBalanceCommand(opts),
		newCountCommand(opts),
		newCountAtCommand(opts),
		newHistoryCommand(opts),
		newHeightCommand(opts),
		newMineCommand(opts),
		newMintCommand(opts),
		newTransfersCommand(opts),
		newServeCommand(opts),
		newDiscoverCommand(opts),
		newNodesCommand(opts),
		newSecurityEventsCommand(opts),
	)
	return root
}

// openBackend connects to --node when set, otherwise opens the local runtime.
func openBackend(ctx context.Context, opts *rootOptions) (backend, error) {
	if opts.node != "" {
		client, err := network.Dial(ctx, opts.node, network.ClientOptions{})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	rt, err := openRuntime(opts)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func requireLocal(opts *rootOptions, command string) error {
	if opts.node != "" {
		return fmt.Errorf("%s only runs against the local data dir", command)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

func printRaw(w io.Writer, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return printJSON(w, v)
}
