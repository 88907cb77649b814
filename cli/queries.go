package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"msgboard/node"
	"msgboard/storage"
)

var fieldQueries = map[string]string{
	"author":    node.QGetMessageAuthor,
	"sender":    node.QGetMessageSender,
	"recipient": node.QGetMessageRecipient,
	"content":   node.QGetMessageContent,
	"time":      node.QGetMessageTime,
}

func runQuery(cmd *cobra.Command, opts *rootOptions, function string, args any) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	result, err := b.Query(ctx, function, args)
	if err != nil {
		return err
	}
	return printRaw(cmd.OutOrStdout(), result)
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a message; prints null when absent or deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runQuery(cmd, opts, node.QGetMessage, node.IDArgs{ID: id})
		},
	}
}

func newFieldCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "field <id> <author|sender|recipient|content|time>",
		Short:     "Show one field of a message",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"author", "sender", "recipient", "content", "time"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			function, ok := fieldQueries[args[1]]
			if !ok {
				return fmt.Errorf("unknown field %q", args[1])
			}
			return runQuery(cmd, opts, function, node.IDArgs{ID: id})
		},
	}
}

func newIsAuthorCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "is-author <id> <principal|key:name>",
		Short: "Report whether principal wrote a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			principal, err := resolveAccount(opts, args[1])
			if err != nil {
				return err
			}
			return runQuery(cmd, opts, node.QIsMessageAuthor, node.AuthorArgs{ID: id, Principal: principal})
		},
	}
}

func newBalanceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the unwithdrawn fee balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, node.QGetContractBalance, nil)
		},
	}
}

func newCountCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show how many messages were ever created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, node.QGetMessageCount, nil)
		},
	}
}

func newCountAtCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count-at <height>",
		Short: "Show the message count as of a block height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			height, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid height %q", args[0])
			}
			return runQuery(cmd, opts, node.QGetCountAtBlock, node.HeightArgs{Height: height})
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List every recorded (height, count) snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, node.QGetHistory, nil)
		},
	}
}

func newHeightCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "height",
		Short: "Show the current block height",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, node.QGetBlockHeight, nil)
		},
	}
}

func newTransfersCommand(opts *rootOptions) *cobra.Command {
	var (
		account string
		callID  string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "List recorded asset transfer events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireLocal(opts, "transfers"); err != nil {
				return err
			}
			resolved, err := resolveAccount(opts, account)
			if err != nil {
				return err
			}
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			events, err := rt.token.Transfers(cmd.Context(), storage.TransferFilter{
				CallID:  callID,
				Account: resolved,
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), node.TransfersToModels(events))
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "only transfers from or to this principal or key:name")
	cmd.Flags().StringVar(&callID, "call", "", "only transfers made by this call id")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	return cmd
}
