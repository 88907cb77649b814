package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"msgboard/chain"
	"msgboard/node"
)

func submitCall(cmd *cobra.Command, opts *rootOptions, function string, args any) error {
	key, err := signingKey(opts)
	if err != nil {
		return err
	}
	call, err := chain.NewCall(key, function, args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	b, err := openBackend(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	receipt, err := b.Submit(ctx, call)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), receipt); err != nil {
		return err
	}
	if !receipt.OK {
		return fmt.Errorf("%s failed: %s (%d)", function, receipt.Error.Name, receipt.Error.Code)
	}
	return nil
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q", raw)
	}
	return id, nil
}

func newPostCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "post <content>",
		Short: "Post a message to the board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitCall(cmd, opts, node.FnAddMessage, node.ContentArgs{Content: args[0]})
		},
	}
}

func newSendCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <principal|key:name> <content>",
		Short: "Send a direct message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient, err := resolveAccount(opts, args[0])
			if err != nil {
				return err
			}
			return submitCall(cmd, opts, node.FnSendMessage, node.SendArgs{Recipient: recipient, Content: args[1]})
		},
	}
}

func newEditCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <content>",
		Short: "Replace the content of your message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return submitCall(cmd, opts, node.FnEditMessage, node.EditArgs{ID: id, Content: args[1]})
		},
	}
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return submitCall(cmd, opts, node.FnDeleteMessage, node.IDArgs{ID: id})
		},
	}
}

func newMarkReadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-read <id>",
		Short: "Mark a direct message addressed to you as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return submitCall(cmd, opts, node.FnMarkRead, node.IDArgs{ID: id})
		},
	}
}

func newWithdrawCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw collected fees to the owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitCall(cmd, opts, node.FnWithdrawFunds, nil)
		},
	}
}
