package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"msgboard/storage"
)

func newSecurityEventsCommand(opts *rootOptions) *cobra.Command {
	var filter storage.SecurityEventFilter
	cmd := &cobra.Command{
		Use:   "security-events",
		Short: "List calls the local node refused",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireLocal(opts, "security-events"); err != nil {
				return err
			}
			filter.Severity = strings.ToUpper(filter.Severity)

			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			events, err := rt.node.SecurityEvents(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), events)
		},
	}
	cmd.Flags().StringVar(&filter.EventType, "type", "", "event type (invalid_call, stale_call, replayed_call, unknown_function)")
	cmd.Flags().StringVar(&filter.Sender, "sender", "", "sender principal")
	cmd.Flags().StringVar(&filter.Severity, "severity", "", "INFO, WARNING or CRITICAL")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum events to list")
	return cmd
}
