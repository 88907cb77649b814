package cli

import (
	"time"

	"github.com/spf13/cobra"

	"msgboard/discovery"
	"msgboard/models"
	"msgboard/storage"
)

func newDiscoverCommand(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find registry nodes on the local network and remember them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			nodes, err := discovery.Browse(cmd.Context(), discovery.Config{
				SelfNodeID:  rt.cfg.NodeID,
				ScanTimeout: timeout,
			})
			if err != nil {
				return err
			}

			err = rt.store.Update(cmd.Context(), func(tx *storage.Tx) error {
				for _, node := range nodes {
					known, ok := knownNodeFromInfo(node)
					if !ok {
						continue
					}
					if err := tx.UpsertKnownNode(known); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), nodes)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultScanTimeout, "how long to listen for answers")
	return cmd
}

func newNodesCommand(opts *rootOptions) *cobra.Command {
	var registryFilter string
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List nodes remembered by discover",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			var known []storage.KnownNode
			err = rt.store.View(cmd.Context(), func(tx *storage.Tx) error {
				var err error
				known, err = tx.ListKnownNodes(registryFilter)
				return err
			})
			if err != nil {
				return err
			}

			infos := make([]models.NodeInfo, 0, len(known))
			for _, node := range known {
				infos = append(infos, nodeInfoFromKnown(node))
			}
			return printJSON(cmd.OutOrStdout(), infos)
		},
	}
	cmd.Flags().StringVar(&registryFilter, "registry", "", "only list nodes hosting this registry")

	cmd.AddCommand(&cobra.Command{
		Use:   "forget <node-id>",
		Short: "Forget a remembered node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(opts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			return rt.store.Update(cmd.Context(), func(tx *storage.Tx) error {
				return tx.RemoveKnownNode(args[0])
			})
		},
	})
	return cmd
}

func knownNodeFromInfo(node models.NodeInfo) (storage.KnownNode, bool) {
	if len(node.Addresses) == 0 || node.Port <= 0 {
		return storage.KnownNode{}, false
	}
	return storage.KnownNode{
		NodeID:   node.NodeID,
		NodeName: node.Name,
		Registry: node.Registry,
		Owner:    node.Owner,
		Variant:  node.Variant,
		Version:  node.Version,
		Address:  node.Addresses[0],
		Port:     node.Port,
		LastSeen: node.LastSeen,
	}, true
}

func nodeInfoFromKnown(node storage.KnownNode) models.NodeInfo {
	return models.NodeInfo{
		NodeID:    node.NodeID,
		Name:      node.NodeName,
		Registry:  node.Registry,
		Owner:     node.Owner,
		Variant:   node.Variant,
		Version:   node.Version,
		Addresses: []string{node.Address},
		Port:      node.Port,
		LastSeen:  node.LastSeen,
	}
}
