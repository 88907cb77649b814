package storage

import (
	"errors"
	"fmt"
	"strings"
)

// UpsertKnownNode stores or refreshes a discovered node. FirstSeen is kept
// from the existing row.
func (t *Tx) UpsertKnownNode(node KnownNode) error {
	if strings.TrimSpace(node.NodeID) == "" {
		return errors.New("node_id is required")
	}
	if strings.TrimSpace(node.Registry) == "" {
		return errors.New("registry is required")
	}
	if strings.TrimSpace(node.Address) == "" {
		return errors.New("address is required")
	}
	if node.Port <= 0 {
		return errors.New("port must be > 0")
	}
	if node.NodeName == "" {
		node.NodeName = node.NodeID
	}
	if node.LastSeen == 0 {
		node.LastSeen = nowUnixMilli()
	}
	if node.FirstSeen == 0 {
		node.FirstSeen = node.LastSeen
	}

	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO known_nodes (
			node_id,
			node_name,
			registry,
			owner,
			variant,
			version,
			address,
			port,
			first_seen,
			last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			node_name = excluded.node_name,
			registry = excluded.registry,
			owner = excluded.owner,
			variant = excluded.variant,
			version = excluded.version,
			address = excluded.address,
			port = excluded.port,
			last_seen = MAX(known_nodes.last_seen, excluded.last_seen)`,
		node.NodeID,
		node.NodeName,
		node.Registry,
		node.Owner,
		node.Variant,
		node.Version,
		node.Address,
		node.Port,
		node.FirstSeen,
		node.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("upsert known node %q: %w", node.NodeID, err)
	}
	return nil
}

// ListKnownNodes returns known nodes, most recently seen first. An empty
// registry matches every node.
func (t *Tx) ListKnownNodes(registry string) ([]KnownNode, error) {
	query := `SELECT
			node_id,
			node_name,
			registry,
			owner,
			variant,
			version,
			address,
			port,
			first_seen,
			last_seen
		FROM known_nodes`
	args := make([]any, 0, 1)
	if registry != "" {
		query += ` WHERE registry = ?`
		args = append(args, registry)
	}
	query += ` ORDER BY last_seen DESC, node_id ASC`

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list known nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]KnownNode, 0)
	for rows.Next() {
		var node KnownNode
		if err := rows.Scan(
			&node.NodeID,
			&node.NodeName,
			&node.Registry,
			&node.Owner,
			&node.Variant,
			&node.Version,
			&node.Address,
			&node.Port,
			&node.FirstSeen,
			&node.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("scan known node row: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known node rows: %w", err)
	}

	return nodes, nil
}

// RemoveKnownNode forgets a node.
func (t *Tx) RemoveKnownNode(nodeID string) error {
	if nodeID == "" {
		return errors.New("node_id is required")
	}

	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM known_nodes WHERE node_id = ?`, nodeID)
	if err != nil {
		return fmt.Errorf("remove known node %q: %w", nodeID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for remove known node %q: %w", nodeID, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
