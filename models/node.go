package models

// NodeInfo describes a registry node found on the local network.
type NodeInfo struct {
	NodeID    string   `json:"node_id"`
	Name      string   `json:"name"`
	Registry  string   `json:"registry"`
	Owner     string   `json:"owner"`
	Variant   string   `json:"variant"`
	Version   string   `json:"version"`
	Addresses []string `json:"addresses"`
	Port      int      `json:"port"`
	LastSeen  int64    `json:"last_seen"`
}
