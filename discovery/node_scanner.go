package discovery

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"msgboard/models"
)

const (
	// EventNodeUpserted is emitted when a node appears or its metadata changes.
	EventNodeUpserted EventType = "node_upserted"
	// EventNodeRemoved is emitted when a previously seen node disappears.
	EventNodeRemoved EventType = "node_removed"
)

// EventType identifies discovery updates.
type EventType string

// Event carries one discovery update.
type Event struct {
	Type EventType
	Node models.NodeInfo
}

type refreshRequest struct {
	ctx  context.Context
	done chan error
}

// NodeScanner discovers registry nodes with periodic and manual mDNS browsing.
type NodeScanner struct {
	cfg Config

	browse browseFunc

	mu    sync.RWMutex
	nodes map[string]models.NodeInfo

	events chan Event

	startOnce sync.Once
	stopOnce  sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	refreshRequests chan refreshRequest
}

// NewNodeScanner creates a scanner with config defaults applied.
func NewNodeScanner(config Config) (*NodeScanner, error) {
	cfg := config.withDefaults()

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		browse = resolver.Browse
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &NodeScanner{
		cfg:             cfg,
		browse:          browse,
		nodes:           make(map[string]models.NodeInfo),
		events:          make(chan Event, 128),
		ctx:             ctx,
		cancel:          cancel,
		refreshRequests: make(chan refreshRequest),
	}, nil
}

// Browse runs one scan and returns the nodes that answered within the scan
// timeout, excluding SelfNodeID.
func Browse(ctx context.Context, config Config) ([]models.NodeInfo, error) {
	scanner, err := NewNodeScanner(config)
	if err != nil {
		return nil, err
	}
	defer scanner.cancel()

	if err := scanner.runScan(ctx); err != nil {
		return nil, err
	}
	return scanner.ListNodes(), nil
}

// Start begins background scanning.
func (s *NodeScanner) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.loop()
	})
}

// Stop stops background scanning and closes Events.
func (s *NodeScanner) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		close(s.events)
	})
}

// Events provides asynchronous discovery updates.
func (s *NodeScanner) Events() <-chan Event {
	return s.events
}

// Refresh triggers an immediate scan on the background loop.
func (s *NodeScanner) Refresh(ctx context.Context) error {
	req := refreshRequest{
		ctx:  ctx,
		done: make(chan error, 1),
	}

	select {
	case s.refreshRequests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errors.New("node scanner is stopped")
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errors.New("node scanner is stopped")
	}
}

// ListNodes returns the nodes seen by the latest scan, sorted by name.
func (s *NodeScanner) ListNodes() []models.NodeInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.NodeInfo, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].NodeID < out[j].NodeID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *NodeScanner) loop() {
	defer s.wg.Done()

	_ = s.runScan(context.Background())

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.runScan(context.Background())
		case req := <-s.refreshRequests:
			req.done <- s.runScan(req.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *NodeScanner) runScan(requestCtx context.Context) error {
	scanCtx, cancel := context.WithTimeout(s.ctx, s.cfg.ScanTimeout)
	defer cancel()

	stop := context.AfterFunc(requestCtx, cancel)
	defer stop()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	collected := make(map[string]models.NodeInfo)
	collectorDone := make(chan struct{})

	go func() {
		defer close(collectorDone)
		for {
			select {
			case <-scanCtx.Done():
				return
			case entry := <-entries:
				if entry == nil {
					continue
				}
				node, ok := parseEntry(entry, s.cfg.SelfNodeID)
				if !ok {
					continue
				}
				node.LastSeen = time.Now().UnixMilli()
				collected[node.NodeID] = node
			}
		}
	}()

	// Browsers may report the scan window closing as an error.
	if err := s.browse(scanCtx, s.cfg.Service, s.cfg.Domain, entries); err != nil && scanCtx.Err() == nil {
		cancel()
		<-collectorDone
		return err
	}

	<-scanCtx.Done()
	<-collectorDone

	s.applySnapshot(collected)

	if err := requestCtx.Err(); err != nil {
		return err
	}
	return nil
}

func (s *NodeScanner) applySnapshot(next map[string]models.NodeInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.nodes
	s.nodes = next

	for id, node := range next {
		old, exists := previous[id]
		if !exists || !nodesEqual(old, node) {
			s.emitEvent(Event{Type: EventNodeUpserted, Node: node})
		}
	}

	for id, node := range previous {
		if _, exists := next[id]; !exists {
			s.emitEvent(Event{Type: EventNodeRemoved, Node: node})
		}
	}
}

func (s *NodeScanner) emitEvent(event Event) {
	select {
	case s.events <- event:
	default:
	}
}

func parseEntry(entry *zeroconf.ServiceEntry, selfNodeID string) (models.NodeInfo, bool) {
	txt := txtToMap(entry.Text)

	nodeID := strings.TrimSpace(txt["node_id"])
	if nodeID == "" || nodeID == selfNodeID {
		return models.NodeInfo{}, false
	}
	registryAccount := strings.TrimSpace(txt["registry"])
	if registryAccount == "" {
		return models.NodeInfo{}, false
	}

	addresses := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	seen := make(map[string]struct{})
	for _, ip := range append(entry.AddrIPv4, entry.AddrIPv6...) {
		if ip == nil {
			continue
		}
		raw := ip.String()
		if _, exists := seen[raw]; exists {
			continue
		}
		seen[raw] = struct{}{}
		addresses = append(addresses, raw)
	}
	sort.Strings(addresses)

	name := strings.TrimSpace(entry.Instance)
	if name == "" {
		name = strings.TrimSpace(entry.HostName)
	}
	if name == "" {
		name = nodeID
	}

	version := strings.TrimSpace(txt["version"])
	if _, err := strconv.Atoi(version); err != nil {
		version = ""
	}

	return models.NodeInfo{
		NodeID:    nodeID,
		Name:      name,
		Registry:  registryAccount,
		Owner:     strings.TrimSpace(txt["owner"]),
		Variant:   strings.TrimSpace(txt["variant"]),
		Version:   version,
		Addresses: addresses,
		Port:      entry.Port,
	}, true
}

func txtToMap(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, entry := range text {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}

func nodesEqual(a, b models.NodeInfo) bool {
	if a.NodeID != b.NodeID ||
		a.Name != b.Name ||
		a.Registry != b.Registry ||
		a.Owner != b.Owner ||
		a.Variant != b.Variant ||
		a.Version != b.Version ||
		a.Port != b.Port ||
		len(a.Addresses) != len(b.Addresses) {
		return false
	}
	for i := range a.Addresses {
		if a.Addresses[i] != b.Addresses[i] {
			return false
		}
	}
	return true
}
