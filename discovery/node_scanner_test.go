package discovery

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestNodeScannerFiltersSelfAndManualRefresh(t *testing.T) {
	var browseCalls int32
	cfg := Config{
		SelfNodeID:      "self-node",
		RefreshInterval: time.Hour,
		ScanTimeout:     35 * time.Millisecond,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			call := atomic.AddInt32(&browseCalls, 1)
			entries <- testServiceEntry("self-node", "Self", 9999, "10.0.0.1")
			entries <- testServiceEntry("node-1", "Bob", 9998, "10.0.0.2")
			if call >= 2 {
				entries <- testServiceEntry("node-2", "Carol", 9997, "10.0.0.3")
			}
			<-ctx.Done()
			return nil
		},
	}

	scanner, err := NewNodeScanner(cfg)
	if err != nil {
		t.Fatalf("NewNodeScanner failed: %v", err)
	}
	scanner.Start()
	defer scanner.Stop()

	waitForCondition(t, time.Second, func() bool {
		nodes := scanner.ListNodes()
		return len(nodes) == 1 && nodes[0].NodeID == "node-1"
	})

	if err := scanner.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	waitForCondition(t, time.Second, func() bool {
		return len(scanner.ListNodes()) == 2
	})
}

func TestNodeScannerBackgroundPollingAndRemovalEvent(t *testing.T) {
	var browseCalls int32
	cfg := Config{
		SelfNodeID:      "self-node",
		RefreshInterval: 40 * time.Millisecond,
		ScanTimeout:     25 * time.Millisecond,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			call := atomic.AddInt32(&browseCalls, 1)
			if call == 1 {
				entries <- testServiceEntry("node-1", "Bob", 9998, "10.0.0.2")
			}
			entries <- testServiceEntry("node-2", "Carol", 9997, "10.0.0.3")
			<-ctx.Done()
			return nil
		},
	}

	scanner, err := NewNodeScanner(cfg)
	if err != nil {
		t.Fatalf("NewNodeScanner failed: %v", err)
	}
	scanner.Start()
	defer scanner.Stop()

	waitForCondition(t, 2*time.Second, func() bool {
		nodes := scanner.ListNodes()
		return len(nodes) == 1 && nodes[0].NodeID == "node-2"
	})

	if !waitForEvent(scanner.Events(), EventNodeRemoved, "node-1", 2*time.Second) {
		t.Fatalf("expected removal event for node-1")
	}
}

func TestBrowseReturnsParsedNodes(t *testing.T) {
	cfg := Config{
		SelfNodeID:  "self-node",
		ScanTimeout: 30 * time.Millisecond,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			entries <- testServiceEntry("node-1", "Bob", 9998, "10.0.0.2")
			entries <- &zeroconf.ServiceEntry{Text: []string{"node_id=no-registry"}}
			<-ctx.Done()
			return ctx.Err()
		},
	}

	nodes, err := Browse(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Browse failed: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected one node, got %+v", nodes)
	}
	node := nodes[0]
	if node.Name != "Bob" || node.Port != 9998 || node.Registry != "mb1node-1.message-board" || node.Variant != "direct" || node.Version != "1" {
		t.Fatalf("unexpected node: %+v", node)
	}
	if len(node.Addresses) != 1 || node.Addresses[0] != "10.0.0.2" {
		t.Fatalf("unexpected addresses: %v", node.Addresses)
	}
}

func testServiceEntry(nodeID, instance string, port int, ip string) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  DefaultService,
			Domain:   DefaultDomain,
		},
		HostName: instance + ".local",
		Port:     port,
		Text: []string{
			"node_id=" + nodeID,
			"registry=mb1" + nodeID + ".message-board",
			"owner=mb1" + nodeID,
			"variant=direct",
			"version=1",
		},
		AddrIPv4: []net.IP{net.ParseIP(ip)},
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout %s", timeout)
}

func waitForEvent(events <-chan Event, eventType EventType, nodeID string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			if event.Type == eventType && event.Node.NodeID == nodeID {
				return true
			}
		case <-deadline:
			return false
		}
	}
}
