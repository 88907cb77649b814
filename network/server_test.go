package network

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"msgboard/chain"
	"msgboard/crypto"
	"msgboard/logging"
	"msgboard/models"
	"msgboard/node"
	"msgboard/registry"
	"msgboard/storage"
)

type stubHandler struct{}

func (stubHandler) Submit(context.Context, chain.Call) (models.Receipt, error) {
	return models.Receipt{}, errors.New("not used")
}

func (stubHandler) Query(context.Context, string, json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`0`), nil
}

func newTestNode(t *testing.T) (*node.Node, ed25519.PrivateKey, ed25519.PrivateKey) {
	t.Helper()

	store, _, err := storage.Open(t.TempDir(), storage.DefaultDriver)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	c, err := chain.New(store)
	if err != nil {
		t.Fatalf("chain.New() failed: %v", err)
	}
	token, err := chain.NewToken(store, c, "")
	if err != nil {
		t.Fatalf("chain.NewToken() failed: %v", err)
	}

	_, owner, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	_, author, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	ownerPrincipal := crypto.PrincipalOf(owner)
	reg, err := registry.New(store, c, token, registry.Config{
		Owner:           ownerPrincipal,
		ContractAccount: crypto.ContractPrincipal(ownerPrincipal, "message-board"),
		Fee:             1,
		ChargeAuthor:    true,
	}, nil)
	if err != nil {
		t.Fatalf("registry.New() failed: %v", err)
	}
	n, err := node.New(store, c, token, reg, node.Options{AutoMine: true}, nil)
	if err != nil {
		t.Fatalf("node.New() failed: %v", err)
	}
	if _, err := n.Mint(context.Background(), crypto.PrincipalOf(author), 10); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return n, owner, author
}

func startServer(t *testing.T, handler Handler, options ServerOptions) *Server {
	t.Helper()
	server, err := Listen("127.0.0.1:0", handler, options)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func dialServer(t *testing.T, server *Server) *Client {
	t.Helper()
	client, err := Dial(context.Background(), server.Addr().String(), ClientOptions{RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientServerRoundTrip(t *testing.T) {
	n, owner, author := newTestNode(t)
	server := startServer(t, n, ServerOptions{})
	client := dialServer(t, server)
	ctx := context.Background()

	if _, err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	call, err := chain.NewCall(author, node.FnAddMessage, node.ContentArgs{Content: "over the wire"})
	if err != nil {
		t.Fatalf("NewCall failed: %v", err)
	}
	receipt, err := client.Submit(ctx, call)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !receipt.OK || string(receipt.Result) != "1" || len(receipt.Events) != 1 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	if _, err := client.Submit(ctx, call); !errors.Is(err, node.ErrReplayedCall) {
		t.Fatalf("expected replay error over the wire, got %v", err)
	}

	content, err := client.Query(ctx, node.QGetMessageContent, node.IDArgs{ID: 1})
	if err != nil || string(content) != `"over the wire"` {
		t.Fatalf("Query(content) = %s, %v", content, err)
	}
	if _, err := client.Query(ctx, node.QGetMessageAuthor, node.IDArgs{ID: 7}); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected NotFound over the wire, got %v", err)
	}
	if _, err := client.Query(ctx, "get-everything", nil); !errors.Is(err, node.ErrUnknownFunction) {
		t.Fatalf("expected unknown function, got %v", err)
	}

	withdraw, err := chain.NewCall(owner, node.FnWithdrawFunds, nil)
	if err != nil {
		t.Fatalf("NewCall failed: %v", err)
	}
	receipt, err = client.Submit(ctx, withdraw)
	if err != nil || !receipt.OK || string(receipt.Result) != "true" {
		t.Fatalf("withdraw receipt = %+v, %v", receipt, err)
	}
}

func TestServerRejectsUnknownType(t *testing.T) {
	server := startServer(t, stubHandler{}, ServerOptions{})

	conn, err := net.DialTimeout("tcp", server.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := WriteFrame(conn, []byte(`{"type":"gossip"}`)); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	payload, err := ReadFrameWithTimeout(conn, 2*time.Second)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	var msg ErrorMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode error message: %v", err)
	}
	if msg.Type != TypeError || msg.Code != CodeUnknownType {
		t.Fatalf("unexpected response: %+v", msg)
	}

	if err := WriteFrame(conn, []byte(`{"type":"query","request_id":"r1","protocol_version":99,"function":"get-message-count"}`)); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	payload, err = ReadFrameWithTimeout(conn, 2*time.Second)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	msg = ErrorMessage{}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode error message: %v", err)
	}
	if msg.RequestID != "r1" || len(msg.SupportedVersions) != 1 || msg.SupportedVersions[0] != ProtocolVersion {
		t.Fatalf("unexpected version mismatch response: %+v", msg)
	}
}

func TestServerConnectionRateLimitPerIP(t *testing.T) {
	var limitedCount atomic.Int32
	server := startServer(t, stubHandler{}, ServerOptions{
		ConnectionRateLimitPerIP:  2,
		ConnectionRateLimitWindow: 250 * time.Millisecond,
		OnInboundConnectionRateLimit: func(string) {
			limitedCount.Add(1)
		},
	})

	openConns := make([]net.Conn, 0, 4)
	defer func() {
		for _, conn := range openConns {
			_ = conn.Close()
		}
	}()

	for i := 0; i < 2; i++ {
		conn, ok := dialAndPing(t, server.Addr().String())
		if !ok {
			t.Fatalf("expected allowed connection %d to answer ping", i+1)
		}
		openConns = append(openConns, conn)
	}

	limitedConn, ok := dialAndPing(t, server.Addr().String())
	_ = limitedConn.Close()
	if ok {
		t.Fatalf("expected third connection in window to be rate-limited")
	}
	if limitedCount.Load() == 0 {
		t.Fatalf("expected connection-rate-limit callback to run at least once")
	}

	time.Sleep(300 * time.Millisecond)

	conn, ok := dialAndPing(t, server.Addr().String())
	if !ok {
		t.Fatalf("expected connection after window reset to be accepted")
	}
	openConns = append(openConns, conn)
}

func dialAndPing(t *testing.T, address string) (net.Conn, bool) {
	t.Helper()

	conn, err := net.DialTimeout("tcp", address, 2*time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if err := conn.SetDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
		t.Fatalf("set deadline failed: %v", err)
	}

	if err := writeJSONFrame(conn, PingMessage{Type: TypePing, RequestID: "p", Timestamp: time.Now().UnixMilli()}); err != nil {
		return conn, false
	}
	payload, err := ReadFrame(conn)
	if err != nil {
		return conn, false
	}
	var pong PongMessage
	if err := json.Unmarshal(payload, &pong); err != nil {
		return conn, false
	}
	return conn, pong.Type == TypePong && pong.RequestID == "p"
}

// failingListener fails every Accept until closed.
type failingListener struct {
	accepts atomic.Int32
	closed  chan struct{}
}

func (l *failingListener) Accept() (net.Conn, error) {
	select {
	case <-l.closed:
		return nil, net.ErrClosed
	default:
	}
	l.accepts.Add(1)
	return nil, errors.New("accept: too many open files")
}

func (l *failingListener) Close() error {
	close(l.closed)
	return nil
}

func (l *failingListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestServerBacksOffOnAcceptErrors(t *testing.T) {
	listener := &failingListener{closed: make(chan struct{})}
	server := &Server{
		listener: listener,
		handler:  stubHandler{},
		options:  ServerOptions{}.withDefaults(),
		log:      logging.Nop(),
		conns:    make(map[net.Conn]struct{}),
		recent:   make(map[string][]time.Time),
		closed:   make(chan struct{}),
	}
	server.wg.Add(1)
	go server.acceptLoop()

	time.Sleep(100 * time.Millisecond)
	if err := server.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// 5+10+20+40 ms of backoff fits about five attempts into 100ms.
	if got := listener.accepts.Load(); got == 0 || got > 10 {
		t.Fatalf("expected a handful of accept attempts, got %d", got)
	}
}

func TestRateLimiterForgetsIdleAddresses(t *testing.T) {
	server := &Server{
		options: ServerOptions{
			ConnectionRateLimitPerIP:  5,
			ConnectionRateLimitWindow: 20 * time.Millisecond,
		}.withDefaults(),
		recent: make(map[string][]time.Time),
	}

	for i := 0; i < 50; i++ {
		addr := &net.TCPAddr{IP: net.IPv4(10, 0, byte(i/256), byte(i%256)), Port: 4000}
		if _, limited := server.rateLimited(addr); limited {
			t.Fatalf("first connection from %s was limited", addr)
		}
	}
	if got := len(server.recent); got != 50 {
		t.Fatalf("expected 50 tracked addresses, got %d", got)
	}

	time.Sleep(30 * time.Millisecond)
	if _, limited := server.rateLimited(&net.TCPAddr{IP: net.IPv4(10, 1, 0, 1), Port: 4000}); limited {
		t.Fatalf("fresh address was limited")
	}

	server.limitMu.Lock()
	defer server.limitMu.Unlock()
	if got := len(server.recent); got != 1 {
		t.Fatalf("expected idle addresses to be forgotten, %d remain", got)
	}
}
