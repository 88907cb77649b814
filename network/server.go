package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"msgboard/chain"
	"msgboard/logging"
	"msgboard/models"
	"msgboard/node"
	"msgboard/registry"
)

// Handler executes calls and queries received over the wire.
type Handler interface {
	Submit(ctx context.Context, call chain.Call) (models.Receipt, error)
	Query(ctx context.Context, function string, args json.RawMessage) (json.RawMessage, error)
}

// ServerOptions configures the accept loop.
type ServerOptions struct {
	IdleTimeout    time.Duration
	RequestTimeout time.Duration

	// ConnectionRateLimitPerIP caps new connections per remote IP within
	// ConnectionRateLimitWindow. Zero disables the limit.
	ConnectionRateLimitPerIP     int
	ConnectionRateLimitWindow    time.Duration
	OnInboundConnectionRateLimit func(ip string)

	Logger logrus.FieldLogger
}

func (o ServerOptions) withDefaults() ServerOptions {
	out := o
	if out.IdleTimeout <= 0 {
		out.IdleTimeout = DefaultIdleTimeout
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = DefaultRequestTimeout
	}
	if out.ConnectionRateLimitWindow <= 0 {
		out.ConnectionRateLimitWindow = time.Minute
	}
	if out.Logger == nil {
		out.Logger = logging.Nop()
	}
	return out
}

const (
	minAcceptRetryDelay = 5 * time.Millisecond
	maxAcceptRetryDelay = time.Second
)

// Server accepts inbound TCP sessions and serves framed requests on them.
type Server struct {
	listener net.Listener
	handler  Handler
	options  ServerOptions
	log      logrus.FieldLogger

	connMu  sync.Mutex
	conns   map[net.Conn]struct{}
	limitMu   sync.Mutex
	recent    map[string][]time.Time
	lastSweep time.Time

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Listen starts a TCP listener and accept loop.
func Listen(address string, handler Handler, options ServerOptions) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	opts := options.withDefaults()

	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", address, err)
	}

	server := &Server{
		listener: listener,
		handler:  handler,
		options:  opts,
		log:      opts.Logger.WithField("component", "server"),
		conns:    make(map[net.Conn]struct{}),
		recent:   make(map[string][]time.Time),
		closed:   make(chan struct{}),
	}

	server.wg.Add(1)
	go server.acceptLoop()
	return server, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting, closes open connections and waits for handlers.
func (s *Server) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.closed)
		closeErr = s.listener.Close()

		s.connMu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.connMu.Unlock()

		s.wg.Wait()
	})
	return closeErr
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	var retryDelay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}

			if retryDelay == 0 {
				retryDelay = minAcceptRetryDelay
			} else {
				retryDelay *= 2
			}
			if retryDelay > maxAcceptRetryDelay {
				retryDelay = maxAcceptRetryDelay
			}
			s.log.WithError(err).WithField("retry_in", retryDelay).Warn("accept connection failed")

			timer := time.NewTimer(retryDelay)
			select {
			case <-s.closed:
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		retryDelay = 0

		if ip, limited := s.rateLimited(conn.RemoteAddr()); limited {
			s.log.WithField("remote_ip", ip).Warn("inbound connection rate limited")
			if s.options.OnInboundConnectionRateLimit != nil {
				s.options.OnInboundConnectionRateLimit(ip)
			}
			_ = conn.Close()
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	select {
	case <-s.closed:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

func (s *Server) rateLimited(addr net.Addr) (string, bool) {
	if s.options.ConnectionRateLimitPerIP <= 0 {
		return "", false
	}

	ip := addr.String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	now := time.Now()
	cutoff := now.Add(-s.options.ConnectionRateLimitWindow)

	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	if now.Sub(s.lastSweep) >= s.options.ConnectionRateLimitWindow {
		s.sweepRecent(cutoff)
		s.lastSweep = now
	}

	kept := s.recent[ip][:0]
	for _, at := range s.recent[ip] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= s.options.ConnectionRateLimitPerIP {
		s.recent[ip] = kept
		return ip, true
	}
	s.recent[ip] = append(kept, now)
	return ip, false
}

// sweepRecent forgets addresses with no connection after cutoff. Callers
// hold limitMu.
func (s *Server) sweepRecent(cutoff time.Time) {
	for ip, times := range s.recent {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(s.recent, ip)
		}
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer func() {
		_ = conn.Close()
	}()

	log := s.log.WithField("remote_addr", conn.RemoteAddr().String())
	log.Debug("connection opened")

	for {
		payload, err := ReadFrameWithTimeout(conn, s.options.IdleTimeout)
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				_ = writeJSONFrame(conn, errorMessage("", CodeInvalidRequest, err.Error()))
			} else if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.WithError(err).Debug("connection read ended")
			}
			return
		}

		response := s.handleFrame(payload)
		if err := conn.SetWriteDeadline(time.Now().Add(s.options.RequestTimeout)); err != nil {
			return
		}
		if err := writeJSONFrame(conn, response); err != nil {
			log.WithError(err).Debug("write response failed")
			return
		}
	}
}

func (s *Server) handleFrame(payload []byte) any {
	msgType, err := DecodeMessageType(payload)
	if err != nil {
		return errorMessage("", CodeInvalidRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.options.RequestTimeout)
	defer cancel()

	switch msgType {
	case TypePing:
		var ping PingMessage
		if err := json.Unmarshal(payload, &ping); err != nil {
			return errorMessage("", CodeInvalidRequest, err.Error())
		}
		return PongMessage{Type: TypePong, RequestID: ping.RequestID, Timestamp: time.Now().UnixMilli()}

	case TypeCall:
		var request CallRequest
		if err := json.Unmarshal(payload, &request); err != nil {
			return errorMessage("", CodeInvalidRequest, err.Error())
		}
		if request.ProtocolVersion != ProtocolVersion {
			return versionMismatch(request.RequestID)
		}
		receipt, err := s.handler.Submit(ctx, request.Call)
		if err != nil {
			return s.errorFor(request.RequestID, err)
		}
		return ReceiptMessage{Type: TypeReceipt, RequestID: request.RequestID, Receipt: receipt}

	case TypeQuery:
		var request QueryRequest
		if err := json.Unmarshal(payload, &request); err != nil {
			return errorMessage("", CodeInvalidRequest, err.Error())
		}
		if request.ProtocolVersion != ProtocolVersion {
			return versionMismatch(request.RequestID)
		}
		result, err := s.handler.Query(ctx, request.Function, request.Args)
		if err != nil {
			return s.errorFor(request.RequestID, err)
		}
		return QueryResultMessage{Type: TypeQueryResult, RequestID: request.RequestID, Result: result}

	default:
		return errorMessage("", CodeUnknownType, fmt.Sprintf("Unsupported message type %q.", msgType))
	}
}

func (s *Server) errorFor(requestID string, err error) ErrorMessage {
	var regErr *registry.Error
	switch {
	case errors.As(err, &regErr):
		msg := errorMessage(requestID, CodeRegistry, regErr.Error())
		msg.RegistryCode = uint32(regErr.Code)
		return msg
	case errors.Is(err, node.ErrReplayedCall):
		return errorMessage(requestID, CodeReplayedCall, err.Error())
	case errors.Is(err, node.ErrStaleCall):
		return errorMessage(requestID, CodeStaleCall, err.Error())
	case errors.Is(err, node.ErrUnknownFunction):
		return errorMessage(requestID, CodeUnknownFunction, err.Error())
	case errors.Is(err, node.ErrInvalidCall):
		return errorMessage(requestID, CodeInvalidCall, err.Error())
	default:
		s.log.WithError(err).WithField("request_id", requestID).Error("request failed")
		return errorMessage(requestID, CodeInternal, "internal error")
	}
}

func errorMessage(requestID, code, message string) ErrorMessage {
	return ErrorMessage{
		Type:      TypeError,
		RequestID: requestID,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}

func versionMismatch(requestID string) ErrorMessage {
	msg := errorMessage(requestID, "unsupported_version", ErrUnsupportedVersion.Error())
	msg.SupportedVersions = []int{ProtocolVersion}
	return msg
}
