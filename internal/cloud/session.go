package cloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultAddr is the Cync cloud TCP endpoint.
const DefaultAddr = "cm.gelighting.com:23778"

const (
	// reconnectFloor is the minimum spacing between successful connections.
	reconnectFloor = 10 * time.Second
	pingInterval   = 180 * time.Second
	dialTimeout    = 20 * time.Second

	// Dial failure backoff, doubling up to the reconnect floor.
	failRetryMin = 500 * time.Millisecond
	failRetryMax = reconnectFloor
)

// State is the session connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the session credentials and endpoint.
type Config struct {
	Addr      string
	UserID    uint32
	Authorize string
}

// Session owns the TCP connection to the Cync cloud: handshake, keep-alive,
// reconnect with a 10 s floor between successful connects, and a FIFO queue
// for frames submitted while not connected.
type Session struct {
	cfg    Config
	logger *slog.Logger
	dial   func(ctx context.Context) (net.Conn, error)

	mu          sync.Mutex
	state       State
	conn        net.Conn
	queue       [][]byte
	seq         uint16
	lastSuccess time.Time

	onPacket func(Packet)
	onState  func(State)

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession creates a session. It does not connect until Start.
func NewSession(cfg Config, logger *slog.Logger) *Session {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Session{
		cfg:    cfg,
		logger: logger.With("component", "session"),
		done:   make(chan struct{}),
	}
	s.dial = func(ctx context.Context) (net.Conn, error) {
		d := net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
		return d.DialContext(ctx, "tcp", s.cfg.Addr)
	}
	return s
}

// SetDialer replaces the TCP dialer. Must be called before Start.
func (s *Session) SetDialer(dial func(ctx context.Context) (net.Conn, error)) {
	s.dial = dial
}

// OnPacket registers the inbound packet callback. Packets are delivered in
// wire order from the reader goroutine. Must be called before Start.
func (s *Session) OnPacket(fn func(Packet)) {
	s.onPacket = fn
}

// OnStateChange registers a state transition callback. Must be called before
// Start.
func (s *Session) OnStateChange(fn func(State)) {
	s.onState = fn
}

// Start launches the connect loop.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.runLoop()
}

// Shutdown closes the socket, stops all timers and drops the send queue.
func (s *Session) Shutdown() {
	s.closeOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.queue = nil
	s.mu.Unlock()
	s.wg.Wait()
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextSeq allocates the next per-connection request sequence number,
// starting at 1. Wraparound is permitted.
func (s *Session) NextSeq() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Send frames the payload and writes it if connected, or appends it to the
// send queue otherwise. Queued frames go out in order, before any send
// submitted after the connection completes. Send never fails: transport
// errors tear the connection down and the frame set stays queued or is
// retransmitted by the caller's next state resync.
func (s *Session) Send(pktType uint8, payload []byte) {
	frame := EncodeFrame(pktType, payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.conn == nil {
		s.queue = append(s.queue, frame)
		return
	}
	s.writeLocked(frame)
}

// writeLocked writes one frame on the current connection. Caller holds mu.
// A write error re-queues the frame for the next connection and closes the
// socket; the reader notices and reconnects.
func (s *Session) writeLocked(frame []byte) {
	if s.conn == nil {
		s.queue = append(s.queue, frame)
		return
	}
	if _, err := s.conn.Write(frame); err != nil {
		s.logger.Warn("write failed, frame queued", "err", err)
		s.queue = append(s.queue, frame)
		s.conn.Close()
	}
}

// reconnectDelay returns how long to wait before the next connect attempt so
// that successful connections stay at least reconnectFloor apart.
func reconnectDelay(lastSuccess, now time.Time) time.Duration {
	if lastSuccess.IsZero() {
		return 0
	}
	if d := reconnectFloor - now.Sub(lastSuccess); d > 0 {
		return d
	}
	return 0
}

func (s *Session) runLoop() {
	defer s.wg.Done()

	failBackoff := failRetryMin
	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.Lock()
		wait := reconnectDelay(s.lastSuccess, time.Now())
		s.mu.Unlock()
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-s.done:
				return
			}
		}

		s.setState(StateConnecting)
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		conn, err := s.dial(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("connect failed", "addr", s.cfg.Addr, "err", err)
			s.setState(StateDisconnected)
			select {
			case <-time.After(failBackoff):
			case <-s.done:
				return
			}
			if failBackoff < failRetryMax {
				failBackoff *= 2
				if failBackoff > failRetryMax {
					failBackoff = failRetryMax
				}
			}
			continue
		}
		failBackoff = failRetryMin

		s.mu.Lock()
		s.conn = conn
		s.seq = 0
		s.lastSuccess = time.Now()
		s.mu.Unlock()
		s.setState(StateAuthenticating)
		s.logger.Info("connected, authenticating", "addr", s.cfg.Addr)

		// The login is per-connection: written directly, never queued.
		if _, err := conn.Write(EncodeFrame(PacketAuth, BuildAuth(s.cfg.UserID, s.cfg.Authorize))); err != nil {
			s.logger.Warn("auth write failed", "err", err)
			conn.Close()
		}

		s.readConn(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		s.setState(StateDisconnected)
	}
}

// readConn consumes frames from conn until error or close. It also runs the
// per-connection keep-alive ticker.
func (s *Session) readConn(conn net.Conn) {
	connDone := make(chan struct{})
	defer close(connDone)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if s.state == StateConnected {
					s.writeLocked(EncodeFrame(PacketPing, nil))
				}
				s.mu.Unlock()
			case <-connDone:
				return
			case <-s.done:
				return
			}
		}
	}()

	for {
		pkt, err := ReadFrame(conn)
		if err != nil {
			select {
			case <-s.done:
			default:
				if err != io.EOF && !strings.Contains(err.Error(), "closed") {
					s.logger.Error("read error", "err", err)
				} else {
					s.logger.Info("connection closed")
				}
			}
			conn.Close()
			return
		}
		s.handlePacket(pkt)
	}
}

func (s *Session) handlePacket(pkt Packet) {
	if pkt.Type == PacketAuth {
		if ParseAuthResult(pkt.Payload) {
			s.logger.Info("authenticated")
			s.becomeConnected()
		} else {
			s.logger.Error("authentication rejected", "payload", fmt.Sprintf("%X", pkt.Payload))
			s.mu.Lock()
			if s.conn != nil {
				s.conn.Close()
			}
			s.mu.Unlock()
		}
		return
	}
	s.logger.Debug("packet received", "type", packetName(pkt.Type), "response", pkt.IsResponse, "len", len(pkt.Payload))
	if s.onPacket != nil {
		s.onPacket(pkt)
	}
}

// becomeConnected flips the state and drains the send queue in order, ahead
// of any send submitted afterwards.
func (s *Session) becomeConnected() {
	s.mu.Lock()
	s.state = StateConnected
	pending := s.queue
	s.queue = nil
	for _, frame := range pending {
		s.writeLocked(frame)
	}
	s.mu.Unlock()
	if len(pending) > 0 {
		s.logger.Info("send queue drained", "frames", len(pending))
	}
	if s.onState != nil {
		s.onState(StateConnected)
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	if s.onState != nil {
		s.onState(st)
	}
}
