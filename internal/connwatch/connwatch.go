// Package connwatch supervises the broker session.
//
// A [Supervisor] runs the connection protocol as an explicit state
// machine over a [Transport]:
//  1. AssociatingNetwork: join the network, retried every 500ms.
//  2. HandshakingSecure: install trust material and connect to the
//     broker, retried every 1000ms.
//  3. SessionActive: subscribe to every inbound topic.
//
// Delays are flat and retries are unbounded. [Supervisor.Tick] performs
// at most one attempt and never sleeps; [Supervisor.Ensure] is the
// blocking form that loops Tick on an injected clock until the session is
// active. The protocol is re-entered whenever the transport is observed
// disconnected.
package connwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/smartpark/internal/clock"
	"github.com/nugget/smartpark/internal/config"
)

// State is a phase of the connection protocol.
type State int

// Connection states.
const (
	Disconnected State = iota
	AssociatingNetwork
	HandshakingSecure
	SessionActive
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case AssociatingNetwork:
		return "associating_network"
	case HandshakingSecure:
		return "handshaking_secure"
	case SessionActive:
		return "session_active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// InboundHandler receives messages from subscribed topics.
type InboundHandler interface {
	HandleMessage(topic string, payload []byte)
}

// Transport is the network link and broker client the supervisor drives.
type Transport interface {
	// Associate joins the local network. It returns nil once the link
	// can carry traffic.
	Associate(ctx context.Context) error
	// InstallTrustMaterial configures the CA certificate, device
	// certificate and device key used by the next Connect.
	InstallTrustMaterial(ca, cert, key []byte) error
	Connect(ctx context.Context, endpoint string, port int, clientID string) error
	IsConnected() bool
	Subscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	// Poll delivers queued inbound messages to h on the caller's
	// goroutine.
	Poll(h InboundHandler)
}

// ErrNotActive is returned by [Supervisor.Publish] when the session is
// not established.
var ErrNotActive = errors.New("session not active")

// Default retry intervals.
const (
	DefaultAssociateRetry = 500 * time.Millisecond
	DefaultConnectRetry   = 1000 * time.Millisecond
)

// Config is the fixed session identity and retry schedule.
type Config struct {
	Endpoint string
	Port     int
	ClientID string
	// Topics are subscribed in full on every activation.
	Topics []string
	Trust  config.TrustMaterial

	AssociateRetry time.Duration
	ConnectRetry   time.Duration
}

// Status is a snapshot of the supervisor, suitable for JSON
// serialization.
type Status struct {
	State      string    `json:"state"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	LastChange time.Time `json:"last_change"`
	SessionID  string    `json:"session_id,omitempty"`
	// Subscribed lists the topics acknowledged in the current session.
	// A configured topic missing here was not subscribed.
	Subscribed []string `json:"subscribed_topics"`
}

// Supervisor owns the session state. Tick, Ensure, Active, Poll and
// Publish must be called from a single goroutine; Status may be called
// from any.
type Supervisor struct {
	transport Transport
	cfg       Config
	inbound   InboundHandler
	clock     clock.Clock
	logger    *slog.Logger

	// next is when the current phase may make its next attempt.
	next time.Time

	mu         sync.Mutex
	state      State
	attempts   int
	lastErr    error
	lastChange time.Time
	sessionID  string
	subscribed []string
}

// New returns a Disconnected supervisor. Zero retry intervals are
// replaced with the defaults.
//
// Panics if transport or inbound is nil.
func New(transport Transport, cfg Config, inbound InboundHandler, clk clock.Clock, logger *slog.Logger) *Supervisor {
	if transport == nil {
		panic("connwatch: transport must not be nil")
	}
	if inbound == nil {
		panic("connwatch: inbound handler must not be nil")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AssociateRetry <= 0 {
		cfg.AssociateRetry = DefaultAssociateRetry
	}
	if cfg.ConnectRetry <= 0 {
		cfg.ConnectRetry = DefaultConnectRetry
	}
	return &Supervisor{
		transport:  transport,
		cfg:        cfg,
		inbound:    inbound,
		clock:      clk,
		logger:     logger,
		lastChange: clk.Now(),
	}
}

// State returns the current protocol state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the current supervisor snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:      s.state.String(),
		Attempts:   s.attempts,
		LastChange: s.lastChange,
		SessionID:  s.sessionID,
		Subscribed: append([]string{}, s.subscribed...),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Active reports whether the session is established and the transport is
// connected. A session whose transport has dropped is moved back to
// Disconnected.
func (s *Supervisor) Active() bool {
	if s.state != SessionActive {
		return false
	}
	if s.transport.IsConnected() {
		return true
	}
	s.logger.Info("broker session lost", "session_id", s.sessionID)
	s.setState(Disconnected)
	return false
}

// Tick advances the protocol by at most one attempt and returns the
// resulting state. It does nothing while the current phase's retry delay
// has not elapsed.
func (s *Supervisor) Tick(ctx context.Context) State {
	if s.state == SessionActive && s.Active() {
		return SessionActive
	}

	now := s.clock.Now()
	if s.state == Disconnected {
		s.mu.Lock()
		s.attempts = 0
		s.mu.Unlock()
		s.setState(AssociatingNetwork)
		s.next = now
	}
	if now.Before(s.next) {
		return s.state
	}

	switch s.state {
	case AssociatingNetwork:
		s.associate(ctx, now)
	case HandshakingSecure:
		s.handshake(ctx, now)
	}
	return s.state
}

// Ensure blocks until the session is active, retrying forever. It
// returns early only when ctx is cancelled.
func (s *Supervisor) Ensure(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Tick(ctx) == SessionActive {
			return nil
		}
		if d := s.next.Sub(s.clock.Now()); d > 0 {
			if err := s.clock.Sleep(ctx, d); err != nil {
				return err
			}
		}
	}
}

// Poll delivers queued inbound messages to the inbound handler.
func (s *Supervisor) Poll() {
	s.transport.Poll(s.inbound)
}

// Publish sends payload on topic if the session is active.
func (s *Supervisor) Publish(ctx context.Context, topic string, payload []byte) error {
	if !s.Active() {
		return ErrNotActive
	}
	return s.transport.Publish(ctx, topic, payload)
}

func (s *Supervisor) associate(ctx context.Context, now time.Time) {
	err := s.transport.Associate(ctx)
	s.recordAttempt(err)
	if err != nil {
		s.logger.Debug("network association failed, retrying",
			"attempt", s.Status().Attempts,
			"next_delay", s.cfg.AssociateRetry.String(),
			"error", err,
		)
		s.next = now.Add(s.cfg.AssociateRetry)
		return
	}

	s.logger.Info("network associated")
	s.setState(HandshakingSecure)
	s.next = now
}

func (s *Supervisor) handshake(ctx context.Context, now time.Time) {
	err := s.transport.InstallTrustMaterial(s.cfg.Trust.CA, s.cfg.Trust.Cert, s.cfg.Trust.Key)
	if err != nil {
		err = fmt.Errorf("install trust material: %w", err)
	} else {
		err = s.transport.Connect(ctx, s.cfg.Endpoint, s.cfg.Port, s.cfg.ClientID)
	}
	s.recordAttempt(err)
	if err != nil {
		s.logger.Debug("broker connect failed, retrying",
			"endpoint", s.cfg.Endpoint,
			"port", s.cfg.Port,
			"attempt", s.Status().Attempts,
			"next_delay", s.cfg.ConnectRetry.String(),
			"error", err,
		)
		s.next = now.Add(s.cfg.ConnectRetry)
		return
	}

	s.activate(ctx)
}

// activate enters SessionActive and subscribes to every topic. A failed
// subscription is logged and left out of the subscribed set; the session
// stays active.
func (s *Supervisor) activate(ctx context.Context) {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	s.mu.Lock()
	s.sessionID = id.String()
	s.subscribed = s.subscribed[:0]
	attempts := s.attempts
	s.mu.Unlock()
	s.setState(SessionActive)

	s.logger.Info("broker session active",
		"endpoint", s.cfg.Endpoint,
		"client_id", s.cfg.ClientID,
		"session_id", s.sessionID,
		"after_attempts", attempts,
	)

	for _, topic := range s.cfg.Topics {
		if err := s.transport.Subscribe(ctx, topic); err != nil {
			s.logger.Warn("subscribe failed",
				"topic", topic,
				"session_id", s.sessionID,
				"error", err,
			)
			continue
		}
		s.mu.Lock()
		s.subscribed = append(s.subscribed, topic)
		s.mu.Unlock()
		s.logger.Debug("subscribed", "topic", topic, "session_id", s.sessionID)
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == s.state {
		return
	}
	s.state = st
	s.lastChange = s.clock.Now()
	if st == Disconnected {
		s.sessionID = ""
		s.subscribed = nil
	}
}

func (s *Supervisor) recordAttempt(err error) {
	s.mu.Lock()
	s.attempts++
	s.lastErr = err
	s.mu.Unlock()
}
