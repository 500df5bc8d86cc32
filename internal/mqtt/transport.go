package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"golang.org/x/net/proxy"

	"github.com/nugget/smartpark/internal/connwatch"
)

// Transport errors.
var (
	ErrNotConnected     = errors.New("mqtt: not connected")
	ErrNoTrustMaterial  = errors.New("mqtt: no trust material installed")
	ErrInvalidCA        = errors.New("mqtt: no certificates found in CA PEM")
	errUnsupportedProxy = errors.New("mqtt: proxy dialer does not support contexts")
)

// Associator joins the local network.
type Associator interface {
	Associate(ctx context.Context) error
}

// Options configures a [Transport].
type Options struct {
	// TLS enables mutual TLS. When false, trust material is ignored and
	// the broker is dialled in plain TCP.
	TLS bool
	// KeepAlive is the MQTT keep-alive in seconds.
	KeepAlive uint16
	// Proxy is an optional socks5:// URL.
	Proxy string
	// DialTimeout bounds dial, TLS handshake and CONNECT together
	// (default 10s).
	DialTimeout time.Duration
	// QueueSize bounds inbound messages held between polls (default 16).
	QueueSize int
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Transport implements [connwatch.Transport] over Paho.
type Transport struct {
	link   Associator
	opts   Options
	logger *slog.Logger
	dial   dialFunc

	tlsConfig *tls.Config
	client    *paho.Client
	conn      net.Conn

	// gen identifies the current connection; callbacks from an older
	// client are ignored.
	gen       atomic.Uint64
	connected atomic.Bool
	inbound   *inboundQueue
}

var _ connwatch.Transport = (*Transport)(nil)

// NewTransport returns a disconnected Transport.
func NewTransport(link Associator, opts Options, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	t := &Transport{
		link:    link,
		opts:    opts,
		logger:  logger,
		inbound: newInboundQueue(opts.QueueSize, logger),
	}

	var d net.Dialer
	t.dial = d.DialContext

	if opts.Proxy != "" {
		u, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse mqtt proxy URL: %w", err)
		}
		pd, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("mqtt proxy: %w", err)
		}
		cd, ok := pd.(proxy.ContextDialer)
		if !ok {
			return nil, errUnsupportedProxy
		}
		t.dial = cd.DialContext
	}

	return t, nil
}

// Associate delegates to the network link.
func (t *Transport) Associate(ctx context.Context) error {
	return t.link.Associate(ctx)
}

// InstallTrustMaterial builds the TLS configuration for the next
// Connect from PEM-encoded CA certificate, device certificate and device
// key. It is a no-op when TLS is disabled.
func (t *Transport) InstallTrustMaterial(ca, cert, key []byte) error {
	if !t.opts.TLS {
		return nil
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return ErrInvalidCA
	}
	pair, err := tls.X509KeyPair(cert, key)
	if err != nil {
		return fmt.Errorf("mqtt: device key pair: %w", err)
	}

	t.tlsConfig = &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}
	return nil
}

// Connect dials endpoint:port, completes the TLS handshake when enabled,
// and sends CONNECT with a clean start. Any previous connection is
// closed first.
func (t *Transport) Connect(ctx context.Context, endpoint string, port int, clientID string) error {
	t.closeClient()

	if t.opts.TLS && t.tlsConfig == nil {
		return ErrNoTrustMaterial
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.DialTimeout)
	defer cancel()

	addr := net.JoinHostPort(endpoint, strconv.Itoa(port))
	conn, err := t.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("mqtt dial %s: %w", addr, err)
	}

	if t.opts.TLS {
		cfg := t.tlsConfig.Clone()
		cfg.ServerName = endpoint
		tc := tls.Client(conn, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return fmt.Errorf("mqtt tls handshake %s: %w", addr, err)
		}
		conn = tc
	}

	gen := t.gen.Add(1)
	client := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				if t.gen.Load() == gen {
					t.inbound.push(pr.Packet.Topic, pr.Packet.Payload)
				}
				return true, nil
			},
		},
		OnClientError: func(err error) {
			t.lost(gen, err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			t.lost(gen, fmt.Errorf("server disconnect, reason code %d", d.ReasonCode))
		},
	})

	if _, err := client.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  t.opts.KeepAlive,
		CleanStart: true,
	}); err != nil {
		conn.Close()
		return fmt.Errorf("mqtt connect %s: %w", addr, err)
	}

	t.client = client
	t.conn = conn
	t.connected.Store(true)
	t.logger.Info("mqtt connected to broker", "broker", addr, "client_id", clientID, "tls", t.opts.TLS)
	return nil
}

// IsConnected reports whether the current connection is up.
func (t *Transport) IsConnected() bool {
	return t.connected.Load()
}

// Subscribe subscribes to topic at QoS 0.
func (t *Transport) Subscribe(ctx context.Context, topic string) error {
	if t.client == nil || !t.connected.Load() {
		return ErrNotConnected
	}
	if _, err := t.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 0}},
	}); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends payload on topic at QoS 0, not retained.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	if t.client == nil || !t.connected.Load() {
		return ErrNotConnected
	}
	if _, err := t.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     0,
	}); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Poll hands every queued inbound message to h.
func (t *Transport) Poll(h connwatch.InboundHandler) {
	t.inbound.drain(h.HandleMessage)
}

// Dropped returns how many inbound messages were discarded because the
// queue was full.
func (t *Transport) Dropped() int64 {
	return t.inbound.dropped.Load()
}

// Close disconnects from the broker.
func (t *Transport) Close() error {
	t.closeClient()
	return nil
}

func (t *Transport) lost(gen uint64, err error) {
	if t.gen.Load() != gen {
		return
	}
	if t.connected.Swap(false) {
		t.logger.Warn("mqtt connection lost", "error", err)
	}
}

func (t *Transport) closeClient() {
	t.gen.Add(1)
	t.connected.Store(false)
	if t.client != nil {
		if err := t.client.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
			t.logger.Debug("mqtt disconnect", "error", err)
		}
		t.client = nil
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}
