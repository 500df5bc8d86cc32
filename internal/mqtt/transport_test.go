package mqtt

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"log/slog"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"
)

type fakeLink struct {
	err   error
	calls int
}

func (f *fakeLink) Associate(context.Context) error {
	f.calls++
	return f.err
}

type recordingHandler struct {
	topics   []string
	payloads []string
}

func (r *recordingHandler) HandleMessage(topic string, payload []byte) {
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, string(payload))
}

// selfSigned returns PEM-encoded certificate and key for a throwaway CA.
func selfSigned(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "smartpark-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func newTestTransport(t *testing.T, opts Options) *Transport {
	t.Helper()
	tr, err := NewTransport(&fakeLink{}, opts, slog.Default())
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	return tr
}

func TestNewTransport_Proxy(t *testing.T) {
	tests := []struct {
		name    string
		proxy   string
		wantErr bool
	}{
		{"none", "", false},
		{"socks5", "socks5://127.0.0.1:1080", false},
		{"unknown scheme", "gopher://127.0.0.1:70", true},
		{"bad url", "socks5://[::1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransport(&fakeLink{}, Options{Proxy: tt.proxy}, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTransport(proxy=%q) error = %v, wantErr %v", tt.proxy, err, tt.wantErr)
			}
		})
	}
}

func TestAssociate_Delegates(t *testing.T) {
	link := &fakeLink{err: errors.New("no carrier")}
	tr, err := NewTransport(link, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := tr.Associate(context.Background()); err == nil {
		t.Error("expected link error")
	}
	if link.calls != 1 {
		t.Errorf("link calls = %d, want 1", link.calls)
	}
}

func TestInstallTrustMaterial(t *testing.T) {
	certPEM, keyPEM := selfSigned(t)
	otherCert, _ := selfSigned(t)

	tests := []struct {
		name      string
		ca        []byte
		cert, key []byte
		wantErr   error
		anyErr    bool
	}{
		{name: "valid", ca: certPEM, cert: certPEM, key: keyPEM},
		{name: "empty CA", ca: nil, cert: certPEM, key: keyPEM, wantErr: ErrInvalidCA},
		{name: "garbage CA", ca: []byte("not pem"), cert: certPEM, key: keyPEM, wantErr: ErrInvalidCA},
		{name: "mismatched key", ca: certPEM, cert: otherCert, key: keyPEM, anyErr: true},
		{name: "missing key", ca: certPEM, cert: certPEM, key: nil, anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTransport(t, Options{TLS: true})
			err := tr.InstallTrustMaterial(tt.ca, tt.cert, tt.key)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil {
					t.Error("expected error")
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if tr.tlsConfig == nil || len(tr.tlsConfig.Certificates) != 1 || tr.tlsConfig.RootCAs == nil {
					t.Errorf("tls config not populated: %+v", tr.tlsConfig)
				}
			}
		})
	}
}

func TestInstallTrustMaterial_PlainIgnored(t *testing.T) {
	tr := newTestTransport(t, Options{TLS: false})
	if err := tr.InstallTrustMaterial(nil, nil, nil); err != nil {
		t.Errorf("plain transport should ignore trust material: %v", err)
	}
	if tr.tlsConfig != nil {
		t.Error("plain transport should not build a TLS config")
	}
}

func TestConnect_NoTrustMaterial(t *testing.T) {
	tr := newTestTransport(t, Options{TLS: true})
	dialled := false
	tr.dial = func(context.Context, string, string) (net.Conn, error) {
		dialled = true
		return nil, errors.New("unreachable")
	}

	err := tr.Connect(context.Background(), "broker.example.com", 8883, "SmartParkingESP32")
	if !errors.Is(err, ErrNoTrustMaterial) {
		t.Errorf("Connect error = %v, want ErrNoTrustMaterial", err)
	}
	if dialled {
		t.Error("should not dial without trust material")
	}
}

func TestConnect_DialFailure(t *testing.T) {
	tr := newTestTransport(t, Options{})
	var gotAddr string
	tr.dial = func(_ context.Context, network, addr string) (net.Conn, error) {
		gotAddr = addr
		return nil, errors.New("connection refused")
	}

	err := tr.Connect(context.Background(), "broker.example.com", 8883, "SmartParkingESP32")
	if err == nil {
		t.Fatal("expected dial error")
	}
	if gotAddr != "broker.example.com:8883" {
		t.Errorf("dialled %q, want broker.example.com:8883", gotAddr)
	}
	if tr.IsConnected() {
		t.Error("should not report connected after failed dial")
	}
}

func TestConnect_TLSHandshakeFailure(t *testing.T) {
	certPEM, keyPEM := selfSigned(t)
	tr := newTestTransport(t, Options{TLS: true, DialTimeout: time.Second})
	if err := tr.InstallTrustMaterial(certPEM, certPEM, keyPEM); err != nil {
		t.Fatal(err)
	}

	tr.dial = func(context.Context, string, string) (net.Conn, error) {
		client, server := net.Pipe()
		// The server side hangs up instead of answering the ClientHello.
		go func() {
			buf := make([]byte, 512)
			server.Read(buf)
			server.Close()
		}()
		return client, nil
	}

	err := tr.Connect(context.Background(), "broker.example.com", 8883, "SmartParkingESP32")
	if err == nil || !strings.Contains(err.Error(), "tls handshake") {
		t.Errorf("Connect error = %v, want tls handshake failure", err)
	}
	if tr.IsConnected() {
		t.Error("should not report connected after failed handshake")
	}
}

func TestSubscribePublish_NotConnected(t *testing.T) {
	tr := newTestTransport(t, Options{})
	ctx := context.Background()

	if err := tr.Subscribe(ctx, "esp32/SmartParking/commands"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe error = %v, want ErrNotConnected", err)
	}
	if err := tr.Publish(ctx, "esp32/SmartParking/status", []byte("[]")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish error = %v, want ErrNotConnected", err)
	}
}

func TestPoll_DeliversQueuedInOrder(t *testing.T) {
	tr := newTestTransport(t, Options{})
	tr.inbound.push("a", []byte("1"))
	tr.inbound.push("b", []byte("2"))

	h := &recordingHandler{}
	tr.Poll(h)

	if strings.Join(h.topics, ",") != "a,b" || strings.Join(h.payloads, ",") != "1,2" {
		t.Errorf("delivered topics=%v payloads=%v", h.topics, h.payloads)
	}

	h2 := &recordingHandler{}
	tr.Poll(h2)
	if len(h2.topics) != 0 {
		t.Errorf("second poll delivered %v, want nothing", h2.topics)
	}
}

func TestInboundQueue_DropsNewestWhenFull(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	q := newInboundQueue(2, logger)

	q.push("t", []byte("first"))
	q.push("t", []byte("second"))
	if q.push("t", []byte("third")) {
		t.Error("push into a full queue should fail")
	}
	if q.dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", q.dropped.Load())
	}
	if !strings.Contains(buf.String(), "inbound queue full") {
		t.Errorf("expected drop warning, got %q", buf.String())
	}

	var got []string
	q.drain(func(_ string, p []byte) { got = append(got, string(p)) })
	if strings.Join(got, ",") != "first,second" {
		t.Errorf("drained %v, want [first second]", got)
	}
}

func TestInboundQueue_CopiesPayload(t *testing.T) {
	q := newInboundQueue(0, slog.Default())
	payload := []byte("unlock")
	q.push("t", payload)
	payload[0] = 'X'

	q.drain(func(_ string, p []byte) {
		if string(p) != "unlock" {
			t.Errorf("payload = %q, want unlock", p)
		}
	})
}

func TestLost_IgnoresStaleGeneration(t *testing.T) {
	tr := newTestTransport(t, Options{})
	gen := tr.gen.Add(1)
	tr.connected.Store(true)

	tr.lost(gen-1, errors.New("old client"))
	if !tr.IsConnected() {
		t.Error("stale callback should not clear the connected flag")
	}

	tr.lost(gen, errors.New("eof"))
	if tr.IsConnected() {
		t.Error("current callback should clear the connected flag")
	}
}

func TestClose_ClearsConnected(t *testing.T) {
	tr := newTestTransport(t, Options{})
	tr.gen.Add(1)
	tr.connected.Store(true)

	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if tr.IsConnected() {
		t.Error("Close should clear the connected flag")
	}
}
