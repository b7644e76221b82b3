// Package mqtt connects a transport.Mux to an MQTT broker.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"traze.dev/internal/transport"
	"traze.dev/internal/transport/ws"
)

const DefaultBrokerURL = "tls://traze.iteratec.de:8883"

type Config struct {
	BrokerURL          string
	ClientID           string
	Username           string
	Password           string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
	KeepAlive          time.Duration
	// OpTimeout bounds each subscribe/unsubscribe/publish round trip.
	OpTimeout time.Duration
	QoS       byte
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.BrokerURL) == "" {
		c.BrokerURL = DefaultBrokerURL
	}
	if strings.TrimSpace(c.ClientID) == "" {
		c.ClientID = uuid.NewString()
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	if c.QoS > 1 {
		c.QoS = 1
	}
}

// Broker is a transport.Broker backed by a paho client. Subscriptions are
// remembered and replayed after every reconnect since sessions are clean.
type Broker struct {
	cfg    Config
	client paho.Client
	log    *zap.SugaredLogger

	mu       sync.Mutex
	handlers map[string]transport.Handler
}

func newBroker(cfg Config, log *zap.SugaredLogger) *Broker {
	return &Broker{
		cfg:      cfg,
		log:      log,
		handlers: map[string]transport.Handler{},
	}
}

func Dial(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Broker, error) {
	cfg.normalize()
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("broker url: %w", err)
	}

	b := newBroker(cfg, log)

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(5 * time.Second).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetKeepAlive(cfg.KeepAlive).
		SetTLSConfig(&tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test brokers
			MinVersion:         tls.VersionTLS12,
		}).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			b.log.Warnw("connection lost", "broker", u.Redacted(), "err", err)
		}).
		SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
			b.log.Infow("reconnecting", "broker", u.Redacted())
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if u.Scheme == "ws" || u.Scheme == "wss" {
		opts.SetCustomOpenConnectionFn(func(uri *url.URL, o paho.ClientOptions) (net.Conn, error) {
			dctx, cancel := context.WithTimeout(context.Background(), o.ConnectTimeout)
			defer cancel()
			return ws.Dial(dctx, uri, ws.DialConfig{
				TLS:              o.TLSConfig,
				HandshakeTimeout: o.ConnectTimeout,
				Header:           o.HTTPHeaders,
			})
		})
	}

	b.client = paho.NewClient(opts)
	tok := b.client.Connect()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		b.client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", u.Redacted(), err)
	}
	return b, nil
}

func (b *Broker) onConnect(c paho.Client) {
	b.log.Infow("connected", "client_id", b.cfg.ClientID)

	b.mu.Lock()
	hs := make(map[string]transport.Handler, len(b.handlers))
	for t, h := range b.handlers {
		hs[t] = h
	}
	b.mu.Unlock()

	for topic, h := range hs {
		tok := c.Subscribe(topic, b.cfg.QoS, b.wrap(h))
		go func(topic string, tok paho.Token) {
			if !tok.WaitTimeout(b.cfg.OpTimeout) {
				b.log.Warnw("resubscribe timed out", "topic", topic)
				return
			}
			if err := tok.Error(); err != nil {
				b.log.Warnw("resubscribe failed", "topic", topic, "err", err)
			}
		}(topic, tok)
	}
}

func (b *Broker) wrap(h transport.Handler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		h(transport.Message{
			Topic:    m.Topic(),
			Payload:  m.Payload(),
			Received: time.Now(),
		})
	}
}

func (b *Broker) wait(op string, tok paho.Token) error {
	if !tok.WaitTimeout(b.cfg.OpTimeout) {
		return fmt.Errorf("%s: timed out after %s", op, b.cfg.OpTimeout)
	}
	return tok.Error()
}

// settle reports the outcome of tok in the background. Handlers run on the
// client's delivery goroutine, and waiting there for an acknowledgement
// that the same goroutine has to route would never finish.
func (b *Broker) settle(op, topic string, tok paho.Token) {
	go func() {
		if err := b.wait(op, tok); err != nil {
			b.log.Warnw(op+" failed", "topic", topic, "err", err)
		}
	}()
}

// Subscribe returns once the request is queued. MQTT processes packets of
// one connection in order, so a publish issued afterwards is only handled
// by the broker after the subscription exists.
func (b *Broker) Subscribe(topic string, h transport.Handler) error {
	b.mu.Lock()
	b.handlers[topic] = h
	b.mu.Unlock()
	if !b.client.IsConnectionOpen() {
		// replayed by onConnect
		return nil
	}
	b.settle("subscribe", topic, b.client.Subscribe(topic, b.cfg.QoS, b.wrap(h)))
	return nil
}

func (b *Broker) Unsubscribe(topic string) error {
	b.mu.Lock()
	delete(b.handlers, topic)
	b.mu.Unlock()
	if !b.client.IsConnectionOpen() {
		return nil
	}
	b.settle("unsubscribe", topic, b.client.Unsubscribe(topic))
	return nil
}

// Publish waits for QoS 0 messages to be written. Higher QoS levels need an
// acknowledgement routed by the delivery goroutine and are settled in the
// background instead.
func (b *Broker) Publish(topic string, payload []byte) error {
	if !b.client.IsConnectionOpen() {
		return fmt.Errorf("publish %s: connection down", topic)
	}
	tok := b.client.Publish(topic, b.cfg.QoS, false, payload)
	if b.cfg.QoS == 0 {
		return b.wait("publish", tok)
	}
	b.settle("publish", topic, tok)
	return nil
}

func (b *Broker) Close() error {
	b.client.Disconnect(250)
	b.log.Infow("disconnected", "client_id", b.cfg.ClientID)
	return nil
}

// Connected reports whether the underlying connection is currently up.
func (b *Broker) Connected() bool {
	return b.client.IsConnectionOpen()
}
