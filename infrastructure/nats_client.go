package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	natsClientName       = "gs-stream-digest"
	natsReconnectWait    = 2 * time.Second
	natsMaxReconnects    = 10
	natsMaxDeliver       = 3
	natsAckWait          = 30 * time.Second
	domainEventRetention = 7 * 24 * time.Hour
)

// NATSClient carries digest domain events over JetStream
type NATSClient struct {
	servers string

	mu   sync.RWMutex
	nc   *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewNATSClient creates a client for a comma-separated server list
func NewNATSClient(servers string) *NATSClient {
	return &NATSClient{servers: servers}
}

// Connect dials NATS and opens a JetStream context. The ctx deadline bounds the dial.
func (c *NATSClient) Connect(ctx context.Context) error {
	opts := connectionOptions()
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(c.servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.mu.Lock()
	c.nc, c.js = nc, js
	c.mu.Unlock()

	log.WithField("servers", c.servers).Info("Connected to NATS with JetStream")
	return nil
}

func connectionOptions() []nats.Option {
	return []nats.Option{
		nats.Name(natsClientName),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("server", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			entry := log.WithError(err)
			if sub != nil {
				entry = entry.WithField("subject", sub.Subject)
			}
			entry.Error("NATS async error")
		}),
	}
}

// Subscribe attaches a durable consumer to subject. A handler error NAKs the
// message; it is redelivered until natsMaxDeliver attempts.
func (c *NATSClient) Subscribe(subject string, handler func([]byte) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	consumer := durableName(subject)
	sub, err := c.js.Subscribe(subject, func(msg *nats.Msg) {
		settle(msg, handler(msg.Data))
	},
		nats.Durable(consumer),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(natsMaxDeliver),
		nats.AckWait(natsAckWait),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)

	log.WithFields(log.Fields{
		"subject":  subject,
		"consumer": consumer,
	}).Info("Subscribed to NATS subject")
	return nil
}

// settle acks a handled message and naks a failed one
func settle(msg *nats.Msg, handlerErr error) {
	if handlerErr == nil {
		if err := msg.Ack(); err != nil {
			log.WithError(err).WithField("subject", msg.Subject).Error("Failed to ACK message")
		}
		return
	}

	log.WithError(handlerErr).WithField("subject", msg.Subject).Error("Failed to process message")
	if err := msg.Nak(); err != nil {
		log.WithError(err).WithField("subject", msg.Subject).Error("Failed to NAK message")
	}
}

// durableName maps a subject, wildcards included, to a valid consumer name
func durableName(subject string) string {
	name := strings.NewReplacer(".", "_", "*", "wildcard", ">", "all").Replace(subject)
	return natsClientName + "-" + name
}

// Close unsubscribes every consumer and drains the connection
func (c *NATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.WithError(err).WithField("subject", sub.Subject).Warn("Failed to unsubscribe")
		}
	}
	c.subs = nil

	if c.nc == nil {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		log.WithError(err).Warn("Failed to drain NATS connection")
		c.nc.Close()
	}
	log.Info("NATS connection closed")
	return nil
}

// IsConnected reports the live connection state, backing the admin health check
func (c *NATSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nc != nil && c.nc.IsConnected()
}

func (c *NATSClient) jetStream() (nats.JetStreamContext, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, fmt.Errorf("not connected to NATS JetStream")
	}
	return c.js, nil
}

// ensureStream creates the stream unless it already exists
func (c *NATSClient) ensureStream(name string, subjects []string) error {
	js, err := c.jetStream()
	if err != nil {
		return err
	}

	if _, err := js.StreamInfo(name); err == nil {
		log.WithField("stream", name).Debug("JetStream stream already exists")
		return nil
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:        name,
		Subjects:    subjects,
		Retention:   nats.LimitsPolicy,
		MaxAge:      domainEventRetention,
		MaxMsgs:     1000000,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Description: "Digest run and configuration events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}

	log.WithFields(log.Fields{
		"stream":   name,
		"subjects": subjects,
	}).Info("Created JetStream stream")
	return nil
}

// Publish sends data to subject and waits for the JetStream ack
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	js, err := c.jetStream()
	if err != nil {
		return err
	}
	if _, err := js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish message to subject %s: %w", subject, err)
	}
	return nil
}
