package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Handler receives the subject and raw payload of a delivered message.
type Handler func(subject string, data []byte)

// Client is the stepwise connection to the Hermes bus.
type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

// NewClient connects to NATS. The connection keeps retrying in the background
// when the server is not reachable yet, so this only fails on bad options.
func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("stepwise"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("hermes disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("hermes reconnected", "url", nc.ConnectedUrlRedacted())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("hermes async error", "subject", subject, "error", err)
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	c := &Client{conn: nc, logger: logger}
	go func() {
		<-ctx.Done()
		c.Close()
	}()
	return c, nil
}

// Publish JSON-encodes data onto subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers every message on subject to handler.
func (c *Client) Subscribe(subject string, handler Handler) error {
	return c.subscribe(subject, "", handler)
}

// QueueSubscribe shares messages on subject between all members of queue, so
// each message is handled by exactly one stepwise replica.
func (c *Client) QueueSubscribe(subject, queue string, handler Handler) error {
	return c.subscribe(subject, queue, handler)
}

func (c *Client) subscribe(subject, queue string, handler Handler) error {
	cb := func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	}

	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = c.conn.Subscribe(subject, cb)
	} else {
		sub, err = c.conn.QueueSubscribe(subject, queue, cb)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject, "queue", queue)
	return nil
}

// Connected reports whether the underlying connection is currently up.
func (c *Client) Connected() bool {
	return c.conn.IsConnected()
}

// Close drains subscriptions so in-flight handlers finish, then closes the
// connection. Safe to call more than once.
func (c *Client) Close() {
	if c.conn.IsClosed() || c.conn.IsDraining() {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("hermes drain failed", "error", err)
		c.conn.Close()
	}
}
