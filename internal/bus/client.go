// Package bus connects a session to NATS for remote control and status.
package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/phonex/internal/config"
)

const reconnectWait = 500 * time.Millisecond

// Client wraps a NATS connection with JSON request and publish helpers.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

// Connect dials the configured servers. name identifies the connection in
// server monitoring. The client reconnects indefinitely once connected.
func Connect(ctx context.Context, cfg config.BusConfig, name string, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := []nats.Option{
		nats.Name(name),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", slog.String("server", nc.ConnectedUrl()))
		}),
	}
	switch {
	case cfg.Token != "":
		options = append(options, nats.Token(cfg.Token))
	case cfg.Username != "" || cfg.Password != "":
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	servers := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(servers, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", servers, err)
	}
	log.Info("connected to NATS", slog.String("server", conn.ConnectedUrl()), slog.String("name", name))
	return &Client{conn: conn, log: log}, nil
}

// Request sends req as JSON on subject and decodes the reply into reply.
// The deadline comes from ctx.
func (c *Client) Request(ctx context.Context, subject string, req, reply any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", subject, err)
	}
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("%s: no phonexd listening: %w", subject, err)
		}
		return fmt.Errorf("%s: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, reply); err != nil {
		return fmt.Errorf("decode %s reply: %w", subject, err)
	}
	return nil
}

// Publish sends v as JSON on subject.
func (c *Client) Publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	return c.conn.Publish(subject, data)
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.log.Info("closing NATS connection")
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}
