// Package sdk is the client side of the comms store. It talks to a commsd
// daemon over TCP/TLS or, when no daemon is configured, opens the same engine
// inside the calling process.
package sdk

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-comms/pkg/engine"
)

const maxAttempts = 3

// Client is a remote store. It implements Store.
type Client struct {
	addr    string
	useTLS  bool
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex // Protects concurrent access to the connection
	conn   net.Conn
	reader *bufio.Reader
}

var _ Store = (*Client)(nil)

type ClientOption func(*Client)

// WithTLS toggles TLS. It is on by default.
func WithTLS(enabled bool) ClientOption { return func(c *Client) { c.useTLS = enabled } }

func WithClientLogger(l *slog.Logger) ClientOption { return func(c *Client) { c.logger = l } }

// WithTimeout sets the per-command deadline.
func WithTimeout(d time.Duration) ClientOption { return func(c *Client) { c.timeout = d } }

// Connect dials a commsd daemon.
func Connect(addr string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		addr:    addr,
		useTLS:  true,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "sdk"), slog.String("addr", addr))

	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	var conn net.Conn
	var err error
	if c.useTLS {
		config := &tls.Config{
			InsecureSkipVerify: true, // the daemon uses a self-signed cert
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	} else {
		conn, err = dialer.Dial("tcp", c.addr)
	}
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// sendAndReceive sends one command line and returns the reply line.
// Transport failures are retried with backoff; ERR replies are not.
func (c *Client) sendAndReceive(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for i := 0; i < maxAttempts; i++ {
		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
				continue
			}
		}

		c.conn.SetDeadline(time.Now().Add(c.timeout))

		var resp string
		_, err = fmt.Fprint(c.conn, cmd+"\n")
		if err == nil {
			resp, err = c.reader.ReadString('\n')
			if err == nil {
				resp = strings.TrimSpace(resp)
				if strings.HasPrefix(resp, "ERR") {
					return "", errorFromReply(resp)
				}
				return resp, nil
			}
		}

		c.logger.Warn("store request failed, reconnecting", slog.Int("attempt", i+1), slog.Any("err", err))
		if closeErr := c.reconnect(); closeErr != nil {
			c.logger.Warn("reconnect failed", slog.Any("err", closeErr))
		}
		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return "", fmt.Errorf("failed after %d attempts: %w", maxAttempts, err)
}

func okPayload(resp string) (string, error) {
	payload, ok := strings.CutPrefix(resp, "OK ")
	if !ok {
		return "", fmt.Errorf("unexpected reply %q", resp)
	}
	return payload, nil
}

func (c *Client) Get(key string) (string, error) {
	resp, err := c.sendAndReceive("GET " + key)
	if err != nil {
		return "", err
	}
	payload, err := okPayload(resp)
	if err != nil {
		return "", err
	}
	var val string
	if err := json.Unmarshal([]byte(payload), &val); err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}

// Set sends the value JSON-quoted so it always fits on one line.
func (c *Client) Set(key, val string) error {
	quoted, _ := json.Marshal(val)
	_, err := c.sendAndReceive(fmt.Sprintf("SET %s %s", key, quoted))
	return err
}

func (c *Client) Delete(key string) error {
	_, err := c.sendAndReceive("DEL " + key)
	return err
}

func (c *Client) Keys() ([]string, error) {
	resp, err := c.sendAndReceive("KEYS")
	if err != nil {
		return nil, err
	}
	payload, err := okPayload(resp)
	if err != nil {
		return nil, err
	}
	var list []string
	err = json.Unmarshal([]byte(payload), &list)
	return list, err
}

func (c *Client) Ping() error {
	resp, err := c.sendAndReceive("PING")
	if err != nil {
		return err
	}
	if resp != "PONG" {
		return fmt.Errorf("unexpected reply %q", resp)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	err := c.conn.Close()
	c.conn = nil
	return err
}

// --- Generics Support ---

// Get decodes the JSON value stored under key into T.
// A value that does not decode yields an error wrapping ErrDecode.
func Get[T any](r engine.Reader, key string) (T, error) {
	var target T
	raw, err := r.Get(key)
	if err != nil {
		return target, err
	}
	if err := json.Unmarshal([]byte(raw), &target); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %w", ErrDecode, key, err)
	}
	return target, nil
}

// Set encodes val as JSON and stores it under key.
func Set[T any](w engine.Writer, key string, val T) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return w.Set(key, string(data))
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, engine.ErrKeyNotFound)
}
