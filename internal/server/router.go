// Package server exposes a storage engine over a line-based TCP protocol.
//
//	GET <key>           -> OK <json string> | ERR <code> <msg>
//	SET <key> <json>    -> OK | ERR ...      (value is a JSON-quoted string)
//	DEL <key>           -> OK
//	KEYS                -> OK <json array>
//	PING                -> PONG
//	QUIT                closes the connection
package server

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-comms/pkg/engine"
	"github.com/celerix-dev/celerix-comms/pkg/sdk"
)

const (
	maxConnections = 100
	connLifetime   = 5 * time.Minute
	idleTimeout    = 30 * time.Second
)

type Router struct {
	store  engine.Storage
	cert   *tls.Certificate
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

func NewRouter(s engine.Storage) *Router {
	return &Router{store: s, logger: slog.Default().With(slog.String("component", "router"))}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

func (r *Router) SetLogger(l *slog.Logger) {
	r.logger = l.With(slog.String("component", "router"))
}

// Addr returns the listening address, or nil before Listen has bound.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen serves on port until Stop is called.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()
	defer listener.Close()

	r.logger.Info("storage router listening", slog.String("addr", listener.Addr().String()), slog.Bool("tls", r.cert != nil))

	semaphore := make(chan struct{}, maxConnections)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.logger.Warn("accept failed", slog.Any("err", err))
			continue
		}

		conn.SetDeadline(time.Now().Add(connLifetime))

		go func(c net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				c.Close()
			}()
			r.HandleConnection(c)
		}(conn)
	}
}

// Stop closes the listener. Open connections run until their deadline or QUIT.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	err := r.listener.Close()
	r.listener = nil
	return err
}

// HandleConnection serves commands from conn until QUIT, EOF or idle timeout.
func (r *Router) HandleConnection(conn net.Conn) {
	reader := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Debug("connection closed", slog.Any("err", err))
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		command, args, _ := strings.Cut(line, " ")
		switch strings.ToUpper(command) {
		case "GET":
			key := strings.TrimSpace(args)
			if key == "" {
				replyErr(conn, sdk.CodeBadRequest, "usage: GET <key>")
				continue
			}
			val, err := r.store.Get(key)
			if err != nil {
				r.fail(conn, err)
				continue
			}
			quoted, _ := json.Marshal(val)
			fmt.Fprintln(conn, "OK", string(quoted))

		case "SET":
			key, raw, ok := strings.Cut(args, " ")
			if !ok || key == "" {
				replyErr(conn, sdk.CodeBadRequest, "usage: SET <key> <json string>")
				continue
			}
			var val string
			if err := json.Unmarshal([]byte(raw), &val); err != nil {
				replyErr(conn, sdk.CodeBadRequest, "invalid json value")
				continue
			}
			if err := r.store.Set(key, val); err != nil {
				r.fail(conn, err)
				continue
			}
			fmt.Fprintln(conn, "OK")

		case "DEL":
			key := strings.TrimSpace(args)
			if key == "" {
				replyErr(conn, sdk.CodeBadRequest, "usage: DEL <key>")
				continue
			}
			if err := r.store.Delete(key); err != nil {
				r.fail(conn, err)
				continue
			}
			fmt.Fprintln(conn, "OK")

		case "KEYS":
			list, err := r.store.Keys()
			if err != nil {
				r.fail(conn, err)
				continue
			}
			res, _ := json.Marshal(list)
			fmt.Fprintln(conn, "OK", string(res))

		case "PING":
			fmt.Fprintln(conn, "PONG")

		case "QUIT":
			return

		default:
			replyErr(conn, sdk.CodeBadRequest, "unknown command "+command)
		}
	}
}

func (r *Router) fail(conn net.Conn, err error) {
	code := sdk.ErrorCode(err)
	if code == sdk.CodeInternal {
		r.logger.Error("storage command failed", slog.Any("err", err))
	}
	replyErr(conn, code, err.Error())
}

func replyErr(w io.Writer, code, msg string) {
	// Messages must stay on one line.
	msg = strings.ReplaceAll(msg, "\n", " ")
	fmt.Fprintln(w, "ERR", code, msg)
}
