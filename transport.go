package clamd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// readBufferSize is the size of each read from the daemon connection.
const readBufferSize = 4096

// Dialer opens TCP connections to the daemon. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// session runs one protocol exchange over one TCP connection.
// Connections are never reused.
type session struct {
	dialer  Dialer
	addr    string
	timeout time.Duration
	log     zerolog.Logger
}

// writeFunc puts a command, and for streaming scans the framed payload, on the
// connection. complete is false when the writer stopped early because the
// daemon had already replied.
type writeFunc func(c *sessionConn) (complete bool, err error)

// sessionConn is the write side of a session as seen by a writeFunc.
type sessionConn struct {
	conn       net.Conn
	timeout    time.Duration
	replied    atomic.Bool
	lastActive atomic.Int64
	writeErr   error
}

func newSessionConn(conn net.Conn, timeout time.Duration) *sessionConn {
	c := &sessionConn{conn: conn, timeout: timeout}
	c.touch()
	return c
}

// Write writes p to the daemon. Each call gets a fresh write deadline.
func (c *sessionConn) Write(p []byte) (int, error) {
	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	n, err := c.conn.Write(p)
	if n > 0 {
		c.touch()
	}
	if err != nil && c.writeErr == nil {
		c.writeErr = err
	}
	return n, err
}

// Replied reports whether the daemon has sent any bytes yet.
func (c *sessionConn) Replied() bool {
	return c.replied.Load()
}

func (c *sessionConn) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *sessionConn) idleSince() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

type readResult struct {
	reply []byte
	err   error
}

// execute dials the daemon, hands the connection to write and collects the
// whole reply until the daemon closes its side.
func (s *session) execute(ctx context.Context, command string, write writeFunc) ([]byte, error) {
	log := s.log.With().Str("addr", s.addr).Str("command", command).Logger()

	dialCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewTransportError("connect canceled", ctx.Err())
		}
		log.Debug().Err(err).Msg("dial failed")
		return nil, classifyDialError(err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sc := newSessionConn(conn, s.timeout)
	done := make(chan readResult, 1)
	go readAll(sc, done)

	complete, writeErr := write(sc)
	if writeErr != nil && sc.writeErr == nil {
		// local failure, e.g. the byte source: drop the session right away
		_ = conn.Close()
		<-done
		log.Debug().Err(writeErr).Msg("session abandoned")
		return nil, writeErr
	}

	res := <-done
	if ctx.Err() != nil {
		return nil, NewTransportError("session canceled", ctx.Err())
	}

	log.Debug().
		Bool("complete", complete && writeErr == nil).
		Int("reply_bytes", len(res.reply)).
		AnErr("read_err", res.err).
		AnErr("write_err", writeErr).
		Msg("session finished")

	if !complete || writeErr != nil {
		if res.err != nil && len(res.reply) == 0 {
			return nil, classifyIOError(res.err)
		}
		return nil, NewAbortedError(res.reply)
	}
	if res.err != nil {
		return nil, classifyIOError(res.err)
	}
	return res.reply, nil
}

// readAll accumulates inbound bytes until EOF. The idle clock restarts on
// every read and every successful write.
func readAll(sc *sessionConn, done chan<- readResult) {
	var reply bytes.Buffer
	buf := make([]byte, readBufferSize)
	for {
		if sc.timeout > 0 {
			_ = sc.conn.SetReadDeadline(sc.idleSince().Add(sc.timeout))
		}
		n, err := sc.conn.Read(buf)
		if n > 0 {
			reply.Write(buf[:n])
			sc.touch()
			sc.replied.Store(true)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			done <- readResult{reply: reply.Bytes()}
			return
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() && time.Since(sc.idleSince()) < sc.timeout {
			// the write side was active, extend the deadline
			continue
		}
		done <- readResult{reply: reply.Bytes(), err: err}
		return
	}
}
