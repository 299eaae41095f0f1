package clamd

import (
	"bytes"
	"context"
	"io"
	"net"
	"time"

	"github.com/DevHatRo/clamd-sdk-go/internal/logger"
)

const (
	cmdPing    = "zPING\x00"
	cmdVersion = "zVERSION\x00"
)

// pong is the exact reply a live daemon sends to PING.
var pong = []byte("PONG\x00")

// Ping checks whether the daemon on host:port is alive. It returns true only
// when the reply is exactly "PONG\0"; any other reply is false, not an error.
// A non-positive timeout uses the default of 5s.
func Ping(ctx context.Context, host string, port int, timeout time.Duration) (bool, error) {
	sess, err := commandSession(host, port, timeout)
	if err != nil {
		return false, err
	}
	return ping(ctx, sess)
}

// Version returns the daemon's version string with the trailing NUL
// terminator removed. A non-positive timeout uses the default of 5s.
func Version(ctx context.Context, host string, port int, timeout time.Duration) (string, error) {
	sess, err := commandSession(host, port, timeout)
	if err != nil {
		return "", err
	}
	return version(ctx, sess)
}

// Ping checks whether the client's daemon is alive.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	return ping(ctx, c.session(c.timeout))
}

// Version returns the version string of the client's daemon, trimmed of
// its trailing NUL like the package-level Version.
func (c *Client) Version(ctx context.Context) (string, error) {
	return version(ctx, c.session(c.timeout))
}

func ping(ctx context.Context, sess *session) (bool, error) {
	reply, err := sess.execute(ctx, "PING", writeCommand(cmdPing))
	if err != nil {
		return false, err
	}
	return bytes.Equal(reply, pong), nil
}

func version(ctx context.Context, sess *session) (string, error) {
	reply, err := sess.execute(ctx, "VERSION", writeCommand(cmdVersion))
	if err != nil {
		return "", err
	}
	return decodeReply(reply), nil
}

func writeCommand(cmd string) writeFunc {
	return func(sc *sessionConn) (bool, error) {
		if _, err := io.WriteString(sc, cmd); err != nil {
			return false, err
		}
		return true, nil
	}
}

func commandSession(host string, port int, timeout time.Duration) (*session, error) {
	addr, err := daemonAddr(host, port)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &session{
		dialer:  &net.Dialer{},
		addr:    addr,
		timeout: timeout,
		log:     logger.New(logger.FromEnv()),
	}, nil
}
