// Package testutil provides test helpers for the clamd-sdk-go SDK.
package testutil

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Canned daemon replies.
const (
	CleanReply     = "stream: OK\x00"
	InfectedReply  = "stream: Eicar-Test-Signature FOUND\x00"
	SizeLimitReply = "INSTREAM size limit exceeded. ERROR\x00"
	PongReply      = "PONG\x00"
	VersionReply   = "ClamAV 1.4.1/27400/Mon Oct 13 08:22:01 2026\x00"
)

// EICAR is the standard antivirus test string.
var EICAR = []byte(`X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`)

// ErrSizeLimit is returned by ReadStream when the stream exceeds its limit.
var ErrSizeLimit = errors.New("stream size limit exceeded")

// Handler serves one accepted daemon connection.
type Handler func(conn net.Conn)

// Daemon is a fake clamd listening on a loopback TCP port.
// It tracks how many sessions are open at once.
type Daemon struct {
	ln       net.Listener
	handler  Handler
	wg       sync.WaitGroup
	active   atomic.Int64
	peak     atomic.Int64
	sessions atomic.Int64
}

// NewDaemon starts a fake daemon and stops it when the test ends.
func NewDaemon(t testing.TB, h Handler) *Daemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &Daemon{ln: ln, handler: h}
	d.wg.Add(1)
	go d.acceptLoop()
	t.Cleanup(d.Close)
	return d
}

// Host returns the daemon host.
func (d *Daemon) Host() string {
	host, _, _ := net.SplitHostPort(d.ln.Addr().String())
	return host
}

// Port returns the daemon port.
func (d *Daemon) Port() int {
	_, port, _ := net.SplitHostPort(d.ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return p
}

// Peak returns the largest number of sessions that were open at once.
func (d *Daemon) Peak() int64 { return d.peak.Load() }

// Sessions returns the number of accepted sessions.
func (d *Daemon) Sessions() int64 { return d.sessions.Load() }

// Close stops accepting and waits for open sessions to finish.
func (d *Daemon) Close() {
	_ = d.ln.Close()
	d.wg.Wait()
}

func (d *Daemon) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.sessions.Add(1)
		n := d.active.Add(1)
		for {
			p := d.peak.Load()
			if n <= p || d.peak.CompareAndSwap(p, n) {
				break
			}
		}

		tc := &trackedConn{Conn: conn, active: &d.active}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer tc.Close()
			d.handler(tc)
		}()
	}
}

// trackedConn leaves the active count before the peer can observe the close.
type trackedConn struct {
	net.Conn
	active *atomic.Int64
	once   sync.Once
}

func (c *trackedConn) Close() error {
	c.once.Do(func() { c.active.Add(-1) })
	return c.Conn.Close()
}

// CloseWrite half-closes the connection so the client sees EOF while the
// daemon keeps reading.
func (c *trackedConn) CloseWrite() error {
	if tcp, ok := c.Conn.(*net.TCPConn); ok {
		return tcp.CloseWrite()
	}
	return nil
}

// ReadCommand reads one NUL terminated command such as "zINSTREAM".
func ReadCommand(r *bufio.Reader) (string, error) {
	cmd, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return cmd[:len(cmd)-1], nil
}

// ReadFrame reads one length-prefixed frame. A zero-length frame returns an empty payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ReadStream reads frames until the terminator and returns the payload and
// the number of data frames. With limit > 0 it stops with ErrSizeLimit as
// soon as the payload grows past limit.
func ReadStream(r io.Reader, limit int) ([]byte, int, error) {
	var data bytes.Buffer
	frames := 0
	for {
		payload, err := ReadFrame(r)
		if err != nil {
			return data.Bytes(), frames, err
		}
		if len(payload) == 0 {
			return data.Bytes(), frames, nil
		}
		frames++
		data.Write(payload)
		if limit > 0 && data.Len() > limit {
			return data.Bytes(), frames, ErrSizeLimit
		}
	}
}

// Verdict maps scanned data to a daemon reply.
type Verdict func(data []byte) string

// CleanVerdict replies OK to everything.
func CleanVerdict([]byte) string { return CleanReply }

// EICARVerdict replies FOUND when the data contains the EICAR string.
func EICARVerdict(data []byte) string {
	if bytes.Contains(data, EICAR) {
		return InfectedReply
	}
	return CleanReply
}

// ClamdHandler emulates clamd: PING, VERSION and INSTREAM with the given
// verdict. limit is the INSTREAM size limit, 0 for none. delay is slept
// before each reply.
func ClamdHandler(verdict Verdict, limit int, delay time.Duration) Handler {
	return func(conn net.Conn) {
		r := bufio.NewReader(conn)
		cmd, err := ReadCommand(r)
		if err != nil {
			return
		}

		switch cmd {
		case "zPING":
			time.Sleep(delay)
			_, _ = io.WriteString(conn, PongReply)
		case "zVERSION":
			time.Sleep(delay)
			_, _ = io.WriteString(conn, VersionReply)
		case "zINSTREAM":
			data, _, err := ReadStream(r, limit)
			switch {
			case errors.Is(err, ErrSizeLimit):
				Reject(conn, SizeLimitReply)
				return
			case err != nil:
				return
			}
			time.Sleep(delay)
			_, _ = io.WriteString(conn, verdict(data))
		default:
			_, _ = io.WriteString(conn, "UNKNOWN COMMAND\x00")
		}
	}
}

// ReplyHandler reads a command and answers with reply verbatim.
func ReplyHandler(reply []byte) Handler {
	return func(conn net.Conn) {
		if _, err := ReadCommand(bufio.NewReader(conn)); err != nil {
			return
		}
		_, _ = conn.Write(reply)
	}
}

// SilentHandler reads everything and never replies.
func SilentHandler(conn net.Conn) {
	_, _ = io.Copy(io.Discard, conn)
}

// Reject sends reply mid-stream, half-closes and drains whatever the client
// still sends so the reply is not lost to a reset.
func Reject(conn net.Conn, reply string) {
	_, _ = io.WriteString(conn, reply)
	if hc, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = hc.CloseWrite()
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _ = io.Copy(io.Discard, conn)
}
