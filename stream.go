package clamd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

const cmdInstream = "zINSTREAM\x00"

// ScanStream sends everything read from r to the daemon and returns its reply.
// If the daemon answers before r is exhausted (e.g. the stream exceeded its
// size limit) no further data is read and an aborted scan error is returned.
func (c *Client) ScanStream(ctx context.Context, r io.Reader, opts ...ScanOption) (string, error) {
	return c.scanSource(ctx, r, "", c.scanSettings(opts))
}

// ScanBuffer scans data held in memory.
func (c *Client) ScanBuffer(ctx context.Context, data []byte, opts ...ScanOption) (string, error) {
	return c.scanSource(ctx, bytes.NewReader(data), "", c.scanSettings(opts))
}

// ScanFile reads a file from the client's filesystem and scans it.
func (c *Client) ScanFile(ctx context.Context, path string, opts ...ScanOption) (string, error) {
	return c.scanPath(ctx, filepath.Clean(path), c.scanSettings(opts))
}

func (c *Client) scanPath(ctx context.Context, path string, s scanSettings) (string, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return "", NewFileSystemError("failed to open file", path, err)
	}
	defer f.Close()

	return c.scanSource(ctx, f, path, s)
}

func (c *Client) scanSettings(opts []ScanOption) scanSettings {
	s := scanSettings{timeout: c.timeout, chunkSize: c.chunkSize}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// scanSource runs one INSTREAM session for src.
func (c *Client) scanSource(ctx context.Context, src io.Reader, path string, s scanSettings) (string, error) {
	sess := c.session(s.timeout)
	reply, err := sess.execute(ctx, "INSTREAM", func(sc *sessionConn) (bool, error) {
		if _, err := io.WriteString(sc, cmdInstream); err != nil {
			return false, err
		}
		return pump(src, make([]byte, s.chunkSize), newFrameWriter(sc), sc.Replied, path)
	})
	if err != nil {
		var e *Error
		if path != "" && errors.As(err, &e) && e.Path == "" {
			e.Path = path
		}
		return "", err
	}
	return decodeReply(reply), nil
}

// pump frames src onto fw until src reports io.EOF, then writes the
// terminator. It stops without reading again once replied returns true;
// exhausted is only true when src legitimately reached its end.
func pump(src io.Reader, buf []byte, fw *frameWriter, replied func() bool, path string) (exhausted bool, err error) {
	for {
		if replied() {
			return false, nil
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if err := fw.WriteFrame(buf[:n]); err != nil {
				return false, err
			}
		}
		if errors.Is(readErr, io.EOF) {
			if err := fw.Terminate(); err != nil {
				return false, err
			}
			return true, nil
		}
		if readErr != nil {
			return false, NewFileSystemError("failed to read source", path, readErr)
		}
	}
}

// decodeReply turns raw reply bytes into text without the trailing NUL.
func decodeReply(reply []byte) string {
	return strings.TrimRight(string(reply), "\x00")
}
