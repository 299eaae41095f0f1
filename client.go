package clamd

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/rs/zerolog"

	"github.com/DevHatRo/clamd-sdk-go/internal/config"
	"github.com/DevHatRo/clamd-sdk-go/internal/logger"
)

// Client talks to a clamd daemon over TCP.
// It is safe for concurrent use from multiple goroutines.
type Client struct {
	host      string
	port      int
	addr      string
	timeout   time.Duration
	chunkSize int
	dialer    Dialer
	fs        fileSource
	log       zerolog.Logger
}

// NewClient creates a client for the daemon listening on host:port.
func NewClient(host string, port int, opts ...ClientOption) (*Client, error) {
	addr, err := daemonAddr(host, port)
	if err != nil {
		return nil, err
	}

	c := &Client{
		host:      strings.TrimSpace(host),
		port:      port,
		addr:      addr,
		timeout:   defaultTimeout,
		chunkSize: defaultChunkSize,
		dialer:    &net.Dialer{},
		fs:        &osfs.ChrootOS{},
		log:       logger.New(logger.FromEnv()),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// NewClientFromEnv creates a client from CLAMD_* environment variables and
// returns the directory scan options configured alongside it.
// Explicit opts are applied after the environment.
func NewClientFromEnv(opts ...ClientOption) (*Client, DirectoryOptions, error) {
	s, err := config.Load(config.New())
	if err != nil {
		return nil, DirectoryOptions{}, NewValidationError("invalid environment configuration", err)
	}

	base := []ClientOption{
		WithTimeout(s.Timeout),
		WithChunkSize(s.ChunkSize),
	}
	c, err := NewClient(s.Host, s.Port, append(base, opts...)...)
	if err != nil {
		return nil, DirectoryOptions{}, err
	}

	return c, DirectoryOptions{
		Timeout:         c.timeout,
		ChunkSize:       c.chunkSize,
		MaxConcurrency:  s.MaxConcurrency,
		OmitClean:       !s.Detail,
		StopOnError:     !s.ContinueOnError,
	}, nil
}

// Addr returns the daemon address in host:port form.
func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) session(timeout time.Duration) *session {
	return &session{
		dialer:  c.dialer,
		addr:    c.addr,
		timeout: timeout,
		log:     c.log,
	}
}

// daemonAddr validates host and port and joins them.
func daemonAddr(host string, port int) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", NewValidationError("must provide the host the daemon listens on", nil)
	}
	if port < 1 || port > 65535 {
		return "", NewValidationError(fmt.Sprintf("invalid daemon port %d; expected 1..65535", port), nil)
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// fileSource is the part of billy.Filesystem ScanFile and ScanDirectory
// read through.
type fileSource interface {
	Open(filename string) (billy.File, error)
	Lstat(filename string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
	Join(elem ...string) string
}
