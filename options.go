package clamd

import (
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout        = 5 * time.Second
	defaultChunkSize      = 64 * 1024 // 64KB
	defaultMaxConcurrency = 10
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithTimeout sets the default connect and idle timeout for every session.
// Zero and negative durations keep the default of 5s; idle timeouts cannot
// be disabled.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithChunkSize sets the default INSTREAM chunk size (default: 64KB).
func WithChunkSize(size int) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithLogger sets the logger used for session and directory scan events.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// WithDialer sets the dialer used to reach the daemon.
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithFilesystem sets the filesystem ScanFile and ScanDirectory read from.
// The default is the host filesystem, taking absolute and working-directory
// relative paths as they are.
func WithFilesystem(fs billy.Filesystem) ClientOption {
	return func(c *Client) {
		if fs != nil {
			c.fs = fs
		}
	}
}

// ScanOption overrides client defaults for a single scan.
type ScanOption func(*scanSettings)

type scanSettings struct {
	timeout   time.Duration
	chunkSize int
}

// WithScanTimeout overrides the session timeout for one scan.
// Zero and negative durations keep the client timeout.
func WithScanTimeout(d time.Duration) ScanOption {
	return func(s *scanSettings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithScanChunkSize overrides the chunk size for one scan.
func WithScanChunkSize(size int) ScanOption {
	return func(s *scanSettings) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// DirectoryOptions configures ScanDirectory.
type DirectoryOptions struct {
	// Timeout is the per-session timeout. Zero or negative uses the client
	// timeout.
	Timeout time.Duration
	// ChunkSize is the INSTREAM chunk size. Zero uses the client default.
	ChunkSize int
	// MaxConcurrency bounds the number of sessions in flight (default: 10).
	MaxConcurrency int
	// OmitClean leaves clean outcomes out of the report. Infected and failed
	// units are always listed.
	OmitClean bool
	// StopOnError aborts the scan on the first per-unit failure instead of
	// recording it in the report.
	StopOnError bool
}

// DefaultDirectoryOptions returns the options ScanDirectory uses when the
// caller has no preference. The zero DirectoryOptions behaves the same once
// the client's timeout and chunk size are filled in.
func DefaultDirectoryOptions() DirectoryOptions {
	return DirectoryOptions{
		Timeout:        defaultTimeout,
		ChunkSize:      defaultChunkSize,
		MaxConcurrency: defaultMaxConcurrency,
	}
}

func (o DirectoryOptions) withDefaults(c *Client) DirectoryOptions {
	if o.Timeout <= 0 {
		o.Timeout = c.timeout
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = c.chunkSize
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = defaultMaxConcurrency
	}
	return o
}
