package clamd

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ScanDirectory scans root and, when it is a directory, every regular file
// below it. Symlinks are never followed. At most opts.MaxConcurrency sessions
// run at the same time.
//
// By default every per-file and per-directory failure is folded into the
// report and the scan always returns a report. With opts.StopOnError the
// first failure cancels the sessions still in flight and is returned.
func (c *Client) ScanDirectory(ctx context.Context, root string, opts DirectoryOptions) (*ScanReport, error) {
	opts = opts.withDefaults(c)
	root = filepath.Clean(root)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := uuid.NewString()
	s := &dirScan{
		client:  c,
		cancel:  cancel,
		fs:      c.fs,
		opts:    opts,
		log:     c.log.With().Str("scan_id", id).Str("root", root).Logger(),
		results: make(chan fileResult, opts.MaxConcurrency),
		report: &ScanReport{
			ID:        id,
			Root:      root,
			StartedAt: time.Now(),
			Outcomes:  []ScanOutcome{},
		},
	}
	return s.run(ctx, root)
}

// dirScan holds the state of one ScanDirectory call. Queues and counters are
// only touched by the goroutine running run; sessions report back through
// results.
type dirScan struct {
	client *Client
	cancel context.CancelFunc
	fs     fileSource
	opts   DirectoryOptions
	log    zerolog.Logger
	report *ScanReport

	dirs     []string
	files    []string
	inFlight int
	results  chan fileResult
}

type fileResult struct {
	path  string
	reply string
	err   error
}

func (s *dirScan) run(ctx context.Context, root string) (*ScanReport, error) {
	s.log.Info().
		Int("max_concurrency", s.opts.MaxConcurrency).
		Bool("stop_on_error", s.opts.StopOnError).
		Msg("directory scan started")

	if err := s.discover(root); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, s.abort(NewTransportError("directory scan canceled", err))
		}
		if err := s.dispatch(ctx); err != nil {
			return nil, s.abort(err)
		}
		// dispatch only leaves capacity unused once both queues are empty
		if s.inFlight == 0 {
			return s.finish(), nil
		}

		select {
		case res := <-s.results:
			if err := s.complete(res); err != nil {
				return nil, s.abort(err)
			}
		case <-ctx.Done():
			return nil, s.abort(NewTransportError("directory scan canceled", ctx.Err()))
		}
	}
}

// discover queues the scan root.
func (s *dirScan) discover(root string) error {
	info, err := s.fs.Lstat(root)
	if err != nil {
		return s.fail(root, NewFileSystemError("failed to stat scan root", root, err))
	}

	switch mode := info.Mode(); {
	case mode.IsDir():
		s.dirs = append(s.dirs, root)
	case mode.IsRegular():
		s.files = append(s.files, root)
	default:
		return s.fail(root, NewInvalidTargetError(root))
	}
	return nil
}

// dispatch launches queued files while there is capacity, and expands the
// next queued directory only when no file is waiting.
func (s *dirScan) dispatch(ctx context.Context) error {
	for s.inFlight < s.opts.MaxConcurrency {
		if len(s.files) > 0 {
			path := s.files[0]
			s.files = s.files[1:]
			s.launch(ctx, path)
			continue
		}
		if len(s.dirs) > 0 {
			dir := s.dirs[0]
			s.dirs = s.dirs[1:]
			if err := s.expand(dir); err != nil {
				return err
			}
			continue
		}
		return nil
	}
	return nil
}

// expand lists dir and queues its sub-directories and regular files.
func (s *dirScan) expand(dir string) error {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return s.fail(dir, NewFileSystemError("failed to read directory", dir, err))
	}

	for _, entry := range entries {
		path := s.fs.Join(dir, entry.Name())
		info, err := s.fs.Lstat(path)
		if err != nil {
			if err := s.fail(path, NewFileSystemError("failed to stat entry", path, err)); err != nil {
				return err
			}
			continue
		}

		switch mode := info.Mode(); {
		case mode.IsDir():
			s.dirs = append(s.dirs, path)
		case mode.IsRegular():
			s.files = append(s.files, path)
		default:
			s.log.Trace().Str("path", path).Stringer("mode", mode).Msg("skipping entry")
		}
	}
	return nil
}

func (s *dirScan) launch(ctx context.Context, path string) {
	s.inFlight++
	settings := scanSettings{timeout: s.opts.Timeout, chunkSize: s.opts.ChunkSize}
	go func() {
		reply, err := s.client.scanPath(ctx, path, settings)
		s.results <- fileResult{path: path, reply: reply, err: err}
	}()
}

// complete accounts for one finished file session.
func (s *dirScan) complete(res fileResult) error {
	s.inFlight--
	s.report.FilesScanned++

	if res.err != nil {
		s.log.Warn().Err(res.err).Str("path", res.path).Msg("file scan failed")
		if s.opts.StopOnError {
			return res.err
		}
		s.record(ScanOutcome{Path: res.path, Error: res.err.Error(), Err: res.err})
		return nil
	}

	s.record(ScanOutcome{Path: res.path, Reply: res.reply})
	return nil
}

// fail records a traversal failure, or returns it when the scan must abort.
func (s *dirScan) fail(path string, err error) error {
	s.log.Warn().Err(err).Str("path", path).Msg("traversal failed")
	if s.opts.StopOnError {
		return err
	}
	s.record(ScanOutcome{Path: path, Error: err.Error(), Err: err})
	return nil
}

func (s *dirScan) record(o ScanOutcome) {
	switch {
	case o.Failed():
		s.report.Errors++
	case o.Infected():
		s.report.Infected++
	}
	if !s.opts.OmitClean || o.Failed() || o.Infected() {
		s.report.Outcomes = append(s.report.Outcomes, o)
	}
}

// abort cancels in-flight sessions, waits for them to report and returns err.
func (s *dirScan) abort(err error) error {
	s.log.Error().Err(err).Int("in_flight", s.inFlight).Msg("directory scan aborted")
	s.cancel()
	for s.inFlight > 0 {
		<-s.results
		s.inFlight--
	}
	return err
}

func (s *dirScan) finish() *ScanReport {
	s.report.Duration = time.Since(s.report.StartedAt)
	s.log.Info().
		Int("scanned_files", s.report.FilesScanned).
		Int("infected", s.report.Infected).
		Int("errors", s.report.Errors).
		Dur("duration", s.report.Duration).
		Msg("directory scan finished")
	return s.report
}
