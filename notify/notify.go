// Package notify publishes finished directory scan reports to message
// brokers so other services can react to infected files.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	clamd "github.com/DevHatRo/clamd-sdk-go"
)

// Sink receives encoded reports.
type Sink interface {
	// Name identifies the sink in errors and logs.
	Name() string
	// Send delivers one encoded report.
	Send(ctx context.Context, payload []byte) error
}

// Message is the payload published for a report.
type Message struct {
	*clamd.ScanReport
	// AllClean is true when nothing was infected and nothing failed.
	AllClean bool `json:"clean"`
}

// Encode marshals report into the published JSON form.
func Encode(report *clamd.ScanReport) ([]byte, error) {
	if report == nil {
		return nil, errors.New("notify: nil report")
	}
	return json.Marshal(Message{ScanReport: report, AllClean: report.Clean()})
}

// Publish encodes report once and sends it to every sink. All sinks are
// tried; the returned error joins every failure.
func Publish(ctx context.Context, log zerolog.Logger, report *clamd.ScanReport, sinks ...Sink) error {
	payload, err := Encode(report)
	if err != nil {
		return err
	}

	var errs []error
	for _, s := range sinks {
		if err := s.Send(ctx, payload); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Str("scan_id", report.ID).Msg("publish failed")
			errs = append(errs, fmt.Errorf("notify: %s: %w", s.Name(), err))
			continue
		}
		log.Debug().Str("sink", s.Name()).Str("scan_id", report.ID).Int("bytes", len(payload)).Msg("report published")
	}
	return errors.Join(errs...)
}
