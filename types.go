package clamd

import (
	"strings"
	"time"
)

// IsCleanReply reports whether a daemon reply means the scanned data is clean:
// the reply contains "OK" and does not contain "FOUND".
func IsCleanReply(reply string) bool {
	return strings.Contains(reply, "OK") && !strings.Contains(reply, "FOUND")
}

// ScanOutcome is the result of one unit of a directory scan.
// Exactly one of Reply or Err is meaningful.
type ScanOutcome struct {
	// Path is the file or directory the outcome belongs to.
	Path string `json:"file"`
	// Reply is the daemon reply text, empty when the unit failed.
	Reply string `json:"reply,omitempty"`
	// Error is the failure message, empty on success.
	Error string `json:"error,omitempty"`
	// Err is the failure itself, nil on success.
	Err error `json:"-"`
}

// Failed returns true if the unit could not be scanned.
func (o ScanOutcome) Failed() bool {
	return o.Err != nil
}

// Infected returns true if the unit was scanned and the reply is not clean.
func (o ScanOutcome) Infected() bool {
	return o.Err == nil && !IsCleanReply(o.Reply)
}

// ScanReport summarizes a directory scan.
type ScanReport struct {
	// ID identifies the scan in logs and published reports.
	ID string `json:"id"`
	// Root is the path the scan started from.
	Root string `json:"root"`
	// StartedAt is when the scan started.
	StartedAt time.Time `json:"started_at"`
	// Duration is the wall time of the whole scan.
	Duration time.Duration `json:"duration"`
	// FilesScanned counts every file unit that completed, failed or not.
	FilesScanned int `json:"scanned_files"`
	// Infected counts files whose reply is not clean.
	Infected int `json:"infected"`
	// Errors counts failed units, directories included.
	Errors int `json:"errors"`
	// Outcomes lists every unit unless the scan ran with OmitClean, in which
	// case only infected and failed ones.
	Outcomes []ScanOutcome `json:"results"`
}

// Clean returns true if nothing was infected and nothing failed.
func (r *ScanReport) Clean() bool {
	return r.Infected == 0 && r.Errors == 0
}
