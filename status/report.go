// Package status carries operator-facing outcome reports.
//
// Every command outcome, success or failure, produces exactly one Report.
// Reports flow through callbacks to whatever surface is listening (log,
// websocket clients); nothing is ever silently dropped.
package status

// KeepUntilReplaced marks a report that stays on screen until the next one.
const KeepUntilReplaced = -1

// Severity is the display level of a report.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Report is one human-readable status message.
type Report struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	// WipeAfter is a display hint: wipe the message after this many
	// seconds, or keep it until replaced when negative.
	WipeAfter int `json:"wipe_after"`
	// UpdateImage tells display surfaces to refresh the captured-image
	// view; set after a frame was taken.
	UpdateImage bool `json:"update_image,omitempty"`
}

// Callback delivers one report. Callbacks must be cheap and non-blocking;
// they run on the dispatcher's completion path.
type Callback func(Report)

// Info builds an informational report.
func Info(msg string, wipeAfter int) Report {
	return Report{Message: msg, Severity: SeverityInfo, WipeAfter: wipeAfter}
}

// Warning builds a warning report.
func Warning(msg string, wipeAfter int) Report {
	return Report{Message: msg, Severity: SeverityWarning, WipeAfter: wipeAfter}
}

// Error builds an error report.
func Error(msg string, wipeAfter int) Report {
	return Report{Message: msg, Severity: SeverityError, WipeAfter: wipeAfter}
}
