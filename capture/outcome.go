// Package capture owns the camera: deciding whether a tray position gets a
// frame, taking it and filing it for relocation or local keeping.
package capture

import (
	"fmt"
	"time"

	"github.com/phenobot/carousel/plant"
)

// Outcome classifies a tray position for capture purposes.
type Outcome string

const (
	// OutcomeNoTray means the position is unknown, no tray faces the camera.
	OutcomeNoTray Outcome = "no_tray"
	// OutcomeEmpty means the tray has no plant registered.
	OutcomeEmpty Outcome = "empty"
	// OutcomeAllowed means the registered plant takes part in image capture.
	OutcomeAllowed Outcome = "allowed"
	// OutcomeDisabled means the plant is registered but excluded from capture.
	OutcomeDisabled Outcome = "disabled"
)

// Classify resolves the capture outcome for a tray against the plant
// registry. The returned plant is only meaningful for allowed and disabled.
func Classify(tray int, reg *plant.Registry) (Outcome, plant.Plant) {
	if tray < 1 {
		return OutcomeNoTray, plant.Plant{}
	}
	p, ok := reg.ByPosition(tray)
	if !ok {
		return OutcomeEmpty, plant.Plant{}
	}
	if p.AllowCapture {
		return OutcomeAllowed, p
	}
	return OutcomeDisabled, p
}

// fileTimeLayout is the timestamp embedded in capture file names.
const fileTimeLayout = "20060102_150405"

// FileName builds the capture file name. Registered plants encode their
// identity; frames of empty or unknown positions share a placeholder name.
func FileName(outcome Outcome, p plant.Plant, at time.Time) string {
	ts := at.Format(fileTimeLayout)
	if outcome == OutcomeAllowed || outcome == OutcomeDisabled {
		return fmt.Sprintf("rr#%s#%s#%d#%s.png", p.Experiment, p.Name, p.Position, ts)
	}
	return fmt.Sprintf("rr#noexp_empty#0#%s.png", ts)
}
