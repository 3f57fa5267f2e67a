package capture

import (
	"context"
	"os/exec"
	"strconv"
	"time"

	"github.com/phenobot/carousel/errors"
	"github.com/phenobot/carousel/logger"
)

// Camera produces one frame at a time.
type Camera interface {
	// Configure applies the capture resolution. Called once at startup and
	// again whenever settings change.
	Configure(width, height int) error
	// Capture writes one frame to path.
	Capture(ctx context.Context, path string) error
}

// captureTimeout bounds a single still invocation; the camera stack on the
// device occasionally wedges.
const captureTimeout = 30 * time.Second

// StillCamera shells out to a still-capture binary (libcamera-still on
// current images, raspistill on older ones).
type StillCamera struct {
	binary string
	width  int
	height int
}

// NewStillCamera returns a camera using the given binary.
func NewStillCamera(binary string) *StillCamera {
	return &StillCamera{binary: binary}
}

// Configure stores the resolution used by subsequent captures.
func (c *StillCamera) Configure(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Newf("invalid capture resolution %dx%d", width, height)
	}
	c.width = width
	c.height = height
	return nil
}

// Capture runs the still binary and waits for the frame file.
func (c *StillCamera) Capture(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	args := []string{"-o", path, "-n"}
	if c.width > 0 && c.height > 0 {
		args = append(args,
			"--width", strconv.Itoa(c.width),
			"--height", strconv.Itoa(c.height))
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		logger.ComponentLogger("capture.camera").Errorw("Still capture failed",
			logger.FieldError, err, "output", string(out))
		return errors.Wrapf(err, "capture with %s failed", c.binary)
	}
	return nil
}
