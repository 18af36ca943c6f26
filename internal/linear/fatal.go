package linear

import (
	"os"

	"github.com/samcharles93/matfwd/internal/device"
	"github.com/samcharles93/matfwd/internal/logger"
)

var exit = os.Exit

// Fatal logs err and terminates the process with status 1 when err is
// non-nil. It restores the fail-fast policy for callers that have no use for
// a failed forward.
func Fatal(log logger.Logger, err error) {
	if err == nil {
		return
	}
	if log == nil {
		log = logger.Default()
	}
	log.Error("device forward failed", "kind", KindOf(err).String(), "error", err)
	exit(1)
}

// MustForwardDevice is ForwardDevice with the fail-fast policy applied.
func MustForwardDevice(log logger.Logger, s *device.Session, out, inp, weight []float32, B, T, C, OC int) {
	Fatal(log, ForwardDevice(s, out, inp, weight, B, T, C, OC))
}
