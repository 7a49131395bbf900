package metrics

import (
	"errors"
	"fmt"
	"time"

	"firestige.xyz/busctl/internal/core"
)

// ObserveSession records the outcome and duration of one session.
func ObserveSession(kind string, start time.Time, err error) {
	SessionDurationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	SessionsTotal.WithLabelValues(kind, Result(err)).Inc()
	ObserveDecodeError(err)
}

// ObserveDecodeError counts err under its decode stage. Errors that are
// not decode errors are ignored; joined errors count once per stage hit.
func ObserveDecodeError(err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			ObserveDecodeError(e)
		}
		return
	}
	if stage, ok := core.StageOf(err); ok {
		DecodeErrorsTotal.WithLabelValues(string(stage)).Inc()
	}
}

// Result maps a session error to its label value.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, core.ErrTimeout):
		return ResultTimeout
	default:
		return ResultError
	}
}

// CommandLabel formats a protocol command byte as a label value.
func CommandLabel(cmd uint8) string {
	return fmt.Sprintf("0x%02X", cmd)
}
