package flash

import (
	"errors"
	"fmt"
)

// ErrorKind classifies upload failures. Strategies report the lowest-level
// kind they can identify; the orchestrator adds job context but never
// reinterprets a kind.
type ErrorKind int

const (
	// ErrUnknown covers failures no more specific kind fits.
	ErrUnknown ErrorKind = iota

	// ErrArtifactInvalid means the firmware input is malformed or missing.
	// Never retried; surfaced before anything touches the device.
	ErrArtifactInvalid

	// ErrDeviceUnreachable means the transport vanished, the handshake or
	// baud negotiation failed, or a phase stalled past its timeout.
	ErrDeviceUnreachable

	// ErrVerificationMismatch means post-write verification failed. Fatal
	// and never retried automatically: silently re-flashing a device that
	// failed verification risks bricking it.
	ErrVerificationMismatch

	// ErrTransportBusy means the transport already has an active job.
	// Rejected before any strategy involvement.
	ErrTransportBusy

	// ErrTimeout means the job exceeded its wall-clock ceiling and was
	// force-cancelled.
	ErrTimeout

	// ErrToolMissing means the external flashing tool could not be located.
	ErrToolMissing
)

func (k ErrorKind) String() string {
	switch k {
	case ErrArtifactInvalid:
		return "artifact invalid"
	case ErrDeviceUnreachable:
		return "device unreachable"
	case ErrVerificationMismatch:
		return "verification mismatch"
	case ErrTransportBusy:
		return "transport busy"
	case ErrTimeout:
		return "timeout"
	case ErrToolMissing:
		return "tool missing"
	}
	return "unknown error"
}

// Error is an upload failure with its kind, the phase it happened in, and a
// human-readable detail sufficient to diagnose without reading logs.
type Error struct {
	Kind   ErrorKind
	Phase  Phase
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Phase != "" && e.Phase != PhaseIdle {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Phase, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, phase Phase, format string, args ...any) *Error {
	var wrapped error
	for _, a := range args {
		if err, ok := a.(error); ok {
			wrapped = err
		}
	}
	return &Error{
		Kind:   kind,
		Phase:  phase,
		Detail: fmt.Sprintf(format, args...),
		Err:    wrapped,
	}
}

// KindOf extracts the ErrorKind from err, or ErrUnknown if err is not an
// upload Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrUnknown
}

// PhaseOf extracts the phase a failure happened in, or "" when unknown.
func PhaseOf(err error) Phase {
	var e *Error
	if errors.As(err, &e) {
		return e.Phase
	}
	return ""
}
