package capture

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a capture session.
type State int

const (
	// StateIdle means no session is active.
	StateIdle State = iota
	// StateAcquiringDevice means the camera is being opened.
	StateAcquiringDevice
	// StateSettling means the stream is live and the settle timer is running.
	StateSettling
	// StateCaptured means a frame was grabbed and published.
	StateCaptured
	// StateCleaning means camera resources are being released.
	StateCleaning
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateAcquiringDevice: "acquiring_device",
	StateSettling:        "settling",
	StateCaptured:        "captured",
	StateCleaning:        "cleaning",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("capture: unknown state %q", b)
}

// Active reports whether a session holds the camera in this state.
func (s State) Active() bool {
	return s != StateIdle
}

// Event reports a state transition.
type Event struct {
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Previous  State     `json:"previous"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// OverlayEvent reports a rendered confirmation overlay.
type OverlayEvent struct {
	SessionID    string  `json:"session_id"`
	DominantPart string  `json:"dominant_part"`
	Coverage     float64 `json:"coverage"`
}
