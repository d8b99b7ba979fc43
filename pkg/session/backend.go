// ABOUTME: Backend and state enumerations for audio sessions
// ABOUTME: Defines the closed backend set and the device state machine states
package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Backend selects the device backend a session binds to. The numeric values
// are part of the host boundary and must not change.
type Backend int

const (
	BackendAuto      Backend = 0
	BackendMiniaudio Backend = 1
	BackendOto       Backend = 2
)

// Positional aliases used by hosts that only know the closed set
const (
	BackendA = BackendMiniaudio
	BackendB = BackendOto
)

// Backends lists every valid backend in boundary order
var Backends = []Backend{BackendAuto, BackendMiniaudio, BackendOto}

// Valid reports whether b is in the closed backend set
func (b Backend) Valid() bool {
	return b >= BackendAuto && b <= BackendOto
}

func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendMiniaudio:
		return "miniaudio"
	case BackendOto:
		return "oto"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// ParseBackend accepts a name, a positional letter or the boundary number
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return BackendAuto, nil
	case "miniaudio", "malgo", "a":
		return BackendMiniaudio, nil
	case "oto", "b":
		return BackendOto, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil || !Backend(n).Valid() {
		return BackendAuto, fmt.Errorf("unknown backend %q (use auto, miniaudio, oto or 0-2)", s)
	}
	return Backend(n), nil
}

func (b Backend) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalJSON accepts a backend name or its boundary number. Numbers
// outside the closed set are kept; Play treats them as auto.
func (b *Backend) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*b = Backend(n)
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("backend must be a name or a number: %s", data)
	}
	parsed, err := ParseBackend(name)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// State is the device lifecycle state of a session
type State int

const (
	StateUninitialized State = iota
	StatePlaying
	StatePaused
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateUninitialized, StatePlaying, StatePaused, StateErrored} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}
