// ABOUTME: Tests for backends, states and session errors
// ABOUTME: Covers parsing and text and JSON encoding
package session

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestBackendBoundaryValues(t *testing.T) {
	if BackendAuto != 0 || BackendA != 1 || BackendB != 2 {
		t.Errorf("boundary values changed: %d %d %d", BackendAuto, BackendA, BackendB)
	}
	if Backend(3).Valid() || Backend(-1).Valid() {
		t.Error("out of range backend reported valid")
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendAuto, false},
		{"auto", BackendAuto, false},
		{"Miniaudio", BackendMiniaudio, false},
		{"malgo", BackendMiniaudio, false},
		{"a", BackendMiniaudio, false},
		{" oto ", BackendOto, false},
		{"B", BackendOto, false},
		{"2", BackendOto, false},
		{"0", BackendAuto, false},
		{"3", BackendAuto, true},
		{"alsa", BackendAuto, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBackend(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseBackend(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestErrorMessageAndKind(t *testing.T) {
	err := &Error{Kind: KindInvalidOperation, Op: "pause", Err: ErrNoDevice}

	if got, want := err.Error(), "pause: trying to pause audio, but there is no device"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !errors.Is(err, ErrNoDevice) {
		t.Error("Error does not unwrap to its cause")
	}
	if !IsKind(err, KindInvalidOperation) || IsKind(err, KindDeviceOpen) {
		t.Error("IsKind mismatch")
	}
	if IsKind(ErrNoDevice, KindInvalidOperation) {
		t.Error("plain error reported a kind")
	}
	if KindDeviceOpen.String() != "device_open" {
		t.Errorf("unexpected kind name %q", KindDeviceOpen)
	}
}

func TestBackendJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{`1`, BackendMiniaudio, false},
		{`7`, Backend(7), false},
		{`"oto"`, BackendOto, false},
		{`"auto"`, BackendAuto, false},
		{`"jack"`, BackendAuto, true},
		{`true`, BackendAuto, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got Backend
			err := json.Unmarshal([]byte(tt.in), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unmarshal %s error = %v", tt.in, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("unmarshal %s = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	data, err := json.Marshal(BackendOto)
	if err != nil || string(data) != `"oto"` {
		t.Errorf("marshal = %s, %v", data, err)
	}
}

func TestStateText(t *testing.T) {
	for _, want := range []State{StateUninitialized, StatePlaying, StatePaused, StateErrored} {
		data, err := json.Marshal(want)
		if err != nil {
			t.Fatal(err)
		}
		var got State
		if err := json.Unmarshal(data, &got); err != nil || got != want {
			t.Errorf("round trip %v: got %v, %v", want, got, err)
		}
	}

	var s State
	if err := s.UnmarshalText([]byte("exploded")); err == nil {
		t.Error("expected an error for an unknown state")
	}
}
