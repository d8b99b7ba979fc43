//go:build !portaudio

// ABOUTME: Tests for the PortAudio stub
// ABOUTME: Verifies the driver reports unavailable without the portaudio build tag
package output

import (
	"errors"
	"testing"

	"github.com/miniaud/minitester/pkg/audio"
)

func TestPortAudioStubUnavailable(t *testing.T) {
	_, err := NewPortAudio(nil).Open(audio.DefaultFormat(), func([]int16) {})
	if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("expected ErrNotAvailable, got %v", err)
	}
}
