// ABOUTME: Audio output driver tests
// ABOUTME: Verifies driver registry, null stream lifecycle and render adapters
package output

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miniaud/minitester/pkg/audio"
)

func TestDriversImplementDriver(t *testing.T) {
	var _ Driver = (*Malgo)(nil)
	var _ Driver = (*Oto)(nil)
	var _ Driver = (*PortAudio)(nil)
	var _ Driver = (*Null)(nil)
	var _ Stream = (*NullStream)(nil)
}

func TestNewDriverNames(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"miniaudio", DriverMiniaudio},
		{"malgo", DriverMiniaudio},
		{"OTO", DriverOto},
		{"portaudio", DriverPortAudio},
		{"null", DriverNull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv, err := New(tt.name, Options{})
			if err != nil {
				t.Fatalf("New(%q) failed: %v", tt.name, err)
			}
			if drv.Name() != tt.expected {
				t.Errorf("expected driver %q, got %q", tt.expected, drv.Name())
			}
		})
	}
}

func TestNewUnknownDriver(t *testing.T) {
	_, err := New("sdl", Options{})
	if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("expected ErrNotAvailable, got %v", err)
	}
}

func TestParseMalgoBackends(t *testing.T) {
	backends, err := ParseMalgoBackends([]string{"aaudio", " OpenSL "})
	if err != nil {
		t.Fatalf("ParseMalgoBackends failed: %v", err)
	}
	if len(backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(backends))
	}

	if backends, err := ParseMalgoBackends(nil); err != nil || backends != nil {
		t.Errorf("expected nil backends for empty list, got %v, %v", backends, err)
	}

	if _, err := ParseMalgoBackends([]string{"beos"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := New(DriverMiniaudio, Options{MiniaudioBackends: []string{"beos"}}); err == nil {
		t.Error("expected New to reject unknown miniaudio backend")
	}
}

func TestNullStreamLifecycle(t *testing.T) {
	var calls atomic.Int64
	drv := NewNull(time.Millisecond)

	stream, err := drv.Open(audio.DefaultFormat(), func(samples []int16) {
		if len(samples) != 48*2 {
			t.Errorf("expected 96 samples per period, got %d", len(samples))
		}
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ns := stream.(*NullStream)

	if ns.Running() {
		t.Fatal("stream should not render before Start")
	}

	if err := stream.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := stream.Start(); err != nil {
		t.Fatalf("second Start should be a no-op, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Fatal("render func was never called")
	}

	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	stopped := calls.Load()
	time.Sleep(10 * time.Millisecond)
	if calls.Load() != stopped {
		t.Error("render func called after Stop returned")
	}
	if ns.FramesRendered() != uint64(stopped)*48 {
		t.Errorf("expected %d frames rendered, got %d", stopped*48, ns.FramesRendered())
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	if err := stream.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestNullCloseWhileRunning(t *testing.T) {
	var calls atomic.Int64
	stream, err := NewNull(time.Millisecond).Open(audio.DefaultFormat(), func([]int16) {
		calls.Add(1)
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	stream.Start()
	time.Sleep(5 * time.Millisecond)

	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	closed := calls.Load()
	time.Sleep(10 * time.Millisecond)
	if calls.Load() != closed {
		t.Error("render func called after Close returned")
	}
}

func TestNullRejectsBadFormat(t *testing.T) {
	if _, err := NewNull(0).Open(audio.Format{}, func([]int16) {}); !errors.Is(err, audio.ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestRenderReader(t *testing.T) {
	format := audio.DefaultFormat()
	r := newRenderReader(format, func(samples []int16) {
		for i := range samples {
			samples[i] = int16(i + 1)
		}
	})

	p := make([]byte, 10) // two whole frames plus a partial one
	n, err := r.Read(p)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 8 {
		t.Fatalf("expected 8 bytes (2 frames), got %d", n)
	}
	if p[0] != 1 || p[2] != 2 || p[4] != 3 || p[6] != 4 {
		t.Errorf("unexpected encoded samples %v", p[:n])
	}

	if n, _ := r.Read(make([]byte, 3)); n != 0 {
		t.Errorf("expected 0 bytes for a sub-frame buffer, got %d", n)
	}
}
