// ABOUTME: Audio output driver interfaces
// ABOUTME: Common interface for playback device backends and the driver registry
package output

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miniaud/minitester/pkg/audio"
	"go.uber.org/zap"
)

// Driver names
const (
	DriverMiniaudio = "miniaudio"
	DriverOto       = "oto"
	DriverPortAudio = "portaudio"
	DriverNull      = "null"
)

var (
	// ErrNotAvailable is returned when a driver is not compiled in or has no device
	ErrNotAvailable = errors.New("audio driver not available")

	// ErrFormatMismatch is returned when a shared device cannot serve the requested format
	ErrFormatMismatch = errors.New("audio format does not match active device")

	// ErrClosed is returned by operations on a closed stream
	ErrClosed = errors.New("audio stream is closed")
)

// RenderFunc fills an interleaved int16 buffer. It runs on the driver's
// render thread and must not block.
type RenderFunc func(samples []int16)

// Stream is one open playback device binding
type Stream interface {
	// Start begins (or resumes) pulling from the render func
	Start() error

	// Stop halts playback but keeps the device open
	Stop() error

	// Close releases the device. No render call is in flight once it returns.
	Close() error
}

// Driver opens playback streams on one audio backend
type Driver interface {
	Name() string
	Open(format audio.Format, render RenderFunc) (Stream, error)
}

// Options configures driver construction
type Options struct {
	// MiniaudioBackends restricts the native backends miniaudio may use
	// (e.g. "aaudio", "opensl", "pulseaudio"). Empty means platform default order.
	MiniaudioBackends []string

	// NullPeriod is the render period of the null driver
	NullPeriod time.Duration

	Logger *zap.SugaredLogger
}

// New creates the named driver
func New(name string, opts Options) (Driver, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	switch strings.ToLower(name) {
	case DriverMiniaudio, "malgo":
		return NewMalgo(opts.MiniaudioBackends, opts.Logger)
	case DriverOto:
		return NewOto(opts.Logger), nil
	case DriverPortAudio:
		return NewPortAudio(opts.Logger), nil
	case DriverNull:
		return NewNull(opts.NullPeriod), nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrNotAvailable, name)
	}
}
