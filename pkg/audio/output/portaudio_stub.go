//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"

	"github.com/miniaud/minitester/pkg/audio"
	"go.uber.org/zap"
)

// PortAudio output driver (stub)
type PortAudio struct{}

// NewPortAudio creates a PortAudio driver
func NewPortAudio(logger *zap.SugaredLogger) Driver {
	return &PortAudio{}
}

func (p *PortAudio) Name() string { return DriverPortAudio }

// Open always fails without the portaudio build tag
func (p *PortAudio) Open(format audio.Format, render RenderFunc) (Stream, error) {
	return nil, fmt.Errorf("%w: PortAudio support not enabled (build with -tags portaudio)", ErrNotAvailable)
}
