//go:build portaudio

// ABOUTME: PortAudio output driver
// ABOUTME: Cross-platform playback through the PortAudio default output device
package output

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/miniaud/minitester/pkg/audio"
	"go.uber.org/zap"
)

// PortAudio opens streams on the default PortAudio output device
type PortAudio struct {
	log *zap.SugaredLogger
}

// NewPortAudio creates a PortAudio driver
func NewPortAudio(logger *zap.SugaredLogger) Driver {
	return &PortAudio{log: logger.Named("output.portaudio")}
}

func (p *PortAudio) Name() string { return DriverPortAudio }

// Open initializes PortAudio and opens the default stream. Initialize and
// Terminate nest, so every stream holds its own reference.
func (p *PortAudio) Open(format audio.Format, render RenderFunc) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), 0, func(out []int16) {
		render(out)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	p.log.Infow("Playback stream opened", "format", format.String())
	return &portAudioStream{stream: stream}, nil
}

type portAudioStream struct {
	stream *portaudio.Stream
	mu     sync.Mutex
	closed bool
}

func (s *portAudioStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.stream.Start()
}

func (s *portAudioStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.stream.Stop()
}

func (s *portAudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	closeErr := s.stream.Close()
	if err := portaudio.Terminate(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}
