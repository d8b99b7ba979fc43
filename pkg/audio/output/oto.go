// ABOUTME: Oto-based audio output driver
// ABOUTME: Shares the process-wide oto context and opens one player per stream
package output

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/miniaud/minitester/pkg/audio"
	"go.uber.org/zap"
)

// oto allows a single context per process
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

// sharedOtoContext returns the process context, creating it on first use
func sharedOtoContext(format audio.Format) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoFormat != format {
			return nil, fmt.Errorf("%w: oto context is %s, requested %s", ErrFormatMismatch, otoFormat, format)
		}
		return otoCtx, nil
	}

	ctx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	otoCtx = ctx
	otoFormat = format
	return ctx, nil
}

// Oto opens playback streams on the oto context
type Oto struct {
	log *zap.SugaredLogger
}

// NewOto creates an oto driver
func NewOto(logger *zap.SugaredLogger) *Oto {
	return &Oto{log: logger.Named("output.oto")}
}

func (o *Oto) Name() string { return DriverOto }

func (o *Oto) Open(format audio.Format, render RenderFunc) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	ctx, err := sharedOtoContext(format)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("oto context failed: %w", err)
	}

	player := ctx.NewPlayer(newRenderReader(format, render))

	o.log.Infow("Playback player created", "format", format.String())
	return &otoStream{player: player, log: o.log}, nil
}

type otoStream struct {
	player *oto.Player
	log    *zap.SugaredLogger
	mu     sync.Mutex
	closed bool
}

func (s *otoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.player.Play()
	if err := s.player.Err(); err != nil {
		return fmt.Errorf("oto player failed: %w", err)
	}
	return nil
}

func (s *otoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.player.Pause()
	return nil
}

func (s *otoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.player.Pause()
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	s.log.Infow("Playback player closed")
	return nil
}

// renderReader adapts a RenderFunc to the io.Reader oto pulls from
type renderReader struct {
	render     RenderFunc
	channels   int
	frameBytes int
	samples    []int16
}

func newRenderReader(format audio.Format, render RenderFunc) *renderReader {
	return &renderReader{
		render:     render,
		channels:   format.Channels,
		frameBytes: format.FrameBytes(),
	}
}

func (r *renderReader) Read(p []byte) (int, error) {
	frames := len(p) / r.frameBytes
	if frames == 0 {
		return 0, nil
	}

	n := frames * r.channels
	if cap(r.samples) < n {
		r.samples = make([]int16, n)
	}
	samples := r.samples[:n]

	r.render(samples)
	return audio.PutInt16LE(p, samples), nil
}
