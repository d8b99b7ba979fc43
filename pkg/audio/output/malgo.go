// ABOUTME: Malgo-based audio output driver
// ABOUTME: Opens miniaudio playback devices via malgo with a selectable native backend list
package output

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/miniaud/minitester/pkg/audio"
	"go.uber.org/zap"
)

var malgoBackends = map[string]malgo.Backend{
	"wasapi":     malgo.BackendWasapi,
	"dsound":     malgo.BackendDsound,
	"winmm":      malgo.BackendWinmm,
	"coreaudio":  malgo.BackendCoreaudio,
	"sndio":      malgo.BackendSndio,
	"audio4":     malgo.BackendAudio4,
	"oss":        malgo.BackendOss,
	"pulseaudio": malgo.BackendPulseaudio,
	"alsa":       malgo.BackendAlsa,
	"jack":       malgo.BackendJack,
	"aaudio":     malgo.BackendAaudio,
	"opensl":     malgo.BackendOpensl,
	"webaudio":   malgo.BackendWebaudio,
	"null":       malgo.BackendNull,
}

// ParseMalgoBackends maps backend names to malgo backends
func ParseMalgoBackends(names []string) ([]malgo.Backend, error) {
	if len(names) == 0 {
		return nil, nil
	}

	backends := make([]malgo.Backend, 0, len(names))
	for _, name := range names {
		b, ok := malgoBackends[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown miniaudio backend %q", name)
		}
		backends = append(backends, b)
	}
	return backends, nil
}

// Malgo opens playback devices through miniaudio
type Malgo struct {
	backends []malgo.Backend
	names    []string
	log      *zap.SugaredLogger
}

// NewMalgo creates a miniaudio driver restricted to the named native backends
func NewMalgo(backendNames []string, logger *zap.SugaredLogger) (*Malgo, error) {
	backends, err := ParseMalgoBackends(backendNames)
	if err != nil {
		return nil, err
	}

	return &Malgo{
		backends: backends,
		names:    backendNames,
		log:      logger.Named("output.malgo"),
	}, nil
}

func (m *Malgo) Name() string { return DriverMiniaudio }

// Open initializes a context and a playback device. Nothing is left
// allocated when it returns an error.
func (m *Malgo) Open(format audio.Format, render RenderFunc) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext(m.backends, malgo.ContextConfig{}, func(message string) {
		m.log.Debug(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context (backends %v): %w", m.names, err)
	}

	s := &malgoStream{
		ctx:    ctx,
		format: format,
		render: render,
		log:    m.log,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.dataCallback,
	})
	if err != nil {
		if uninitErr := ctx.Uninit(); uninitErr != nil {
			m.log.Warnw("malgo context uninit failed during rollback", "error", uninitErr)
		}
		ctx.Free()
		return nil, fmt.Errorf("malgo playback device: %w", err)
	}
	s.device = device

	m.log.Infow("Playback device initialized", "format", format.String())
	return s, nil
}

type malgoStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	format audio.Format
	render RenderFunc
	log    *zap.SugaredLogger

	// Only touched by the device thread
	scratch []int16

	mu     sync.Mutex
	closed bool
}

// dataCallback is called by miniaudio to fill the output buffer
func (s *malgoStream) dataCallback(pOutput, pInput []byte, frameCount uint32) {
	n := int(frameCount) * s.format.Channels
	if cap(s.scratch) < n {
		s.scratch = make([]int16, n)
	}
	samples := s.scratch[:n]

	s.render(samples)
	audio.PutInt16LE(pOutput, samples)
}

func (s *malgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("malgo device start: %w", err)
	}
	return nil
}

func (s *malgoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("malgo device stop: %w", err)
	}
	return nil
}

// Close uninitializes the device, which waits for the data callback,
// then tears down the context.
func (s *malgoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.device.Uninit()

	var err error
	if uninitErr := s.ctx.Uninit(); uninitErr != nil {
		err = fmt.Errorf("failed to uninitialize malgo context: %w", uninitErr)
	}
	s.ctx.Free()

	s.log.Infow("Playback device closed", "format", s.format.String())
	return err
}
