// ABOUTME: Test signal sources rendered into playback devices
// ABOUTME: Provides the Source interface and the config-driven constructor
package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miniaud/minitester/pkg/audio"
)

// Source kinds
const (
	KindWaveform = "waveform"
	KindMP3      = "mp3"
	KindFLAC     = "flac"
)

var (
	// ErrUnknownKind is returned for an unsupported Config.Kind
	ErrUnknownKind = errors.New("unknown source kind")

	// ErrNoPath is returned when a file source has no path configured
	ErrNoPath = errors.New("source path is required")
)

// Source renders interleaved int16 samples on demand.
//
// Read is called from a device render thread. It must fill the whole
// buffer; on failure it writes silence and returns the error.
type Source interface {
	Format() audio.Format
	Read(samples []int16) error
	Close() error
}

// Config selects and parameterizes a Source
type Config struct {
	Kind      string  `mapstructure:"kind"`
	Waveform  string  `mapstructure:"waveform"`
	Frequency float64 `mapstructure:"frequency"`
	Amplitude float64 `mapstructure:"amplitude"`
	Path      string  `mapstructure:"path"`
}

// DefaultConfig is the 400Hz sine at 0.2 amplitude the tester plays
func DefaultConfig() Config {
	return Config{
		Kind:      KindWaveform,
		Waveform:  WaveSine,
		Frequency: 400,
		Amplitude: 0.2,
	}
}

// New opens the configured source. Generated sources use format; file
// sources report the format of the file instead.
func New(cfg Config, format audio.Format) (Source, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", KindWaveform:
		return NewWaveform(WaveformConfig{
			Type:      cfg.Waveform,
			Frequency: cfg.Frequency,
			Amplitude: cfg.Amplitude,
			Format:    format,
		})
	case KindMP3:
		if cfg.Path == "" {
			return nil, fmt.Errorf("mp3: %w", ErrNoPath)
		}
		return NewMP3(cfg.Path)
	case KindFLAC:
		if cfg.Path == "" {
			return nil, fmt.Errorf("flac: %w", ErrNoPath)
		}
		return NewFLAC(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

func silence(samples []int16) {
	for i := range samples {
		samples[i] = 0
	}
}
