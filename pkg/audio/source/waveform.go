// ABOUTME: Periodic waveform generator
// ABOUTME: Generates sine, square, triangle and sawtooth test signals
package source

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/miniaud/minitester/pkg/audio"
)

// Waveform types
const (
	WaveSine     = "sine"
	WaveSquare   = "square"
	WaveTriangle = "triangle"
	WaveSawtooth = "sawtooth"
)

// WaveformConfig configures a Waveform
type WaveformConfig struct {
	Type      string
	Frequency float64
	Amplitude float64
	Format    audio.Format
}

// Waveform generates a periodic signal, duplicated to every channel
type Waveform struct {
	waveType  string
	frequency float64
	amplitude float64
	format    audio.Format

	frameIndex uint64
	mu         sync.Mutex
}

// NewWaveform creates a waveform generator
func NewWaveform(cfg WaveformConfig) (*Waveform, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}

	waveType := strings.ToLower(cfg.Type)
	if waveType == "" {
		waveType = WaveSine
	}
	switch waveType {
	case WaveSine, WaveSquare, WaveTriangle, WaveSawtooth:
	default:
		return nil, fmt.Errorf("unsupported waveform type %q", cfg.Type)
	}

	if cfg.Frequency <= 0 || cfg.Frequency >= float64(cfg.Format.SampleRate)/2 {
		return nil, fmt.Errorf("waveform frequency %.1fHz out of range for %dHz", cfg.Frequency, cfg.Format.SampleRate)
	}
	if cfg.Amplitude < 0 || cfg.Amplitude > 1 {
		return nil, fmt.Errorf("waveform amplitude %.2f out of range [0, 1]", cfg.Amplitude)
	}

	return &Waveform{
		waveType:  waveType,
		frequency: cfg.Frequency,
		amplitude: cfg.Amplitude,
		format:    cfg.Format,
	}, nil
}

func (w *Waveform) Format() audio.Format { return w.format }

func (w *Waveform) Read(samples []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	channels := w.format.Channels
	numFrames := len(samples) / channels

	for i := 0; i < numFrames; i++ {
		t := float64(w.frameIndex+uint64(i)) / float64(w.format.SampleRate)
		pcmValue := audio.FloatToInt16(w.amplitude * w.value(t))

		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = pcmValue
		}
	}

	// Trailing partial frame
	silence(samples[numFrames*channels:])

	w.frameIndex += uint64(numFrames)
	return nil
}

// value returns the unscaled waveform value in [-1, 1] at time t
func (w *Waveform) value(t float64) float64 {
	phase := w.frequency * t
	switch w.waveType {
	case WaveSquare:
		if phase-math.Floor(phase) < 0.5 {
			return 1
		}
		return -1
	case WaveTriangle:
		return 2 / math.Pi * math.Asin(math.Sin(2*math.Pi*phase))
	case WaveSawtooth:
		return 2 * (phase - math.Floor(phase+0.5))
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

func (w *Waveform) Close() error { return nil }
