// ABOUTME: Tests for test signal sources
// ABOUTME: Tests waveform generation and source construction errors
package source

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/miniaud/minitester/pkg/audio"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Kind != KindWaveform {
		t.Errorf("expected kind %q, got %q", KindWaveform, cfg.Kind)
	}
	if cfg.Frequency != 400 {
		t.Errorf("expected 400Hz, got %.1f", cfg.Frequency)
	}
	if cfg.Amplitude != 0.2 {
		t.Errorf("expected amplitude 0.2, got %.2f", cfg.Amplitude)
	}
}

func TestNewDefaultWaveform(t *testing.T) {
	src, err := New(DefaultConfig(), audio.DefaultFormat())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer src.Close()

	if _, ok := src.(*Waveform); !ok {
		t.Fatalf("expected *Waveform, got %T", src)
	}
	if src.Format() != audio.DefaultFormat() {
		t.Errorf("expected default format, got %s", src.Format())
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		target error
	}{
		{"unknown kind", Config{Kind: "ogg"}, ErrUnknownKind},
		{"mp3 without path", Config{Kind: KindMP3}, ErrNoPath},
		{"flac without path", Config{Kind: KindFLAC}, ErrNoPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, audio.DefaultFormat())
			if !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestNewMissingFiles(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")

	if _, err := New(Config{Kind: KindMP3, Path: missing + ".mp3"}, audio.DefaultFormat()); err == nil {
		t.Error("expected error for missing MP3 file")
	}
	if _, err := New(Config{Kind: KindFLAC, Path: missing + ".flac"}, audio.DefaultFormat()); err == nil {
		t.Error("expected error for missing FLAC file")
	}
}

func TestNewWaveformValidation(t *testing.T) {
	format := audio.DefaultFormat()

	tests := []struct {
		name string
		cfg  WaveformConfig
	}{
		{"bad type", WaveformConfig{Type: "noise", Frequency: 400, Amplitude: 0.2, Format: format}},
		{"zero frequency", WaveformConfig{Frequency: 0, Amplitude: 0.2, Format: format}},
		{"above nyquist", WaveformConfig{Frequency: 30000, Amplitude: 0.2, Format: format}},
		{"amplitude too high", WaveformConfig{Frequency: 400, Amplitude: 1.5, Format: format}},
		{"bad format", WaveformConfig{Frequency: 400, Amplitude: 0.2, Format: audio.Format{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWaveform(tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestWaveformSineAmplitude(t *testing.T) {
	format := audio.DefaultFormat()
	w, err := NewWaveform(WaveformConfig{Frequency: 400, Amplitude: 0.2, Format: format})
	if err != nil {
		t.Fatalf("NewWaveform failed: %v", err)
	}

	// One full second covers 400 periods
	samples := make([]int16, format.SampleRate*format.Channels)
	if err := w.Read(samples); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	var peak int16
	for i := 0; i < len(samples); i += 2 {
		if samples[i] != samples[i+1] {
			t.Fatalf("frame %d: channels differ (%d vs %d)", i/2, samples[i], samples[i+1])
		}
		if samples[i] > peak {
			peak = samples[i]
		}
	}

	want := audio.FloatToInt16(0.2)
	if math.Abs(float64(peak-want)) > 2 {
		t.Errorf("expected peak near %d, got %d", want, peak)
	}
	if samples[0] != 0 {
		t.Errorf("expected sine to start at zero, got %d", samples[0])
	}
}

func TestWaveformContinuesAcrossReads(t *testing.T) {
	format := audio.Format{SampleRate: 48000, Channels: 1, BitDepth: 16}

	whole, _ := NewWaveform(WaveformConfig{Frequency: 1000, Amplitude: 0.5, Format: format})
	split, _ := NewWaveform(WaveformConfig{Frequency: 1000, Amplitude: 0.5, Format: format})

	a := make([]int16, 256)
	whole.Read(a)

	b := make([]int16, 256)
	split.Read(b[:100])
	split.Read(b[100:])

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, a[i], b[i])
		}
	}
}

func TestWaveformShapes(t *testing.T) {
	format := audio.Format{SampleRate: 48000, Channels: 1, BitDepth: 16}

	tests := []struct {
		waveType string
		t        float64 // seconds at 1Hz
		expected float64
	}{
		{WaveSquare, 0.25, 1},
		{WaveSquare, 0.75, -1},
		{WaveTriangle, 0.25, 1},
		{WaveTriangle, 0.75, -1},
		{WaveSawtooth, 0.25, 0.5},
		{WaveSawtooth, 0.75, -0.5},
		{WaveSine, 0.25, 1},
	}

	for _, tt := range tests {
		t.Run(tt.waveType, func(t *testing.T) {
			w, err := NewWaveform(WaveformConfig{Type: tt.waveType, Frequency: 1, Amplitude: 1, Format: format})
			if err != nil {
				t.Fatalf("NewWaveform failed: %v", err)
			}
			got := w.value(tt.t)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("value(%.2f) = %f, expected %f", tt.t, got, tt.expected)
			}
		})
	}
}

func TestWaveformPartialFrameIsSilent(t *testing.T) {
	w, _ := NewWaveform(WaveformConfig{Frequency: 400, Amplitude: 1, Format: audio.DefaultFormat()})

	samples := []int16{1, 1, 1, 1, 99}
	w.Read(samples)

	if samples[4] != 0 {
		t.Errorf("expected trailing partial frame to be silent, got %d", samples[4])
	}
}
