// ABOUTME: Audio type definitions
// ABOUTME: Defines the PCM stream format and sample conversion helpers
package audio

import (
	"errors"
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	DefaultSampleRate = 48000
	DefaultChannels   = 2
	DefaultBitDepth   = 16
)

// ErrInvalidFormat is returned by Format.Validate
var ErrInvalidFormat = errors.New("invalid audio format")

// Format describes an interleaved PCM stream format
type Format struct {
	SampleRate int `mapstructure:"sample_rate" json:"sampleRate"`
	Channels   int `mapstructure:"channels" json:"channels"`
	BitDepth   int `mapstructure:"bit_depth" json:"bitDepth"`
}

// DefaultFormat returns 48kHz stereo 16-bit
func DefaultFormat() Format {
	return Format{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitDepth:   DefaultBitDepth,
	}
}

// Validate checks that the format can be opened by a playback device
func (f Format) Validate() error {
	if f.SampleRate < 8000 || f.SampleRate > 384000 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 8 {
		return fmt.Errorf("%w: %d channels", ErrInvalidFormat, f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("%w: %d-bit (only 16-bit playback is supported)", ErrInvalidFormat, f.BitDepth)
	}
	return nil
}

// FrameBytes returns the size of one interleaved frame in bytes
func (f Format) FrameBytes() int {
	return f.Channels * f.BitDepth / 8
}

// FramesFor returns the number of frames covering d
func (f Format) FramesFor(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// SampleToInt16 converts a 24-bit sample held in an int32 to int16
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 8)
}

// NarrowToInt16 converts a sample of the given bit depth to int16
func NarrowToInt16(sample int32, bitDepth int) int16 {
	switch {
	case bitDepth == 16:
		return int16(sample)
	case bitDepth > 16:
		return int16(sample >> (bitDepth - 16))
	default:
		return int16(sample << (16 - bitDepth))
	}
}

// FloatToInt16 converts a [-1, 1] sample to int16 with clipping
func FloatToInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

// PutInt16LE encodes samples little-endian into dst, returning the bytes written
func PutInt16LE(dst []byte, samples []int16) int {
	n := 0
	for _, s := range samples {
		if n+2 > len(dst) {
			break
		}
		dst[n] = byte(s)
		dst[n+1] = byte(uint16(s) >> 8)
		n += 2
	}
	return n
}
