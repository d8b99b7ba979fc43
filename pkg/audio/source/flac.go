// ABOUTME: Looping FLAC file source
// ABOUTME: Decodes FLAC frames with mewkiz/flac and narrows them to 16-bit
package source

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/miniaud/minitester/pkg/audio"
)

// FLAC plays a FLAC file in a loop
type FLAC struct {
	file     *os.File
	stream   *flac.Stream
	format   audio.Format
	bitDepth int

	// Decoded samples not yet consumed
	pending []int16
	mu      sync.Mutex
}

// NewFLAC opens a FLAC file source
func NewFLAC(path string) (*FLAC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	return &FLAC{
		file:     f,
		stream:   stream,
		bitDepth: int(info.BitsPerSample),
		format: audio.Format{
			SampleRate: int(info.SampleRate),
			Channels:   int(info.NChannels),
			BitDepth:   16,
		},
	}, nil
}

func (s *FLAC) Format() audio.Format { return s.format }

func (s *FLAC) Read(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filled := 0
	rewound := false
	for filled < len(samples) {
		if len(s.pending) == 0 {
			err := s.decodeFrame()
			if err == io.EOF {
				if rewound {
					break
				}
				if err := s.rewind(); err != nil {
					silence(samples[filled:])
					return err
				}
				rewound = true
				continue
			}
			if err != nil {
				silence(samples[filled:])
				return fmt.Errorf("flac decode error: %w", err)
			}
			rewound = false
		}

		n := copy(samples[filled:], s.pending)
		s.pending = s.pending[n:]
		filled += n
	}

	silence(samples[filled:])
	return nil
}

// decodeFrame parses the next frame into pending (must hold s.mu)
func (s *FLAC) decodeFrame() error {
	frame, err := s.stream.ParseNext()
	if err != nil {
		return err
	}

	channels := s.format.Channels
	blockSize := int(frame.BlockSize)
	out := make([]int16, 0, blockSize*channels)
	for i := 0; i < blockSize; i++ {
		for ch := 0; ch < channels; ch++ {
			out = append(out, audio.NarrowToInt16(frame.Subframes[ch].Samples[i], s.bitDepth))
		}
	}
	s.pending = out
	return nil
}

// rewind restarts decoding from the beginning of the file (must hold s.mu)
func (s *FLAC) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind FLAC: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to reopen FLAC stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *FLAC) Close() error {
	return s.file.Close()
}
