// ABOUTME: Looping MP3 file source
// ABOUTME: Decodes an MP3 file with go-mp3 and rewinds at end of stream
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hajimehoshi/go-mp3"
	"github.com/miniaud/minitester/pkg/audio"
)

// MP3 plays an MP3 file in a loop
type MP3 struct {
	file    *os.File
	decoder *mp3.Decoder
	format  audio.Format
	buf     []byte
	mu      sync.Mutex
}

// NewMP3 opens an MP3 file source
func NewMP3(path string) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	return &MP3{
		file:    f,
		decoder: decoder,
		format: audio.Format{
			SampleRate: decoder.SampleRate(),
			Channels:   2, // go-mp3 always decodes to stereo
			BitDepth:   16,
		},
	}, nil
}

func (s *MP3) Format() audio.Format { return s.format }

func (s *MP3) Read(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	need := len(samples) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	filled := 0
	rewound := false
	for filled < need {
		n, err := s.decoder.Read(buf[filled:])
		filled += n
		if err == io.EOF {
			if n == 0 && rewound {
				// Empty stream
				break
			}
			if _, seekErr := s.decoder.Seek(0, io.SeekStart); seekErr != nil {
				silence(samples)
				return fmt.Errorf("failed to rewind MP3: %w", seekErr)
			}
			rewound = true
			continue
		}
		if err != nil {
			silence(samples)
			return fmt.Errorf("mp3 decode error: %w", err)
		}
		if n > 0 {
			rewound = false
		}
	}

	count := filled / 2
	for i := 0; i < count; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	silence(samples[count:])
	return nil
}

func (s *MP3) Close() error {
	return s.file.Close()
}
