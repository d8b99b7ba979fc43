// ABOUTME: Tests for the looping MP3 and FLAC file sources
// ABOUTME: Reads past end of stream and checks the rewind, silence and 24-bit narrowing
package source

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/miniaud/minitester/pkg/audio"
)

const speechMP3 = "testdata/speech.mp3"

// decodeMP3 decodes a whole file once, without looping
func decodeMP3(t *testing.T, path string) []int16 {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		t.Fatalf("failed to decode %s: %v", path, err)
	}
	data, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

func TestMP3Format(t *testing.T) {
	src, err := NewMP3(speechMP3)
	if err != nil {
		t.Fatalf("NewMP3 failed: %v", err)
	}
	defer src.Close()

	want := audio.Format{SampleRate: 22050, Channels: 2, BitDepth: 16}
	if src.Format() != want {
		t.Errorf("expected %s, got %s", want, src.Format())
	}
}

func TestMP3LoopsAtEndOfStream(t *testing.T) {
	ref := decodeMP3(t, speechMP3)
	if len(ref) == 0 {
		t.Fatal("fixture decoded to no samples")
	}

	src, err := NewMP3(speechMP3)
	if err != nil {
		t.Fatalf("NewMP3 failed: %v", err)
	}
	defer src.Close()

	// Two and a half passes over the file
	buf := make([]int16, len(ref)*5/2)
	if err := src.Read(buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	for i, got := range buf {
		if want := ref[i%len(ref)]; got != want {
			t.Fatalf("sample %d (pass %d): expected %d, got %d", i, i/len(ref)+1, want, got)
		}
	}
}

func TestMP3ContinuesAcrossReads(t *testing.T) {
	ref := decodeMP3(t, speechMP3)

	src, err := NewMP3(speechMP3)
	if err != nil {
		t.Fatalf("NewMP3 failed: %v", err)
	}
	defer src.Close()

	first := make([]int16, len(ref)-100)
	second := make([]int16, 300)
	if err := src.Read(first); err != nil {
		t.Fatalf("first Read failed: %v", err)
	}
	if err := src.Read(second); err != nil {
		t.Fatalf("second Read failed: %v", err)
	}

	for i, got := range second {
		if want := ref[(len(first)+i)%len(ref)]; got != want {
			t.Fatalf("sample %d: expected %d, got %d", i, want, got)
		}
	}
}

// writeFLAC encodes stereo frames of verbatim samples into a temp file.
// Each frame holds one sample slice per channel.
func writeFLAC(t *testing.T, bitsPerSample uint8, frames [][2][]int32) string {
	t.Helper()

	blockSize := uint16(16)
	if len(frames) > 0 {
		blockSize = uint16(len(frames[0][0]))
	}
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    48000,
		NChannels:     2,
		BitsPerSample: bitsPerSample,
	}

	var buf bytes.Buffer
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	enc.EnablePredictionAnalysis(false)

	for _, channels := range frames {
		f := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(len(channels[0])),
				SampleRate:        48000,
				Channels:          frame.ChannelsLR,
				BitsPerSample:     bitsPerSample,
			},
		}
		for _, samples := range channels {
			f.Subframes = append(f.Subframes, &frame.Subframe{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples,
				NSamples:  len(samples),
			})
		}
		if err := enc.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("encoder Close failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tone.flac")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestFLACLoopsAndNarrows24Bit(t *testing.T) {
	const blockSize = 32

	// Left counts up, right counts down; the low byte is dropped when narrowing
	var frames [][2][]int32
	var want []int16
	for n := 0; n < 2; n++ {
		var left, right []int32
		for i := 0; i < blockSize; i++ {
			v := n*blockSize + i + 1
			left = append(left, int32(v)<<8|0x7f)
			right = append(right, int32(-v)<<8)
			want = append(want, int16(v), int16(-v))
		}
		frames = append(frames, [2][]int32{left, right})
	}

	src, err := NewFLAC(writeFLAC(t, 24, frames))
	if err != nil {
		t.Fatalf("NewFLAC failed: %v", err)
	}
	defer src.Close()

	wantFormat := audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 16}
	if src.Format() != wantFormat {
		t.Errorf("expected %s, got %s", wantFormat, src.Format())
	}

	// 50 samples, then enough to wrap around the file twice
	first := make([]int16, 50)
	second := make([]int16, 2*len(want)+30)
	if err := src.Read(first); err != nil {
		t.Fatalf("first Read failed: %v", err)
	}
	if err := src.Read(second); err != nil {
		t.Fatalf("second Read failed: %v", err)
	}

	got := append(first, second...)
	for i := range got {
		if got[i] != want[i%len(want)] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i%len(want)], got[i])
		}
	}
}

func TestFLAC16BitPassesThrough(t *testing.T) {
	left := []int32{1000, -1000, 32767, -32768}
	right := []int32{1, 2, 3, 4}
	for len(left) < 16 {
		left = append(left, 0)
		right = append(right, 0)
	}

	src, err := NewFLAC(writeFLAC(t, 16, [][2][]int32{{left, right}}))
	if err != nil {
		t.Fatalf("NewFLAC failed: %v", err)
	}
	defer src.Close()

	buf := make([]int16, 8)
	if err := src.Read(buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := []int16{1000, 1, -1000, 2, 32767, 3, -32768, 4}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], buf[i])
		}
	}
}

func TestFLACEmptyStreamIsSilent(t *testing.T) {
	src, err := NewFLAC(writeFLAC(t, 16, nil))
	if err != nil {
		t.Fatalf("NewFLAC failed: %v", err)
	}
	defer src.Close()

	buf := []int16{1, 2, 3, 4, 5, 6}
	if err := src.Read(buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i, v := range buf {
		if v != 0 {
			t.Errorf("sample %d: expected silence, got %d", i, v)
		}
	}
}
