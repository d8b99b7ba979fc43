// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines the playback Format and sample conversion functions
// Package audio provides the PCM format shared by sources and output drivers.
//
// Every device in this module plays interleaved signed 16-bit samples. Sources
// with deeper samples (24-bit FLAC) are narrowed with NarrowToInt16 before
// they reach a driver.
//
// Example:
//
//	format := audio.DefaultFormat() // 48000Hz, 2ch, 16-bit
//	if err := format.Validate(); err != nil {
//	    return err
//	}
//	period := format.FramesFor(10 * time.Millisecond)
package audio
