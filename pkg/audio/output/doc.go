// ABOUTME: Audio output package for playback device drivers
// ABOUTME: Provides Driver and Stream interfaces with miniaudio, oto, PortAudio and null drivers
// Package output opens playback devices on competing audio backends.
//
// A Driver opens a Stream bound to one device. The stream pulls samples from
// a RenderFunc on the backend's own thread; Start and Stop toggle playback
// without releasing the device, and Close releases it after the last render
// call has returned.
//
// Drivers:
//   - miniaudio (malgo): native backend list is configurable, so AAudio or
//     OpenSL|ES can be forced on Android
//   - oto: one process-wide context, one player per stream
//   - portaudio: requires -tags portaudio
//   - null: renders on a ticker without a device
//
// Example:
//
//	drv, err := output.New(output.DriverMiniaudio, output.Options{})
//	stream, err := drv.Open(audio.DefaultFormat(), func(buf []int16) { _ = wave.Read(buf) })
//	err = stream.Start()
//	defer stream.Close()
package output
