// ABOUTME: Session package for handle-addressed audio devices
// ABOUTME: Documents the lifecycle and error model of the Engine
// Package session manages handle-addressed audio device sessions.
//
// Each session owns at most one playback device binding, opened on one of a
// closed set of backends (auto, miniaudio, oto), and moves through the
// states uninitialized, playing, paused and errored. Callers hold only an
// opaque Handle and drive the session with six total operations:
//
//	h := engine.Play(0, session.BackendAuto) // allocate, open, start
//	if engine.HasError(h) {
//	    log.Print(engine.Error(h))
//	}
//	h = engine.Pause(h)        // stop, keep the device
//	h = engine.Uninitialize(h) // release the device, keep the session
//	engine.Delete(h)           // release everything; h is now void
//
// No operation returns an error. Failures are latched in the session and
// cleared by the next operation that succeeds. Teardown is two-phase:
// Uninitialize drops the device so Play can rebind quickly, Delete frees
// the session itself.
package session
