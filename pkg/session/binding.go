// ABOUTME: Device binding for a session
// ABOUTME: Opens a driver stream bounded by the open timeout and renders the test signal
package session

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/miniaud/minitester/pkg/audio"
	"github.com/miniaud/minitester/pkg/audio/output"
	"github.com/miniaud/minitester/pkg/audio/source"
	"go.uber.org/zap"
)

// binding is one open device stream and the source it renders.
//
// The source outlives the stream: release closes the stream first, which
// waits for the last render call, and only then closes the source. The
// render path never sees a half-released binding.
type binding struct {
	backend Backend
	driver  string
	format  audio.Format
	stream  output.Stream
	source  source.Source
	log     *zap.SugaredLogger

	renderFailed atomic.Bool
}

// render runs on the driver's render thread
func (b *binding) render(samples []int16) {
	if err := b.source.Read(samples); err != nil && b.renderFailed.CompareAndSwap(false, true) {
		b.log.Warnw("Source read failed, rendering silence", "driver", b.driver, "error", err)
	}
}

// bind opens a device for s.backend, walking its driver chain (must hold e.mu)
func (e *Engine) bind(s *session) error {
	drivers := e.cfg.Drivers[s.backend]
	if len(drivers) == 0 {
		return fmt.Errorf("%w %s", ErrNoDriver, s.backend)
	}

	var errs []error
	for _, drv := range drivers {
		src, err := source.New(e.cfg.Source, e.cfg.Format)
		if err != nil {
			return fmt.Errorf("failed to open source: %w", err)
		}

		b := &binding{
			backend: s.backend,
			driver:  drv.Name(),
			format:  src.Format(),
			source:  src,
			log:     e.log,
		}

		if err := e.open(drv, b); err != nil {
			deviceOpens.WithLabelValues(drv.Name(), "error").Inc()
			e.log.Infow("Driver failed to open, trying next",
				"session", s.id, "driver", drv.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", drv.Name(), err))
			continue
		}

		deviceOpens.WithLabelValues(drv.Name(), "ok").Inc()
		s.binding = b
		e.bindings++
		bindingsLive.Inc()
		e.log.Infow("Device bound",
			"session", s.id, "backend", s.backend, "driver", b.driver, "format", b.format.String())
		return nil
	}

	return describe(errs)
}

// open opens drv for b within the open timeout. On failure nothing stays
// allocated: a driver that answers after the deadline has its stream
// closed and the source released in the background.
func (e *Engine) open(drv output.Driver, b *binding) error {
	type result struct {
		stream output.Stream
		err    error
	}

	done := make(chan result, 1)
	go func() {
		stream, err := drv.Open(b.format, b.render)
		done <- result{stream: stream, err: err}
	}()

	timer := time.NewTimer(e.cfg.OpenTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			b.source.Close()
			return r.err
		}
		b.stream = r.stream
		return nil
	case <-timer.C:
		go func() {
			r := <-done
			if r.err == nil {
				if err := r.stream.Close(); err != nil {
					e.log.Warnw("Late device close failed", "driver", b.driver, "error", err)
				}
			}
			b.source.Close()
			e.log.Infow("Late device open rolled back", "driver", b.driver)
		}()
		return fmt.Errorf("%w after %s", ErrOpenTimeout, e.cfg.OpenTimeout)
	}
}

// release closes the binding of s, if any. The binding is dropped even
// when closing fails (must hold e.mu).
func (e *Engine) release(s *session) error {
	b := s.binding
	if b == nil {
		return nil
	}

	s.binding = nil
	e.bindings--
	bindingsLive.Dec()

	err := b.stream.Close()
	if srcErr := b.source.Close(); srcErr != nil && err == nil {
		err = srcErr
	}

	e.log.Infow("Device released", "session", s.id, "driver", b.driver)
	return err
}
