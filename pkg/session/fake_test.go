// ABOUTME: Fake output drivers for engine tests
// ABOUTME: Injects open, start, stop and close failures without a device
package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/miniaud/minitester/pkg/audio"
	"github.com/miniaud/minitester/pkg/audio/output"
)

var errFake = errors.New("fake platform failure")

// fakeDriver records every stream it opens
type fakeDriver struct {
	name string

	mu       sync.Mutex
	openErr  error
	startErr error
	stopErr  error
	closeErr error
	gate     chan struct{} // when set, Open blocks until closed
	opens    int
	streams  []*fakeStream
}

func newFakeDriver(name string) *fakeDriver {
	return &fakeDriver{name: name}
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) Open(format audio.Format, render output.RenderFunc) (output.Stream, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &fakeStream{driver: d, format: format, render: render}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDriver) set(fn func(d *fakeDriver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

func (d *fakeDriver) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// liveStreams counts streams opened and not yet closed
func (d *fakeDriver) liveStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, s := range d.streams {
		if !s.closed {
			n++
		}
	}
	return n
}

func (d *fakeDriver) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

type fakeStream struct {
	driver  *fakeDriver
	format  audio.Format
	render  output.RenderFunc
	started bool
	closed  bool
	starts  int
}

func (s *fakeStream) Start() error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()

	s.starts++
	if s.driver.startErr != nil {
		return s.driver.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()

	if s.driver.stopErr != nil {
		return s.driver.stopErr
	}
	s.started = false
	return nil
}

func (s *fakeStream) Close() error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()

	s.started = false
	s.closed = true
	return s.driver.closeErr
}

func (s *fakeStream) isStarted() bool {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	return s.started
}

func (s *fakeStream) isClosed() bool {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	return s.closed
}

// testRig wires an engine to one fake driver per backend
type testRig struct {
	engine    *Engine
	miniaudio *fakeDriver
	oto       *fakeDriver
}

func newTestRig(t testing.TB, mutate ...func(*Config)) *testRig {
	t.Helper()

	rig := &testRig{
		miniaudio: newFakeDriver("fake-miniaudio"),
		oto:       newFakeDriver("fake-oto"),
	}

	cfg := Config{
		Drivers: map[Backend][]output.Driver{
			BackendAuto:      {rig.miniaudio, rig.oto},
			BackendMiniaudio: {rig.miniaudio},
			BackendOto:       {rig.oto},
		},
		OpenTimeout: time.Second,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(engine.Close)

	rig.engine = engine
	return rig
}
