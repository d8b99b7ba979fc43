// ABOUTME: Null audio output driver
// ABOUTME: Renders on a ticker without touching any device
package output

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/miniaud/minitester/pkg/audio"
)

// DefaultNullPeriod is the render period used when none is configured
const DefaultNullPeriod = 10 * time.Millisecond

// Null pulls from the render func at real-time pace and discards the output
type Null struct {
	period time.Duration
}

// NewNull creates a null driver
func NewNull(period time.Duration) *Null {
	if period <= 0 {
		period = DefaultNullPeriod
	}
	return &Null{period: period}
}

func (n *Null) Name() string { return DriverNull }

func (n *Null) Open(format audio.Format, render RenderFunc) (Stream, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	frames := format.FramesFor(n.period)
	if frames < 1 {
		frames = 1
	}

	return &NullStream{
		period: n.period,
		render: render,
		buf:    make([]int16, frames*format.Channels),
		frames: frames,
	}, nil
}

// NullStream is the stream returned by the null driver
type NullStream struct {
	period time.Duration
	render RenderFunc
	buf    []int16
	frames int

	rendered atomic.Uint64

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
	closed  bool
}

func (s *NullStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}

	s.stop = make(chan struct{})
	s.running = true
	s.wg.Add(1)
	go s.renderLoop(s.stop)
	return nil
}

func (s *NullStream) renderLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.render(s.buf)
			s.rendered.Add(uint64(s.frames))
		}
	}
}

// Stop halts the render loop and waits for it to exit
func (s *NullStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.halt()
	return nil
}

// halt must hold s.mu
func (s *NullStream) halt() {
	if !s.running {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.running = false
}

func (s *NullStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.halt()
	s.closed = true
	return nil
}

// Running reports whether the render loop is active
func (s *NullStream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FramesRendered returns the number of frames pulled so far
func (s *NullStream) FramesRendered() uint64 {
	return s.rendered.Load()
}
