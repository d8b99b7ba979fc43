// ABOUTME: Session engine for audio device handles
// ABOUTME: Implements play, pause, uninitialize, error queries and delete
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kelindar/event"
	"github.com/miniaud/minitester/pkg/audio"
	"github.com/miniaud/minitester/pkg/audio/output"
	"github.com/miniaud/minitester/pkg/audio/source"
	"go.uber.org/zap"
)

const (
	DefaultMaxSessions = 64
	DefaultOpenTimeout = 5 * time.Second
)

// Config configures an Engine
type Config struct {
	// Drivers lists, per backend, the drivers tried in order when binding.
	// BackendAuto is the fallback chain.
	Drivers map[Backend][]output.Driver

	// Source is the test signal every binding plays
	Source source.Config

	// Format is the device format for generated sources
	Format audio.Format

	MaxSessions int
	OpenTimeout time.Duration
	Logger      *zap.SugaredLogger
}

// DefaultDrivers builds the standard driver table: BackendMiniaudio binds
// miniaudio, BackendOto binds oto, and BackendAuto walks autoOrder.
func DefaultDrivers(autoOrder []string, opts output.Options) (map[Backend][]output.Driver, error) {
	miniaudio, err := output.New(output.DriverMiniaudio, opts)
	if err != nil {
		return nil, err
	}
	oto, err := output.New(output.DriverOto, opts)
	if err != nil {
		return nil, err
	}

	byName := map[string]output.Driver{
		miniaudio.Name(): miniaudio,
		oto.Name():       oto,
	}

	auto := make([]output.Driver, 0, len(autoOrder))
	for _, name := range autoOrder {
		drv, ok := byName[name]
		if !ok {
			if drv, err = output.New(name, opts); err != nil {
				return nil, fmt.Errorf("auto driver order: %w", err)
			}
			byName[name] = drv
		}
		auto = append(auto, drv)
	}

	return map[Backend][]output.Driver{
		BackendAuto:      auto,
		BackendMiniaudio: {miniaudio},
		BackendOto:       {oto},
	}, nil
}

// session is the bookkeeping behind a handle
type session struct {
	id      string
	backend Backend
	state   State
	lastErr error
	binding *binding
	deleted bool
}

// Info is a snapshot of a session
type Info struct {
	Handle  Handle
	ID      string
	Backend Backend
	Driver  string
	State   State
	Format  audio.Format
	Error   string
}

// Engine owns every session and serializes control operations on them.
//
// All operations are total: failures are latched in the session and read
// back through HasError and Error.
type Engine struct {
	cfg    Config
	log    *zap.SugaredLogger
	events *event.Dispatcher

	closeOnce sync.Once

	mu       sync.Mutex
	table    *slotTable
	bindings int
	zeroErr  error
	pending  []StateChanged
	closed   bool
}

// NewEngine creates an engine
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.Format == (audio.Format{}) {
		cfg.Format = audio.DefaultFormat()
	}
	if cfg.Source.Kind == "" {
		cfg.Source = source.DefaultConfig()
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Drivers) == 0 {
		return nil, fmt.Errorf("%w: no drivers configured", ErrNoDriver)
	}

	return &Engine{
		cfg:    cfg,
		log:    cfg.Logger.Named("session"),
		events: event.NewDispatcher(),
		table:  newSlotTable(cfg.MaxSessions),
	}, nil
}

// Play binds a device if needed and starts playback.
//
// A zero (or stale) handle allocates a new session. A different backend
// tears down the current binding and rebinds under the same handle. The
// returned handle is non-zero unless allocation failed or the engine is
// closed, and must replace the caller's copy.
func (e *Engine) Play(h Handle, backend Backend) Handle {
	e.mu.Lock()
	defer e.unlock()

	if e.closed {
		e.log.Warnw("Play on closed engine", "handle", h)
		return 0
	}

	if !backend.Valid() {
		e.log.Warnw("Unknown backend requested, using auto", "backend", int(backend))
		backend = BackendAuto
	}

	s, res := e.table.lookup(h)
	if res == lookupStale {
		e.log.Warnw("Play on stale handle, allocating a new session", "handle", h)
	}
	if res != lookupLive {
		var ok bool
		if s, h, ok = e.allocate(backend); !ok {
			return 0
		}
	}
	previous := s.state

	if s.binding != nil && s.backend != backend {
		e.log.Infow("Backend change, rebinding device",
			"session", s.id, "from", s.backend, "to", backend)
		if err := e.release(s); err != nil {
			e.log.Warnw("Release failed during backend change", "session", s.id, "error", err)
			failures.WithLabelValues(KindResourceRelease.String()).Inc()
		}
	}
	s.backend = backend

	if s.binding == nil {
		if err := e.bind(s); err != nil {
			e.fail(h, s, previous, StateErrored, &Error{Kind: KindDeviceOpen, Op: "failed to initialize device", Err: err})
			return h
		}
	}

	if err := s.binding.stream.Start(); err != nil {
		e.fail(h, s, previous, StateErrored, &Error{Kind: KindDeviceOpen, Op: "failed to start device", Err: err})
		return h
	}

	e.succeed(h, s, previous, StatePlaying)
	return h
}

// Pause stops playback and keeps the device binding.
//
// Pausing a session that never started latches an invalid-operation error
// without changing state. While an error is latched pause does nothing.
func (e *Engine) Pause(h Handle) Handle {
	e.mu.Lock()
	defer e.unlock()

	s, res := e.table.lookup(h)
	if res != lookupLive {
		return h
	}
	previous := s.state

	if s.lastErr != nil && s.state == StateErrored {
		e.log.Debugw("Pause skipped, error latched", "session", s.id)
		return h
	}

	switch s.state {
	case StatePlaying:
		if err := s.binding.stream.Stop(); err != nil {
			e.fail(h, s, previous, StateErrored, &Error{Kind: KindDeviceControl, Op: "failed to stop device", Err: err})
			return h
		}
		e.succeed(h, s, previous, StatePaused)
	case StatePaused:
		e.succeed(h, s, previous, StatePaused)
	default:
		e.fail(h, s, previous, s.state, &Error{Kind: KindInvalidOperation, Op: "pause", Err: ErrNoDevice})
	}
	return h
}

// Uninitialize releases the device binding but keeps the session, so a
// later Play can reopen a device. Uninitializing twice is a no-op.
func (e *Engine) Uninitialize(h Handle) Handle {
	e.mu.Lock()
	defer e.unlock()

	s, res := e.table.lookup(h)
	if res != lookupLive {
		return h
	}
	previous := s.state

	if err := e.release(s); err != nil {
		e.fail(h, s, previous, StateUninitialized, &Error{Kind: KindResourceRelease, Op: "failed to release device", Err: err})
		return h
	}

	e.succeed(h, s, previous, StateUninitialized)
	return h
}

// HasError reports whether the session has a latched error. The zero
// handle and stale handles always report true.
func (e *Engine) HasError(h Handle) bool {
	return e.LastError(h) != nil
}

// Error returns the latched error message, or "" when there is none
func (e *Engine) Error(h Handle) string {
	if err := e.LastError(h); err != nil {
		return err.Error()
	}
	return ""
}

// LastError returns the latched error. Session failures are *Error values.
func (e *Engine) LastError(h Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, res := e.table.lookup(h)
	switch res {
	case lookupNone:
		if e.closed {
			return ErrEngineClosed
		}
		if e.zeroErr != nil {
			return e.zeroErr
		}
		return ErrNoSession
	case lookupStale:
		return ErrStaleHandle
	}
	return s.lastErr
}

// Delete releases the device if still held and frees the session. The
// handle must not be used afterwards; if it is, it reads as stale.
func (e *Engine) Delete(h Handle) {
	e.mu.Lock()
	defer e.unlock()

	s, res := e.table.lookup(h)
	if res != lookupLive {
		if res == lookupStale {
			e.log.Warnw("Delete on stale handle ignored", "handle", h)
		}
		return
	}
	e.destroy(h, s)
}

// Info returns a snapshot of a live session
func (e *Engine) Info(h Handle) (Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, res := e.table.lookup(h)
	if res != lookupLive {
		return Info{}, false
	}

	info := Info{
		Handle:  h,
		ID:      s.id,
		Backend: s.backend,
		State:   s.state,
	}
	if s.binding != nil {
		info.Driver = s.binding.driver
		info.Format = s.binding.format
	}
	if s.lastErr != nil {
		info.Error = s.lastErr.Error()
	}
	return info, true
}

// Sessions returns the number of live sessions
func (e *Engine) Sessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.live
}

// LiveBindings returns the number of device bindings currently held
func (e *Engine) LiveBindings() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bindings
}

// Close deletes every session and stops event delivery. Safe to call more
// than once. Afterwards Play returns the zero handle and Subscribe does
// nothing.
func (e *Engine) Close() {
	e.closeOnce.Do(e.close)
}

func (e *Engine) close() {
	e.mu.Lock()
	e.closed = true
	var handles []Handle
	e.table.each(func(h Handle, _ *session) {
		handles = append(handles, h)
	})
	for _, h := range handles {
		s, _ := e.table.lookup(h)
		e.destroy(h, s)
	}
	e.unlock()

	e.events.Close()
}

// allocate creates a session (must hold e.mu)
func (e *Engine) allocate(backend Backend) (*session, Handle, bool) {
	s := &session{
		id:      uuid.New().String(),
		backend: backend,
		state:   StateUninitialized,
	}

	h, ok := e.table.insert(s)
	if !ok {
		e.zeroErr = fmt.Errorf("%w (%d)", ErrSessionLimit, e.cfg.MaxSessions)
		e.log.Errorw("Cannot allocate session", "limit", e.cfg.MaxSessions)
		failures.WithLabelValues(KindDeviceOpen.String()).Inc()
		return nil, 0, false
	}

	e.zeroErr = nil
	sessionsLive.Inc()
	e.log.Infow("Session created", "session", s.id, "handle", h)
	return s, h, true
}

// destroy releases and frees a live session (must hold e.mu)
func (e *Engine) destroy(h Handle, s *session) {
	previous := s.state
	if err := e.release(s); err != nil {
		e.log.Warnw("Release failed during delete", "session", s.id, "error", err)
		failures.WithLabelValues(KindResourceRelease.String()).Inc()
	}

	e.table.remove(h)
	sessionsLive.Dec()

	s.state = StateUninitialized
	s.lastErr = nil
	s.deleted = true
	e.queue(h, s, previous)
	e.log.Infow("Session deleted", "session", s.id, "handle", h)
}

// succeed moves s to state and clears its error (must hold e.mu)
func (e *Engine) succeed(h Handle, s *session, previous, state State) {
	s.lastErr = nil
	e.transition(h, s, previous, state)
}

// fail latches err and moves s to state (must hold e.mu)
func (e *Engine) fail(h Handle, s *session, previous, state State, err *Error) {
	s.lastErr = err
	failures.WithLabelValues(err.Kind.String()).Inc()
	e.log.Warnw("Session operation failed",
		"session", s.id, "kind", err.Kind.String(), "error", err.Error())
	e.transition(h, s, previous, state)
}

func (e *Engine) transition(h Handle, s *session, previous, state State) {
	s.state = state
	if previous != state {
		transitions.WithLabelValues(state.String()).Inc()
		e.log.Debugw("Session state changed",
			"session", s.id, "from", previous.String(), "to", state.String())
	}
	e.queue(h, s, previous)
}

// describe joins per-driver open failures into one message
func describe(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}
