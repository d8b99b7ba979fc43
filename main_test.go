// ABOUTME: Tests for the minitester commands
// ABOUTME: Covers probe runs, listen port parsing and command registration
package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/miniaud/minitester/pkg/audio"
	"github.com/miniaud/minitester/pkg/audio/output"
	"github.com/miniaud/minitester/pkg/session"
)

// brokenDriver never opens a device
type brokenDriver struct{}

func (brokenDriver) Name() string { return "broken" }

func (brokenDriver) Open(audio.Format, output.RenderFunc) (output.Stream, error) {
	return nil, errors.New("no such device")
}

func newProbeEngine(t *testing.T) *session.Engine {
	t.Helper()

	null := output.NewNull(5 * time.Millisecond)
	engine, err := session.NewEngine(session.Config{
		Drivers: map[session.Backend][]output.Driver{
			session.BackendAuto:      {brokenDriver{}, null},
			session.BackendMiniaudio: {null},
			session.BackendOto:       {brokenDriver{}},
		},
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func TestProbeBackend(t *testing.T) {
	engine := newProbeEngine(t)

	row := probeBackend(engine, session.BackendAuto, 10*time.Millisecond)
	if row.failed() {
		t.Fatalf("auto should fall back to the null driver: %+v", row)
	}
	if row.driver != output.DriverNull {
		t.Errorf("unexpected driver %q", row.driver)
	}

	want := []string{"playing", "paused", "uninitialized", "deleted"}
	if len(row.steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(row.steps))
	}
	for i, w := range want {
		if row.steps[i].state != w {
			t.Errorf("step %d: got %q, want %q", i, row.steps[i].state, w)
		}
	}
}

func TestProbeReportsFailure(t *testing.T) {
	engine := newProbeEngine(t)

	row := probeBackend(engine, session.BackendOto, 0)
	if !row.failed() {
		t.Fatal("expected oto to fail")
	}
	if !strings.Contains(row.steps[0].err, "no such device") {
		t.Errorf("unexpected play error %q", row.steps[0].err)
	}
	// pausing a session whose device never opened is skipped while the error is latched
	if !strings.Contains(row.steps[1].err, "no such device") {
		t.Errorf("pause should keep the open error, got %q", row.steps[1].err)
	}
	if engine.Sessions() != 0 {
		t.Error("probe leaked a session")
	}

	out := renderProbe([]probeRow{row})
	for _, want := range []string{"BACKEND", "oto", "✗"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestListenPort(t *testing.T) {
	tests := []struct {
		addr string
		want int
	}{
		{":8927", 8927},
		{"0.0.0.0:9000", 9000},
		{"localhost", 8927},
		{":0", 8927},
	}

	for _, tt := range tests {
		if got := listenPort(tt.addr); got != tt.want {
			t.Errorf("listenPort(%q) = %d, want %d", tt.addr, got, tt.want)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "remote", "probe"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %s not registered", name)
		}
	}
	if rootCmd.PersistentFlags().Lookup("backend") == nil {
		t.Error("backend flag missing")
	}
}
