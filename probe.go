// ABOUTME: probe command running the harness scenario on every backend
// ABOUTME: Play, pause, uninitialize and delete per backend, reported as a table
package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/miniaud/minitester/pkg/session"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run play, pause, uninitialize and delete on every backend",
	Args:  cobra.NoArgs,
	RunE:  runProbe,
}

func init() {
	probeCmd.Flags().Duration("duration", time.Second, "How long to play on each backend")
	probeCmd.Flags().Bool("strict", false, "Exit non-zero when any backend fails")
}

// probeStep is the outcome of one operation
type probeStep struct {
	state string
	err   string
}

func (s probeStep) String() string {
	if s.err != "" {
		return "✗ " + s.err
	}
	return "✓ " + s.state
}

// probeRow is the outcome of the scenario on one backend
type probeRow struct {
	backend session.Backend
	driver  string
	steps   []probeStep
}

func (r probeRow) failed() bool {
	for _, s := range r.steps {
		if s.err != "" {
			return true
		}
	}
	return false
}

// probeBackend runs the harness scenario on one backend
func probeBackend(engine *session.Engine, backend session.Backend, hold time.Duration) probeRow {
	row := probeRow{backend: backend}

	step := func(h session.Handle) probeStep {
		s := probeStep{err: engine.Error(h)}
		if info, ok := engine.Info(h); ok {
			s.state = info.State.String()
			if info.Driver != "" {
				row.driver = info.Driver
			}
		}
		return s
	}

	h := engine.Play(0, backend)
	row.steps = append(row.steps, step(h))
	if h == 0 {
		return row
	}

	time.Sleep(hold)

	h = engine.Pause(h)
	row.steps = append(row.steps, step(h))

	h = engine.Uninitialize(h)
	row.steps = append(row.steps, step(h))

	engine.Delete(h)
	deleted := probeStep{state: "deleted"}
	if engine.Sessions() != 0 || engine.LiveBindings() != 0 {
		deleted = probeStep{err: "session or device leaked"}
	}
	row.steps = append(row.steps, deleted)
	return row
}

func runProbe(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd, "")
	if err != nil {
		return err
	}
	defer func() { _ = rt.log.Sync() }()

	hold, _ := cmd.Flags().GetDuration("duration")
	strict, _ := cmd.Flags().GetBool("strict")

	engine, err := rt.newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	var rows []probeRow
	for _, backend := range session.Backends {
		rt.log.Infow("Probing backend", "backend", backend)
		rows = append(rows, probeBackend(engine, backend, hold))
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderProbe(rows))

	if strict {
		for _, row := range rows {
			if row.failed() {
				return fmt.Errorf("backend %s failed", row.backend)
			}
		}
	}
	return nil
}

func renderProbe(rows []probeRow) string {
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("BACKEND", "DRIVER", "PLAY", "PAUSE", "UNINIT", "DELETE")

	for _, row := range rows {
		cells := []string{row.backend.String(), orDash(row.driver)}
		for i := 0; i < 4; i++ {
			if i < len(row.steps) {
				cells = append(cells, row.steps[i].String())
			} else {
				cells = append(cells, "-")
			}
		}
		t.Row(cells...)
	}

	t.StyleFunc(func(r, c int) lipgloss.Style {
		if r == table.HeaderRow || c < 2 || r >= len(rows) {
			return lipgloss.NewStyle().Padding(0, 1)
		}
		step := c - 2
		if step < len(rows[r].steps) && rows[r].steps[step].err != "" {
			return failStyle.Padding(0, 1)
		}
		return okStyle.Padding(0, 1)
	})

	return t.String()
}
