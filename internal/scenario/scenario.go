// Package scenario loads and runs timed command scripts.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"droneswarm/internal/command"
	"droneswarm/internal/logging"
)

// Scenario is an ordered list of commands with delays between them.
type Scenario struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Step dispatches Command with Args once After has elapsed since the
// previous step.
type Step struct {
	After   time.Duration `yaml:"after,omitempty"`
	Command string        `yaml:"command"`
	Args    []any         `yaml:"args,omitempty"`
}

// Dispatcher accepts scenario commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, source string, c command.Command) error
}

// Load reads a YAML scenario definition from disk and checks every step.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if _, err := s.Commands(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Decode converts the step into a typed command.
func (st Step) Decode() (command.Command, error) {
	m := command.Message{Func: st.Command}
	for i, a := range st.Args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("%s arg %d: %w", st.Command, i, err)
		}
		m.Args = append(m.Args, b)
	}
	return command.FromMessage(m)
}

// Commands decodes every step.
func (s *Scenario) Commands() ([]command.Command, error) {
	out := make([]command.Command, 0, len(s.Steps))
	for i, st := range s.Steps {
		if st.After < 0 {
			return nil, fmt.Errorf("step %d (%s): negative delay", i+1, st.Command)
		}
		c, err := st.Decode()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Duration is the sum of all step delays.
func (s *Scenario) Duration() time.Duration {
	var d time.Duration
	for _, st := range s.Steps {
		d += st.After
	}
	return d
}

// Run dispatches each step in order. It stops at the first rejected command
// or when ctx is cancelled.
func (s *Scenario) Run(ctx context.Context, d Dispatcher) error {
	log := logging.FromContext(ctx).With("scenario", s.Name)
	cmds, err := s.Commands()
	if err != nil {
		return err
	}
	for i, c := range cmds {
		if wait := s.Steps[i].After; wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		log.Info("scenario step", "step", i+1, "op", c.Name())
		if err := d.Dispatch(ctx, "scenario", c); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, c.Name(), err)
		}
	}
	log.Info("scenario complete", "steps", len(cmds))
	return nil
}
