// ColorStdoutWriter prints human-friendly, colorized rows for a terminal.
package recorder

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"droneswarm/internal/telemetry"
	"droneswarm/internal/vehicle"
)

var (
	styleTime    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleIndex   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	styleField   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	styleValue   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	styleGood    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleBad     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleSwarm   = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	styleCommand = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// vehiclePalette colors each vehicle index consistently.
var vehiclePalette = []lipgloss.Color{"12", "10", "11", "13", "14", "9"}

// ColorStdoutWriter prints rows using lipgloss styles.
type ColorStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter() *ColorStdoutWriter {
	return &ColorStdoutWriter{out: os.Stdout}
}

func (w *ColorStdoutWriter) println(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.out, s)
	return err
}

func stamp(ts time.Time) string {
	return styleTime.Render("[" + ts.Format("15:04:05.000") + "]")
}

func vehicleLabel(i int) string {
	c := vehiclePalette[((i%len(vehiclePalette))+len(vehiclePalette))%len(vehiclePalette)]
	return styleIndex.Foreground(c).Render(fmt.Sprintf("drone#%d", i))
}

// WriteVehicleEvent prints a vehicle event.
func (w *ColorStdoutWriter) WriteVehicleEvent(r telemetry.VehicleEventRow) error {
	value := styleValue.Render(r.TextValue())
	switch vehicle.Field(r.Field) {
	case vehicle.FieldIsConnected, vehicle.FieldIsArmed:
		if b, ok := r.Value.(bool); ok {
			if b {
				value = styleGood.Render("true")
			} else {
				value = styleBad.Render("false")
			}
		}
	case vehicle.FieldLatitude, vehicle.FieldLongitude:
		if f, ok := r.NumericValue(); ok {
			value = styleValue.Render(fmt.Sprintf("%.6f", f))
		}
	case vehicle.FieldAltitude, vehicle.FieldAbsoluteAltitude, vehicle.FieldHeading:
		if f, ok := r.NumericValue(); ok {
			value = styleValue.Render(fmt.Sprintf("%.1f", f))
		}
	}
	return w.println(fmt.Sprintf("%s %s %s=%s", stamp(r.Timestamp), vehicleLabel(r.Index), styleField.Render(r.Field), value))
}

// WriteSwarmEvent prints a swarm coordination event.
func (w *ColorStdoutWriter) WriteSwarmEvent(e telemetry.SwarmEventRow) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s type=%s", stamp(e.Timestamp), styleSwarm.Render("SWARM"), e.EventType)
	if e.Leader != telemetry.NoLeader {
		fmt.Fprintf(&b, " leader=%s", vehicleLabel(e.Leader))
	}
	fmt.Fprintf(&b, " followers=%v", e.Followers)
	if e.Detail != "" {
		fmt.Fprintf(&b, " %s", styleTime.Render(e.Detail))
	}
	return w.println(b.String())
}

// WriteCommand prints an accepted command.
func (w *ColorStdoutWriter) WriteCommand(c telemetry.CommandRow) error {
	return w.println(fmt.Sprintf("%s %s %s %s", stamp(c.Timestamp), styleCommand.Render("CMD"), styleField.Render(c.Source), c.Command))
}
