package recorder

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"droneswarm/internal/telemetry"
)

// greptimeClient is the part of the ingester client the writer uses.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes rows to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client       greptimeClient
	timeout      time.Duration
	eventTable   string
	swarmTable   string
	commandTable string
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port") and
// writes into database. Tables are created by GreptimeDB on first write.
func NewGreptimeDBWriter(endpoint, database string) (*GreptimeDBWriter, error) {
	host, port := endpoint, 0
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptime endpoint %q: bad port", endpoint)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port > 0 {
		cfg = cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return newGreptimeDBWriter(client), nil
}

func newGreptimeDBWriter(c greptimeClient) *GreptimeDBWriter {
	return &GreptimeDBWriter{
		client:       c,
		timeout:      5 * time.Second,
		eventTable:   telemetry.VehicleEventRow{}.TableName(),
		swarmTable:   telemetry.SwarmEventRow{}.TableName(),
		commandTable: telemetry.CommandRow{}.TableName(),
	}
}

func (w *GreptimeDBWriter) write(name string, tbl *table.Table) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptime write %s: %w", name, err)
	}
	return nil
}

// WriteVehicleEvent inserts a single vehicle event row.
func (w *GreptimeDBWriter) WriteVehicleEvent(row telemetry.VehicleEventRow) error {
	return w.WriteVehicleEvents([]telemetry.VehicleEventRow{row})
}

// WriteVehicleEvents inserts vehicle events. Numeric and boolean values go
// to value_num (0 otherwise) and every value is mirrored in value_text.
func (w *GreptimeDBWriter) WriteVehicleEvents(rows []telemetry.VehicleEventRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.eventTable)
	if err != nil {
		return err
	}
	for _, c := range []struct {
		add  func(string, types.ColumnType) error
		name string
		typ  types.ColumnType
	}{
		{tbl.AddTagColumn, "session_id", types.STRING},
		{tbl.AddTagColumn, "vehicle_index", types.INT64},
		{tbl.AddTagColumn, "field", types.STRING},
		{tbl.AddFieldColumn, "value_num", types.FLOAT64},
		{tbl.AddFieldColumn, "value_text", types.STRING},
		{tbl.AddTimestampColumn, "ts", types.TIMESTAMP_MILLISECOND},
	} {
		if err := c.add(c.name, c.typ); err != nil {
			return err
		}
	}
	for _, r := range rows {
		num, _ := r.NumericValue()
		if err := tbl.AddRow(r.SessionID, int64(r.Index), r.Field, num, r.TextValue(), r.Timestamp); err != nil {
			return err
		}
	}
	return w.write(w.eventTable, tbl)
}

// WriteSwarmEvent inserts a swarm event row.
func (w *GreptimeDBWriter) WriteSwarmEvent(e telemetry.SwarmEventRow) error {
	tbl, err := table.New(w.swarmTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("session_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("event_type", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("leader", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("followers", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("detail", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(e.SessionID, e.EventType, int64(e.Leader), joinInts(e.Followers), e.Detail, e.Timestamp); err != nil {
		return err
	}
	return w.write(w.swarmTable, tbl)
}

// WriteCommand inserts a command log row.
func (w *GreptimeDBWriter) WriteCommand(c telemetry.CommandRow) error {
	tbl, err := table.New(w.commandTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("session_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("source", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("command", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(c.SessionID, c.Source, c.Command, c.Timestamp); err != nil {
		return err
	}
	return w.write(w.commandTable, tbl)
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
