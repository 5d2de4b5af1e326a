package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"droneswarm/internal/command"
	"droneswarm/internal/logging"
	"droneswarm/internal/telemetry"
)

// Dispatcher accepts replayed commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, source string, c command.Command) error
}

// ReplayCommands re-dispatches a JSONL command log read from r. A speed > 0
// scales the recorded gaps (2 replays twice as fast); speed <= 0 replays
// without delay. Rows that fail to decode or dispatch are logged and skipped.
// It returns the number of commands dispatched.
func ReplayCommands(ctx context.Context, r io.Reader, d Dispatcher, speed float64) (int, error) {
	log := logging.FromContext(ctx)
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var row telemetry.CommandRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("read command log: %w", err)
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				t := time.NewTimer(diff)
				select {
				case <-ctx.Done():
					t.Stop()
					return n, ctx.Err()
				case <-t.C:
				}
			}
		}
		prev = row.Timestamp
		c, err := command.Decode([]byte(row.Command))
		if err != nil {
			log.Warn("skipping undecodable command", "command", row.Command, "err", err)
			continue
		}
		if err := d.Dispatch(ctx, "replay", c); err != nil {
			log.Warn("replayed command rejected", "op", c.Name(), "err", err)
			continue
		}
		n++
	}
}

// ReplayCommandsFile opens a file and replays its command log.
func ReplayCommandsFile(ctx context.Context, path string, d Dispatcher, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayCommands(ctx, f, d, speed)
}
