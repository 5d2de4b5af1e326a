package scenario

import (
	"fmt"
	"time"

	"droneswarm/internal/command"
)

func step(after time.Duration, name string, args ...any) Step {
	return Step{After: after, Command: name, Args: args}
}

// connectAll connects vehicles 0..n-1 on the local SITL port range.
func connectAll(n int) []Step {
	steps := make([]Step, 0, n)
	for i := 0; i < n; i++ {
		steps = append(steps, step(0, command.NameConnect, i, "", fmt.Sprint(14540+i)))
	}
	return steps
}

// formation connects n vehicles, makes 0 the leader and places the others at
// the given (distance, angle) offsets before starting the follow loop.
func formation(name, description string, offsets [][2]float64) Scenario {
	steps := connectAll(len(offsets) + 1)
	steps = append(steps, step(0, command.NameSetLeader, 0))
	for i, o := range offsets {
		steps = append(steps, step(0, command.NameAddFollower, i+1, o[0], o[1]))
	}
	steps = append(steps,
		step(time.Second, command.NameReadyToFollow),
		step(500*time.Millisecond, command.NameStartFollow),
	)
	return Scenario{Name: name, Description: description, Steps: steps}
}

// BuiltIn returns predefined formations.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"line-abreast": formation("Line abreast",
			"Two followers 10 m either side of the leader.",
			[][2]float64{{10, 90}, {10, 270}}),
		"trail": formation("Trail",
			"Followers in single file behind the leader.",
			[][2]float64{{10, 180}, {20, 180}, {30, 180}}),
		"vee": formation("Vee",
			"Followers swept back 45 degrees on both sides.",
			[][2]float64{{10, 135}, {10, 225}, {20, 135}}),
	}
}
