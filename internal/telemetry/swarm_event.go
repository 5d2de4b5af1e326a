package telemetry

import "time"

const (
	SwarmEventLeaderSet        = "leader_set"
	SwarmEventFollowerAdded    = "follower_added"
	SwarmEventFollowerUpdated  = "follower_updated"
	SwarmEventFollowerRemoved  = "follower_removed"
	SwarmEventReadyToFollow    = "ready_to_follow"
	SwarmEventFollowStarted    = "follow_started"
	SwarmEventFollowStopped    = "follow_stopped"
	SwarmEventFrequencyChanged = "frequency_changed"
)

// NoLeader marks a SwarmEventRow recorded while no leader was set.
const NoLeader = -1

// SwarmEventRow represents a swarm coordination event.
type SwarmEventRow struct {
	SessionID string    `json:"session_id"`
	EventType string    `json:"event_type"`
	Leader    int       `json:"leader"`
	Followers []int     `json:"followers"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"ts"`
}

func (SwarmEventRow) TableName() string { return "swarm_events" }
