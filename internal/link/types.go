package link

// Health is the subset of the vehicle health report needed before flight.
type Health struct {
	GlobalPositionOK bool `json:"global_position_ok"`
	HomePositionOK   bool `json:"home_position_ok"`
}

// Ready reports whether the vehicle has a usable global and home position.
func (h Health) Ready() bool { return h.GlobalPositionOK && h.HomePositionOK }

// StatusText is a free-form message emitted by the autopilot.
type StatusText struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// FlightMode names the active autopilot mode, e.g. "HOLD" or "OFFBOARD".
type FlightMode string

// Flight modes reported by the simulated link.
const (
	FlightModeUnknown  FlightMode = "UNKNOWN"
	FlightModeHold     FlightMode = "HOLD"
	FlightModeOffboard FlightMode = "OFFBOARD"
)

// Position is a global position fix.
type Position struct {
	LatitudeDeg       float64 `json:"latitude_deg"`
	LongitudeDeg      float64 `json:"longitude_deg"`
	AbsoluteAltitudeM float64 `json:"absolute_altitude_m"`
	RelativeAltitudeM float64 `json:"relative_altitude_m"`
}

// Heading is the vehicle heading in degrees clockwise from north.
type Heading struct {
	HeadingDeg float64 `json:"heading_deg"`
}

// VelocityBodyYawspeed is a body-frame velocity setpoint.
type VelocityBodyYawspeed struct {
	ForwardMS    float64 `json:"forward_m_s"`
	RightMS      float64 `json:"right_m_s"`
	DownMS       float64 `json:"down_m_s"`
	YawspeedDegS float64 `json:"yawspeed_deg_s"`
}

// VelocityNEDYaw is a local NED velocity setpoint with absolute yaw.
type VelocityNEDYaw struct {
	NorthMS float64 `json:"north_m_s"`
	EastMS  float64 `json:"east_m_s"`
	DownMS  float64 `json:"down_m_s"`
	YawDeg  float64 `json:"yaw_deg"`
}

// Attitude is an attitude and thrust setpoint.
type Attitude struct {
	RollDeg  float64 `json:"roll_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	YawDeg   float64 `json:"yaw_deg"`
	Thrust   float64 `json:"thrust_value"`
}

// PositionNEDYaw is a local NED position setpoint with absolute yaw.
type PositionNEDYaw struct {
	NorthM float64 `json:"north_m"`
	EastM  float64 `json:"east_m"`
	DownM  float64 `json:"down_m"`
	YawDeg float64 `json:"yaw_deg"`
}

// AltitudeType selects the reference of a global setpoint's altitude.
type AltitudeType int

const (
	AltitudeRelativeToHome AltitudeType = iota
	AltitudeAMSL
)

// PositionGlobalYaw is a global position setpoint.
type PositionGlobalYaw struct {
	LatDeg       float64      `json:"lat_deg"`
	LonDeg       float64      `json:"lon_deg"`
	AltM         float64      `json:"alt_m"`
	YawDeg       float64      `json:"yaw_deg"`
	AltitudeType AltitudeType `json:"altitude_type"`
}
