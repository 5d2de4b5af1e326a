// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Control configures the operator control channel.
type Control struct {
	TCPAddr      string `yaml:"tcp_addr"`
	HTTPAddr     string `yaml:"http_addr"`
	ClientBuffer int    `yaml:"client_buffer"`
}

// Swarm configures the coordinator.
type Swarm struct {
	FollowHz float64       `yaml:"follow_hz"`
	ArmDelay time.Duration `yaml:"arm_delay"`
}

// Executor configures the command worker.
type Executor struct {
	Backoff time.Duration `yaml:"backoff"`
}

// Sim tunes the simulated vehicle link.
type Sim struct {
	OriginLat      float64       `yaml:"origin_lat"`
	OriginLon      float64       `yaml:"origin_lon"`
	OriginAlt      float64       `yaml:"origin_alt"`
	SpacingM       float64       `yaml:"spacing_m"`
	Tick           time.Duration `yaml:"tick"`
	MaxSpeedMS     float64       `yaml:"max_speed_ms"`
	ReadyAfter     time.Duration `yaml:"ready_after"`
	RejectOffboard bool          `yaml:"reject_offboard"`
}

// Link selects and tunes the vehicle link.
type Link struct {
	Driver         string        `yaml:"driver"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Sim            Sim           `yaml:"sim"`
}

// Vehicle declares one vehicle of the fleet.
type Vehicle struct {
	Index    int    `yaml:"index"`
	Endpoint string `yaml:"endpoint"`
}

// Greptime configures the GreptimeDB sink.
type Greptime struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
}

// Recorder selects the row sinks.
type Recorder struct {
	Stdout           string        `yaml:"stdout"`
	EventLog         string        `yaml:"event_log"`
	SwarmLog         string        `yaml:"swarm_log"`
	CommandLog       string        `yaml:"command_log"`
	SQLitePath       string        `yaml:"sqlite_path"`
	PositionInterval time.Duration `yaml:"position_interval"`
	Greptime         Greptime      `yaml:"greptime"`
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration of the swarm service.
type Config struct {
	Control  Control   `yaml:"control"`
	Swarm    Swarm     `yaml:"swarm"`
	Executor Executor  `yaml:"executor"`
	Link     Link      `yaml:"link"`
	Vehicles []Vehicle `yaml:"vehicles"`
	Recorder Recorder  `yaml:"recorder"`
	Logging  Logging   `yaml:"logging"`
}

// Default returns the configuration used when no file is given: four
// simulated vehicles behind the local link servers on ports 50051-50054.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Control.TCPAddr == "" {
		c.Control.TCPAddr = ":12345"
	}
	if c.Control.HTTPAddr == "" {
		c.Control.HTTPAddr = ":8080"
	}
	if c.Control.ClientBuffer == 0 {
		c.Control.ClientBuffer = 256
	}
	if c.Swarm.FollowHz == 0 {
		c.Swarm.FollowHz = 1
	}
	if c.Swarm.ArmDelay == 0 {
		c.Swarm.ArmDelay = 100 * time.Millisecond
	}
	if c.Executor.Backoff == 0 {
		c.Executor.Backoff = 100 * time.Millisecond
	}
	if c.Link.Driver == "" {
		c.Link.Driver = "sim"
	}
	if c.Link.ConnectTimeout == 0 {
		c.Link.ConnectTimeout = 3 * time.Second
	}
	s := &c.Link.Sim
	if s.OriginLat == 0 && s.OriginLon == 0 {
		s.OriginLat, s.OriginLon = 47.397742, 8.545594
	}
	if s.OriginAlt == 0 {
		s.OriginAlt = 488
	}
	if s.SpacingM == 0 {
		s.SpacingM = 5
	}
	if s.Tick == 0 {
		s.Tick = 100 * time.Millisecond
	}
	if s.MaxSpeedMS == 0 {
		s.MaxSpeedMS = 10
	}
	if len(c.Vehicles) == 0 {
		for i := 0; i < 4; i++ {
			c.Vehicles = append(c.Vehicles, Vehicle{Index: i, Endpoint: fmt.Sprintf("localhost:%d", 50051+i)})
		}
	}
	if c.Recorder.Stdout == "" {
		c.Recorder.Stdout = "auto"
	}
	if c.Recorder.PositionInterval == 0 {
		c.Recorder.PositionInterval = 500 * time.Millisecond
	}
	if c.Recorder.Greptime.Database == "" {
		c.Recorder.Greptime.Database = "public"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// applyEnv lets the environment override addresses, the GreptimeDB endpoint
// and the log level.
func (c *Config) applyEnv() {
	if v := os.Getenv("DRONESWARM_TCP_ADDR"); v != "" {
		c.Control.TCPAddr = v
	}
	if v := os.Getenv("DRONESWARM_HTTP_ADDR"); v != "" {
		c.Control.HTTPAddr = v
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Recorder.Greptime.Endpoint = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Check reports semantic errors the schema cannot express.
func (c *Config) Check() error {
	seen := make(map[int]bool, len(c.Vehicles))
	for _, v := range c.Vehicles {
		if seen[v.Index] {
			return fmt.Errorf("vehicle index %d declared twice", v.Index)
		}
		seen[v.Index] = true
	}
	if c.Swarm.FollowHz <= 0 {
		return fmt.Errorf("swarm.follow_hz must be positive")
	}
	return nil
}

// Load loads YAML config and validates it against a CUE schema. An empty
// configPath yields Default with environment overrides; an empty
// cueSchemaPath selects the built-in schema.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	var cfg Config
	if configPath != "" {
		// Validate with CUE first
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
