package config

import "time"

// Config holds gateway configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// AutoCreateRooms makes join create unknown rooms instead of failing.
	AutoCreateRooms bool `mapstructure:"auto_create_rooms" yaml:"auto_create_rooms"`
	// SendBuffer is the per-connection outbound event queue length.
	SendBuffer int `mapstructure:"send_buffer" yaml:"send_buffer"`
	// MaxMessageBytes bounds a single message's content.
	MaxMessageBytes int `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`

	History   History   `mapstructure:"history" yaml:"history"`
	Backplane Backplane `mapstructure:"backplane" yaml:"backplane"`
}

// History selects and configures the history store backend.
type History struct {
	// Backend is "jsonl" or "sqlite".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Dir is the per-room log directory for the jsonl backend.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// DBPath is the database file for the sqlite backend.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// Backplane selects and configures the pub/sub transport.
type Backplane struct {
	// Driver is "memory" for single-process runs or "nats" for a fleet.
	Driver string `mapstructure:"driver" yaml:"driver"`
	URL    string `mapstructure:"url" yaml:"url"`
	// Name identifies this gateway on the NATS connection.
	Name string `mapstructure:"name" yaml:"name"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		AutoCreateRooms:   false,
		SendBuffer:        64,
		MaxMessageBytes:   4096,
		History: History{
			Backend: "jsonl",
			Dir:     "history",
			DBPath:  "roomcast.db",
		},
		Backplane: Backplane{
			Driver: "memory",
			URL:    "nats://localhost:4222",
			Name:   "roomcast-gateway",
		},
	}
}
