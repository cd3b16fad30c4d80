// internal/config/config.go
package config

type Config struct {
	Spindle SpindleConfig `yaml:"spindle"`
}

type SpindleConfig struct {
	Vendor string `yaml:"vendor"` // protocol family: huanyang, h2a

	Link   LinkConfig  `yaml:"link"`
	RPM    RPMConfig   `yaml:"rpm"`
	Delays DelayConfig `yaml:"delays"`
	Poll   PollConfig  `yaml:"poll"`
	Retry  RetryConfig `yaml:"retry"`

	QueueDepth  int  `yaml:"queue_depth"`
	Diagnostics bool `yaml:"diagnostics"`
	LaserMode   bool `yaml:"laser_mode"`
}

// ---- LINK ----

type LinkConfig struct {
	Port              string `yaml:"port"`
	Baud              int    `yaml:"baud"`
	DataBits          int    `yaml:"data_bits"`
	Parity            string `yaml:"parity"` // N, E, O
	StopBits          int    `yaml:"stop_bits"`
	Address           uint8  `yaml:"address"`
	ResponseTimeoutMs int    `yaml:"response_timeout_ms"`

	// RS-485 RTS turnaround (opt-in, for adapters without automatic
	// direction switching).
	RS485 RS485Config `yaml:"rs485"`
}

type RS485Config struct {
	Enabled         bool `yaml:"enabled"`
	RTSBeforeSendMs int  `yaml:"rts_before_send_ms"`
	RTSAfterSendMs  int  `yaml:"rts_after_send_ms"`
}

// ---- SPEED RANGE ----

type RPMConfig struct {
	Min uint32 `yaml:"min"`
	Max uint32 `yaml:"max"`
}

// ---- DWELLS ----

type DelayConfig struct {
	SpinUpMs   int `yaml:"spin_up_ms"`
	SpinDownMs int `yaml:"spin_down_ms"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- RETRY ----

type RetryConfig struct {
	Max int `yaml:"max"`
}
