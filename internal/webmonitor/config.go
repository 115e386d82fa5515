package webmonitor

import "time"

// Config defines the runtime configuration for the monitor server.
type Config struct {
	Addr         string
	CORSOrigins  []string
	JPEGQuality  int
	HistorySize  int           // Non-empty detection results kept for /api/status
	IdleFrame    time.Duration // MJPEG resends the placeholder after this long without frames
	KeepAlive    time.Duration // SSE comment interval
	ShutdownWait time.Duration
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		JPEGQuality:  80,
		HistorySize:  8,
		IdleFrame:    5 * time.Second,
		KeepAlive:    30 * time.Second,
		ShutdownWait: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = def.JPEGQuality
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.IdleFrame <= 0 {
		c.IdleFrame = def.IdleFrame
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = def.KeepAlive
	}
	if c.ShutdownWait <= 0 {
		c.ShutdownWait = def.ShutdownWait
	}
	return c
}
