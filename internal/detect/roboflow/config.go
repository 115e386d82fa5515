package roboflow

import "time"

// Config holds hosted inference settings.
type Config struct {
	Endpoint    string            // Base URL, e.g. https://detect.roboflow.com
	Timeout     time.Duration     // Whole-request timeout
	JPEGQuality int               // Upload quality, 1-100
	Colors      map[string]string // Optional per-class "#rrggbb" overrides
}

// DefaultConfig returns the hosted endpoint with conservative upload settings.
func DefaultConfig() Config {
	return Config{
		Endpoint:    "https://detect.roboflow.com",
		Timeout:     10 * time.Second,
		JPEGQuality: 80,
	}
}
