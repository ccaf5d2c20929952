// internal/workers/engagement/mark-not-completed/config.go
package marknotcompleted

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
