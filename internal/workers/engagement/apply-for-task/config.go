// internal/workers/engagement/apply-for-task/config.go
package applyfortask

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
