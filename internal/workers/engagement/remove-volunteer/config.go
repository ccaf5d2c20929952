// internal/workers/engagement/remove-volunteer/config.go
package removevolunteer

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
