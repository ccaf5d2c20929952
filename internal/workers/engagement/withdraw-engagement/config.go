// internal/workers/engagement/withdraw-engagement/config.go
package withdrawengagement

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
