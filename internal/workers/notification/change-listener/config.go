// internal/workers/notification/change-listener/config.go
package changelistener

import "time"

type Config struct {
	Channel string
	// Timeout bounds one Submit triggered by a change message.
	Timeout time.Duration
}

func LoadConfig(channel string) *Config {
	if channel == "" {
		channel = "jobs:changes"
	}
	return &Config{
		Channel: channel,
		Timeout: 10 * time.Second,
	}
}
