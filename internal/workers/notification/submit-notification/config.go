// internal/workers/notification/submit-notification/config.go
package submitnotification

import "time"

type Config struct {
	// Source is recorded as the event's source trigger when the job does not name one.
	Source  string
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Source:  "assignment-flow",
		Timeout: 10 * time.Second,
	}
}
