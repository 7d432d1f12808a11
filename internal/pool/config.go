package pool

import "time"

// Config controls pool sizing, retry and health behavior.
type Config struct {
	// Size is the number of clients built per provider. Default: 3.
	Size int `yaml:"size"`

	// PerClientConcurrency is the assumed number of concurrent requests
	// one client can serve. Used only for utilization. Default: 10.
	PerClientConcurrency int `yaml:"per_client_concurrency"`

	// HealthCheckInterval is how often the recovery sweep runs. Default: 60s.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// RecoveryWindow is how long a client stays unhealthy before the
	// sweep flips it back. Default: 5m.
	RecoveryWindow time.Duration `yaml:"recovery_window"`

	// RetryDelays is the back-off schedule between attempts. Its length
	// is the number of retries after the initial attempt.
	// Default: 1s, 2s, 4s.
	RetryDelays []time.Duration `yaml:"retry_delays"`
}

// withDefaults returns a copy of c with zero-value fields filled in.
func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = 3
	}
	if c.PerClientConcurrency <= 0 {
		c.PerClientConcurrency = 10
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 60 * time.Second
	}
	if c.RecoveryWindow <= 0 {
		c.RecoveryWindow = 5 * time.Minute
	}
	if len(c.RetryDelays) == 0 {
		c.RetryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	} else {
		c.RetryDelays = append([]time.Duration(nil), c.RetryDelays...)
	}
	return c
}
