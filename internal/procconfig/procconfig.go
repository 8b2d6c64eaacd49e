// Package procconfig loads the static process configuration: connection
// strings, chain endpoints, and the admin JWT secret. This is distinct
// from the dynamic Config Plane (internal/config), which holds the
// small set of runtime tunables backed by LS and refreshed on a TTL.
package procconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

type EndpointConfig struct {
	URL        string  `toml:"url"`
	RatePerSec float64 `toml:"rate_per_sec"`
	Burst      int     `toml:"burst"`
}

type ChainConfig struct {
	Endpoints      []EndpointConfig `toml:"endpoints"`
	KeystorePath   string           `toml:"keystore_path"`
	AccountAddress string           `toml:"account_address"`
	Passphrase     string           `toml:"passphrase"`
	ChainID        int64            `toml:"chain_id"`
}

type Config struct {
	PostgresDSN       string      `toml:"postgres_dsn"`
	RedisAddr         string      `toml:"redis_addr"`
	AdminSecret       string      `toml:"admin_secret"`
	ListenMetrics     string      `toml:"listen_metrics"`
	RetentionSchedule string      `toml:"retention_schedule"`
	Chain             ChainConfig `toml:"chain"`
}

// defaultRetentionSchedule runs the retention sweep once a day at
// 03:00, off peak hours for a pool whose miners are spread across
// timezones.
const defaultRetentionSchedule = "0 3 * * *"

// Load parses path as TOML into a Config.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("procconfig: decode %s: %w", path, err)
	}
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("procconfig: postgres_dsn is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("procconfig: redis_addr is required")
	}
	if cfg.RetentionSchedule == "" {
		cfg.RetentionSchedule = defaultRetentionSchedule
	}
	return &cfg, nil
}
