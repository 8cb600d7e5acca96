package config

import "time"

// ServerConfig is the root configuration for kvgate-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Auth    AuthSection    `koanf:"auth"`
	Engine  EngineSection  `koanf:"engine"`
	Storage StorageSection `koanf:"storage"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures listeners.
type ServerSection struct {
	Redis   RedisConfig   `koanf:"redis"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// RedisConfig configures the RESP listener.
type RedisConfig struct {
	Addr string `koanf:"addr"`

	// Host is the advertised host. Local-only commands are accepted from
	// this address as well as from loopback.
	Host string `koanf:"host"`

	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	// RateLimit is commands per second per client IP. Zero disables it.
	RateLimit int `koanf:"rate_limit"`

	MaxOutputBuffer int `koanf:"max_output_buffer"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// AuthSection holds the two passwords. Both empty means no authentication.
type AuthSection struct {
	RequirePass   string   `koanf:"requirepass"`
	UserPass      string   `koanf:"userpass"`
	UserBlacklist []string `koanf:"user_blacklist"`
}

// EngineSection holds admission settings.
type EngineSection struct {
	ReadOnly bool `koanf:"read_only"`

	// SlowlogSlowerThan is in microseconds. Negative disables the slowlog.
	SlowlogSlowerThan int64 `koanf:"slowlog_slower_than"`
}

// SlowlogThreshold converts SlowlogSlowerThan to a duration. A negative
// value stays negative.
func (e EngineSection) SlowlogThreshold() time.Duration {
	return time.Duration(e.SlowlogSlowerThan) * time.Microsecond
}

// StorageSection configures the keyspace, WAL and snapshots.
type StorageSection struct {
	Engine          string        `koanf:"engine"`
	DataDir         string        `koanf:"data_dir"`
	WALSyncMode     string        `koanf:"wal_sync_mode"`
	WALSyncInterval time.Duration `koanf:"wal_sync_interval"`
	SnapshotKeep    int           `koanf:"snapshot_keep"`
	Badger          BadgerConfig  `koanf:"badger"`
}

// BadgerConfig tunes the badger engine.
type BadgerConfig struct {
	GCInterval time.Duration `koanf:"gc_interval"`
	CacheSize  int64         `koanf:"cache_size"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
