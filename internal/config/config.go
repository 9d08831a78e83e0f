package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30m" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Redis holds durable backend connection settings.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Session holds lifecycle settings.
type Session struct {
	IdleTimeout        Duration `yaml:"idle_timeout"`
	MaxSessionsPerUser int      `yaml:"max_sessions_per_user"`
	EndGraceDelay      Duration `yaml:"end_grace_delay"`
	SweepInterval      Duration `yaml:"sweep_interval"`
}

// Lock holds distributed locking settings.
type Lock struct {
	Lease         Duration `yaml:"lease"`
	Attempts      int      `yaml:"attempts"`
	RetryDelay    Duration `yaml:"retry_delay"`
	AcquireBudget Duration `yaml:"acquire_budget"`
}

// Config is the full service configuration.
type Config struct {
	Listen    string  `yaml:"listen"`
	Backend   string  `yaml:"backend"` // "redis" or "memory"
	KeyPrefix string  `yaml:"key_prefix"`
	LogLevel  string  `yaml:"log_level"`
	Redis     Redis   `yaml:"redis"`
	Session   Session `yaml:"session"`
	Lock      Lock    `yaml:"lock"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Listen:    ":8080",
		Backend:   "redis",
		KeyPrefix: "mediaforge:",
		LogLevel:  "info",
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Session: Session{
			IdleTimeout:        Duration(30 * time.Minute),
			MaxSessionsPerUser: 3,
			EndGraceDelay:      Duration(5 * time.Second),
			SweepInterval:      Duration(5 * time.Minute),
		},
		Lock: Lock{
			Lease:         Duration(30 * time.Second),
			Attempts:      10,
			RetryDelay:    Duration(50 * time.Millisecond),
			AcquireBudget: Duration(2 * time.Second),
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Backend != "redis" && cfg.Backend != "memory" {
		return cfg, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	return cfg, nil
}
