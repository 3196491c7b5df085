package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address             string `yaml:"address"`
		ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Booking struct {
		// UnknownService is "fallback" (use DefaultDurationMinutes) or "reject".
		UnknownService         string `yaml:"unknown_service"`
		DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
		// Occupancy is "exact" or "interval".
		Occupancy            string `yaml:"occupancy"`
		HoldSeconds          int    `yaml:"hold_seconds"`
		SlotsCacheTTLSeconds int    `yaml:"slots_cache_ttl_seconds"`
	} `yaml:"booking"`

	Admin struct {
		Tokens []string `yaml:"tokens"`
	} `yaml:"admin"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		// TrustedProxies are addresses or CIDRs whose X-Forwarded-For is honored.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"rate_limit"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Telegram struct {
		Enabled    bool    `yaml:"enabled"`
		BotToken   string  `yaml:"bot_token"`
		AdminChats []int64 `yaml:"admin_chats"`
	} `yaml:"telegram"`

	Agenda struct {
		Enabled  bool   `yaml:"enabled"`
		Time     string `yaml:"time"` // "18:00"
		TimeZone string `yaml:"time_zone"`
	} `yaml:"agenda"`

	Calendar struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		CalendarID      string `yaml:"calendar_id"`
		TimeZone        string `yaml:"time_zone"`
	} `yaml:"calendar"`

	Firestore struct {
		Enabled         bool   `yaml:"enabled"`
		ProjectID       string `yaml:"project_id"`
		CredentialsFile string `yaml:"credentials_file"`
		Collection      string `yaml:"collection"`
	} `yaml:"firestore"`

	ScheduleConfigPath string `yaml:"schedule_config_path"`
}

// Load reads the YAML config at path. A .env file next to the working
// directory is loaded first so ${VAR} placeholders can refer to it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/atelier.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Booking.UnknownService == "" {
		c.Booking.UnknownService = "fallback"
	}
	if c.Booking.DefaultDurationMinutes <= 0 {
		c.Booking.DefaultDurationMinutes = 60
	}
	if c.Booking.Occupancy == "" {
		c.Booking.Occupancy = "exact"
	}
	if c.Booking.HoldSeconds <= 0 {
		c.Booking.HoldSeconds = 30
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
	if c.Agenda.Time == "" {
		c.Agenda.Time = "18:00"
	}
	if c.Agenda.TimeZone == "" {
		c.Agenda.TimeZone = "UTC"
	}
	if c.Calendar.CalendarID == "" {
		c.Calendar.CalendarID = "primary"
	}
	if c.Calendar.TimeZone == "" {
		c.Calendar.TimeZone = "UTC"
	}
	if c.Firestore.Collection == "" {
		c.Firestore.Collection = "bookings"
	}
	if c.ScheduleConfigPath == "" {
		c.ScheduleConfigPath = "configs/schedule.yaml"
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Booking.UnknownService {
	case "fallback", "reject":
	default:
		return fmt.Errorf("booking.unknown_service: expected fallback or reject, got %q", c.Booking.UnknownService)
	}
	switch c.Booking.Occupancy {
	case "exact", "interval":
	default:
		return fmt.Errorf("booking.occupancy: expected exact or interval, got %q", c.Booking.Occupancy)
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}
	if c.Agenda.Enabled && !c.Telegram.Enabled {
		return fmt.Errorf("agenda requires telegram to be enabled")
	}
	if _, err := time.Parse("15:04", c.Agenda.Time); err != nil {
		return fmt.Errorf("agenda.time: expected HH:MM, got %q", c.Agenda.Time)
	}
	if _, err := time.LoadLocation(c.Agenda.TimeZone); err != nil {
		return fmt.Errorf("agenda.time_zone: %w", err)
	}
	if _, err := c.TrustedProxies(); err != nil {
		return err
	}
	if c.Calendar.Enabled && c.Calendar.CredentialsFile == "" {
		return fmt.Errorf("calendar.credentials_file is required when calendar is enabled")
	}
	if c.Firestore.Enabled && c.Firestore.ProjectID == "" {
		return fmt.Errorf("firestore.project_id is required when firestore is enabled")
	}
	return nil
}

func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	if c.Server.WriteTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

func (c *Config) HoldTTL() time.Duration {
	return time.Duration(c.Booking.HoldSeconds) * time.Second
}

// TrustedProxies parses rate_limit.trusted_proxies. A bare address is a single-host prefix.
func (c *Config) TrustedProxies() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.RateLimit.TrustedProxies))
	for _, v := range c.RateLimit.TrustedProxies {
		if p, err := netip.ParsePrefix(v); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("rate_limit.trusted_proxies: invalid address or CIDR %q", v)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (c *Config) BackupInterval() time.Duration {
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

// SlotsCacheTTL is zero when slot caching is disabled.
func (c *Config) SlotsCacheTTL() time.Duration {
	if c.Booking.SlotsCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Booking.SlotsCacheTTLSeconds) * time.Second
}

// RejectUnknownService reports whether unresolvable services fail the slot request.
func (c *Config) RejectUnknownService() bool {
	return c.Booking.UnknownService == "reject"
}
