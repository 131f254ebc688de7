/*
Package config loads the engine configuration.

PURPOSE:
  Reads config.yaml (viper) with environment variable overrides, so a
  container deployment can run without a config file at all. Secrets
  (SMTP, LDAP, CalDAV credentials) come from the environment; the
  .env loading happens in cmd/server before this package runs.

PRECEDENCE:
  environment variables (LEAVE_ prefix) > config.yaml > defaults
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/leave-engine/leave"
)

// Config is the full engine configuration.
type Config struct {
	HTTP     HTTP                `mapstructure:"http"`
	Database Database            `mapstructure:"database"`
	Mail     Mail                `mapstructure:"mail"`
	Calendar Calendar            `mapstructure:"calendar"`
	LDAP     LDAP                `mapstructure:"ldap"`
	Jobs     Jobs                `mapstructure:"jobs"`
	Trial    map[string]int      `mapstructure:"trial_months"` // country -> months
	Holidays map[string][]string `mapstructure:"holidays"`     // country -> YYYY-MM-DD dates
}

type HTTP struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Database struct {
	Path string `mapstructure:"path"`
}

type Mail struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Sender    string `mapstructure:"sender"`
	HRAddress string `mapstructure:"hr_address"`
}

type Calendar struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LDAP struct {
	Enabled      bool   `mapstructure:"enabled"`
	URL          string `mapstructure:"url"`
	BindDN       string `mapstructure:"bind_dn"`
	BindPassword string `mapstructure:"bind_password"`
	BaseDN       string `mapstructure:"base_dn"`
	ManagerGroup string `mapstructure:"manager_group"`
	AdminGroup   string `mapstructure:"admin_group"`
}

type Jobs struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	ReminderInterval  time.Duration `mapstructure:"reminder_interval"`
	SyncInterval      time.Duration `mapstructure:"sync_interval"`
}

// Load reads the configuration from the given path (directory holding
// config.yaml) plus LEAVE_-prefixed environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("database.path", "./data/leave.db")
	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.port", 587)
	v.SetDefault("calendar.enabled", false)
	v.SetDefault("ldap.enabled", false)
	v.SetDefault("jobs.heartbeat_interval", 6*time.Hour)
	v.SetDefault("jobs.poll_interval", time.Minute)
	v.SetDefault("jobs.reminder_interval", time.Hour)
	v.SetDefault("jobs.sync_interval", 12*time.Hour)
	v.SetDefault("trial_months", map[string]int{"fr": 6, "lu": 6, "us": 3})

	v.SetEnvPrefix("LEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No file is fine, defaults plus environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// HolidayCalendar builds the static holiday calendar from configuration.
func (c *Config) HolidayCalendar() (*leave.StaticHolidayCalendar, error) {
	var holidays []leave.Holiday
	for country, dates := range c.Holidays {
		for _, date := range dates {
			day, err := time.Parse("2006-01-02", date)
			if err != nil {
				return nil, fmt.Errorf("invalid holiday %q for %s: %w", date, country, err)
			}
			holidays = append(holidays, leave.Holiday{Country: leave.Country(country), Date: day})
		}
	}
	return leave.NewStaticHolidayCalendar(holidays), nil
}

// TrialWindows converts the configured trial months per country.
func (c *Config) TrialWindows() map[leave.Country]int {
	windows := make(map[leave.Country]int, len(c.Trial))
	for country, months := range c.Trial {
		windows[leave.Country(country)] = months
	}
	return windows
}
