package lunch

import (
	"fmt"
	"time"

	coreconfig "github.com/m3rciful/stateful/core/config"
)

// Settings is the "lunch" section of the bot configuration.
// Groups receive the reminder broadcasts.
type Settings struct {
	Groups         []int64       `yaml:"groups" envconfig:"LUNCH_GROUPS"`
	TimezoneOffset int           `yaml:"timezone_offset" envconfig:"LUNCH_TIMEZONE_OFFSET"`
	Interval       time.Duration `yaml:"interval" envconfig:"LUNCH_INTERVAL"`
	Windows        []string      `yaml:"windows" envconfig:"LUNCH_WINDOWS"`
	PageSize       int           `yaml:"page_size" envconfig:"LUNCH_PAGE_SIZE"`
}

// Config is the full configuration of the lunch bot.
type Config struct {
	coreconfig.Config `yaml:",inline"`
	Lunch             Settings `yaml:"lunch"`
}

// CoreConfig exposes the shared core configuration.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// LoadConfig reads and validates the lunch bot configuration.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Load(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := cfg.Lunch.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the section and fills defaults.
func (s *Settings) Normalize() error {
	if s.TimezoneOffset < minOffset || s.TimezoneOffset > maxOffset {
		return fmt.Errorf("lunch.timezone_offset must be within [%d, %d]", minOffset, maxOffset)
	}
	if s.Interval <= 0 {
		s.Interval = 15 * time.Minute
	}
	if s.PageSize <= 0 {
		s.PageSize = 3
	}
	if _, err := s.windows(); err != nil {
		return err
	}
	return nil
}

func (s Settings) windows() ([]Window, error) {
	if len(s.Windows) == 0 {
		return DefaultWindows, nil
	}
	out := make([]Window, 0, len(s.Windows))
	for _, raw := range s.Windows {
		w, err := ParseWindow(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// Schedule builds the configured schedule.
func (s Settings) Schedule() (Schedule, error) {
	ws, err := s.windows()
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Windows: ws, Offset: s.TimezoneOffset}, nil
}
