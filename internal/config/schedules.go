package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"prenota/internal/models"
)

// PolicyConfig is the slot policy of a service.
type PolicyConfig struct {
	StartTime                 models.Clock `yaml:"start_time"`
	EndTime                   models.Clock `yaml:"end_time"`
	SlotDurationMinutes       int          `yaml:"slot_duration_minutes"`
	BufferMinutes             int          `yaml:"buffer_minutes"`
	MaxConcurrentReservations int          `yaml:"max_concurrent_reservations"`
}

// HoursConfig is the weekly opening window applied to every open day.
type HoursConfig struct {
	Open            models.Clock  `yaml:"open"`
	Close           models.Clock  `yaml:"close"`
	BreakStart      *models.Clock `yaml:"break_start,omitempty"`
	BreakEnd        *models.Clock `yaml:"break_end,omitempty"`
	MaxReservations *int          `yaml:"max_reservations,omitempty"`
}

// DayConfig replaces the hours of one weekday. Day uses 1=Mon .. 7=Sun.
type DayConfig struct {
	Day    int  `yaml:"day"`
	Closed bool `yaml:"closed"`
	HoursConfig `yaml:",inline"`
}

// ServiceConfig declares one service and the version that seeds it.
type ServiceConfig struct {
	ID            int64         `yaml:"id"`
	RestaurantID  int64         `yaml:"restaurant_id"`
	Name          string        `yaml:"name"`
	IsActive      bool          `yaml:"is_active"`
	EffectiveFrom string        `yaml:"effective_from"`
	EffectiveTo   string        `yaml:"effective_to,omitempty"`
	Hours         *HoursConfig  `yaml:"hours,omitempty"`
	Days          []DayConfig   `yaml:"days,omitempty"`
	DaysOff       []int         `yaml:"days_off,omitempty"`
	Policy        *PolicyConfig `yaml:"policy,omitempty"`
}

// HolidayConfig closes every service on a date.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-12-25"
	Name string `yaml:"name"`
}

// ScheduleDefaults fill in whatever a service leaves out.
type ScheduleDefaults struct {
	Hours   *HoursConfig  `yaml:"hours"`
	Policy  *PolicyConfig `yaml:"policy"`
	DaysOff []int         `yaml:"days_off"` // 1=Mon, 7=Sun
}

// SchedulesConfig is the root of schedules.yaml.
type SchedulesConfig struct {
	Services []ServiceConfig  `yaml:"services"`
	Defaults ScheduleDefaults `yaml:"defaults"`
	Holidays []HolidayConfig  `yaml:"holidays"`
}

// LoadSchedulesConfig loads and validates schedules.yaml.
func LoadSchedulesConfig(path string) (*SchedulesConfig, error) {
	if path == "" {
		path = "configs/schedules.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedules config: %w", err)
	}
	return ParseSchedulesConfig(data)
}

// ParseSchedulesConfig decodes, defaults and validates schedules.yaml content.
func ParseSchedulesConfig(data []byte) (*SchedulesConfig, error) {
	var cfg SchedulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse schedules config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate schedules config: %w", err)
	}
	return &cfg, nil
}

func (c *SchedulesConfig) applyDefaults() {
	for i := range c.Services {
		s := &c.Services[i]
		if s.Hours == nil && c.Defaults.Hours != nil {
			h := *c.Defaults.Hours
			s.Hours = &h
		}
		if s.Policy == nil && c.Defaults.Policy != nil {
			p := *c.Defaults.Policy
			s.Policy = &p
		}
		if s.DaysOff == nil {
			s.DaysOff = c.Defaults.DaysOff
		}
	}
}

// Validate checks the configuration for errors. Every service must end up with a
// complete week and a slot policy that covers it.
func (c *SchedulesConfig) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("no services defined")
	}

	ids := make(map[int64]bool)
	for i := range c.Services {
		s := &c.Services[i]
		prefix := fmt.Sprintf("service[%d]", i)

		if s.ID <= 0 {
			return fmt.Errorf("%s: id must be positive, got %d", prefix, s.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("%s: duplicate id %d", prefix, s.ID)
		}
		ids[s.ID] = true

		if s.RestaurantID <= 0 {
			return fmt.Errorf("%s: restaurant_id must be positive", prefix)
		}
		if s.Name == "" {
			return fmt.Errorf("%s: name is required", prefix)
		}

		version, err := s.Version()
		if err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		if err := version.Validate(); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}

		days, err := s.WeeklyDays()
		if err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		for j := range days {
			if err := days[j].Validate(); err != nil {
				return fmt.Errorf("%s.%s: %w", prefix, days[j].DayOfWeek, err)
			}
		}

		if s.Policy == nil {
			return fmt.Errorf("%s: policy is required (set it on the service or in defaults)", prefix)
		}
		policy := s.SlotPolicy()
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%s.policy: %w", prefix, err)
		}
		if err := policy.CheckCovers(days); err != nil {
			return fmt.Errorf("%s.policy: %w", prefix, err)
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := models.ParseDate(h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	for i, d := range c.Defaults.DaysOff {
		if d < 1 || d > 7 {
			return fmt.Errorf("defaults.days_off[%d]: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", i, d)
		}
	}
	return nil
}

// Version builds the seed version of the service.
func (s *ServiceConfig) Version() (models.Version, error) {
	v := models.Version{ServiceID: s.ID, State: models.VersionActive, Notes: "seeded from schedules.yaml"}

	from, err := models.ParseDate(s.EffectiveFrom)
	if err != nil {
		return v, fmt.Errorf("effective_from: %w", err)
	}
	v.EffectiveFrom = from

	if s.EffectiveTo != "" {
		to, err := models.ParseDate(s.EffectiveTo)
		if err != nil {
			return v, fmt.Errorf("effective_to: %w", err)
		}
		v.EffectiveTo = &to
	}
	return v, nil
}

// WeeklyDays expands the service hours into seven rows, Sunday first, with
// VersionID left zero.
func (s *ServiceConfig) WeeklyDays() ([]models.WeeklyDay, error) {
	off := make(map[time.Weekday]bool)
	for _, d := range s.DaysOff {
		wd, err := weekdayOf(d)
		if err != nil {
			return nil, fmt.Errorf("days_off: %w", err)
		}
		off[wd] = true
	}

	overrides := make(map[time.Weekday]DayConfig)
	for _, d := range s.Days {
		wd, err := weekdayOf(d.Day)
		if err != nil {
			return nil, fmt.Errorf("days: %w", err)
		}
		if _, dup := overrides[wd]; dup {
			return nil, fmt.Errorf("days: %s listed twice", wd)
		}
		overrides[wd] = d
	}

	slotDuration := 0
	if s.Policy != nil {
		slotDuration = s.Policy.SlotDurationMinutes
	}

	days := make([]models.WeeklyDay, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		day := models.WeeklyDay{DayOfWeek: wd, SlotDuration: slotDuration}

		hours := s.Hours
		closed := off[wd]
		if o, ok := overrides[wd]; ok {
			closed = o.Closed
			if !o.Closed {
				h := o.HoursConfig
				hours = &h
			}
		}

		switch {
		case closed:
			day.IsClosed = true
		case hours == nil:
			return nil, fmt.Errorf("%s: no hours configured", wd)
		default:
			open, closing := hours.Open, hours.Close
			day.OpeningTime, day.ClosingTime = &open, &closing
			day.BreakStart, day.BreakEnd = hours.BreakStart, hours.BreakEnd
			day.MaxReservations = hours.MaxReservations
		}
		days = append(days, day)
	}
	return days, nil
}

// SlotPolicy converts the policy block. Callers check s.Policy for nil first.
func (s *ServiceConfig) SlotPolicy() models.SlotPolicy {
	p := s.Policy
	return models.SlotPolicy{
		StartTime:                 p.StartTime,
		EndTime:                   p.EndTime,
		SlotDurationMinutes:       p.SlotDurationMinutes,
		BufferMinutes:             p.BufferMinutes,
		MaxConcurrentReservations: p.MaxConcurrentReservations,
	}
}

// Day parses the holiday date.
func (h HolidayConfig) Day() (time.Time, error) {
	return models.ParseDate(h.Date)
}

// GetService returns the service config by ID.
func (c *SchedulesConfig) GetService(id int64) *ServiceConfig {
	for i := range c.Services {
		if c.Services[i].ID == id {
			return &c.Services[i]
		}
	}
	return nil
}

// String returns a summary of the configuration.
func (c *SchedulesConfig) String() string {
	active := 0
	for _, s := range c.Services {
		if s.IsActive {
			active++
		}
	}
	return fmt.Sprintf("SchedulesConfig: %d services (%d active), %d holidays",
		len(c.Services), active, len(c.Holidays))
}

// weekdayOf converts 1=Mon .. 7=Sun into time.Weekday.
func weekdayOf(day int) (time.Weekday, error) {
	if day < 1 || day > 7 {
		return 0, fmt.Errorf("invalid day %d, must be 1-7 (1=Mon, 7=Sun)", day)
	}
	return time.Weekday(day % 7), nil
}
