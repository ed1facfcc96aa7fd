package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/fairshare/pkg/core/balancer"
	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/interval"
	"github.com/jakechorley/fairshare/pkg/core/model"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
)

// CapabilityConfig defines one capability and its base assignment weight
type CapabilityConfig struct {
	Name   string  `yaml:"name" validate:"required"`
	Weight float64 `yaml:"weight" validate:"gte=0"`
}

// RuleConfig classifies feed records by substring match on their activity text
type RuleConfig struct {
	Name      string               `yaml:"name" validate:"required"`
	Match     []string             `yaml:"match" validate:"required,min=1,dive,required"`
	Kind      string               `yaml:"kind" validate:"required,oneof=shift gap"`
	Overrides capability.Overrides `yaml:"overrides,omitempty"`

	// CountsTowardHours defaults to true for shifts and false for gaps
	CountsTowardHours *bool   `yaml:"countsTowardHours,omitempty"`
	Modifier          float64 `yaml:"modifier,omitempty" validate:"gte=0"`
	Start             string  `yaml:"start,omitempty"`
	End               string  `yaml:"end,omitempty"`

	// RRule restricts the rule to matching days, e.g. FREQ=WEEKLY;BYDAY=SA,SU
	RRule string `yaml:"rrule,omitempty"`
}

// StorageConfig selects the durable store
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty" validate:"omitempty,oneof=postgres sqlite none"`
	DSN    string `yaml:"dsn,omitempty"`

	// DSNEnv names an environment variable holding the DSN (used when DSN is empty)
	DSNEnv string `yaml:"dsnEnv,omitempty"`
}

// SheetsConfig locates the Google Sheets tabs used as feed, roster and publish targets
type SheetsConfig struct {
	SpreadsheetID  string `yaml:"spreadsheetID,omitempty"`
	FeedTab        string `yaml:"feedTab,omitempty"`
	RosterTab      string `yaml:"rosterTab,omitempty"`
	ScheduleTab    string `yaml:"scheduleTab,omitempty"`
	AssignmentsTab string `yaml:"assignmentsTab,omitempty"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string   `yaml:"addr,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// Config represents the application configuration
type Config struct {
	Capabilities      []CapabilityConfig `yaml:"capabilities" validate:"required,min=1,dive"`
	ResourceTypes     []string           `yaml:"resourceTypes" validate:"required,min=1,dive,required"`
	DefaultCapability string             `yaml:"defaultCapability,omitempty"`

	// FallbackChains may nest lists; they are flattened in order
	FallbackChains map[string][]interface{} `yaml:"fallbackChains,omitempty"`
	ExcludedBy     map[string][]string      `yaml:"excludedBy,omitempty"`

	MinAssignments            int     `yaml:"minAssignments" validate:"gte=0"`
	OverflowBufferMinutes     int     `yaml:"overflowBufferMinutes" validate:"gte=0"`
	DefaultWeightedMultiplier float64 `yaml:"defaultWeightedMultiplier" validate:"gte=0"`
	MinSegmentMinutes         int     `yaml:"minSegmentMinutes" validate:"gte=0"`
	AllowExclusionOverride    bool    `yaml:"allowExclusionOverride"`
	KeepUnprocessedWeighted   bool    `yaml:"keepUnprocessedWeighted"`

	DailyResetTime string `yaml:"dailyResetTime,omitempty"`
	Timezone       string `yaml:"timezone,omitempty"`
	RosterFile     string `yaml:"rosterFile,omitempty"`

	// Batch parallelism for AssignBatch (0 = number of CPUs)
	Workers int `yaml:"workers" validate:"gte=0"`

	Rules   []RuleConfig  `yaml:"rules" validate:"dive"`
	Storage StorageConfig `yaml:"storage"`
	Sheets  SheetsConfig  `yaml:"sheets"`
	Server  ServerConfig  `yaml:"server"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from balancer_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	return LoadWithEnv("")
}

// LoadWithEnv loads the configuration for an environment.
// For example, env="test" looks for "balancer_config.test.yaml".
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration struct, rrule syntax, clock times and capability keys
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if _, err := cfg.Location(); err != nil {
		return err
	}
	if _, err := cfg.ResetClock(); err != nil {
		return err
	}

	for i, rule := range cfg.Rules {
		if rule.RRule != "" {
			if _, err := rrule.StrToRRule(rule.RRule); err != nil {
				return fmt.Errorf("invalid rrule in rules[%d]: %w", i, err)
			}
		}
		for _, text := range []string{rule.Start, rule.End} {
			if text == "" {
				continue
			}
			if _, err := interval.ParseClock(text); err != nil {
				return fmt.Errorf("invalid time in rules[%d]: %w", i, err)
			}
		}
		if unknown := capability.Expand(catalog, rule.Overrides).UnknownKeys; len(unknown) > 0 {
			return fmt.Errorf("unknown override keys in rules[%d]: %s", i, strings.Join(unknown, ", "))
		}
	}

	if _, err := balancer.New(catalog, cfg.BalancerConfig()); err != nil {
		return err
	}

	if cfg.Storage.Driver == "postgres" && cfg.DSN() == "" {
		return fmt.Errorf("config validation failed: postgres storage needs dsn or dsnEnv")
	}

	return nil
}

// Catalog builds the capability and resource-type catalog
func (cfg *Config) Catalog() (*model.Catalog, error) {
	capabilities := make([]model.Capability, len(cfg.Capabilities))
	for i, c := range cfg.Capabilities {
		weight := c.Weight
		if weight == 0 {
			weight = 1
		}
		capabilities[i] = model.Capability{Name: c.Name, Weight: weight}
	}
	return model.NewCatalog(capabilities, cfg.ResourceTypes)
}

// BalancerConfig converts the selection policy
func (cfg *Config) BalancerConfig() balancer.Config {
	chains := make(map[string][]string, len(cfg.FallbackChains))
	for rt, nested := range cfg.FallbackChains {
		chains[rt] = balancer.Flatten(nested)
	}
	return balancer.Config{
		FallbackChains:            chains,
		ExcludedBy:                cfg.ExcludedBy,
		MinAssignments:            cfg.MinAssignments,
		OverflowBuffer:            time.Duration(cfg.OverflowBufferMinutes) * time.Minute,
		DefaultCapability:         cfg.DefaultCapability,
		DefaultWeightedMultiplier: cfg.DefaultWeightedMultiplier,
	}
}

// ResolveOptions converts the capability resolution switches
func (cfg *Config) ResolveOptions() capability.Options {
	return capability.Options{
		AllowExclusionOverride:  cfg.AllowExclusionOverride,
		KeepUnprocessedWeighted: cfg.KeepUnprocessedWeighted,
	}
}

// MinSegment returns the overlap-resolution threshold (0 = compiler default)
func (cfg *Config) MinSegment() time.Duration {
	return time.Duration(cfg.MinSegmentMinutes) * time.Minute
}

// Location returns the configured timezone, local time when unset
func (cfg *Config) Location() (*time.Location, error) {
	if cfg.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return loc, nil
}

// ResetClock returns the daily reset time as an offset from midnight (default 00:00)
func (cfg *Config) ResetClock() (time.Duration, error) {
	if cfg.DailyResetTime == "" {
		return 0, nil
	}
	d, err := interval.ParseClock(cfg.DailyResetTime)
	if err != nil || d >= 24*time.Hour {
		return 0, fmt.Errorf("invalid dailyResetTime %q", cfg.DailyResetTime)
	}
	return d, nil
}

// DSN returns the storage DSN, reading DSNEnv when no DSN is configured
func (cfg *Config) DSN() string {
	if cfg.Storage.DSN != "" {
		return cfg.Storage.DSN
	}
	if cfg.Storage.DSNEnv != "" {
		return os.Getenv(cfg.Storage.DSNEnv)
	}
	return ""
}

// ScheduleRules converts the configured rules, in priority order
func (cfg *Config) ScheduleRules() ([]schedule.Rule, error) {
	rules := make([]schedule.Rule, 0, len(cfg.Rules))
	for i, rc := range cfg.Rules {
		kind := schedule.KindShift
		if rc.Kind == "gap" {
			kind = schedule.KindGap
		}

		counts := kind == schedule.KindShift
		if rc.CountsTowardHours != nil {
			counts = *rc.CountsTowardHours
		}

		rule := schedule.Rule{
			Name:              rc.Name,
			Match:             rc.Match,
			Kind:              kind,
			Overrides:         rc.Overrides,
			CountsTowardHours: counts,
			Modifier:          rc.Modifier,
		}

		var err error
		if rule.DefaultStart, err = optionalClock(rc.Start); err != nil {
			return nil, fmt.Errorf("invalid start in rules[%d]: %w", i, err)
		}
		if rule.DefaultEnd, err = optionalClock(rc.End); err != nil {
			return nil, fmt.Errorf("invalid end in rules[%d]: %w", i, err)
		}

		if rc.RRule != "" {
			appliesOn, err := dayMatcher(rc.RRule)
			if err != nil {
				return nil, fmt.Errorf("failed to parse rrule for rules[%d]: %w", i, err)
			}
			rule.AppliesOn = appliesOn
		}

		rules = append(rules, rule)
	}
	return rules, nil
}

func optionalClock(text string) (*time.Duration, error) {
	if text == "" {
		return nil, nil
	}
	d, err := interval.ParseClock(text)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// dayMatcher returns a predicate reporting whether the rrule has an occurrence on a date
func dayMatcher(rule string) (func(time.Time) bool, error) {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, err
	}

	return func(date time.Time) bool {
		day := interval.StartOfDay(date)

		// Fresh rule per call: RRule values are not safe for concurrent use
		o := *opt
		o.Dtstart = day.AddDate(0, 0, -7)
		r, err := rrule.NewRRule(o)
		if err != nil {
			return false
		}
		return len(r.Between(day, day.AddDate(0, 0, 1).Add(-time.Nanosecond), true)) > 0
	}, nil
}

// findConfigFile searches for the config file in current directory and home directory
func findConfigFile(env string) (string, error) {
	return findFile(envFileName("balancer_config", env, "yaml"))
}

// envFileName builds "<base>.<ext>" or "<base>.<env>.<ext>"
func envFileName(base, env, ext string) string {
	if env == "" {
		return base + "." + ext
	}
	return base + "." + env + "." + ext
}

// findFile looks for name in the current directory, then in the user's home directory
func findFile(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homePath := filepath.Join(homeDir, name)
	if _, err := os.Stat(homePath); err == nil {
		return homePath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", name)
}
