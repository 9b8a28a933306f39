package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds. The kind drives sanitization in the normalizer.
const (
	KindCourse    = "course"
	KindPeople    = "people"
	KindCanonical = "canonical"
	KindSpecial   = "special"
)

// SourceConfig describes a single calendar feed.
type SourceConfig struct {
	// ID is an internal identifier used for de-dup, matching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Group is the track the feed belongs to ("A", "B"), or "*" for all.
	Group string `yaml:"group,omitempty" json:"group,omitempty"`
	// Kind is one of course, people, canonical, special.
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`
	// URL is the explicit override location, fetched over HTTP.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// File is a local override path. Defaults to <feed_dir>/<id>.ics.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
	// LegacyID is retried once when the primary resolution yields nothing.
	LegacyID string `yaml:"legacy_id,omitempty" json:"legacy_id,omitempty"`
}

// AuthoritativeConfig names the feed that is ground truth for one
// cross-cutting event category.
type AuthoritativeConfig struct {
	Source string `yaml:"source" json:"source"`
	// Keyword identifies records owned by Source; copies in people and
	// canonical feeds are dropped.
	Keyword string `yaml:"keyword" json:"keyword"`
	// HorizonDays bounds injection of authoritative events past the window.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// WindowConfig controls the date-window filter.
type WindowConfig struct {
	LookbackDays int `yaml:"lookback_days" json:"lookback_days"`
	DaysAhead    int `yaml:"days_ahead" json:"days_ahead"`
	MaxEvents    int `yaml:"max_events" json:"max_events"`
}

// SyntheticCategory is one row of the synthetic-content table: a series that
// started on Start and is numbered by week.
type SyntheticCategory struct {
	Start       string `yaml:"start" json:"start"` // YYYY-MM-DD
	TitleFormat string `yaml:"title_format" json:"title_format"`
	URLFormat   string `yaml:"url_format,omitempty" json:"url_format,omitempty"`
}

// MatchConfig controls the fuzzy matcher.
type MatchConfig struct {
	Threshold       float64  `yaml:"threshold" json:"threshold"`
	VerbatimSources []string `yaml:"verbatim_sources" json:"verbatim_sources"`
	// Synthetic maps group -> source id -> series.
	Synthetic map[string]map[string]SyntheticCategory `yaml:"synthetic,omitempty" json:"synthetic,omitempty"`
}

// AIConfig holds model-chain settings.
type AIConfig struct {
	APIKey      string   `yaml:"api_key,omitempty" json:"-"`
	Models      []string `yaml:"models" json:"models"`
	Temperature float32  `yaml:"temperature" json:"temperature"`
	// OrganizerTTL is how long organized digests are cached (Go duration).
	OrganizerTTL string `yaml:"organizer_ttl" json:"organizer_ttl"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend   string `yaml:"backend" json:"backend"` // memory | redis
	RedisAddr string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	WeeklyTTL string `yaml:"weekly_ttl" json:"weekly_ttl"`
}

// DigestConfig controls the weekly analyzer.
type DigestConfig struct {
	SocialSources []string `yaml:"social_sources" json:"social_sources"`
	NoisePatterns []string `yaml:"noise_patterns" json:"noise_patterns"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for calendar-day keys.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is the weekly boundary day ("sunday", "monday", ...).
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule for warming the pipeline.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// FeedDir holds local override files named <source id>.ics.
	FeedDir string `yaml:"feed_dir" json:"feed_dir"`
	// CacheDir holds the HTTP conditional-request cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Groups    []string       `yaml:"groups" json:"groups"`
	Sources   []SourceConfig `yaml:"sources" json:"sources"`
	Reference SourceConfig   `yaml:"reference" json:"reference"`

	Authoritative AuthoritativeConfig `yaml:"authoritative" json:"authoritative"`
	Window        WindowConfig        `yaml:"window" json:"window"`
	Match         MatchConfig         `yaml:"match" json:"match"`
	AI            AIConfig            `yaml:"ai" json:"ai"`
	Cache         CacheConfig         `yaml:"cache" json:"cache"`
	Digest        DigestConfig        `yaml:"digest" json:"digest"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

var (
	defaultModels        = []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-flash-lite-latest"}
	defaultSocialSources = []string{"eventbrite", "luma", "meetup", "partiful"}
	defaultNoisePatterns = []string{`weekly digest`, `weekly (update|roundup|newsletter)`, `advisory`, `this week at`}
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "America/Los_Angeles",
		WeekStart:   "sunday",
		RefreshCron: "*/30 * * * *",
		LogLevel:    "info",
		FeedDir:     "/var/lib/weekcal/feeds",
		CacheDir:    "/var/lib/weekcal/http-cache",
		Groups:      []string{"A", "B"},
		Sources:     []SourceConfig{},
		Authoritative: AuthoritativeConfig{
			HorizonDays: 365,
		},
		AI: AIConfig{
			Temperature: 0.2,
		},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "America/Los_Angeles"
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	if _, ok := weekdays[c.WeekStart]; !ok {
		// Unknown value; fall back to sunday.
		c.WeekStart = "sunday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/30 * * * *"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Groups) == 0 {
		c.Groups = []string{"A", "B"}
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		if c.Sources[i].Kind == "" {
			c.Sources[i].Kind = KindCourse
		}
	}
	if c.Reference.ID != "" && c.Reference.Kind == "" {
		c.Reference.Kind = KindCanonical
	}
	if c.Authoritative.HorizonDays <= 0 {
		c.Authoritative.HorizonDays = 365
	}
	if c.Window.LookbackDays <= 0 {
		c.Window.LookbackDays = 30
	}
	if c.Window.DaysAhead <= 0 {
		c.Window.DaysAhead = 14
	}
	if c.Window.MaxEvents <= 0 {
		c.Window.MaxEvents = 200
	}
	if c.Match.Threshold <= 0 {
		c.Match.Threshold = 0.3
	}
	if c.Match.VerbatimSources == nil {
		c.Match.VerbatimSources = []string{}
	}
	if len(c.AI.Models) == 0 {
		c.AI.Models = append([]string(nil), defaultModels...)
	}
	// Zero is a valid deterministic setting; only negatives mean unset.
	if c.AI.Temperature < 0 {
		c.AI.Temperature = 0.2
	}
	if _, err := time.ParseDuration(c.AI.OrganizerTTL); err != nil {
		c.AI.OrganizerTTL = "24h"
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		c.Cache.Backend = "memory"
	}
	if _, err := time.ParseDuration(c.Cache.WeeklyTTL); err != nil {
		c.Cache.WeeklyTTL = "24h"
	}
	if c.Digest.SocialSources == nil {
		c.Digest.SocialSources = append([]string(nil), defaultSocialSources...)
	}
	if c.Digest.NoisePatterns == nil {
		c.Digest.NoisePatterns = append([]string(nil), defaultNoisePatterns...)
	}
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// WeekBoundary returns the configured boundary weekday.
func (c *Config) WeekBoundary() time.Weekday {
	if d, ok := weekdays[c.WeekStart]; ok {
		return d
	}
	return time.Sunday
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// OrganizerTTL returns the parsed organizer cache TTL.
func (c *Config) OrganizerTTL() time.Duration {
	d, err := time.ParseDuration(c.AI.OrganizerTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// WeeklyTTL returns the parsed weekly-result cache TTL.
func (c *Config) WeeklyTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.WeeklyTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// AllGroups tags a source that feeds every group.
const AllGroups = "*"

// SourcesForGroup returns the configured feeds tagged with group, plus the
// feeds tagged AllGroups with their Group rewritten to group.
func (c *Config) SourcesForGroup(group string) []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		switch s.Group {
		case group:
			out = append(out, s)
		case AllGroups:
			s.Group = group
			out = append(out, s)
		}
	}
	return out
}

// ApplyEnv overrides secrets from the environment.
func (c *Config) ApplyEnv() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.AI.APIKey = key
	} else if key := os.Getenv("GOOGLE_AI_API_KEY"); key != "" && c.AI.APIKey == "" {
		c.AI.APIKey = key
	}
	if addr := os.Getenv("WEEKCAL_REDIS_ADDR"); addr != "" {
		c.Cache.RedisAddr = addr
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Keys missing from the file keep their defaults; explicit zeros stay.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".weekcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
