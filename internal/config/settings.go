package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Settings defaults and bounds.
const (
	DefaultPathPrefix       = "go"
	DefaultPathLength       = 6
	MinPathLength           = 4
	MaxPathLength           = 12
	MaxPathPrefixLength     = 8
	DefaultRedirectStatus   = 301
	DefaultRetentionDays    = 90
	DefaultExpireDays       = 30
	DefaultMaxClicks        = 100
	DefaultInactiveDays     = 90
	ExpirationTypeNone      = "none"
	ExpirationTypeTime      = "time"
	ExpirationTypeMaxClicks = "max_clicks"
	ExpirationTypeInactive  = "inactive"
)

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Settings are the admin-editable module settings.
type Settings struct {
	PathPrefix           string             `mapstructure:"path_prefix" json:"path_prefix"`
	PathLength           int                `mapstructure:"path_length" json:"path_length"`
	RedirectStatus       int                `mapstructure:"redirect_status" json:"redirect_status"`
	AvailableEntityTypes []string           `mapstructure:"available_entity_types" json:"available_entity_types"`
	SiteRoutes           []string           `mapstructure:"site_routes" json:"site_routes"`
	Expiration           ExpirationSettings `mapstructure:"expiration" json:"expiration"`
	AutoGenerate         []AutoGenerateRule `mapstructure:"auto_generate" json:"auto_generate"`
}

// ExpirationSettings hold the sweep switch and default expiration policy.
type ExpirationSettings struct {
	Enabled               bool   `mapstructure:"enabled" json:"enabled"`
	DefaultType           string `mapstructure:"default_type" json:"default_type"`
	DefaultExpireDays     int    `mapstructure:"default_expire_days" json:"default_expire_days"`
	DefaultMaxClicks      int64  `mapstructure:"default_max_clicks" json:"default_max_clicks"`
	DefaultInactiveDays   int    `mapstructure:"default_inactive_days" json:"default_inactive_days"`
	ClickLogRetentionDays int    `mapstructure:"click_log_retention_days" json:"click_log_retention_days"`
}

// AutoGenerateRule selects targets that should always have shortlinks.
// An empty ParameterSets list creates one shortlink without parameters.
type AutoGenerateRule struct {
	EntityType    string   `mapstructure:"entity_type" json:"entity_type"`
	Bundle        string   `mapstructure:"bundle" json:"bundle"`
	ParameterSets []string `mapstructure:"parameter_sets" json:"parameter_sets"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() Settings {
	return Settings{
		PathPrefix:           DefaultPathPrefix,
		PathLength:           DefaultPathLength,
		RedirectStatus:       DefaultRedirectStatus,
		AvailableEntityTypes: []string{"node"},
		Expiration: ExpirationSettings{
			Enabled:               true,
			DefaultType:           ExpirationTypeNone,
			DefaultExpireDays:     DefaultExpireDays,
			DefaultMaxClicks:      DefaultMaxClicks,
			DefaultInactiveDays:   DefaultInactiveDays,
			ClickLogRetentionDays: DefaultRetentionDays,
		},
	}
}

// Normalize clamps out-of-range values to usable ones.
func (s *Settings) Normalize() {
	s.PathPrefix = strings.Trim(strings.TrimSpace(s.PathPrefix), "/")
	if s.PathPrefix == "" {
		s.PathPrefix = DefaultPathPrefix
	}
	if s.PathLength == 0 {
		s.PathLength = DefaultPathLength
	}
	s.PathLength = max(MinPathLength, min(MaxPathLength, s.PathLength))

	switch s.RedirectStatus {
	case 301, 307, 308:
	default:
		s.RedirectStatus = DefaultRedirectStatus
	}

	switch s.Expiration.DefaultType {
	case ExpirationTypeNone, ExpirationTypeTime, ExpirationTypeMaxClicks, ExpirationTypeInactive:
	default:
		s.Expiration.DefaultType = ExpirationTypeNone
	}
	s.Expiration.DefaultExpireDays = max(0, s.Expiration.DefaultExpireDays)
	s.Expiration.DefaultMaxClicks = max(0, s.Expiration.DefaultMaxClicks)
	s.Expiration.DefaultInactiveDays = max(0, s.Expiration.DefaultInactiveDays)
	s.Expiration.ClickLogRetentionDays = max(0, s.Expiration.ClickLogRetentionDays)
}

// Clone returns a copy that shares no slices with s.
func (s Settings) Clone() Settings {
	s.AvailableEntityTypes = slices.Clone(s.AvailableEntityTypes)
	s.SiteRoutes = slices.Clone(s.SiteRoutes)
	s.AutoGenerate = slices.Clone(s.AutoGenerate)
	for i := range s.AutoGenerate {
		s.AutoGenerate[i].ParameterSets = slices.Clone(s.AutoGenerate[i].ParameterSets)
	}
	return s
}

// Validate reports settings that cannot be normalized.
func (s *Settings) Validate() error {
	if len(s.PathPrefix) > MaxPathPrefixLength {
		return fmt.Errorf("path_prefix must be at most %d characters", MaxPathPrefixLength)
	}
	if !prefixPattern.MatchString(s.PathPrefix) {
		return errors.New("path_prefix may only contain letters, numbers, hyphens, and underscores")
	}
	for i, rule := range s.AutoGenerate {
		if rule.EntityType == "" {
			return fmt.Errorf("auto_generate[%d]: entity_type is required", i)
		}
	}
	return nil
}

// SettingsStore loads, watches and persists Settings through viper.
type SettingsStore struct {
	v       *viper.Viper
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Settings]
	mu      sync.Mutex
}

// LoadSettings reads the settings file at path. A missing file yields defaults.
func LoadSettings(path string, logger *zap.Logger) (*SettingsStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
		logger.Info("settings file not found, using defaults", zap.String("path", path))
	}

	s := &SettingsStore{
		v:      v,
		path:   path,
		logger: logger.With(zap.String("component", "config.settings")),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticSettings returns a store that only holds the given settings in memory.
func NewStaticSettings(settings Settings) *SettingsStore {
	settings.Normalize()
	s := &SettingsStore{logger: zap.NewNop()}
	s.current.Store(&settings)
	return s
}

// Current returns a copy of the active settings.
func (s *SettingsStore) Current() Settings {
	return *s.current.Load()
}

// Watch reloads settings whenever the file changes.
func (s *SettingsStore) Watch() {
	if s.v == nil {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.reload(); err != nil {
			s.logger.Warn("settings reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		s.logger.Info("settings reloaded", zap.String("file", e.Name))
	})
	s.v.WatchConfig()
}

// Update validates next, makes it active and writes it to the settings file.
func (s *SettingsStore) Update(next Settings) (Settings, error) {
	next.Normalize()
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.v != nil {
		s.v.Set("path_prefix", next.PathPrefix)
		s.v.Set("path_length", next.PathLength)
		s.v.Set("redirect_status", next.RedirectStatus)
		s.v.Set("available_entity_types", next.AvailableEntityTypes)
		s.v.Set("site_routes", next.SiteRoutes)
		s.v.Set("expiration.enabled", next.Expiration.Enabled)
		s.v.Set("expiration.default_type", next.Expiration.DefaultType)
		s.v.Set("expiration.default_expire_days", next.Expiration.DefaultExpireDays)
		s.v.Set("expiration.default_max_clicks", next.Expiration.DefaultMaxClicks)
		s.v.Set("expiration.default_inactive_days", next.Expiration.DefaultInactiveDays)
		s.v.Set("expiration.click_log_retention_days", next.Expiration.ClickLogRetentionDays)

		rules := make([]map[string]any, 0, len(next.AutoGenerate))
		for _, r := range next.AutoGenerate {
			rules = append(rules, map[string]any{
				"entity_type":    r.EntityType,
				"bundle":         r.Bundle,
				"parameter_sets": r.ParameterSets,
			})
		}
		s.v.Set("auto_generate", rules)

		if err := s.v.WriteConfigAs(s.path); err != nil {
			return Settings{}, fmt.Errorf("failed to write settings: %w", err)
		}
	}

	s.current.Store(&next)
	return next, nil
}

func (s *SettingsStore) reload() error {
	var settings Settings
	if err := s.v.Unmarshal(&settings); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	s.current.Store(&settings)
	return nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("path_prefix", d.PathPrefix)
	v.SetDefault("path_length", d.PathLength)
	v.SetDefault("redirect_status", d.RedirectStatus)
	v.SetDefault("available_entity_types", d.AvailableEntityTypes)
	v.SetDefault("site_routes", []string{})
	v.SetDefault("expiration.enabled", d.Expiration.Enabled)
	v.SetDefault("expiration.default_type", d.Expiration.DefaultType)
	v.SetDefault("expiration.default_expire_days", d.Expiration.DefaultExpireDays)
	v.SetDefault("expiration.default_max_clicks", d.Expiration.DefaultMaxClicks)
	v.SetDefault("expiration.default_inactive_days", d.Expiration.DefaultInactiveDays)
	v.SetDefault("expiration.click_log_retention_days", d.Expiration.ClickLogRetentionDays)
}
