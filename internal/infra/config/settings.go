package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/YoshitsuguKoike/deestage/internal/app/config"
)

// EnvPrefix namespaces environment overrides, e.g. DEESTAGE_MAX_RETRIES
const EnvPrefix = "DEESTAGE"

// Setting keys
const (
	KeyRegistryPath         = "registry_path"
	KeyMaxRetries           = "max_retries"
	KeyMaxIterations        = "max_iterations"
	KeyMaxConsecutiveErrors = "max_consecutive_errors"
	KeyTimelineMaxEvents    = "timeline_max_events"
	KeyTimelineTrimEvery    = "timeline_trim_every"
	KeyLockTimeout          = "lock_timeout"
	KeyLockStaleAfter       = "lock_stale_after"
	KeyStderrLevel          = "stderr_level"
)

// LoadSettings loads configuration from <baseDir>/setting.{yaml,json}, then
// environment overrides, then defaults. baseDir is already resolved by the
// caller and is never overridden here.
// Priority: ENV > setting file > defaults
func LoadSettings(afs afero.Fs, baseDir string) (*config.AppConfig, error) {
	v := viper.New()
	v.SetFs(afs)
	v.SetConfigName("setting")
	v.AddConfigPath(baseDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	applyDefaults(v)

	configSource := "default"
	settingPath := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to parse settings in %s: %w", baseDir, err)
		}
	} else {
		configSource = "file"
		settingPath = v.ConfigFileUsed()
	}

	if err := validate(v); err != nil {
		return nil, err
	}

	return config.NewAppConfig(
		baseDir,
		v.GetString(KeyRegistryPath),
		v.GetInt(KeyMaxRetries),
		v.GetInt(KeyMaxIterations),
		v.GetInt(KeyMaxConsecutiveErrors),
		v.GetInt(KeyTimelineMaxEvents),
		v.GetInt(KeyTimelineTrimEvery),
		v.GetDuration(KeyLockTimeout),
		v.GetDuration(KeyLockStaleAfter),
		v.GetString(KeyStderrLevel),
		configSource,
		settingPath,
	), nil
}

// applyDefaults registers every key so AutomaticEnv can see it
func applyDefaults(v *viper.Viper) {
	v.SetDefault(KeyRegistryPath, "")
	v.SetDefault(KeyMaxRetries, 0)
	v.SetDefault(KeyMaxIterations, 0)
	v.SetDefault(KeyMaxConsecutiveErrors, 0)
	v.SetDefault(KeyTimelineMaxEvents, 2000)
	v.SetDefault(KeyTimelineTrimEvery, 50)
	v.SetDefault(KeyLockTimeout, 5*time.Second)
	v.SetDefault(KeyLockStaleAfter, 30*time.Second)
	v.SetDefault(KeyStderrLevel, "warn") // Default to WARN level
}

func validate(v *viper.Viper) error {
	for _, key := range []string{KeyMaxRetries, KeyMaxIterations, KeyMaxConsecutiveErrors, KeyTimelineTrimEvery} {
		if v.GetInt(key) < 0 {
			return fmt.Errorf("setting %s must not be negative", key)
		}
	}
	if v.GetInt(KeyTimelineMaxEvents) < 1 {
		return fmt.Errorf("setting %s must be positive", KeyTimelineMaxEvents)
	}
	if v.GetDuration(KeyLockTimeout) <= 0 || v.GetDuration(KeyLockStaleAfter) <= 0 {
		return fmt.Errorf("settings %s and %s must be positive durations", KeyLockTimeout, KeyLockStaleAfter)
	}
	return nil
}

// CreateDefaultSettings returns the content of a default setting.yaml
func CreateDefaultSettings() []byte {
	return []byte(`# deestage settings; every key can be overridden with DEESTAGE_<KEY>
registry_path: ""
max_retries: 0          # 0 keeps the registry default
max_iterations: 0
max_consecutive_errors: 0
timeline_max_events: 2000
timeline_trim_every: 50
lock_timeout: 5s
lock_stale_after: 30s
stderr_level: warn
`)
}
