package config

import "time"

// Config provides read-only access to application configuration.
// The app layer never sees where a value came from (file, ENV or default).
type Config interface {
	// Core settings
	Home() string         // Base directory (DEESTAGE_HOME)
	RegistryPath() string // Registry override file; empty uses the embedded default

	// Governor and loop ceilings; 0 keeps the registry defaults
	MaxRetries() int
	MaxIterations() int
	MaxConsecutiveErrors() int

	// Event log retention
	TimelineMaxEvents() int
	TimelineTrimEvery() int

	// Storage locking
	LockTimeout() time.Duration
	LockStaleAfter() time.Duration

	// Logging
	StderrLevel() string

	// Metadata
	ConfigSource() string // "file" or "default"
	SettingPath() string  // Path of the settings file if one was loaded
}

// AppConfig is the concrete implementation of Config
type AppConfig struct {
	home         string
	registryPath string

	maxRetries           int
	maxIterations        int
	maxConsecutiveErrors int

	timelineMaxEvents int
	timelineTrimEvery int

	lockTimeout    time.Duration
	lockStaleAfter time.Duration

	stderrLevel string

	configSource string
	settingPath  string
}

// Home returns the base directory
func (c *AppConfig) Home() string {
	return c.home
}

// RegistryPath returns the registry override file
func (c *AppConfig) RegistryPath() string {
	return c.registryPath
}

// MaxRetries returns the retry ceiling override
func (c *AppConfig) MaxRetries() int {
	return c.maxRetries
}

// MaxIterations returns the loop iteration ceiling override
func (c *AppConfig) MaxIterations() int {
	return c.maxIterations
}

// MaxConsecutiveErrors returns the consecutive error ceiling override
func (c *AppConfig) MaxConsecutiveErrors() int {
	return c.maxConsecutiveErrors
}

// TimelineMaxEvents returns how many events a trimmed log keeps
func (c *AppConfig) TimelineMaxEvents() int {
	return c.timelineMaxEvents
}

// TimelineTrimEvery returns the append interval between automatic trims
func (c *AppConfig) TimelineTrimEvery() int {
	return c.timelineTrimEvery
}

// LockTimeout returns how long a caller waits for a lock file
func (c *AppConfig) LockTimeout() time.Duration {
	return c.lockTimeout
}

// LockStaleAfter returns the age after which a lock file is considered abandoned
func (c *AppConfig) LockStaleAfter() time.Duration {
	return c.lockStaleAfter
}

// StderrLevel returns the stderr log level
func (c *AppConfig) StderrLevel() string {
	return c.stderrLevel
}

// ConfigSource returns the source of configuration
func (c *AppConfig) ConfigSource() string {
	return c.configSource
}

// SettingPath returns the settings file path if one was loaded
func (c *AppConfig) SettingPath() string {
	return c.settingPath
}

// NewAppConfig creates a new AppConfig with the given values.
// This is typically called by the infrastructure layer after merging sources.
func NewAppConfig(
	home, registryPath string,
	maxRetries, maxIterations, maxConsecutiveErrors int,
	timelineMaxEvents, timelineTrimEvery int,
	lockTimeout, lockStaleAfter time.Duration,
	stderrLevel string,
	configSource, settingPath string,
) *AppConfig {
	return &AppConfig{
		home:                 home,
		registryPath:         registryPath,
		maxRetries:           maxRetries,
		maxIterations:        maxIterations,
		maxConsecutiveErrors: maxConsecutiveErrors,
		timelineMaxEvents:    timelineMaxEvents,
		timelineTrimEvery:    timelineTrimEvery,
		lockTimeout:          lockTimeout,
		lockStaleAfter:       lockStaleAfter,
		stderrLevel:          stderrLevel,
		configSource:         configSource,
		settingPath:          settingPath,
	}
}
