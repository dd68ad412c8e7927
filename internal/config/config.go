// Package config provides configuration management for the Datum sync
// engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/ini.v1"

	"github.com/datumcloud/datum-sync/internal/constants"
)

// Config is the sync engine configuration.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\datum\syncconfig
//   - Unix: ~/.config/datum/syncconfig
//
// INI format:
//
//	[datum]
//	entry_addr = cloud.datum.example
//	entry_port = 8080
//
//	[datum.proxy]
//	mode = no-proxy
//	host =
//	port = 0
//	username =
//	password =
//
//	[datum.sync]
//	heartbeat_short_seconds = 30
//	heartbeat_long_seconds = 300
//	section_page_size = 50
//	search_capacity = 4
type Config struct {
	// EntryAddr is the address used for first contact (login/register)
	// before any host record exists locally.
	EntryAddr string `ini:"entry_addr"`

	// EntryPort is the http port paired with EntryAddr.
	EntryPort int `ini:"entry_port"`

	Proxy ProxyConfig
	Sync  SyncConfig
}

// ProxyConfig selects how outbound requests reach the cluster.
type ProxyConfig struct {
	// Mode is one of "no-proxy", "system", "basic", "ntlm".
	Mode string `ini:"mode"`

	Host     string `ini:"host"`
	Port     int    `ini:"port"`
	Username string `ini:"username"`
	Password string `ini:"password"`
}

// SyncConfig carries the scheduler and listing tunables.
type SyncConfig struct {
	// HeartbeatShortSeconds is the reschedule delay on unmetered,
	// foregrounded runs.
	HeartbeatShortSeconds int `ini:"heartbeat_short_seconds"`

	// HeartbeatLongSeconds is the reschedule delay otherwise.
	HeartbeatLongSeconds int `ini:"heartbeat_long_seconds"`

	// SectionPageSize is the page size for /datum/section fetches.
	SectionPageSize int `ini:"section_page_size"`

	// SearchCapacity bounds the retained search sessions.
	SearchCapacity int `ini:"search_capacity"`
}

// Validation errors
var (
	ErrMissingEntryAddr   = errors.New("entry_addr is required")
	ErrInvalidEntryPort   = errors.New("entry_port must be between 1 and 65535")
	ErrInvalidProxyMode   = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost   = errors.New("proxy host is required for basic and ntlm modes")
	ErrInvalidDelays      = errors.New("heartbeat delays must be positive, short <= long")
	ErrInvalidPageSize    = errors.New("section_page_size must be between 1 and 1000")
	ErrInvalidSearchBound = errors.New("search_capacity must be at least 1")
)

// DefaultConfigPath returns the default path for the syncconfig file.
// - Windows: %USERPROFILE%\.config\datum\syncconfig
// - Unix: ~/.config/datum/syncconfig
func DefaultConfigPath() (string, error) {
	var configDir string

	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		configDir = filepath.Join(userProfile, ".config", "datum")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "datum")
	}

	return filepath.Join(configDir, "syncconfig"), nil
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		EntryPort: 8080,
		Proxy: ProxyConfig{
			Mode: "no-proxy",
		},
		Sync: SyncConfig{
			HeartbeatShortSeconds: int(constants.HeartbeatShortDelay.Seconds()),
			HeartbeatLongSeconds:  int(constants.HeartbeatLongDelay.Seconds()),
			SectionPageSize:       constants.SectionPageSize,
			SearchCapacity:        constants.SearchSessionCapacity,
		},
	}
}

// Load loads configuration from an INI file. A missing file yields the
// defaults and no error; an unreadable or malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load syncconfig: %w", err)
	}

	datumSection := iniFile.Section("datum")
	cfg.EntryAddr = datumSection.Key("entry_addr").String()
	cfg.EntryPort = datumSection.Key("entry_port").MustInt(cfg.EntryPort)

	proxySection := iniFile.Section("datum.proxy")
	cfg.Proxy.Mode = proxySection.Key("mode").MustString(cfg.Proxy.Mode)
	cfg.Proxy.Host = proxySection.Key("host").String()
	cfg.Proxy.Port = proxySection.Key("port").MustInt(0)
	cfg.Proxy.Username = proxySection.Key("username").String()
	cfg.Proxy.Password = proxySection.Key("password").String()

	syncSection := iniFile.Section("datum.sync")
	cfg.Sync.HeartbeatShortSeconds = syncSection.Key("heartbeat_short_seconds").MustInt(cfg.Sync.HeartbeatShortSeconds)
	cfg.Sync.HeartbeatLongSeconds = syncSection.Key("heartbeat_long_seconds").MustInt(cfg.Sync.HeartbeatLongSeconds)
	cfg.Sync.SectionPageSize = syncSection.Key("section_page_size").MustInt(cfg.Sync.SectionPageSize)
	cfg.Sync.SearchCapacity = syncSection.Key("search_capacity").MustInt(cfg.Sync.SearchCapacity)

	return cfg, nil
}

// Save writes configuration to an INI file, creating parent directories
// as needed. Proxy credentials live in this file, so permissions are
// restricted on Unix.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	datumSection, err := iniFile.NewSection("datum")
	if err != nil {
		return fmt.Errorf("failed to create datum section: %w", err)
	}
	datumSection.Key("entry_addr").SetValue(cfg.EntryAddr)
	datumSection.Key("entry_port").SetValue(fmt.Sprintf("%d", cfg.EntryPort))

	proxySection, err := iniFile.NewSection("datum.proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxySection.Key("mode").SetValue(cfg.Proxy.Mode)
	proxySection.Key("host").SetValue(cfg.Proxy.Host)
	proxySection.Key("port").SetValue(fmt.Sprintf("%d", cfg.Proxy.Port))
	proxySection.Key("username").SetValue(cfg.Proxy.Username)
	proxySection.Key("password").SetValue(cfg.Proxy.Password)

	syncSection, err := iniFile.NewSection("datum.sync")
	if err != nil {
		return fmt.Errorf("failed to create sync section: %w", err)
	}
	syncSection.Key("heartbeat_short_seconds").SetValue(fmt.Sprintf("%d", cfg.Sync.HeartbeatShortSeconds))
	syncSection.Key("heartbeat_long_seconds").SetValue(fmt.Sprintf("%d", cfg.Sync.HeartbeatLongSeconds))
	syncSection.Key("section_page_size").SetValue(fmt.Sprintf("%d", cfg.Sync.SectionPageSize))
	syncSection.Key("search_capacity").SetValue(fmt.Sprintf("%d", cfg.Sync.SearchCapacity))

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config: %w", err)
	}

	return nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.EntryAddr == "" {
		return ErrMissingEntryAddr
	}
	if c.EntryPort < 1 || c.EntryPort > 65535 {
		return ErrInvalidEntryPort
	}

	switch c.Proxy.Mode {
	case "no-proxy", "", "system":
	case "basic", "ntlm":
		if c.Proxy.Host == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}

	if c.Sync.HeartbeatShortSeconds <= 0 || c.Sync.HeartbeatLongSeconds <= 0 ||
		c.Sync.HeartbeatShortSeconds > c.Sync.HeartbeatLongSeconds {
		return ErrInvalidDelays
	}
	if c.Sync.SectionPageSize < 1 || c.Sync.SectionPageSize > 1000 {
		return ErrInvalidPageSize
	}
	if c.Sync.SearchCapacity < 1 {
		return ErrInvalidSearchBound
	}

	return nil
}
