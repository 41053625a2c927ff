package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Store drivers accepted in [StoreConfig.Driver].
const (
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
	DriverRedis    = "redis"
)

// Playback controllers accepted in [PlaybackConfig.Controller].
const (
	ControllerNone    = "none"
	ControllerSpotify = "spotify"
	ControllerApple   = "apple"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Store       StoreConfig       `toml:"store"`
	Database    DatabaseConfig    `toml:"database"`
	Supabase    SupabaseConfig    `toml:"supabase"`
	Redis       RedisConfig       `toml:"redis"`
	Credentials CredentialsConfig `toml:"credentials"`
	Playback    PlaybackConfig    `toml:"playback"`
	Sync        SyncConfig        `toml:"sync"`
	User        UserConfig        `toml:"user"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// StoreConfig selects the RoomStore backend.
type StoreConfig struct {
	Driver string `toml:"driver"`
}

// DatabaseConfig contains database connection settings for the sqlite store.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SupabaseConfig contains the hosted backend project settings.
type SupabaseConfig struct {
	URL               string  `toml:"url"`
	AnonKey           string  `toml:"anon_key"`
	FunctionsBase     string  `toml:"functions_base"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// FunctionsURL returns the edge functions base URL, defaulting to {url}/functions/v1.
func (s SupabaseConfig) FunctionsURL() string {
	if s.FunctionsBase != "" {
		return s.FunctionsBase
	}
	return s.URL + "/functions/v1"
}

// RedisConfig contains redis connection settings for the redis store.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Apple   AppleConfig   `toml:"apple"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// AppleConfig contains Apple Music developer credentials and the device bridge address.
type AppleConfig struct {
	TeamID         string `toml:"team_id"`
	KeyID          string `toml:"key_id"`
	PrivateKeyPath string `toml:"private_key_path"`
	Storefront     string `toml:"storefront"`
	RemoteURL      string `toml:"remote_url"`
}

// PlaybackConfig selects the native playback controller.
type PlaybackConfig struct {
	Controller string `toml:"controller"`
}

// SyncConfig tunes the room synchronization engine.
type SyncConfig struct {
	TickIntervalMs   int  `toml:"tick_interval_ms"`
	ResyncIntervalMs int  `toml:"resync_interval_ms"`
	DriftToleranceMs int  `toml:"drift_tolerance_ms"`
	Reconcile        bool `toml:"reconcile"`
}

// TickInterval returns the projection tick as a [time.Duration], defaulting to one second.
func (s SyncConfig) TickInterval() time.Duration {
	if s.TickIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(s.TickIntervalMs) * time.Millisecond
}

// ResyncInterval returns the periodic re-read interval; zero disables re-reads.
func (s SyncConfig) ResyncInterval() time.Duration {
	if s.ResyncIntervalMs <= 0 {
		return 0
	}
	return time.Duration(s.ResyncIntervalMs) * time.Millisecond
}

// UserConfig identifies the local participant.
type UserConfig struct {
	Username string `toml:"username"`
}

// ServerConfig contains the OAuth callback server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects unknown store drivers and playback controllers.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverSupabase, DriverRedis:
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}

	switch c.Playback.Controller {
	case ControllerNone, ControllerSpotify, ControllerApple:
	default:
		return fmt.Errorf("%w: unknown playback controller %q", ErrInvalidConfig, c.Playback.Controller)
	}

	if c.Store.Driver == DriverSupabase && (c.Supabase.URL == "" || c.Supabase.AnonKey == "") {
		return fmt.Errorf("%w: supabase store requires url and anon_key", ErrMissingConfig)
	}

	return nil
}
