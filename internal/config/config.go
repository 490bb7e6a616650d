package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultPath is used when no --config flag is given
	DefaultPath = "config/bridge.toml"
)

// Load reads and parses the configuration file from the specified path.
// If path is empty, it uses the default path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found at %s", path)
	}

	// Decode over the defaults so sections missing from older files keep working values
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrCreate attempts to load the configuration file, and if it doesn't exist,
// creates a default configuration file and returns the default config.
func LoadOrCreate(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("Configuration file not found. Creating default configuration at %s\n", path)

		defaultCfg := DefaultConfig()
		if err := Save(path, defaultCfg); err != nil {
			return nil, fmt.Errorf("failed to create default configuration: %w", err)
		}

		return defaultCfg, nil
	}

	return Load(path)
}

// Save writes the configuration to path, creating parent directories.
// The file is written to a temporary sibling first and renamed into place.
func Save(path string, cfg *Config) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close config file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults for Libera.Chat
// and a command server on the local machine
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:          "irc.libera.chat",
			Port:             6697,
			TLS:              true,
			Nickname:         "Lolo",
			Username:         "lolo",
			Realname:         "Lolo IRC Bridge",
			MaxMessageLength: 400, // Libera.Chat specific: 400 bytes for safety
			PingFrequency:    60,
			PingTimeout:      30,
		},
		Bot: BotConfig{
			Channel:       "#yourchannel",
			Channels:      []string{},
			CommandPrefix: "!",
			ContextLines:  50,
			VersionFile:   "VERSION",
		},
		Backend: BackendConfig{
			URL:               "ws://localhost:8765",
			HandshakeTimeout:  10,
			HeartbeatInterval: 60,
			HeartbeatTimeout:  10,
		},
		Limits: LimitsConfig{
			SendLimitMS:       500,
			SendBurst:         4,
			ReconnectDelayMin: 1,
			ReconnectDelayMax: 60,
			WhoisTimeout:      120,
		},
		Database: DatabaseConfig{
			Path:                 "data/bridge.db",
			VacuumInterval:       86400, // 24 hours in seconds
			MessageRetentionDays: 90,
		},
		Logging: LoggingConfig{
			ErrorLog:     "data/error.log",
			MaxLogSizeMB: 10,
			MaxLogFiles:  5,
		},
		Plugins: PluginsConfig{
			Dir:          "plugins",
			Autoload:     true,
			Watch:        false,
			AllowFetch:   false,
			AllowedHosts: []string{"raw.githubusercontent.com"},
			AllowedImports: []string{
				"fmt", "strings", "strconv", "time", "math", "math/rand",
				"unicode", "unicode/utf8", "sort", "errors", "regexp",
			},
			MaxFetchKB: 256,
		},
	}
}

// validate checks that all required configuration fields are present and valid
func validate(cfg *Config) error {
	// Validate server settings
	if cfg.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.Nickname == "" {
		return fmt.Errorf("server.nickname is required")
	}
	if cfg.Server.Username == "" {
		return fmt.Errorf("server.username is required")
	}
	if cfg.Server.Realname == "" {
		return fmt.Errorf("server.realname is required")
	}
	if cfg.Server.MaxMessageLength <= 0 {
		return fmt.Errorf("server.max_message_length must be positive, got %d", cfg.Server.MaxMessageLength)
	}
	if cfg.Server.PingFrequency < 0 || cfg.Server.PingTimeout < 0 {
		return fmt.Errorf("server.ping_frequency and server.ping_timeout must be non-negative")
	}

	// Validate bot settings
	if !IsChannel(cfg.Bot.Channel) {
		return fmt.Errorf("bot.channel must be a channel name starting with # or &, got %q", cfg.Bot.Channel)
	}
	for _, ch := range cfg.Bot.Channels {
		if !IsChannel(ch) {
			return fmt.Errorf("bot.channels entry %q is not a channel name", ch)
		}
	}
	if cfg.Bot.CommandPrefix == "" {
		return fmt.Errorf("bot.command_prefix is required")
	}
	if strings.ContainsAny(cfg.Bot.CommandPrefix, " \t") {
		return fmt.Errorf("bot.command_prefix must not contain whitespace")
	}
	if cfg.Bot.ContextLines < 0 {
		return fmt.Errorf("bot.context_lines must be non-negative, got %d", cfg.Bot.ContextLines)
	}

	// Validate backend settings
	u, err := url.Parse(cfg.Backend.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("backend.url must be a ws:// or wss:// URL, got %q", cfg.Backend.URL)
	}
	if cfg.Backend.HandshakeTimeout <= 0 {
		return fmt.Errorf("backend.handshake_timeout must be positive, got %d", cfg.Backend.HandshakeTimeout)
	}
	if cfg.Backend.HeartbeatInterval <= 0 {
		return fmt.Errorf("backend.heartbeat_interval must be positive, got %d", cfg.Backend.HeartbeatInterval)
	}
	if cfg.Backend.HeartbeatTimeout <= 0 {
		return fmt.Errorf("backend.heartbeat_timeout must be positive, got %d", cfg.Backend.HeartbeatTimeout)
	}

	// Validate limits
	if cfg.Limits.SendLimitMS < 0 {
		return fmt.Errorf("limits.send_limit_ms must be non-negative, got %d", cfg.Limits.SendLimitMS)
	}
	if cfg.Limits.SendBurst < 0 {
		return fmt.Errorf("limits.send_burst must be non-negative, got %d", cfg.Limits.SendBurst)
	}
	if cfg.Limits.ReconnectDelayMin <= 0 {
		return fmt.Errorf("limits.reconnect_delay_min must be positive, got %d", cfg.Limits.ReconnectDelayMin)
	}
	if cfg.Limits.ReconnectDelayMax <= 0 {
		return fmt.Errorf("limits.reconnect_delay_max must be positive, got %d", cfg.Limits.ReconnectDelayMax)
	}
	if cfg.Limits.ReconnectDelayMin > cfg.Limits.ReconnectDelayMax {
		return fmt.Errorf("limits.reconnect_delay_min (%d) cannot be greater than reconnect_delay_max (%d)",
			cfg.Limits.ReconnectDelayMin, cfg.Limits.ReconnectDelayMax)
	}
	if cfg.Limits.WhoisTimeout <= 0 {
		return fmt.Errorf("limits.whois_timeout must be positive, got %d", cfg.Limits.WhoisTimeout)
	}

	// Validate database settings
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if cfg.Database.VacuumInterval <= 0 {
		return fmt.Errorf("database.vacuum_interval must be positive, got %d", cfg.Database.VacuumInterval)
	}
	if cfg.Database.MessageRetentionDays <= 0 {
		return fmt.Errorf("database.message_retention_days must be positive, got %d", cfg.Database.MessageRetentionDays)
	}

	// Validate logging settings
	if cfg.Logging.ErrorLog == "" {
		return fmt.Errorf("logging.error_log is required")
	}
	if cfg.Logging.MaxLogSizeMB <= 0 {
		return fmt.Errorf("logging.max_log_size_mb must be positive, got %d", cfg.Logging.MaxLogSizeMB)
	}
	if cfg.Logging.MaxLogFiles <= 0 {
		return fmt.Errorf("logging.max_log_files must be positive, got %d", cfg.Logging.MaxLogFiles)
	}

	// Validate plugin settings
	if cfg.Plugins.Dir == "" {
		return fmt.Errorf("plugins.dir is required")
	}
	if cfg.Plugins.AllowFetch && len(cfg.Plugins.AllowedHosts) == 0 {
		return fmt.Errorf("plugins.allowed_hosts must list at least one host when plugins.allow_fetch is enabled")
	}
	if cfg.Plugins.MaxFetchKB <= 0 {
		return fmt.Errorf("plugins.max_fetch_kb must be positive, got %d", cfg.Plugins.MaxFetchKB)
	}

	return nil
}

// IsChannel reports whether target names a channel rather than a nick
func IsChannel(target string) bool {
	return strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
}
