package config

import "time"

// Config represents the complete bridge configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Bot      BotConfig      `toml:"bot"`
	Backend  BackendConfig  `toml:"backend"`
	Limits   LimitsConfig   `toml:"limits"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Plugins  PluginsConfig  `toml:"plugins"`
}

// ServerConfig contains IRC server connection settings
type ServerConfig struct {
	Address          string `toml:"address"`
	Port             int    `toml:"port"`
	TLS              bool   `toml:"tls"`
	Nickname         string `toml:"nickname"`
	Username         string `toml:"username"`
	Realname         string `toml:"realname"`
	MaxMessageLength int    `toml:"max_message_length"`
	PingFrequency    int    `toml:"ping_frequency"`
	PingTimeout      int    `toml:"ping_timeout"`
}

// AuthConfig contains authentication credentials
type AuthConfig struct {
	NickServPassword string `toml:"nickserv_password"`
}

// BotConfig contains bot behavior settings
type BotConfig struct {
	// Channel is the primary channel. It is joined first and receives
	// backend responses that carry no target.
	Channel       string   `toml:"channel"`
	Channels      []string `toml:"channels"`
	CommandPrefix string   `toml:"command_prefix"`
	ContextLines  int      `toml:"context_lines"`
	VersionFile   string   `toml:"version_file"`
}

// BackendConfig contains the command server transport settings
type BackendConfig struct {
	URL               string `toml:"url"`
	HandshakeTimeout  int    `toml:"handshake_timeout"`
	HeartbeatInterval int    `toml:"heartbeat_interval"`
	HeartbeatTimeout  int    `toml:"heartbeat_timeout"`
}

// LimitsConfig contains rate limiting and backoff settings
type LimitsConfig struct {
	SendLimitMS       int `toml:"send_limit_ms"`
	SendBurst         int `toml:"send_burst"`
	ReconnectDelayMin int `toml:"reconnect_delay_min"`
	ReconnectDelayMax int `toml:"reconnect_delay_max"`
	WhoisTimeout      int `toml:"whois_timeout"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path                 string `toml:"path"`
	VacuumInterval       int    `toml:"vacuum_interval"`
	MessageRetentionDays int    `toml:"message_retention_days"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	ErrorLog     string `toml:"error_log"`
	MaxLogSizeMB int    `toml:"max_log_size_mb"`
	MaxLogFiles  int    `toml:"max_log_files"`
	Traffic      bool   `toml:"traffic"`
}

// PluginsConfig controls runtime bundle loading
type PluginsConfig struct {
	Dir            string   `toml:"dir"`
	Autoload       bool     `toml:"autoload"`
	Watch          bool     `toml:"watch"`
	AllowFetch     bool     `toml:"allow_fetch"`
	AllowedHosts   []string `toml:"allowed_hosts"`
	AllowedImports []string `toml:"allowed_imports"`
	MaxFetchKB     int      `toml:"max_fetch_kb"`
}

// GetPingFrequencyDuration returns the client ping frequency as a time.Duration
func (c *ServerConfig) GetPingFrequencyDuration() time.Duration {
	return time.Duration(c.PingFrequency) * time.Second
}

// GetPingTimeoutDuration returns the client ping timeout as a time.Duration
func (c *ServerConfig) GetPingTimeoutDuration() time.Duration {
	return time.Duration(c.PingTimeout) * time.Second
}

// GetHandshakeTimeoutDuration returns the websocket handshake timeout
func (c *BackendConfig) GetHandshakeTimeoutDuration() time.Duration {
	return time.Duration(c.HandshakeTimeout) * time.Second
}

// GetHeartbeatIntervalDuration returns the heartbeat interval as a time.Duration
func (c *BackendConfig) GetHeartbeatIntervalDuration() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

// GetHeartbeatTimeoutDuration returns the heartbeat reply timeout as a time.Duration
func (c *BackendConfig) GetHeartbeatTimeoutDuration() time.Duration {
	return time.Duration(c.HeartbeatTimeout) * time.Second
}

// GetSendLimitDuration returns the outbound IRC send interval
func (c *LimitsConfig) GetSendLimitDuration() time.Duration {
	return time.Duration(c.SendLimitMS) * time.Millisecond
}

// GetReconnectDelayMinDuration returns the minimum reconnect delay as a time.Duration
func (c *LimitsConfig) GetReconnectDelayMinDuration() time.Duration {
	return time.Duration(c.ReconnectDelayMin) * time.Second
}

// GetReconnectDelayMaxDuration returns the maximum reconnect delay as a time.Duration
func (c *LimitsConfig) GetReconnectDelayMaxDuration() time.Duration {
	return time.Duration(c.ReconnectDelayMax) * time.Second
}

// GetWhoisTimeoutDuration returns how long a pending admin lookup may wait
func (c *LimitsConfig) GetWhoisTimeoutDuration() time.Duration {
	return time.Duration(c.WhoisTimeout) * time.Second
}

// GetVacuumIntervalDuration returns the vacuum interval as a time.Duration
func (c *DatabaseConfig) GetVacuumIntervalDuration() time.Duration {
	return time.Duration(c.VacuumInterval) * time.Second
}
