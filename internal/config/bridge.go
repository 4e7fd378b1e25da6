package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BridgeConfig holds configuration for the gmbridge host side.
type BridgeConfig struct {
	ConfigFile string `yaml:"-"`
	LogLevel   string `yaml:"log_level"`
	LogJSON    bool   `yaml:"log_json"`

	// Transport selects how the client reaches the bridge: "tcp" or "ws".
	Transport    string        `yaml:"transport"`
	ListenAddr   string        `yaml:"listen_addr"`
	WSPath       string        `yaml:"ws_path"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// PollWait bounds how long a receive waits for a command while a reply
	// is outstanding.
	PollWait time.Duration `yaml:"poll_wait"`

	DebugCheck          bool          `yaml:"debug_check"`
	PauseTimeout        time.Duration `yaml:"pause_timeout"`
	KeepaliveInterval   time.Duration `yaml:"keepalive_interval"`
	KeepaliveMinSkip    int           `yaml:"keepalive_min_skip"`
	TickInterval        time.Duration `yaml:"tick_interval"`
	StatusAddr          string        `yaml:"status_addr"`
	MetricsAddr         string        `yaml:"metrics_addr"`
	AllowedOrigins      []string      `yaml:"allowed_origins"`
	RedisAddr           string        `yaml:"redis_addr"`
	TraceExporter       string        `yaml:"trace_exporter"`
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"`
}

// SetDefaults initializes c with built-in defaults.
func (c *BridgeConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Transport == "" {
		c.Transport = "tcp"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8383"
	}
	if c.WSPath == "" {
		c.WSPath = "/gamemode"
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PollWait == 0 {
		c.PollWait = 10 * time.Millisecond
	}
	if c.PauseTimeout == 0 {
		c.PauseTimeout = 5 * time.Second
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = 7 * time.Second
	}
	if c.KeepaliveMinSkip == 0 {
		c.KeepaliveMinSkip = 50
	}
	if c.TickInterval == 0 {
		c.TickInterval = 5 * time.Millisecond
	}
	if c.TraceExporter == "" {
		c.TraceExporter = "none"
	}
	if c.ShutdownGracePeriod == 0 {
		c.ShutdownGracePeriod = 5 * time.Second
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("bridge.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *BridgeConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("LOG_JSON", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LogJSON = b
		}
	}
	if v := GetEnv("BRIDGE_TRANSPORT", ""); v != "" {
		c.Transport = strings.ToLower(v)
	}
	if v := GetEnv("BRIDGE_LISTEN", ""); v != "" {
		c.ListenAddr = v
	}
	if v := GetEnv("WS_PATH", ""); v != "" {
		c.WSPath = v
	}
	if v := GetEnv("DEBUG_CHECK", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DebugCheck = b
		}
	}
	if v := GetEnv("TICK_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.TickInterval = d
		}
	}
	if v := GetEnv("POLL_WAIT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PollWait = d
		}
	}
	if v := GetEnv("WRITE_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WriteTimeout = d
		}
	}
	if v := GetEnv("PAUSE_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PauseTimeout = d
		}
	}
	if v := GetEnv("STATUS_PORT", ""); v != "" {
		c.StatusAddr = listenAddr(v)
	}
	if v := GetEnv("METRICS_PORT", ""); v != "" {
		c.MetricsAddr = listenAddr(v)
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := GetEnv("TRACE_EXPORTER", ""); v != "" {
		c.TraceExporter = strings.ToLower(v)
	}
}

// BindFlagsFromCurrent binds command line flags using the current config values as defaults.
func (c *BridgeConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "bridge config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.BoolVar(&c.LogJSON, "log-json", c.LogJSON, "write JSON log lines instead of console output")
	fs.StringVar(&c.Transport, "transport", c.Transport, "client transport (tcp, ws)")
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "address the game mode client connects to")
	fs.StringVar(&c.WSPath, "ws-path", c.WSPath, "HTTP path of the websocket transport")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "maximum time to send one command")
	fs.DurationVar(&c.PollWait, "poll-wait", c.PollWait, "receive wait while a reply is outstanding")
	fs.BoolVar(&c.DebugCheck, "debug-check", c.DebugCheck, "throttle ticks while the client appears paused in a debugger")
	fs.DurationVar(&c.PauseTimeout, "pause-timeout", c.PauseTimeout, "client silence before it is considered paused")
	fs.DurationVar(&c.KeepaliveInterval, "keepalive-interval", c.KeepaliveInterval, "minimum time between keepalive ticks while paused")
	fs.IntVar(&c.KeepaliveMinSkip, "keepalive-min-skip", c.KeepaliveMinSkip, "ticks skipped before a keepalive tick is sent while paused")
	fs.DurationVar(&c.TickInterval, "tick-interval", c.TickInterval, "host tick period of the headless host")
	fs.StringVar(&c.StatusAddr, "status-addr", c.StatusAddr, "status HTTP listen address; empty to disable")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Prometheus metrics listen address; empty to disable")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for the status store")
	fs.StringVar(&c.TraceExporter, "trace-exporter", c.TraceExporter, "OpenTelemetry exporter (none, stdout)")
	fs.DurationVar(&c.ShutdownGracePeriod, "shutdown-grace", c.ShutdownGracePeriod, "time allowed for the client to observe shutdown")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins for the status server", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
}

// LoadFile populates the config from a YAML file.
func (c *BridgeConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

func listenAddr(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
