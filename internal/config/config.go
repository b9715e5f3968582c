// Package config provides the center and edge configuration. Values come
// from an optional JSON/YAML file, are overridden by RFIDGATE_* environment
// variables, fall back to defaults, and are validated before use.
//
// Reader-keyed maps (reader_schedules, relay.mapping) are matched
// case-insensitively because the loader lowercases map keys.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RFIDGATE_DEDUP_WINDOW_SEC.
const EnvPrefix = "RFIDGATE"

// Schedule modes.
const (
	ModeAlways = "always"
	ModeNever  = "never"
	ModeWindow = "window"
)

// Schedule arms a reader at certain local hours.
type Schedule struct {
	Mode      string `mapstructure:"mode"`
	StartHour int    `mapstructure:"start_hour"`
	EndHour   int    `mapstructure:"end_hour"`
}

// Schedules maps reader id → schedule.
type Schedules map[string]Schedule

// For returns the schedule of readerID.
func (s Schedules) For(readerID string) (Schedule, bool) {
	sc, ok := s[strings.ToLower(readerID)]
	return sc, ok
}

// DedupConfig holds the debounce and late-read thresholds, in seconds.
type DedupConfig struct {
	WindowSec     float64 `mapstructure:"window_sec"`
	IgnoreLateSec float64 `mapstructure:"ignore_late_sec"`
}

// Window returns the dedup window; zero disables dedup.
func (d DedupConfig) Window() time.Duration { return seconds(d.WindowSec) }

// IgnoreLate returns the late threshold; zero disables the check.
func (d DedupConfig) IgnoreLate() time.Duration { return seconds(d.IgnoreLateSec) }

// RelayConfig configures the relay board.
type RelayConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	Port       string         `mapstructure:"port"`
	Baudrate   int            `mapstructure:"baudrate"`
	TimeoutSec float64        `mapstructure:"timeout_sec"`
	Mapping    map[string]int `mapstructure:"mapping"`
}

// Timeout returns the relay read timeout.
func (r RelayConfig) Timeout() time.Duration { return seconds(r.TimeoutSec) }

// HTTPConfig holds server tuning.
type HTTPConfig struct {
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	GinMode           string        `mapstructure:"gin_mode"` // debug|release|test
}

// LoggingConfig selects the log level and console output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"` // debug|info|warn|error|fatal|panic
	Pretty bool   `mapstructure:"pretty"`
}

// RateConfig configures the per-reader token bucket on /api.
type RateConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `mapstructure:"enable_hsts"`
	HSTSMaxAge time.Duration `mapstructure:"hsts_max_age"`
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"` // e.g. "otel:4317"
	Insecure    bool    `mapstructure:"insecure"` // true if no TLS
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"` // [0..1]
}

// MQTTConfig configures the optional decision publisher.
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"` // tcp://host:1883
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Center holds the central service configuration.
type Center struct {
	ListenHost      string      `mapstructure:"listen_host"`
	ListenPort      int         `mapstructure:"listen_port"`
	DBPath          string      `mapstructure:"db_path"`
	MaxEvents       int         `mapstructure:"max_events"`
	Dedup           DedupConfig `mapstructure:"dedup"`
	ReaderSchedules Schedules   `mapstructure:"reader_schedules"`
	KnownTagsFile   string      `mapstructure:"known_tags_file"`
	Timezone        string      `mapstructure:"timezone"` // IANA name; empty = local
	Relay           RelayConfig `mapstructure:"relay"`

	HTTP           HTTPConfig     `mapstructure:"http"`
	Logging        LoggingConfig  `mapstructure:"logging"`
	Rate           RateConfig     `mapstructure:"rate"`
	CORS           CORSConfig     `mapstructure:"cors"`
	Security       SecurityConfig `mapstructure:"security"`
	SwaggerEnabled bool           `mapstructure:"swagger_enabled"`
	OTEL           OTELConfig     `mapstructure:"otel"`
	MQTT           MQTTConfig     `mapstructure:"mqtt"`
}

// Addr returns host:port for the HTTP listener.
func (c Center) Addr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// Location resolves Timezone; empty means time.Local.
func (c Center) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Edge holds the edge agent configuration.
type Edge struct {
	SerialPort      string        `mapstructure:"serial_port"`
	Baudrate        int           `mapstructure:"baudrate"`
	Protocol        string        `mapstructure:"protocol"` // chafon|cf661|innod
	DBPath          string        `mapstructure:"db_path"`
	ServerURL       string        `mapstructure:"server_url"`
	ReaderID        string        `mapstructure:"reader_id"`
	SendIntervalSec float64       `mapstructure:"send_interval_sec"`
	SendBatchSize   int           `mapstructure:"send_batch_size"`
	MaxEvents       int           `mapstructure:"max_events"`
	HTTPTimeoutSec  float64       `mapstructure:"http_timeout_sec"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ReconnectDelay  time.Duration `mapstructure:"reconnect_delay"`
	MetricsAddr     string        `mapstructure:"metrics_addr"` // empty disables /metrics

	Logging LoggingConfig `mapstructure:"logging"`
	OTEL    OTELConfig    `mapstructure:"otel"`
}

// SendInterval returns the flush interval.
func (e Edge) SendInterval() time.Duration { return seconds(e.SendIntervalSec) }

// HTTPTimeout returns the uplink request timeout.
func (e Edge) HTTPTimeout() time.Duration { return seconds(e.HTTPTimeoutSec) }

// MustLoadCenter loads the center configuration and panics on error.
func MustLoadCenter(path string) Center {
	cfg, err := LoadCenter(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// MustLoadEdge loads the edge configuration and panics on error.
func MustLoadEdge(path string) Edge {
	cfg, err := LoadEdge(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadCenter reads, normalizes and validates the center configuration.
// An empty path uses defaults and the environment only.
func LoadCenter(path string) (Center, error) {
	v := newViper()
	v.SetDefault("listen_host", "0.0.0.0")
	v.SetDefault("listen_port", 5000)
	v.SetDefault("db_path", "rfid_center.db")
	v.SetDefault("max_events", 1000000)
	v.SetDefault("dedup.window_sec", 10)
	v.SetDefault("dedup.ignore_late_sec", 300)
	v.SetDefault("known_tags_file", "known_tags.json")
	v.SetDefault("timezone", "")
	v.SetDefault("relay.enabled", true)
	v.SetDefault("relay.port", "/dev/ttyS0")
	v.SetDefault("relay.baudrate", 9600)
	v.SetDefault("relay.timeout_sec", 0.2)
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.read_header_timeout", "10s")
	v.SetDefault("http.write_timeout", "20s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.max_header_bytes", 1<<20)
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.gin_mode", "release")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
	v.SetDefault("rate.rps", 50.0)
	v.SetDefault("rate.burst", 100)
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("security.enable_hsts", false)
	v.SetDefault("security.hsts_max_age", "4320h")
	v.SetDefault("swagger_enabled", false)
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.insecure", true)
	v.SetDefault("otel.service_name", "rfid-center")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "rfid-center")
	v.SetDefault("mqtt.topic_prefix", "rfid")
	v.SetDefault("mqtt.connect_timeout", "5s")

	var cfg Center
	if err := read(v, path, &cfg); err != nil {
		return cfg, err
	}

	cfg.Logging.Level = normalizeLevel(cfg.Logging.Level)
	cfg.HTTP.GinMode = strings.ToLower(cfg.HTTP.GinMode)
	switch cfg.HTTP.GinMode {
	case "debug", "release", "test":
	default:
		cfg.HTTP.GinMode = "release"
	}
	cfg.CORS.AllowedOrigins = splitCSV(strings.Join(cfg.CORS.AllowedOrigins, ","))
	if cfg.ReaderSchedules == nil {
		cfg.ReaderSchedules = Schedules{}
	}
	for id, sc := range cfg.ReaderSchedules {
		sc.Mode = strings.ToLower(strings.TrimSpace(sc.Mode))
		if sc.Mode == "" {
			sc.Mode = ModeAlways
		}
		cfg.ReaderSchedules[id] = sc
	}

	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Center) Validate() error {
	if err := validLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return errors.New("listen_port must be in 1..65535")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db_path must not be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.ReadHeaderTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.IdleTimeout <= 0 {
		return errors.New("http timeouts must be positive durations")
	}
	if c.HTTP.MaxHeaderBytes <= 0 {
		return errors.New("http.max_header_bytes must be > 0")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be > 0")
	}
	for id, sc := range c.ReaderSchedules {
		if sc.Mode == ModeWindow && (sc.StartHour < 0 || sc.StartHour > 23 || sc.EndHour < 0 || sc.EndHour > 23) {
			return fmt.Errorf("reader_schedules.%s: hours must be in 0..23", id)
		}
	}
	if c.Relay.Enabled {
		if strings.TrimSpace(c.Relay.Port) == "" {
			return errors.New("relay.port must not be empty when relay is enabled")
		}
		if c.Relay.Baudrate <= 0 {
			return errors.New("relay.baudrate must be > 0")
		}
	}
	if c.Rate.RPS < 0 {
		return errors.New("rate.rps must be >= 0")
	}
	if c.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if c.Security.HSTSMaxAge < 0 {
		return errors.New("security.hsts_max_age must be >= 0")
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return errors.New("otel.sample_ratio must be in [0,1]")
	}
	if c.MQTT.Enabled && strings.TrimSpace(c.MQTT.Broker) == "" {
		return errors.New("mqtt.broker must not be empty when mqtt is enabled")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// LoadEdge reads, normalizes and validates the edge configuration.
func LoadEdge(path string) (Edge, error) {
	v := newViper()
	v.SetDefault("serial_port", "/dev/ttyUSB0")
	v.SetDefault("baudrate", 57600)
	v.SetDefault("protocol", "chafon")
	v.SetDefault("db_path", "rfid_edge.db")
	v.SetDefault("server_url", "http://127.0.0.1:5000/api/tags")
	v.SetDefault("reader_id", "")
	v.SetDefault("send_interval_sec", 2)
	v.SetDefault("send_batch_size", 200)
	v.SetDefault("max_events", 10000)
	v.SetDefault("http_timeout_sec", 3)
	v.SetDefault("poll_interval", "20ms")
	v.SetDefault("reconnect_delay", "5s")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.insecure", true)
	v.SetDefault("otel.service_name", "rfid-edge")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	var cfg Edge
	if err := read(v, path, &cfg); err != nil {
		return cfg, err
	}
	cfg.Logging.Level = normalizeLevel(cfg.Logging.Level)
	cfg.Protocol = strings.ToLower(strings.TrimSpace(cfg.Protocol))
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (e Edge) Validate() error {
	if err := validLevel(e.Logging.Level); err != nil {
		return err
	}
	if strings.TrimSpace(e.ReaderID) == "" {
		return errors.New("reader_id must not be empty")
	}
	if strings.TrimSpace(e.SerialPort) == "" {
		return errors.New("serial_port must not be empty")
	}
	if e.Baudrate <= 0 {
		return errors.New("baudrate must be > 0")
	}
	switch e.Protocol {
	case "chafon", "cf661", "innod":
	default:
		return errors.New("protocol must be one of: chafon, cf661, innod")
	}
	if strings.TrimSpace(e.DBPath) == "" {
		return errors.New("db_path must not be empty")
	}
	if strings.TrimSpace(e.ServerURL) == "" {
		return errors.New("server_url must not be empty")
	}
	if e.SendIntervalSec <= 0 {
		return errors.New("send_interval_sec must be > 0")
	}
	if e.SendBatchSize < 1 {
		return errors.New("send_batch_size must be >= 1")
	}
	if e.MaxEvents < 1 {
		return errors.New("max_events must be >= 1")
	}
	if e.HTTPTimeoutSec <= 0 {
		return errors.New("http_timeout_sec must be > 0")
	}
	if e.PollInterval <= 0 || e.ReconnectDelay <= 0 {
		return errors.New("poll_interval and reconnect_delay must be positive durations")
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment if present.
// Existing variables win.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// ---- helpers ----

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper, path string, out any) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func normalizeLevel(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	switch l {
	case "warning":
		return "warn"
	case "":
		return "info"
	}
	return l
}

func validLevel(l string) error {
	switch l {
	case "debug", "info", "warn", "error", "fatal", "panic":
		return nil
	}
	return errors.New("logging.level must be one of: debug, info, warn, error, fatal, panic")
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
