package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/aggregate"
	"github.com/manslikestiffler/smart-granary/pkg/models"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SMARTGRAIN_SERVER_PORT
const EnvPrefix = "SMARTGRAIN"

// Source kinds accepted in source.kinds
const (
	SourceSimulator = "simulator"
	SourceHTTP      = "http"
	SourceWebSocket = "websocket"
	SourceMQTT      = "mqtt"
	SourceKafka     = "kafka"
)

// Config is the full service configuration
type Config struct {
	Server   ServerConfig                 `mapstructure:"server"`
	Database DatabaseConfig               `mapstructure:"database"`
	Source   SourceConfig                 `mapstructure:"source"`
	Pipeline PipelineConfig               `mapstructure:"pipeline"`
	Sensors  map[string]models.Range      `mapstructure:"sensors"`
	Bands    map[string]models.StatusBand `mapstructure:"alert_bands"`
	MQTT     MQTTConfig                   `mapstructure:"mqtt"`
	Kafka    KafkaConfig                  `mapstructure:"kafka"`
	Serial   SerialConfig                 `mapstructure:"serial"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	APIKey         string   `mapstructure:"api_key"`
}

// DatabaseConfig holds the Postgres settings. Enabled turns on dataset persistence.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	// Keep is how long stored readings are kept; zero keeps them forever
	Keep           time.Duration `mapstructure:"keep"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// DSN returns the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type SourceConfig struct {
	Kinds             []string      `mapstructure:"kinds"`
	BaseURL           string        `mapstructure:"base_url"`
	WebSocketURL      string        `mapstructure:"websocket_url"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SimulatorInterval time.Duration `mapstructure:"simulator_interval"`
	Zones             []string      `mapstructure:"zones"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// PipelineConfig tunes the realtime pipeline
type PipelineConfig struct {
	Window         time.Duration `mapstructure:"window"`
	Retention      time.Duration `mapstructure:"retention"`
	Interval       string        `mapstructure:"interval"`
	SeverityFactor float64       `mapstructure:"severity_factor"`
	Timezone       string        `mapstructure:"timezone"`
	TruthyFilter   bool          `mapstructure:"truthy_filter"`
}

// Location loads the timezone used for bucketing
func (p PipelineConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid pipeline timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	QoS      byte   `mapstructure:"qos"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// KafkaConfig enables publishing when Brokers is set, and consuming when "kafka" is a source kind
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ReadingsTopic string   `mapstructure:"readings_topic"`
	AlertsTopic   string   `mapstructure:"alerts_topic"`
	GroupID       string   `mapstructure:"group_id"`
}

type SerialConfig struct {
	Device string `mapstructure:"device"`
	Port   string `mapstructure:"port"`
	Ingest bool   `mapstructure:"ingest"`
}

// Load reads config.yaml from path (a directory or a file), applies environment
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if path != "" {
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			v.SetConfigFile(path)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath(path)
		}

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			log.Printf("⚠ No config file in %s, using defaults", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8059")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "granary_user")
	v.SetDefault("database.password", "granary_pass")
	v.SetDefault("database.name", "granary_db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.keep", "720h")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.health_interval", "30s")

	v.SetDefault("source.kinds", []string{SourceSimulator})
	v.SetDefault("source.base_url", "http://localhost:3000")
	v.SetDefault("source.poll_interval", "5s")
	v.SetDefault("source.simulator_interval", "5s")
	v.SetDefault("source.zones", []string{})
	v.SetDefault("source.reconnect_delay", "5s")
	v.SetDefault("source.max_retries", 5)

	v.SetDefault("pipeline.window", "30m")
	v.SetDefault("pipeline.retention", "24h")
	v.SetDefault("pipeline.interval", string(models.IntervalHour))
	v.SetDefault("pipeline.severity_factor", 0.8)
	v.SetDefault("pipeline.timezone", "UTC")

	v.SetDefault("mqtt.client_id", "smartgrain")
	v.SetDefault("mqtt.topic", "granary/readings")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("kafka.readings_topic", "granary.readings")
	v.SetDefault("kafka.alerts_topic", "granary.alerts")
	v.SetDefault("kafka.group_id", "smartgrain")

	v.SetDefault("serial.port", "8080")
}

// bindLegacyEnv keeps the plain DB_* and SERVER_PORT variables working
func bindLegacyEnv(v *viper.Viper) {
	legacy := map[string]string{
		"database.host":     "DB_HOST",
		"database.port":     "DB_PORT",
		"database.user":     "DB_USER",
		"database.password": "DB_PASSWORD",
		"database.name":     "DB_NAME",
		"database.sslmode":  "DB_SSLMODE",
		"server.port":       "SERVER_PORT",
	}
	for key, env := range legacy {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, env)
	}
}

// Validate checks values the pipeline cannot recover from
func (c *Config) Validate() error {
	if c.Pipeline.Window <= 0 {
		return fmt.Errorf("pipeline.window must be positive")
	}
	if c.Pipeline.Retention > 0 && c.Pipeline.Retention < c.Pipeline.Window {
		return fmt.Errorf("pipeline.retention (%s) must not be shorter than pipeline.window (%s)",
			c.Pipeline.Retention, c.Pipeline.Window)
	}
	if !models.Interval(c.Pipeline.Interval).Valid() {
		return fmt.Errorf("invalid pipeline.interval: %s (valid: minute, hour, day)", c.Pipeline.Interval)
	}
	if c.Pipeline.SeverityFactor <= 0 || c.Pipeline.SeverityFactor > 1 {
		return fmt.Errorf("pipeline.severity_factor must be in (0, 1], got %v", c.Pipeline.SeverityFactor)
	}
	if _, err := c.Pipeline.Location(); err != nil {
		return err
	}
	if c.Database.Keep < 0 {
		return fmt.Errorf("database.keep must not be negative")
	}

	for _, kind := range c.Source.Kinds {
		switch kind {
		case SourceSimulator, SourceHTTP, SourceWebSocket, SourceMQTT, SourceKafka:
		default:
			return fmt.Errorf("unknown source kind: %s", kind)
		}
	}
	if c.HasSource(SourceMQTT) && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required for the mqtt source")
	}
	if c.HasSource(SourceKafka) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required for the kafka source")
	}
	if c.HasSource(SourceWebSocket) && c.Source.WebSocketURL == "" {
		return fmt.Errorf("source.websocket_url is required for the websocket source")
	}

	if _, err := c.Registry(); err != nil {
		return err
	}
	if _, err := c.AlertBands(); err != nil {
		return err
	}
	return nil
}

// HasSource reports whether kind is enabled
func (c *Config) HasSource(kind string) bool {
	for _, k := range c.Source.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Registry returns the default sensor registry with the configured range overrides applied.
// Keys are matched case-insensitively since viper lowercases map keys.
func (c *Config) Registry() (models.SensorRegistry, error) {
	registry := models.DefaultSensorRegistry()
	for name, rng := range c.Sensors {
		key, ok := canonicalKey(name)
		if !ok {
			return nil, fmt.Errorf("unknown sensor in sensors: %s", name)
		}
		if err := rng.Validate(); err != nil {
			return nil, fmt.Errorf("sensor %s: %w", key, err)
		}
		st := registry[key]
		st.Ranges = rng
		registry[key] = st
	}
	return registry, nil
}

// AlertBands returns the default status bands with the configured overrides applied
func (c *Config) AlertBands() (models.AlertBands, error) {
	bands := models.DefaultAlertBands()
	for name, band := range c.Bands {
		key, ok := canonicalKey(name)
		if !ok {
			return nil, fmt.Errorf("unknown sensor in alert_bands: %s", name)
		}
		if err := band.Validate(); err != nil {
			return nil, fmt.Errorf("alert band %s: %w", key, err)
		}
		bands[key] = band
	}
	return bands, nil
}

// AggregateInterval returns the configured bucketing interval
func (c *Config) AggregateInterval() models.Interval {
	return models.ParseInterval(c.Pipeline.Interval)
}

// AggregateOptions returns the aggregator options for the configured timezone
func (c *Config) AggregateOptions() []aggregate.Option {
	loc, err := c.Pipeline.Location()
	if err != nil {
		return nil
	}
	return []aggregate.Option{aggregate.WithLocation(loc)}
}

func canonicalKey(name string) (string, bool) {
	for _, key := range models.SensorKeys {
		if strings.EqualFold(key, name) {
			return key, true
		}
	}
	return "", false
}
