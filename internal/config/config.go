// Package config loads the top-level YAML configuration file described
// in SPEC_FULL.md §6 and applies environment-variable overrides for
// database and broker credentials, following the same override pattern
// as the original storage_config.py.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects and configures a C3/C4 backing.
type DatabaseConfig struct {
	Type     string `yaml:"type"` // "memory", "postgresql", "mysql"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// RecognitionConfig tunes the stream recognizer (C7).
type RecognitionConfig struct {
	ChunkSeconds        float64 `yaml:"chunk_seconds"`
	Overlap             float64 `yaml:"overlap"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	WindowDuration      float64 `yaml:"window_duration"`
	HopDuration         float64 `yaml:"hop_duration"`
	EnergyThresholdDB   float64 `yaml:"energy_threshold_db"`
	DebounceDuration    float64 `yaml:"debounce_duration"`
}

// FingerprintConfig groups the database and recognition sub-sections.
type FingerprintConfig struct {
	Database    DatabaseConfig    `yaml:"database"`
	Recognition RecognitionConfig `yaml:"recognition"`
}

// MQTTConfig configures the MQTT event-sink collaborator (C8).
type MQTTConfig struct {
	Broker         string  `yaml:"broker"`
	Port           int     `yaml:"port"`
	Username       string  `yaml:"username"`
	Password       string  `yaml:"password"`
	TopicPrefix    string  `yaml:"topic_prefix"`
	QoS            byte    `yaml:"qos"`
	Retain         bool    `yaml:"retain"`
	DebounceSeconds float64 `yaml:"debounce_seconds"`
	ClientIDPrefix string  `yaml:"client_id_prefix"`
	KeepAlive      int     `yaml:"keepalive"`
}

// Config is the top-level configuration document.
type Config struct {
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	LogLevel    string            `yaml:"log_level"`
	LogFile     string            `yaml:"log_file"`
}

// Default returns the configuration with spec-mandated defaults applied,
// matching the §4.7 configuration table.
func Default() Config {
	return Config{
		Fingerprint: FingerprintConfig{
			Database: DatabaseConfig{Type: "memory"},
			Recognition: RecognitionConfig{
				ChunkSeconds:        0.5,
				Overlap:             0.5,
				ConfidenceThreshold: 0.5,
				WindowDuration:      2.0,
				HopDuration:         0.5,
				EnergyThresholdDB:   -40.0,
				DebounceDuration:    5.0,
			},
		},
		MQTT: MQTTConfig{
			Port:           1883,
			TopicPrefix:    "resonance",
			QoS:            1,
			ClientIDPrefix: "resonance-",
			KeepAlive:      60,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML configuration file, applies defaults for
// unset fields, then applies environment-variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config file %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config file %s", path)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	db := &cfg.Fingerprint.Database
	switch db.Type {
	case "postgresql", "postgres":
		overrideString(&db.Host, "POSTGRES_HOST")
		overrideInt(&db.Port, "POSTGRES_PORT")
		overrideString(&db.Database, "POSTGRES_DB")
		overrideString(&db.User, "POSTGRES_USER")
		overrideString(&db.Password, "POSTGRES_PASSWORD")
		if db.Database == "" {
			db.Database = "resonance"
		}
		if db.User == "" {
			db.User = "resonance"
		}
		if db.Port == 0 {
			db.Port = 5432
		}
	case "mysql":
		overrideString(&db.Host, "MYSQL_HOST")
		overrideInt(&db.Port, "MYSQL_PORT")
		overrideString(&db.Database, "MYSQL_DATABASE")
		overrideString(&db.User, "MYSQL_USER")
		overrideString(&db.Password, "MYSQL_PASSWORD")
		if db.Port == 0 {
			db.Port = 3306
		}
	}

	mqtt := &cfg.MQTT
	overrideString(&mqtt.Broker, "MQTT_BROKER")
	overrideInt(&mqtt.Port, "MQTT_PORT")
	overrideString(&mqtt.Username, "MQTT_USERNAME")
	overrideString(&mqtt.Password, "MQTT_PASSWORD")
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, env string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// template is the scaffold written by WriteTemplate, mirroring
// save_config_template from the original storage_config.py.
const template = `fingerprint:
  database:
    type: %s
    host: localhost
    port: %d
    database: resonance
    user: resonance
    password: ""
  recognition:
    chunk_seconds: 0.5
    overlap: 0.5
    confidence_threshold: 0.5
    window_duration: 2.0
    hop_duration: 0.5
    energy_threshold_db: -40.0
    debounce_duration: 5.0

mqtt:
  broker: localhost
  port: 1883
  username: ""
  password: ""
  topic_prefix: resonance
  qos: 1
  retain: false
  debounce_seconds: 5.0
  client_id_prefix: "resonance-"
  keepalive: 60

log_level: info
log_file: ""
`

// WriteTemplate writes a config scaffold for the given database type to
// path, matching save_config_template from the original distillation
// source. Supported types: "memory", "postgresql", "mysql".
func WriteTemplate(path, dbType string) error {
	port := 0
	switch dbType {
	case "postgresql", "postgres":
		port = 5432
	case "mysql":
		port = 3306
	}
	content := fmt.Sprintf(template, dbType, port)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "writing config template to %s", path)
	}
	return nil
}
