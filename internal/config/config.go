package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "co2tracker.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. CO2TRACKER_STORAGE_TYPE.
const EnvPrefix = "CO2TRACKER"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
	SeedFile       string `json:"seedFile" mapstructure:"seedFile"`
}

// SQLiteConfig holds settings for the in-memory SQLite backend
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// PostgresConfig holds connection settings for the postgres backend
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"`
	CacheTTL time.Duration  `json:"cacheTTL" mapstructure:"cacheTTL"`
	Memory   MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite   SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr         string        `json:"addr" mapstructure:"addr"`
	CORSOrigins  []string      `json:"corsOrigins" mapstructure:"corsOrigins"`
	MaxUploadMB  int64         `json:"maxUploadMB" mapstructure:"maxUploadMB"`
	ReadTimeout  time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout" mapstructure:"writeTimeout"`
	Metrics      bool          `json:"metrics" mapstructure:"metrics"`
}

// ScannerConfig holds trashcan-mode polling and debounce settings
type ScannerConfig struct {
	Interval      time.Duration `json:"interval" mapstructure:"interval"`
	ConfirmFrames int           `json:"confirmFrames" mapstructure:"confirmFrames"`
	StaleAfter    time.Duration `json:"staleAfter" mapstructure:"staleAfter"`
	DisplayHold   time.Duration `json:"displayHold" mapstructure:"displayHold"`
	MinConfidence float64       `json:"minConfidence" mapstructure:"minConfidence"`
	FrameWidth    int           `json:"frameWidth" mapstructure:"frameWidth"`
	FrameHeight   int           `json:"frameHeight" mapstructure:"frameHeight"`
	RecentLimit   int           `json:"recentLimit" mapstructure:"recentLimit"`
	AutoStart     bool          `json:"autoStart" mapstructure:"autoStart"`
}

// CameraConfig selects the frame source
type CameraConfig struct {
	Type    string        `json:"type" mapstructure:"type"` // snapshot or directory
	URL     string        `json:"url" mapstructure:"url"`
	Dir     string        `json:"dir" mapstructure:"dir"`
	Loop    bool          `json:"loop" mapstructure:"loop"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	// MaxFailures is how many snapshots in a row may fail before a session ends.
	MaxFailures int `json:"maxFailures" mapstructure:"maxFailures"`
	// FacingMode is passed through to browser capture; "environment" is the rear camera.
	FacingMode string `json:"facingMode" mapstructure:"facingMode"`
}

// DetectorConfig locates the hosted object detection model
type DetectorConfig struct {
	BaseURL string        `json:"baseURL" mapstructure:"baseURL"`
	Model   string        `json:"model" mapstructure:"model"`
	Version int           `json:"version" mapstructure:"version"`
	APIKey  string        `json:"apiKey" mapstructure:"apiKey"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// RecorderConfig holds disposal recording settings
type RecorderConfig struct {
	BuildingID       string  `json:"buildingID" mapstructure:"buildingID"`
	TrashcanID       string  `json:"trashcanID" mapstructure:"trashcanID"`
	EmissionsDivisor float64 `json:"emissionsDivisor" mapstructure:"emissionsDivisor"`
	QueueSize        int     `json:"queueSize" mapstructure:"queueSize"`
}

// ExtractConfig holds bill extraction settings
type ExtractConfig struct {
	ConverterURL      string        `json:"converterURL" mapstructure:"converterURL"`
	ConverterSecret   string        `json:"converterSecret" mapstructure:"converterSecret"`
	APIKey            string        `json:"apiKey" mapstructure:"apiKey"`
	Model             string        `json:"model" mapstructure:"model"`
	Temperature       float32       `json:"temperature" mapstructure:"temperature"`
	TopP              float32       `json:"topP" mapstructure:"topP"`
	MaxTokens         int32         `json:"maxTokens" mapstructure:"maxTokens"`
	Timeout           time.Duration `json:"timeout" mapstructure:"timeout"`
	ElectricityFactor float64       `json:"electricityFactor" mapstructure:"electricityFactor"` // tons CO2e per kWh
	GasFactor         float64       `json:"gasFactor" mapstructure:"gasFactor"`                 // tons CO2e per therm
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// GraylogConfig holds GELF log sink settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SetDefaults registers default values. Load calls it; tests that skip the
// config file can call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.corsOrigins", []string{"*"})
	viper.SetDefault("server.maxUploadMB", 20)
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "120s")
	viper.SetDefault("server.metrics", true)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.cacheTTL", "10m")
	viper.SetDefault("storage.memory.outputDir", "./data")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.memory.seedFile", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./data/co2tracker.db")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "co2tracker")
	viper.SetDefault("storage.postgres.sslMode", "disable")

	viper.SetDefault("scanner.interval", "333ms")
	viper.SetDefault("scanner.confirmFrames", 3)
	viper.SetDefault("scanner.staleAfter", "1s")
	viper.SetDefault("scanner.displayHold", "1s")
	viper.SetDefault("scanner.minConfidence", 0.2)
	viper.SetDefault("scanner.frameWidth", 640)
	viper.SetDefault("scanner.frameHeight", 480)
	viper.SetDefault("scanner.recentLimit", 10)
	viper.SetDefault("scanner.autoStart", false)

	viper.SetDefault("camera.type", "snapshot")
	viper.SetDefault("camera.url", "http://localhost:8081/snapshot.jpg")
	viper.SetDefault("camera.dir", "")
	viper.SetDefault("camera.loop", false)
	viper.SetDefault("camera.timeout", "5s")
	viper.SetDefault("camera.maxFailures", 3)
	viper.SetDefault("camera.facingMode", "environment")

	viper.SetDefault("detector.baseURL", "https://detect.roboflow.com")
	viper.SetDefault("detector.model", "trash-sorter")
	viper.SetDefault("detector.version", 1)
	viper.SetDefault("detector.apiKey", "")
	viper.SetDefault("detector.timeout", "10s")

	viper.SetDefault("recorder.buildingID", "")
	viper.SetDefault("recorder.trashcanID", "TC-001")
	viper.SetDefault("recorder.emissionsDivisor", 1000.0)
	viper.SetDefault("recorder.queueSize", 100)

	viper.SetDefault("extract.converterURL", "http://localhost:5000")
	viper.SetDefault("extract.converterSecret", "")
	viper.SetDefault("extract.apiKey", "")
	viper.SetDefault("extract.model", "gemini-2.0-flash")
	viper.SetDefault("extract.temperature", 0.4)
	viper.SetDefault("extract.topP", 0.95)
	viper.SetDefault("extract.maxTokens", 1000)
	viper.SetDefault("extract.timeout", "60s")
	viper.SetDefault("extract.electricityFactor", 0.000373)
	viper.SetDefault("extract.gasFactor", 0.0053)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "co2tracker")
	viper.SetDefault("influx.bucket", "co2tracker")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "co2tracker")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// IsNotFound reports whether err came from a missing config file.
func IsNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:     viper.GetString("storage.type"),
		CacheTTL: viper.GetDuration("storage.cacheTTL"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
			SeedFile:       viper.GetString("storage.memory.seedFile"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
			SSLMode:  viper.GetString("storage.postgres.sslMode"),
		},
	}
}

// GetServerConfig returns the HTTP server configuration.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         viper.GetString("server.addr"),
		CORSOrigins:  viper.GetStringSlice("server.corsOrigins"),
		MaxUploadMB:  viper.GetInt64("server.maxUploadMB"),
		ReadTimeout:  viper.GetDuration("server.readTimeout"),
		WriteTimeout: viper.GetDuration("server.writeTimeout"),
		Metrics:      viper.GetBool("server.metrics"),
	}
}

// GetScannerConfig returns trashcan-mode settings.
func GetScannerConfig() ScannerConfig {
	return ScannerConfig{
		Interval:      viper.GetDuration("scanner.interval"),
		ConfirmFrames: viper.GetInt("scanner.confirmFrames"),
		StaleAfter:    viper.GetDuration("scanner.staleAfter"),
		DisplayHold:   viper.GetDuration("scanner.displayHold"),
		MinConfidence: viper.GetFloat64("scanner.minConfidence"),
		FrameWidth:    viper.GetInt("scanner.frameWidth"),
		FrameHeight:   viper.GetInt("scanner.frameHeight"),
		RecentLimit:   viper.GetInt("scanner.recentLimit"),
		AutoStart:     viper.GetBool("scanner.autoStart"),
	}
}

// GetCameraConfig returns frame source settings.
func GetCameraConfig() CameraConfig {
	return CameraConfig{
		Type:    viper.GetString("camera.type"),
		URL:     viper.GetString("camera.url"),
		Dir:     viper.GetString("camera.dir"),
		Loop:    viper.GetBool("camera.loop"),
		Timeout: viper.GetDuration("camera.timeout"),

		MaxFailures: viper.GetInt("camera.maxFailures"),
		FacingMode:  viper.GetString("camera.facingMode"),
	}
}

// GetDetectorConfig returns detection service settings.
func GetDetectorConfig() DetectorConfig {
	return DetectorConfig{
		BaseURL: viper.GetString("detector.baseURL"),
		Model:   viper.GetString("detector.model"),
		Version: viper.GetInt("detector.version"),
		APIKey:  viper.GetString("detector.apiKey"),
		Timeout: viper.GetDuration("detector.timeout"),
	}
}

// GetRecorderConfig returns disposal recording settings.
func GetRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BuildingID:       viper.GetString("recorder.buildingID"),
		TrashcanID:       viper.GetString("recorder.trashcanID"),
		EmissionsDivisor: viper.GetFloat64("recorder.emissionsDivisor"),
		QueueSize:        viper.GetInt("recorder.queueSize"),
	}
}

// GetExtractConfig returns bill extraction settings.
func GetExtractConfig() ExtractConfig {
	return ExtractConfig{
		ConverterURL:      viper.GetString("extract.converterURL"),
		ConverterSecret:   viper.GetString("extract.converterSecret"),
		APIKey:            viper.GetString("extract.apiKey"),
		Model:             viper.GetString("extract.model"),
		Temperature:       float32(viper.GetFloat64("extract.temperature")),
		TopP:              float32(viper.GetFloat64("extract.topP")),
		MaxTokens:         viper.GetInt32("extract.maxTokens"),
		Timeout:           viper.GetDuration("extract.timeout"),
		ElectricityFactor: viper.GetFloat64("extract.electricityFactor"),
		GasFactor:         viper.GetFloat64("extract.gasFactor"),
	}
}

// GetInfluxConfig returns InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns GELF sink settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
