package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"
)

// Config holds upload pipeline service configuration
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Upload   UploadConfig   `json:"upload" yaml:"upload"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Scanner  ScannerConfig  `json:"scanner" yaml:"scanner"`
	Blob     BlobConfig     `json:"blob" yaml:"blob"`
	Sweeper  SweeperConfig  `json:"sweeper" yaml:"sweeper"`
	Logger   logger.Config  `json:"logger" yaml:"logger"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type UploadConfig struct {
	NodeID           int64  `json:"node_id" yaml:"node_id"`
	ChunkDir         string `json:"chunk_dir" yaml:"chunk_dir"`
	AssembleDir      string `json:"assemble_dir" yaml:"assemble_dir"`
	MaxChunkSize     int64  `json:"max_chunk_size" yaml:"max_chunk_size"`
	MaxFileSize      int64  `json:"max_file_size" yaml:"max_file_size"`
	StageWorkers     int    `json:"stage_workers" yaml:"stage_workers"`
	StageQueueSize   int    `json:"stage_queue_size" yaml:"stage_queue_size"`
	MaxRetries       int    `json:"max_retries" yaml:"max_retries"`
	RetryBaseDelayMS int    `json:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type ScannerConfig struct {
	Addr             string `json:"addr" yaml:"addr"`
	TimeoutMS        int    `json:"timeout_ms" yaml:"timeout_ms"`
	FailureThreshold int    `json:"failure_threshold" yaml:"failure_threshold"`
	OpenTimeoutMS    int    `json:"open_timeout_ms" yaml:"open_timeout_ms"`
}

type BlobConfig struct {
	Backend  string `json:"backend" yaml:"backend"` // "s3", "local"
	Bucket   string `json:"bucket" yaml:"bucket"`
	Region   string `json:"region" yaml:"region"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	LocalDir string `json:"local_dir" yaml:"local_dir"`
}

type SweeperConfig struct {
	Schedule                 string `json:"schedule" yaml:"schedule"`
	CancelledRetentionHours  int    `json:"cancelled_retention_hours" yaml:"cancelled_retention_hours"`
	StaleRetentionHours      int    `json:"stale_retention_hours" yaml:"stale_retention_hours"`
	AssemblyStalenessMinutes int    `json:"assembly_staleness_minutes" yaml:"assembly_staleness_minutes"`
	BatchSize                int    `json:"batch_size" yaml:"batch_size"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Upload: UploadConfig{
			NodeID:           1,
			ChunkDir:         "/var/lib/wubhub/chunks",
			AssembleDir:      "/var/lib/wubhub/assembling",
			MaxChunkSize:     20 * 1024 * 1024,       // 20MB
			MaxFileSize:      2 * 1024 * 1024 * 1024, // 2GB
			StageWorkers:     4,
			StageQueueSize:   64,
			MaxRetries:       3,
			RetryBaseDelayMS: 500,
		},
		Database: DatabaseConfig{
			DSN: "wubhub:wubhub@tcp(localhost:3306)/wubhub?charset=utf8mb4&parseTime=True&loc=UTC",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Scanner: ScannerConfig{
			Addr:             "tcp://localhost:3310",
			TimeoutMS:        60000,
			FailureThreshold: 3,
			OpenTimeoutMS:    30000,
		},
		Blob: BlobConfig{
			Backend:  "local",
			LocalDir: "/var/lib/wubhub/assets",
			Prefix:   "assets",
		},
		Sweeper: SweeperConfig{
			Schedule:                 "@every 10m",
			CancelledRetentionHours:  24,
			StaleRetentionHours:      6,
			AssemblyStalenessMinutes: 60,
			BatchSize:                100,
		},
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	configPath := path
	if configPath == "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = "local"
		}
		configPath = filepath.Join("internal", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		log.Printf("Config file not found or failed to parse, using defaults if file not specified. Path: %s, Error: %v", configPath, err)
		if path != "" {
			return nil, err
		}
		return cfg, nil
	}

	return parsedCfg, nil
}

// MustLoad loads configuration or exits on error
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}
