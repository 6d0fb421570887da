package config

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	BackendRedis = "redis"
	BackendMongo = "mongo"
)

type Config struct {
	Env        string           `yaml:"env" env:"ENV" env-default:"local"`
	AppName    string           `yaml:"app_name" env:"APP_NAME" env-default:"saved-service"`
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	GRPCServer GRPCServerConfig `yaml:"grpc_server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Auth       AuthConfig       `yaml:"auth"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	Redis      RedisConfig      `yaml:"redis"`
	MongoDB    MongoDBConfig    `yaml:"mongo"`
	NATS       NATSConfig       `yaml:"nats"`
	Store      StoreConfig      `yaml:"store"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Logger     LoggerConfig     `yaml:"logger"`
}

type HTTPServerConfig struct {
	Port            string        `yaml:"port" env:"HTTP_PORT_SAVED_SERVICE" env-default:"8085"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	TimeoutGraceful time.Duration `yaml:"timeout_graceful_shutdown" env-default:"10s"`
}

type GRPCServerConfig struct {
	Port              string        `yaml:"port" env:"GRPC_PORT_SAVED_SERVICE" env-default:"50056"`
	MaxConnectionIdle time.Duration `yaml:"max_connection_idle" env-default:"15m"`
	TimeoutGraceful   time.Duration `yaml:"timeout_graceful_shutdown" env-default:"10s"`
}

type MetricsConfig struct {
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"9095"`
}

type TracingConfig struct {
	Endpoint string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
}

type MetadataConfig struct {
	Backend  string        `yaml:"backend" env:"METADATA_BACKEND" env-default:"redis"`
	MaxBytes int           `yaml:"max_bytes" env:"METADATA_MAX_BYTES" env-default:"8192"`
	Timeout  time.Duration `yaml:"timeout" env:"METADATA_TIMEOUT" env-default:"5s"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type MongoDBConfig struct {
	URI        string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	User       string `yaml:"user" env:"MONGO_USER"`
	Password   string `yaml:"password" env:"MONGO_PASSWORD"`
	Database   string `yaml:"database" env:"MONGO_DATABASE" env-default:"saved_service_db"`
	Collection string `yaml:"collection" env:"MONGO_COLLECTION" env-default:"user_metadata"`
}

type NATSConfig struct {
	URL     string `yaml:"url" env:"NATS_URL" env-default:"nats://localhost:4222"`
	Enabled bool   `yaml:"enabled" env:"NATS_ENABLED" env-default:"true"`
}

type StoreConfig struct {
	LoadTimeout  time.Duration `yaml:"load_timeout" env:"STORE_LOAD_TIMEOUT" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"STORE_WRITE_TIMEOUT" env-default:"10s"`
}

type CatalogConfig struct {
	SearchDelay time.Duration `yaml:"search_delay" env:"SEARCH_DELAY" env-default:"1500ms"`
}

type LoggerConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding   string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
	TimeFormat string `yaml:"time_format" env:"LOG_TIME_FORMAT" env-default:"2006-01-02T15:04:05.000Z07:00"`
}

func (c *Config) Validate() error {
	if c.Metadata.Backend != BackendRedis && c.Metadata.Backend != BackendMongo {
		return errors.New("metadata backend must be one of: redis, mongo")
	}
	if c.Metadata.MaxBytes <= 0 {
		return errors.New("metadata max_bytes must be positive")
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
		return &cfg, cfg.Validate()
	}

	err := cleanenv.ReadConfig(path, &cfg)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, err
		}
		log.Printf("Warning: Config file not found at %s, attempting to load from environment variables only.", path)
		if errEnv := cleanenv.ReadEnv(&cfg); errEnv != nil {
			return nil, errEnv
		}
	}
	return &cfg, cfg.Validate()
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH_SAVED_SERVICE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	return cfg
}
