package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	Logger   Logger   `yaml:"logger"`
	HTTP     HTTP     `yaml:"http"`
	Postgres PG       `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Auth     Auth     `yaml:"auth"`
	Push     Push     `yaml:"push"`
	Limiter  Limiter  `yaml:"limiter"`
	Outbox   Outbox   `yaml:"outbox"`
	LowStock LowStock `yaml:"low_stock"`
	Tracing  Tracing  `yaml:"tracing"`
}

type Logger struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port        string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	ReadTimeout time.Duration `yaml:"read_timeout" env-default:"10s"`
}

type PG struct {
	URL            string `yaml:"url" env:"DB_URL"`
	MaxConns       int32  `yaml:"max_conns" env-default:"10"`
	MinConns       int32  `yaml:"min_conns" env-default:"2"`
	AutoMigrate    bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"false"`
	MigrationsPath string `yaml:"migrations_path" env-default:"./migrations"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env-default:"0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env-default:"10m"`
}

type Kafka struct {
	Brokers       []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	GroupID       string   `yaml:"group_id" env-default:"shop-backend-group"`
	OrderTopic    string   `yaml:"order_topic" env-default:"order_events"`
	ConsumeTopics []string `yaml:"consume_topics" env-default:"user_events,device_events"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env-default:"24h"`
}

type Push struct {
	Enabled         bool          `yaml:"enabled" env:"PUSH_ENABLED" env-default:"false"`
	CredentialsFile string        `yaml:"credentials_file" env:"FIREBASE_CREDENTIALS"`
	Timeout         time.Duration `yaml:"timeout" env-default:"10s"`
}

type Limiter struct {
	Max        int           `yaml:"max" env-default:"100"`
	Expiration time.Duration `yaml:"expiration" env-default:"1m"`
}

type Outbox struct {
	BatchSize int           `yaml:"batch_size" env-default:"50"`
	Interval  time.Duration `yaml:"interval" env-default:"500ms"`
}

type LowStock struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"1h"`
}

type Tracing struct {
	Endpoint    string `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
	ServiceName string `yaml:"service_name" env-default:"shop-backend"`
}

const defaultConfigPath = "./config/local.yaml"

func MustLoad() *Config {
	configPath, ok := os.LookupEnv("CONFIG_PATH")
	if !ok || configPath == "" {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	if cfg.Auth.JWTSecret == "" {
		log.Fatalf("auth.jwt_secret is required")
	}

	return &cfg
}
