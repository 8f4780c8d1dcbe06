package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env           string        `yaml:"env" env:"ENV" env-default:"dev"`
	Address       string        `yaml:"address" env:"ADDRESS" env-default:"127.0.0.1:6767"`
	JWTSecret     string        `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	Auth          Auth          `yaml:"auth"`
	Params        Params        `yaml:"params"`
	Redis         Redis         `yaml:"redis"`
	RateLimiter   RateLimiter   `yaml:"rate_limiter"`
	Kafka         Kafka         `yaml:"kafka"`
	Elasticsearch Elasticsearch `yaml:"elasticsearch"`
}

type Auth struct {
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"1h"`
}

type Params struct {
	Username MinMaxLen `yaml:"username"`
	Password MinMaxLen `yaml:"password"`
	Text     MinMaxLen `yaml:"text"`
}

type MinMaxLen struct {
	Min int `yaml:"min" env-default:"1"`
	Max int `yaml:"max" env-default:"256"`
}

type Redis struct {
	Address     string        `yaml:"address" env:"REDIS_ADDRESS" env-default:"127.0.0.1:6379"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB          int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	PoolSize    int           `yaml:"pool_size" env-default:"16"`
	// PoolTimeout bounds the wait for a free connection. Zero waits as long
	// as the caller's context allows.
	PoolTimeout time.Duration `yaml:"pool_timeout" env-default:"0s"`
}

type RateLimiter struct {
	Enabled bool `yaml:"enabled" env-default:"false"`
	RPS     int  `yaml:"rps" env-default:"20"`
	Burst   int  `yaml:"burst" env-default:"40"`
}

// Kafka mirroring is off when no brokers are configured.
type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	EventsTopic string   `yaml:"events_topic" env-default:"task-events"`
}

// Search is off when no addresses are configured.
type Elasticsearch struct {
	Addresses []string `yaml:"addresses" env:"ELASTICSEARCH_ADDRESSES"`
	Index     string   `yaml:"index" env-default:"tasks"`
}

func MustLoadConfig() *Config {
	godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		panic("no config path in env")
	}

	return MustLoadPath(path)
}

func MustLoadPath(path string) *Config {
	cfg, err := LoadPath(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func LoadPath(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
