package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env            string `yaml:"env" env:"ENV" env-default:"prod"`
	TelegramApiKey string `yaml:"telegram_api_key" env:"TELEGRAM_BOT_TOKEN" env-required:"true"`
	OpenAI         struct {
		ApiKey      string        `yaml:"api_key" env:"OPENAI_API_KEY" env-required:"true"`
		Model       string        `yaml:"model" env:"OPENAI_MODEL" env-default:"gpt-3.5-turbo"`
		BaseURL     string        `yaml:"base_url" env:"OPENAI_BASE_URL" env-default:""`
		Timeout     time.Duration `yaml:"timeout" env:"OPENAI_TIMEOUT" env-default:"120s"`
		MaxAttempts int           `yaml:"max_attempts" env:"OPENAI_MAX_ATTEMPTS" env-default:"6"`
		MinBackoff  time.Duration `yaml:"min_backoff" env:"OPENAI_MIN_BACKOFF" env-default:"1s"`
		MaxBackoff  time.Duration `yaml:"max_backoff" env:"OPENAI_MAX_BACKOFF" env-default:"60s"`
	} `yaml:"openai"`
	Redis struct {
		Host     string        `yaml:"host" env:"REDIS_HOST" env-default:"127.0.0.1"`
		Port     string        `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
		DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
		Password string        `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DenyTTL  time.Duration `yaml:"deny_ttl" env:"DENY_TTL" env-default:"300s"`
	} `yaml:"redis"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"examiner"`
	} `yaml:"mongo"`
	Metrics struct {
		Listen string `yaml:"listen" env:"METRICS_LISTEN" env-default:""`
	} `yaml:"metrics"`
}

// RedisAddr returns host:port of the rate-limit store.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) MongoURI() string {
	return fmt.Sprintf("mongodb://%s:%s@%s:%s",
		c.Mongo.User, c.Mongo.Password,
		c.Mongo.Host, c.Mongo.Port)
}

// Load reads the yaml file at path, when it exists, and applies environment
// overrides on top of it. Without a file only the environment is used.
func Load(path string) (*Config, error) {
	conf := &Config{}

	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		err = cleanenv.ReadConfig(path, conf)
	} else if errors.Is(statErr, fs.ErrNotExist) {
		err = cleanenv.ReadEnv(conf)
	} else {
		return nil, fmt.Errorf("config: %w", statErr)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("config: %s; %s", err, desc)
	}

	return conf, nil
}

// MustLoad is Load for program start: configuration errors are fatal.
func MustLoad(path string) *Config {
	conf, err := Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return conf
}
