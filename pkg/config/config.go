package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/biodoia/goleapchain/pkg/database"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix è il prefisso delle variabili d'ambiente che sovrascrivono la configurazione
const EnvPrefix = "GOLEAPCHAIN"

// Client supportati per parlare con il modello
const (
	ClientResty       = "resty"
	ClientLangchaingo = "langchaingo"
)

// Config rappresenta la configurazione completa dell'applicazione
type Config struct {
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Examples   ExamplesConfig   `yaml:"examples" mapstructure:"examples"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Database   database.Config  `yaml:"database" mapstructure:"database"`
	History    HistoryConfig    `yaml:"history" mapstructure:"history"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// LLMConfig configurazione del provider LLM
type LLMConfig struct {
	Client            string  `yaml:"client" mapstructure:"client"` // "resty" o "langchaingo"
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env" mapstructure:"api_key_env"`
	Model             string  `yaml:"model" mapstructure:"model"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	Timeout           string  `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// APIKey viene risolta dall'ambiente e non viene mai serializzata
	APIKey string `yaml:"-" mapstructure:"-"`
}

// ExamplesConfig configurazione delle suite di esempi
type ExamplesConfig struct {
	Timeout            string `yaml:"timeout" mapstructure:"timeout"`
	MaxIterations      int    `yaml:"max_iterations" mapstructure:"max_iterations"`
	WikipediaUserAgent string `yaml:"wikipedia_user_agent" mapstructure:"wikipedia_user_agent"`
}

// CacheConfig configurazione del cache delle risposte
type CacheConfig struct {
	Enabled    bool        `yaml:"enabled" mapstructure:"enabled"`
	TTL        string      `yaml:"ttl" mapstructure:"ttl"`
	MaxEntries int         `yaml:"max_entries" mapstructure:"max_entries"`
	Redis      RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig configurazione Redis
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Host     string `yaml:"host" mapstructure:"host"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// HistoryConfig configurazione dello storico conversazioni
type HistoryConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// MonitoringConfig configurazione monitoring
type MonitoringConfig struct {
	Prometheus struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Addr    string `yaml:"addr" mapstructure:"addr"`
	} `yaml:"prometheus" mapstructure:"prometheus"`
	Logging struct {
		Level  string `yaml:"level" mapstructure:"level"`
		Format string `yaml:"format" mapstructure:"format"`
	} `yaml:"logging" mapstructure:"logging"`
}

// Load carica la configurazione da file, .env e variabili d'ambiente
func Load(configPath string) (*Config, error) {
	// .env opzionale: se manca si usa l'ambiente così com'è
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.LLM.APIKey = os.Getenv(cfg.LLM.APIKeyEnv)

	return &cfg, nil
}

// Default restituisce la configurazione composta dai soli valori di default
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults imposta i valori di default
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.client", ClientResty)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com")
	v.SetDefault("llm.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.requests_per_minute", 0)

	// Examples defaults
	v.SetDefault("examples.timeout", "10m")
	v.SetDefault("examples.max_iterations", 5)
	v.SetDefault("examples.wikipedia_user_agent", "goleapchain/1.0 (https://github.com/biodoia/goleapchain)")

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.host", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.connection", "./data/goleapchain.db")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.log_level", "silent")

	// History defaults
	v.SetDefault("history.enabled", false)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus.enabled", false)
	v.SetDefault("monitoring.prometheus.addr", "127.0.0.1:9090")
	v.SetDefault("monitoring.logging.level", "info")
	v.SetDefault("monitoring.logging.format", "console")
}

// Validate valida la configurazione
func (c *Config) Validate() error {
	switch c.LLM.Client {
	case ClientResty, ClientLangchaingo:
	default:
		return fmt.Errorf("invalid llm client: %q", c.LLM.Client)
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm model must not be empty")
	}

	u, err := url.Parse(c.LLM.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid llm base url: %q", c.LLM.BaseURL)
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature out of range: %v", c.LLM.Temperature)
	}

	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("invalid requests per minute: %d", c.LLM.RequestsPerMinute)
	}

	if c.Examples.MaxIterations < 1 {
		return fmt.Errorf("invalid max iterations: %d", c.Examples.MaxIterations)
	}

	for name, value := range map[string]string{
		"llm.timeout":      c.LLM.Timeout,
		"examples.timeout": c.Examples.Timeout,
		"cache.ttl":        c.Cache.TTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", name, value)
		}
	}

	if c.History.Enabled {
		switch c.Database.Type {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("unsupported database type: %s", c.Database.Type)
		}
	}

	return nil
}

// LLMTimeout restituisce il timeout delle richieste al modello
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// ExamplesTimeout restituisce il timeout complessivo di una suite
func (c *Config) ExamplesTimeout() time.Duration {
	return parseDuration(c.Examples.Timeout, 10*time.Minute)
}

// CacheTTL restituisce la durata delle entry in cache
func (c *Config) CacheTTL() time.Duration {
	return parseDuration(c.Cache.TTL, 10*time.Minute)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
