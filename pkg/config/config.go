package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Pipeline    PipelineConfig
	Redis       RedisConfig
	SQLite      SQLiteConfig
	LLM         LLMConfig
	Translation TranslationConfig
	Weather     WeatherConfig
	Market      MarketConfig
	Geocoding   GeocodingConfig
	Tracing     TracingConfig
	Logging     LoggingConfig
	Admin       AdminConfig
}

type ServerConfig struct {
	Host              string
	Port              int
	ReadTimeout       int
	WriteTimeout      int
	BodyLimit         int
	RequestsPerMinute int
	AllowedOrigins    []string
	Development       bool
}

// PipelineConfig holds the query pipeline knobs. Durations are in milliseconds
// and cache TTLs in seconds, keyed by tool kind.
type PipelineConfig struct {
	WorkingLanguage               string
	TokenBudget                   int
	PerToolTimeoutMs              int
	PipelineDeadlineMs            int
	SynthesisReserveMs            int
	ClassifierConfidenceThreshold float64
	SecondaryIntentThreshold      float64
	RelevanceThreshold            float64
	MaxQuestionLength             int
	MultiIntent                   string
	CacheTTLByToolKind            map[string]int
	PriorContextTTLSec            int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type SQLiteConfig struct {
	Path string
}

type LLMConfig struct {
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type TranslationConfig struct {
	TimeoutMs        int
	GroqBaseURL      string
	GroqAPIKey       string
	GroqModel        string
	HuggingFaceURL   string
	HuggingFaceToken string
}

type WeatherConfig struct {
	BaseURL string
}

type MarketConfig struct {
	BaseURL            string
	DefaultCommodities []string
	LookbackDays       int
}

type GeocodingConfig struct {
	BaseURL   string
	UserAgent string
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// AdminConfig guards the cache and trace endpoints. They stay locked while
// Token is empty.
type AdminConfig struct {
	Token string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/farmora")

	v.SetEnvPrefix("FARMORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.requestsPerMinute", 60)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("pipeline.workingLanguage", "en")
	v.SetDefault("pipeline.tokenBudget", 600)
	v.SetDefault("pipeline.perToolTimeoutMs", 8000)
	v.SetDefault("pipeline.pipelineDeadlineMs", 12000)
	v.SetDefault("pipeline.synthesisReserveMs", 3000)
	v.SetDefault("pipeline.classifierConfidenceThreshold", 0.3)
	v.SetDefault("pipeline.secondaryIntentThreshold", 0.5)
	v.SetDefault("pipeline.relevanceThreshold", 0.2)
	v.SetDefault("pipeline.maxQuestionLength", 1000)
	v.SetDefault("pipeline.multiIntent", "merged")
	v.SetDefault("pipeline.priorContextTTLSec", 21600)
	v.SetDefault("pipeline.cacheTTLByToolKind", map[string]int{
		"weather":      3600,
		"market_price": 86400,
		"geolocation":  604800,
		"translation":  86400,
	})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("sqlite.path", "./data/farmora.db")

	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.baseURL", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.maxTokens", 800)
	v.SetDefault("llm.timeoutSec", 8)

	v.SetDefault("translation.timeoutMs", 3000)
	v.SetDefault("translation.groqBaseURL", "https://api.groq.com/openai/v1")
	v.SetDefault("translation.groqModel", "llama-3.1-8b-instant")
	v.SetDefault("translation.huggingFaceURL", "https://api-inference.huggingface.co/models/facebook/nllb-200-distilled-600M")

	v.SetDefault("weather.baseURL", "https://api.open-meteo.com/v1/forecast")

	v.SetDefault("market.baseURL", "https://agmarknet.gov.in/SearchCmmMkt.aspx")
	v.SetDefault("market.defaultCommodities", []string{"Rice", "Wheat"})
	v.SetDefault("market.lookbackDays", 14)

	v.SetDefault("geocoding.baseURL", "https://nominatim.openstreetmap.org/reverse")
	v.SetDefault("geocoding.userAgent", "farmora-backend/1.0")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "http://localhost:4318")
	v.SetDefault("tracing.serviceName", "farmora-backend")
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("admin.token", "")
}

// Duration helpers used when wiring the pipeline.

func (p PipelineConfig) PerToolTimeout() time.Duration {
	return time.Duration(p.PerToolTimeoutMs) * time.Millisecond
}

func (p PipelineConfig) PipelineDeadline() time.Duration {
	return time.Duration(p.PipelineDeadlineMs) * time.Millisecond
}

func (p PipelineConfig) SynthesisReserve() time.Duration {
	return time.Duration(p.SynthesisReserveMs) * time.Millisecond
}

func (p PipelineConfig) PriorContextTTL() time.Duration {
	return time.Duration(p.PriorContextTTLSec) * time.Second
}

// CacheTTL returns the configured TTL for a tool kind, or fallback when unset.
func (p PipelineConfig) CacheTTL(kind string, fallback time.Duration) time.Duration {
	if secs, ok := p.CacheTTLByToolKind[kind]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func (t TranslationConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}
