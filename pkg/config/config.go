package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrWeightsSum is returned when AI and technical weights do not add up to
// roughly 100.
var ErrWeightsSum = errors.New("consensus weights must sum to 100±5")

// WeightTolerance is the allowed distance of the weight total from 100.
const WeightTolerance = 5.0

var validate = validator.New()

type AIProviderConfig struct {
	Name    string        `yaml:"name" validate:"required"`
	URL     string        `yaml:"url" validate:"omitempty,url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Weight  float64       `yaml:"weight" validate:"gte=0,lte=100"`
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

type AIConfig struct {
	Providers       []AIProviderConfig `yaml:"providers" validate:"dive"`
	TechnicalWeight float64            `yaml:"technical_weight" default:"25" validate:"gte=0,lte=100"`
	Timeout         time.Duration      `yaml:"timeout" default:"15s"`
	RateLimit       float64            `yaml:"rate_limit" default:"2" validate:"gt=0"`
	Burst           int                `yaml:"burst" default:"2" validate:"gte=1"`
}

type RegimeMinimums struct {
	Sideways float64 `yaml:"sideways" default:"45"`
	Bull     float64 `yaml:"bull" default:"50"`
	Bear     float64 `yaml:"bear" default:"65"`
	Default  float64 `yaml:"default" default:"60"`
}

type DedupConfig struct {
	LockTTL          time.Duration `yaml:"lock_ttl" default:"30m"`
	DuplicateWindow  time.Duration `yaml:"duplicate_window" default:"30m"`
	DuplicatePercent float64       `yaml:"duplicate_percent" default:"2" validate:"gt=0"`
	MinGap           time.Duration `yaml:"min_gap" default:"5m"`
	DailyCap         int           `yaml:"daily_cap" default:"6" validate:"gte=1"`
	HistorySize      int           `yaml:"history_size" default:"10" validate:"gte=1"`
	HistoryRetention time.Duration `yaml:"history_retention" default:"24h"`
	DailyRetention   time.Duration `yaml:"daily_retention" default:"168h"`
	// Timezone names the location whose calendar day keys the daily cap.
	Timezone string `yaml:"timezone" default:"Local"`
}

// Location resolves Timezone.
func (d DedupConfig) Location() (*time.Location, error) {
	if d.Timezone == "" || d.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(d.Timezone)
}

type SizingConfig struct {
	AccountBalance      float64 `yaml:"account_balance" default:"10000" validate:"gt=0"`
	RiskPerTradePercent float64 `yaml:"risk_per_trade_percent" default:"1" validate:"gt=0,lte=100"`
	MinNotional         float64 `yaml:"min_notional" default:"10" validate:"gte=0"`
	MaxLoss             float64 `yaml:"max_loss" default:"250" validate:"gt=0"`
}

type SignalConfig struct {
	MinConfidence         float64        `yaml:"min_confidence" default:"60" validate:"gte=0,lte=100"`
	ConfidenceBuffer      float64        `yaml:"confidence_buffer" default:"5" validate:"gte=0"`
	TechnicalMinimum      float64        `yaml:"technical_minimum" default:"55" validate:"gte=0,lte=100"`
	Regime                RegimeMinimums `yaml:"regime_minimums"`
	CounterTrendMinimum   float64        `yaml:"counter_trend_minimum" default:"80" validate:"gte=0,lte=100"`
	MinRiskReward         float64        `yaml:"min_risk_reward" default:"1.5" validate:"gt=0"`
	StaticStopLossPercent float64        `yaml:"static_stop_loss_percent" default:"2" validate:"gt=0,lt=100"`
	MultiTimeframe        bool           `yaml:"multi_timeframe" default:"true"`
	RejectConflicts       bool           `yaml:"reject_conflicts" default:"true"`
	Dedup                 DedupConfig    `yaml:"dedup"`
	Sizing                SizingConfig   `yaml:"sizing"`

	// Validity is how long a generated signal can still be executed.
	Validity      time.Duration `yaml:"validity" default:"30m"`
	BookRetention time.Duration `yaml:"book_retention" default:"24h"`
}

type ExitsConfig struct {
	Methods           []string  `yaml:"methods" default:"[\"volatility\",\"atr\",\"support_resistance\",\"fibonacci\",\"regime\"]"`
	Percents          []float64 `yaml:"percents" default:"[2.5,4.5,7]" validate:"len=3,dive,gt=0"`
	MinConfidence     float64   `yaml:"min_confidence" default:"60" validate:"gte=0,lte=100"`
	StaticFallback    bool      `yaml:"static_fallback" default:"true"`
	FibonacciLookback int       `yaml:"fibonacci_lookback" default:"50" validate:"gte=2"`
}

type PositionConfig struct {
	TrailingPercent float64   `yaml:"trailing_percent" default:"3" validate:"gte=0,lt=100"`
	TakerFee        float64   `yaml:"taker_fee" default:"0.0004" validate:"gte=0,lt=1"`
	Allocation      []float64 `yaml:"allocation" default:"[40,35,25]" validate:"len=3,dive,gte=0"`
	QuantityStep    float64   `yaml:"quantity_step" default:"0.001" validate:"gt=0"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level     string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format    string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
			Topic          string        `yaml:"topic" default:"ops-logs"`
		} `yaml:"collector"`
	} `yaml:"logger"`
	Symbols []string `yaml:"symbols" validate:"min=1,dive,required"`
	Binance struct {
		APIKey         string        `yaml:"api_key"`
		SecretKey      string        `yaml:"secret_key"`
		Testnet        bool          `yaml:"testnet"`
		StreamURL      string        `yaml:"stream_url" default:"wss://fstream.binance.com/stream"`
		StreamEnabled  bool          `yaml:"stream_enabled" default:"true"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		Timeout        time.Duration `yaml:"timeout" default:"10s"`
		CandleCount    int           `yaml:"candle_count" default:"250" validate:"gte=20,lte=1500"`
		PriceTTL       time.Duration `yaml:"price_ttl" default:"30s"`
		MaxTickRPS     int           `yaml:"max_tick_rps" default:"50"`
		MaxTickJump    float64       `yaml:"max_tick_jump" default:"20" validate:"gte=0"`
	} `yaml:"binance"`
	AI       AIConfig       `yaml:"ai"`
	Signal   SignalConfig   `yaml:"signal"`
	Exits    ExitsConfig    `yaml:"exits"`
	Position PositionConfig `yaml:"position"`
	Jobs     struct {
		GenerateInterval time.Duration `yaml:"generate_interval" default:"5m"`
		MonitorInterval  time.Duration `yaml:"monitor_interval" default:"10s"`
		PruneInterval    time.Duration `yaml:"prune_interval" default:"10m"`
		Concurrency      int           `yaml:"concurrency" default:"4" validate:"gte=1"`
	} `yaml:"jobs"`
	Kafka struct {
		Enabled         bool     `yaml:"enabled"`
		Brokers         []string `yaml:"brokers"`
		SignalsTopic    string   `yaml:"signals_topic" default:"trading-signals"`
		EventsTopic     string   `yaml:"events_topic" default:"position-events"`
		ExecutionsTopic string   `yaml:"executions_topic" default:"signal-executions"`
		RequiredAcks    int      `yaml:"required_acks" default:"1"`
		Compression     string   `yaml:"compression" default:"snappy"`
		Producer        struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"signal-engine"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"signal-executions-dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"signals"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
	} `yaml:"redis"`
	Notification struct {
		Enabled       bool   `yaml:"enabled"`
		TelegramToken string `yaml:"telegram_token"`
		ChatID        int64  `yaml:"chat_id"`
		Queue         string `yaml:"queue" default:"notifications"`
		Workers       int    `yaml:"workers" default:"2"`

		RetryLimit int           `yaml:"retry_limit" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
	} `yaml:"notification"`
}

// Parse applies defaults, decodes YAML over them and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads .env if present, then the YAML file, then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_SECRET_KEY"); v != "" {
		c.Binance.SecretKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notification.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Notification.ChatID = id
		}
	}
	for i := range c.AI.Providers {
		key := "AI_" + strings.ToUpper(strings.ReplaceAll(c.AI.Providers[i].Name, "-", "_")) + "_API_KEY"
		if v := os.Getenv(key); v != "" {
			c.AI.Providers[i].APIKey = v
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags, then the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.ValidateWeights(); err != nil {
		return err
	}
	if _, err := c.Signal.Dedup.Location(); err != nil {
		return fmt.Errorf("signal.dedup.timezone: %w", err)
	}
	p := c.Exits.Percents
	if !(p[0] < p[1] && p[1] < p[2]) {
		return fmt.Errorf("exits.percents must be ascending, got %v", p)
	}
	total := 0.0
	for _, a := range c.Position.Allocation {
		total += a
	}
	if total > 100 {
		return fmt.Errorf("position.allocation sums to %.1f, must not exceed 100", total)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	if c.Notification.Enabled && (c.Notification.TelegramToken == "" || c.Notification.ChatID == 0) {
		return fmt.Errorf("notification requires telegram_token and chat_id")
	}
	if c.Notification.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("notification queue requires redis")
	}
	return nil
}

// ValidateWeights enforces the consensus weight total. Disabled providers do
// not count.
func (c *Config) ValidateWeights() error {
	total := c.AI.TechnicalWeight
	for _, p := range c.AI.Providers {
		if p.Enabled {
			total += p.Weight
		}
	}
	if math.Abs(total-100) > WeightTolerance {
		return fmt.Errorf("%w: got %.1f", ErrWeightsSum, total)
	}
	return nil
}

// SourceWeights returns enabled provider weights keyed by name.
func (c *Config) SourceWeights() map[string]float64 {
	out := make(map[string]float64, len(c.AI.Providers))
	for _, p := range c.AI.Providers {
		if p.Enabled {
			out[p.Name] = p.Weight
		}
	}
	return out
}

// Triple copies the first three values of s.
func Triple(s []float64) [3]float64 {
	var out [3]float64
	copy(out[:], s)
	return out
}
