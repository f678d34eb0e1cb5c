// Package config defines the root configuration schema for the voice ledger
// agent and loads it from YAML with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure, loaded from YAML via Load.
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Speaker    SpeakerConfig    `yaml:"speaker"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Transaction TransactionConfig `yaml:"transaction"`
	Queue      QueueConfig      `yaml:"queue"`
	Store      StoreConfig      `yaml:"store"`
	Sync       SyncConfig       `yaml:"sync"`
	Market     MarketConfig     `yaml:"market"`
	Summary    SummaryConfig    `yaml:"summary"`
	Features   FeatureToggles   `yaml:"features"`
}

// AudioConfig configures capture.
type AudioConfig struct {
	SampleRate   int `yaml:"sample_rate"`    // Hz, fixed at 16000 per spec
	FrameMillis  int `yaml:"frame_millis"`   // 10 or 30, constant per process
	BufferPool   int `yaml:"buffer_pool"`    // number of pooled frame buffers, default 64
	MaxLagFrames int `yaml:"max_lag_frames"` // consumer lag before a dropped-frame log event, default 100
}

// VADConfig configures voice-activity detection.
type VADConfig struct {
	Policy            string        `yaml:"policy"` // "energy_zc" or "webrtc"
	WebRTCMode        string        `yaml:"webrtc_mode"` // Quality|LowBitrate|Aggressive|VeryAggressive
	EnergyThreshold   float64       `yaml:"energy_threshold"`
	SmoothingWindow   int           `yaml:"smoothing_window"`   // default 5
	TailSilenceFrames int           `yaml:"tail_silence_frames"` // default corresponds to 500ms
	LightSleepAfter   time.Duration `yaml:"light_sleep_after"`  // default 30s
	DeepSleepAfter    time.Duration `yaml:"deep_sleep_after"`   // default 5m
}

// SpeakerConfig configures speaker identification.
type SpeakerConfig struct {
	SellerThreshold        float64 `yaml:"seller_threshold"`         // default 0.85
	CustomerThreshold      float64 `yaml:"customer_threshold"`       // default 0.75
	EnrollmentMinSimilarity float64 `yaml:"enrollment_min_similarity"` // default 0.7
	RollingUpdateWeight    float64 `yaml:"rolling_update_weight"`    // default 0.2 (incoming weight)
}

// RecognizerConfig configures the STT orchestrator.
type RecognizerConfig struct {
	PreferOffline        bool          `yaml:"prefer_offline"`
	OnlineChunkMaxSeconds int          `yaml:"online_chunk_max_seconds"` // default 60
	OnlineCallTimeout     time.Duration `yaml:"online_call_timeout"`     // default 20s
	SessionTimeout        time.Duration `yaml:"session_timeout"`        // default 60s
	MaxRetries            int          `yaml:"max_retries"`              // default 3
	BackoffBase           time.Duration `yaml:"backoff_base"`            // default 1s
	BackoffCap            time.Duration `yaml:"backoff_cap"`             // default 30s
	CircuitMaxFailures    int          `yaml:"circuit_max_failures"`     // default 3
	CircuitResetTimeout   time.Duration `yaml:"circuit_reset_timeout"`   // default 60s
	OfflineServerURL      string       `yaml:"offline_server_url"`
}

// TransactionConfig configures the state machine thresholds.
type TransactionConfig struct {
	AutoSaveThreshold  float64       `yaml:"auto_save_threshold"`  // default 0.8
	ReviewThreshold    float64       `yaml:"review_threshold"`     // default 0.5
	InactivityTimeout  time.Duration `yaml:"inactivity_timeout"`   // default 120s
	PaymentHold        time.Duration `yaml:"payment_hold"`         // default 2s
}

// QueueConfig configures the offline operation queue.
type QueueConfig struct {
	MaxQueueSize      int           `yaml:"max_queue_size"`       // default 1000
	MaxRetryAttempts  int           `yaml:"max_retry_attempts"`   // default 3
	RetryDelayUnit    time.Duration `yaml:"retry_delay_unit"`     // default 30s, multiplied by retry_count
	CompletedGrace    time.Duration `yaml:"completed_grace"`      // default 5s
	CompletedMaxAge   time.Duration `yaml:"completed_max_age"`    // default 30 * 24h
	AbsoluteMaxAge     time.Duration `yaml:"absolute_max_age"`    // default 60 * 24h
	GCInterval         time.Duration `yaml:"gc_interval"`          // default 24h
}

// StoreConfig configures the local ACID store.
type StoreConfig struct {
	Path               string        `yaml:"path"` // sqlite file path
	AudioMetadataTTL   time.Duration `yaml:"audio_metadata_ttl"`   // default 30 * 24h
}

// SyncConfig configures the remote HTTP sync client.
type SyncConfig struct {
	BaseURL      string        `yaml:"base_url"`
	DeviceToken  string        `yaml:"device_token"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"` // default 15s
	PollInterval time.Duration `yaml:"poll_interval"` // network quality reassessment, default 15s
}

// MarketConfig holds market-hours and locale settings.
type MarketConfig struct {
	Currency         string `yaml:"currency"` // "GHS"
	MarketHoursStart int    `yaml:"market_hours_start"` // hour 0-23
	MarketHoursEnd   int    `yaml:"market_hours_end"`
}

// SummaryConfig configures the scheduled daily summary recompute job.
type SummaryConfig struct {
	Schedule string `yaml:"schedule"` // standard 5-field cron spec, default "5 0 * * *" (00:05 daily)
}

// FeatureToggles are the enumerated options of §6.
type FeatureToggles struct {
	EnableOfflineMode         bool `yaml:"enable_offline_mode"`
	EnableMultiLanguage       bool `yaml:"enable_multi_language"`
	EnableSpeakerIdentification bool `yaml:"enable_speaker_identification"`
	EnableDailySummaries      bool `yaml:"enable_daily_summaries"`
}

// Default returns a Config populated with the documented defaults.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			SampleRate:   16000,
			FrameMillis:  10,
			BufferPool:   64,
			MaxLagFrames: 100,
		},
		VAD: VADConfig{
			Policy:            "energy_zc",
			WebRTCMode:        "Aggressive",
			EnergyThreshold:   0.02,
			SmoothingWindow:   5,
			TailSilenceFrames: 50, // 50 * 10ms = 500ms
			LightSleepAfter:   30 * time.Second,
			DeepSleepAfter:    5 * time.Minute,
		},
		Speaker: SpeakerConfig{
			SellerThreshold:         0.85,
			CustomerThreshold:       0.75,
			EnrollmentMinSimilarity: 0.7,
			RollingUpdateWeight:     0.2,
		},
		Recognizer: RecognizerConfig{
			PreferOffline:         false,
			OnlineChunkMaxSeconds: 60,
			OnlineCallTimeout:     20 * time.Second,
			SessionTimeout:        60 * time.Second,
			MaxRetries:            3,
			BackoffBase:           1 * time.Second,
			BackoffCap:            30 * time.Second,
			CircuitMaxFailures:    3,
			CircuitResetTimeout:   60 * time.Second,
		},
		Transaction: TransactionConfig{
			AutoSaveThreshold: 0.8,
			ReviewThreshold:   0.5,
			InactivityTimeout: 120 * time.Second,
			PaymentHold:       2 * time.Second,
		},
		Queue: QueueConfig{
			MaxQueueSize:     1000,
			MaxRetryAttempts: 3,
			RetryDelayUnit:   30 * time.Second,
			CompletedGrace:   5 * time.Second,
			CompletedMaxAge:  30 * 24 * time.Hour,
			AbsoluteMaxAge:   60 * 24 * time.Hour,
			GCInterval:       24 * time.Hour,
		},
		Store: StoreConfig{
			Path:             "ledger.db",
			AudioMetadataTTL: 30 * 24 * time.Hour,
		},
		Sync: SyncConfig{
			HTTPTimeout:  15 * time.Second,
			PollInterval: 15 * time.Second,
		},
		Market: MarketConfig{
			Currency:         "GHS",
			MarketHoursStart: 6,
			MarketHoursEnd:   19,
		},
		Summary: SummaryConfig{
			Schedule: "5 0 * * *",
		},
		Features: FeatureToggles{
			EnableOfflineMode:           true,
			EnableMultiLanguage:         false,
			EnableSpeakerIdentification: true,
			EnableDailySummaries:        true,
		},
	}
}

// Load reads a YAML config file at path, merges it over Default(), then
// applies a small set of environment-variable overrides for the values most
// often adjusted per-device (device token, sync URL, store path). It loads a
// sibling .env file first, but does not fail if one is absent.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides layers a handful of deployment-specific environment
// variables on top of the YAML-loaded config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LEDGER_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("LEDGER_SYNC_BASE_URL"); v != "" {
		cfg.Sync.BaseURL = v
	}
	if v := os.Getenv("LEDGER_SYNC_DEVICE_TOKEN"); v != "" {
		cfg.Sync.DeviceToken = v
	}
	if v := os.Getenv("LEDGER_RECOGNIZER_OFFLINE_URL"); v != "" {
		cfg.Recognizer.OfflineServerURL = v
	}
}

// Validate rejects configurations that would make the pipeline's invariants
// impossible to uphold (threshold ordering, positive durations).
func (c Config) Validate() error {
	if c.Transaction.ReviewThreshold >= c.Transaction.AutoSaveThreshold {
		return fmt.Errorf("config: review_threshold must be lower than auto_save_threshold")
	}
	if c.Speaker.CustomerThreshold > c.Speaker.SellerThreshold {
		return fmt.Errorf("config: customer_threshold must not exceed seller_threshold")
	}
	if c.Audio.FrameMillis != 10 && c.Audio.FrameMillis != 30 {
		return fmt.Errorf("config: frame_millis must be 10 or 30")
	}
	if c.Queue.MaxQueueSize <= 0 {
		return fmt.Errorf("config: max_queue_size must be positive")
	}
	if c.Market.MarketHoursStart < 0 || c.Market.MarketHoursEnd > 24 || c.Market.MarketHoursStart >= c.Market.MarketHoursEnd {
		return fmt.Errorf("config: invalid market hours window")
	}
	return nil
}

// IsMarketHours reports whether t's local hour falls inside the configured
// market-hours window.
func (c Config) IsMarketHours(t time.Time) bool {
	h := t.Local().Hour()
	return h >= c.Market.MarketHoursStart && h < c.Market.MarketHoursEnd
}
