package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Generator GeneratorConfig `json:"generator"`
	Challenge ChallengeConfig `json:"challenge"`
	Notify    NotifyConfig    `json:"notify,omitempty"`
	Cleanup   CleanupConfig   `json:"cleanup,omitempty"`
	Ops       *OpsConfig      `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the SQLite persistence layer.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// GeneratorConfig points at an Ollama-compatible chat endpoint used for
// feedback analysis and practice exercise generation.
type GeneratorConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	// Timeout is a Go duration string bounding a single generation call.
	Timeout string `json:"timeout,omitempty"`
}

// ChallengeConfig tunes the automated challenge scheduler and the review
// selection algorithm.
//
// All durations are Go duration strings. Defaults (when omitted/zero):
//   - weekly_cap: 4
//   - review_limit: 2
//   - recent_window: 50
//   - shuffle_chance: 0.3
//   - retry_delay: "1h"
//   - min_next / max_next: "48h" / "96h"
//   - fire_start_hour / fire_end_hour: 9 / 20
type ChallengeConfig struct {
	Enabled bool `json:"enabled"`

	WeeklyCap     int     `json:"weekly_cap,omitempty"`
	ReviewLimit   int     `json:"review_limit,omitempty"`
	RecentWindow  int     `json:"recent_window,omitempty"`
	ShuffleChance float64 `json:"shuffle_chance,omitempty"`

	RetryDelay string `json:"retry_delay,omitempty"`
	MinNext    string `json:"min_next,omitempty"`
	MaxNext    string `json:"max_next,omitempty"`

	FireStartHour int `json:"fire_start_hour,omitempty"`
	FireEndHour   int `json:"fire_end_hour,omitempty"`
}

// NotifyConfig controls outbound send rate limiting.
type NotifyConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
	RetryMax   int `json:"retry_max,omitempty"`
	// RetryBase is a Go duration string.
	RetryBase string `json:"retry_base,omitempty"`
}

// CleanupConfig controls periodic maintenance jobs.
type CleanupConfig struct {
	Enabled        bool   `json:"enabled"`
	RetentionWeeks int    `json:"retention_weeks,omitempty"` // default 26
	Timezone       string `json:"timezone,omitempty"`        // IANA TZ for cron specs
}

// OpsConfig controls the optional operational HTTP endpoint.
//
// Prefer binding to localhost. If you bind to a non-loopback address, set a
// token.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default "127.0.0.1:8090"
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)
}
