package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the pipeline. Values come from defaults, then
// the optional CONFIG_PATH file, then environment variables.
type Config struct {
	DataDir     string `yaml:"data_dir" toml:"data_dir"`
	JournalPath string `yaml:"journal_path" toml:"journal_path"`
	ReportsDir  string `yaml:"reports_dir" toml:"reports_dir"`

	Schedule  Schedule  `yaml:"schedule" toml:"schedule"`
	Pipeline  Pipeline  `yaml:"pipeline" toml:"pipeline"`
	Telephony Telephony `yaml:"telephony" toml:"telephony"`
	CRM       CRM       `yaml:"crm" toml:"crm"`
	OpenAI    OpenAI    `yaml:"openai" toml:"openai"`
	Sheets    Sheets    `yaml:"sheets" toml:"sheets"`
	Telegram  Telegram  `yaml:"telegram" toml:"telegram"`
	Retry     Retry     `yaml:"retry" toml:"retry"`
}

type Schedule struct {
	Timezone     string `yaml:"timezone" toml:"timezone"`
	TriggerHours []int  `yaml:"trigger_hours" toml:"trigger_hours"`
}

type Pipeline struct {
	MinDurationSec        int      `yaml:"min_duration_sec" toml:"min_duration_sec"`
	IncludeNoOrderHistory bool     `yaml:"include_no_order_history" toml:"include_no_order_history"`
	AssignRoles           bool     `yaml:"assign_roles" toml:"assign_roles"`
	AttachTranscript      bool     `yaml:"attach_transcript" toml:"attach_transcript"`
	AllowedStatuses       []string `yaml:"allowed_statuses" toml:"allowed_statuses"`
	ExcludedStatuses      []string `yaml:"excluded_statuses" toml:"excluded_statuses"`
	// EligibilityPolicy is PolicyOrderHistory or PolicyRecentOrder.
	EligibilityPolicy string `yaml:"eligibility_policy" toml:"eligibility_policy"`
	RecentOrderHours  int    `yaml:"recent_order_hours" toml:"recent_order_hours"`
}

const (
	PolicyOrderHistory = "order-history"
	PolicyRecentOrder  = "recent-order"
)

type Telephony struct {
	APIURL   string `yaml:"api_url" toml:"api_url"`
	MediaURL string `yaml:"media_url" toml:"media_url"`
	Token    string `yaml:"-" toml:"-"`
	PageSize int    `yaml:"page_size" toml:"page_size"`
}

type CRM struct {
	URL    string `yaml:"url" toml:"url"`
	APIKey string `yaml:"-" toml:"-"`
}

type OpenAI struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKey      string `yaml:"-" toml:"-"`
	LLMModel    string `yaml:"llm_model" toml:"llm_model"`
	STTModel    string `yaml:"stt_model" toml:"stt_model"`
	STTLanguage string `yaml:"stt_language" toml:"stt_language"`
	TimeoutSec  int    `yaml:"timeout_sec" toml:"timeout_sec"`
}

type Sheets struct {
	SheetID         string            `yaml:"sheet_id" toml:"sheet_id"`
	GID             string            `yaml:"gid" toml:"gid"`
	OrderLinkColumn string            `yaml:"order_link_column" toml:"order_link_column"`
	FormURL         string            `yaml:"form_url" toml:"form_url"`
	FormEntries     map[string]string `yaml:"form_entries" toml:"form_entries"`
}

type Telegram struct {
	APIURL   string   `yaml:"api_url" toml:"api_url"`
	BotToken string   `yaml:"-" toml:"-"`
	ChatIDs  []string `yaml:"chat_ids" toml:"chat_ids"`
}

type Retry struct {
	FetchAttempts    int `yaml:"fetch_attempts" toml:"fetch_attempts"`
	FetchInitialSec  int `yaml:"fetch_initial_sec" toml:"fetch_initial_sec"`
	AnalysisAttempts int `yaml:"analysis_attempts" toml:"analysis_attempts"`
	AnalysisDelaySec int `yaml:"analysis_delay_sec" toml:"analysis_delay_sec"`
	HTTPTimeoutSec   int `yaml:"http_timeout_sec" toml:"http_timeout_sec"`
}

// HTTPTimeout returns the per-request timeout for outbound HTTP calls.
func (c Config) HTTPTimeout() time.Duration {
	if c.Retry.HTTPTimeoutSec <= 0 {
		return defaultHTTPTimeoutSec * time.Second
	}
	return time.Duration(c.Retry.HTTPTimeoutSec) * time.Second
}

// LoadDotenv loads a .env file when present. A missing file is not an error.
func LoadDotenv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// Load builds the configuration from defaults, CONFIG_PATH and the environment.
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("empty config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

func applyEnv(cfg *Config) error {
	envString(&cfg.DataDir, "DATA_DIR")
	envString(&cfg.JournalPath, "JOURNAL_PATH")
	envString(&cfg.ReportsDir, "REPORTS_DIR")

	envString(&cfg.Schedule.Timezone, "BUSINESS_TZ")
	if v, ok := lookup("TRIGGER_HOURS"); ok {
		hours, err := parseHours(v)
		if err != nil {
			return fmt.Errorf("TRIGGER_HOURS: %w", err)
		}
		cfg.Schedule.TriggerHours = hours
	}

	if err := envInt(&cfg.Pipeline.MinDurationSec, "MIN_CALL_DURATION_SEC"); err != nil {
		return err
	}
	if err := envBool(&cfg.Pipeline.IncludeNoOrderHistory, "INCLUDE_NO_ORDER_HISTORY"); err != nil {
		return err
	}
	if err := envBool(&cfg.Pipeline.AssignRoles, "ASSIGN_ROLES"); err != nil {
		return err
	}
	if err := envBool(&cfg.Pipeline.AttachTranscript, "ATTACH_TRANSCRIPT"); err != nil {
		return err
	}
	envList(&cfg.Pipeline.AllowedStatuses, "ALLOWED_ORDER_STATUSES")
	envList(&cfg.Pipeline.ExcludedStatuses, "EXCLUDED_ORDER_STATUSES")
	envString(&cfg.Pipeline.EligibilityPolicy, "ELIGIBILITY_POLICY")
	if err := envInt(&cfg.Pipeline.RecentOrderHours, "RECENT_ORDER_HOURS"); err != nil {
		return err
	}

	envString(&cfg.Telephony.APIURL, "UIS_API_URL")
	envString(&cfg.Telephony.MediaURL, "UIS_MEDIA_URL")
	envString(&cfg.Telephony.Token, "UIS_API_TOKEN")

	envString(&cfg.CRM.URL, "RETAILCRM_URL")
	envString(&cfg.CRM.APIKey, "RETAILCRM_API_KEY")

	envString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	envString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	envString(&cfg.OpenAI.LLMModel, "LLM_MODEL")
	envString(&cfg.OpenAI.STTModel, "STT_MODEL")
	envString(&cfg.OpenAI.STTLanguage, "STT_LANGUAGE")

	envString(&cfg.Sheets.SheetID, "SHEET_ID")
	envString(&cfg.Sheets.GID, "SHEET_GID")
	envString(&cfg.Sheets.FormURL, "FORM_URL")

	envString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	envList(&cfg.Telegram.ChatIDs, "TELEGRAM_CHAT_IDS")

	if err := envInt(&cfg.Retry.FetchAttempts, "FETCH_MAX_ATTEMPTS"); err != nil {
		return err
	}
	return envInt(&cfg.Retry.HTTPTimeoutSec, "HTTP_TIMEOUT_SEC")
}

func (c *Config) normalize() {
	c.CRM.URL = strings.TrimRight(strings.TrimSpace(c.CRM.URL), "/")
	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")
	c.Telephony.MediaURL = strings.TrimRight(strings.TrimSpace(c.Telephony.MediaURL), "/")
	if c.JournalPath == "" {
		c.JournalPath = filepath.Join(c.DataDir, "journal.db")
	}
	if c.ReportsDir == "" {
		c.ReportsDir = filepath.Join(c.DataDir, "reports")
	}
}

// Validate rejects settings the pipeline cannot run with at all. Missing
// credentials are not errors here; see Warnings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("DATA_DIR is required")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("BUSINESS_TZ %q: %w", c.Schedule.Timezone, err)
	}
	if len(c.Schedule.TriggerHours) == 0 {
		return errors.New("at least one trigger hour is required")
	}
	prev := -1
	for _, h := range c.Schedule.TriggerHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("trigger hour %d out of range", h)
		}
		if h <= prev {
			return errors.New("trigger hours must be strictly increasing")
		}
		prev = h
	}
	if c.Pipeline.MinDurationSec < 0 {
		return errors.New("MIN_CALL_DURATION_SEC must not be negative")
	}
	switch c.Pipeline.EligibilityPolicy {
	case PolicyOrderHistory:
	case PolicyRecentOrder:
		if c.Pipeline.RecentOrderHours <= 0 {
			return errors.New("RECENT_ORDER_HOURS must be positive")
		}
	default:
		return fmt.Errorf("ELIGIBILITY_POLICY %q: want %s or %s", c.Pipeline.EligibilityPolicy, PolicyOrderHistory, PolicyRecentOrder)
	}
	return nil
}

// Warnings lists integrations that are not configured. Calls that need them
// fail and are logged; the rest of the pipeline keeps running.
func (c Config) Warnings() []string {
	var out []string
	if c.Telephony.Token == "" {
		out = append(out, "UIS_API_TOKEN not set: no calls can be fetched")
	}
	if c.CRM.APIKey == "" {
		out = append(out, "RETAILCRM_API_KEY not set: order lookups will fail")
	}
	if c.OpenAI.APIKey == "" {
		out = append(out, "OPENAI_API_KEY not set: transcription and analysis will fail")
	}
	if c.Sheets.SheetID == "" {
		out = append(out, "SHEET_ID not set: dedup index disabled")
	}
	if c.Sheets.FormURL == "" {
		out = append(out, "FORM_URL not set: scores only go to the local workbook")
	}
	if c.Telegram.BotToken == "" || len(c.Telegram.ChatIDs) == 0 {
		out = append(out, "TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_IDS not set: summaries will not be sent")
	}
	return out
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func envString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(dst *bool, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envList(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	*dst = splitList(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseHours(v string) ([]int, error) {
	var hours []int
	for _, part := range splitList(v) {
		h, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, nil
}
