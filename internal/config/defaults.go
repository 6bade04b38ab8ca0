package config

const (
	defaultDataDir          = "data"
	defaultTimezone         = "Europe/Moscow"
	defaultMinDurationSec   = 60
	defaultRecentOrderHours = 36
	defaultUISAPIURL        = "https://dataapi.uiscom.ru/v2.0"
	defaultUISMediaURL      = "https://app.uiscom.ru/system/media/talk"
	defaultUISPageSize      = 1000
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultLLMModel         = "gpt-4o"
	defaultSTTModel         = "whisper-1"
	defaultSTTLanguage      = "ru"
	defaultOpenAITimeoutSec = 120
	defaultOrderLinkColumn  = "Ссылка на заказ"
	defaultTelegramAPIURL   = "https://api.telegram.org"
	defaultFetchAttempts    = 5
	defaultFetchInitialSec  = 1
	defaultAnalysisAttempts = 3
	defaultAnalysisDelaySec = 2
	defaultHTTPTimeoutSec   = 30
)

var defaultTriggerHours = []int{11, 15, 20}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		DataDir: defaultDataDir,
		Schedule: Schedule{
			Timezone:     defaultTimezone,
			TriggerHours: append([]int(nil), defaultTriggerHours...),
		},
		Pipeline: Pipeline{
			MinDurationSec:    defaultMinDurationSec,
			AssignRoles:       true,
			EligibilityPolicy: PolicyOrderHistory,
			RecentOrderHours:  defaultRecentOrderHours,
		},
		Telephony: Telephony{
			APIURL:   defaultUISAPIURL,
			MediaURL: defaultUISMediaURL,
			PageSize: defaultUISPageSize,
		},
		OpenAI: OpenAI{
			BaseURL:     defaultOpenAIBaseURL,
			LLMModel:    defaultLLMModel,
			STTModel:    defaultSTTModel,
			STTLanguage: defaultSTTLanguage,
			TimeoutSec:  defaultOpenAITimeoutSec,
		},
		Sheets: Sheets{
			OrderLinkColumn: defaultOrderLinkColumn,
		},
		Telegram: Telegram{
			APIURL: defaultTelegramAPIURL,
		},
		Retry: Retry{
			FetchAttempts:    defaultFetchAttempts,
			FetchInitialSec:  defaultFetchInitialSec,
			AnalysisAttempts: defaultAnalysisAttempts,
			AnalysisDelaySec: defaultAnalysisDelaySec,
			HTTPTimeoutSec:   defaultHTTPTimeoutSec,
		},
	}
}
