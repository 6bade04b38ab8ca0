package main

import (
	"net/http"
	"path/filepath"
	"time"

	"callscore-go/internal/analyzer"
	"callscore-go/internal/config"
	"callscore-go/internal/crm"
	"callscore-go/internal/dedup"
	"callscore-go/internal/dispatch"
	"callscore-go/internal/download"
	"callscore-go/internal/eligibility"
	"callscore-go/internal/journal"
	"callscore-go/internal/llm"
	"callscore-go/internal/logger"
	"callscore-go/internal/pipeline"
	"callscore-go/internal/retry"
	"callscore-go/internal/schedule"
	"callscore-go/internal/sinks"
	"callscore-go/internal/store"
	"callscore-go/internal/telephony"
	"callscore-go/internal/transcription"
	"callscore-go/internal/types"
)

// app is a fully wired pipeline plus the resources it owns.
type app struct {
	runner  *pipeline.Runner
	journal *journal.Journal
}

func (a *app) Close() error {
	if a.journal == nil {
		return nil
	}
	return a.journal.Close()
}

func newPolicy(cfg config.Config, lookup eligibility.OrderLookup, opts eligibility.Options, log *logger.Logger) eligibility.Policy {
	if cfg.Pipeline.EligibilityPolicy == config.PolicyRecentOrder {
		window := time.Duration(cfg.Pipeline.RecentOrderHours) * time.Hour
		return eligibility.NewRecentOrderPolicy(lookup, window, opts.IncludeNoOrderHistory, log)
	}
	return eligibility.NewOrderHistoryPolicy(lookup, opts, log)
}

func buildApp(cfg config.Config, log *logger.Logger) (*app, error) {
	sel, err := schedule.NewSelector(cfg.Schedule.Timezone, cfg.Schedule.TriggerHours)
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	fetchPolicy := retry.Exponential(cfg.Retry.FetchAttempts, time.Duration(cfg.Retry.FetchInitialSec)*time.Second)
	openAITimeout := time.Duration(cfg.OpenAI.TimeoutSec) * time.Second

	uis := telephony.NewClient(telephony.Config{
		APIURL:   cfg.Telephony.APIURL,
		MediaURL: cfg.Telephony.MediaURL,
		Token:    cfg.Telephony.Token,
		PageSize: cfg.Telephony.PageSize,
	}, log, telephony.WithHTTPClient(httpClient), telephony.WithRetryPolicy(fetchPolicy), telephony.WithLocation(sel.Location()))

	retailCRM := crm.NewClient(crm.Config{URL: cfg.CRM.URL, APIKey: cfg.CRM.APIKey}, log,
		crm.WithHTTPClient(httpClient), crm.WithLocation(sel.Location()))

	chat := llm.NewClient(llm.Config{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.LLMModel,
		Timeout: openAITimeout,
	}, log)
	stt := transcription.NewClient(transcription.Config{
		BaseURL:  cfg.OpenAI.BaseURL,
		APIKey:   cfg.OpenAI.APIKey,
		Model:    cfg.OpenAI.STTModel,
		Language: cfg.OpenAI.STTLanguage,
		Timeout:  openAITimeout,
	}, log)

	var dedupSource pipeline.DedupSource
	if cfg.Sheets.SheetID != "" {
		dedupSource = dedup.NewLoader(dedup.Config{
			SheetID: cfg.Sheets.SheetID,
			GID:     cfg.Sheets.GID,
			Column:  cfg.Sheets.OrderLinkColumn,
		}, log, dedup.WithHTTPClient(httpClient), dedup.WithRetryPolicy(fetchPolicy))
	}

	opts := eligibility.DefaultOptions()
	if len(cfg.Pipeline.AllowedStatuses) > 0 {
		opts.Allowed = cfg.Pipeline.AllowedStatuses
	}
	if len(cfg.Pipeline.ExcludedStatuses) > 0 {
		opts.Excluded = cfg.Pipeline.ExcludedStatuses
	}
	opts.IncludeNoOrderHistory = cfg.Pipeline.IncludeNoOrderHistory

	analysisPolicy := retry.Constant(cfg.Retry.AnalysisAttempts, time.Duration(cfg.Retry.AnalysisDelaySec)*time.Second)

	newDispatcher := func(w types.CallWindow) pipeline.Dispatcher {
		report := sinks.NewWorkbookSink(filepath.Join(cfg.ReportsDir, w.BatchKey+".xlsx"))
		rowBase, err := report.Rows()
		if err != nil {
			log.WithError(err).Warn("existing report unreadable, row numbers start at 1")
		}
		score := sinks.MultiSink{report}
		if cfg.Sheets.FormURL != "" {
			score = append(score, sinks.NewFormSink(cfg.Sheets.FormURL, cfg.Sheets.FormEntries, log, fetchPolicy))
		}
		var msg sinks.Messenger
		if cfg.Telegram.BotToken != "" && len(cfg.Telegram.ChatIDs) > 0 {
			msg = sinks.NewTelegram(cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.ChatIDs, log, fetchPolicy)
		}
		return dispatch.New(score, msg, dispatch.Options{
			AttachTranscript: cfg.Pipeline.AttachTranscript,
			Location:         sel.Location(),
			RowBase:          rowBase,
		}, log)
	}

	runner, err := pipeline.NewRunner(pipeline.Deps{
		Selector:      sel,
		Source:        uis,
		Dedup:         dedupSource,
		Policy:        newPolicy(cfg, retailCRM, opts, log),
		Contacts:      retailCRM,
		Store:         store.New(cfg.DataDir),
		Downloader:    download.New(uis, cfg.Pipeline.MinDurationSec, log),
		Transcriber:   transcription.NewTranscriber(stt, chat, log),
		Analyzer:      analyzer.New(chat, analysisPolicy, log),
		NewDispatcher: newDispatcher,
		Journal:       j,
	}, log)
	if err != nil {
		j.Close()
		return nil, err
	}
	return &app{runner: runner, journal: j}, nil
}
