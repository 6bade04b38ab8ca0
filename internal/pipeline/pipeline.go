// Package pipeline runs one batch: select the window, fetch calls, then carry
// each call through eligibility, download, transcription, analysis and
// dispatch, strictly one call at a time.
package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"callscore-go/internal/aggregator"
	"callscore-go/internal/dispatch"
	"callscore-go/internal/download"
	"callscore-go/internal/eligibility"
	"callscore-go/internal/journal"
	"callscore-go/internal/logger"
	"callscore-go/internal/schedule"
	"callscore-go/internal/store"
	"callscore-go/internal/transcription"
	"callscore-go/internal/types"
)

type CallSource interface {
	Fetch(ctx context.Context, window types.CallWindow) []types.CallRecord
}

type DedupSource interface {
	Load(ctx context.Context) (*types.DedupIndex, error)
}

// ContactResolver enriches an eligible call with CRM details.
type ContactResolver interface {
	ManagerName(ctx context.Context, managerID int64) (string, error)
	ResolveLink(ctx context.Context, phone string, order *types.Order) string
}

type Downloader interface {
	Download(ctx context.Context, call types.CallRecord, index int, batch store.Batch, res download.Resolution) (*store.Artifact, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, transcriptPath string, assignRoles bool) string
}

type Analyzer interface {
	AnalyzeToFile(ctx context.Context, transcript string, batch store.Batch, base, managerName string) (*types.AnalysisResult, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, analysis types.AnalysisResult, meta dispatch.Meta, dedup *types.DedupIndex) dispatch.Outcome
}

type Journal interface {
	Record(ctx context.Context, e journal.Event) error
}

// Deps are the stages a Runner drives. Dedup, Contacts and Journal may be
// nil.
type Deps struct {
	Selector    *schedule.Selector
	Source      CallSource
	Dedup       DedupSource
	Policy      eligibility.Policy
	Contacts    ContactResolver
	Store       *store.Store
	Downloader  Downloader
	Transcriber Transcriber
	Analyzer    Analyzer
	// NewDispatcher is called once per run; dispatchers count rows per run.
	NewDispatcher func(window types.CallWindow) Dispatcher
	Journal       Journal
}

type Options struct {
	// Force runs the most recent window even outside trigger hours.
	Force       bool
	AssignRoles bool
}

// Result describes one run.
type Result struct {
	RunID    string
	Window   types.CallWindow
	Skipped  bool
	Outcomes []aggregator.Outcome
	Summary  aggregator.Summary
}

type Runner struct {
	deps Deps
	log  *logger.Logger
}

func NewRunner(deps Deps, log *logger.Logger) (*Runner, error) {
	switch {
	case deps.Selector == nil:
		return nil, errors.New("pipeline: selector is required")
	case deps.Source == nil, deps.Policy == nil, deps.Store == nil:
		return nil, errors.New("pipeline: source, policy and store are required")
	case deps.Downloader == nil, deps.Transcriber == nil, deps.Analyzer == nil, deps.NewDispatcher == nil:
		return nil, errors.New("pipeline: every stage is required")
	}
	return &Runner{deps: deps, log: log.Component("pipeline")}, nil
}

// Window returns the window a run at now would cover.
func (r *Runner) Window(now time.Time, force bool) (types.CallWindow, bool) {
	if force {
		return r.deps.Selector.Force(now), true
	}
	return r.deps.Selector.Select(now)
}

// Run processes one batch. Outside trigger hours it returns a skipped
// result. Per-call failures never surface as errors; only a cancelled
// context or an unusable data directory does.
func (r *Runner) Run(ctx context.Context, now time.Time, opts Options) (Result, error) {
	res := Result{RunID: logger.NewRunID()}
	window, ok := r.Window(now, opts.Force)
	if !ok {
		r.log.WithField("now", now.Format(time.RFC3339)).Info("not a trigger hour, nothing to do")
		res.Skipped = true
		return res, nil
	}
	res.Window = window
	log := r.log.WithRun(res.RunID, window)
	log.Info("run started")

	batch, err := r.deps.Store.Batch(window.BatchKey)
	if err != nil {
		return res, err
	}

	var dedup *types.DedupIndex
	if r.deps.Dedup != nil {
		dedup, err = r.deps.Dedup.Load(ctx)
		if err != nil {
			log.WithError(err).Warn("dedup index unavailable, duplicate checks disabled")
			dedup = nil
		}
	}

	calls := r.deps.Source.Fetch(ctx, window)
	log.WithField("calls", len(calls)).Info("calls fetched")
	r.record(ctx, res.RunID, window, 0, journal.StageFetch, "ok", strconv.Itoa(len(calls)))

	disp := r.deps.NewDispatcher(window)
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("run interrupted")
			res.Summary = aggregator.Aggregate(res.Outcomes)
			return res, err
		}
		res.Outcomes = append(res.Outcomes, r.processCall(ctx, log, res.RunID, window, batch, call, dedup, disp, opts))
	}

	res.Summary = aggregator.Aggregate(res.Outcomes)
	log.WithField("eligible", res.Summary.Eligible()).
		WithField("analyzed", res.Summary.Analyzed).
		WithField("scored", res.Summary.Scored).
		WithField("messaged", res.Summary.Messaged).
		Info("run finished")
	return res, nil
}

func (r *Runner) processCall(ctx context.Context, log *logger.Logger, runID string, window types.CallWindow, batch store.Batch,
	call types.CallRecord, dedup *types.DedupIndex, disp Dispatcher, opts Options) aggregator.Outcome {

	out := aggregator.Outcome{CommunicationID: call.CommunicationID}
	clog := log.WithCall(call)
	rec := func(stage, verdict, detail string) {
		r.record(ctx, runID, window, call.CommunicationID, stage, verdict, detail)
	}

	decision := r.deps.Policy.Decide(ctx, call, dedup)
	out.Reason = decision.Reason
	rec(journal.StageEligibility, string(decision.Reason), "")
	if !decision.Eligible {
		return out
	}

	resolution := r.resolve(ctx, call, decision.Order)

	index, err := r.index(batch, call)
	if err != nil {
		clog.WithField("error", err.Error()).Error("sequence index unavailable")
		out.Err = err.Error()
		rec(journal.StageDownload, "error", err.Error())
		return out
	}

	art, err := r.deps.Downloader.Download(ctx, call, index, batch, resolution)
	switch {
	case err != nil:
		clog.WithField("error", err.Error()).Error("download failed")
		out.Err = err.Error()
		rec(journal.StageDownload, "error", err.Error())
		return out
	case art == nil:
		out.TooShort = true
		rec(journal.StageDownload, "too-short", strconv.Itoa(call.DurationSec))
		return out
	}
	out.Downloaded = art.HasAudio
	if art.HasAudio {
		rec(journal.StageDownload, "ok", art.Base)
	} else {
		rec(journal.StageDownload, "no-audio", art.Base)
	}

	transcript := r.deps.Transcriber.Transcribe(ctx, art.AudioPath, batch.TranscriptPath(art.Base), opts.AssignRoles)
	if transcription.IsError(transcript) {
		out.TranscriptionFailed = true
		rec(journal.StageTranscribe, "error", transcript)
	} else {
		rec(journal.StageTranscribe, "ok", "")
	}

	analysis, err := r.deps.Analyzer.AnalyzeToFile(ctx, transcript, batch, art.Base, resolution.ManagerName)
	if err != nil {
		out.AnalysisFailed = true
		out.Err = err.Error()
		rec(journal.StageAnalyze, "failed", err.Error())
		return out
	}
	out.Analyzed = true
	out.Category = analysis.Category
	rec(journal.StageAnalyze, "ok", analysis.Category)

	deliveryPath := batch.DeliveryPath(art.Base)
	delivered, err := store.ReadDelivery(deliveryPath)
	if err != nil {
		clog.WithField("error", err.Error()).Warn("delivery marker unreadable, treating call as undelivered")
	}

	d := disp.Dispatch(ctx, *analysis, dispatch.Meta{
		Call:            call,
		ManagerName:     resolution.ManagerName,
		OrderLink:       resolution.OrderLink,
		RecordingURL:    art.RecordingURL,
		Transcript:      transcript,
		AlreadyScored:   delivered.Scored,
		AlreadyMessaged: delivered.Messaged,
	}, dedup)
	out.Scored = d.Scored
	out.Duplicate = d.Duplicate
	out.Messaged = d.Messaged
	out.AlreadyDelivered = d.AlreadyDelivered
	out.DeliveryFailed = d.ScoreErr != nil || d.MessageErr != nil

	if d.Scored || d.Messaged {
		if d.Scored {
			delivered.Scored = true
			delivered.RowNumber = d.RowNumber
		}
		delivered.Messaged = delivered.Messaged || d.Messaged
		delivered.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		if err := store.WriteJSON(deliveryPath, delivered); err != nil {
			clog.WithField("error", err.Error()).Error("delivery marker not written")
		}
	}

	switch {
	case d.Scored:
		rec(journal.StageScore, "sent", strconv.Itoa(d.RowNumber))
	case delivered.Scored:
		rec(journal.StageScore, "already-sent", strconv.Itoa(delivered.RowNumber))
	case d.Duplicate:
		rec(journal.StageScore, "duplicate", resolution.OrderLink)
	case d.ScoreErr != nil:
		rec(journal.StageScore, "error", d.ScoreErr.Error())
	}
	switch {
	case d.Messaged:
		rec(journal.StageMessage, "sent", "")
	case delivered.Messaged:
		rec(journal.StageMessage, "already-sent", "")
	case d.MessageErr != nil:
		rec(journal.StageMessage, "error", d.MessageErr.Error())
	}
	return out
}

// index reuses the sequence number a call was filed under on an earlier run
// and allocates the next free one otherwise.
func (r *Runner) index(batch store.Batch, call types.CallRecord) (int, error) {
	base, found, err := store.FindExisting(batch.AudioDir, call.CommunicationID)
	if err != nil {
		return 0, err
	}
	if found {
		if n, ok := store.IndexOf(base); ok {
			return n, nil
		}
	}
	return store.NextIndex(batch.AudioDir)
}

func (r *Runner) resolve(ctx context.Context, call types.CallRecord, order *types.Order) download.Resolution {
	var res download.Resolution
	if order != nil {
		res.OrderLink = order.Link
		res.OrderStatus = order.Status
	}
	if r.deps.Contacts == nil {
		return res
	}
	res.OrderLink = r.deps.Contacts.ResolveLink(ctx, call.ContactPhone, order)
	if order != nil && order.ManagerID != 0 {
		name, err := r.deps.Contacts.ManagerName(ctx, order.ManagerID)
		if err != nil {
			r.log.WithCall(call).WithField("error", err.Error()).Warn("manager lookup failed")
		}
		res.ManagerName = name
	}
	return res
}

func (r *Runner) record(ctx context.Context, runID string, window types.CallWindow, id int64, stage, verdict, detail string) {
	if r.deps.Journal == nil {
		return
	}
	err := r.deps.Journal.Record(ctx, journal.Event{
		RunID:           runID,
		BatchKey:        window.BatchKey,
		CommunicationID: id,
		Stage:           stage,
		Verdict:         verdict,
		Detail:          detail,
	})
	if err != nil {
		r.log.WithField("stage", stage).WithField("communication_id", id).WithField("error", err.Error()).Warn("journal write failed")
	}
}
