// Package dispatch routes analyzed calls to the scoring sheet and chat.
package dispatch

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"callscore-go/internal/logger"
	"callscore-go/internal/sinks"
	"callscore-go/internal/types"
)

const dateLayout = "02.01.2006"

// Meta is what the dispatcher needs to know about the call besides its
// analysis.
type Meta struct {
	Call         types.CallRecord
	ManagerName  string
	OrderLink    string
	RecordingURL string
	Transcript   string
	// Set from the call's delivery marker on re-runs.
	AlreadyScored   bool
	AlreadyMessaged bool
}

// Outcome records what happened to one call.
type Outcome struct {
	Scored    bool
	Duplicate bool
	RowNumber int
	Messaged  bool
	// AlreadyDelivered is set when a sink was skipped because an earlier run
	// reached it.
	AlreadyDelivered bool
	ScoreErr         error
	MessageErr       error
}

type Options struct {
	// AttachTranscript adds the transcript to scoring rows.
	AttachTranscript bool
	// Location formats the call date. Defaults to UTC.
	Location *time.Location
	// RowBase is the number of rows already in the scoring sink, used when
	// no dedup index is available.
	RowBase int
}

// Dispatcher is stateful: it counts rows sent during the run so row
// numbers continue after the rows already in the sheet.
type Dispatcher struct {
	score sinks.ScoreSink
	msg   sinks.Messenger
	opts  Options
	sent  int
	log   *logger.Logger
}

func New(score sinks.ScoreSink, msg sinks.Messenger, opts Options, log *logger.Logger) *Dispatcher {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Dispatcher{score: score, msg: msg, opts: opts, log: log.Component("dispatch")}
}

// Sent is the number of rows submitted so far.
func (d *Dispatcher) Sent() int { return d.sent }

// Dispatch sends an order call to the scoring sink unless its order link is
// already in dedup, and sends order and cooperation summaries to chat.
// Failures are logged and returned in the outcome, never raised.
func (d *Dispatcher) Dispatch(ctx context.Context, analysis types.AnalysisResult, meta Meta, dedup *types.DedupIndex) Outcome {
	log := d.log.WithCall(meta.Call).WithField("category", analysis.Category)
	var out Outcome

	if analysis.Category == types.CategoryOrder {
		switch {
		case meta.AlreadyScored:
			out.AlreadyDelivered = true
			log.Info("scoring row sent by an earlier run, skipped")
		case dedup.Contains(meta.OrderLink):
			out.Duplicate = true
			log.WithField("order_link", meta.OrderLink).Info("order already in scoring sheet, row skipped")
		case d.score == nil:
			log.Debug("no scoring sink configured")
		default:
			row := d.row(analysis, meta, dedup)
			if err := d.score.Submit(ctx, row); err != nil {
				out.ScoreErr = err
				log.WithField("error", err.Error()).Error("scoring row not delivered")
			} else {
				d.sent++
				out.Scored = true
				out.RowNumber = row.Number
				log.WithField("row", row.Number).Info("scoring row delivered")
			}
		}
	}

	if analysis.Category == types.CategoryOrder || analysis.Category == types.CategoryCooperation {
		switch {
		case meta.AlreadyMessaged:
			out.AlreadyDelivered = true
			log.Info("summary sent by an earlier run, skipped")
		case strings.TrimSpace(analysis.Summary) == "":
			log.Info("empty summary, chat message skipped")
		case d.msg == nil:
			log.Debug("no messenger configured")
		default:
			if err := d.msg.Send(ctx, FormatMessage(analysis, meta)); err != nil {
				out.MessageErr = err
				log.WithField("error", err.Error()).Error("summary not delivered")
			} else {
				out.Messaged = true
				log.Info("summary delivered")
			}
		}
	}
	return out
}

func (d *Dispatcher) row(analysis types.AnalysisResult, meta Meta, dedup *types.DedupIndex) sinks.Row {
	rows := d.opts.RowBase
	if dedup != nil {
		rows = dedup.Rows
	}
	manager := meta.ManagerName
	if manager == "" {
		manager = analysis.ManagerName
	}
	row := sinks.Row{
		Number:       rows + d.sent + 1,
		Manager:      manager,
		Phone:        meta.Call.ContactPhone,
		CallType:     CallType(meta.Call),
		OrderLink:    meta.OrderLink,
		Scores:       analysis.Scores,
		RecordingURL: meta.RecordingURL,
	}
	if !meta.Call.StartTime.IsZero() {
		row.Date = meta.Call.StartTime.In(d.opts.Location).Format(dateLayout)
	}
	if d.opts.AttachTranscript {
		row.Transcript = meta.Transcript
	}
	return row
}

// CallType renders direction and duration, e.g. "Входящий 2:05".
func CallType(call types.CallRecord) string {
	label := ""
	switch call.Direction {
	case types.DirectionInbound:
		label = "Входящий"
	case types.DirectionOutbound:
		label = "Исходящий"
	}
	dur := fmt.Sprintf("%d:%02d", call.DurationSec/60, call.DurationSec%60)
	if label == "" {
		return dur
	}
	return label + " " + dur
}

// FormatMessage renders the chat summary as Telegram HTML.
func FormatMessage(analysis types.AnalysisResult, meta Meta) string {
	title := "Звонок по заказу"
	if analysis.Category == types.CategoryCooperation {
		title = "Предложение о сотрудничестве"
	}
	manager := meta.ManagerName
	if manager == "" {
		manager = analysis.ManagerName
	}
	if manager == "" {
		manager = "не указан"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(title))
	fmt.Fprintf(&b, "Менеджер: %s\n", html.EscapeString(manager))
	fmt.Fprintf(&b, "Телефон: %s\n", html.EscapeString(meta.Call.ContactPhone))
	if meta.OrderLink != "" {
		fmt.Fprintf(&b, "Заказ: <a href=\"%s\">открыть в CRM</a>\n", html.EscapeString(meta.OrderLink))
	}
	if meta.RecordingURL != "" {
		fmt.Fprintf(&b, "Запись: <a href=\"%s\">прослушать</a>\n", html.EscapeString(meta.RecordingURL))
	}
	fmt.Fprintf(&b, "\n%s", html.EscapeString(strings.TrimSpace(analysis.Summary)))
	return b.String()
}
