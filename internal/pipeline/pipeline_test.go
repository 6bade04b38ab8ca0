package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callscore-go/internal/analyzer"
	"callscore-go/internal/dispatch"
	"callscore-go/internal/download"
	"callscore-go/internal/eligibility"
	"callscore-go/internal/journal"
	"callscore-go/internal/logger"
	"callscore-go/internal/retry"
	"callscore-go/internal/schedule"
	"callscore-go/internal/sinks"
	"callscore-go/internal/store"
	"callscore-go/internal/transcription"
	"callscore-go/internal/types"
)

const orderAnalysis = `{"scores":{"voice_warmth":1,"qualification":-1},"summary":"Клиент оформил заказ","category":"order"}`

type fakeSource struct {
	calls   []types.CallRecord
	fetched int
}

func (f *fakeSource) Fetch(ctx context.Context, window types.CallWindow) []types.CallRecord {
	f.fetched++
	return f.calls
}

type fakeDedup struct {
	idx *types.DedupIndex
	err error
}

func (f fakeDedup) Load(ctx context.Context) (*types.DedupIndex, error) { return f.idx, f.err }

type fakeOrders map[string]*types.Order

func (f fakeOrders) LatestOrder(ctx context.Context, phone string) (*types.Order, error) {
	return f[phone], nil
}

type fakeContacts struct{}

func (fakeContacts) ManagerName(ctx context.Context, id int64) (string, error) {
	return fmt.Sprintf("Менеджер %d", id), nil
}

func (fakeContacts) ResolveLink(ctx context.Context, phone string, order *types.Order) string {
	if order == nil {
		return ""
	}
	return order.Link
}

type fakeRecordings struct {
	failing map[int64]bool
}

func (f fakeRecordings) RecordingURL(call types.CallRecord) string {
	return fmt.Sprintf("https://media.test/%d/rec/", call.CommunicationID)
}

func (f fakeRecordings) FetchRecording(ctx context.Context, url string) ([]byte, error) {
	for id := range f.failing {
		if url == fmt.Sprintf("https://media.test/%d/rec/", id) {
			return nil, errors.New("404")
		}
	}
	return []byte("ID3 fake audio"), nil
}

type countingSTT struct{ n int }

func (s *countingSTT) Transcribe(ctx context.Context, audioPath string) (string, error) {
	s.n++
	return "Менеджер: Здравствуйте. Клиент: Хочу заказать.", nil
}

type countingLLM struct {
	n     int
	reply string
}

func (l *countingLLM) Complete(ctx context.Context, prompt string) (string, error) {
	l.n++
	return l.reply, nil
}

type rowSink struct{ rows []sinks.Row }

func (s *rowSink) Submit(ctx context.Context, row sinks.Row) error {
	s.rows = append(s.rows, row)
	return nil
}

type chat struct{ texts []string }

func (c *chat) Send(ctx context.Context, text string) error {
	c.texts = append(c.texts, text)
	return nil
}

type memJournal struct {
	mu     sync.Mutex
	events []journal.Event
}

func (j *memJournal) Record(ctx context.Context, e journal.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return nil
}

func (j *memJournal) verdicts(id int64) map[string]string {
	out := map[string]string{}
	for _, e := range j.events {
		if e.CommunicationID == id {
			out[e.Stage] = e.Verdict
		}
	}
	return out
}

type harness struct {
	runner  *Runner
	store   *store.Store
	source  *fakeSource
	stt     *countingSTT
	llm     *countingLLM
	rows    *rowSink
	chat    *chat
	journal *memJournal
	loc     *time.Location
}

func newHarness(t *testing.T, calls []types.CallRecord, dedup DedupSource, recs fakeRecordings) *harness {
	t.Helper()
	sel, err := schedule.NewSelector("Europe/Moscow", []int{11, 15, 20})
	require.NoError(t, err)

	log := logger.Discard()
	h := &harness{
		store:   store.New(t.TempDir()),
		source:  &fakeSource{calls: calls},
		stt:     &countingSTT{},
		llm:     &countingLLM{reply: orderAnalysis},
		rows:    &rowSink{},
		chat:    &chat{},
		journal: &memJournal{},
		loc:     sel.Location(),
	}
	orders := fakeOrders{
		"79990000001": {ID: 1, Status: "new", ManagerID: 7, Link: "https://crm.test/orders/1/edit"},
		"79990000002": {ID: 2, Status: "complete", ManagerID: 7, Link: "https://crm.test/orders/2/edit"},
		"79990000003": {ID: 3, Status: "assembling", Link: "https://crm.test/orders/3/edit"},
	}
	h.runner, err = NewRunner(Deps{
		Selector:    sel,
		Source:      h.source,
		Dedup:       dedup,
		Policy:      eligibility.NewOrderHistoryPolicy(orders, eligibility.DefaultOptions(), log),
		Contacts:    fakeContacts{},
		Store:       h.store,
		Downloader:  download.New(recs, 60, log),
		Transcriber: transcription.NewTranscriber(h.stt, h.llm, log),
		Analyzer:    analyzer.New(h.llm, retry.Constant(2, 0), log),
		NewDispatcher: func(types.CallWindow) Dispatcher {
			return dispatch.New(h.rows, h.chat, dispatch.Options{Location: sel.Location()}, log)
		},
		Journal: h.journal,
	}, log)
	require.NoError(t, err)
	return h
}

func (h *harness) triggerTime() time.Time {
	return time.Date(2026, 3, 10, 15, 2, 0, 0, h.loc)
}

func call(id int64, phone string, duration int) types.CallRecord {
	return types.CallRecord{
		CommunicationID: id,
		ContactPhone:    phone,
		Direction:       types.DirectionInbound,
		StartTime:       time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC),
		DurationSec:     duration,
		RecordIDs:       []string{"rec"},
	}
}

func TestRunSkipsOutsideTriggerHours(t *testing.T) {
	h := newHarness(t, []types.CallRecord{call(1, "79990000001", 120)}, nil, fakeRecordings{})

	res, err := h.runner.Run(context.Background(), time.Date(2026, 3, 10, 13, 0, 0, 0, h.loc), Options{})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, h.source.fetched)
}

func TestRunForceUsesLatestWindow(t *testing.T) {
	h := newHarness(t, nil, nil, fakeRecordings{})

	res, err := h.runner.Run(context.Background(), time.Date(2026, 3, 10, 13, 0, 0, 0, h.loc), Options{Force: true})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 11, res.Window.End.Hour())
	assert.Equal(t, 1, h.source.fetched)
}

func TestRunProcessesMixedBatch(t *testing.T) {
	calls := []types.CallRecord{
		call(101, "79990000001", 125),
		call(102, "", 300),
		call(103, "79990000002", 30),
		call(104, "79990000002", 200),
		call(105, "79990000003", 200),
		call(106, "79990000009", 200),
	}
	dedup := fakeDedup{idx: types.NewDedupIndex([]string{"https://crm.test/orders/2/edit"}, 41)}
	h := newHarness(t, calls, dedup, fakeRecordings{})

	res, err := h.runner.Run(context.Background(), h.triggerTime(), Options{})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, len(calls))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "10.03.2026", res.Window.BatchKey)

	s := res.Summary
	assert.Equal(t, 6, s.Calls)
	assert.Equal(t, 1, s.ByReason[types.ReasonIncluded])
	assert.Equal(t, 1, s.ByReason[types.ReasonMissingCallData])
	assert.Equal(t, 2, s.ByReason[types.ReasonDuplicateOrder])
	assert.Equal(t, 1, s.ByReason[types.ReasonStatusNotAllowed])
	assert.Equal(t, 1, s.ByReason[types.ReasonNoOrderHistory])
	assert.Equal(t, 1, s.Analyzed)
	assert.Equal(t, 1, s.Scored)
	assert.Equal(t, 1, s.Messaged)

	require.Len(t, h.rows.rows, 1)
	row := h.rows.rows[0]
	assert.Equal(t, 42, row.Number)
	assert.Equal(t, "Менеджер 7", row.Manager)
	assert.Equal(t, "https://crm.test/orders/1/edit", row.OrderLink)
	assert.Equal(t, "10.03.2026", row.Date)
	require.Len(t, h.chat.texts, 1)
	assert.Contains(t, h.chat.texts[0], "Клиент оформил заказ")

	batch, err := h.store.Batch(res.Window.BatchKey)
	require.NoError(t, err)
	assert.FileExists(t, batch.AudioPath("call1_79990000001"))
	assert.FileExists(t, batch.SidecarPath("call1_79990000001"))
	assert.FileExists(t, batch.TranscriptPath("call1_79990000001"))
	assert.FileExists(t, batch.AnalysisPath("call1_79990000001"))

	assert.Equal(t, map[string]string{
		journal.StageEligibility: string(types.ReasonIncluded),
		journal.StageDownload:    "ok",
		journal.StageTranscribe:  "ok",
		journal.StageAnalyze:     "ok",
		journal.StageScore:       "sent",
		journal.StageMessage:     "sent",
	}, h.journal.verdicts(101))
	assert.Equal(t, map[string]string{
		journal.StageEligibility: string(types.ReasonMissingCallData),
	}, h.journal.verdicts(102))
	assert.Equal(t, map[string]string{
		journal.StageEligibility: string(types.ReasonStatusNotAllowed),
	}, h.journal.verdicts(105))
}

func TestRunTooShortCallLeavesNoArtifacts(t *testing.T) {
	h := newHarness(t, []types.CallRecord{call(201, "79990000001", 59)}, nil, fakeRecordings{})

	res, err := h.runner.Run(context.Background(), h.triggerTime(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.TooShort)
	assert.Zero(t, h.stt.n)

	entries, err := os.ReadDir(filepath.Join(h.store.Root, "audio", res.Window.BatchKey))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, "too-short", h.journal.verdicts(201)[journal.StageDownload])
}

func TestRunTwiceReusesArtifacts(t *testing.T) {
	calls := []types.CallRecord{call(301, "79990000001", 120), call(302, "79990000002", 90)}
	h := newHarness(t, calls, nil, fakeRecordings{})

	_, err := h.runner.Run(context.Background(), h.triggerTime(), Options{})
	require.NoError(t, err)
	require.Equal(t, 2, h.stt.n)
	require.Equal(t, 2, h.llm.n)

	res, err := h.runner.Run(context.Background(), h.triggerTime(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, h.stt.n, "transcripts are reused")
	assert.Equal(t, 2, h.llm.n, "analyses are reused")
	assert.Equal(t, 2, res.Summary.Analyzed)

	batch, err := h.store.Batch(res.Window.BatchKey)
	require.NoError(t, err)
	next, err := store.NextIndex(batch.AudioDir)
	require.NoError(t, err)
	assert.Equal(t, 3, next, "no new sequence numbers on re-run")
}

func TestRunTwiceDeliversOnce(t *testing.T) {
	h := newHarness(t, []types.CallRecord{call(311, "79990000001", 120)}, nil, fakeRecordings{})

	_, err := h.runner.Run(context.Background(), h.triggerTime(), Options{})
	require.NoError(t, err)
	res, err := h.runner.Run(context.Background(), h.triggerTime(), Options{})
	require.NoError(t, err)

	require.Len(t, h.rows.rows, 1)
	assert.Equal(t, 1, h.rows.rows[0].Number)
	assert.Len(t, h.chat.texts, 1)
	assert.Zero(t, res.Summary.Scored)
	assert.Zero(t, res.Summary.Messaged)
	assert.Equal(t, 1, res.Summary.AlreadyDelivered)

	batch, err := h.store.Batch(res.Window.BatchKey)
	require.NoError(t, err)
	marker, err := store.ReadDelivery(batch.DeliveryPath("call1_79990000001"))
	require.NoError(t, err)
	assert.True(t, marker.Scored)
	assert.True(t, marker.Messaged)
	assert.Equal(t, 1, marker.RowNumber)
	assert.Equal(t, "already-sent", h.journal.verdicts(311)[journal.StageScore])
}

func TestRunRetriesTranscriptionOnceRecordingAppears(t *testing.T) {
	recs := fakeRecordings{failing: map[int64]bool{321: true}}
	h := newHarness(t, []types.CallRecord{call(321, "79990000001", 120)}, nil, recs)

	res, err := h.runner.Run(context.Background(), h.triggerTime(), Options{})
	require.NoError(t, err)
	require.True(t, res.Outcomes[0].TranscriptionFailed)
	require.Zero(t, h.stt.n)

	delete(recs.failing, 321)
	res, err = h.runner.Run(context.Background(), h.triggerTime(), Options{})
	require.NoError(t, err)

	out := res.Outcomes[0]
	assert.True(t, out.Downloaded)
	assert.False(t, out.TranscriptionFailed)
	assert.True(t, out.Analyzed)
	assert.True(t, out.Scored)
	assert.Equal(t, 1, h.stt.n)

	batch, err := h.store.Batch(res.Window.BatchKey)
	require.NoError(t, err)
	assert.FileExists(t, batch.AnalysisPath("call1_79990000001"))
	assert.NoFileExists(t, batch.RawPath("call1_79990000001"))
}

func TestRunContinuesWithoutDedupIndex(t *testing.T) {
	dedup := fakeDedup{err: errors.New("sheet returned html")}
	h := newHarness(t, []types.CallRecord{call(401, "79990000002", 120)}, dedup, fakeRecordings{})

	res, err := h.runner.Run(context.Background(), h.triggerTime(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Scored)
	require.Len(t, h.rows.rows, 1)
	assert.Equal(t, 1, h.rows.rows[0].Number)
}

func TestRunMissingRecordingArchivesRawTranscript(t *testing.T) {
	h := newHarness(t, []types.CallRecord{call(501, "79990000001", 120)}, nil,
		fakeRecordings{failing: map[int64]bool{501: true}})

	res, err := h.runner.Run(context.Background(), h.triggerTime(), Options{})
	require.NoError(t, err)

	out := res.Outcomes[0]
	assert.False(t, out.Downloaded)
	assert.True(t, out.TranscriptionFailed)
	assert.True(t, out.AnalysisFailed)
	assert.Zero(t, h.llm.n)
	assert.Empty(t, h.rows.rows)
	assert.Empty(t, h.chat.texts)

	batch, err := h.store.Batch(res.Window.BatchKey)
	require.NoError(t, err)
	assert.FileExists(t, batch.SidecarPath("call1_79990000001"))
	raw, err := os.ReadFile(batch.RawPath("call1_79990000001"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), transcription.ErrorMarker)
	assert.NoFileExists(t, batch.AnalysisPath("call1_79990000001"))
}

func TestRunNonOrderCategoryIsNotScored(t *testing.T) {
	h := newHarness(t, []types.CallRecord{call(601, "79990000001", 120)}, nil, fakeRecordings{})
	h.llm.reply = `{"scores":{},"summary":"Поставщик предлагает сотрудничество","category":"cooperation"}`

	res, err := h.runner.Run(context.Background(), h.triggerTime(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.ByCategory[types.CategoryCooperation])
	assert.Empty(t, h.rows.rows)
	assert.Len(t, h.chat.texts, 1)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	h := newHarness(t, []types.CallRecord{call(701, "79990000001", 120)}, nil, fakeRecordings{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.runner.Run(ctx, h.triggerTime(), Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Outcomes)
}

func TestNewRunnerRequiresStages(t *testing.T) {
	_, err := NewRunner(Deps{}, logger.Discard())
	assert.Error(t, err)
}
