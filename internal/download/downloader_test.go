package download

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callscore-go/internal/logger"
	"callscore-go/internal/store"
	"callscore-go/internal/types"
)

type fakeSource struct {
	data    []byte
	err     error
	fetches int
}

func (f *fakeSource) RecordingURL(call types.CallRecord) string {
	if len(call.RecordIDs) == 0 {
		return ""
	}
	return "https://media/" + call.RecordIDs[0]
}

func (f *fakeSource) FetchRecording(context.Context, string) ([]byte, error) {
	f.fetches++
	return f.data, f.err
}

func newBatch(t *testing.T) store.Batch {
	t.Helper()
	b, err := store.New(t.TempDir()).Batch("14.03.2025")
	require.NoError(t, err)
	return b
}

func testCall(duration int) types.CallRecord {
	return types.CallRecord{
		CommunicationID: 31,
		ContactPhone:    "79001112233",
		Direction:       types.DirectionInbound,
		StartTime:       time.Date(2025, 3, 14, 11, 30, 0, 0, time.UTC),
		DurationSec:     duration,
		RecordIDs:       []string{"r1"},
		Raw:             []byte(`{"communication_id":31}`),
	}
}

func TestShortCallWritesNothing(t *testing.T) {
	src := &fakeSource{data: []byte("audio")}
	b := newBatch(t)
	art, err := New(src, 60, logger.Discard()).Download(context.Background(), testCall(59), 1, b, Resolution{})
	require.NoError(t, err)
	assert.Nil(t, art)
	assert.Zero(t, src.fetches)

	entries, err := os.ReadDir(b.AudioDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadWritesAudioAndSidecar(t *testing.T) {
	src := &fakeSource{data: []byte("audio")}
	b := newBatch(t)
	res := Resolution{OrderLink: "https://crm/orders/9/edit", ManagerName: "Анна", OrderStatus: "new"}

	art, err := New(src, 60, logger.Discard()).Download(context.Background(), testCall(60), 3, b, res)
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, "call3_79001112233", art.Base)
	assert.True(t, art.HasAudio)
	assert.FileExists(t, art.AudioPath)

	sc, err := store.ReadSidecar(art.SidecarPath)
	require.NoError(t, err)
	assert.Equal(t, int64(31), sc.CommunicationID)
	assert.Equal(t, "2025-03-14 11:30:00", sc.StartTime)
	assert.Equal(t, res.OrderLink, sc.OrderLink)
	assert.Equal(t, "https://media/r1", sc.RecordingURL)
	assert.JSONEq(t, `{"communication_id":31}`, string(sc.Call))
}

func TestExistingAudioIsNotRefetched(t *testing.T) {
	src := &fakeSource{data: []byte("new")}
	b := newBatch(t)
	require.NoError(t, os.WriteFile(b.AudioPath("call1_79001112233"), []byte("old"), 0o644))

	art, err := New(src, 60, logger.Discard()).Download(context.Background(), testCall(90), 1, b, Resolution{})
	require.NoError(t, err)
	assert.Zero(t, src.fetches)
	assert.True(t, art.HasAudio)
	data, _ := os.ReadFile(art.AudioPath)
	assert.Equal(t, "old", string(data))
	assert.FileExists(t, art.SidecarPath)
}

func TestFetchFailureStillWritesSidecar(t *testing.T) {
	src := &fakeSource{err: errors.New("404")}
	b := newBatch(t)
	art, err := New(src, 60, logger.Discard()).Download(context.Background(), testCall(90), 2, b, Resolution{})
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.False(t, art.HasAudio)
	assert.NoFileExists(t, art.AudioPath)
	assert.FileExists(t, art.SidecarPath)
}
