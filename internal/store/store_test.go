package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}

func TestNextIndexEmptyOrMissing(t *testing.T) {
	dir := t.TempDir()
	n, err := NextIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = NextIndex(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNextIndexContinuesFromMax(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "call1_79001112233.mp3")
	touch(t, dir, "call7.mp3")
	touch(t, dir, "call3_79004445566.mp3")
	touch(t, dir, "notes.mp3")
	touch(t, dir, "call12.wav")
	touch(t, dir, "call12_notes.json")

	n, err := NextIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	// a sidecar without audio still holds its number
	touch(t, dir, "call9_79004445566_call_info.json")
	n, err = NextIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestNextIndexIsRecomputed(t *testing.T) {
	dir := t.TempDir()
	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		n, err := NextIndex(dir)
		require.NoError(t, err)
		assert.False(t, seen[n], "index %d reused", n)
		seen[n] = true
		touch(t, dir, BaseName(n, "79001112233")+".mp3")
	}
	assert.Len(t, seen, 5)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "call4", BaseName(4, ""))
	assert.Equal(t, "call4_79001112233", BaseName(4, "+7 (900) 111-22-33"))
	assert.Regexp(t, audioName, BaseName(12, "8-900")+".mp3")
}

func TestBatchLayout(t *testing.T) {
	root := t.TempDir()
	b, err := New(root).Batch("14.03.2025")
	require.NoError(t, err)
	for _, dir := range []string{b.AudioDir, b.TranscriptDir, b.AnalysisDir} {
		assert.DirExists(t, dir)
		assert.True(t, strings.HasSuffix(dir, "14.03.2025"))
	}
	assert.Equal(t, filepath.Join(root, "audio", "14.03.2025", "call1_7_call_info.json"), b.SidecarPath("call1_7"))
	assert.Equal(t, filepath.Join(root, "analyses", "14.03.2025", "call1_7_raw.txt"), b.RawPath("call1_7"))
}

func TestSidecarRoundTripAndFindExisting(t *testing.T) {
	b, err := New(t.TempDir()).Batch("01.02.2025")
	require.NoError(t, err)

	sc := Sidecar{
		CommunicationID: 555,
		StartTime:       "2025-02-01 10:00:00",
		Call:            json.RawMessage(`{"communication_id":555}`),
		OrderLink:       "https://crm/orders/1/edit?a=1&b=2",
		ContactPhone:    "79001112233",
		ManagerName:     "Анна",
	}
	require.NoError(t, WriteJSON(b.SidecarPath("call2_79001112233"), sc))

	raw, err := os.ReadFile(b.SidecarPath("call2_79001112233"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Анна")
	assert.Contains(t, string(raw), "&b=2")

	base, ok, err := FindExisting(b.AudioDir, 555)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "call2_79001112233", base)

	_, ok, err = FindExisting(b.AudioDir, 556)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.txt")
	assert.True(t, Exists(filepath.Join(dir, "a.txt")))
	assert.False(t, Exists(filepath.Join(dir, "b.txt")))
	assert.False(t, Exists(dir))
}

func TestIndexOf(t *testing.T) {
	n, ok := IndexOf("call12_79001112233")
	assert.True(t, ok)
	assert.Equal(t, 12, n)
	_, ok = IndexOf("recording")
	assert.False(t, ok)
}
