package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("BUSINESS_TZ", "Europe/Moscow")
	t.Setenv("TRIGGER_HOURS", "11,15,20")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("LOG_LEVEL", "error")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestWindowCommandInsideTriggerHour(t *testing.T) {
	out := execute(t, "window", "--now", "2026-03-10T15:20:00+03:00")
	assert.Contains(t, out, "batch 10.03.2026")
	assert.Contains(t, out, "2026-03-10T11:00:00+03:00 .. 2026-03-10T15:00:00+03:00")
}

func TestWindowCommandOutsideTriggerHour(t *testing.T) {
	out := execute(t, "window", "--now", "2026-03-10T13:20:00+03:00")
	assert.Contains(t, out, "not a trigger hour")

	out = execute(t, "window", "--now", "2026-03-10T09:00:00+03:00", "--force")
	assert.Contains(t, out, "batch 09.03.2026")
}

func TestStatusCommandEmptyBatch(t *testing.T) {
	out := execute(t, "status", "--batch", "01.01.2026")
	assert.Contains(t, out, "no events for batch 01.01.2026")
}
