package session

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/reflective-journal-kernel/internal/assembler"
	"github.com/reflective-journal-kernel/internal/config"
	"github.com/reflective-journal-kernel/internal/llm"
	"github.com/reflective-journal-kernel/internal/tracking"
)

func newTestCoach(t *testing.T, input string) (*Coach, *tracking.Store, *bytes.Buffer) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	ts, err := tracking.NewStore(tracking.Config{Dir: cfg.TrackingDir()}, logger)
	require.NoError(t, err)

	asm := assembler.New(assembler.Config{
		Dir:               cfg.SessionDir(),
		WeeklyContextPath: cfg.WeeklyContextPath(),
	}, ts, nil, logger)

	client := llm.NewClient(llm.Config{APIKey: "test-key"}, logger)

	out := &bytes.Buffer{}
	coach := New(cfg, client, asm, ts, nil, strings.NewReader(input), out, logger)
	return coach, ts, out
}

func TestReadEntryStopsAtTerminator(t *testing.T) {
	coach, _, _ := newTestCoach(t, "first line\n\nsecond line\nSAVE\nnever read\n")

	entry, err := coach.readEntry("prompt")
	require.NoError(t, err)
	assert.Equal(t, "first line\n\nsecond line", entry)
}

func TestReadEntryAcceptsDone(t *testing.T) {
	coach, _, _ := newTestCoach(t, "only line\n done \n")

	entry, err := coach.readEntry("prompt")
	require.NoError(t, err)
	assert.Equal(t, "only line", entry)
}

func TestRunQuitsOnQ(t *testing.T) {
	coach, _, out := newTestCoach(t, "q\n")

	require.NoError(t, coach.Run(context.Background()))
	assert.Contains(t, out.String(), "Daily reflection")
}

func TestRunStopsOnEOF(t *testing.T) {
	coach, _, _ := newTestCoach(t, "")
	require.NoError(t, coach.Run(context.Background()))
}

func TestCheckinLogsProgress(t *testing.T) {
	coach, ts, out := newTestCoach(t, "1\n1\n+2\nfelt easier today\n")

	exp, err := ts.CreateExperiment("Evening shutdown ritual", "", "laptop closed by 21:00", "", nil)
	require.NoError(t, err)
	ts.GetExperiment(exp.ID).LastChecked = time.Now().AddDate(0, 0, -1).Format(time.DateOnly)

	require.NoError(t, coach.runCheckin(context.Background()))

	got := ts.GetExperiment(exp.ID)
	require.Len(t, got.ProgressLog, 1)
	assert.Equal(t, tracking.OutcomeSuccess, got.ProgressLog[0].Outcome)
	assert.Equal(t, 2, got.ProgressLog[0].MarginalGainScore)
	assert.Equal(t, "felt easier today", got.ProgressLog[0].Notes)
	assert.Contains(t, out.String(), "Total progress +2")
}

func TestCheckinNothingDue(t *testing.T) {
	coach, ts, out := newTestCoach(t, "")

	_, err := ts.CreateExperiment("Fresh today", "", "", "", nil)
	require.NoError(t, err)

	require.NoError(t, coach.runCheckin(context.Background()))
	assert.Contains(t, out.String(), "up to date")
}

func TestWeeklyMemoryPersisted(t *testing.T) {
	coach, _, _ := newTestCoach(t, "")

	require.NoError(t, coach.saveWeeklyMemory(weeklySummary{
		WeekTheme:        "steadier mornings",
		MajorWins:        []string{"five clean wake-ups"},
		FocusForNextWeek: "protect the first hour",
	}))

	assert.Equal(t, "protect the first hour", coach.assembler.LoadWeeklyFocus())

	// The overwrite goes through a temp-file rename; no stray temp files
	// may remain next to the memory file.
	dir := filepath.Dir(coach.config.WeeklyContextPath())
	items, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "context_memory.json", items[0].Name())
}

func TestCheckinCancelled(t *testing.T) {
	coach, ts, _ := newTestCoach(t, "\n")

	exp, err := ts.CreateExperiment("Stale", "", "", "", nil)
	require.NoError(t, err)
	ts.GetExperiment(exp.ID).LastChecked = "2020-01-01"

	require.NoError(t, coach.runCheckin(context.Background()))
	assert.Empty(t, ts.GetExperiment(exp.ID).ProgressLog)
}
