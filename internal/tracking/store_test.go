package tracking

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{Dir: t.TempDir()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func TestCreateAndGetGoal(t *testing.T) {
	s := newTestStore(t)

	goal, err := s.CreateGoal("Run a marathon", "Sub-4h by autumn", "2026-10-01")
	require.NoError(t, err)
	assert.Contains(t, goal.ID, "goal_")
	assert.Equal(t, GoalStatusActive, goal.Status)

	got := s.GetGoal(goal.ID)
	require.NotNil(t, got)
	assert.Equal(t, "Run a marathon", got.Title)

	assert.Nil(t, s.GetGoal("goal_missing"), "unknown id resolves to nil, not an error")
}

func TestUpdateGoalPartial(t *testing.T) {
	s := newTestStore(t)

	goal, err := s.CreateGoal("Sleep better", "", "")
	require.NoError(t, err)

	status := GoalStatusAchieved
	updated, err := s.UpdateGoal(goal.ID, GoalUpdate{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, GoalStatusAchieved, updated.Status)
	assert.Equal(t, "Sleep better", updated.Title, "untouched fields survive")

	_, err = s.UpdateGoal("goal_missing", GoalUpdate{Status: &status})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHabitLinksToGoal(t *testing.T) {
	s := newTestStore(t)

	goal, err := s.CreateGoal("Write more", "", "")
	require.NoError(t, err)

	habit, err := s.CreateHabit("Morning pages", "3 pages before breakfast", goal.ID, []string{"wake early", "desk ready"})
	require.NoError(t, err)
	assert.Contains(t, habit.ID, "hab_")
	assert.Equal(t, HabitStatusDeveloping, habit.Status)

	assert.Contains(t, s.GetGoal(goal.ID).Habits, habit.ID)
	habits := s.HabitsForGoal(goal.ID)
	require.Len(t, habits, 1)
	assert.Equal(t, habit.ID, habits[0].ID)
}

func TestDeleteGoalCascadesToHabits(t *testing.T) {
	s := newTestStore(t)

	goal, err := s.CreateGoal("Be calmer", "", "")
	require.NoError(t, err)
	habit, err := s.CreateHabit("Evening walk", "", goal.ID, nil)
	require.NoError(t, err)
	exp, err := s.CreateExperiment("Walk after dinner", "", "5 walks this week", habit.ID, nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteGoal(goal.ID))

	assert.Nil(t, s.GetGoal(goal.ID))
	assert.Nil(t, s.GetHabit(habit.ID), "habits cascade with their goal")

	// Experiments survive with a dangling habit reference.
	survived := s.GetExperiment(exp.ID)
	require.NotNil(t, survived)
	assert.Equal(t, habit.ID, survived.HabitID)
	orphans := s.OrphanedExperiments()
	require.Len(t, orphans, 1)
	assert.Equal(t, exp.ID, orphans[0].ID)
}

func TestLogProgressClampsScore(t *testing.T) {
	s := newTestStore(t)

	exp, err := s.CreateExperiment("No phone in bed", "", "7 clean nights", "", nil)
	require.NoError(t, err)

	_, err = s.LogProgress(exp.ID, OutcomeSuccess, "easy", 9)
	require.NoError(t, err)
	_, err = s.LogProgress(exp.ID, OutcomeFailed, "doomscrolled", -11)
	require.NoError(t, err)

	got := s.GetExperiment(exp.ID)
	require.Len(t, got.ProgressLog, 2)
	assert.Equal(t, 3, got.ProgressLog[0].MarginalGainScore)
	assert.Equal(t, -3, got.ProgressLog[1].MarginalGainScore)
	assert.Equal(t, 0, got.CumulativeProgress())
}

func TestSuccessfulDaysCountsPartial(t *testing.T) {
	s := newTestStore(t)

	exp, err := s.CreateExperiment("Stretch daily", "", "", "", nil)
	require.NoError(t, err)

	for _, o := range []Outcome{OutcomeSuccess, OutcomePartial, OutcomeNotTried, OutcomeFailed} {
		_, err = s.LogProgress(exp.ID, o, "", 1)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, s.GetExperiment(exp.ID).SuccessfulDays())
}

func TestExperimentAutoCompletesAtThreshold(t *testing.T) {
	s := newTestStore(t)

	exp, err := s.CreateExperiment("Cold shower", "", "7 successful days", "", nil)
	require.NoError(t, err)

	for i := 0; i < CompletionThreshold-1; i++ {
		got, err := s.LogProgress(exp.ID, OutcomeSuccess, "", 1)
		require.NoError(t, err)
		assert.Equal(t, ExperimentStatusActive, got.Status)
	}

	got, err := s.LogProgress(exp.ID, OutcomeSuccess, "", 1)
	require.NoError(t, err)
	assert.Equal(t, ExperimentStatusCompleted, got.Status)
}

func TestExperimentsNeedingFollowup(t *testing.T) {
	s := newTestStore(t)

	fresh, err := s.CreateExperiment("Checked today", "", "", "", nil)
	require.NoError(t, err)
	stale, err := s.CreateExperiment("Checked yesterday", "", "", "", nil)
	require.NoError(t, err)
	broken, err := s.CreateExperiment("Bad date", "", "", "", nil)
	require.NoError(t, err)

	s.GetExperiment(stale.ID).LastChecked = time.Now().AddDate(0, 0, -1).Format(time.DateOnly)
	s.GetExperiment(broken.ID).LastChecked = "not-a-date"

	due := s.ExperimentsNeedingFollowup()
	ids := make([]string, 0, len(due))
	for _, e := range due {
		ids = append(ids, e.ID)
	}
	assert.Contains(t, ids, stale.ID)
	assert.Contains(t, ids, broken.ID, "malformed last_checked counts as due")
	assert.NotContains(t, ids, fresh.ID)
}

func TestCalculateMarginalGains(t *testing.T) {
	s := newTestStore(t)

	exp, err := s.CreateExperiment("Deep work block", "", "90 minutes daily", "", nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = s.LogProgress(exp.ID, OutcomeSuccess, "", 2)
		require.NoError(t, err)
	}

	gains := s.CalculateMarginalGains(exp.ID)
	require.NotNil(t, gains)
	assert.Equal(t, 10, gains.TotalProgress)
	assert.Equal(t, 5, gains.DaysTracked)
	assert.Equal(t, 5, gains.SuccessfulDays)
	assert.InDelta(t, 2.0, gains.AverageGain, 0.001)
	assert.True(t, gains.NearCompletion)

	assert.Nil(t, s.CalculateMarginalGains("exp_missing"))
}

func TestReloadFromDisk(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	s, err := NewStore(Config{Dir: dir}, logger)
	require.NoError(t, err)

	goal, err := s.CreateGoal("Read more", "", "")
	require.NoError(t, err)
	habit, err := s.CreateHabit("Book at lunch", "", goal.ID, nil)
	require.NoError(t, err)
	exp, err := s.CreateExperiment("20 pages", "", "20 pages a day", habit.ID, nil)
	require.NoError(t, err)
	_, err = s.LogProgress(exp.ID, OutcomePartial, "managed 12", 1)
	require.NoError(t, err)

	reloaded, err := NewStore(Config{Dir: dir}, logger)
	require.NoError(t, err)

	g := reloaded.GetGoal(goal.ID)
	require.NotNil(t, g)
	assert.Contains(t, g.Habits, habit.ID)

	h := reloaded.GetHabit(habit.ID)
	require.NotNil(t, h)
	assert.Contains(t, h.Experiments, exp.ID)

	e := reloaded.GetExperiment(exp.ID)
	require.NotNil(t, e)
	require.Len(t, e.ProgressLog, 1)
	assert.Equal(t, OutcomePartial, e.ProgressLog[0].Outcome)
	assert.Equal(t, 1, e.CumulativeProgress())
}

func TestMalformedJSONLLineSkipped(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	s, err := NewStore(Config{Dir: dir}, logger)
	require.NoError(t, err)
	_, err = s.CreateGoal("Keep me", "", "")
	require.NoError(t, err)

	f, err := os.OpenFile(filepath.Join(dir, goalsFile), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{broken json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reloaded, err := NewStore(Config{Dir: dir}, logger)
	require.NoError(t, err, "a bad line must not poison the collection")
	assert.Len(t, reloaded.ActiveGoals(), 1)
}

func TestOverallProgressSummary(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, "No active tracking items.", s.OverallProgressSummary())

	_, err := s.CreateGoal("Ship the project", "", "")
	require.NoError(t, err)
	summary := s.OverallProgressSummary()
	assert.Contains(t, summary, "Active goals: 1")
	assert.Contains(t, summary, "Ship the project")
}

func TestSignedProgress(t *testing.T) {
	assert.Equal(t, "+3", SignedProgress(3))
	assert.Equal(t, "+0", SignedProgress(0))
	assert.Equal(t, "-2", SignedProgress(-2))
}
