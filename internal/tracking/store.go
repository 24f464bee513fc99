package tracking

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/reflective-journal-kernel/internal/jsonx"
)

// ErrNotFound is returned by mutating operations on unknown ids.
var ErrNotFound = errors.New("tracking: record not found")

const (
	goalsFile       = "goals.jsonl"
	habitsFile      = "habits.jsonl"
	experimentsFile = "experiments.jsonl"
)

// Config configures the tracking store.
type Config struct {
	Dir string // Directory holding the three JSONL files
}

// Store is the JSONL-backed repository for goals, habits and experiments.
// Creation appends a line; updates and deletes rewrite the whole file for
// the touched collection. State is small enough that this is the entire
// persistence strategy.
type Store struct {
	config Config
	logger *zap.Logger

	goals       map[string]*TargetGoal
	habits      map[string]*Habit
	experiments map[string]*Experiment

	// insertion order per collection, for deterministic listing and
	// stable file rewrites
	goalOrder       []string
	habitOrder      []string
	experimentOrder []string
}

// NewStore opens the tracking store at cfg.Dir, loading any existing
// collections.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tracking directory: %w", err)
	}

	s := &Store{
		config:      cfg,
		logger:      logger.Named("tracking"),
		goals:       make(map[string]*TargetGoal),
		habits:      make(map[string]*Habit),
		experiments: make(map[string]*Experiment),
	}

	loadCollection(s, goalsFile, func(g *TargetGoal) {
		s.goals[g.ID] = g
		s.goalOrder = append(s.goalOrder, g.ID)
	})
	loadCollection(s, habitsFile, func(h *Habit) {
		s.habits[h.ID] = h
		s.habitOrder = append(s.habitOrder, h.ID)
	})
	loadCollection(s, experimentsFile, func(e *Experiment) {
		s.experiments[e.ID] = e
		s.experimentOrder = append(s.experimentOrder, e.ID)
	})

	return s, nil
}

// loadCollection reads one JSONL file, skipping malformed lines with a
// warning. A missing file is an empty collection.
func loadCollection[T any](s *Store, name string, add func(*T)) {
	path := filepath.Join(s.config.Dir, name)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		s.logger.Warn("failed to open collection, starting empty",
			zap.String("file", name), zap.Error(err))
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec := new(T)
		if err := jsonx.Unmarshal(line, rec); err != nil {
			s.logger.Warn("skipping malformed record",
				zap.String("file", name), zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		add(rec)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("failed to read collection",
			zap.String("file", name), zap.Error(err))
	}
}

// appendRecord appends one JSONL line to a collection file.
func (s *Store) appendRecord(name string, v interface{}) error {
	line, err := jsonx.MarshalToString(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	path := filepath.Join(s.config.Dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append to %s: %w", name, err)
	}
	return nil
}

// rewriteCollection atomically replaces a collection file with the given
// records in insertion order.
func rewriteCollection[T any](s *Store, name string, order []string, get func(string) (*T, bool)) error {
	var buf bytes.Buffer
	for _, id := range order {
		rec, ok := get(id)
		if !ok {
			continue
		}
		if err := jsonx.AppendLine(&buf, rec); err != nil {
			return fmt.Errorf("failed to encode record %s: %w", id, err)
		}
	}

	path := filepath.Join(s.config.Dir, name)
	tmp, err := os.CreateTemp(s.config.Dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func (s *Store) saveGoals() error {
	return rewriteCollection(s, goalsFile, s.goalOrder, func(id string) (*TargetGoal, bool) {
		g, ok := s.goals[id]
		return g, ok
	})
}

func (s *Store) saveHabits() error {
	return rewriteCollection(s, habitsFile, s.habitOrder, func(id string) (*Habit, bool) {
		h, ok := s.habits[id]
		return h, ok
	})
}

func (s *Store) saveExperiments() error {
	return rewriteCollection(s, experimentsFile, s.experimentOrder, func(id string) (*Experiment, bool) {
		e, ok := s.experiments[id]
		return e, ok
	})
}

// ==================== GOALS ====================

// CreateGoal creates a new active goal. targetDate may be empty.
func (s *Store) CreateGoal(title, description, targetDate string) (*TargetGoal, error) {
	now := time.Now()
	goal := &TargetGoal{
		ID:          newID("goal"),
		Title:       title,
		Description: description,
		TargetDate:  targetDate,
		Status:      GoalStatusActive,
		CreatedAt:   now,
		LastUpdated: now,
	}
	s.goals[goal.ID] = goal
	s.goalOrder = append(s.goalOrder, goal.ID)
	if err := s.appendRecord(goalsFile, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

// GetGoal returns the goal with the given id, or nil. A nil result is the
// normal answer for a dangling reference.
func (s *Store) GetGoal(id string) *TargetGoal {
	return s.goals[id]
}

// ActiveGoals returns all goals with status active.
func (s *Store) ActiveGoals() []*TargetGoal {
	var out []*TargetGoal
	for _, id := range s.goalOrder {
		if g := s.goals[id]; g != nil && g.Status == GoalStatusActive {
			out = append(out, g)
		}
	}
	return out
}

// GoalUpdate is a partial update; nil fields are left untouched.
type GoalUpdate struct {
	Title       *string
	Description *string
	TargetDate  *string
	Status      *GoalStatus
}

// UpdateGoal applies the non-nil fields of upd and rewrites the
// collection.
func (s *Store) UpdateGoal(id string, upd GoalUpdate) (*TargetGoal, error) {
	goal, ok := s.goals[id]
	if !ok {
		return nil, fmt.Errorf("%w: goal %s", ErrNotFound, id)
	}
	if upd.Title != nil {
		goal.Title = *upd.Title
	}
	if upd.Description != nil {
		goal.Description = *upd.Description
	}
	if upd.TargetDate != nil {
		goal.TargetDate = *upd.TargetDate
	}
	if upd.Status != nil {
		goal.Status = *upd.Status
	}
	goal.LastUpdated = time.Now()
	if err := s.saveGoals(); err != nil {
		return nil, err
	}
	return goal, nil
}

// AddHabitToGoal registers a habit id on the goal's habit list.
func (s *Store) AddHabitToGoal(goalID, habitID string) error {
	goal, ok := s.goals[goalID]
	if !ok {
		return fmt.Errorf("%w: goal %s", ErrNotFound, goalID)
	}
	for _, id := range goal.Habits {
		if id == habitID {
			return nil
		}
	}
	goal.Habits = append(goal.Habits, habitID)
	goal.LastUpdated = time.Now()
	return s.saveGoals()
}

// DeleteGoal deletes the goal and cascades to every habit whose goal_id
// references it. Experiments of those habits are left dangling.
func (s *Store) DeleteGoal(id string) error {
	if _, ok := s.goals[id]; !ok {
		return fmt.Errorf("%w: goal %s", ErrNotFound, id)
	}
	for _, h := range s.HabitsForGoal(id) {
		if err := s.DeleteHabit(h.ID); err != nil {
			return err
		}
	}
	delete(s.goals, id)
	s.goalOrder = removeID(s.goalOrder, id)
	return s.saveGoals()
}

// ==================== HABITS ====================

// CreateHabit creates a habit, optionally linked to a goal.
func (s *Store) CreateHabit(title, description, goalID string, components []string) (*Habit, error) {
	now := time.Now()
	habit := &Habit{
		ID:          newID("hab"),
		GoalID:      goalID,
		Title:       title,
		Description: description,
		Components:  components,
		Status:      HabitStatusDeveloping,
		CreatedAt:   now,
		LastUpdated: now,
	}
	s.habits[habit.ID] = habit
	s.habitOrder = append(s.habitOrder, habit.ID)
	if err := s.appendRecord(habitsFile, habit); err != nil {
		return nil, err
	}
	if goalID != "" {
		if err := s.AddHabitToGoal(goalID, habit.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return habit, nil
}

// GetHabit returns the habit with the given id, or nil.
func (s *Store) GetHabit(id string) *Habit {
	return s.habits[id]
}

// HabitsForGoal returns all habits whose goal_id references goalID.
func (s *Store) HabitsForGoal(goalID string) []*Habit {
	var out []*Habit
	for _, id := range s.habitOrder {
		if h := s.habits[id]; h != nil && h.GoalID == goalID {
			out = append(out, h)
		}
	}
	return out
}

// ActiveHabits returns habits still in development.
func (s *Store) ActiveHabits() []*Habit {
	var out []*Habit
	for _, id := range s.habitOrder {
		if h := s.habits[id]; h != nil && h.Status == HabitStatusDeveloping {
			out = append(out, h)
		}
	}
	return out
}

// HabitUpdate is a partial update; nil fields are left untouched.
type HabitUpdate struct {
	Title       *string
	Description *string
	Components  *[]string
	Status      *HabitStatus
}

// UpdateHabit applies the non-nil fields of upd and rewrites the
// collection.
func (s *Store) UpdateHabit(id string, upd HabitUpdate) (*Habit, error) {
	habit, ok := s.habits[id]
	if !ok {
		return nil, fmt.Errorf("%w: habit %s", ErrNotFound, id)
	}
	if upd.Title != nil {
		habit.Title = *upd.Title
	}
	if upd.Description != nil {
		habit.Description = *upd.Description
	}
	if upd.Components != nil {
		habit.Components = *upd.Components
	}
	if upd.Status != nil {
		habit.Status = *upd.Status
	}
	habit.LastUpdated = time.Now()
	if err := s.saveHabits(); err != nil {
		return nil, err
	}
	return habit, nil
}

// AddExperimentToHabit registers an experiment id on the habit.
func (s *Store) AddExperimentToHabit(habitID, experimentID string) error {
	habit, ok := s.habits[habitID]
	if !ok {
		return fmt.Errorf("%w: habit %s", ErrNotFound, habitID)
	}
	for _, id := range habit.Experiments {
		if id == experimentID {
			return nil
		}
	}
	habit.Experiments = append(habit.Experiments, experimentID)
	habit.LastUpdated = time.Now()
	return s.saveHabits()
}

// DeleteHabit removes the habit and clears it from its parent goal's
// habit list. Its experiments are NOT deleted; their habit_id keeps the
// now-dangling reference (see OrphanedExperiments).
func (s *Store) DeleteHabit(id string) error {
	habit, ok := s.habits[id]
	if !ok {
		return fmt.Errorf("%w: habit %s", ErrNotFound, id)
	}

	if goal, ok := s.goals[habit.GoalID]; ok {
		before := len(goal.Habits)
		goal.Habits = removeID(goal.Habits, id)
		if len(goal.Habits) != before {
			goal.LastUpdated = time.Now()
			if err := s.saveGoals(); err != nil {
				return err
			}
		}
	}

	delete(s.habits, id)
	s.habitOrder = removeID(s.habitOrder, id)
	return s.saveHabits()
}

// ==================== EXPERIMENTS ====================

// CreateExperiment creates an experiment, optionally linked to a habit
// and anchored to graph nodes.
func (s *Store) CreateExperiment(title, description, successCriteria, habitID string, relatedGraphNodes []string) (*Experiment, error) {
	now := time.Now()
	exp := &Experiment{
		ID:                newID("exp"),
		HabitID:           habitID,
		Title:             title,
		Description:       description,
		SuccessCriteria:   successCriteria,
		Status:            ExperimentStatusActive,
		CreatedAt:         now,
		LastChecked:       now.Format(time.DateOnly),
		RelatedGraphNodes: relatedGraphNodes,
	}
	s.experiments[exp.ID] = exp
	s.experimentOrder = append(s.experimentOrder, exp.ID)
	if err := s.appendRecord(experimentsFile, exp); err != nil {
		return nil, err
	}
	if habitID != "" {
		if err := s.AddExperimentToHabit(habitID, exp.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return exp, nil
}

// GetExperiment returns the experiment with the given id, or nil.
func (s *Store) GetExperiment(id string) *Experiment {
	return s.experiments[id]
}

// ExperimentsForHabit returns experiments whose habit_id references
// habitID.
func (s *Store) ExperimentsForHabit(habitID string) []*Experiment {
	var out []*Experiment
	for _, id := range s.experimentOrder {
		if e := s.experiments[id]; e != nil && e.HabitID == habitID {
			out = append(out, e)
		}
	}
	return out
}

// ActiveExperiments returns experiments with status active or testing.
func (s *Store) ActiveExperiments() []*Experiment {
	var out []*Experiment
	for _, id := range s.experimentOrder {
		e := s.experiments[id]
		if e != nil && (e.Status == ExperimentStatusActive || e.Status == ExperimentStatusTesting) {
			out = append(out, e)
		}
	}
	return out
}

// OrphanedExperiments returns experiments whose habit_id references a
// habit that no longer exists.
func (s *Store) OrphanedExperiments() []*Experiment {
	var out []*Experiment
	for _, id := range s.experimentOrder {
		e := s.experiments[id]
		if e != nil && e.HabitID != "" && s.habits[e.HabitID] == nil {
			out = append(out, e)
		}
	}
	return out
}

// ExperimentsNeedingFollowup returns active experiments whose last check
// was on an earlier calendar date than today. A malformed last_checked
// counts as needing follow-up.
func (s *Store) ExperimentsNeedingFollowup() []*Experiment {
	today := time.Now().Format(time.DateOnly)
	var out []*Experiment
	for _, e := range s.ActiveExperiments() {
		checked, err := time.Parse(time.DateOnly, e.LastChecked)
		if err != nil {
			out = append(out, e)
			continue
		}
		if today > checked.Format(time.DateOnly) {
			out = append(out, e)
		}
	}
	return out
}

// ExperimentUpdate is a partial update; nil fields are left untouched.
type ExperimentUpdate struct {
	Title             *string
	Description       *string
	SuccessCriteria   *string
	Status            *ExperimentStatus
	RelatedGraphNodes *[]string
}

// UpdateExperiment applies the non-nil fields of upd and rewrites the
// collection. The progress log is append-only and not updatable here;
// use LogProgress.
func (s *Store) UpdateExperiment(id string, upd ExperimentUpdate) (*Experiment, error) {
	exp, ok := s.experiments[id]
	if !ok {
		return nil, fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}
	if upd.Title != nil {
		exp.Title = *upd.Title
	}
	if upd.Description != nil {
		exp.Description = *upd.Description
	}
	if upd.SuccessCriteria != nil {
		exp.SuccessCriteria = *upd.SuccessCriteria
	}
	if upd.Status != nil {
		exp.Status = *upd.Status
	}
	if upd.RelatedGraphNodes != nil {
		exp.RelatedGraphNodes = *upd.RelatedGraphNodes
	}
	if err := s.saveExperiments(); err != nil {
		return nil, err
	}
	return exp, nil
}

// LogProgress appends a progress entry dated today, clamping score to
// [-3,+3], and advances last_checked. An active experiment auto-completes
// once it reaches CompletionThreshold successful days.
func (s *Store) LogProgress(expID string, outcome Outcome, notes string, score int) (*Experiment, error) {
	exp, ok := s.experiments[expID]
	if !ok {
		return nil, fmt.Errorf("%w: experiment %s", ErrNotFound, expID)
	}

	if score > 3 {
		score = 3
	} else if score < -3 {
		score = -3
	}

	today := time.Now().Format(time.DateOnly)
	exp.ProgressLog = append(exp.ProgressLog, ProgressEntry{
		Date:              today,
		Outcome:           outcome,
		Notes:             notes,
		MarginalGainScore: score,
	})
	exp.LastChecked = today

	if exp.Status == ExperimentStatusActive && exp.SuccessfulDays() >= CompletionThreshold {
		exp.Status = ExperimentStatusCompleted
		s.logger.Info("experiment completed",
			zap.String("id", exp.ID),
			zap.String("title", exp.Title),
			zap.Int("successful_days", exp.SuccessfulDays()))
	}

	if err := s.saveExperiments(); err != nil {
		return nil, err
	}
	return exp, nil
}

// CompleteExperiment explicitly completes or abandons an experiment.
func (s *Store) CompleteExperiment(expID string, status ExperimentStatus) (*Experiment, error) {
	exp, ok := s.experiments[expID]
	if !ok {
		return nil, fmt.Errorf("%w: experiment %s", ErrNotFound, expID)
	}
	exp.Status = status
	if err := s.saveExperiments(); err != nil {
		return nil, err
	}
	return exp, nil
}

// ==================== ANALYSIS ====================

// MarginalGains summarizes an experiment's derived metrics.
type MarginalGains struct {
	ExperimentID   string           `json:"experiment_id"`
	Title          string           `json:"title"`
	TotalProgress  int              `json:"total_progress"`
	DaysTracked    int              `json:"days_tracked"`
	SuccessfulDays int              `json:"successful_days"`
	AverageGain    float64          `json:"average_gain"`
	Status         ExperimentStatus `json:"status"`
	NearCompletion bool             `json:"near_completion"` // 5+ successful days
}

// CalculateMarginalGains computes the summary for one experiment, or nil
// for an unknown id.
func (s *Store) CalculateMarginalGains(expID string) *MarginalGains {
	exp, ok := s.experiments[expID]
	if !ok {
		return nil
	}
	total := exp.CumulativeProgress()
	days := len(exp.ProgressLog)
	successful := exp.SuccessfulDays()
	avg := 0.0
	if days > 0 {
		avg = float64(total) / float64(days)
	}
	return &MarginalGains{
		ExperimentID:   expID,
		Title:          exp.Title,
		TotalProgress:  total,
		DaysTracked:    days,
		SuccessfulDays: successful,
		AverageGain:    avg,
		Status:         exp.Status,
		NearCompletion: successful >= 5,
	}
}

// OverallProgressSummary renders a short natural-language digest of the
// tracking state.
func (s *Store) OverallProgressSummary() string {
	activeGoals := s.ActiveGoals()
	activeHabits := s.ActiveHabits()
	needsFollowup := s.ExperimentsNeedingFollowup()

	var lines []string

	if len(activeGoals) > 0 {
		lines = append(lines, fmt.Sprintf("Active goals: %d", len(activeGoals)))
		for _, g := range firstN(activeGoals, 2) {
			lines = append(lines, "  - "+g.Title)
		}
	}
	if len(activeHabits) > 0 {
		lines = append(lines, fmt.Sprintf("Habits in development: %d", len(activeHabits)))
		for _, h := range firstN(activeHabits, 3) {
			lines = append(lines, "  - "+h.Title)
		}
	}
	if len(needsFollowup) > 0 {
		lines = append(lines, fmt.Sprintf("Experiments needing follow-up: %d", len(needsFollowup)))
		for _, e := range needsFollowup {
			lines = append(lines, fmt.Sprintf("  - %s (progress: %s)", e.Title, SignedProgress(e.CumulativeProgress())))
		}
	}

	if len(lines) == 0 {
		return "No active tracking items."
	}
	out := lines[0]
	for _, l := range lines[1:] {
		out += "\n" + l
	}
	return out
}

// SignedProgress formats a cumulative score with an explicit sign for
// non-negative values ("+3", "0" becomes "+0", "-2" stays "-2").
func SignedProgress(progress int) string {
	if progress >= 0 {
		return fmt.Sprintf("+%d", progress)
	}
	return fmt.Sprintf("%d", progress)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
