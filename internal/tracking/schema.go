// Package tracking manages the goal -> habit -> experiment -> progress
// hierarchy behind the reflection sessions. Records link to their parents
// by string id: these are weak references (lookup, not ownership) and are
// expected to survive parent deletion as dangling ids.
package tracking

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of one day of an experiment.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomePartial  Outcome = "partial"
	OutcomeNotTried Outcome = "not_tried"
	OutcomeFailed   Outcome = "failed"
)

// GoalStatus is the lifecycle state of a TargetGoal.
type GoalStatus string

const (
	GoalStatusActive   GoalStatus = "active"
	GoalStatusAchieved GoalStatus = "achieved"
	GoalStatusRevised  GoalStatus = "revised"
)

// HabitStatus is the lifecycle state of a Habit.
type HabitStatus string

const (
	HabitStatusDeveloping  HabitStatus = "developing"
	HabitStatusEstablished HabitStatus = "established"
	HabitStatusMaintained  HabitStatus = "maintained"
)

// ExperimentStatus is the lifecycle state of an Experiment.
type ExperimentStatus string

const (
	ExperimentStatusActive    ExperimentStatus = "active"
	ExperimentStatusTesting   ExperimentStatus = "testing"
	ExperimentStatusCompleted ExperimentStatus = "completed"
	ExperimentStatusAbandoned ExperimentStatus = "abandoned"
)

// CompletionThreshold is the number of successful days after which an
// active experiment auto-completes.
const CompletionThreshold = 7

// ProgressEntry is one logged day of an experiment. Immutable once
// appended. Date is a calendar date (2006-01-02), not a timestamp.
type ProgressEntry struct {
	Date              string  `json:"date"`
	Outcome           Outcome `json:"outcome"`
	Notes             string  `json:"notes"`
	MarginalGainScore int     `json:"marginal_gain_score"` // clamped to [-3,+3]
}

// Experiment is a time-boxed behavioral micro-test with a success
// criterion and a daily progress log.
type Experiment struct {
	ID                string           `json:"id"`
	HabitID           string           `json:"habit_id,omitempty"` // weak back-reference
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	SuccessCriteria   string           `json:"success_criteria"`
	Status            ExperimentStatus `json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
	LastChecked       string           `json:"last_checked"` // calendar date
	RelatedGraphNodes []string         `json:"related_graph_nodes,omitempty"`
	ProgressLog       []ProgressEntry  `json:"progress_log"`
}

// CumulativeProgress is the sum of marginal gain scores over the log.
func (e *Experiment) CumulativeProgress() int {
	total := 0
	for _, p := range e.ProgressLog {
		total += p.MarginalGainScore
	}
	return total
}

// SuccessfulDays counts entries with a success or partial outcome.
func (e *Experiment) SuccessfulDays() int {
	days := 0
	for _, p := range e.ProgressLog {
		if p.Outcome == OutcomeSuccess || p.Outcome == OutcomePartial {
			days++
		}
	}
	return days
}

// Habit is a skill or behavior pattern in development, linking a goal to
// its experiments.
type Habit struct {
	ID          string      `json:"id"`
	GoalID      string      `json:"goal_id,omitempty"` // weak back-reference
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Components  []string    `json:"components,omitempty"`
	Experiments []string    `json:"experiments,omitempty"`
	Status      HabitStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	LastUpdated time.Time   `json:"last_updated"`
}

// TargetGoal is a 6-12 month vision broken down into habits.
type TargetGoal struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	TargetDate  string     `json:"target_date,omitempty"`
	Habits      []string   `json:"habits,omitempty"`
	Status      GoalStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUpdated time.Time  `json:"last_updated"`
}

// newID builds a kind-prefixed short id, e.g. "exp_3fa4c1d2".
func newID(prefix string) string {
	u := uuid.New()
	return prefix + "_" + hex.EncodeToString(u[:])[:8]
}
