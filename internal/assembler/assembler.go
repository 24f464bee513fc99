// Package assembler composes the context block injected into reflection
// prompts: tracking state, graph context around the user's current input,
// carried-over session memory and the weekly focus.
package assembler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reflective-journal-kernel/internal/graph"
	"github.com/reflective-journal-kernel/internal/jsonx"
	"github.com/reflective-journal-kernel/internal/tracking"
)

const (
	lastSessionFile = "last_session.json"

	// NoPriorContext is returned by FullContextBlock when every section
	// is empty.
	NoPriorContext = "No prior context available."

	// NoGraphContext is the graph section placeholder when the user's
	// input anchors to nothing.
	NoGraphContext = "No specific past context found."

	maxGoalsShown      = 3
	maxHabitsShown     = 5
	maxAnchors         = 3
	maxFollowupSuggest = 3
	maxOpenLoops       = 2
	descriptionLimit   = 100
	criteriaLimit      = 50
)

// SessionMemory is the single carried-over record between sessions,
// overwritten each time (no history).
type SessionMemory struct {
	Date                string   `json:"date"`
	Summary             string   `json:"summary"`
	OpenLoops           []string `json:"open_loops"`
	ActiveExperimentIDs []string `json:"active_experiment_ids"`
	EmotionalState      string   `json:"emotional_state"`
	NextSessionFocus    string   `json:"next_session_focus"`
}

// SessionContext is everything a reflection prompt can be seeded with.
type SessionContext struct {
	ActiveGoals         []*tracking.TargetGoal
	HabitsInFocus       []*tracking.Habit
	ExperimentsFollowup []*tracking.Experiment
	LastSession         *SessionMemory
	GraphContext        string
	WeeklyFocus         string
	SuggestedFollowups  []string
}

// Config configures the assembler's file locations.
type Config struct {
	Dir               string // directory for last_session.json
	WeeklyContextPath string // weekly progression memory (focus_for_next_week)
}

// Assembler builds session context from the tracking and graph stores.
type Assembler struct {
	config   Config
	tracking *tracking.Store
	graph    *graph.Store
	logger   *zap.Logger
}

// New creates an assembler. The graph store may be nil; graph context is
// then omitted.
func New(cfg Config, ts *tracking.Store, gs *graph.Store, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		config:   cfg,
		tracking: ts,
		graph:    gs,
		logger:   logger.Named("assembler"),
	}
}

// ==================== SESSION MEMORY ====================

func (a *Assembler) lastSessionPath() string {
	return filepath.Join(a.config.Dir, lastSessionFile)
}

// LoadLastSession returns the previous session's memory, or nil when none
// exists or the file is unreadable.
func (a *Assembler) LoadLastSession() *SessionMemory {
	data, err := os.ReadFile(a.lastSessionPath())
	if err != nil {
		return nil
	}
	var mem SessionMemory
	if err := jsonx.Unmarshal(data, &mem); err != nil {
		a.logger.Warn("unreadable session memory", zap.Error(err))
		return nil
	}
	return &mem
}

// SaveSessionMemory overwrites the session memory record for continuity
// into the next session. Active experiment ids are captured from the
// tracking store at save time.
func (a *Assembler) SaveSessionMemory(summary string, openLoops []string, emotionalState, nextFocus string) error {
	var expIDs []string
	for _, e := range a.tracking.ActiveExperiments() {
		expIDs = append(expIDs, e.ID)
	}
	mem := SessionMemory{
		Date:                time.Now().Format(time.DateOnly),
		Summary:             summary,
		OpenLoops:           openLoops,
		ActiveExperimentIDs: expIDs,
		EmotionalState:      emotionalState,
		NextSessionFocus:    nextFocus,
	}

	data, err := jsonx.MarshalIndent(mem, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session memory: %w", err)
	}
	if err := os.MkdirAll(a.config.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session memory directory: %w", err)
	}
	return WriteFileAtomic(a.lastSessionPath(), data)
}

// LoadWeeklyFocus reads the focus_for_next_week field of the weekly
// progression memory, or "" when absent.
func (a *Assembler) LoadWeeklyFocus() string {
	data, err := os.ReadFile(a.config.WeeklyContextPath)
	if err != nil {
		return ""
	}
	var weekly struct {
		FocusForNextWeek string `json:"focus_for_next_week"`
	}
	if err := jsonx.Unmarshal(data, &weekly); err != nil {
		a.logger.Warn("unreadable weekly context", zap.Error(err))
		return ""
	}
	return weekly.FocusForNextWeek
}

// ==================== CONTEXT BUILDING ====================

// BuildSessionContext assembles the full session context. userInput seeds
// the graph anchoring and may be empty.
func (a *Assembler) BuildSessionContext(userInput string) *SessionContext {
	ctx := &SessionContext{
		ActiveGoals:         a.tracking.ActiveGoals(),
		HabitsInFocus:       a.tracking.ActiveHabits(),
		ExperimentsFollowup: a.tracking.ExperimentsNeedingFollowup(),
		LastSession:         a.LoadLastSession(),
		WeeklyFocus:         a.LoadWeeklyFocus(),
	}

	if a.graph != nil && userInput != "" {
		anchors := a.graph.SearchAnchors(userInput, maxAnchors)
		if len(anchors) > 0 {
			ctx.GraphContext = a.graph.EgoWalk(anchors, graph.DefaultWalkDepth)
		} else {
			ctx.GraphContext = NoGraphContext
		}
	}

	ctx.SuggestedFollowups = a.followupSuggestions(ctx)
	return ctx
}

// followupSuggestions derives the conversational prompts for experiments
// awaiting a check-in and open loops from last session.
func (a *Assembler) followupSuggestions(ctx *SessionContext) []string {
	var suggestions []string

	experiments := ctx.ExperimentsFollowup
	if len(experiments) > maxFollowupSuggest {
		experiments = experiments[:maxFollowupSuggest]
	}
	for _, e := range experiments {
		suggestions = append(suggestions, fmt.Sprintf(
			"How did the '%s' experiment go? (progress: %s)",
			e.Title, tracking.SignedProgress(e.CumulativeProgress())))
	}

	if ctx.LastSession != nil {
		loops := ctx.LastSession.OpenLoops
		if len(loops) > maxOpenLoops {
			loops = loops[:maxOpenLoops]
		}
		for _, loop := range loops {
			suggestions = append(suggestions, "Last time we discussed: "+loop)
		}
	}

	return suggestions
}

// ==================== PROMPT FORMATTING ====================

// FormatGoals renders active goals for prompt injection.
func FormatGoals(goals []*tracking.TargetGoal) string {
	if len(goals) == 0 {
		return "No active goals set."
	}
	if len(goals) > maxGoalsShown {
		goals = goals[:maxGoalsShown]
	}
	lines := make([]string, 0, len(goals))
	for _, g := range goals {
		lines = append(lines, fmt.Sprintf("- %s: %s", g.Title, truncate(g.Description, descriptionLimit)))
	}
	return strings.Join(lines, "\n")
}

// FormatHabits renders habits in development for prompt injection.
func FormatHabits(habits []*tracking.Habit) string {
	if len(habits) == 0 {
		return "No habits in development."
	}
	if len(habits) > maxHabitsShown {
		habits = habits[:maxHabitsShown]
	}
	lines := make([]string, 0, len(habits))
	for _, h := range habits {
		components := "N/A"
		if len(h.Components) > 0 {
			shown := h.Components
			if len(shown) > 3 {
				shown = shown[:3]
			}
			components = strings.Join(shown, ", ")
		}
		lines = append(lines, fmt.Sprintf("- %s (components: %s)", h.Title, components))
	}
	return strings.Join(lines, "\n")
}

// FormatExperiments renders experiments needing follow-up for prompt
// injection.
func FormatExperiments(experiments []*tracking.Experiment) string {
	if len(experiments) == 0 {
		return "No experiments needing follow-up."
	}
	lines := make([]string, 0, len(experiments))
	for _, e := range experiments {
		lines = append(lines, fmt.Sprintf(
			"- %s | Progress: %s | Successful days: %d/%d | Criteria: %s",
			e.Title,
			tracking.SignedProgress(e.CumulativeProgress()),
			e.SuccessfulDays(), tracking.CompletionThreshold,
			truncate(e.SuccessCriteria, criteriaLimit)))
	}
	return strings.Join(lines, "\n")
}

// FullContextBlock builds the complete prompt-injection block. Sections
// with no data are omitted; when every section is empty the fixed
// fallback is returned.
func (a *Assembler) FullContextBlock(userInput string) string {
	ctx := a.BuildSessionContext(userInput)

	var sections []string

	if len(ctx.ActiveGoals) > 0 {
		sections = append(sections, "ACTIVE GOALS:\n"+FormatGoals(ctx.ActiveGoals))
	}
	if len(ctx.HabitsInFocus) > 0 {
		sections = append(sections, "HABITS IN DEVELOPMENT:\n"+FormatHabits(ctx.HabitsInFocus))
	}
	if len(ctx.ExperimentsFollowup) > 0 {
		sections = append(sections, "EXPERIMENTS NEEDING FOLLOW-UP:\n"+FormatExperiments(ctx.ExperimentsFollowup))
	}
	if len(ctx.SuggestedFollowups) > 0 {
		var b strings.Builder
		b.WriteString("SUGGESTED FOLLOW-UPS:")
		for _, s := range ctx.SuggestedFollowups {
			b.WriteString("\n- ")
			b.WriteString(s)
		}
		sections = append(sections, b.String())
	}
	if ctx.WeeklyFocus != "" {
		sections = append(sections, "WEEKLY FOCUS:\n"+ctx.WeeklyFocus)
	}
	if ctx.GraphContext != "" {
		sections = append(sections, "RELEVANT PAST CONTEXT:\n"+ctx.GraphContext)
	}

	if len(sections) == 0 {
		return NoPriorContext
	}
	return strings.Join(sections, "\n\n")
}

// ProgressSummary proxies the tracking digest for prompt use.
func (a *Assembler) ProgressSummary() string {
	return a.tracking.OverallProgressSummary()
}

// truncate shortens s to limit runes, never splitting a multibyte
// character.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// WriteFileAtomic replaces path with data through a temp-file rename, so
// a crash mid-write leaves the previous contents intact. Used for every
// overwritten state file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
