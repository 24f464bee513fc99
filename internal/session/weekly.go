package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reflective-journal-kernel/internal/assembler"
	"github.com/reflective-journal-kernel/internal/jsonx"
)

const weeklySystemPrompt = `You are a reflection coach running a weekly review. Given the past week's
journal entries and tracking state, identify the week's theme, what went
well, what was hard, and one focus for next week. Be specific and
encouraging; under 400 words.`

const weeklySummaryPrompt = `From the review below, produce JSON with exactly these keys:
"week_theme" (one phrase), "major_wins" (array of strings),
"struggles" (array of strings), "focus_for_next_week" (one sentence).
Return only the JSON object.`

// entryExcerptLimit bounds how much of each daily entry feeds the review.
const entryExcerptLimit = 2000

type weeklySummary struct {
	WeekTheme        string   `json:"week_theme"`
	MajorWins        []string `json:"major_wins"`
	Struggles        []string `json:"struggles"`
	FocusForNextWeek string   `json:"focus_for_next_week"`
}

// runWeekly reviews the last seven days of entries, prints the coach's
// synthesis and persists the weekly progression memory.
func (c *Coach) runWeekly(ctx context.Context) error {
	entries, err := c.recentDailyEntries(7 * 24 * time.Hour)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, infoStyle.Render("No entries from the past week; write a few daily reflections first."))
		return nil
	}

	var b strings.Builder
	b.WriteString("Tracking state:\n")
	b.WriteString(c.tracking.OverallProgressSummary())
	if focus := c.assembler.LoadWeeklyFocus(); focus != "" {
		b.WriteString("\n\nLast week's focus: ")
		b.WriteString(focus)
	}
	b.WriteString("\n\nEntries from the past week:\n")
	for _, e := range entries {
		b.WriteString("\n--- ")
		b.WriteString(e.name)
		b.WriteString(" ---\n")
		b.WriteString(e.text)
		b.WriteString("\n")
	}

	review, err := c.llm.Chat(ctx, weeklySystemPrompt, nil, b.String())
	if err != nil {
		return fmt.Errorf("weekly review failed: %w", err)
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, review)

	summary := c.summarizeWeekly(ctx, review)
	if err := c.saveWeeklyMemory(summary); err != nil {
		c.logger.Warn("failed to save weekly memory", zap.Error(err))
	} else if summary.FocusForNextWeek != "" {
		fmt.Fprintln(c.out, infoStyle.Render("Focus for next week: "+summary.FocusForNextWeek))
	}

	return c.saveWeeklyEntry(review, summary)
}

type dailyEntry struct {
	name string
	text string
}

// recentDailyEntries returns daily entries modified within the window,
// oldest first, each truncated to entryExcerptLimit.
func (c *Coach) recentDailyEntries(window time.Duration) ([]dailyEntry, error) {
	dir := filepath.Join(c.config.EntriesDir(), "daily")
	items, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	cutoff := time.Now().Add(-window)
	var entries []dailyEntry
	for _, item := range items {
		if item.IsDir() || !strings.HasSuffix(item.Name(), ".md") {
			continue
		}
		info, err := item.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, item.Name()))
		if err != nil {
			c.logger.Warn("unreadable entry", zap.String("name", item.Name()), zap.Error(err))
			continue
		}
		entries = append(entries, dailyEntry{
			name: item.Name(),
			text: truncateRunes(string(data), entryExcerptLimit),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries, nil
}

func (c *Coach) summarizeWeekly(ctx context.Context, review string) weeklySummary {
	raw, err := c.llm.ExtractJSON(ctx, "You summarize weekly reviews as strict JSON.", weeklySummaryPrompt+"\n\n"+review)
	if err == nil {
		var s weeklySummary
		if err := jsonx.Unmarshal(raw, &s); err == nil && s.WeekTheme != "" {
			return s
		}
	}
	c.logger.Warn("weekly summary extraction failed, using fallback", zap.Error(err))
	return weeklySummary{WeekTheme: "unreviewed week"}
}

// saveWeeklyMemory overwrites the progression memory consumed by the
// next week's context assembly.
func (c *Coach) saveWeeklyMemory(summary weeklySummary) error {
	path := c.config.WeeklyContextPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create weekly directory: %w", err)
	}
	data, err := jsonx.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode weekly memory: %w", err)
	}
	if err := assembler.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write weekly memory: %w", err)
	}
	return nil
}

func (c *Coach) saveWeeklyEntry(review string, summary weeklySummary) error {
	dir := filepath.Join(c.config.EntriesDir(), "weekly")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create weekly entries directory: %w", err)
	}

	now := time.Now()
	path := filepath.Join(dir, now.Format("2006-01-02")+".md")
	content := fmt.Sprintf(`---
date: %s
type: weekly
week_theme: %s
---

%s
`, now.Format(time.RFC3339), summary.WeekTheme, review)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write weekly entry: %w", err)
	}
	fmt.Fprintln(c.out, infoStyle.Render("Saved to "+path))
	return nil
}
