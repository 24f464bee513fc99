package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/reflective-journal-kernel/internal/jsonx"
	"github.com/reflective-journal-kernel/internal/llm"
)

const dailySystemPrompt = `You are a thoughtful reflection coach. The user shares a journal entry;
respond with warm, concrete guidance. Reference their goals, habits and
experiments where relevant, ask at most one clarifying question, and keep
the response under 300 words.

Context about the user:
%s`

const dailySummaryPrompt = `Summarize the following coaching exchange as JSON with exactly these keys:
"summary" (2-3 sentences), "open_loops" (array of unresolved threads worth
revisiting, may be empty), "emotional_state" (a few words), and
"next_session_focus" (one sentence). Return only the JSON object.`

type dailySummary struct {
	Summary          string   `json:"summary"`
	OpenLoops        []string `json:"open_loops"`
	EmotionalState   string   `json:"emotional_state"`
	NextSessionFocus string   `json:"next_session_focus"`
}

// runDaily collects a journal entry, responds with guidance, then persists
// the entry, the session memory and the extracted graph updates.
func (c *Coach) runDaily(ctx context.Context) error {
	entry, err := c.readEntry("What's on your mind today?")
	if err != nil {
		return err
	}
	if entry == "" {
		fmt.Fprintln(c.out, infoStyle.Render("Nothing written, nothing saved."))
		return nil
	}

	contextBlock := c.assembler.FullContextBlock(entry)
	system := fmt.Sprintf(dailySystemPrompt, contextBlock)

	guidance, err := c.llm.Chat(ctx, system, nil, entry)
	if err != nil {
		if errors.Is(err, llm.ErrTimeout) {
			fmt.Fprintln(c.out, errStyle.Render("The model timed out; your entry was not saved. Try again."))
			return nil
		}
		return fmt.Errorf("guidance request failed: %w", err)
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, guidance)

	summary := c.summarizeDaily(ctx, entry, guidance)

	path, err := c.saveDailyEntry(entry, guidance, summary.EmotionalState)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, infoStyle.Render("Saved to "+path))

	if err := c.assembler.SaveSessionMemory(summary.Summary, summary.OpenLoops, summary.EmotionalState, summary.NextSessionFocus); err != nil {
		c.logger.Warn("failed to save session memory", zap.Error(err))
	}

	if c.pipeline != nil {
		sessionID := time.Now().Format("20060102-150405")
		transcript := "User: " + entry + "\nCoach: " + guidance
		if _, err := c.pipeline.ProcessSession(ctx, transcript, sessionID); err != nil {
			c.logger.Warn("graph ingestion failed", zap.Error(err))
		}
	}
	return nil
}

// summarizeDaily extracts the structured session summary. Failures fall
// back to a literal summary so the session is still recorded.
func (c *Coach) summarizeDaily(ctx context.Context, entry, guidance string) dailySummary {
	exchange := fmt.Sprintf("%s\n\nUser entry:\n%s\n\nCoach response:\n%s", dailySummaryPrompt, entry, guidance)
	raw, err := c.llm.ExtractJSON(ctx, "You summarize coaching sessions as strict JSON.", exchange)
	if err == nil {
		var s dailySummary
		if err := jsonx.Unmarshal(raw, &s); err == nil && s.Summary != "" {
			return s
		}
	}
	c.logger.Warn("daily summary extraction failed, using fallback", zap.Error(err))
	return dailySummary{
		Summary:        truncateRunes(entry, 200),
		EmotionalState: "unknown",
	}
}

// saveDailyEntry writes the markdown record with YAML front matter and
// returns its path.
func (c *Coach) saveDailyEntry(entry, guidance, emotionalState string) (string, error) {
	dir := filepath.Join(c.config.EntriesDir(), "daily")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create entries directory: %w", err)
	}

	now := time.Now()
	path := filepath.Join(dir, now.Format("2006-01-02_150405")+".md")

	content := fmt.Sprintf(`---
date: %s
type: daily
emotional_state: %s
---

%s

## Guidance

%s
`, now.Format(time.RFC3339), emotionalState, entry, guidance)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write entry: %w", err)
	}
	return path, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
