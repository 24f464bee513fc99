// Package session runs the interactive coaching loop: daily reflections,
// weekly reviews and experiment check-ins.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/reflective-journal-kernel/internal/assembler"
	"github.com/reflective-journal-kernel/internal/config"
	"github.com/reflective-journal-kernel/internal/ingest"
	"github.com/reflective-journal-kernel/internal/llm"
	"github.com/reflective-journal-kernel/internal/tracking"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	menuStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Coach orchestrates interactive sessions over the assembled stores.
type Coach struct {
	config    config.Config
	llm       *llm.Client
	assembler *assembler.Assembler
	tracking  *tracking.Store
	pipeline  *ingest.Pipeline
	logger    *zap.Logger

	in  *bufio.Reader
	out io.Writer
}

// New creates a coach reading from in and writing to out.
func New(cfg config.Config, client *llm.Client, asm *assembler.Assembler, ts *tracking.Store, pipeline *ingest.Pipeline, in io.Reader, out io.Writer, logger *zap.Logger) *Coach {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coach{
		config:    cfg,
		llm:       client,
		assembler: asm,
		tracking:  ts,
		pipeline:  pipeline,
		logger:    logger.Named("session"),
		in:        bufio.NewReader(in),
		out:       out,
	}
}

// Run shows the menu until the user quits or ctx is cancelled.
func (c *Coach) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, titleStyle.Render("Reflective Coach"))
	fmt.Fprintln(c.out, infoStyle.Render(c.assembler.ProgressSummary()))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, menuStyle.Render("1) Daily reflection"))
		fmt.Fprintln(c.out, menuStyle.Render("2) Weekly review"))
		fmt.Fprintln(c.out, menuStyle.Render("3) Progress check-in"))
		fmt.Fprintln(c.out, menuStyle.Render("q) Quit"))

		choice, err := c.readLine("> ")
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch strings.TrimSpace(choice) {
		case "1":
			err = c.runDaily(ctx)
		case "2":
			err = c.runWeekly(ctx)
		case "3":
			err = c.runCheckin(ctx)
		case "q", "quit":
			fmt.Fprintln(c.out, infoStyle.Render("Until next time."))
			return nil
		default:
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("session action failed", zap.Error(err))
			fmt.Fprintln(c.out, errStyle.Render("Something went wrong: "+err.Error()))
		}
	}
}

func (c *Coach) readLine(prompt string) (string, error) {
	fmt.Fprint(c.out, promptStyle.Render(prompt))
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readEntry collects multi-line input until a line containing only SAVE
// or DONE.
func (c *Coach) readEntry(prompt string) (string, error) {
	fmt.Fprintln(c.out, promptStyle.Render(prompt))
	fmt.Fprintln(c.out, infoStyle.Render("(type SAVE or DONE on its own line to finish)"))

	var lines []string
	for {
		line, err := c.in.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		switch strings.ToUpper(strings.TrimSpace(trimmed)) {
		case "SAVE", "DONE":
			return strings.Join(lines, "\n"), nil
		}
		if trimmed != "" || err == nil {
			lines = append(lines, trimmed)
		}
		if err != nil {
			if err == io.EOF {
				return strings.Join(lines, "\n"), nil
			}
			return "", err
		}
	}
}
