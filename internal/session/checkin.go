package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/reflective-journal-kernel/internal/tracking"
)

var outcomeChoices = []tracking.Outcome{
	tracking.OutcomeSuccess,
	tracking.OutcomePartial,
	tracking.OutcomeNotTried,
	tracking.OutcomeFailed,
}

// runCheckin records a progress entry against an experiment awaiting
// follow-up.
func (c *Coach) runCheckin(ctx context.Context) error {
	experiments := c.tracking.ExperimentsNeedingFollowup()
	if len(experiments) == 0 {
		fmt.Fprintln(c.out, infoStyle.Render("All experiments are up to date."))
		return nil
	}

	fmt.Fprintln(c.out, titleStyle.Render("Experiments awaiting check-in:"))
	for i, e := range experiments {
		fmt.Fprintf(c.out, "%d) %s | progress %s | %d/%d successful days\n",
			i+1, e.Title,
			tracking.SignedProgress(e.CumulativeProgress()),
			e.SuccessfulDays(), tracking.CompletionThreshold)
	}

	exp, ok, err := c.pickExperiment(experiments)
	if err != nil || !ok {
		return err
	}

	outcome, ok, err := c.pickOutcome()
	if err != nil || !ok {
		return err
	}

	score, err := c.pickScore()
	if err != nil {
		return err
	}

	notes, err := c.readLine("Notes (optional): ")
	if err != nil {
		return err
	}

	if _, err := c.tracking.LogProgress(exp.ID, outcome, notes, score); err != nil {
		return fmt.Errorf("failed to log progress: %w", err)
	}

	gains := c.tracking.CalculateMarginalGains(exp.ID)
	if gains == nil {
		return nil
	}
	fmt.Fprintf(c.out, "Logged. Total progress %s over %d days (%d successful).\n",
		tracking.SignedProgress(gains.TotalProgress), gains.DaysTracked, gains.SuccessfulDays)
	switch {
	case gains.Status == tracking.ExperimentStatusCompleted:
		fmt.Fprintln(c.out, promptStyle.Render("Experiment complete. Consider folding it into the habit."))
	case gains.NearCompletion:
		fmt.Fprintln(c.out, promptStyle.Render("Almost there; a couple more good days."))
	}
	return nil
}

func (c *Coach) pickExperiment(experiments []*tracking.Experiment) (*tracking.Experiment, bool, error) {
	line, err := c.readLine("Which experiment? (number, blank to cancel): ")
	if err != nil {
		return nil, false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false, nil
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(experiments) {
		fmt.Fprintln(c.out, errStyle.Render("Not a valid choice."))
		return nil, false, nil
	}
	return experiments[n-1], true, nil
}

func (c *Coach) pickOutcome() (tracking.Outcome, bool, error) {
	for i, o := range outcomeChoices {
		fmt.Fprintf(c.out, "%d) %s\n", i+1, o)
	}
	line, err := c.readLine("Outcome: ")
	if err != nil {
		return "", false, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > len(outcomeChoices) {
		fmt.Fprintln(c.out, errStyle.Render("Not a valid choice."))
		return "", false, nil
	}
	return outcomeChoices[n-1], true, nil
}

// pickScore reads a marginal gain in [-3, 3]; unparseable input counts
// as zero.
func (c *Coach) pickScore() (int, error) {
	line, err := c.readLine("Marginal gain (-3 to +3): ")
	if err != nil {
		return 0, err
	}
	score, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "+")))
	if err != nil {
		return 0, nil
	}
	return score, nil
}
