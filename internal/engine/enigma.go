package engine

import (
	"context"
	"database/sql"

	"fieldops/internal/domain"
	"fieldops/internal/fault"
	"fieldops/internal/objective"
)

// StepResult describes the position of a team in a MULTI_STEP_ENIGMA. Step is
// 1-based; once completed Question is empty.
type StepResult struct {
	Step       int                `json:"step"`
	TotalSteps int                `json:"totalSteps"`
	Question   string             `json:"question,omitempty"`
	Completed  bool               `json:"completed"`
	Points     int                `json:"points"`
	Completion *domain.Completion `json:"completion,omitempty"`
}

// solvedSteps folds the attempt history into the number of solved steps.
func (e Engine) solvedSteps(ctx context.Context, tx *sql.Tx, p *play) (int, error) {
	history, err := e.Repo.ListAttempts(ctx, tx, p.obj.ID, p.teamID)
	if err != nil {
		return 0, err
	}
	return len(successes(history, nil)), nil
}

// CurrentStep returns the question the team has to answer next.
func (e Engine) CurrentStep(ctx context.Context, objectiveID, teamID string) (StepResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return StepResult{}, err
	}
	defer tx.Rollback()
	p, err := e.load(ctx, tx, objectiveID, teamID, domain.ObjectiveMultiStepEnigma)
	if err != nil {
		return StepResult{}, err
	}
	steps := p.cfg.(*objective.MultiStepEnigma).Steps()
	if p.completed {
		return StepResult{Step: len(steps), TotalSteps: len(steps), Completed: true}, nil
	}
	solved, err := e.solvedSteps(ctx, tx, p)
	if err != nil {
		return StepResult{}, err
	}
	if solved >= len(steps) {
		solved = len(steps) - 1
	}
	return StepResult{Step: solved + 1, TotalSteps: len(steps), Question: steps[solved].Question}, nil
}

// SubmitStepAnswer checks the answer against the current step only. The
// objective completes, and its points are awarded, on the last step.
func (e Engine) SubmitStepAnswer(ctx context.Context, objectiveID, teamID, answer string) (StepResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return StepResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveMultiStepEnigma)
	if err != nil {
		return StepResult{}, err
	}
	cfg := p.cfg.(*objective.MultiStepEnigma)
	steps := cfg.Steps()
	solved, err := e.solvedSteps(ctx, tx, p)
	if err != nil {
		return StepResult{}, err
	}
	if solved >= len(steps) {
		// steps already solved but the completion is missing; complete now
		solved = len(steps) - 1
	}
	current := steps[solved]
	ok := objective.MatchAnswer(current.Answer, answer, cfg.CaseSensitive)
	if _, err := e.attempt(ctx, tx, p, answer, ok); err != nil {
		return StepResult{}, err
	}
	res := StepResult{Step: solved + 1, TotalSteps: len(steps), Question: current.Question}
	if !ok {
		return res, e.reject(tx, p, fault.WithMetadata(fault.CodeWrongAnswer, "wrong answer",
			map[string]any{"step": solved + 1}))
	}
	if solved+1 < len(steps) {
		next := steps[solved+1]
		return StepResult{Step: solved + 2, TotalSteps: len(steps), Question: next.Question}, tx.Commit()
	}
	c, err := e.complete(ctx, tx, p, completionInput{})
	if err != nil {
		return res, err
	}
	return StepResult{Step: len(steps), TotalSteps: len(steps), Completed: true, Points: c.Points, Completion: &c}, e.finish(tx, p, c)
}
