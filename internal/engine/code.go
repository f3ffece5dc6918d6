package engine

import (
	"context"

	"fieldops/internal/domain"
	"fieldops/internal/fault"
	"fieldops/internal/objective"
)

// AttemptResult reports a code submission.
type AttemptResult struct {
	Correct           bool               `json:"correct"`
	Completed         bool               `json:"completed"`
	Points            int                `json:"points"`
	AttemptsUsed      int                `json:"attemptsUsed"`
	AttemptsRemaining *int               `json:"attemptsRemaining,omitempty"`
	Completion        *domain.Completion `json:"completion,omitempty"`
}

// SubmitCode checks a PHYSICAL_CODE guess. The attempt limit is enforced
// before the code is compared, so a correct code is refused once the team has
// used up its attempts.
func (e Engine) SubmitCode(ctx context.Context, objectiveID, teamID, code string) (AttemptResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return AttemptResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectivePhysicalCode)
	if err != nil {
		return AttemptResult{}, err
	}
	cfg := p.cfg.(*objective.PhysicalCode)
	used, err := e.Repo.CountAttempts(ctx, tx, p.obj.ID, teamID)
	if err != nil {
		return AttemptResult{}, err
	}
	if cfg.MaxAttempts > 0 && used >= cfg.MaxAttempts {
		return AttemptResult{}, fault.WithMetadata(fault.CodeMaxAttemptsReached, "maximum attempts reached",
			map[string]any{"maxAttempts": cfg.MaxAttempts, "attemptsUsed": used})
	}
	correct := objective.MatchAnswer(cfg.SecretCode, code, cfg.CaseSensitive)
	if _, err := e.attempt(ctx, tx, p, code, correct); err != nil {
		return AttemptResult{}, err
	}
	used++
	res := AttemptResult{Correct: correct, AttemptsUsed: used}
	if cfg.MaxAttempts > 0 {
		left := cfg.MaxAttempts - used
		res.AttemptsRemaining = &left
	}
	if !correct {
		meta := map[string]any{"attemptsUsed": used}
		if res.AttemptsRemaining != nil {
			meta["attemptsRemaining"] = *res.AttemptsRemaining
		}
		if cfg.Hint != "" {
			meta["hint"] = cfg.Hint
		}
		return res, e.reject(tx, p, fault.WithMetadata(fault.CodeWrongAnswer, "wrong code", meta))
	}
	c, err := e.complete(ctx, tx, p, completionInput{})
	if err != nil {
		return res, err
	}
	if err := e.finish(tx, p, c); err != nil {
		return res, err
	}
	res.Completed = true
	res.Points = c.Points
	res.Completion = &c
	return res, nil
}

// SubmitMorse compares a decoded MORSE_RADIO message, ignoring case.
func (e Engine) SubmitMorse(ctx context.Context, objectiveID, teamID, text string) (CompletionResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveMorseRadio)
	if err != nil {
		return CompletionResult{}, err
	}
	cfg := p.cfg.(*objective.MorseRadio)
	ok := objective.MatchAnswer(cfg.Message, text, false)
	if _, err := e.attempt(ctx, tx, p, text, ok); err != nil {
		return CompletionResult{}, err
	}
	if !ok {
		return CompletionResult{}, e.reject(tx, p, fault.New(fault.CodeWrongAnswer, "wrong message"))
	}
	c, err := e.complete(ctx, tx, p, completionInput{})
	if err != nil {
		return CompletionResult{}, err
	}
	return completed(c), e.finish(tx, p, c)
}
