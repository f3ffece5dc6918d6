package engine

import (
	"context"
	"sort"

	"fieldops/internal/domain"
	"fieldops/internal/objective"
)

type ConditionalResult struct {
	Met        bool               `json:"met"`
	RequireAll bool               `json:"requireAll"`
	Required   []string           `json:"required"`
	Done       []string           `json:"done"`
	Completed  bool               `json:"completed"`
	Points     int                `json:"points"`
	Completion *domain.Completion `json:"completion,omitempty"`
}

// EvaluateConditional completes a CONDITIONAL objective when its required
// objectives are done: all of them, or at least one when requireAll is false.
// An unmet condition is a normal answer, not an error.
func (e Engine) EvaluateConditional(ctx context.Context, objectiveID, teamID string) (ConditionalResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return ConditionalResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveConditional)
	if err != nil {
		return ConditionalResult{}, err
	}
	cfg := p.cfg.(*objective.Conditional)
	done, err := e.Repo.CompletedAmong(ctx, tx, teamID, cfg.RequiredObjectiveIDs)
	if err != nil {
		return ConditionalResult{}, err
	}
	res := ConditionalResult{
		RequireAll: *cfg.RequireAll,
		Required:   cfg.RequiredObjectiveIDs,
		Done:       doneList(cfg.RequiredObjectiveIDs, done),
	}
	if *cfg.RequireAll {
		res.Met = len(res.Done) == len(cfg.RequiredObjectiveIDs)
	} else {
		res.Met = len(res.Done) > 0
	}
	if !res.Met {
		return res, nil
	}
	c, err := e.complete(ctx, tx, p, completionInput{})
	if err != nil {
		return res, err
	}
	res.Completed = true
	res.Points = c.Points
	res.Completion = &c
	return res, e.finish(tx, p, c)
}

type PoolResult struct {
	Selected   []string           `json:"selected"`
	Done       []string           `json:"done"`
	Completed  bool               `json:"completed"`
	Points     int                `json:"points"`
	Completion *domain.Completion `json:"completion,omitempty"`
}

// DrawRandomPool returns the objectives drawn for the team from a RANDOM_POOL.
// The draw is stable per (objective, team); the pool completes once every
// drawn objective is completed.
func (e Engine) DrawRandomPool(ctx context.Context, objectiveID, teamID string) (PoolResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return PoolResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveRandomPool)
	if err != nil {
		return PoolResult{}, err
	}
	cfg := p.cfg.(*objective.RandomPool)
	selected := objective.SelectPool(cfg.PoolObjectiveIDs, cfg.SelectCount, p.obj.ID+"|"+teamID)
	done, err := e.Repo.CompletedAmong(ctx, tx, teamID, selected)
	if err != nil {
		return PoolResult{}, err
	}
	res := PoolResult{Selected: selected, Done: doneList(selected, done)}
	if len(res.Done) < len(selected) {
		return res, nil
	}
	c, err := e.complete(ctx, tx, p, completionInput{})
	if err != nil {
		return res, err
	}
	res.Completed = true
	res.Points = c.Points
	res.Completion = &c
	return res, e.finish(tx, p, c)
}

func doneList(ids []string, done map[string]bool) []string {
	out := []string{}
	for _, id := range ids {
		if done[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
