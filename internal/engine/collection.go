package engine

import (
	"context"

	"fieldops/internal/domain"
	"fieldops/internal/fault"
	"fieldops/internal/objective"
)

type CollectionResult struct {
	Collected  []string           `json:"collected"`
	Required   int                `json:"required"`
	Completed  bool               `json:"completed"`
	Points     int                `json:"points"`
	Completion *domain.Completion `json:"completion,omitempty"`
}

// CollectItem records one distinct item for an ITEM_COLLECTION objective.
// Progress is the set of successful attempts so far.
func (e Engine) CollectItem(ctx context.Context, objectiveID, teamID, item string) (CollectionResult, error) {
	key := objective.NormalizeItem(item)
	if key == "" {
		return CollectionResult{}, fault.New(fault.CodeInvalidItem, "item name is required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return CollectionResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveItemCollection)
	if err != nil {
		return CollectionResult{}, err
	}
	cfg := p.cfg.(*objective.ItemCollection)
	history, err := e.Repo.ListAttempts(ctx, tx, p.obj.ID, teamID)
	if err != nil {
		return CollectionResult{}, err
	}
	collected := successes(history, nil)
	res := CollectionResult{Collected: collected, Required: cfg.ItemsRequired}
	if !cfg.Allows(key) {
		return res, e.reject(tx, p, fault.WithMetadata(fault.CodeInvalidItem, "item is not part of this collection",
			map[string]any{"item": item}))
	}
	for _, have := range collected {
		if have == key {
			return res, e.reject(tx, p, fault.WithMetadata(fault.CodeAlreadyCollected, "item already collected",
				map[string]any{"item": item}))
		}
	}
	if _, err := e.attempt(ctx, tx, p, key, true); err != nil {
		return res, err
	}
	res.Collected = append(res.Collected, key)
	if len(res.Collected) < cfg.ItemsRequired {
		return res, tx.Commit()
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
