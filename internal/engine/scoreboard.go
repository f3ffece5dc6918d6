package engine

import (
	"context"
	"sort"

	"fieldops/internal/domain"
)

type ObjectiveProgress struct {
	ObjectiveView
	Completed  bool               `json:"completed"`
	Completion *domain.Completion `json:"completion,omitempty"`
	Locked     bool               `json:"locked"`
	ParentID   string             `json:"parentObjectiveId,omitempty"`
}

type TeamProgress struct {
	OperationID string              `json:"operationId"`
	TeamID      string              `json:"teamId"`
	Points      int                 `json:"points"`
	Completed   int                 `json:"completed"`
	Total       int                 `json:"total"`
	Objectives  []ObjectiveProgress `json:"objectives"`
}

// TeamProgress lists every objective of the operation with the team's state.
// An objective is locked while its prerequisite is not completed.
func (e Engine) TeamProgress(ctx context.Context, operationID, teamID string) (TeamProgress, error) {
	if _, err := e.Repo.GetOperation(ctx, nil, operationID); err != nil {
		return TeamProgress{}, lookup(err, "operation", operationID)
	}
	objectives, err := e.Repo.ListObjectives(ctx, nil, operationID)
	if err != nil {
		return TeamProgress{}, err
	}
	completions, err := e.Repo.ListCompletions(ctx, nil, operationID, teamID)
	if err != nil {
		return TeamProgress{}, err
	}
	byObjective := make(map[string]domain.Completion, len(completions))
	for _, c := range completions {
		byObjective[c.ObjectiveID] = c
	}
	res := TeamProgress{OperationID: operationID, TeamID: teamID, Total: len(objectives), Objectives: []ObjectiveProgress{}}
	for _, o := range objectives {
		item := ObjectiveProgress{ObjectiveView: viewOf(o)}
		if c, ok := byObjective[o.ID]; ok {
			c := c
			item.Completed = true
			item.Completion = &c
			res.Points += c.Points
			res.Completed++
		}
		if o.ParentObjectiveID != nil {
			item.ParentID = *o.ParentObjectiveID
			_, parentDone := byObjective[item.ParentID]
			item.Locked = !parentDone
		}
		res.Objectives = append(res.Objectives, item)
	}
	return res, nil
}

type ScoreboardEntry struct {
	Rank      int    `json:"rank"`
	TeamID    string `json:"teamId"`
	Name      string `json:"name"`
	Points    int    `json:"points"`
	Completed int    `json:"completed"`
}

// Scoreboard ranks the accepted teams of an operation by points. Ties share a
// rank and are listed by name.
func (e Engine) Scoreboard(ctx context.Context, operationID string) ([]ScoreboardEntry, error) {
	if _, err := e.Repo.GetOperation(ctx, nil, operationID); err != nil {
		return nil, lookup(err, "operation", operationID)
	}
	teams, err := e.Repo.ListOperationTeams(ctx, nil, operationID)
	if err != nil {
		return nil, err
	}
	completions, err := e.Repo.ListCompletions(ctx, nil, operationID, "")
	if err != nil {
		return nil, err
	}
	entries := map[string]*ScoreboardEntry{}
	var order []string
	for _, t := range teams {
		if t.Invitation != domain.InvitationAccepted {
			continue
		}
		entries[t.TeamID] = &ScoreboardEntry{TeamID: t.TeamID, Name: t.Name}
		order = append(order, t.TeamID)
	}
	for _, c := range completions {
		entry, ok := entries[c.TeamID]
		if !ok {
			continue
		}
		entry.Points += c.Points
		entry.Completed++
	}
	res := make([]ScoreboardEntry, 0, len(order))
	for _, id := range order {
		res = append(res, *entries[id])
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Points != res[j].Points {
			return res[i].Points > res[j].Points
		}
		return res[i].Name < res[j].Name
	})
	for i := range res {
		if i > 0 && res[i].Points == res[i-1].Points {
			res[i].Rank = res[i-1].Rank
		} else {
			res[i].Rank = i + 1
		}
	}
	return res, nil
}
