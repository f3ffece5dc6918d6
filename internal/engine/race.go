package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fieldops/internal/domain"
	"fieldops/internal/events"
	"fieldops/internal/fault"
	"fieldops/internal/objective"
	"fieldops/internal/repo"
)

type RaceStatus struct {
	ActionID         string             `json:"actionId"`
	Deadline         time.Time          `json:"deadline"`
	RemainingSeconds int                `json:"remainingSeconds"`
	Validated        int                `json:"validated"`
	Total            int                `json:"total"`
	Completed        bool               `json:"completed"`
	Points           int                `json:"points"`
	Completion       *domain.Completion `json:"completion,omitempty"`
}

func (e Engine) raceStatus(a domain.TimedAction, validated, total int) RaceStatus {
	st := RaceStatus{ActionID: a.ID, Validated: validated, Total: total}
	if a.Deadline != nil {
		st.Deadline = *a.Deadline
		if left := a.Deadline.Sub(e.now()); left > 0 {
			st.RemainingSeconds = int(left.Seconds())
		}
	}
	return st
}

// StartTimeRace opens a race whose deadline is now + timeLimitMinutes. A team
// whose previous race expired may start again.
func (e Engine) StartTimeRace(ctx context.Context, objectiveID, teamID string) (RaceStatus, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return RaceStatus{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveTimeRace)
	if err != nil {
		return RaceStatus{}, err
	}
	cfg := p.cfg.(*objective.TimeRace)
	if prev, err := e.Repo.OpenTimedAction(ctx, tx, p.obj.ID, teamID); err == nil {
		if _, err := e.expireRace(ctx, tx, p, &prev); err != nil {
			return RaceStatus{}, err
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return RaceStatus{}, fmt.Errorf("load timed action: %w", err)
	}
	deadline := e.now().Add(time.Duration(cfg.TimeLimitMinutes) * time.Minute)
	a, err := e.startAction(ctx, tx, p, domain.TimedTimeRace, &deadline, nil, nil)
	if err != nil {
		return RaceStatus{}, err
	}
	if err := tx.Commit(); err != nil {
		return RaceStatus{}, err
	}
	return e.raceStatus(a, 0, cfg.CheckpointsCount), nil
}

// expireRace closes a running race whose deadline has passed.
func (e Engine) expireRace(ctx context.Context, tx *sql.Tx, p *play, a *domain.TimedAction) (bool, error) {
	if a.Status.Terminal() || a.Deadline == nil || !e.now().After(*a.Deadline) {
		return false, nil
	}
	if err := e.closeAction(ctx, tx, a, domain.TimedExpired); err != nil {
		return false, err
	}
	if err := e.events().Append(ctx, tx, events.TimedActionExpired, p.obj.OperationID, "timed_action", a.ID, p.teamID, events.EventPayload{
		"objective_id": p.obj.ID,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// ValidateCheckpoint accepts checkpoint n only if it is the next one of the
// running race. Only checkpoints validated since the race started count. A
// validation after the deadline expires the race.
func (e Engine) ValidateCheckpoint(ctx context.Context, objectiveID, teamID string, n int) (RaceStatus, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return RaceStatus{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveTimeRace)
	if err != nil {
		return RaceStatus{}, err
	}
	cfg := p.cfg.(*objective.TimeRace)
	a, err := e.openAction(ctx, tx, p)
	if err != nil {
		return RaceStatus{}, err
	}
	expired, err := e.expireRace(ctx, tx, p, &a)
	if err != nil {
		return RaceStatus{}, err
	}
	if expired {
		return e.raceStatus(a, 0, cfg.CheckpointsCount), e.reject(tx, p, fault.WithMetadata(fault.CodeTimeExpired, "time limit exceeded",
			map[string]any{"deadline": a.Deadline.Format(time.RFC3339)}))
	}
	history, err := e.Repo.ListAttempts(ctx, tx, p.obj.ID, teamID)
	if err != nil {
		return RaceStatus{}, err
	}
	validated := len(successes(history, &a.StartedAt))
	expected := validated + 1
	st := e.raceStatus(a, validated, cfg.CheckpointsCount)
	if n != expected {
		if _, err := e.attempt(ctx, tx, p, strconv.Itoa(n), false); err != nil {
			return st, err
		}
		return st, e.reject(tx, p, fault.WithMetadata(fault.CodeInvalidCheckpoint, "checkpoint out of order",
			map[string]any{"expected": expected, "got": n}))
	}
	if _, err := e.attempt(ctx, tx, p, strconv.Itoa(n), true); err != nil {
		return st, err
	}
	st.Validated = expected
	if expected < cfg.CheckpointsCount {
		return st, tx.Commit()
	}
	res, err := e.finishAction(ctx, tx, p, a, completionInput{})
	if err != nil {
		return st, err
	}
	st.Completed = true
	st.Points = res.Points
	st.Completion = res.Completion
	return st, nil
}

// ParseCheckpoint reads a checkpoint number as typed by a player.
func ParseCheckpoint(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, fault.WithMetadata(fault.CodeInvalidArgument, "checkpoint must be a positive number", map[string]any{"value": s})
	}
	return n, nil
}
