package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"fieldops/internal/domain"
	"fieldops/internal/events"
	"fieldops/internal/fault"
	"fieldops/internal/geo"
	"fieldops/internal/objective"
	"fieldops/internal/repo"
)

// TimedStart describes a timed action that was just started.
type TimedStart struct {
	ActionID        string                 `json:"actionId"`
	Kind            domain.TimedActionKind `json:"kind"`
	StartedAt       time.Time              `json:"startedAt"`
	ReadyAt         time.Time              `json:"readyAt"`
	DurationMinutes int                    `json:"durationMinutes"`
	RadiusMeters    float64                `json:"radiusMeters,omitempty"`
	Instructions    string                 `json:"instructions,omitempty"`
}

// GPSCaptureStart is the answer to StartGPSCapture.
type GPSCaptureStart struct {
	CaptureID       string  `json:"captureId"`
	DurationMinutes int     `json:"durationMinutes"`
	RadiusMeters    float64 `json:"radiusMeters"`
}

func (e Engine) startAction(ctx context.Context, tx *sql.Tx, p *play, kind domain.TimedActionKind, deadline *time.Time, lat, lon *float64) (domain.TimedAction, error) {
	_, err := e.Repo.OpenTimedAction(ctx, tx, p.obj.ID, p.teamID)
	if err == nil {
		return domain.TimedAction{}, fault.New(fault.CodeAlreadyInProgress, "action already in progress")
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.TimedAction{}, fmt.Errorf("load timed action: %w", err)
	}
	a := domain.TimedAction{
		ID:          newID(),
		ObjectiveID: p.obj.ID,
		TeamID:      p.teamID,
		Kind:        kind,
		Status:      domain.TimedInProgress,
		StartedAt:   e.now(),
		Deadline:    deadline,
		StartLat:    lat,
		StartLon:    lon,
	}
	if err := e.Repo.InsertTimedAction(ctx, tx, a); err != nil {
		if repo.IsUniqueViolation(err) {
			return a, fault.New(fault.CodeAlreadyInProgress, "action already in progress")
		}
		return a, fmt.Errorf("insert timed action: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.TimedActionStarted, p.obj.OperationID, "timed_action", a.ID, p.teamID, events.EventPayload{
		"objective_id": p.obj.ID,
		"kind":         kind,
	}); err != nil {
		return a, err
	}
	return a, nil
}

func (e Engine) openAction(ctx context.Context, tx *sql.Tx, p *play) (domain.TimedAction, error) {
	a, err := e.Repo.OpenTimedAction(ctx, tx, p.obj.ID, p.teamID)
	if errors.Is(err, repo.ErrNotFound) {
		return a, fault.New(fault.CodeNotStarted, "no action in progress")
	}
	if err != nil {
		return a, fmt.Errorf("load timed action: %w", err)
	}
	return a, nil
}

func (e Engine) closeAction(ctx context.Context, tx *sql.Tx, a *domain.TimedAction, status domain.TimedActionStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("close timed action %s: %s is not a terminal status", a.ID, status)
	}
	at := e.now()
	if err := e.Repo.FinishTimedAction(ctx, tx, a.ID, status, at); err != nil {
		return fmt.Errorf("finish timed action: %w", err)
	}
	a.Status = status
	a.CompletedAt = &at
	return nil
}

// elapsed fails TimeNotElapsed until minutes have passed since the start.
func (e Engine) elapsed(a domain.TimedAction, minutes int) error {
	ready := a.StartedAt.Add(time.Duration(minutes) * time.Minute)
	now := e.now()
	if now.Before(ready) {
		return fault.WithMetadata(fault.CodeTimeNotElapsed, "required time has not elapsed",
			map[string]any{"remainingMinutes": remainingMinutes(ready.Sub(now))})
	}
	return nil
}

// finishAction completes a timed objective once its rule passed.
func (e Engine) finishAction(ctx context.Context, tx *sql.Tx, p *play, a domain.TimedAction, in completionInput) (CompletionResult, error) {
	if err := e.closeAction(ctx, tx, &a, domain.TimedCompleted); err != nil {
		return CompletionResult{}, err
	}
	c, err := e.complete(ctx, tx, p, in)
	if err != nil {
		return CompletionResult{}, err
	}
	return completed(c), e.finish(tx, p, c)
}

func checkPosition(lat, lon float64) error {
	if !geo.ValidCoordinate(lat, lon) {
		return fault.WithMetadata(fault.CodeInvalidArgument, "invalid coordinates", map[string]any{"lat": lat, "lon": lon})
	}
	return nil
}

func roundMeters(d float64) float64 {
	return math.Round(d*10) / 10
}

// startDelayed starts the sabotage and antenna-hack style mechanics: a plain
// timer with no position.
func (e Engine) startDelayed(ctx context.Context, objectiveID, teamID string, t domain.ObjectiveType, kind domain.TimedActionKind, minutes func(objective.Config) (int, string)) (TimedStart, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return TimedStart{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, t)
	if err != nil {
		return TimedStart{}, err
	}
	dur, instructions := minutes(p.cfg)
	a, err := e.startAction(ctx, tx, p, kind, nil, nil, nil)
	if err != nil {
		return TimedStart{}, err
	}
	if err := tx.Commit(); err != nil {
		return TimedStart{}, err
	}
	return TimedStart{
		ActionID:        a.ID,
		Kind:            kind,
		StartedAt:       a.StartedAt,
		ReadyAt:         a.StartedAt.Add(time.Duration(dur) * time.Minute),
		DurationMinutes: dur,
		Instructions:    instructions,
	}, nil
}

func (e Engine) completeDelayed(ctx context.Context, objectiveID, teamID string, t domain.ObjectiveType, minutes func(objective.Config) (int, string)) (CompletionResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, t)
	if err != nil {
		return CompletionResult{}, err
	}
	a, err := e.openAction(ctx, tx, p)
	if err != nil {
		return CompletionResult{}, err
	}
	dur, _ := minutes(p.cfg)
	if err := e.elapsed(a, dur); err != nil {
		return CompletionResult{}, e.reject(tx, p, err)
	}
	return e.finishAction(ctx, tx, p, a, completionInput{})
}

func sabotageTimer(cfg objective.Config) (int, string) {
	c := cfg.(*objective.TimedSabotage)
	return c.DelayMinutes, c.Instructions
}

func hackTimer(cfg objective.Config) (int, string) {
	c := cfg.(*objective.AntennaHack)
	return c.HackDurationMinutes, c.HackInstructions
}

func (e Engine) StartSabotage(ctx context.Context, objectiveID, teamID string) (TimedStart, error) {
	return e.startDelayed(ctx, objectiveID, teamID, domain.ObjectiveTimedSabotage, domain.TimedSabotage, sabotageTimer)
}

// CompleteSabotage succeeds once delayMinutes have passed since the start.
func (e Engine) CompleteSabotage(ctx context.Context, objectiveID, teamID string) (CompletionResult, error) {
	return e.completeDelayed(ctx, objectiveID, teamID, domain.ObjectiveTimedSabotage, sabotageTimer)
}

// DefuseSabotage lets an arbitrator cancel a team's running sabotage.
func (e Engine) DefuseSabotage(ctx context.Context, objectiveID, teamID, arbitratorID string) (domain.TimedAction, error) {
	if strings.TrimSpace(arbitratorID) == "" {
		return domain.TimedAction{}, fault.New(fault.CodeInvalidArgument, "arbitrator id is required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.TimedAction{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveTimedSabotage)
	if err != nil {
		return domain.TimedAction{}, err
	}
	a, err := e.openAction(ctx, tx, p)
	if err != nil {
		return a, err
	}
	if err := e.closeAction(ctx, tx, &a, domain.TimedDefused); err != nil {
		return a, err
	}
	if err := e.events().Append(ctx, tx, events.TimedActionDefused, p.obj.OperationID, "timed_action", a.ID, arbitratorID, events.EventPayload{
		"objective_id": p.obj.ID,
		"team_id":      teamID,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.log().Info("sabotage defused", "objective_id", p.obj.ID, "team_id", teamID, "arbitrator", arbitratorID)
	return a, nil
}

func (e Engine) StartAntennaHack(ctx context.Context, objectiveID, teamID string) (TimedStart, error) {
	return e.startDelayed(ctx, objectiveID, teamID, domain.ObjectiveAntennaHack, domain.TimedAntennaHack, hackTimer)
}

func (e Engine) CompleteAntennaHack(ctx context.Context, objectiveID, teamID string) (CompletionResult, error) {
	return e.completeDelayed(ctx, objectiveID, teamID, domain.ObjectiveAntennaHack, hackTimer)
}

// StartGPSCapture requires the team to stand inside the configured zone.
func (e Engine) StartGPSCapture(ctx context.Context, objectiveID, teamID string, lat, lon float64) (GPSCaptureStart, error) {
	if err := checkPosition(lat, lon); err != nil {
		return GPSCaptureStart{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return GPSCaptureStart{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveGPSCapture)
	if err != nil {
		return GPSCaptureStart{}, err
	}
	cfg := p.cfg.(*objective.GPSCapture)
	d := geo.DistanceMeters(*cfg.Latitude, *cfg.Longitude, lat, lon)
	if d > cfg.RadiusMeters {
		return GPSCaptureStart{}, e.reject(tx, p, fault.WithMetadata(fault.CodeOutOfRange, "position is outside the capture zone",
			map[string]any{"distanceMeters": roundMeters(d), "radiusMeters": cfg.RadiusMeters}))
	}
	a, err := e.startAction(ctx, tx, p, domain.TimedGPSCapture, nil, &lat, &lon)
	if err != nil {
		return GPSCaptureStart{}, err
	}
	if err := tx.Commit(); err != nil {
		return GPSCaptureStart{}, err
	}
	return GPSCaptureStart{CaptureID: a.ID, DurationMinutes: cfg.DurationMinutes, RadiusMeters: cfg.RadiusMeters}, nil
}

// CompleteGPSCapture checks the zone before the clock: a team that left the
// zone is told so even when the time is not up yet.
func (e Engine) CompleteGPSCapture(ctx context.Context, objectiveID, teamID string, lat, lon float64) (CompletionResult, error) {
	if err := checkPosition(lat, lon); err != nil {
		return CompletionResult{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveGPSCapture)
	if err != nil {
		return CompletionResult{}, err
	}
	cfg := p.cfg.(*objective.GPSCapture)
	a, err := e.openAction(ctx, tx, p)
	if err != nil {
		return CompletionResult{}, err
	}
	if d := geo.DistanceMeters(*cfg.Latitude, *cfg.Longitude, lat, lon); d > cfg.RadiusMeters {
		return CompletionResult{}, e.reject(tx, p, fault.WithMetadata(fault.CodeMovedOutOfZone, "team left the capture zone",
			map[string]any{"distanceMeters": roundMeters(d), "radiusMeters": cfg.RadiusMeters}))
	}
	if err := e.elapsed(a, cfg.DurationMinutes); err != nil {
		return CompletionResult{}, e.reject(tx, p, err)
	}
	return e.finishAction(ctx, tx, p, a, completionInput{lat: &lat, lon: &lon})
}

// holdRule is the zone rule shared by point defense and extraction: the team
// must stay within radius of where it started.
type holdRule struct {
	radius       float64
	minutes      int
	instructions string
}

func pointDefenseRule(cfg objective.Config) holdRule {
	c := cfg.(*objective.PointDefense)
	return holdRule{radius: c.RadiusMeters, minutes: c.DurationMinutes, instructions: c.DefenseRules}
}

func extractionRule(cfg objective.Config) holdRule {
	c := cfg.(*objective.Extraction)
	return holdRule{radius: c.RadiusMeters, minutes: c.HoldMinutes, instructions: c.ExtractionRules}
}

func (e Engine) startHold(ctx context.Context, objectiveID, teamID string, lat, lon float64, t domain.ObjectiveType, kind domain.TimedActionKind, rule func(objective.Config) holdRule) (TimedStart, error) {
	if err := checkPosition(lat, lon); err != nil {
		return TimedStart{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return TimedStart{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, t)
	if err != nil {
		return TimedStart{}, err
	}
	r := rule(p.cfg)
	a, err := e.startAction(ctx, tx, p, kind, nil, &lat, &lon)
	if err != nil {
		return TimedStart{}, err
	}
	if err := tx.Commit(); err != nil {
		return TimedStart{}, err
	}
	return TimedStart{
		ActionID:        a.ID,
		Kind:            kind,
		StartedAt:       a.StartedAt,
		ReadyAt:         a.StartedAt.Add(time.Duration(r.minutes) * time.Minute),
		DurationMinutes: r.minutes,
		RadiusMeters:    r.radius,
		Instructions:    r.instructions,
	}, nil
}

func (e Engine) completeHold(ctx context.Context, objectiveID, teamID string, lat, lon float64, t domain.ObjectiveType, rule func(objective.Config) holdRule) (CompletionResult, error) {
	if err := checkPosition(lat, lon); err != nil {
		return CompletionResult{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, t)
	if err != nil {
		return CompletionResult{}, err
	}
	r := rule(p.cfg)
	a, err := e.openAction(ctx, tx, p)
	if err != nil {
		return CompletionResult{}, err
	}
	if a.StartLat == nil || a.StartLon == nil {
		return CompletionResult{}, fmt.Errorf("timed action %s has no start position", a.ID)
	}
	if d := geo.DistanceMeters(*a.StartLat, *a.StartLon, lat, lon); d > r.radius {
		return CompletionResult{}, e.reject(tx, p, fault.WithMetadata(fault.CodeMovedOutOfZone, "team left the defended position",
			map[string]any{"distanceMeters": roundMeters(d), "radiusMeters": r.radius}))
	}
	if err := e.elapsed(a, r.minutes); err != nil {
		return CompletionResult{}, e.reject(tx, p, err)
	}
	return e.finishAction(ctx, tx, p, a, completionInput{lat: &lat, lon: &lon})
}

func (e Engine) StartPointDefense(ctx context.Context, objectiveID, teamID string, lat, lon float64) (TimedStart, error) {
	return e.startHold(ctx, objectiveID, teamID, lat, lon, domain.ObjectivePointDefense, domain.TimedPointDefense, pointDefenseRule)
}

func (e Engine) CompletePointDefense(ctx context.Context, objectiveID, teamID string, lat, lon float64) (CompletionResult, error) {
	return e.completeHold(ctx, objectiveID, teamID, lat, lon, domain.ObjectivePointDefense, pointDefenseRule)
}

func (e Engine) StartExtraction(ctx context.Context, objectiveID, teamID string, lat, lon float64) (TimedStart, error) {
	return e.startHold(ctx, objectiveID, teamID, lat, lon, domain.ObjectiveExtraction, domain.TimedExtraction, extractionRule)
}

func (e Engine) CompleteExtraction(ctx context.Context, objectiveID, teamID string, lat, lon float64) (CompletionResult, error) {
	return e.completeHold(ctx, objectiveID, teamID, lat, lon, domain.ObjectiveExtraction, extractionRule)
}
