package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldops/internal/domain"
	"fieldops/internal/domination"
	"fieldops/internal/events"
	"fieldops/internal/fault"
	"fieldops/internal/geo"
	"fieldops/internal/repo"
)

// SessionCreateOptions are parameters for creating a domination session.
// Nil rates fall back to the workspace defaults.
type SessionCreateOptions struct {
	ID              string
	Name            string
	OperationID     string
	PointsPerTick   *int
	TickIntervalSec *int
	DurationMinutes *int
	ActorID         string
}

func (e Engine) CreateDominationSession(ctx context.Context, opts SessionCreateOptions) (domain.DominationSession, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.DominationSession{}, fault.New(fault.CodeInvalidArgument, "session name is required")
	}
	s := domain.DominationSession{
		ID:              opts.ID,
		Name:            opts.Name,
		Status:          domain.SessionDraft,
		PointsPerTick:   e.Config.Domination.PointsPerTick,
		TickIntervalSec: e.Config.Domination.TickIntervalSec,
		DurationMinutes: opts.DurationMinutes,
		CreatedAt:       e.now(),
	}
	if s.ID == "" {
		s.ID = newID()
	}
	if opts.PointsPerTick != nil {
		s.PointsPerTick = *opts.PointsPerTick
	}
	if opts.TickIntervalSec != nil {
		s.TickIntervalSec = *opts.TickIntervalSec
	}
	if s.PointsPerTick < 0 {
		return s, fault.New(fault.CodeInvalidArgument, "pointsPerTick must be >= 0")
	}
	if s.TickIntervalSec < 1 {
		return s, fault.New(fault.CodeInvalidArgument, "tickIntervalSec must be >= 1")
	}
	if s.DurationMinutes != nil && *s.DurationMinutes < 1 {
		return s, fault.New(fault.CodeInvalidArgument, "durationMinutes must be >= 1")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if opts.OperationID != "" {
		if _, err := e.Repo.GetOperation(ctx, tx, opts.OperationID); err != nil {
			return s, lookup(err, "operation", opts.OperationID)
		}
		opID := opts.OperationID
		s.OperationID = &opID
	}
	if err := e.Repo.InsertSession(ctx, tx, s); err != nil {
		return s, fmt.Errorf("insert session: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.SessionCreated, opts.OperationID, "domination_session", s.ID, opts.ActorID, events.EventPayload{
		"points_per_tick":   s.PointsPerTick,
		"tick_interval_sec": s.TickIntervalSec,
	}); err != nil {
		return s, err
	}
	return s, tx.Commit()
}

func (e Engine) GetDominationSession(ctx context.Context, id string) (domain.DominationSession, error) {
	s, err := e.Repo.GetSession(ctx, nil, id)
	if err != nil {
		return s, lookup(err, "domination session", id)
	}
	return s, nil
}

func (e Engine) ListDominationSessions(ctx context.Context) ([]domain.DominationSession, error) {
	return e.Repo.ListSessions(ctx, nil)
}

func operationOf(s domain.DominationSession) string {
	if s.OperationID == nil {
		return ""
	}
	return *s.OperationID
}

// editableSession loads a session that still accepts teams and points.
func (e Engine) editableSession(ctx context.Context, tx *sql.Tx, id string) (domain.DominationSession, error) {
	s, err := e.Repo.GetSession(ctx, tx, id)
	if err != nil {
		return s, lookup(err, "domination session", id)
	}
	if s.Status == domain.SessionCompleted {
		return s, fault.WithMetadata(fault.CodeSessionNotActive, "session is completed", map[string]any{"status": s.Status})
	}
	return s, nil
}

func (e Engine) AddDominationTeam(ctx context.Context, t domain.DominationTeam, actorID string) (domain.DominationTeam, error) {
	if strings.TrimSpace(t.Name) == "" {
		return t, fault.New(fault.CodeInvalidArgument, "team name is required")
	}
	if t.ID == "" {
		t.ID = newID()
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	s, err := e.editableSession(ctx, tx, t.SessionID)
	if err != nil {
		return t, err
	}
	if err := e.Repo.InsertDominationTeam(ctx, tx, t); err != nil {
		return t, fmt.Errorf("insert domination team: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.DominationTeamAdded, operationOf(s), "domination_team", t.ID, actorID, events.EventPayload{
		"session_id": s.ID,
		"name":       t.Name,
	}); err != nil {
		return t, err
	}
	return t, tx.Commit()
}

func (e Engine) AddDominationPoint(ctx context.Context, p domain.DominationPoint, actorID string) (domain.DominationPoint, error) {
	if strings.TrimSpace(p.Name) == "" {
		return p, fault.New(fault.CodeInvalidArgument, "point name is required")
	}
	if (p.Lat == nil) != (p.Lon == nil) {
		return p, fault.New(fault.CodeInvalidArgument, "lat and lon must be set together")
	}
	if p.Lat != nil && !geo.ValidCoordinate(*p.Lat, *p.Lon) {
		return p, fault.New(fault.CodeInvalidArgument, "invalid coordinates")
	}
	if p.ID == "" {
		p.ID = newID()
	}
	if p.QRToken == "" {
		p.QRToken = newID()
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	s, err := e.editableSession(ctx, tx, p.SessionID)
	if err != nil {
		return p, err
	}
	if err := e.Repo.InsertDominationPoint(ctx, tx, p); err != nil {
		return p, fmt.Errorf("insert domination point: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.DominationPointAdded, operationOf(s), "domination_point", p.ID, actorID, events.EventPayload{
		"session_id": s.ID,
		"name":       p.Name,
	}); err != nil {
		return p, err
	}
	return p, tx.Commit()
}

func ensureSessionTransition(from, to domain.SessionStatus) error {
	switch from {
	case domain.SessionDraft:
		if to == domain.SessionActive {
			return nil
		}
	case domain.SessionActive:
		if to == domain.SessionPaused || to == domain.SessionCompleted {
			return nil
		}
	case domain.SessionPaused:
		if to == domain.SessionActive || to == domain.SessionCompleted {
			return nil
		}
	}
	return fault.WithMetadata(fault.CodeInvalidTransition, fmt.Sprintf("invalid session transition %s -> %s", from, to),
		map[string]any{"from": from, "to": to})
}

func (e Engine) StartDominationSession(ctx context.Context, id, actorID string) (domain.DominationSession, error) {
	return e.transitionSession(ctx, id, domain.SessionActive, actorID)
}

// PauseDominationSession blocks captures. Control intervals keep running while
// paused, so the scores after a resume include the paused time.
func (e Engine) PauseDominationSession(ctx context.Context, id, actorID string) (domain.DominationSession, error) {
	return e.transitionSession(ctx, id, domain.SessionPaused, actorID)
}

func (e Engine) ResumeDominationSession(ctx context.Context, id, actorID string) (domain.DominationSession, error) {
	return e.transitionSession(ctx, id, domain.SessionActive, actorID)
}

// EndDominationSession writes the final scores and completes the session.
func (e Engine) EndDominationSession(ctx context.Context, id, actorID string) (domain.DominationSession, error) {
	return e.transitionSession(ctx, id, domain.SessionCompleted, actorID)
}

func (e Engine) transitionSession(ctx context.Context, id string, to domain.SessionStatus, actorID string) (domain.DominationSession, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.DominationSession{}, err
	}
	defer tx.Rollback()
	s, err := e.Repo.GetSession(ctx, tx, id)
	if err != nil {
		return s, lookup(err, "domination session", id)
	}
	if s.Status != domain.SessionCompleted && to != domain.SessionCompleted {
		// a session past its duration can only end
		ended, err := e.endIfExpired(ctx, tx, &s, actorID)
		if err != nil {
			return s, err
		}
		if ended {
			if err := tx.Commit(); err != nil {
				return s, err
			}
			return s, fault.WithMetadata(fault.CodeSessionNotActive, "session duration elapsed", map[string]any{"status": s.Status})
		}
	}
	if err := ensureSessionTransition(s.Status, to); err != nil {
		return s, err
	}
	if err := e.setSessionStatus(ctx, tx, &s, to, actorID); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	e.log().Info("domination session status changed", "session_id", s.ID, "status", s.Status)
	return s, nil
}

// setSessionStatus applies a validated transition. Ending a session first
// materializes the final scores.
func (e Engine) setSessionStatus(ctx context.Context, tx *sql.Tx, s *domain.DominationSession, to domain.SessionStatus, actorID string) error {
	from := s.Status
	now := e.now()
	var startedAt, endedAt *time.Time
	switch {
	case to == domain.SessionActive && s.StartedAt == nil:
		startedAt = &now
	case to == domain.SessionCompleted:
		if _, err := e.writeScores(ctx, tx, *s); err != nil {
			return err
		}
		end := domination.EffectiveNow(*s, now)
		endedAt = &end
	}
	if err := e.Repo.UpdateSessionStatus(ctx, tx, s.ID, to, startedAt, endedAt); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if startedAt != nil {
		s.StartedAt = startedAt
	}
	if endedAt != nil {
		s.EndedAt = endedAt
	}
	s.Status = to
	return e.events().Append(ctx, tx, events.SessionStatusChanged, operationOf(*s), "domination_session", s.ID, actorID, events.EventPayload{
		"from": from,
		"to":   to,
	})
}

// endIfExpired completes a started session whose duration has elapsed.
func (e Engine) endIfExpired(ctx context.Context, tx *sql.Tx, s *domain.DominationSession, actorID string) (bool, error) {
	if s.Status == domain.SessionCompleted || s.Status == domain.SessionDraft {
		return false, nil
	}
	end, ok := s.EndsAt()
	if !ok || e.now().Before(end) {
		return false, nil
	}
	if err := e.setSessionStatus(ctx, tx, s, domain.SessionCompleted, actorID); err != nil {
		return false, err
	}
	e.log().Info("domination session expired", "session_id", s.ID)
	return true, nil
}

// writeScores replays the capture ledger and overwrites the session's scores.
// Every team gets a row, zero included.
func (e Engine) writeScores(ctx context.Context, tx *sql.Tx, s domain.DominationSession) ([]domain.DominationScore, error) {
	if s.StartedAt == nil {
		return nil, nil
	}
	teams, err := e.Repo.ListDominationTeams(ctx, tx, s.ID)
	if err != nil {
		return nil, err
	}
	captures, err := e.Repo.ListCaptures(ctx, tx, s.ID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	totals := domination.Calculate(domination.Input{Session: s, Captures: captures, Now: now})
	scores := make([]domain.DominationScore, 0, len(teams))
	for _, t := range teams {
		scores = append(scores, domain.DominationScore{SessionID: s.ID, TeamID: t.ID, Points: totals[t.ID], UpdatedAt: now})
	}
	if err := e.Repo.ReplaceScores(ctx, tx, s.ID, scores); err != nil {
		return nil, fmt.Errorf("write scores: %w", err)
	}
	return scores, nil
}

// RecomputeDominationScores rebuilds the scores of an ACTIVE, started
// session from its capture ledger. For any other session it returns nil.
func (e Engine) RecomputeDominationScores(ctx context.Context, sessionID string) ([]domain.DominationScore, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	s, err := e.Repo.GetSession(ctx, tx, sessionID)
	if err != nil {
		return nil, lookup(err, "domination session", sessionID)
	}
	scores, err := e.recompute(ctx, tx, s)
	if err != nil || scores == nil {
		return nil, err
	}
	return scores, tx.Commit()
}

func (e Engine) recompute(ctx context.Context, tx *sql.Tx, s domain.DominationSession) ([]domain.DominationScore, error) {
	if s.Status != domain.SessionActive || s.StartedAt == nil {
		return nil, nil
	}
	return e.writeScores(ctx, tx, s)
}

// CheckAndEndExpiredSession completes the session when startedAt +
// durationMinutes has passed and reports whether it did.
func (e Engine) CheckAndEndExpiredSession(ctx context.Context, sessionID string) (bool, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	s, err := e.Repo.GetSession(ctx, tx, sessionID)
	if err != nil {
		return false, lookup(err, "domination session", sessionID)
	}
	ended, err := e.endIfExpired(ctx, tx, &s, "")
	if err != nil || !ended {
		return false, err
	}
	return true, tx.Commit()
}

// CaptureDominationPoint appends a capture of the point behind qrToken. A
// session whose duration elapsed is closed on the spot.
func (e Engine) CaptureDominationPoint(ctx context.Context, qrToken, teamID, capturedBy string) (domain.DominationCapture, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.DominationCapture{}, err
	}
	defer tx.Rollback()
	point, err := e.Repo.GetDominationPointByToken(ctx, tx, qrToken)
	if err != nil {
		return domain.DominationCapture{}, lookup(err, "domination point", qrToken)
	}
	s, err := e.Repo.GetSession(ctx, tx, point.SessionID)
	if err != nil {
		return domain.DominationCapture{}, lookup(err, "domination session", point.SessionID)
	}
	ended, err := e.endIfExpired(ctx, tx, &s, "")
	if err != nil {
		return domain.DominationCapture{}, err
	}
	if ended {
		if err := tx.Commit(); err != nil {
			return domain.DominationCapture{}, err
		}
	}
	if s.Status != domain.SessionActive {
		return domain.DominationCapture{}, fault.WithMetadata(fault.CodeSessionNotActive, "session is not active",
			map[string]any{"status": s.Status})
	}
	team, err := e.Repo.GetDominationTeam(ctx, tx, teamID)
	if err != nil {
		return domain.DominationCapture{}, lookup(err, "domination team", teamID)
	}
	if team.SessionID != s.ID {
		return domain.DominationCapture{}, fault.WithMetadata(fault.CodeTeamNotInSession, "team does not play in this session",
			map[string]any{"teamId": teamID, "sessionId": s.ID})
	}
	last, err := e.Repo.LatestCapture(ctx, tx, point.ID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.DominationCapture{}, fmt.Errorf("load latest capture: %w", err)
	}
	if err == nil && last.TeamID == teamID {
		return domain.DominationCapture{}, fault.WithMetadata(fault.CodeAlreadyControlled, "team already controls this point",
			map[string]any{"pointId": point.ID})
	}
	c := domain.DominationCapture{
		ID:         newID(),
		PointID:    point.ID,
		TeamID:     teamID,
		SessionID:  s.ID,
		CapturedAt: e.now(),
		CapturedBy: capturedBy,
	}
	if c.Seq, err = e.Repo.InsertCapture(ctx, tx, c); err != nil {
		return c, fmt.Errorf("insert capture: %w", err)
	}
	actor := capturedBy
	if actor == "" {
		actor = teamID
	}
	if err := e.events().Append(ctx, tx, events.PointCaptured, operationOf(s), "domination_point", point.ID, actor, events.EventPayload{
		"session_id": s.ID,
		"team_id":    teamID,
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	e.log().Info("domination point captured", "session_id", s.ID, "point_id", point.ID, "team_id", teamID)
	return c, nil
}

type PointState struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Lat          *float64               `json:"lat,omitempty"`
	Lon          *float64               `json:"lon,omitempty"`
	ControlledBy *domain.DominationTeam `json:"controlledBy"`
	CapturedAt   *time.Time             `json:"capturedAt"`
}

type TeamScore struct {
	TeamID string `json:"teamId"`
	Points int    `json:"points"`
}

type DominationState struct {
	Session domain.DominationSession `json:"session"`
	Teams   []domain.DominationTeam  `json:"teams"`
	Points  []PointState             `json:"points"`
	Scores  []TeamScore              `json:"scores"`
}

// DominationState refreshes the scores, closes the session if it expired and
// returns the current picture of the map.
func (e Engine) DominationState(ctx context.Context, sessionID string) (DominationState, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return DominationState{}, err
	}
	defer tx.Rollback()
	s, err := e.Repo.GetSession(ctx, tx, sessionID)
	if err != nil {
		return DominationState{}, lookup(err, "domination session", sessionID)
	}
	if _, err := e.recompute(ctx, tx, s); err != nil {
		return DominationState{}, err
	}
	if _, err := e.endIfExpired(ctx, tx, &s, ""); err != nil {
		return DominationState{}, err
	}
	teams, err := e.Repo.ListDominationTeams(ctx, tx, s.ID)
	if err != nil {
		return DominationState{}, err
	}
	points, err := e.Repo.ListDominationPoints(ctx, tx, s.ID)
	if err != nil {
		return DominationState{}, err
	}
	captures, err := e.Repo.ListCaptures(ctx, tx, s.ID)
	if err != nil {
		return DominationState{}, err
	}
	stored, err := e.Repo.ListScores(ctx, tx, s.ID)
	if err != nil {
		return DominationState{}, err
	}
	if err := tx.Commit(); err != nil {
		return DominationState{}, err
	}

	teamByID := make(map[string]domain.DominationTeam, len(teams))
	for _, t := range teams {
		teamByID[t.ID] = t
	}
	controllers := domination.Controllers(captures)
	state := DominationState{Session: s, Teams: teams, Points: make([]PointState, 0, len(points)), Scores: make([]TeamScore, 0, len(teams))}
	if state.Teams == nil {
		state.Teams = []domain.DominationTeam{}
	}
	for _, p := range points {
		ps := PointState{ID: p.ID, Name: p.Name, Lat: p.Lat, Lon: p.Lon}
		if c, ok := controllers[p.ID]; ok {
			if t, ok := teamByID[c.TeamID]; ok {
				ps.ControlledBy = &t
			}
			at := c.CapturedAt
			ps.CapturedAt = &at
		}
		state.Points = append(state.Points, ps)
	}
	seen := map[string]bool{}
	for _, sc := range stored {
		state.Scores = append(state.Scores, TeamScore{TeamID: sc.TeamID, Points: sc.Points})
		seen[sc.TeamID] = true
	}
	for _, t := range teams {
		if !seen[t.ID] {
			state.Scores = append(state.Scores, TeamScore{TeamID: t.ID})
		}
	}
	return state, nil
}

// SweepDominationSessions closes expired sessions and refreshes the scores of
// active ones. It returns how many sessions it ended. A failing session is
// logged and skipped; the failures are returned together.
func (e Engine) SweepDominationSessions(ctx context.Context) (int, error) {
	sessions, err := e.Repo.ListSessions(ctx, nil, domain.SessionActive, domain.SessionPaused)
	if err != nil {
		return 0, err
	}
	ended := 0
	var errs []error
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		done, err := e.CheckAndEndExpiredSession(ctx, s.ID)
		if err == nil && !done {
			_, err = e.RecomputeDominationScores(ctx, s.ID)
		}
		if err != nil {
			e.log().Error("sweep domination session", "session_id", s.ID, "error", err)
			errs = append(errs, fmt.Errorf("sweep session %s: %w", s.ID, err))
			continue
		}
		if done {
			ended++
		}
	}
	return ended, errors.Join(errs...)
}
