// Package engine decides whether a team's action on an objective succeeds,
// records the outcome in the ledgers and awards points. It also drives the
// domination capture ledger and its score materialization.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"fieldops/internal/config"
	"fieldops/internal/domain"
	"fieldops/internal/events"
	"fieldops/internal/fault"
	"fieldops/internal/objective"
	"fieldops/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Logger *slog.Logger
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Now:    time.Now,
		Logger: slog.Default(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) events() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// reject commits what the failed call recorded (attempts, expiries) and
// returns the rule failure.
func (e Engine) reject(tx *sql.Tx, p *play, ruleErr error) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if p != nil {
		e.log().Debug("objective rule failed",
			"objective_id", p.obj.ID, "team_id", p.teamID, "type", p.obj.Type, "code", fault.CodeOf(ruleErr))
	}
	return ruleErr
}

func newID() string {
	return uuid.NewString()
}

func notFound(kind, id string) error {
	return fault.WithMetadata(fault.CodeNotFound, kind+" not found", map[string]any{"kind": kind, "id": id})
}

// lookup maps repo.ErrNotFound to a NotFound fault and wraps anything else.
func lookup(err error, kind, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(kind, id)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

type deviceKey struct{}

// WithDeviceInfo attaches the caller's device description to completions
// written under ctx.
func WithDeviceInfo(ctx context.Context, info string) context.Context {
	return context.WithValue(ctx, deviceKey{}, info)
}

func deviceInfo(ctx context.Context) string {
	v, _ := ctx.Value(deviceKey{}).(string)
	return v
}

// play is the state shared by every objective call once the common checks pass.
type play struct {
	obj       domain.Objective
	op        domain.Operation
	cfg       objective.Config
	teamID    string
	completed bool
}

// load runs the checks every objective call shares: existence, type, the
// operation gate and config validation. It reports prior completion without
// failing on it.
func (e Engine) load(ctx context.Context, tx *sql.Tx, objectiveID, teamID string, want domain.ObjectiveType) (*play, error) {
	if teamID == "" {
		return nil, fault.New(fault.CodeInvalidArgument, "team id is required")
	}
	obj, err := e.Repo.GetObjective(ctx, tx, objectiveID)
	if err != nil {
		return nil, lookup(err, "objective", objectiveID)
	}
	if want != "" && obj.Type != want {
		return nil, fault.WithMetadata(fault.CodeWrongType, fmt.Sprintf("objective is %s, not %s", obj.Type, want),
			map[string]any{"actual": obj.Type, "expected": want})
	}
	op, err := e.gate(ctx, tx, obj.OperationID, teamID)
	if err != nil {
		return nil, err
	}
	cfg, err := objective.Parse(obj.Type, obj.Config)
	if err != nil {
		return nil, err
	}
	done, err := e.Repo.HasCompletion(ctx, tx, obj.ID, teamID)
	if err != nil {
		return nil, fmt.Errorf("check completion: %w", err)
	}
	return &play{obj: obj, op: op, cfg: cfg, teamID: teamID, completed: done}, nil
}

// open is load plus the guards of every mutating call: the objective must not
// be completed yet and its prerequisite must be.
func (e Engine) open(ctx context.Context, tx *sql.Tx, objectiveID, teamID string, want domain.ObjectiveType) (*play, error) {
	p, err := e.load(ctx, tx, objectiveID, teamID, want)
	if err != nil {
		return nil, err
	}
	if p.completed {
		prior, err := e.Repo.GetCompletion(ctx, tx, p.obj.ID, teamID)
		if err != nil {
			return nil, fmt.Errorf("load completion: %w", err)
		}
		return nil, fault.WithMetadata(fault.CodeAlreadyCompleted, "objective already completed by team",
			map[string]any{"objectiveId": p.obj.ID, "teamId": teamID, "completedAt": prior.CompletedAt.Format(time.RFC3339)})
	}
	if p.obj.ParentObjectiveID != nil {
		parentID := *p.obj.ParentObjectiveID
		done, err := e.Repo.HasCompletion(ctx, tx, parentID, teamID)
		if err != nil {
			return nil, fmt.Errorf("check prerequisite: %w", err)
		}
		if !done {
			return nil, fault.WithMetadata(fault.CodePrerequisiteNotMet, "prerequisite objective not completed",
				map[string]any{"parentObjectiveId": parentID})
		}
	}
	return p, nil
}

// gate enforces the operation directory contract: the operation is ACTIVE and
// the team accepted its invitation.
func (e Engine) gate(ctx context.Context, tx *sql.Tx, operationID, teamID string) (domain.Operation, error) {
	op, err := e.Repo.GetOperation(ctx, tx, operationID)
	if err != nil {
		return op, lookup(err, "operation", operationID)
	}
	if op.Status != domain.OperationActive {
		return op, fault.WithMetadata(fault.CodeOperationNotActive, "operation is not active",
			map[string]any{"status": op.Status})
	}
	member, err := e.Repo.GetOperationTeam(ctx, tx, operationID, teamID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return op, fmt.Errorf("load operation team: %w", err)
	}
	if err != nil || member.Invitation != domain.InvitationAccepted {
		return op, fault.WithMetadata(fault.CodeTeamNotInOperation, "team is not part of the operation",
			map[string]any{"teamId": teamID})
	}
	return op, nil
}

func alreadyCompleted(objectiveID, teamID string) error {
	return fault.WithMetadata(fault.CodeAlreadyCompleted, "objective already completed by team",
		map[string]any{"objectiveId": objectiveID, "teamId": teamID})
}

// completionInput carries the optional completion columns.
type completionInput struct {
	by       string
	lat, lon *float64
}

// complete writes the completion row. The unique (objective, team) constraint
// turns a concurrent duplicate into AlreadyCompleted.
func (e Engine) complete(ctx context.Context, tx *sql.Tx, p *play, in completionInput) (domain.Completion, error) {
	by := in.by
	if by == "" {
		by = p.teamID
	}
	c := domain.Completion{
		ID:          newID(),
		ObjectiveID: p.obj.ID,
		TeamID:      p.teamID,
		Points:      p.obj.Points,
		CompletedAt: e.now(),
		CompletedBy: by,
		Lat:         in.lat,
		Lon:         in.lon,
		DeviceInfo:  deviceInfo(ctx),
	}
	if err := e.Repo.InsertCompletion(ctx, tx, c); err != nil {
		if repo.IsUniqueViolation(err) {
			return c, alreadyCompleted(p.obj.ID, p.teamID)
		}
		return c, fmt.Errorf("insert completion: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.ObjectiveCompleted, p.obj.OperationID, "objective", p.obj.ID, by, events.EventPayload{
		"team_id": p.teamID,
		"type":    p.obj.Type,
		"points":  c.Points,
	}); err != nil {
		return c, err
	}
	return c, nil
}

// finish commits a successful completion and logs it.
func (e Engine) finish(tx *sql.Tx, p *play, c domain.Completion) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	e.log().Info("objective completed",
		"objective_id", p.obj.ID, "team_id", p.teamID, "type", p.obj.Type, "points", c.Points)
	return nil
}

// attempt appends to the attempt ledger.
func (e Engine) attempt(ctx context.Context, tx *sql.Tx, p *play, value string, success bool) (domain.Attempt, error) {
	a := domain.Attempt{
		ID:          newID(),
		ObjectiveID: p.obj.ID,
		TeamID:      p.teamID,
		Value:       value,
		Success:     success,
		CreatedAt:   e.now(),
	}
	seq, err := e.Repo.InsertAttempt(ctx, tx, a)
	if err != nil {
		return a, fmt.Errorf("insert attempt: %w", err)
	}
	a.Seq = seq
	if !success {
		if err := e.events().Append(ctx, tx, events.AttemptFailed, p.obj.OperationID, "objective", p.obj.ID, p.teamID, events.EventPayload{
			"type": p.obj.Type,
		}); err != nil {
			return a, err
		}
	}
	return a, nil
}

// successes folds the attempt history into the ordered successful values.
func successes(history []domain.Attempt, since *time.Time) []string {
	var out []string
	for _, a := range history {
		if !a.Success {
			continue
		}
		if since != nil && a.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, a.Value)
	}
	return out
}

// CompletionResult is returned by every call that can complete an objective.
type CompletionResult struct {
	Completed  bool               `json:"completed"`
	Points     int                `json:"points"`
	Completion *domain.Completion `json:"completion,omitempty"`
}

func completed(c domain.Completion) CompletionResult {
	return CompletionResult{Completed: true, Points: c.Points, Completion: &c}
}

// remainingMinutes rounds the time left up to whole minutes.
func remainingMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds() / 60))
}
