package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"fieldops/internal/domain"
	"fieldops/internal/events"
	"fieldops/internal/fault"
	"fieldops/internal/objective"
)

func (e Engine) CreateOperation(ctx context.Context, id, name, actorID string) (domain.Operation, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Operation{}, fault.New(fault.CodeInvalidArgument, "operation name is required")
	}
	if id == "" {
		id = newID()
	}
	op := domain.Operation{ID: id, Name: name, Status: domain.OperationDraft, CreatedAt: e.now()}
	tx, err := e.begin(ctx)
	if err != nil {
		return op, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOperation(ctx, tx, op); err != nil {
		return op, fmt.Errorf("insert operation: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.OperationCreated, op.ID, "operation", op.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return op, err
	}
	if err := tx.Commit(); err != nil {
		return op, err
	}
	return op, nil
}

func (e Engine) GetOperation(ctx context.Context, id string) (domain.Operation, error) {
	op, err := e.Repo.GetOperation(ctx, nil, id)
	if err != nil {
		return op, lookup(err, "operation", id)
	}
	return op, nil
}

func (e Engine) ListOperations(ctx context.Context) ([]domain.Operation, error) {
	return e.Repo.ListOperations(ctx)
}

func ensureOperationTransition(from, to domain.OperationStatus) error {
	switch from {
	case domain.OperationDraft:
		if to == domain.OperationPublished || to == domain.OperationActive {
			return nil
		}
	case domain.OperationPublished:
		if to == domain.OperationActive || to == domain.OperationDraft {
			return nil
		}
	case domain.OperationActive:
		if to == domain.OperationCompleted {
			return nil
		}
	}
	return fault.WithMetadata(fault.CodeInvalidTransition, fmt.Sprintf("invalid operation transition %s -> %s", from, to),
		map[string]any{"from": from, "to": to})
}

func (e Engine) SetOperationStatus(ctx context.Context, id string, status domain.OperationStatus, actorID string) (domain.Operation, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Operation{}, err
	}
	defer tx.Rollback()
	op, err := e.Repo.GetOperation(ctx, tx, id)
	if err != nil {
		return op, lookup(err, "operation", id)
	}
	if err := ensureOperationTransition(op.Status, status); err != nil {
		return op, err
	}
	if err := e.Repo.UpdateOperationStatus(ctx, tx, id, status); err != nil {
		return op, fmt.Errorf("update operation: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.OperationStatusChanged, id, "operation", id, actorID, events.EventPayload{"from": op.Status, "to": status}); err != nil {
		return op, err
	}
	if err := tx.Commit(); err != nil {
		return op, err
	}
	op.Status = status
	return op, nil
}

// AddOperationTeam registers or updates a team's invitation to an operation.
func (e Engine) AddOperationTeam(ctx context.Context, t domain.OperationTeam, actorID string) (domain.OperationTeam, error) {
	if t.TeamID == "" {
		return t, fault.New(fault.CodeInvalidArgument, "team id is required")
	}
	if t.Name == "" {
		t.Name = t.TeamID
	}
	switch t.Invitation {
	case "":
		t.Invitation = domain.InvitationAccepted
	case domain.InvitationPending, domain.InvitationAccepted, domain.InvitationDeclined:
	default:
		return t, fault.WithMetadata(fault.CodeInvalidArgument, "unknown invitation status", map[string]any{"invitation": t.Invitation})
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetOperation(ctx, tx, t.OperationID); err != nil {
		return t, lookup(err, "operation", t.OperationID)
	}
	if err := e.Repo.UpsertOperationTeam(ctx, tx, t); err != nil {
		return t, fmt.Errorf("upsert operation team: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.OperationTeamAdded, t.OperationID, "team", t.TeamID, actorID, events.EventPayload{"invitation": t.Invitation}); err != nil {
		return t, err
	}
	return t, tx.Commit()
}

func (e Engine) ListOperationTeams(ctx context.Context, operationID string) ([]domain.OperationTeam, error) {
	return e.Repo.ListOperationTeams(ctx, nil, operationID)
}

// ObjectiveCreateOptions are parameters for creating an objective.
type ObjectiveCreateOptions struct {
	ID                string
	OperationID       string
	Type              domain.ObjectiveType
	Name              string
	Description       string
	Points            *int
	Config            json.RawMessage
	ParentObjectiveID string
	Order             int
	ActorID           string
}

func (e Engine) CreateObjective(ctx context.Context, opts ObjectiveCreateOptions) (domain.Objective, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Objective{}, fault.New(fault.CodeInvalidArgument, "objective name is required")
	}
	if _, err := objective.Parse(opts.Type, opts.Config); err != nil {
		return domain.Objective{}, err
	}
	points := e.Config.Objectives.DefaultPoints
	if opts.Points != nil {
		points = *opts.Points
	}
	if points < 0 {
		return domain.Objective{}, fault.New(fault.CodeInvalidArgument, "points must be >= 0")
	}
	id := opts.ID
	if id == "" {
		id = newID()
	}
	o := domain.Objective{
		ID:          id,
		OperationID: opts.OperationID,
		Type:        opts.Type,
		Name:        opts.Name,
		Description: opts.Description,
		Points:      points,
		Config:      normalizeConfig(opts.Config),
		QRToken:     newID(),
		Order:       opts.Order,
		CreatedAt:   e.now(),
	}
	if opts.ParentObjectiveID != "" {
		parent := opts.ParentObjectiveID
		o.ParentObjectiveID = &parent
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetOperation(ctx, tx, o.OperationID); err != nil {
		return o, lookup(err, "operation", o.OperationID)
	}
	if err := e.checkObjectiveLinks(ctx, tx, o); err != nil {
		return o, err
	}
	if err := e.Repo.InsertObjective(ctx, tx, o); err != nil {
		return o, fmt.Errorf("insert objective: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.ObjectiveCreated, o.OperationID, "objective", o.ID, opts.ActorID, events.EventPayload{
		"type":   o.Type,
		"points": o.Points,
	}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

// ObjectiveUpdateOptions encapsulates allowed updates. Nil fields are left as is.
type ObjectiveUpdateOptions struct {
	ID          string
	Name        *string
	Description *string
	Points      *int
	Config      json.RawMessage
	SetParent   *string
	Order       *int
	ActorID     string
}

func (e Engine) UpdateObjective(ctx context.Context, opts ObjectiveUpdateOptions) (domain.Objective, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Objective{}, err
	}
	defer tx.Rollback()
	o, err := e.Repo.GetObjective(ctx, tx, opts.ID)
	if err != nil {
		return o, lookup(err, "objective", opts.ID)
	}
	changed := []string{}
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return o, fault.New(fault.CodeInvalidArgument, "objective name is required")
		}
		o.Name = *opts.Name
		changed = append(changed, "name")
	}
	if opts.Description != nil {
		o.Description = *opts.Description
		changed = append(changed, "description")
	}
	if opts.Points != nil {
		if *opts.Points < 0 {
			return o, fault.New(fault.CodeInvalidArgument, "points must be >= 0")
		}
		o.Points = *opts.Points
		changed = append(changed, "points")
	}
	if opts.Config != nil {
		if _, err := objective.Parse(o.Type, opts.Config); err != nil {
			return o, err
		}
		o.Config = normalizeConfig(opts.Config)
		changed = append(changed, "config")
	}
	if opts.SetParent != nil {
		if *opts.SetParent == "" {
			o.ParentObjectiveID = nil
		} else {
			parent := *opts.SetParent
			o.ParentObjectiveID = &parent
		}
		changed = append(changed, "parent")
	}
	if opts.Order != nil {
		o.Order = *opts.Order
		changed = append(changed, "order")
	}
	if err := e.checkObjectiveLinks(ctx, tx, o); err != nil {
		return o, err
	}
	if err := e.Repo.UpdateObjective(ctx, tx, o); err != nil {
		return o, lookup(err, "objective", o.ID)
	}
	if err := e.events().Append(ctx, tx, events.ObjectiveUpdated, o.OperationID, "objective", o.ID, opts.ActorID, events.EventPayload{"fields": changed}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}

func (e Engine) GetObjective(ctx context.Context, id string) (domain.Objective, error) {
	o, err := e.Repo.GetObjective(ctx, nil, id)
	if err != nil {
		return o, lookup(err, "objective", id)
	}
	return o, nil
}

func (e Engine) ListObjectives(ctx context.Context, operationID string) ([]domain.Objective, error) {
	return e.Repo.ListObjectives(ctx, nil, operationID)
}

// checkObjectiveLinks validates the parent and the objectives referenced by
// the config: they exist, belong to the same operation and form no cycle.
func (e Engine) checkObjectiveLinks(ctx context.Context, tx *sql.Tx, o domain.Objective) error {
	if o.ParentObjectiveID != nil {
		parentID := *o.ParentObjectiveID
		if parentID == o.ID {
			return fault.New(fault.CodeInvalidArgument, "objective cannot be its own parent")
		}
		parent, err := e.Repo.GetObjective(ctx, tx, parentID)
		if err != nil {
			return lookup(err, "objective", parentID)
		}
		if parent.OperationID != o.OperationID {
			return fault.New(fault.CodeInvalidArgument, "parent objective belongs to another operation")
		}
		if err := e.ensureNoCycle(ctx, tx, parentID, o.ID); err != nil {
			return err
		}
	}
	cfg, err := objective.Parse(o.Type, o.Config)
	if err != nil {
		return err
	}
	for _, ref := range objective.References(cfg) {
		if ref == o.ID {
			return fault.WithMetadata(fault.CodeInvalidConfig, "objective cannot reference itself", map[string]any{"field": "objectiveIds"})
		}
		other, err := e.Repo.GetObjective(ctx, tx, ref)
		if err != nil {
			return lookup(err, "objective", ref)
		}
		if other.OperationID != o.OperationID {
			return fault.WithMetadata(fault.CodeInvalidConfig, "referenced objective belongs to another operation",
				map[string]any{"field": "objectiveIds", "id": ref})
		}
	}
	return nil
}

func (e Engine) ensureNoCycle(ctx context.Context, tx *sql.Tx, parentID, childID string) error {
	// climb up the parent chain looking for the child
	seen := map[string]bool{}
	cur := parentID
	for cur != "" {
		if cur == childID || seen[cur] {
			return fault.New(fault.CodeInvalidArgument, "objective hierarchy cycle detected")
		}
		seen[cur] = true
		next, err := e.Repo.ParentOf(ctx, tx, cur)
		if err != nil {
			return lookup(err, "objective", cur)
		}
		cur = next
	}
	return nil
}

func normalizeConfig(raw json.RawMessage) json.RawMessage {
	if len(strings.TrimSpace(string(raw))) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return json.RawMessage("{}")
	}
	return raw
}
