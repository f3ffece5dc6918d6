package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fieldops/internal/domain"
	"fieldops/internal/engine"
	"fieldops/internal/objective"
)

// Scenario is the YAML description of an operation: its teams, objectives
// and domination sessions.
type Scenario struct {
	Operation  ScenarioOperation   `yaml:"operation"`
	Teams      []ScenarioTeam      `yaml:"teams"`
	Objectives []ScenarioObjective `yaml:"objectives"`
	Domination []ScenarioSession   `yaml:"domination"`
}

type ScenarioOperation struct {
	ID     string                 `yaml:"id"`
	Name   string                 `yaml:"name"`
	Status domain.OperationStatus `yaml:"status"`
}

type ScenarioTeam struct {
	ID         string                  `yaml:"id"`
	Name       string                  `yaml:"name"`
	Invitation domain.InvitationStatus `yaml:"invitation"`
}

type ScenarioObjective struct {
	ID          string               `yaml:"id"`
	Type        domain.ObjectiveType `yaml:"type"`
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Points      *int                 `yaml:"points"`
	Parent      string               `yaml:"parent"`
	Order       int                  `yaml:"order"`
	Config      map[string]any       `yaml:"config"`
}

type ScenarioSession struct {
	ID              string                   `yaml:"id"`
	Name            string                   `yaml:"name"`
	PointsPerTick   *int                     `yaml:"points_per_tick"`
	TickIntervalSec *int                     `yaml:"tick_interval_sec"`
	DurationMinutes *int                     `yaml:"duration_minutes"`
	Start           bool                     `yaml:"start"`
	Teams           []ScenarioDominationTeam `yaml:"teams"`
	Points          []ScenarioPoint          `yaml:"points"`
}

type ScenarioDominationTeam struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

type ScenarioPoint struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	QRToken string   `yaml:"qr_token"`
	Lat     *float64 `yaml:"lat"`
	Lon     *float64 `yaml:"lon"`
}

// ImportResult lists what an import created.
type ImportResult struct {
	Operation  domain.Operation           `json:"operation"`
	Teams      []domain.OperationTeam     `json:"teams"`
	Objectives []domain.Objective         `json:"objectives"`
	Sessions   []domain.DominationSession `json:"sessions"`
	Points     []domain.DominationPoint   `json:"points"`
}

func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse scenario: %w", err)
	}
	return s, s.Validate()
}

// Validate checks the scenario without touching storage: ids, objective
// configs and the dependency graph between objectives.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.Operation.ID) == "" {
		return fmt.Errorf("scenario.operation.id is required")
	}
	switch s.Operation.Status {
	case "", domain.OperationDraft, domain.OperationPublished, domain.OperationActive, domain.OperationCompleted:
	default:
		return fmt.Errorf("scenario.operation.status %q is invalid", s.Operation.Status)
	}
	teams := map[string]bool{}
	for i, t := range s.Teams {
		if t.ID == "" {
			return fmt.Errorf("scenario.teams[%d].id is required", i)
		}
		if teams[t.ID] {
			return fmt.Errorf("scenario.teams[%d]: duplicate team %s", i, t.ID)
		}
		teams[t.ID] = true
	}
	_, err := s.objectiveOrder()
	return err
}

func (o ScenarioObjective) rawConfig() (json.RawMessage, error) {
	if o.Config == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(o.Config)
}

// objectiveOrder returns the objectives sorted so that parents and
// referenced objectives come before the objectives that need them.
func (s Scenario) objectiveOrder() ([]ScenarioObjective, error) {
	byID := map[string]int{}
	for i, o := range s.Objectives {
		if o.ID == "" {
			return nil, fmt.Errorf("scenario.objectives[%d].id is required", i)
		}
		if _, dup := byID[o.ID]; dup {
			return nil, fmt.Errorf("scenario.objectives[%d]: duplicate objective %s", i, o.ID)
		}
		if !objective.KnownType(o.Type) {
			return nil, fmt.Errorf("scenario.objectives[%d] (%s): unknown type %q", i, o.ID, o.Type)
		}
		byID[o.ID] = i
	}
	deps := make(map[string][]string, len(s.Objectives))
	for i, o := range s.Objectives {
		raw, err := o.rawConfig()
		if err != nil {
			return nil, fmt.Errorf("scenario.objectives[%d].config: %w", i, err)
		}
		cfg, err := objective.Parse(o.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("scenario.objectives[%d] (%s): %w", i, o.ID, err)
		}
		var need []string
		if o.Parent != "" {
			need = append(need, o.Parent)
		}
		need = append(need, objective.References(cfg)...)
		for _, id := range need {
			if _, ok := byID[id]; ok {
				deps[o.ID] = append(deps[o.ID], id)
			}
		}
	}

	const (
		visiting = 1
		done     = 2
	)
	state := map[string]int{}
	out := make([]ScenarioObjective, 0, len(s.Objectives))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("objective %s depends on itself", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		out = append(out, s.Objectives[byID[id]])
		return nil
	}
	for _, o := range s.Objectives {
		if err := visit(o.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Import creates the scenario through the engine so every rule and audit
// event applies as for hand-made objects.
func Import(ctx context.Context, e engine.Engine, s Scenario, actorID string) (ImportResult, error) {
	var res ImportResult
	if err := s.Validate(); err != nil {
		return res, err
	}
	ordered, err := s.objectiveOrder()
	if err != nil {
		return res, err
	}
	name := s.Operation.Name
	if name == "" {
		name = s.Operation.ID
	}
	op, err := e.CreateOperation(ctx, s.Operation.ID, name, actorID)
	if err != nil {
		return res, fmt.Errorf("create operation: %w", err)
	}
	for _, t := range s.Teams {
		team := domain.OperationTeam{OperationID: op.ID, TeamID: t.ID, Name: t.Name, Invitation: t.Invitation}
		added, err := e.AddOperationTeam(ctx, team, actorID)
		if err != nil {
			return res, fmt.Errorf("add team %s: %w", t.ID, err)
		}
		res.Teams = append(res.Teams, added)
	}
	for _, o := range ordered {
		raw, err := o.rawConfig()
		if err != nil {
			return res, err
		}
		created, err := e.CreateObjective(ctx, engine.ObjectiveCreateOptions{
			ID:                o.ID,
			OperationID:       op.ID,
			Type:              o.Type,
			Name:              o.Name,
			Description:       o.Description,
			Points:            o.Points,
			Config:            raw,
			ParentObjectiveID: o.Parent,
			Order:             o.Order,
			ActorID:           actorID,
		})
		if err != nil {
			return res, fmt.Errorf("create objective %s: %w", o.ID, err)
		}
		res.Objectives = append(res.Objectives, created)
	}
	for _, ss := range s.Domination {
		session, points, err := importSession(ctx, e, op.ID, ss, actorID)
		if err != nil {
			return res, fmt.Errorf("create domination session %s: %w", ss.Name, err)
		}
		res.Sessions = append(res.Sessions, session)
		res.Points = append(res.Points, points...)
	}
	if op, err = applyStatus(ctx, e, op, s.Operation.Status, actorID); err != nil {
		return res, err
	}
	res.Operation = op
	return res, nil
}

func importSession(ctx context.Context, e engine.Engine, operationID string, ss ScenarioSession, actorID string) (domain.DominationSession, []domain.DominationPoint, error) {
	session, err := e.CreateDominationSession(ctx, engine.SessionCreateOptions{
		ID:              ss.ID,
		Name:            ss.Name,
		OperationID:     operationID,
		PointsPerTick:   ss.PointsPerTick,
		TickIntervalSec: ss.TickIntervalSec,
		DurationMinutes: ss.DurationMinutes,
		ActorID:         actorID,
	})
	if err != nil {
		return session, nil, err
	}
	for i, t := range ss.Teams {
		team := domain.DominationTeam{ID: t.ID, SessionID: session.ID, Name: t.Name, Color: t.Color, Order: i}
		if _, err := e.AddDominationTeam(ctx, team, actorID); err != nil {
			return session, nil, err
		}
	}
	var points []domain.DominationPoint
	for i, p := range ss.Points {
		added, err := e.AddDominationPoint(ctx, domain.DominationPoint{
			ID:        p.ID,
			SessionID: session.ID,
			Name:      p.Name,
			QRToken:   p.QRToken,
			Order:     i,
			Lat:       p.Lat,
			Lon:       p.Lon,
		}, actorID)
		if err != nil {
			return session, nil, err
		}
		points = append(points, added)
	}
	if ss.Start {
		if session, err = e.StartDominationSession(ctx, session.ID, actorID); err != nil {
			return session, nil, err
		}
	}
	return session, points, nil
}

// applyStatus walks the operation from DRAFT to the requested status.
func applyStatus(ctx context.Context, e engine.Engine, op domain.Operation, want domain.OperationStatus, actorID string) (domain.Operation, error) {
	var path []domain.OperationStatus
	switch want {
	case "", domain.OperationDraft:
		return op, nil
	case domain.OperationCompleted:
		path = []domain.OperationStatus{domain.OperationActive, domain.OperationCompleted}
	default:
		path = []domain.OperationStatus{want}
	}
	for _, st := range path {
		var err error
		if op, err = e.SetOperationStatus(ctx, op.ID, st, actorID); err != nil {
			return op, fmt.Errorf("set operation status %s: %w", st, err)
		}
	}
	return op, nil
}
