package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldops/internal/auth"
	"fieldops/internal/domain"
	"fieldops/internal/engine"
)

// bodyOutput wraps a response payload.
type bodyOutput[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *bodyOutput[T] {
	return &bodyOutput[T]{Body: v}
}

func registerOperations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-operation",
		Method:        http.MethodPost,
		Path:          "/operations",
		Summary:       "Create operation",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateOperationRequest
	}) (*bodyOutput[domain.Operation], error) {
		actorID, serr := requireRole(ctx, auth.RoleDesigner)
		if serr != nil {
			return nil, serr
		}
		op, err := e.CreateOperation(ctx, input.Body.ID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(op), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-operations",
		Method:      http.MethodGet,
		Path:        "/operations",
		Summary:     "List operations",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[[]domain.Operation], error) {
		ops, err := e.ListOperations(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if ops == nil {
			ops = []domain.Operation{}
		}
		return reply(ops), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-operation",
		Method:      http.MethodGet,
		Path:        "/operations/{operation_id}",
		Summary:     "Get operation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OperationID string `path:"operation_id"`
	}) (*bodyOutput[domain.Operation], error) {
		op, err := e.GetOperation(ctx, input.OperationID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(op), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-operation-status",
		Method:      http.MethodPost,
		Path:        "/operations/{operation_id}/status",
		Summary:     "Move an operation through its lifecycle",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OperationID string `path:"operation_id"`
		Body        OperationStatusRequest
	}) (*bodyOutput[domain.Operation], error) {
		actorID, serr := requireRole(ctx, auth.RoleDesigner)
		if serr != nil {
			return nil, serr
		}
		op, err := e.SetOperationStatus(ctx, input.OperationID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(op), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-operation-team",
		Method:      http.MethodPost,
		Path:        "/operations/{operation_id}/teams",
		Summary:     "Invite a team or change its invitation",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OperationID string `path:"operation_id"`
		Body        OperationTeamRequest
	}) (*bodyOutput[domain.OperationTeam], error) {
		actorID, serr := requireRole(ctx, auth.RoleDesigner)
		if serr != nil {
			return nil, serr
		}
		t, err := e.AddOperationTeam(ctx, domain.OperationTeam{
			OperationID: input.OperationID,
			TeamID:      input.Body.TeamID,
			Name:        input.Body.Name,
			Invitation:  input.Body.Invitation,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-operation-teams",
		Method:      http.MethodGet,
		Path:        "/operations/{operation_id}/teams",
		Summary:     "List invited teams",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OperationID string `path:"operation_id"`
	}) (*bodyOutput[[]domain.OperationTeam], error) {
		if _, err := e.GetOperation(ctx, input.OperationID); err != nil {
			return nil, handleError(err)
		}
		teams, err := e.ListOperationTeams(ctx, input.OperationID)
		if err != nil {
			return nil, handleError(err)
		}
		if teams == nil {
			teams = []domain.OperationTeam{}
		}
		return reply(teams), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "team-progress",
		Method:      http.MethodGet,
		Path:        "/operations/{operation_id}/progress",
		Summary:     "Objectives of the operation with the team's state",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OperationID string `path:"operation_id"`
		TeamID      string `query:"teamId"`
	}) (*bodyOutput[engine.TeamProgress], error) {
		teamID, serr := teamFromContext(ctx, input.TeamID)
		if serr != nil {
			return nil, serr
		}
		res, err := e.TeamProgress(ctx, input.OperationID, teamID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scoreboard",
		Method:      http.MethodGet,
		Path:        "/operations/{operation_id}/scoreboard",
		Summary:     "Rank the accepted teams by points",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OperationID string `path:"operation_id"`
	}) (*bodyOutput[[]engine.ScoreboardEntry], error) {
		board, err := e.Scoreboard(ctx, input.OperationID)
		if err != nil {
			return nil, handleError(err)
		}
		if board == nil {
			board = []engine.ScoreboardEntry{}
		}
		return reply(board), nil
	})
}

func registerObjectives(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-objective",
		Method:        http.MethodPost,
		Path:          "/operations/{operation_id}/objectives",
		Summary:       "Create objective",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OperationID string `path:"operation_id"`
		Body        CreateObjectiveRequest
	}) (*bodyOutput[domain.Objective], error) {
		actorID, serr := requireRole(ctx, auth.RoleDesigner)
		if serr != nil {
			return nil, serr
		}
		cfg, err := configJSON(input.Body.Config)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid config", nil)
		}
		o, err := e.CreateObjective(ctx, engine.ObjectiveCreateOptions{
			ID:                input.Body.ID,
			OperationID:       input.OperationID,
			Type:              input.Body.Type,
			Name:              input.Body.Name,
			Description:       input.Body.Description,
			Points:            input.Body.Points,
			Config:            cfg,
			ParentObjectiveID: input.Body.ParentObjectiveID,
			Order:             input.Body.Order,
			ActorID:           actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-objectives",
		Method:      http.MethodGet,
		Path:        "/operations/{operation_id}/objectives",
		Summary:     "List objectives with their configuration",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OperationID string `path:"operation_id"`
	}) (*bodyOutput[[]domain.Objective], error) {
		if _, serr := requireRole(ctx, auth.RoleDesigner); serr != nil {
			return nil, serr
		}
		if _, err := e.GetOperation(ctx, input.OperationID); err != nil {
			return nil, handleError(err)
		}
		list, err := e.ListObjectives(ctx, input.OperationID)
		if err != nil {
			return nil, handleError(err)
		}
		if list == nil {
			list = []domain.Objective{}
		}
		return reply(list), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-objective",
		Method:      http.MethodGet,
		Path:        "/objectives/{objective_id}",
		Summary:     "Get objective",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectiveID string `path:"objective_id"`
	}) (*bodyOutput[domain.Objective], error) {
		if _, serr := requireRole(ctx, auth.RoleDesigner); serr != nil {
			return nil, serr
		}
		o, err := e.GetObjective(ctx, input.ObjectiveID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(o), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-objective",
		Method:      http.MethodPatch,
		Path:        "/objectives/{objective_id}",
		Summary:     "Update objective",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ObjectiveID string `path:"objective_id"`
		Body        UpdateObjectiveRequest
	}) (*bodyOutput[domain.Objective], error) {
		actorID, serr := requireRole(ctx, auth.RoleDesigner)
		if serr != nil {
			return nil, serr
		}
		cfg, err := configJSON(input.Body.Config)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid config", nil)
		}
		o, err := e.UpdateObjective(ctx, engine.ObjectiveUpdateOptions{
			ID:          input.ObjectiveID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Points:      input.Body.Points,
			Config:      cfg,
			SetParent:   input.Body.ParentObjectiveID,
			Order:       input.Body.Order,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(o), nil
	})
}
