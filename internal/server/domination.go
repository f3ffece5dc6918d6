package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldops/internal/auth"
	"fieldops/internal/domain"
	"fieldops/internal/engine"
)

type sessionInput struct {
	SessionID string `path:"session_id"`
}

func registerDomination(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-domination-session",
		Method:        http.MethodPost,
		Path:          "/domination/sessions",
		Summary:       "Create domination session",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateSessionRequest
	}) (*bodyOutput[domain.DominationSession], error) {
		actorID, serr := requireRole(ctx, auth.RoleDesigner)
		if serr != nil {
			return nil, serr
		}
		s, err := e.CreateDominationSession(ctx, engine.SessionCreateOptions{
			ID:              input.Body.ID,
			Name:            input.Body.Name,
			OperationID:     input.Body.OperationID,
			PointsPerTick:   input.Body.PointsPerTick,
			TickIntervalSec: input.Body.TickIntervalSec,
			DurationMinutes: input.Body.DurationMinutes,
			ActorID:         actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-domination-sessions",
		Method:      http.MethodGet,
		Path:        "/domination/sessions",
		Summary:     "List domination sessions",
	}, func(ctx context.Context, _ *struct{}) (*bodyOutput[[]domain.DominationSession], error) {
		list, err := e.ListDominationSessions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if list == nil {
			list = []domain.DominationSession{}
		}
		return reply(list), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-domination-session",
		Method:      http.MethodGet,
		Path:        "/domination/sessions/{session_id}",
		Summary:     "Get domination session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sessionInput) (*bodyOutput[domain.DominationSession], error) {
		s, err := e.GetDominationSession(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-domination-team",
		Method:        http.MethodPost,
		Path:          "/domination/sessions/{session_id}/teams",
		Summary:       "Add a team to a session",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
		Body      DominationTeamRequest
	}) (*bodyOutput[domain.DominationTeam], error) {
		actorID, serr := requireRole(ctx, auth.RoleDesigner)
		if serr != nil {
			return nil, serr
		}
		t, err := e.AddDominationTeam(ctx, domain.DominationTeam{
			ID:        input.Body.ID,
			SessionID: input.SessionID,
			Name:      input.Body.Name,
			Color:     input.Body.Color,
			Order:     input.Body.Order,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-domination-point",
		Method:        http.MethodPost,
		Path:          "/domination/sessions/{session_id}/points",
		Summary:       "Add a capture point to a session",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
		Body      DominationPointRequest
	}) (*bodyOutput[domain.DominationPoint], error) {
		actorID, serr := requireRole(ctx, auth.RoleDesigner)
		if serr != nil {
			return nil, serr
		}
		p, err := e.AddDominationPoint(ctx, domain.DominationPoint{
			ID:        input.Body.ID,
			SessionID: input.SessionID,
			Name:      input.Body.Name,
			QRToken:   input.Body.QRToken,
			Order:     input.Body.Order,
			Lat:       input.Body.Lat,
			Lon:       input.Body.Lon,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	transitions := []struct {
		id      string
		verb    string
		summary string
		run     func(ctx context.Context, id, actorID string) (domain.DominationSession, error)
	}{
		{"start-domination-session", "start", "Start the session clock", e.StartDominationSession},
		{"pause-domination-session", "pause", "Pause a running session", e.PauseDominationSession},
		{"resume-domination-session", "resume", "Resume a paused session", e.ResumeDominationSession},
		{"end-domination-session", "end", "End a session and freeze its scores", e.EndDominationSession},
	}
	for _, tr := range transitions {
		run := tr.run
		huma.Register(api, huma.Operation{
			OperationID: tr.id,
			Method:      http.MethodPost,
			Path:        "/domination/sessions/{session_id}/" + tr.verb,
			Summary:     tr.summary,
			Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *sessionInput) (*bodyOutput[domain.DominationSession], error) {
			actorID, serr := requireRole(ctx, auth.RoleArbitrator)
			if serr != nil {
				return nil, serr
			}
			s, err := run(ctx, input.SessionID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return reply(s), nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "capture-domination-point",
		Method:      http.MethodPost,
		Path:        "/domination/capture",
		Summary:     "Capture a point by its QR token",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CaptureRequest
	}) (*bodyOutput[domain.DominationCapture], error) {
		actorID, serr := actorIDFromContext(ctx)
		if serr != nil {
			return nil, serr
		}
		c, err := e.CaptureDominationPoint(ctx, input.Body.QRToken, input.Body.TeamID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "domination-state",
		Method:      http.MethodGet,
		Path:        "/domination/sessions/{session_id}/state",
		Summary:     "Holders and scores of a session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sessionInput) (*bodyOutput[engine.DominationState], error) {
		st, err := e.DominationState(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(st), nil
	})
}
