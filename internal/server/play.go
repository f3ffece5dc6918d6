package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldops/internal/auth"
	"fieldops/internal/domain"
	"fieldops/internal/engine"
)

var playErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusTooManyRequests,
}

type objectiveInput[T any] struct {
	ObjectiveID string `path:"objective_id"`
	Body        T      `required:"false"`
}

// playRoute registers a POST on an objective performed by the calling team.
func playRoute[Req any, Res any](api huma.API, op huma.Operation, team func(Req) string, run func(ctx context.Context, objectiveID, teamID string, req Req) (Res, error)) {
	op.Method = http.MethodPost
	op.Errors = playErrors
	huma.Register(api, op, func(ctx context.Context, input *objectiveInput[Req]) (*bodyOutput[Res], error) {
		teamID, serr := teamFromContext(ctx, team(input.Body))
		if serr != nil {
			return nil, serr
		}
		res, err := run(ctx, input.ObjectiveID, teamID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})
}

func teamOf(r TeamRequest) string               { return r.TeamID }
func codeTeam(r CodeRequest) string             { return r.TeamID }
func answerTeam(r AnswerRequest) string         { return r.TeamID }
func morseTeam(r MorseRequest) string           { return r.TeamID }
func positionTeam(r PositionRequest) string     { return r.TeamID }
func itemTeam(r ItemRequest) string             { return r.TeamID }
func checkpointTeam(r CheckpointRequest) string { return r.TeamID }

func registerPlay(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "scan",
		Method:      http.MethodPost,
		Path:        "/scan",
		Summary:     "Resolve a scanned QR token",
		Errors:      playErrors,
	}, func(ctx context.Context, input *struct {
		Body ScanRequest
	}) (*bodyOutput[engine.ScanResult], error) {
		teamID, serr := teamFromContext(ctx, input.Body.TeamID)
		if serr != nil {
			return nil, serr
		}
		res, err := e.ScanToken(ctx, input.Body.Token, teamID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})

	playRoute(api, huma.Operation{
		OperationID: "submit-code",
		Path:        "/objectives/{objective_id}/code",
		Summary:     "Submit a physical code",
	}, codeTeam, func(ctx context.Context, objectiveID, teamID string, req CodeRequest) (engine.AttemptResult, error) {
		return e.SubmitCode(ctx, objectiveID, teamID, req.Code)
	})

	playRoute(api, huma.Operation{
		OperationID: "scan-qr",
		Path:        "/objectives/{objective_id}/qr",
		Summary:     "Complete a QR objective",
	}, teamOf, func(ctx context.Context, objectiveID, teamID string, _ TeamRequest) (engine.CompletionResult, error) {
		return e.ScanQRSimple(ctx, objectiveID, teamID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-riddle",
		Method:      http.MethodGet,
		Path:        "/objectives/{objective_id}/riddle",
		Summary:     "Read the riddle of a QR enigma",
		Errors:      playErrors,
	}, func(ctx context.Context, input *struct {
		ObjectiveID string `path:"objective_id"`
		TeamID      string `query:"teamId"`
	}) (*bodyOutput[engine.Riddle], error) {
		teamID, serr := teamFromContext(ctx, input.TeamID)
		if serr != nil {
			return nil, serr
		}
		r, err := e.GetRiddle(ctx, input.ObjectiveID, teamID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(r), nil
	})

	playRoute(api, huma.Operation{
		OperationID: "answer-riddle",
		Path:        "/objectives/{objective_id}/riddle",
		Summary:     "Answer a QR enigma",
	}, answerTeam, func(ctx context.Context, objectiveID, teamID string, req AnswerRequest) (engine.CompletionResult, error) {
		return e.SubmitRiddleAnswer(ctx, objectiveID, teamID, req.Answer)
	})

	playRoute(api, huma.Operation{
		OperationID: "eliminate-vip",
		Path:        "/objectives/{objective_id}/vip",
		Summary:     "Report a VIP elimination",
	}, teamOf, func(ctx context.Context, objectiveID, teamID string, _ TeamRequest) (engine.VIPResult, error) {
		return e.EliminateVIP(ctx, objectiveID, teamID)
	})

	playRoute(api, huma.Operation{
		OperationID: "submit-morse",
		Path:        "/objectives/{objective_id}/morse",
		Summary:     "Submit a decoded radio message",
	}, morseTeam, func(ctx context.Context, objectiveID, teamID string, req MorseRequest) (engine.CompletionResult, error) {
		return e.SubmitMorse(ctx, objectiveID, teamID, req.Message)
	})

	playRoute(api, huma.Operation{
		OperationID: "collect-item",
		Path:        "/objectives/{objective_id}/items",
		Summary:     "Declare a collected item",
	}, itemTeam, func(ctx context.Context, objectiveID, teamID string, req ItemRequest) (engine.CollectionResult, error) {
		return e.CollectItem(ctx, objectiveID, teamID, req.Item)
	})

	huma.Register(api, huma.Operation{
		OperationID: "current-step",
		Method:      http.MethodGet,
		Path:        "/objectives/{objective_id}/enigma",
		Summary:     "Current step of a multi-step enigma",
		Errors:      playErrors,
	}, func(ctx context.Context, input *struct {
		ObjectiveID string `path:"objective_id"`
		TeamID      string `query:"teamId"`
	}) (*bodyOutput[engine.StepResult], error) {
		teamID, serr := teamFromContext(ctx, input.TeamID)
		if serr != nil {
			return nil, serr
		}
		st, err := e.CurrentStep(ctx, input.ObjectiveID, teamID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(st), nil
	})

	playRoute(api, huma.Operation{
		OperationID: "answer-step",
		Path:        "/objectives/{objective_id}/enigma",
		Summary:     "Answer the current enigma step",
	}, answerTeam, func(ctx context.Context, objectiveID, teamID string, req AnswerRequest) (engine.StepResult, error) {
		return e.SubmitStepAnswer(ctx, objectiveID, teamID, req.Answer)
	})

	playRoute(api, huma.Operation{
		OperationID: "start-race",
		Path:        "/objectives/{objective_id}/race/start",
		Summary:     "Start a time race",
	}, teamOf, func(ctx context.Context, objectiveID, teamID string, _ TeamRequest) (engine.RaceStatus, error) {
		return e.StartTimeRace(ctx, objectiveID, teamID)
	})

	playRoute(api, huma.Operation{
		OperationID: "validate-checkpoint",
		Path:        "/objectives/{objective_id}/race/checkpoints",
		Summary:     "Validate the next race checkpoint",
	}, checkpointTeam, func(ctx context.Context, objectiveID, teamID string, req CheckpointRequest) (engine.RaceStatus, error) {
		n, err := engine.ParseCheckpoint(req.Checkpoint)
		if err != nil {
			return engine.RaceStatus{}, err
		}
		return e.ValidateCheckpoint(ctx, objectiveID, teamID, n)
	})

	playRoute(api, huma.Operation{
		OperationID: "evaluate-conditional",
		Path:        "/objectives/{objective_id}/conditional",
		Summary:     "Check the prerequisites of a conditional objective",
	}, teamOf, func(ctx context.Context, objectiveID, teamID string, _ TeamRequest) (engine.ConditionalResult, error) {
		return e.EvaluateConditional(ctx, objectiveID, teamID)
	})

	playRoute(api, huma.Operation{
		OperationID: "draw-pool",
		Path:        "/objectives/{objective_id}/pool",
		Summary:     "Draw the team's random objectives",
	}, teamOf, func(ctx context.Context, objectiveID, teamID string, _ TeamRequest) (engine.PoolResult, error) {
		return e.DrawRandomPool(ctx, objectiveID, teamID)
	})
}

func registerTimed(api huma.API, e engine.Engine) {
	playRoute(api, huma.Operation{
		OperationID: "start-sabotage",
		Path:        "/objectives/{objective_id}/sabotage/start",
		Summary:     "Plant a sabotage charge",
	}, teamOf, func(ctx context.Context, objectiveID, teamID string, _ TeamRequest) (engine.TimedStart, error) {
		return e.StartSabotage(ctx, objectiveID, teamID)
	})
	playRoute(api, huma.Operation{
		OperationID: "complete-sabotage",
		Path:        "/objectives/{objective_id}/sabotage/complete",
		Summary:     "Confirm a sabotage after its delay",
	}, teamOf, func(ctx context.Context, objectiveID, teamID string, _ TeamRequest) (engine.CompletionResult, error) {
		return e.CompleteSabotage(ctx, objectiveID, teamID)
	})

	playRoute(api, huma.Operation{
		OperationID: "start-antenna-hack",
		Path:        "/objectives/{objective_id}/antenna/start",
		Summary:     "Start hacking an antenna",
	}, teamOf, func(ctx context.Context, objectiveID, teamID string, _ TeamRequest) (engine.TimedStart, error) {
		return e.StartAntennaHack(ctx, objectiveID, teamID)
	})
	playRoute(api, huma.Operation{
		OperationID: "complete-antenna-hack",
		Path:        "/objectives/{objective_id}/antenna/complete",
		Summary:     "Finish an antenna hack",
	}, teamOf, func(ctx context.Context, objectiveID, teamID string, _ TeamRequest) (engine.CompletionResult, error) {
		return e.CompleteAntennaHack(ctx, objectiveID, teamID)
	})

	playRoute(api, huma.Operation{
		OperationID: "start-gps-capture",
		Path:        "/objectives/{objective_id}/gps/start",
		Summary:     "Enter a GPS capture zone",
	}, positionTeam, func(ctx context.Context, objectiveID, teamID string, req PositionRequest) (engine.GPSCaptureStart, error) {
		return e.StartGPSCapture(ctx, objectiveID, teamID, req.Lat, req.Lon)
	})
	playRoute(api, huma.Operation{
		OperationID: "complete-gps-capture",
		Path:        "/objectives/{objective_id}/gps/complete",
		Summary:     "Complete a GPS capture from inside the zone",
	}, positionTeam, func(ctx context.Context, objectiveID, teamID string, req PositionRequest) (engine.CompletionResult, error) {
		return e.CompleteGPSCapture(ctx, objectiveID, teamID, req.Lat, req.Lon)
	})

	playRoute(api, huma.Operation{
		OperationID: "start-point-defense",
		Path:        "/objectives/{objective_id}/defense/start",
		Summary:     "Start defending a point",
	}, positionTeam, func(ctx context.Context, objectiveID, teamID string, req PositionRequest) (engine.TimedStart, error) {
		return e.StartPointDefense(ctx, objectiveID, teamID, req.Lat, req.Lon)
	})
	playRoute(api, huma.Operation{
		OperationID: "complete-point-defense",
		Path:        "/objectives/{objective_id}/defense/complete",
		Summary:     "Complete a point defense",
	}, positionTeam, func(ctx context.Context, objectiveID, teamID string, req PositionRequest) (engine.CompletionResult, error) {
		return e.CompletePointDefense(ctx, objectiveID, teamID, req.Lat, req.Lon)
	})

	playRoute(api, huma.Operation{
		OperationID: "start-extraction",
		Path:        "/objectives/{objective_id}/extraction/start",
		Summary:     "Reach the extraction zone",
	}, positionTeam, func(ctx context.Context, objectiveID, teamID string, req PositionRequest) (engine.TimedStart, error) {
		return e.StartExtraction(ctx, objectiveID, teamID, req.Lat, req.Lon)
	})
	playRoute(api, huma.Operation{
		OperationID: "complete-extraction",
		Path:        "/objectives/{objective_id}/extraction/complete",
		Summary:     "Complete an extraction",
	}, positionTeam, func(ctx context.Context, objectiveID, teamID string, req PositionRequest) (engine.CompletionResult, error) {
		return e.CompleteExtraction(ctx, objectiveID, teamID, req.Lat, req.Lon)
	})
}

func registerArbitration(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "defuse-sabotage",
		Method:      http.MethodPost,
		Path:        "/objectives/{objective_id}/sabotage/defuse",
		Summary:     "Defuse a team's running sabotage",
		Errors:      playErrors,
	}, func(ctx context.Context, input *objectiveInput[ArbitrationRequest]) (*bodyOutput[domain.TimedAction], error) {
		arbitratorID, serr := requireRole(ctx, auth.RoleArbitrator)
		if serr != nil {
			return nil, serr
		}
		a, err := e.DefuseSabotage(ctx, input.ObjectiveID, input.Body.TeamID, arbitratorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "trigger-live-event",
		Method:      http.MethodPost,
		Path:        "/objectives/{objective_id}/live-event",
		Summary:     "Award a live event to a team",
		Errors:      playErrors,
	}, func(ctx context.Context, input *objectiveInput[ArbitrationRequest]) (*bodyOutput[engine.CompletionResult], error) {
		arbitratorID, serr := requireRole(ctx, auth.RoleArbitrator)
		if serr != nil {
			return nil, serr
		}
		res, err := e.TriggerLiveEvent(ctx, input.ObjectiveID, input.Body.TeamID, arbitratorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})
}
