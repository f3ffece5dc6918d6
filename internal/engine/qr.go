package engine

import (
	"context"
	"strings"

	"fieldops/internal/domain"
	"fieldops/internal/fault"
	"fieldops/internal/objective"
)

// ScanQRSimple completes a QR_SIMPLE objective on any scan.
func (e Engine) ScanQRSimple(ctx context.Context, objectiveID, teamID string) (CompletionResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveQRSimple)
	if err != nil {
		return CompletionResult{}, err
	}
	c, err := e.complete(ctx, tx, p, completionInput{})
	if err != nil {
		return CompletionResult{}, err
	}
	return completed(c), e.finish(tx, p, c)
}

type Riddle struct {
	ObjectiveID string `json:"objectiveId"`
	Riddle      string `json:"riddle"`
	Completed   bool   `json:"completed"`
}

// GetRiddle returns the QR_ENIGMA riddle. It writes nothing.
func (e Engine) GetRiddle(ctx context.Context, objectiveID, teamID string) (Riddle, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return Riddle{}, err
	}
	defer tx.Rollback()
	p, err := e.load(ctx, tx, objectiveID, teamID, domain.ObjectiveQREnigma)
	if err != nil {
		return Riddle{}, err
	}
	cfg := p.cfg.(*objective.QREnigma)
	return Riddle{ObjectiveID: p.obj.ID, Riddle: cfg.Riddle, Completed: p.completed}, nil
}

func (e Engine) SubmitRiddleAnswer(ctx context.Context, objectiveID, teamID, answer string) (CompletionResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveQREnigma)
	if err != nil {
		return CompletionResult{}, err
	}
	cfg := p.cfg.(*objective.QREnigma)
	ok := objective.MatchAnswer(cfg.Answer, answer, cfg.CaseSensitive)
	if _, err := e.attempt(ctx, tx, p, answer, ok); err != nil {
		return CompletionResult{}, err
	}
	if !ok {
		return CompletionResult{}, e.reject(tx, p, fault.New(fault.CodeWrongAnswer, "wrong answer"))
	}
	c, err := e.complete(ctx, tx, p, completionInput{})
	if err != nil {
		return CompletionResult{}, err
	}
	return completed(c), e.finish(tx, p, c)
}

type VIPResult struct {
	SecretInfo string `json:"secretInfo"`
	VIPName    string `json:"vipName,omitempty"`
	CompletionResult
}

// EliminateVIP completes a VIP_ELIMINATION objective and reveals its secret.
func (e Engine) EliminateVIP(ctx context.Context, objectiveID, teamID string) (VIPResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return VIPResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveVIPElimination)
	if err != nil {
		return VIPResult{}, err
	}
	cfg := p.cfg.(*objective.VIPElimination)
	c, err := e.complete(ctx, tx, p, completionInput{})
	if err != nil {
		return VIPResult{}, err
	}
	return VIPResult{SecretInfo: cfg.SecretInfo, VIPName: cfg.VIPName, CompletionResult: completed(c)}, e.finish(tx, p, c)
}

// TriggerLiveEvent completes a LIVE_EVENT objective on behalf of a team. Only
// an arbitrator can do this, so the arbitrator id is mandatory.
func (e Engine) TriggerLiveEvent(ctx context.Context, objectiveID, teamID, arbitratorID string) (CompletionResult, error) {
	if strings.TrimSpace(arbitratorID) == "" {
		return CompletionResult{}, fault.New(fault.CodeInvalidArgument, "arbitrator id is required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()
	p, err := e.open(ctx, tx, objectiveID, teamID, domain.ObjectiveLiveEvent)
	if err != nil {
		return CompletionResult{}, err
	}
	c, err := e.complete(ctx, tx, p, completionInput{by: arbitratorID})
	if err != nil {
		return CompletionResult{}, err
	}
	return completed(c), e.finish(tx, p, c)
}

// Scan actions.
const (
	ScanCompleted = "completed"
	ScanRiddle    = "riddle"
	ScanOpened    = "opened"
)

type ScanResult struct {
	Action     string            `json:"action" enum:"completed,riddle,opened"`
	Objective  ObjectiveView     `json:"objective"`
	Completion *CompletionResult `json:"completion,omitempty"`
	Riddle     *Riddle           `json:"riddle,omitempty"`
	VIP        *VIPResult        `json:"vip,omitempty"`
	Completed  bool              `json:"alreadyCompleted"`
}

// ObjectiveView is what a team may see of an objective: never its config.
type ObjectiveView struct {
	ID          string               `json:"id"`
	OperationID string               `json:"operationId"`
	Type        domain.ObjectiveType `json:"type"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Points      int                  `json:"points"`
}

func viewOf(o domain.Objective) ObjectiveView {
	return ObjectiveView{ID: o.ID, OperationID: o.OperationID, Type: o.Type, Name: o.Name, Description: o.Description, Points: o.Points}
}

// ScanToken resolves a scanned QR token and dispatches on the objective type.
// Scan-complete mechanics finish right away, QR_ENIGMA hands out its riddle
// and everything else returns the objective so the client can continue.
func (e Engine) ScanToken(ctx context.Context, token, teamID string) (ScanResult, error) {
	obj, err := e.Repo.GetObjectiveByToken(ctx, nil, token)
	if err != nil {
		return ScanResult{}, lookup(err, "objective", token)
	}
	res := ScanResult{Objective: viewOf(obj)}
	switch obj.Type {
	case domain.ObjectiveQRSimple:
		c, err := e.ScanQRSimple(ctx, obj.ID, teamID)
		if err != nil {
			return res, err
		}
		res.Action = ScanCompleted
		res.Completion = &c
	case domain.ObjectiveVIPElimination:
		v, err := e.EliminateVIP(ctx, obj.ID, teamID)
		if err != nil {
			return res, err
		}
		res.Action = ScanCompleted
		res.VIP = &v
		res.Completion = &v.CompletionResult
	case domain.ObjectiveQREnigma:
		r, err := e.GetRiddle(ctx, obj.ID, teamID)
		if err != nil {
			return res, err
		}
		res.Action = ScanRiddle
		res.Riddle = &r
		res.Completed = r.Completed
	default:
		tx, err := e.begin(ctx)
		if err != nil {
			return res, err
		}
		defer tx.Rollback()
		p, err := e.load(ctx, tx, obj.ID, teamID, "")
		if err != nil {
			return res, err
		}
		res.Action = ScanOpened
		res.Completed = p.completed
	}
	return res, nil
}
