package server

import (
	"encoding/json"

	"fieldops/internal/domain"
)

// Request payloads

type CreateOperationRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type OperationStatusRequest struct {
	Status domain.OperationStatus `json:"status" enum:"DRAFT,PUBLISHED,ACTIVE,COMPLETED"`
}

type OperationTeamRequest struct {
	TeamID     string                  `json:"teamId"`
	Name       string                  `json:"name,omitempty"`
	Invitation domain.InvitationStatus `json:"invitation,omitempty" enum:"PENDING,ACCEPTED,DECLINED"`
}

type CreateObjectiveRequest struct {
	ID                string               `json:"id,omitempty"`
	Type              domain.ObjectiveType `json:"type"`
	Name              string               `json:"name"`
	Description       string               `json:"description,omitempty"`
	Points            *int                 `json:"points,omitempty"`
	Config            map[string]any       `json:"config,omitempty"`
	ParentObjectiveID string               `json:"parentObjectiveId,omitempty"`
	Order             int                  `json:"order,omitempty"`
}

type UpdateObjectiveRequest struct {
	Name              *string        `json:"name,omitempty"`
	Description       *string        `json:"description,omitempty"`
	Points            *int           `json:"points,omitempty"`
	Config            map[string]any `json:"config,omitempty"`
	ParentObjectiveID *string        `json:"parentObjectiveId,omitempty" doc:"Empty string detaches the objective"`
	Order             *int           `json:"order,omitempty"`
}

// TeamRequest carries the acting team. Players leave it empty; arbitrators
// name the team they act for.
type TeamRequest struct {
	TeamID string `json:"teamId,omitempty"`
}

type ScanRequest struct {
	Token  string `json:"token"`
	TeamID string `json:"teamId,omitempty"`
}

type CodeRequest struct {
	Code   string `json:"code"`
	TeamID string `json:"teamId,omitempty"`
}

type AnswerRequest struct {
	Answer string `json:"answer"`
	TeamID string `json:"teamId,omitempty"`
}

type MorseRequest struct {
	Message string `json:"message"`
	TeamID  string `json:"teamId,omitempty"`
}

type PositionRequest struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	TeamID string  `json:"teamId,omitempty"`
}

type ItemRequest struct {
	Item   string `json:"item"`
	TeamID string `json:"teamId,omitempty"`
}

type CheckpointRequest struct {
	Checkpoint string `json:"checkpoint" doc:"Checkpoint number as entered by the team"`
	TeamID     string `json:"teamId,omitempty"`
}

// ArbitrationRequest names the team an arbitrator rules on.
type ArbitrationRequest struct {
	TeamID string `json:"teamId"`
}

type CreateSessionRequest struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	OperationID     string `json:"operationId,omitempty"`
	PointsPerTick   *int   `json:"pointsPerTick,omitempty"`
	TickIntervalSec *int   `json:"tickIntervalSec,omitempty"`
	DurationMinutes *int   `json:"durationMinutes,omitempty"`
}

type DominationTeamRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Order int    `json:"order,omitempty"`
}

type DominationPointRequest struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name"`
	QRToken string   `json:"qrToken,omitempty"`
	Order   int      `json:"order,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

type CaptureRequest struct {
	QRToken string `json:"qrToken"`
	TeamID  string `json:"teamId"`
}

// Response payloads

type EventResponse struct {
	ID          int64           `json:"id"`
	TS          string          `json:"ts" format:"date-time"`
	Type        string          `json:"type"`
	OperationID string          `json:"operationId,omitempty"`
	EntityKind  string          `json:"entityKind"`
	EntityID    string          `json:"entityId,omitempty"`
	ActorID     string          `json:"actorId"`
	Payload     json.RawMessage `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := json.RawMessage(evt.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("{}")
	}
	return EventResponse{
		ID:          evt.ID,
		TS:          evt.TS,
		Type:        evt.Type,
		OperationID: evt.OperationID,
		EntityKind:  evt.EntityKind,
		EntityID:    evt.EntityID,
		ActorID:     evt.ActorID,
		Payload:     payload,
	}
}

func configJSON(cfg map[string]any) (json.RawMessage, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}
