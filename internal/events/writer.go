package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fieldops/internal/domain"
)

// Event types appended by the engine.
const (
	OperationCreated       = "operation.created"
	OperationStatusChanged = "operation.status_changed"
	OperationTeamAdded     = "operation.team_added"
	ObjectiveCreated       = "objective.created"
	ObjectiveUpdated       = "objective.updated"
	ObjectiveCompleted     = "objective.completed"
	AttemptFailed          = "objective.attempt_failed"
	TimedActionStarted     = "timed_action.started"
	TimedActionDefused     = "timed_action.defused"
	TimedActionExpired     = "timed_action.expired"
	SessionCreated         = "domination.session_created"
	SessionStatusChanged   = "domination.session_status_changed"
	DominationTeamAdded    = "domination.team_added"
	DominationPointAdded   = "domination.point_added"
	PointCaptured          = "domination.point_captured"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, operationID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if actorID == "" {
		actorID = "system"
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,operation_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		domain.FormatTime(w.Now()), evtType, nullable(operationID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
