package domain

import (
	"encoding/json"
	"time"
)

type ObjectiveType string

const (
	ObjectivePhysicalCode    ObjectiveType = "PHYSICAL_CODE"
	ObjectiveQRSimple        ObjectiveType = "QR_SIMPLE"
	ObjectiveQREnigma        ObjectiveType = "QR_ENIGMA"
	ObjectiveVIPElimination  ObjectiveType = "VIP_ELIMINATION"
	ObjectiveTimedSabotage   ObjectiveType = "TIMED_SABOTAGE"
	ObjectiveGPSCapture      ObjectiveType = "GPS_CAPTURE"
	ObjectivePointDefense    ObjectiveType = "POINT_DEFENSE"
	ObjectiveExtraction      ObjectiveType = "EXTRACTION"
	ObjectiveItemCollection  ObjectiveType = "ITEM_COLLECTION"
	ObjectiveMultiStepEnigma ObjectiveType = "MULTI_STEP_ENIGMA"
	ObjectiveMorseRadio      ObjectiveType = "MORSE_RADIO"
	ObjectiveTimeRace        ObjectiveType = "TIME_RACE"
	ObjectiveConditional     ObjectiveType = "CONDITIONAL"
	ObjectiveAntennaHack     ObjectiveType = "ANTENNA_HACK"
	ObjectiveRandomPool      ObjectiveType = "RANDOM_POOL"
	ObjectiveLiveEvent       ObjectiveType = "LIVE_EVENT"
)

// ObjectiveTypes lists every supported mechanic in display order.
var ObjectiveTypes = []ObjectiveType{
	ObjectivePhysicalCode,
	ObjectiveQRSimple,
	ObjectiveQREnigma,
	ObjectiveVIPElimination,
	ObjectiveTimedSabotage,
	ObjectiveGPSCapture,
	ObjectivePointDefense,
	ObjectiveExtraction,
	ObjectiveItemCollection,
	ObjectiveMultiStepEnigma,
	ObjectiveMorseRadio,
	ObjectiveTimeRace,
	ObjectiveConditional,
	ObjectiveAntennaHack,
	ObjectiveRandomPool,
	ObjectiveLiveEvent,
}

type OperationStatus string

const (
	OperationDraft     OperationStatus = "DRAFT"
	OperationPublished OperationStatus = "PUBLISHED"
	OperationActive    OperationStatus = "ACTIVE"
	OperationCompleted OperationStatus = "COMPLETED"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationDeclined InvitationStatus = "DECLINED"
)

// Operation is the boundary view of an exercise owned by the operation directory.
type Operation struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    OperationStatus `json:"status" enum:"DRAFT,PUBLISHED,ACTIVE,COMPLETED"`
	CreatedAt time.Time       `json:"created_at"`
}

type OperationTeam struct {
	OperationID string           `json:"operation_id"`
	TeamID      string           `json:"team_id"`
	Name        string           `json:"name"`
	Invitation  InvitationStatus `json:"invitation" enum:"PENDING,ACCEPTED,DECLINED"`
}

type Objective struct {
	ID                string          `json:"id"`
	OperationID       string          `json:"operation_id"`
	Type              ObjectiveType   `json:"type"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Points            int             `json:"points"`
	Config            json.RawMessage `json:"config"`
	ParentObjectiveID *string         `json:"parent_objective_id,omitempty"`
	QRToken           string          `json:"qr_token"`
	Order             int             `json:"order"`
	CreatedAt         time.Time       `json:"created_at"`
}

type Attempt struct {
	Seq         int64     `json:"seq"`
	ID          string    `json:"id"`
	ObjectiveID string    `json:"objective_id"`
	TeamID      string    `json:"team_id"`
	Value       string    `json:"value"`
	Success     bool      `json:"success"`
	CreatedAt   time.Time `json:"created_at"`
}

type TimedActionKind string

const (
	TimedSabotage     TimedActionKind = "SABOTAGE"
	TimedGPSCapture   TimedActionKind = "GPS_CAPTURE"
	TimedPointDefense TimedActionKind = "POINT_DEFENSE"
	TimedExtraction   TimedActionKind = "EXTRACTION"
	TimedAntennaHack  TimedActionKind = "ANTENNA_HACK"
	TimedTimeRace     TimedActionKind = "TIME_RACE"
)

type TimedActionStatus string

const (
	TimedInProgress TimedActionStatus = "IN_PROGRESS"
	TimedCompleted  TimedActionStatus = "COMPLETED"
	TimedDefused    TimedActionStatus = "DEFUSED"
	TimedExpired    TimedActionStatus = "EXPIRED"
)

// Terminal reports whether no further transition is possible.
func (s TimedActionStatus) Terminal() bool {
	return s != TimedInProgress
}

// TimedAction is the shared start/complete record behind every mechanic that
// is gated by elapsed time or position.
type TimedAction struct {
	ID          string            `json:"id"`
	ObjectiveID string            `json:"objective_id"`
	TeamID      string            `json:"team_id"`
	Kind        TimedActionKind   `json:"kind"`
	Status      TimedActionStatus `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Deadline    *time.Time        `json:"deadline,omitempty"`
	StartLat    *float64          `json:"start_lat,omitempty"`
	StartLon    *float64          `json:"start_lon,omitempty"`
}

type Completion struct {
	ID          string    `json:"id"`
	ObjectiveID string    `json:"objective_id"`
	TeamID      string    `json:"team_id"`
	Points      int       `json:"points"`
	CompletedAt time.Time `json:"completed_at"`
	CompletedBy string    `json:"completed_by,omitempty"`
	Lat         *float64  `json:"lat,omitempty"`
	Lon         *float64  `json:"lon,omitempty"`
	DeviceInfo  string    `json:"device_info,omitempty"`
}

type SessionStatus string

const (
	SessionDraft     SessionStatus = "DRAFT"
	SessionActive    SessionStatus = "ACTIVE"
	SessionPaused    SessionStatus = "PAUSED"
	SessionCompleted SessionStatus = "COMPLETED"
)

type DominationSession struct {
	ID              string        `json:"id"`
	OperationID     *string       `json:"operation_id,omitempty"`
	Name            string        `json:"name"`
	Status          SessionStatus `json:"status" enum:"DRAFT,ACTIVE,PAUSED,COMPLETED"`
	PointsPerTick   int           `json:"points_per_tick"`
	TickIntervalSec int           `json:"tick_interval_sec"`
	DurationMinutes *int          `json:"duration_minutes,omitempty"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// EndsAt returns startedAt + duration when both are set.
func (s DominationSession) EndsAt() (time.Time, bool) {
	if s.StartedAt == nil || s.DurationMinutes == nil {
		return time.Time{}, false
	}
	return s.StartedAt.Add(time.Duration(*s.DurationMinutes) * time.Minute), true
}

type DominationTeam struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Order     int    `json:"order"`
}

type DominationPoint struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Name      string   `json:"name"`
	QRToken   string   `json:"qr_token"`
	Order     int      `json:"order"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
}

type DominationCapture struct {
	Seq        int64     `json:"seq"`
	ID         string    `json:"id"`
	PointID    string    `json:"point_id"`
	TeamID     string    `json:"team_id"`
	SessionID  string    `json:"session_id"`
	CapturedAt time.Time `json:"captured_at"`
	CapturedBy string    `json:"captured_by,omitempty"`
}

type DominationScore struct {
	SessionID string    `json:"session_id"`
	TeamID    string    `json:"team_id"`
	Points    int       `json:"points"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	OperationID string `json:"operation_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}

// TimestampLayout is the fixed-width UTC layout used for persisted times so
// that lexical and chronological order agree.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
