// Package objective parses and validates the per-type configuration document
// attached to an objective. Each objective type has its own config struct;
// Parse picks the variant from the type and validates it.
package objective

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fieldops/internal/domain"
	"fieldops/internal/fault"
	"fieldops/internal/geo"
)

// Config is implemented by every per-type configuration variant.
type Config interface {
	Type() domain.ObjectiveType
	Validate() error
}

type PhysicalCode struct {
	SecretCode    string `json:"secretCode"`
	CaseSensitive bool   `json:"caseSensitive,omitempty"`
	MaxAttempts   int    `json:"maxAttempts,omitempty"`
	Hint          string `json:"hint,omitempty"`
}

type QRSimple struct {
	Message string `json:"message,omitempty"`
}

type QREnigma struct {
	Riddle        string `json:"riddle"`
	Answer        string `json:"answer"`
	CaseSensitive bool   `json:"caseSensitive,omitempty"`
}

type VIPElimination struct {
	SecretInfo string `json:"secretInfo"`
	VIPName    string `json:"vipName,omitempty"`
}

type TimedSabotage struct {
	DelayMinutes int    `json:"delayMinutes"`
	Instructions string `json:"instructions,omitempty"`
}

type GPSCapture struct {
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	RadiusMeters    float64  `json:"radiusMeters"`
	DurationMinutes int      `json:"durationMinutes"`
}

type PointDefense struct {
	DefenseRules    string  `json:"defenseRules"`
	RadiusMeters    float64 `json:"radiusMeters"`
	DurationMinutes int     `json:"durationMinutes"`
}

// Extraction is a point-defense variant: hold the position where the
// extraction started for HoldMinutes.
type Extraction struct {
	RadiusMeters    float64 `json:"radiusMeters"`
	HoldMinutes     int     `json:"holdMinutes"`
	ExtractionRules string  `json:"extractionRules,omitempty"`
}

type ItemCollection struct {
	ItemsRequired int      `json:"itemsRequired"`
	Items         []string `json:"items,omitempty"`
}

type MultiStepEnigma struct {
	StepsCount    int    `json:"stepsCount"`
	Enigmas       string `json:"enigmas"`
	CaseSensitive bool   `json:"caseSensitive,omitempty"`
}

type MorseRadio struct {
	Message   string `json:"message"`
	Frequency string `json:"frequency,omitempty"`
}

type TimeRace struct {
	TimeLimitMinutes int `json:"timeLimitMinutes"`
	CheckpointsCount int `json:"checkpointsCount"`
}

type Conditional struct {
	RequiredObjectiveIDs []string `json:"requiredObjectiveIds"`
	RequireAll           *bool    `json:"requireAll"`
}

type AntennaHack struct {
	HackDurationMinutes int    `json:"hackDurationMinutes"`
	HackInstructions    string `json:"hackInstructions,omitempty"`
}

type RandomPool struct {
	PoolObjectiveIDs []string `json:"poolObjectiveIds"`
	SelectCount      int      `json:"selectCount"`
}

type LiveEvent struct {
	EventName   string `json:"eventName"`
	Description string `json:"description,omitempty"`
}

func (PhysicalCode) Type() domain.ObjectiveType    { return domain.ObjectivePhysicalCode }
func (QRSimple) Type() domain.ObjectiveType        { return domain.ObjectiveQRSimple }
func (QREnigma) Type() domain.ObjectiveType        { return domain.ObjectiveQREnigma }
func (VIPElimination) Type() domain.ObjectiveType  { return domain.ObjectiveVIPElimination }
func (TimedSabotage) Type() domain.ObjectiveType   { return domain.ObjectiveTimedSabotage }
func (GPSCapture) Type() domain.ObjectiveType      { return domain.ObjectiveGPSCapture }
func (PointDefense) Type() domain.ObjectiveType    { return domain.ObjectivePointDefense }
func (Extraction) Type() domain.ObjectiveType      { return domain.ObjectiveExtraction }
func (ItemCollection) Type() domain.ObjectiveType  { return domain.ObjectiveItemCollection }
func (MultiStepEnigma) Type() domain.ObjectiveType { return domain.ObjectiveMultiStepEnigma }
func (MorseRadio) Type() domain.ObjectiveType      { return domain.ObjectiveMorseRadio }
func (TimeRace) Type() domain.ObjectiveType        { return domain.ObjectiveTimeRace }
func (Conditional) Type() domain.ObjectiveType     { return domain.ObjectiveConditional }
func (AntennaHack) Type() domain.ObjectiveType     { return domain.ObjectiveAntennaHack }
func (RandomPool) Type() domain.ObjectiveType      { return domain.ObjectiveRandomPool }
func (LiveEvent) Type() domain.ObjectiveType       { return domain.ObjectiveLiveEvent }

// newConfig returns an empty variant for t.
func newConfig(t domain.ObjectiveType) (Config, bool) {
	switch t {
	case domain.ObjectivePhysicalCode:
		return &PhysicalCode{}, true
	case domain.ObjectiveQRSimple:
		return &QRSimple{}, true
	case domain.ObjectiveQREnigma:
		return &QREnigma{}, true
	case domain.ObjectiveVIPElimination:
		return &VIPElimination{}, true
	case domain.ObjectiveTimedSabotage:
		return &TimedSabotage{}, true
	case domain.ObjectiveGPSCapture:
		return &GPSCapture{}, true
	case domain.ObjectivePointDefense:
		return &PointDefense{}, true
	case domain.ObjectiveExtraction:
		return &Extraction{}, true
	case domain.ObjectiveItemCollection:
		return &ItemCollection{}, true
	case domain.ObjectiveMultiStepEnigma:
		return &MultiStepEnigma{}, true
	case domain.ObjectiveMorseRadio:
		return &MorseRadio{}, true
	case domain.ObjectiveTimeRace:
		return &TimeRace{}, true
	case domain.ObjectiveConditional:
		return &Conditional{}, true
	case domain.ObjectiveAntennaHack:
		return &AntennaHack{}, true
	case domain.ObjectiveRandomPool:
		return &RandomPool{}, true
	case domain.ObjectiveLiveEvent:
		return &LiveEvent{}, true
	}
	return nil, false
}

// KnownType reports whether t is one of the supported mechanics.
func KnownType(t domain.ObjectiveType) bool {
	_, ok := newConfig(t)
	return ok
}

// Parse decodes raw into the variant for t and validates it.
// An empty document is treated as {}.
func Parse(t domain.ObjectiveType, raw json.RawMessage) (Config, error) {
	cfg, ok := newConfig(t)
	if !ok {
		return nil, invalid("type", fmt.Sprintf("unknown objective type %q", t))
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if err := json.Unmarshal(trimmed, cfg); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, invalid(typeErr.Field, fmt.Sprintf("%s must be %s", typeErr.Field, typeErr.Type.String()))
		}
		return nil, fault.Wrap(fault.CodeInvalidConfig, "config is not a JSON object", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func invalid(field, msg string) error {
	return fault.WithMetadata(fault.CodeInvalidConfig, "invalid config: "+msg, map[string]any{"field": field})
}

func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(field, field+" is required")
	}
	return nil
}

func requireAtLeast(field string, v, min int) error {
	if v < min {
		return invalid(field, fmt.Sprintf("%s must be >= %d", field, min))
	}
	return nil
}

func requireIDs(field string, ids []string) error {
	if len(ids) == 0 {
		return invalid(field, field+" must not be empty")
	}
	seen := map[string]bool{}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return invalid(field, field+" contains an empty id")
		}
		if seen[id] {
			return invalid(field, fmt.Sprintf("%s contains %s twice", field, id))
		}
		seen[id] = true
	}
	return nil
}

func (c *PhysicalCode) Validate() error {
	if err := requireText("secretCode", c.SecretCode); err != nil {
		return err
	}
	return requireAtLeast("maxAttempts", c.MaxAttempts, 0)
}

func (c *QRSimple) Validate() error { return nil }

func (c *QREnigma) Validate() error {
	if err := requireText("riddle", c.Riddle); err != nil {
		return err
	}
	return requireText("answer", c.Answer)
}

func (c *VIPElimination) Validate() error {
	return requireText("secretInfo", c.SecretInfo)
}

func (c *TimedSabotage) Validate() error {
	return requireAtLeast("delayMinutes", c.DelayMinutes, 1)
}

func (c *GPSCapture) Validate() error {
	if c.Latitude == nil {
		return invalid("latitude", "latitude is required")
	}
	if c.Longitude == nil {
		return invalid("longitude", "longitude is required")
	}
	if !geo.ValidCoordinate(*c.Latitude, 0) {
		return invalid("latitude", "latitude must be within [-90, 90]")
	}
	if !geo.ValidCoordinate(0, *c.Longitude) {
		return invalid("longitude", "longitude must be within [-180, 180]")
	}
	if c.RadiusMeters < 1 {
		return invalid("radiusMeters", "radiusMeters must be >= 1")
	}
	return requireAtLeast("durationMinutes", c.DurationMinutes, 1)
}

func (c *PointDefense) Validate() error {
	if err := requireText("defenseRules", c.DefenseRules); err != nil {
		return err
	}
	if c.RadiusMeters < 1 {
		return invalid("radiusMeters", "radiusMeters must be >= 1")
	}
	return requireAtLeast("durationMinutes", c.DurationMinutes, 1)
}

func (c *Extraction) Validate() error {
	if c.RadiusMeters < 1 {
		return invalid("radiusMeters", "radiusMeters must be >= 1")
	}
	return requireAtLeast("holdMinutes", c.HoldMinutes, 1)
}

func (c *ItemCollection) Validate() error {
	if err := requireAtLeast("itemsRequired", c.ItemsRequired, 1); err != nil {
		return err
	}
	if len(c.Items) == 0 {
		return nil
	}
	seen := map[string]bool{}
	for _, item := range c.Items {
		key := NormalizeItem(item)
		if key == "" {
			return invalid("items", "items contains an empty name")
		}
		if seen[key] {
			return invalid("items", fmt.Sprintf("items contains %q twice", item))
		}
		seen[key] = true
	}
	if len(c.Items) < c.ItemsRequired {
		return invalid("items", "items lists fewer names than itemsRequired")
	}
	return nil
}

// Allows reports whether item is acceptable for this collection.
func (c *ItemCollection) Allows(item string) bool {
	if len(c.Items) == 0 {
		return true
	}
	key := NormalizeItem(item)
	for _, allowed := range c.Items {
		if NormalizeItem(allowed) == key {
			return true
		}
	}
	return false
}

func (c *MultiStepEnigma) Validate() error {
	if err := requireAtLeast("stepsCount", c.StepsCount, 1); err != nil {
		return err
	}
	steps, err := ParseEnigmas(c.Enigmas)
	if err != nil {
		return err
	}
	if len(steps) < c.StepsCount {
		return invalid("enigmas", fmt.Sprintf("enigmas defines %d steps, stepsCount is %d", len(steps), c.StepsCount))
	}
	return nil
}

// Steps returns the first StepsCount parsed enigmas.
func (c *MultiStepEnigma) Steps() []Enigma {
	steps, _ := ParseEnigmas(c.Enigmas)
	if len(steps) > c.StepsCount {
		steps = steps[:c.StepsCount]
	}
	return steps
}

func (c *MorseRadio) Validate() error {
	return requireText("message", c.Message)
}

func (c *TimeRace) Validate() error {
	if err := requireAtLeast("timeLimitMinutes", c.TimeLimitMinutes, 1); err != nil {
		return err
	}
	return requireAtLeast("checkpointsCount", c.CheckpointsCount, 1)
}

func (c *Conditional) Validate() error {
	if err := requireIDs("requiredObjectiveIds", c.RequiredObjectiveIDs); err != nil {
		return err
	}
	if c.RequireAll == nil {
		return invalid("requireAll", "requireAll is required")
	}
	return nil
}

func (c *AntennaHack) Validate() error {
	return requireAtLeast("hackDurationMinutes", c.HackDurationMinutes, 1)
}

func (c *RandomPool) Validate() error {
	if err := requireIDs("poolObjectiveIds", c.PoolObjectiveIDs); err != nil {
		return err
	}
	if c.SelectCount < 1 || c.SelectCount > len(c.PoolObjectiveIDs) {
		return invalid("selectCount", fmt.Sprintf("selectCount must be within [1, %d]", len(c.PoolObjectiveIDs)))
	}
	return nil
}

func (c *LiveEvent) Validate() error {
	return requireText("eventName", c.EventName)
}

// References returns the other objectives a config depends on.
func References(cfg Config) []string {
	switch c := cfg.(type) {
	case *Conditional:
		return c.RequiredObjectiveIDs
	case *RandomPool:
		return c.PoolObjectiveIDs
	}
	return nil
}
