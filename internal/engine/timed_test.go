package engine_test

import (
	"testing"
	"time"

	"fieldops/internal/domain"
	"fieldops/internal/fault"
)

const (
	zoneLat = 48.8566
	zoneLon = 2.3522
)

func TestGPSCaptureZoneAndDuration(t *testing.T) {
	env := newTestEnv(t)
	o := env.objective(t, domain.ObjectiveGPSCapture, `{"latitude":48.8566,"longitude":2.3522,"radiusMeters":100,"durationMinutes":5}`)

	// about 150 m north of the centre
	_, err := env.Engine.StartGPSCapture(env.Ctx, o.ID, teamA, zoneLat+0.00135, zoneLon)
	expectCode(t, err, fault.CodeOutOfRange)
	meta := fault.MetadataOf(err)
	if d, _ := meta["distanceMeters"].(float64); d < 145 || d > 155 {
		t.Fatalf("unexpected distance %v", meta["distanceMeters"])
	}

	start, err := env.Engine.StartGPSCapture(env.Ctx, o.ID, teamA, zoneLat, zoneLon)
	if err != nil {
		t.Fatal(err)
	}
	if start.CaptureID == "" || start.DurationMinutes != 5 || start.RadiusMeters != 100 {
		t.Fatalf("unexpected start %+v", start)
	}
	_, err = env.Engine.StartGPSCapture(env.Ctx, o.ID, teamA, zoneLat, zoneLon)
	expectCode(t, err, fault.CodeAlreadyInProgress)

	env.Clock.Advance(2 * time.Minute)
	_, err = env.Engine.CompleteGPSCapture(env.Ctx, o.ID, teamA, zoneLat, zoneLon)
	expectCode(t, err, fault.CodeTimeNotElapsed)
	if rem := fault.MetadataOf(err)["remainingMinutes"]; rem != 3 {
		t.Fatalf("expected 3 remaining minutes, got %v", rem)
	}
	// leaving the zone is reported before the clock
	_, err = env.Engine.CompleteGPSCapture(env.Ctx, o.ID, teamA, zoneLat+0.00135, zoneLon)
	expectCode(t, err, fault.CodeMovedOutOfZone)

	env.Clock.Advance(3 * time.Minute)
	res, err := env.Engine.CompleteGPSCapture(env.Ctx, o.ID, teamA, zoneLat+0.00045, zoneLon)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Completed || res.Completion.Lat == nil || *res.Completion.Lat != zoneLat+0.00045 {
		t.Fatalf("unexpected completion %+v", res.Completion)
	}
	_, err = env.Engine.StartGPSCapture(env.Ctx, o.ID, teamA, zoneLat, zoneLon)
	expectCode(t, err, fault.CodeAlreadyCompleted)
}

func TestGPSCaptureCompleteWithoutStart(t *testing.T) {
	env := newTestEnv(t)
	o := env.objective(t, domain.ObjectiveGPSCapture, `{"latitude":48.8566,"longitude":2.3522,"radiusMeters":100,"durationMinutes":5}`)
	_, err := env.Engine.CompleteGPSCapture(env.Ctx, o.ID, teamA, zoneLat, zoneLon)
	expectCode(t, err, fault.CodeNotStarted)
	_, err = env.Engine.StartGPSCapture(env.Ctx, o.ID, teamA, 91, zoneLon)
	expectCode(t, err, fault.CodeInvalidArgument)
}

func TestSabotageLifecycle(t *testing.T) {
	env := newTestEnv(t)
	o := env.objective(t, domain.ObjectiveTimedSabotage, `{"delayMinutes":10,"instructions":"Plant the charge"}`)

	start, err := env.Engine.StartSabotage(env.Ctx, o.ID, teamA)
	if err != nil {
		t.Fatal(err)
	}
	if start.Instructions != "Plant the charge" || !start.ReadyAt.Equal(start.StartedAt.Add(10*time.Minute)) {
		t.Fatalf("unexpected start %+v", start)
	}
	env.Clock.Advance(9*time.Minute + 30*time.Second)
	_, err = env.Engine.CompleteSabotage(env.Ctx, o.ID, teamA)
	expectCode(t, err, fault.CodeTimeNotElapsed)
	if rem := fault.MetadataOf(err)["remainingMinutes"]; rem != 1 {
		t.Fatalf("remaining minutes should round up, got %v", rem)
	}

	defused, err := env.Engine.DefuseSabotage(env.Ctx, o.ID, teamA, "ref-1")
	if err != nil {
		t.Fatal(err)
	}
	if defused.Status != domain.TimedDefused {
		t.Fatalf("expected DEFUSED, got %s", defused.Status)
	}
	_, err = env.Engine.CompleteSabotage(env.Ctx, o.ID, teamA)
	expectCode(t, err, fault.CodeNotStarted)

	// a defused sabotage can be planted again
	if _, err := env.Engine.StartSabotage(env.Ctx, o.ID, teamA); err != nil {
		t.Fatal(err)
	}
	env.Clock.Advance(10 * time.Minute)
	res, err := env.Engine.CompleteSabotage(env.Ctx, o.ID, teamA)
	if err != nil || !res.Completed || res.Points != 100 {
		t.Fatalf("expected completion, got %+v %v", res, err)
	}
	_, err = env.Engine.DefuseSabotage(env.Ctx, o.ID, teamA, "ref-1")
	expectCode(t, err, fault.CodeAlreadyCompleted)
}

func TestAntennaHack(t *testing.T) {
	env := newTestEnv(t)
	o := env.objective(t, domain.ObjectiveAntennaHack, `{"hackDurationMinutes":3}`)
	_, err := env.Engine.CompleteAntennaHack(env.Ctx, o.ID, teamB)
	expectCode(t, err, fault.CodeNotStarted)
	if _, err := env.Engine.StartAntennaHack(env.Ctx, o.ID, teamB); err != nil {
		t.Fatal(err)
	}
	env.Clock.Advance(3 * time.Minute)
	res, err := env.Engine.CompleteAntennaHack(env.Ctx, o.ID, teamB)
	if err != nil || !res.Completed {
		t.Fatalf("expected completion, got %+v %v", res, err)
	}
}

func TestPointDefenseHoldsStartPosition(t *testing.T) {
	env := newTestEnv(t)
	o := env.objective(t, domain.ObjectivePointDefense, `{"defenseRules":"Hold the bridge","radiusMeters":30,"durationMinutes":15}`)
	start, err := env.Engine.StartPointDefense(env.Ctx, o.ID, teamA, zoneLat, zoneLon)
	if err != nil {
		t.Fatal(err)
	}
	if start.RadiusMeters != 30 || start.Instructions != "Hold the bridge" {
		t.Fatalf("unexpected start %+v", start)
	}
	env.Clock.Advance(15 * time.Minute)
	// about 50 m from where the defense started
	_, err = env.Engine.CompletePointDefense(env.Ctx, o.ID, teamA, zoneLat+0.00045, zoneLon)
	expectCode(t, err, fault.CodeMovedOutOfZone)
	res, err := env.Engine.CompletePointDefense(env.Ctx, o.ID, teamA, zoneLat+0.0001, zoneLon)
	if err != nil || !res.Completed {
		t.Fatalf("expected completion, got %+v %v", res, err)
	}
}

func TestExtraction(t *testing.T) {
	env := newTestEnv(t)
	o := env.objective(t, domain.ObjectiveExtraction, `{"radiusMeters":50,"holdMinutes":5}`)
	if _, err := env.Engine.StartExtraction(env.Ctx, o.ID, teamA, 10, 10); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.StartExtraction(env.Ctx, o.ID, teamA, 10, 10)
	expectCode(t, err, fault.CodeAlreadyInProgress)
	env.Clock.Advance(4 * time.Minute)
	_, err = env.Engine.CompleteExtraction(env.Ctx, o.ID, teamA, 10, 10)
	expectCode(t, err, fault.CodeTimeNotElapsed)
	env.Clock.Advance(time.Minute)
	res, err := env.Engine.CompleteExtraction(env.Ctx, o.ID, teamA, 10, 10)
	if err != nil || !res.Completed {
		t.Fatalf("expected completion, got %+v %v", res, err)
	}
}
