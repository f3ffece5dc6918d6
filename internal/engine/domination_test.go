package engine_test

import (
	"testing"
	"time"

	"fieldops/internal/domain"
	"fieldops/internal/engine"
	"fieldops/internal/fault"
)

type dominationFixture struct {
	Session domain.DominationSession
	Red     domain.DominationTeam
	Blue    domain.DominationTeam
	Hill    domain.DominationPoint
	Bridge  domain.DominationPoint
}

// newDomination creates a DRAFT session scoring one point per second.
func newDomination(t *testing.T, env testEnv, duration *int) dominationFixture {
	t.Helper()
	one := 1
	s, err := env.Engine.CreateDominationSession(env.Ctx, engine.SessionCreateOptions{
		Name:            "King of the hill",
		OperationID:     opID,
		PointsPerTick:   &one,
		TickIntervalSec: &one,
		DurationMinutes: duration,
		ActorID:         "designer",
	})
	if err != nil {
		t.Fatal(err)
	}
	f := dominationFixture{Session: s}
	if f.Red, err = env.Engine.AddDominationTeam(env.Ctx, domain.DominationTeam{SessionID: s.ID, Name: "Red", Color: "#ff0000"}, "designer"); err != nil {
		t.Fatal(err)
	}
	if f.Blue, err = env.Engine.AddDominationTeam(env.Ctx, domain.DominationTeam{SessionID: s.ID, Name: "Blue", Color: "#0000ff", Order: 1}, "designer"); err != nil {
		t.Fatal(err)
	}
	if f.Hill, err = env.Engine.AddDominationPoint(env.Ctx, domain.DominationPoint{SessionID: s.ID, Name: "Hill"}, "designer"); err != nil {
		t.Fatal(err)
	}
	if f.Bridge, err = env.Engine.AddDominationPoint(env.Ctx, domain.DominationPoint{SessionID: s.ID, Name: "Bridge", Order: 1}, "designer"); err != nil {
		t.Fatal(err)
	}
	return f
}

func scoresOf(state engine.DominationState) map[string]int {
	out := map[string]int{}
	for _, s := range state.Scores {
		out[s.TeamID] = s.Points
	}
	return out
}

func TestCaptureRequiresActiveSession(t *testing.T) {
	env := newTestEnv(t)
	f := newDomination(t, env, nil)
	_, err := env.Engine.CaptureDominationPoint(env.Ctx, f.Hill.QRToken, f.Red.ID, "")
	expectCode(t, err, fault.CodeSessionNotActive)

	if _, err := env.Engine.StartDominationSession(env.Ctx, f.Session.ID, "ref"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CaptureDominationPoint(env.Ctx, "qr-unknown", f.Red.ID, "")
	expectCode(t, err, fault.CodeNotFound)

	if _, err := env.Engine.PauseDominationSession(env.Ctx, f.Session.ID, "ref"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CaptureDominationPoint(env.Ctx, f.Hill.QRToken, f.Red.ID, "")
	expectCode(t, err, fault.CodeSessionNotActive)
}

func TestCaptureTeamMustBelongToSession(t *testing.T) {
	env := newTestEnv(t)
	f := newDomination(t, env, nil)
	other := newDomination(t, env, nil)
	if _, err := env.Engine.StartDominationSession(env.Ctx, f.Session.ID, "ref"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.CaptureDominationPoint(env.Ctx, f.Hill.QRToken, other.Red.ID, "")
	expectCode(t, err, fault.CodeTeamNotInSession)
}

func TestCaptureAlreadyControlledAndRecapture(t *testing.T) {
	env := newTestEnv(t)
	f := newDomination(t, env, nil)
	if _, err := env.Engine.StartDominationSession(env.Ctx, f.Session.ID, "ref"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CaptureDominationPoint(env.Ctx, f.Hill.QRToken, f.Red.ID, "player-1"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.CaptureDominationPoint(env.Ctx, f.Hill.QRToken, f.Red.ID, "player-2")
	expectCode(t, err, fault.CodeAlreadyControlled)

	env.Clock.Advance(20 * time.Second)
	if _, err := env.Engine.CaptureDominationPoint(env.Ctx, f.Hill.QRToken, f.Blue.ID, ""); err != nil {
		t.Fatal(err)
	}
	env.Clock.Advance(10 * time.Second)

	state, err := env.Engine.DominationState(env.Ctx, f.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	scores := scoresOf(state)
	if scores[f.Red.ID] != 20 || scores[f.Blue.ID] != 10 {
		t.Fatalf("expected red=20 blue=10, got %v", scores)
	}
	for _, p := range state.Points {
		switch p.ID {
		case f.Hill.ID:
			if p.ControlledBy == nil || p.ControlledBy.ID != f.Blue.ID {
				t.Fatalf("hill should be held by blue: %+v", p)
			}
		case f.Bridge.ID:
			if p.ControlledBy != nil || p.CapturedAt != nil {
				t.Fatalf("bridge should be neutral: %+v", p)
			}
		}
	}
}

func TestSingleHolderScoresElapsedTicks(t *testing.T) {
	env := newTestEnv(t)
	f := newDomination(t, env, nil)
	if _, err := env.Engine.StartDominationSession(env.Ctx, f.Session.ID, "ref"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CaptureDominationPoint(env.Ctx, f.Hill.QRToken, f.Red.ID, ""); err != nil {
		t.Fatal(err)
	}
	env.Clock.Advance(30 * time.Second)
	scores, err := env.Engine.RecomputeDominationScores(env.Ctx, f.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]int{}
	for _, s := range scores {
		got[s.TeamID] = s.Points
	}
	if len(scores) != 2 || got[f.Red.ID] != 30 || got[f.Blue.ID] != 0 {
		t.Fatalf("expected red=30 blue=0, got %v", got)
	}
	// recomputing at the same instant changes nothing
	again, err := env.Engine.RecomputeDominationScores(env.Ctx, f.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i := range scores {
		if scores[i].Points != again[i].Points {
			t.Fatalf("recompute is not idempotent: %v vs %v", scores, again)
		}
	}
}

func TestEndSessionFreezesScores(t *testing.T) {
	env := newTestEnv(t)
	f := newDomination(t, env, nil)
	if _, err := env.Engine.StartDominationSession(env.Ctx, f.Session.ID, "ref"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CaptureDominationPoint(env.Ctx, f.Hill.QRToken, f.Blue.ID, ""); err != nil {
		t.Fatal(err)
	}
	env.Clock.Advance(45 * time.Second)
	ended, err := env.Engine.EndDominationSession(env.Ctx, f.Session.ID, "ref")
	if err != nil {
		t.Fatal(err)
	}
	if ended.Status != domain.SessionCompleted || ended.EndedAt == nil {
		t.Fatalf("unexpected session %+v", ended)
	}
	env.Clock.Advance(time.Hour)
	state, err := env.Engine.DominationState(env.Ctx, f.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := scoresOf(state)[f.Blue.ID]; got != 45 {
		t.Fatalf("final score should stay at 45, got %d", got)
	}
	if scores, err := env.Engine.RecomputeDominationScores(env.Ctx, f.Session.ID); err != nil || scores != nil {
		t.Fatalf("completed session should not be recomputed: %v %v", scores, err)
	}
	_, err = env.Engine.AddDominationTeam(env.Ctx, domain.DominationTeam{SessionID: f.Session.ID, Name: "Green"}, "designer")
	expectCode(t, err, fault.CodeSessionNotActive)
}

func TestSessionDurationExpires(t *testing.T) {
	env := newTestEnv(t)
	minutes := 1
	f := newDomination(t, env, &minutes)
	if _, err := env.Engine.StartDominationSession(env.Ctx, f.Session.ID, "ref"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CaptureDominationPoint(env.Ctx, f.Hill.QRToken, f.Red.ID, ""); err != nil {
		t.Fatal(err)
	}
	env.Clock.Advance(90 * time.Second)

	_, err := env.Engine.CaptureDominationPoint(env.Ctx, f.Hill.QRToken, f.Blue.ID, "")
	expectCode(t, err, fault.CodeSessionNotActive)

	s, err := env.Engine.GetDominationSession(env.Ctx, f.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != domain.SessionCompleted {
		t.Fatalf("expired session should be completed, got %s", s.Status)
	}
	want := s.StartedAt.Add(time.Minute)
	if s.EndedAt == nil || !s.EndedAt.Equal(want) {
		t.Fatalf("endedAt should be clamped to %s, got %v", want, s.EndedAt)
	}
	state, err := env.Engine.DominationState(env.Ctx, f.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := scoresOf(state)[f.Red.ID]; got != 60 {
		t.Fatalf("score should stop at the duration, got %d", got)
	}
}

func TestSweepEndsExpiredSessions(t *testing.T) {
	env := newTestEnv(t)
	minutes := 2
	expiring := newDomination(t, env, &minutes)
	open := newDomination(t, env, nil)
	for _, id := range []string{expiring.Session.ID, open.Session.ID} {
		if _, err := env.Engine.StartDominationSession(env.Ctx, id, "ref"); err != nil {
			t.Fatal(err)
		}
	}
	env.Clock.Advance(3 * time.Minute)
	n, err := env.Engine.SweepDominationSessions(env.Ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one session ended, got %d %v", n, err)
	}
	n, err = env.Engine.SweepDominationSessions(env.Ctx)
	if err != nil || n != 0 {
		t.Fatalf("second sweep should end nothing, got %d %v", n, err)
	}
}

func TestSweepSkipsFailingSession(t *testing.T) {
	env := newTestEnv(t)
	broken := newDomination(t, env, nil)
	minutes := 2
	expiring := newDomination(t, env, &minutes)
	for _, id := range []string{broken.Session.ID, expiring.Session.ID} {
		if _, err := env.Engine.StartDominationSession(env.Ctx, id, "ref"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.Engine.DB.Exec(`INSERT INTO domination_captures(id, point_id, team_id, session_id, captured_at) VALUES ('bad', ?, ?, ?, 'not-a-time')`,
		broken.Hill.ID, broken.Red.ID, broken.Session.ID); err != nil {
		t.Fatal(err)
	}
	env.Clock.Advance(3 * time.Minute)

	n, err := env.Engine.SweepDominationSessions(env.Ctx)
	if err == nil || n != 1 {
		t.Fatalf("expected the expired session ended and an error for the broken one, got %d %v", n, err)
	}
	s, err := env.Engine.GetDominationSession(env.Ctx, expiring.Session.ID)
	if err != nil || s.Status != domain.SessionCompleted {
		t.Fatalf("expiring session should be COMPLETED, got %+v %v", s, err)
	}
}

func TestSessionTransitions(t *testing.T) {
	env := newTestEnv(t)
	f := newDomination(t, env, nil)
	_, err := env.Engine.PauseDominationSession(env.Ctx, f.Session.ID, "ref")
	expectCode(t, err, fault.CodeInvalidTransition)
	_, err = env.Engine.EndDominationSession(env.Ctx, f.Session.ID, "ref")
	expectCode(t, err, fault.CodeInvalidTransition)

	started, err := env.Engine.StartDominationSession(env.Ctx, f.Session.ID, "ref")
	if err != nil {
		t.Fatal(err)
	}
	env.Clock.Advance(time.Minute)
	if _, err := env.Engine.PauseDominationSession(env.Ctx, f.Session.ID, "ref"); err != nil {
		t.Fatal(err)
	}
	resumed, err := env.Engine.ResumeDominationSession(env.Ctx, f.Session.ID, "ref")
	if err != nil {
		t.Fatal(err)
	}
	if !resumed.StartedAt.Equal(*started.StartedAt) {
		t.Fatalf("resume must keep the original start time")
	}
	if _, err := env.Engine.EndDominationSession(env.Ctx, f.Session.ID, "ref"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.StartDominationSession(env.Ctx, f.Session.ID, "ref")
	expectCode(t, err, fault.CodeInvalidTransition)
	_, err = env.Engine.GetDominationSession(env.Ctx, "missing")
	expectCode(t, err, fault.CodeNotFound)
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestEnv(t)
	zero := 0
	_, err := env.Engine.CreateDominationSession(env.Ctx, engine.SessionCreateOptions{Name: "x", TickIntervalSec: &zero})
	expectCode(t, err, fault.CodeInvalidArgument)
	_, err = env.Engine.CreateDominationSession(env.Ctx, engine.SessionCreateOptions{Name: " "})
	expectCode(t, err, fault.CodeInvalidArgument)
	_, err = env.Engine.CreateDominationSession(env.Ctx, engine.SessionCreateOptions{Name: "x", OperationID: "missing"})
	expectCode(t, err, fault.CodeNotFound)
	s, err := env.Engine.CreateDominationSession(env.Ctx, engine.SessionCreateOptions{Name: "defaults"})
	if err != nil {
		t.Fatal(err)
	}
	if s.PointsPerTick != 1 || s.TickIntervalSec != 10 || s.Status != domain.SessionDraft {
		t.Fatalf("expected workspace defaults, got %+v", s)
	}
}
