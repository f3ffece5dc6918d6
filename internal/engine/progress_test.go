package engine_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"fieldops/internal/domain"
	"fieldops/internal/engine"
	"fieldops/internal/events"
	"fieldops/internal/fault"
	"fieldops/internal/repo"
)

func TestItemCollection(t *testing.T) {
	env := newTestEnv(t)
	o := env.objective(t, domain.ObjectiveItemCollection, `{"itemsRequired":3,"items":["Map","Radio","Key","Flare"]}`)

	_, err := env.Engine.CollectItem(env.Ctx, o.ID, teamA, "  ")
	expectCode(t, err, fault.CodeInvalidItem)
	_, err = env.Engine.CollectItem(env.Ctx, o.ID, teamA, "Compass")
	expectCode(t, err, fault.CodeInvalidItem)

	res, err := env.Engine.CollectItem(env.Ctx, o.ID, teamA, "map")
	if err != nil || res.Completed || len(res.Collected) != 1 {
		t.Fatalf("first item: %+v %v", res, err)
	}
	_, err = env.Engine.CollectItem(env.Ctx, o.ID, teamA, " MAP ")
	expectCode(t, err, fault.CodeAlreadyCollected)
	if _, err := env.Engine.CollectItem(env.Ctx, o.ID, teamA, "Radio"); err != nil {
		t.Fatal(err)
	}
	res, err = env.Engine.CollectItem(env.Ctx, o.ID, teamA, "Key")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Completed || res.Points != 100 || len(res.Collected) != 3 {
		t.Fatalf("expected completion on the third item, got %+v", res)
	}
	_, err = env.Engine.CollectItem(env.Ctx, o.ID, teamA, "Flare")
	expectCode(t, err, fault.CodeAlreadyCompleted)
}

func TestMultiStepEnigmaAdvancesOneStepAtATime(t *testing.T) {
	env := newTestEnv(t)
	cfg, _ := json.Marshal(map[string]any{
		"stepsCount": 3,
		"enigmas":    "First letter?|A\nCapital of France?|Paris\nTwo plus two?|4",
	})
	o := env.objective(t, domain.ObjectiveMultiStepEnigma, string(cfg))

	step, err := env.Engine.CurrentStep(env.Ctx, o.ID, teamA)
	if err != nil || step.Step != 1 || step.TotalSteps != 3 || step.Question != "First letter?" {
		t.Fatalf("unexpected first step %+v %v", step, err)
	}
	// the answer to step 2 does not count at step 1
	_, err = env.Engine.SubmitStepAnswer(env.Ctx, o.ID, teamA, "Paris")
	expectCode(t, err, fault.CodeWrongAnswer)
	if s := fault.MetadataOf(err)["step"]; s != 1 {
		t.Fatalf("expected failure at step 1, got %v", s)
	}

	step, err = env.Engine.SubmitStepAnswer(env.Ctx, o.ID, teamA, "a")
	if err != nil || step.Step != 2 || step.Points != 0 || step.Completed {
		t.Fatalf("after step 1: %+v %v", step, err)
	}
	step, err = env.Engine.SubmitStepAnswer(env.Ctx, o.ID, teamA, "paris")
	if err != nil || step.Step != 3 || step.Points != 0 {
		t.Fatalf("after step 2: %+v %v", step, err)
	}
	step, err = env.Engine.SubmitStepAnswer(env.Ctx, o.ID, teamA, "4")
	if err != nil || !step.Completed || step.Points != 100 {
		t.Fatalf("after step 3: %+v %v", step, err)
	}
	step, err = env.Engine.CurrentStep(env.Ctx, o.ID, teamA)
	if err != nil || !step.Completed {
		t.Fatalf("completed enigma should report completion: %+v %v", step, err)
	}
}

func TestTimeRaceOrderAndExpiry(t *testing.T) {
	env := newTestEnv(t)
	o := env.objective(t, domain.ObjectiveTimeRace, `{"timeLimitMinutes":10,"checkpointsCount":3}`)

	_, err := env.Engine.ValidateCheckpoint(env.Ctx, o.ID, teamA, 1)
	expectCode(t, err, fault.CodeNotStarted)

	st, err := env.Engine.StartTimeRace(env.Ctx, o.ID, teamA)
	if err != nil || st.RemainingSeconds != 600 || st.Total != 3 {
		t.Fatalf("unexpected race start %+v %v", st, err)
	}
	env.Clock.Advance(time.Minute)
	if _, err := env.Engine.ValidateCheckpoint(env.Ctx, o.ID, teamA, 1); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.ValidateCheckpoint(env.Ctx, o.ID, teamA, 3)
	expectCode(t, err, fault.CodeInvalidCheckpoint)
	meta := fault.MetadataOf(err)
	if meta["expected"] != 2 || meta["got"] != 3 {
		t.Fatalf("unexpected checkpoint metadata %v", meta)
	}

	env.Clock.Advance(10 * time.Minute)
	_, err = env.Engine.ValidateCheckpoint(env.Ctx, o.ID, teamA, 2)
	expectCode(t, err, fault.CodeTimeExpired)
	last, err := env.Engine.Repo.LatestTimedAction(env.Ctx, nil, o.ID, teamA)
	if err != nil || last.Status != domain.TimedExpired {
		t.Fatalf("race should be EXPIRED, got %+v %v", last, err)
	}

	// a fresh race starts from checkpoint 1
	env.Clock.Advance(time.Second)
	if _, err := env.Engine.StartTimeRace(env.Ctx, o.ID, teamA); err != nil {
		t.Fatal(err)
	}
	env.Clock.Advance(time.Second)
	_, err = env.Engine.ValidateCheckpoint(env.Ctx, o.ID, teamA, 2)
	expectCode(t, err, fault.CodeInvalidCheckpoint)
	for n := 1; n <= 3; n++ {
		env.Clock.Advance(time.Second)
		st, err = env.Engine.ValidateCheckpoint(env.Ctx, o.ID, teamA, n)
		if err != nil {
			t.Fatalf("checkpoint %d: %v", n, err)
		}
	}
	if !st.Completed || st.Points != 100 || st.Validated != 3 {
		t.Fatalf("expected completed race, got %+v", st)
	}
}

func TestTimeRaceRestartsAfterLapsedDeadline(t *testing.T) {
	env := newTestEnv(t)
	o := env.objective(t, domain.ObjectiveTimeRace, `{"timeLimitMinutes":5,"checkpointsCount":2}`)

	first, err := env.Engine.StartTimeRace(env.Ctx, o.ID, teamA)
	if err != nil {
		t.Fatal(err)
	}
	env.Clock.Advance(time.Minute)
	_, err = env.Engine.StartTimeRace(env.Ctx, o.ID, teamA)
	expectCode(t, err, fault.CodeAlreadyInProgress)

	env.Clock.Advance(10 * time.Minute)
	second, err := env.Engine.StartTimeRace(env.Ctx, o.ID, teamA)
	if err != nil {
		t.Fatalf("restart after lapsed deadline: %v", err)
	}
	if second.ActionID == first.ActionID || second.RemainingSeconds != 300 {
		t.Fatalf("expected a fresh race, got %+v", second)
	}
	expired, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, 0, repo.EventFilter{Type: events.TimedActionExpired, EntityID: first.ActionID})
	if err != nil || len(expired) != 1 {
		t.Fatalf("lapsed race should be logged as expired, got %d events %v", len(expired), err)
	}
}

func TestParseCheckpoint(t *testing.T) {
	if n, err := engine.ParseCheckpoint(" 4 "); err != nil || n != 4 {
		t.Fatalf("expected 4, got %d %v", n, err)
	}
	for _, in := range []string{"", "zero", "0", "-1"} {
		if _, err := engine.ParseCheckpoint(in); !fault.Has(err, fault.CodeInvalidArgument) {
			t.Fatalf("%q: expected invalid argument, got %v", in, err)
		}
	}
}

func TestConditionalAllAndAny(t *testing.T) {
	env := newTestEnv(t)
	a := env.objective(t, domain.ObjectiveQRSimple, `{}`)
	b := env.objective(t, domain.ObjectiveQRSimple, `{}`)
	all := env.objective(t, domain.ObjectiveConditional, fmt.Sprintf(`{"requiredObjectiveIds":[%q,%q],"requireAll":true}`, a.ID, b.ID))
	either := env.objective(t, domain.ObjectiveConditional, fmt.Sprintf(`{"requiredObjectiveIds":[%q,%q],"requireAll":false}`, a.ID, b.ID))

	res, err := env.Engine.EvaluateConditional(env.Ctx, either.ID, teamA)
	if err != nil || res.Met || res.Completed {
		t.Fatalf("nothing done yet: %+v %v", res, err)
	}
	if _, err := env.Engine.ScanQRSimple(env.Ctx, a.ID, teamA); err != nil {
		t.Fatal(err)
	}
	res, err = env.Engine.EvaluateConditional(env.Ctx, all.ID, teamA)
	if err != nil || res.Met || len(res.Done) != 1 {
		t.Fatalf("require all with one done: %+v %v", res, err)
	}
	res, err = env.Engine.EvaluateConditional(env.Ctx, either.ID, teamA)
	if err != nil || !res.Met || !res.Completed {
		t.Fatalf("require any with one done: %+v %v", res, err)
	}
	if _, err := env.Engine.ScanQRSimple(env.Ctx, b.ID, teamA); err != nil {
		t.Fatal(err)
	}
	res, err = env.Engine.EvaluateConditional(env.Ctx, all.ID, teamA)
	if err != nil || !res.Completed || res.Points != 100 {
		t.Fatalf("require all with both done: %+v %v", res, err)
	}
	// completions of another team do not count
	res, err = env.Engine.EvaluateConditional(env.Ctx, all.ID, teamB)
	if err != nil || res.Met {
		t.Fatalf("team b has nothing done: %+v %v", res, err)
	}
}

func TestRandomPoolDrawIsStable(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, env.objective(t, domain.ObjectiveQRSimple, `{}`).ID)
	}
	cfg, _ := json.Marshal(map[string]any{"poolObjectiveIds": ids, "selectCount": 2})
	pool := env.objective(t, domain.ObjectiveRandomPool, string(cfg))

	first, err := env.Engine.DrawRandomPool(env.Ctx, pool.ID, teamA)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Selected) != 2 || first.Completed {
		t.Fatalf("unexpected draw %+v", first)
	}
	again, err := env.Engine.DrawRandomPool(env.Ctx, pool.ID, teamA)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(first.Selected) != fmt.Sprint(again.Selected) {
		t.Fatalf("draw changed between calls: %v vs %v", first.Selected, again.Selected)
	}
	for _, id := range first.Selected {
		if _, err := env.Engine.ScanQRSimple(env.Ctx, id, teamA); err != nil {
			t.Fatal(err)
		}
	}
	res, err := env.Engine.DrawRandomPool(env.Ctx, pool.ID, teamA)
	if err != nil || !res.Completed || len(res.Done) != 2 {
		t.Fatalf("expected pool completion, got %+v %v", res, err)
	}
}
