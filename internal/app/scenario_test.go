package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"fieldops/internal/config"
	"fieldops/internal/domain"
)

const sampleScenario = `
operation:
  id: night-raid
  name: Night raid
  status: ACTIVE
teams:
  - id: alpha
    name: Alpha
  - id: bravo
    name: Bravo
    invitation: PENDING
objectives:
  # listed before the objectives it depends on
  - id: finale
    type: CONDITIONAL
    name: Finale
    points: 500
    config:
      requiredObjectiveIds: [gate, vault]
      requireAll: true
  - id: vault
    type: PHYSICAL_CODE
    name: Vault
    parent: gate
    config:
      secretCode: "4471"
      maxAttempts: 3
  - id: gate
    type: QR_SIMPLE
    name: Gate
    points: 25
domination:
  - id: hill-game
    name: Hill game
    points_per_tick: 2
    tick_interval_sec: 30
    duration_minutes: 45
    start: true
    teams:
      - {id: red, name: Red, color: "#ff0000"}
      - {id: blue, name: Blue}
    points:
      - {id: hill, name: Hill, qr_token: qr-hill, lat: 48.85, lon: 2.35}
`

func openTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	w, err := OpenWorkspace(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestImportScenarioPlaysThroughEngine(t *testing.T) {
	w := openTestWorkspace(t)
	e := w.Engine(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	s, err := ParseScenario([]byte(sampleScenario))
	if err != nil {
		t.Fatal(err)
	}
	res, err := Import(ctx, e, s, "designer")
	if err != nil {
		t.Fatal(err)
	}
	if res.Operation.Status != domain.OperationActive || len(res.Teams) != 2 || len(res.Objectives) != 3 {
		t.Fatalf("unexpected import result %+v", res)
	}
	if res.Objectives[0].ID != "gate" || res.Objectives[2].ID != "finale" {
		t.Fatalf("objectives should be created in dependency order: %v, %v, %v",
			res.Objectives[0].ID, res.Objectives[1].ID, res.Objectives[2].ID)
	}
	if res.Objectives[1].Points != config.Default().Objectives.DefaultPoints {
		t.Fatalf("vault should use the default points, got %d", res.Objectives[1].Points)
	}
	if len(res.Sessions) != 1 || res.Sessions[0].Status != domain.SessionActive || len(res.Points) != 1 {
		t.Fatalf("unexpected sessions %+v", res.Sessions)
	}

	if _, err := e.ScanQRSimple(ctx, "gate", "alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitCode(ctx, "vault", "alpha", "4471"); err != nil {
		t.Fatal(err)
	}
	cond, err := e.EvaluateConditional(ctx, "finale", "alpha")
	if err != nil || !cond.Completed || cond.Points != 500 {
		t.Fatalf("finale should complete: %+v %v", cond, err)
	}
	if _, err := e.ScanQRSimple(ctx, "gate", "bravo"); err == nil {
		t.Fatal("pending team should be rejected")
	}
	if _, err := e.CaptureDominationPoint(ctx, "qr-hill", "red", ""); err != nil {
		t.Fatal(err)
	}
}

func TestScenarioValidation(t *testing.T) {
	cases := map[string]string{
		"missing operation": `objectives: []`,
		"cycle": `
operation: {id: op}
objectives:
  - {id: a, type: QR_SIMPLE, name: A, parent: b}
  - {id: b, type: QR_SIMPLE, name: B, parent: a}
`,
		"bad config": `
operation: {id: op}
objectives:
  - {id: a, type: PHYSICAL_CODE, name: A}
`,
		"duplicate objective": `
operation: {id: op}
objectives:
  - {id: a, type: QR_SIMPLE, name: A}
  - {id: a, type: QR_SIMPLE, name: A}
`,
		"bad status": `operation: {id: op, status: RUNNING}`,
	}
	for name, doc := range cases {
		if _, err := ParseScenario([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	_, err := ParseScenario([]byte(`
operation: {id: op}
objectives:
  - {id: a, type: SNIPER_NEST, name: A}
`))
	if err == nil || !strings.Contains(err.Error(), `unknown type "SNIPER_NEST"`) {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestInitWorkspaceWritesConfigOnce(t *testing.T) {
	dir := t.TempDir()
	res, err := InitWorkspace(dir, false)
	if err != nil || !res.ConfigWritten {
		t.Fatalf("first init: %+v %v", res, err)
	}
	if res.SchemaVersion < 1 || !strings.HasSuffix(res.DBPath, "fieldops.db") {
		t.Fatalf("unexpected init result %+v", res)
	}
	if err := os.WriteFile(config.Path(dir), []byte("objectives:\n  default_points: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err = InitWorkspace(dir, false)
	if err != nil || res.ConfigWritten {
		t.Fatalf("second init should keep the file: %+v %v", res, err)
	}
	w, err := OpenWorkspace(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if w.Config.Objectives.DefaultPoints != 7 {
		t.Fatalf("expected edited config, got %d", w.Config.Objectives.DefaultPoints)
	}
}

func TestOpenWorkspaceRefusesNewerSchema(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWorkspace(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.DB.Exec(`UPDATE schema_version SET version = 999`); err != nil {
		t.Fatal(err)
	}
	w.Close()
	if _, err := OpenWorkspace(dir); err == nil || !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("expected newer schema error, got %v", err)
	}
}

func TestResolveOperation(t *testing.T) {
	w := openTestWorkspace(t)
	e := w.Engine(nil)
	ctx := context.Background()
	if _, err := ResolveOperation(ctx, e.Repo, ""); err == nil || !strings.Contains(err.Error(), "no operation") {
		t.Fatalf("expected no operation error, got %v", err)
	}
	if _, err := e.CreateOperation(ctx, "op-1", "One", "designer"); err != nil {
		t.Fatal(err)
	}
	op, err := ResolveOperation(ctx, e.Repo, "")
	if err != nil || op.ID != "op-1" {
		t.Fatalf("expected op-1, got %+v %v", op, err)
	}
	if _, err := e.CreateOperation(ctx, "op-2", "Two", "designer"); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveOperation(ctx, e.Repo, ""); err == nil {
		t.Fatal("expected ambiguity error")
	}
	if op, err := ResolveOperation(ctx, e.Repo, "op-2"); err != nil || op.ID != "op-2" {
		t.Fatalf("override: %+v %v", op, err)
	}
}
