package objective

import (
	"encoding/json"
	"reflect"
	"testing"

	"fieldops/internal/domain"
	"fieldops/internal/fault"
)

func TestParseValidConfigs(t *testing.T) {
	cases := map[domain.ObjectiveType]string{
		domain.ObjectivePhysicalCode:    `{"secretCode":"1234","maxAttempts":3}`,
		domain.ObjectiveQRSimple:        ``,
		domain.ObjectiveQREnigma:        `{"riddle":"What walks on four legs?","answer":"man"}`,
		domain.ObjectiveVIPElimination:  `{"secretInfo":"the convoy leaves at dawn"}`,
		domain.ObjectiveTimedSabotage:   `{"delayMinutes":5}`,
		domain.ObjectiveGPSCapture:      `{"latitude":0,"longitude":0,"radiusMeters":100,"durationMinutes":2}`,
		domain.ObjectivePointDefense:    `{"defenseRules":"hold the bridge","radiusMeters":30,"durationMinutes":10}`,
		domain.ObjectiveExtraction:      `{"radiusMeters":25,"holdMinutes":3}`,
		domain.ObjectiveItemCollection:  `{"itemsRequired":2,"items":["Radio","Map","Flare"]}`,
		domain.ObjectiveMultiStepEnigma: `{"stepsCount":2,"enigmas":"a?|1\nb?|2\nc?|3"}`,
		domain.ObjectiveMorseRadio:      `{"message":"SOS"}`,
		domain.ObjectiveTimeRace:        `{"timeLimitMinutes":20,"checkpointsCount":4}`,
		domain.ObjectiveConditional:     `{"requiredObjectiveIds":["a","b"],"requireAll":false}`,
		domain.ObjectiveAntennaHack:     `{"hackDurationMinutes":4}`,
		domain.ObjectiveRandomPool:      `{"poolObjectiveIds":["a","b","c"],"selectCount":2}`,
		domain.ObjectiveLiveEvent:       `{"eventName":"airdrop"}`,
	}
	if len(cases) != len(domain.ObjectiveTypes) {
		t.Fatalf("expected a case per objective type, got %d", len(cases))
	}
	for typ, raw := range cases {
		cfg, err := Parse(typ, json.RawMessage(raw))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", typ, err)
			continue
		}
		if cfg.Type() != typ {
			t.Errorf("%s: parsed as %s", typ, cfg.Type())
		}
	}
}

func TestParseInvalidConfigs(t *testing.T) {
	cases := []struct {
		typ   domain.ObjectiveType
		raw   string
		field string
	}{
		{domain.ObjectivePhysicalCode, `{}`, "secretCode"},
		{domain.ObjectivePhysicalCode, `{"secretCode":"  "}`, "secretCode"},
		{domain.ObjectivePhysicalCode, `{"secretCode":42}`, "secretCode"},
		{domain.ObjectivePhysicalCode, `{"secretCode":"x","maxAttempts":-1}`, "maxAttempts"},
		{domain.ObjectiveGPSCapture, `{"longitude":0,"radiusMeters":10,"durationMinutes":1}`, "latitude"},
		{domain.ObjectiveGPSCapture, `{"latitude":0,"longitude":0,"radiusMeters":0.5,"durationMinutes":1}`, "radiusMeters"},
		{domain.ObjectiveGPSCapture, `{"latitude":0,"longitude":0,"radiusMeters":10,"durationMinutes":0}`, "durationMinutes"},
		{domain.ObjectiveGPSCapture, `{"latitude":95,"longitude":0,"radiusMeters":10,"durationMinutes":1}`, "latitude"},
		{domain.ObjectiveConditional, `{"requiredObjectiveIds":[],"requireAll":true}`, "requiredObjectiveIds"},
		{domain.ObjectiveConditional, `{"requiredObjectiveIds":["a"]}`, "requireAll"},
		{domain.ObjectiveMultiStepEnigma, `{"stepsCount":3,"enigmas":"a|1\nb|2"}`, "enigmas"},
		{domain.ObjectiveMultiStepEnigma, `{"stepsCount":1,"enigmas":"no separator"}`, "enigmas"},
		{domain.ObjectiveItemCollection, `{"itemsRequired":3,"items":["a","b"]}`, "items"},
		{domain.ObjectiveItemCollection, `{"itemsRequired":1,"items":["a","A "]}`, "items"},
		{domain.ObjectiveRandomPool, `{"poolObjectiveIds":["a"],"selectCount":2}`, "selectCount"},
		{domain.ObjectiveType("CAPTURE_THE_FLAG"), `{}`, "type"},
	}
	for _, tc := range cases {
		_, err := Parse(tc.typ, json.RawMessage(tc.raw))
		if !fault.Has(err, fault.CodeInvalidConfig) {
			t.Errorf("%s %s: expected invalid config, got %v", tc.typ, tc.raw, err)
			continue
		}
		if got := fault.MetadataOf(err)["field"]; got != tc.field {
			t.Errorf("%s %s: field = %v, want %s", tc.typ, tc.raw, got, tc.field)
		}
	}
}

func TestParseReturnsTypedVariant(t *testing.T) {
	cfg, err := Parse(domain.ObjectiveGPSCapture, json.RawMessage(`{"latitude":1.5,"longitude":2.5,"radiusMeters":50,"durationMinutes":3}`))
	if err != nil {
		t.Fatal(err)
	}
	gps, ok := cfg.(*GPSCapture)
	if !ok {
		t.Fatalf("expected *GPSCapture, got %T", cfg)
	}
	if *gps.Latitude != 1.5 || gps.RadiusMeters != 50 || gps.DurationMinutes != 3 {
		t.Fatalf("unexpected config %+v", gps)
	}
}

func TestParseEnigmas(t *testing.T) {
	steps, err := ParseEnigmas("  First? | one \n\nSecond?|two|with pipe\n")
	if err != nil {
		t.Fatal(err)
	}
	want := []Enigma{{Question: "First?", Answer: "one"}, {Question: "Second?", Answer: "two|with pipe"}}
	if !reflect.DeepEqual(steps, want) {
		t.Fatalf("steps = %+v", steps)
	}
	cfg := &MultiStepEnigma{StepsCount: 1, Enigmas: "a|1\nb|2"}
	if got := cfg.Steps(); len(got) != 1 || got[0].Answer != "1" {
		t.Fatalf("steps should be truncated to stepsCount, got %+v", got)
	}
}

func TestMatchAnswer(t *testing.T) {
	if !MatchAnswer("Sphinx", "  sphinx ", false) {
		t.Fatalf("case-insensitive match failed")
	}
	if MatchAnswer("Sphinx", "sphinx", true) {
		t.Fatalf("case-sensitive match should fail")
	}
}

func TestItemCollectionAllows(t *testing.T) {
	cfg := &ItemCollection{ItemsRequired: 1, Items: []string{"Signal  Flare"}}
	if !cfg.Allows("signal flare") {
		t.Fatalf("normalized names should match")
	}
	if cfg.Allows("radio") {
		t.Fatalf("unlisted item should be rejected")
	}
	if !(&ItemCollection{ItemsRequired: 1}).Allows("anything") {
		t.Fatalf("open collection should allow any item")
	}
}

func TestSelectPoolDeterministic(t *testing.T) {
	pool := []string{"e", "a", "d", "b", "c"}
	first := SelectPool(pool, 2, "obj|team-1")
	second := SelectPool([]string{"a", "b", "c", "d", "e"}, 2, "obj|team-1")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("selection depends on pool order: %v vs %v", first, second)
	}
	if len(first) != 2 || first[0] == first[1] {
		t.Fatalf("unexpected selection %v", first)
	}
	if all := SelectPool(pool, 9, "k"); len(all) != 5 {
		t.Fatalf("oversized draw should return whole pool, got %v", all)
	}
}
