package schema

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func TestStats_Arithmetic(t *testing.T) {
	base := Stats{Forehand: 3, Backhand: 1, Serve: 2, Volley: 1, Footwork: 1, Mental: 5}
	delta := Stats{Forehand: 1, Serve: 3, Mental: 2}

	if got := base.Add(delta); got.Forehand != 4 || got.Serve != 5 || got.Mental != 7 || got.Backhand != 1 {
		t.Errorf("Add() = %+v", got)
	}
	if got := base.Sub(delta); got.Serve != -1 {
		t.Errorf("Sub() should not floor, got serve %d", got.Serve)
	}
	if got := base.SubFloor(delta, MinStat); got.Serve != 1 || got.Forehand != 2 || got.Mental != 3 {
		t.Errorf("SubFloor() = %+v", got)
	}
	if base.Total() != 13 {
		t.Errorf("Total() = %d, want 13", base.Total())
	}
}

func TestStats_GetSetCoverEveryKey(t *testing.T) {
	var s Stats
	for i, k := range StatKeys {
		s.Set(k, i+10)
	}
	for i, k := range StatKeys {
		if s.Get(k) != i+10 {
			t.Errorf("Get(%s) = %d, want %d", k, s.Get(k), i+10)
		}
	}
}

func TestParseStatKey(t *testing.T) {
	if k, err := ParseStatKey("volley"); err != nil || k != StatVolley {
		t.Errorf("ParseStatKey(volley) = %q, %v", k, err)
	}
	if _, err := ParseStatKey("smash"); err == nil {
		t.Error("ParseStatKey(smash) should fail")
	}
}

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Profile)
		errMsg string
	}{
		{name: "default is valid", mutate: func(p *Profile) {}},
		{name: "level zero", mutate: func(p *Profile) { p.Level = 0 }, errMsg: "level"},
		{name: "exp at max", mutate: func(p *Profile) { p.Exp = MaxExp }, errMsg: "exp"},
		{name: "stat below floor", mutate: func(p *Profile) { p.Stats.Volley = 0 }, errMsg: "volley"},
		{name: "bad color", mutate: func(p *Profile) { p.GearColor = "teal" }, errMsg: "gear color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProfile()
			tt.mutate(&p)
			err := p.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestDocument_JSONShape(t *testing.T) {
	doc := DefaultDocument("v1.2.0")
	doc.ProfileName = "jin"
	doc.Logs = append(doc.Logs, validLog())

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	for _, key := range []string{"schemaVersion", "level", "exp", "stats", "gearColor", "profileName", "onboardingComplete", "logs"} {
		if _, ok := flat[key]; !ok {
			t.Errorf("document JSON missing top-level %q: %s", key, data)
		}
	}

	var back Document
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal(Document) failed: %v", err)
	}
	if back.ProfileName != "jin" || len(back.Logs) != 1 || back.Logs[0].ID != "log-1" {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestDocument_SetDefaults(t *testing.T) {
	doc := &Document{}
	doc.SetDefaults()

	if doc.Level != 1 || doc.GearColor != DefaultGearColor || doc.Logs == nil {
		t.Errorf("SetDefaults() = %+v", doc)
	}
	if doc.Stats != DefaultStats() {
		t.Errorf("Stats = %+v, want defaults", doc.Stats)
	}
}

func TestDocument_ValidateDuplicateIDs(t *testing.T) {
	doc := DefaultDocument("v1.2.0")
	doc.Logs = []TrainingLog{validLog(), validLog()}
	if err := doc.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate id") {
		t.Errorf("Validate() = %v, want duplicate id error", err)
	}
}

func TestDocument_CloneAndFind(t *testing.T) {
	doc := DefaultDocument("v1.2.0")
	doc.Logs = []TrainingLog{validLog()}

	c := doc.Clone()
	c.Logs[0].Note = "edited"
	if doc.Logs[0].Note != "" {
		t.Error("Clone() shares logs")
	}
	if doc.FindLog("log-1") != 0 || doc.FindLog("missing") != -1 {
		t.Error("FindLog() returned wrong index")
	}
}
