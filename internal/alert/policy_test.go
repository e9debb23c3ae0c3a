package alert

import (
	"testing"
	"time"

	"github.com/watcherhq/watcher/internal/models"
)

func statusMonitor(mode models.AlertMode, reset models.ResetPolicy) *models.Monitor {
	return &models.Monitor{
		ID:          "m1",
		URL:         "https://example.com",
		AlertMode:   mode,
		ResetPolicy: reset,
		Config: models.ExtractionConfig{Fields: []models.FieldRule{
			{Name: "status", Selector: ".status", Kind: models.SelectorCSS, Normalize: models.NormalizeLower, Truthy: []string{"open"}},
		}},
	}
}

func statusSnap(m *models.Monitor, value string) *models.Snapshot {
	s := models.NewSnapshot(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	rule, _ := m.Config.Field("status")
	s.Set(rule, value)
	return s
}

// apply mimics the dispatcher's commit: state advances per the decision.
func apply(m *models.Monitor, next *models.Snapshot, d Decision) {
	m.CurrentState = next
	if d.Fire || d.AdvanceBaseline {
		m.LastAlertState = next
	}
}

func TestEvaluate_OnceFiresExactlyOncePerTransition(t *testing.T) {
	m := statusMonitor(models.AlertOnce, models.ResetManual)

	sequence := []struct {
		value    string
		wantFire bool
	}{
		{"closed", false}, // run 1: baseline, not truthy
		{"open", true},    // run 2: edge closed -> open fires
		{"closed", false}, // run 3: falling edge is silent
		{"open", false},   // run 4: manual reset policy, no re-fire
	}

	for i, step := range sequence {
		next := statusSnap(m, step.value)
		d := Evaluate(m, next)
		if d.Fire != step.wantFire {
			t.Fatalf("run %d (%s): Fire = %v, want %v", i+1, step.value, d.Fire, step.wantFire)
		}
		apply(m, next, d)
	}
}

func TestEvaluate_OnceRefiresAfterOnFalseyReset(t *testing.T) {
	m := statusMonitor(models.AlertOnce, models.ResetOnFalsey)

	sequence := []struct {
		value    string
		wantFire bool
	}{
		{"closed", false},
		{"open", true},    // first transition fires
		{"closed", false}, // falling edge re-arms the monitor
		{"open", true},    // second transition fires again
	}

	for i, step := range sequence {
		next := statusSnap(m, step.value)
		d := Evaluate(m, next)
		if d.Fire != step.wantFire {
			t.Fatalf("run %d (%s): Fire = %v, want %v", i+1, step.value, d.Fire, step.wantFire)
		}
		apply(m, next, d)
	}
}

func TestEvaluate_OnceReportsTriggeredFields(t *testing.T) {
	m := statusMonitor(models.AlertOnce, models.ResetManual)
	next := statusSnap(m, "open")

	d := Evaluate(m, next)
	if !d.Fire {
		t.Fatal("expected fire")
	}
	if len(d.Triggered) != 1 || d.Triggered[0] != "status" {
		t.Errorf("Triggered = %v, want [status]", d.Triggered)
	}
	if d.Diff.Empty() {
		t.Error("firing decision must carry a diff for the summary")
	}
}

func TestEvaluate_OnChangeComparesAgainstLastAlertState(t *testing.T) {
	m := statusMonitor(models.AlertOnChange, models.ResetManual)

	// Run 1 establishes the baseline silently.
	first := statusSnap(m, "closed")
	d := Evaluate(m, first)
	if d.Fire {
		t.Fatal("first extraction must not fire")
	}
	if !d.AdvanceBaseline {
		t.Fatal("first extraction must establish the baseline")
	}
	apply(m, first, d)

	// Run 2: page flaps open but the run is lost before commit — simulate a
	// suppressed intermediate extraction by only advancing current state.
	m.CurrentState = statusSnap(m, "open")

	// Run 3: back to closed. Relative to the baseline nothing changed.
	third := statusSnap(m, "closed")
	d = Evaluate(m, third)
	if d.Fire {
		t.Error("reverted change must not fire: baseline is still closed")
	}

	// Run 4: a real change fires.
	fourth := statusSnap(m, "open")
	d = Evaluate(m, fourth)
	if !d.Fire {
		t.Fatal("expected fire on real change vs baseline")
	}
	if len(d.Diff) != 1 || d.Diff[0].Old != "closed" || d.Diff[0].New != "open" {
		t.Errorf("unexpected diff: %+v", d.Diff)
	}
}

func TestEvaluate_OnChangeFiresOnFieldDisappearance(t *testing.T) {
	m := statusMonitor(models.AlertOnChange, models.ResetManual)

	first := statusSnap(m, "closed")
	apply(m, first, Evaluate(m, first))

	empty := models.NewSnapshot(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))
	d := Evaluate(m, empty)
	if !d.Fire {
		t.Fatal("field disappearance is a change and must fire")
	}
	if d.Diff[0].Kind != models.ChangeRemoved {
		t.Errorf("expected removed change, got %s", d.Diff[0].Kind)
	}
}

func TestEvaluate_FieldWithoutTruthySetNeverTriggersOnce(t *testing.T) {
	m := &models.Monitor{
		AlertMode:   models.AlertOnce,
		ResetPolicy: models.ResetManual,
		Config: models.ExtractionConfig{Fields: []models.FieldRule{
			{Name: "price", Selector: ".price", Kind: models.SelectorCSS, Normalize: models.NormalizeNumber},
		}},
	}

	s := models.NewSnapshot(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	rule, _ := m.Config.Field("price")
	s.Set(rule, "99")

	if d := Evaluate(m, s); d.Fire {
		t.Error("once mode must only fire on truthy transitions")
	}
}
