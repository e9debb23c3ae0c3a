// Package alert decides whether a freshly extracted snapshot should fire an
// alert for a monitor. Decisions are made against the snapshot recorded at
// the time of the last alert, never against the immediately previous
// extraction: the current state advances on every successful run, but the
// alert baseline only moves when an alert actually fires (or is explicitly
// reset), so suppressed no-op runs cannot mask an eventual real change.
package alert

import (
	"github.com/watcherhq/watcher/internal/detector"
	"github.com/watcherhq/watcher/internal/models"
)

// Decision is the outcome of evaluating one extraction against a monitor.
type Decision struct {
	// Fire indicates an alert fires and a feed item must be published.
	Fire bool

	// Diff is the change set relative to the alert baseline. Populated
	// whenever Fire is true; used for the summary and the feed item body.
	Diff models.Diff

	// Triggered lists the fields whose truthy transition caused a "once"
	// mode alert.
	Triggered []string

	// AdvanceBaseline requests that last_alert_state advance to the current
	// snapshot without publishing: used to establish the initial baseline
	// for on_change monitors and to re-arm once monitors under the
	// on_falsey reset policy.
	AdvanceBaseline bool
}

// Evaluate applies the monitor's alert mode to the new snapshot. It is pure;
// persisting the outcome is the dispatcher's job.
func Evaluate(m *models.Monitor, next *models.Snapshot) Decision {
	switch m.AlertMode {
	case models.AlertOnce:
		return evaluateOnce(m, next)
	default:
		return evaluateOnChange(m, next)
	}
}

// evaluateOnce fires on the edge: a configured field is truthy now and was
// not truthy in the baseline. A field that was already truthy at the last
// alert stays silent until the baseline is reset.
func evaluateOnce(m *models.Monitor, next *models.Snapshot) Decision {
	var triggered []string
	anyTruthyNow := false

	for _, rule := range m.Config.Fields {
		if len(rule.Truthy) == 0 {
			continue
		}
		if next.IsTruthy(rule.Name) {
			anyTruthyNow = true
			if !m.LastAlertState.IsTruthy(rule.Name) {
				triggered = append(triggered, rule.Name)
			}
		}
	}

	if len(triggered) > 0 {
		return Decision{
			Fire:      true,
			Diff:      detector.Detect(m.LastAlertState, next),
			Triggered: triggered,
		}
	}

	// on_falsey re-arms the monitor once every baseline-truthy field has
	// left its truthy set, so the next transition fires again.
	if m.ResetPolicy == models.ResetOnFalsey && !anyTruthyNow && baselineHasTruthy(m) {
		return Decision{AdvanceBaseline: true}
	}

	return Decision{}
}

// evaluateOnChange fires whenever the snapshot differs from the alert
// baseline. The first successful extraction establishes the baseline
// silently instead of alerting on a monitor that has not changed yet.
func evaluateOnChange(m *models.Monitor, next *models.Snapshot) Decision {
	if m.LastAlertState == nil {
		return Decision{AdvanceBaseline: true}
	}

	diff := detector.Detect(m.LastAlertState, next)
	if diff.Empty() {
		return Decision{}
	}

	return Decision{Fire: true, Diff: diff}
}

func baselineHasTruthy(m *models.Monitor) bool {
	if m.LastAlertState == nil {
		return false
	}
	for _, truthy := range m.LastAlertState.Truthy {
		if truthy {
			return true
		}
	}
	return false
}
