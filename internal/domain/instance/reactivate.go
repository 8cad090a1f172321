package instance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskwidgets/internal/infrastructure/logging"
	"github.com/GriffinCanCode/deskwidgets/internal/shared/types"
)

// Outcome classifies the restore of one persisted pin
type Outcome string

const (
	// OutcomeRestored means the window is back on the desktop.
	OutcomeRestored Outcome = "restored"
	// OutcomeHeld means the instance is restored but hidden until its
	// missing scopes are granted.
	OutcomeHeld Outcome = "held"
	// OutcomeSkipped means the key was already live.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the key could not be restored.
	OutcomeFailed Outcome = "failed"
)

// Result is the outcome for one key
type Result struct {
	Key     Key
	Outcome Outcome
	Err     error
}

// Report summarizes a reactivation pass
type Report struct {
	Results []Result
	// Err is set when the pass stopped early because ctx was done
	Err error
}

// Count returns how many keys ended with outcome o
func (r Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// ReactivatePinned restores every persisted pin. Widget types are walked in
// identity order and keys are restored one at a time. Permission is checked
// before an instance is shown; a failure on one key never stops the rest.
func (m *Manager) ReactivatePinned(ctx context.Context) Report {
	var report Report

	for _, meta := range m.catalog.All() {
		keys, err := m.pins.PinnedKeys(meta)
		if err != nil {
			m.log.Warn("pinned keys unreadable", logging.Widget(meta.ID), zap.Error(err))
			report.Results = append(report.Results, Result{Key: Key{Widget: meta.ID}, Outcome: OutcomeFailed, Err: err})
			m.metrics.RecordReactivation(string(OutcomeFailed))
		}

		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				report.Err = err
				m.refreshMetrics()
				return report
			}

			res := m.reactivate(ctx, meta, key)
			report.Results = append(report.Results, res)
			m.metrics.RecordReactivation(string(res.Outcome))

			if res.Err != nil {
				m.log.Warn("reactivation failed", zap.Stringer("key", key), zap.Error(res.Err))
			} else {
				m.log.Debug("reactivated", zap.Stringer("key", key), zap.String("outcome", string(res.Outcome)))
			}
		}
	}

	m.refreshMetrics()
	m.log.Info("reactivation complete",
		zap.Int("restored", report.Count(OutcomeRestored)),
		zap.Int("held", report.Count(OutcomeHeld)),
		zap.Int("failed", report.Count(OutcomeFailed)))
	return report
}

func (m *Manager) reactivate(ctx context.Context, meta types.WidgetMetadata, key Key) (res Result) {
	res.Key = key
	var inst *Instance
	defer func() {
		if r := recover(); r != nil {
			if inst != nil {
				m.drop(key, inst, false)
			}
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("reactivate %s panicked: %v", key, r)
		}
	}()

	release, err := m.locks.Lock(ctx, key)
	if err != nil {
		return Result{Key: key, Outcome: OutcomeFailed, Err: err}
	}
	defer release()

	layout := m.loadLayout(key)
	missing := m.policy.missing(meta)

	m.mu.Lock()
	if existing, ok := m.instances[key]; ok && existing.Pinned() {
		m.mu.Unlock()
		res.Outcome = OutcomeSkipped
		return res
	}
	inst = newInstance(key, meta, types.StatePinned, layout)
	inst.pin(layout)
	inst.setMissing(missing)
	if len(missing) > 0 {
		inst.hold()
	}
	m.instances[key] = inst
	m.mu.Unlock()

	if len(missing) > 0 {
		m.log.Info("pinned widget held until granted",
			zap.Stringer("key", key), zap.Int("missing_scopes", len(missing)))
		res.Outcome = OutcomeHeld
		return res
	}

	if err := m.show(ctx, inst); err != nil {
		m.drop(key, inst, false)
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	res.Outcome = OutcomeRestored
	return res
}
