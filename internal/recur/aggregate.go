package recur

import (
	"errors"
	"fmt"
	"slices"
	"time"

	appLog "zoocal/internal/log"
	"zoocal/internal/model"
)

// ExpandConfig controls how a set of definitions is expanded.
type ExpandConfig struct {
	// From / To define the inclusive window for instances.
	From time.Time
	To   time.Time

	// MaxInstancesPerEvent is a safety cap per definition. Zero means no cap.
	MaxInstancesPerEvent int

	// Steps overrides the unit table. If nil, DefaultStepTable is used.
	Steps *StepTable
}

// ExpandResult wraps the sorted instances and the ids of definitions that hit
// MaxInstancesPerEvent.
type ExpandResult struct {
	Instances    []model.EventInstance
	TruncatedIDs []string
}

// ExpandAll expands every definition over [from, to] and returns all
// instances sorted by start time. Instances that start at the same moment
// keep definition order, then generation order.
func ExpandAll(defs []model.EventDefinition, from, to time.Time) ([]model.EventInstance, error) {
	res, err := ExpandOccurrences(defs, ExpandConfig{From: from, To: to})
	if err != nil {
		return nil, err
	}
	return res.Instances, nil
}

// ExpandOccurrences is ExpandAll with a configurable cap and step table. The
// first invalid definition aborts the whole call; its id is part of the
// error.
func ExpandOccurrences(defs []model.EventDefinition, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	e := NewExpander(WithStepTable(cfg.Steps), WithMaxInstancesPerEvent(cfg.MaxInstancesPerEvent))

	all := make([]model.EventInstance, 0)
	for _, def := range defs {
		inst, truncated, err := e.expand(def, cfg.From, cfg.To)
		if err != nil {
			return ExpandResult{}, fmt.Errorf("expand %q: %w", def.ID, err)
		}
		if truncated {
			result.TruncatedIDs = append(result.TruncatedIDs, def.ID)
			appLog.Error("expand: truncated instances for definition due to cap",
				errors.New("max instances reached"),
				"id", def.ID,
				"cap", cfg.MaxInstancesPerEvent,
			)
		}
		all = append(all, inst...)
	}

	slices.SortStableFunc(all, func(a, b model.EventInstance) int {
		return a.StartDate.Compare(b.StartDate)
	})

	result.Instances = all
	return result, nil
}
