package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"zoocal/internal/dataset"
	"zoocal/internal/ics"
	appLog "zoocal/internal/log"
	"zoocal/internal/model"
	"zoocal/internal/recur"
)

const defaultWindow = 7 * 24 * time.Hour

// errBadWindow marks a client error in the from/to parameters.
var errBadWindow = errors.New("bad window")

// handleEvents returns every event instance overlapping the requested
// window, sorted by start.
//
// GET /events?from=2023-01-01&to=2023-01-22
//   - from: RFC3339, YYYY-MM-DD (local midnight) or epoch ms; default now
//   - to:   same formats; default from + 7 days
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	instances, ok := s.expandRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

// handleEventsICS is handleEvents rendered as an iCalendar feed.
func (s *Server) handleEventsICS(w http.ResponseWriter, r *http.Request) {
	instances, ok := s.expandRequest(w, r)
	if !ok {
		return
	}
	body := ics.EncodeInstances(instances, ics.EncodeOptions{Name: "zoocal events", Stamp: s.now()})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handleCalendarICS publishes the definitions themselves, recurring ones
// with an RRULE, as a subscription feed.
func (s *Server) handleCalendarICS(w http.ResponseWriter, _ *http.Request) {
	defs, ok := s.definitions(w)
	if !ok {
		return
	}
	body := ics.EncodeDefinitions(defs, ics.EncodeOptions{Name: "zoocal", Stamp: s.now()})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// definitions writes a 503 until the dataset is loaded and a 500 on any
// other source failure.
func (s *Server) definitions(w http.ResponseWriter) ([]model.EventDefinition, bool) {
	defs, err := s.defs.Definitions()
	if err == nil {
		return defs, true
	}
	if errors.Is(err, dataset.ErrNoDefinitions) {
		writeError(w, http.StatusServiceUnavailable, "event dataset not loaded")
		return nil, false
	}
	appLog.Error("api events: definitions unavailable", err)
	writeError(w, http.StatusInternalServerError, "event dataset unavailable")
	return nil, false
}

// expandRequest parses the window, expands the dataset and writes any error
// response itself; ok is false when a response was already written.
func (s *Server) expandRequest(w http.ResponseWriter, r *http.Request) ([]model.EventInstance, bool) {
	from, to, err := s.parseWindow(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	// The version is read before the snapshot: a concurrent reload can only
	// file a newer snapshot under an older key.
	var key string
	if v, ok := s.defs.(versionedSource); ok && s.cache != nil {
		key = expansionKey(v.LoadedAt(), from, to)
	}

	defs, ok := s.definitions(w)
	if !ok {
		return nil, false
	}

	if key != "" {
		if res, hit := s.cache.get(key); hit {
			appLog.Debug("api events: cache hit", "instances", len(res.Instances))
			return s.finishExpansion(w, res), true
		}
	}

	res, err := recur.ExpandOccurrences(defs, recur.ExpandConfig{
		From:                 from,
		To:                   to,
		MaxInstancesPerEvent: s.cfg.MaxInstancesPerEvent,
	})
	if err != nil {
		// The window is already checked, so any failure is a bad dataset.
		appLog.Error("api events: expand failed", err)
		writeError(w, http.StatusInternalServerError, "invalid event dataset")
		return nil, false
	}
	if key != "" {
		s.cache.add(key, res)
	}

	s.metrics.AddInstances(len(res.Instances))
	s.metrics.AddTruncated(len(res.TruncatedIDs))

	appLog.Debug("api events",
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339),
		"definitions", len(defs),
		"instances", len(res.Instances),
	)
	return s.finishExpansion(w, res), true
}

// finishExpansion reports truncated definitions in X-Truncated-Events.
func (s *Server) finishExpansion(w http.ResponseWriter, res recur.ExpandResult) []model.EventInstance {
	if len(res.TruncatedIDs) > 0 {
		w.Header().Set("X-Truncated-Events", strings.Join(res.TruncatedIDs, ","))
	}
	return res.Instances
}

// parseWindow reads from/to, applies defaults and checks the window is
// ordered and no wider than the configured maximum.
func (s *Server) parseWindow(q url.Values) (time.Time, time.Time, error) {
	from := s.now().In(s.loc)
	if v := q.Get("from"); v != "" {
		t, err := model.ParseTimestamp(v, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from: %v", errBadWindow, err)
		}
		from = t
	}

	to := from.Add(defaultWindow)
	if v := q.Get("to"); v != "" {
		t, err := model.ParseTimestamp(v, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to: %v", errBadWindow, err)
		}
		to = t
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from is after to", errBadWindow)
	}
	if limit := s.cfg.MaxWindow(); limit > 0 && to.Sub(from) > limit {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: window exceeds %d days", errBadWindow, s.cfg.MaxWindowDays)
	}
	return from, to, nil
}
