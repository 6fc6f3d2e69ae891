// Package dataset supplies event definitions to the rest of the service:
// from a local file, from a cached HTTP fetch, and through a Store that
// keeps a validated snapshot and reloads it on a cron schedule.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"zoocal/internal/ics"
	"zoocal/internal/model"
)

// ErrNoDefinitions is returned by Store when no dataset has been loaded yet.
var ErrNoDefinitions = errors.New("dataset: no definitions loaded")

// Provider loads the full list of event definitions.
type Provider interface {
	Load(ctx context.Context) ([]model.EventDefinition, error)
}

// Format is the encoding of a dataset body.
type Format int

const (
	FormatJSON Format = iota
	FormatICS
)

// FormatFor guesses the format from a path/URL extension or a Content-Type.
// Anything unrecognized is JSON.
func FormatFor(name, contentType string) Format {
	if strings.HasPrefix(strings.ToLower(contentType), "text/calendar") {
		return FormatICS
	}
	name = strings.ToLower(name)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch filepath.Ext(name) {
	case ".ics", ".ical", ".ifb", ".icalendar":
		return FormatICS
	}
	return FormatJSON
}

// Decode turns a dataset body into definitions.
func Decode(sourceID string, body []byte, format Format, loc *time.Location) ([]model.EventDefinition, error) {
	switch format {
	case FormatICS:
		return ics.ParseICS(sourceID, body, loc)
	default:
		return model.DecodeDefinitions(body, loc)
	}
}

// FileProvider reads definitions from a local JSON or iCalendar file.
type FileProvider struct {
	Path     string
	Location *time.Location
}

// NewFileProvider creates a FileProvider; loc is applied to timestamps.
func NewFileProvider(path string, loc *time.Location) *FileProvider {
	return &FileProvider{Path: path, Location: loc}
}

func (p *FileProvider) Load(_ context.Context) ([]model.EventDefinition, error) {
	body, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", p.Path, err)
	}
	return Decode(p.Path, body, FormatFor(p.Path, ""), p.Location)
}

// NewProvider picks an HTTPProvider for http(s) sources and a FileProvider
// otherwise.
func NewProvider(source, cacheDir string, loc *time.Location) Provider {
	lower := strings.ToLower(source)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return NewHTTPProvider(source, cacheDir, loc)
	}
	return NewFileProvider(source, loc)
}
