package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "zoocal/internal/log"
	"zoocal/internal/model"
)

// cacheMeta holds HTTP cache validators for the dataset URL.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// fetchResult is the body of one fetch and where it came from.
type fetchResult struct {
	Body        []byte
	ContentType string
	FromCache   bool
}

// HTTPProvider fetches the dataset over HTTP with conditional requests
// (ETag / Last-Modified) and a disk cache. Network failures and non-OK
// statuses fall back to the cached body when there is one.
type HTTPProvider struct {
	url      string
	cacheDir string
	client   *http.Client
	loc      *time.Location
}

// NewHTTPProvider creates an HTTPProvider caching under cacheDir.
func NewHTTPProvider(url, cacheDir string, loc *time.Location) *HTTPProvider {
	if cacheDir == "" {
		cacheDir = "./var/events-cache"
	}
	return &HTTPProvider{
		url:      url,
		cacheDir: cacheDir,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		loc: loc,
	}
}

// Load fetches (or reuses the cached) dataset and decodes it.
func (p *HTTPProvider) Load(ctx context.Context) ([]model.EventDefinition, error) {
	res, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return Decode(redactURL(p.url), res.Body, FormatFor(p.url, res.ContentType), p.loc)
}

func (p *HTTPProvider) fetch(ctx context.Context) (fetchResult, error) {
	if p.url == "" {
		return fetchResult{}, errors.New("dataset: source URL is empty")
	}

	cachePath := p.cachePath()
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return fetchResult{}, err
	}

	meta, _ := loadCacheMeta(cachePath)
	cachedBody, _ := os.ReadFile(filepath.Join(cachePath, "body"))
	cached := fetchResult{Body: cachedBody, ContentType: meta.ContentType, FromCache: true}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fetchResult{}, err
	}
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("dataset fetch start", "url", redactURL(p.url))

	resp, err := p.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("dataset fetch network error, using cached body", err, "url", redactURL(p.url))
			return cached, nil
		}
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fetchResult{}, readErr
		}
		newMeta := cacheMeta{
			URL:          p.url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			ContentType:  resp.Header.Get("Content-Type"),
		}
		if err := saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("dataset cache save failed", err, "url", redactURL(p.url))
		}
		appLog.Info("dataset fetch success", "url", redactURL(p.url), "bytes", len(body))
		return fetchResult{Body: body, ContentType: newMeta.ContentType}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return fetchResult{}, errors.New("dataset: 304 Not Modified but no cached body available")
		}
		appLog.Debug("dataset not modified; using cache", "url", redactURL(p.url))
		return cached, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("dataset fetch non-OK, using cached body", errors.New(resp.Status),
				"url", redactURL(p.url), "status", resp.StatusCode)
			return cached, nil
		}
		return fetchResult{}, fmt.Errorf("dataset: fetch %s: %s", redactURL(p.url), resp.Status)
	}
}

// cachePath is a per-URL directory named after a hash of the URL.
func (p *HTTPProvider) cachePath() string {
	sum := sha256.Sum256([]byte(p.url))
	return filepath.Join(p.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheMeta, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps scheme and host only, hiding tokens in paths or queries.
//
//	https://example.com/private/events.json?token=abcd -> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "dataset://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
