package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/XiaoConstantine/ale-go/pkg/errors"
	"github.com/XiaoConstantine/ale-go/pkg/logging"
)

// Availability reports whether an external backend answered its probe.
// Resolved once at construction rather than re-probed per call.
type Availability int

const (
	BackendUnknown Availability = iota
	BackendAvailable
	BackendUnreachable
)

// Backend is an optional external recall service. Implementations must be
// safe for concurrent use. Backend failures never propagate to callers of
// WorkingMemory; they are logged and the store degrades to local-only.
type Backend interface {
	Store(ctx context.Context, entry Entry) error
	Search(ctx context.Context, query string, entryType EntryType, limit int) ([]Match, error)
	Availability() Availability
}

// HTTPBackend talks to an HTTP-reachable semantic-search service exposing
// store and search endpoints.
type HTTPBackend struct {
	baseURL      string
	client       *http.Client
	availability Availability
	logger       *logging.Logger
}

// NewHTTPBackend probes the service's health endpoint with a short timeout
// and records the result. An unreachable service still yields a usable
// backend; every call on it returns BackendUnavailable errors which the
// working memory swallows.
func NewHTTPBackend(baseURL string) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logging.GetLogger(),
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		b.availability = BackendUnreachable
		return b
	}
	resp, err := b.client.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		b.availability = BackendUnreachable
		b.logger.Warn(context.Background(), "memory backend at %s unreachable, using local-only storage", baseURL)
	} else {
		b.availability = BackendAvailable
	}
	if resp != nil {
		resp.Body.Close()
	}
	return b
}

// Availability reports the probe result from construction.
func (b *HTTPBackend) Availability() Availability {
	return b.availability
}

type storeRequest struct {
	Content  string                 `json:"content"`
	Type     string                 `json:"type"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type searchRequest struct {
	Query string `json:"query"`
	Type  string `json:"type,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type searchResult struct {
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Store writes an entry to the external service.
func (b *HTTPBackend) Store(ctx context.Context, entry Entry) error {
	if b.availability != BackendAvailable {
		return errors.New(errors.BackendUnavailable, "memory backend unreachable")
	}

	meta := map[string]interface{}{"task_pattern": entry.TaskPattern, "confidence": entry.Confidence}
	for k, v := range entry.Metadata {
		meta[k] = v
	}
	body, err := json.Marshal(storeRequest{Content: entry.Content, Type: string(entry.Type), Metadata: meta})
	if err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to encode store request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/store", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to build store request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.BackendUnavailable, "memory backend store failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.WithFields(
			errors.New(errors.StoreFailed, "memory backend rejected store"),
			errors.Fields{"status": resp.StatusCode},
		)
	}
	return nil
}

// Search queries the external service. Malformed results degrade to an
// empty slice rather than an error.
func (b *HTTPBackend) Search(ctx context.Context, query string, entryType EntryType, limit int) ([]Match, error) {
	if b.availability != BackendAvailable {
		return nil, errors.New(errors.BackendUnavailable, "memory backend unreachable")
	}

	body, err := json.Marshal(searchRequest{Query: query, Type: string(entryType), Limit: limit})
	if err != nil {
		return nil, errors.Wrap(err, errors.RecallFailed, "failed to encode search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.RecallFailed, "failed to build search request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.BackendUnavailable, "memory backend search failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, errors.WithFields(
			errors.New(errors.RecallFailed, "memory backend rejected search"),
			errors.Fields{"status": resp.StatusCode},
		)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		b.logger.Debug(ctx, "malformed backend search response: %v", err)
		return nil, nil
	}

	matches := make([]Match, 0, len(results))
	for i, r := range results {
		matches = append(matches, Match{
			Entry: Entry{
				ID:       fmt.Sprintf("external-%d", i),
				Type:     entryType,
				Content:  r.Content,
				Metadata: r.Metadata,
			},
			Similarity: r.Score,
		})
	}
	return matches, nil
}
