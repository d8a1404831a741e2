// Package storage archives completed research runs in NATS JetStream
// KV. The archive is optional and best-effort: the engine runs fine
// with no store, and a failing save never fails a run.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/scout/research"
)

// runBucket is the KV bucket for run records.
const runBucket = "SCOUT_RUNS"

// artifactPreviewLimit caps the artifact excerpt stored in the record.
const artifactPreviewLimit = 500

// RunRecord summarizes one completed run for the archive.
type RunRecord struct {
	ID       string   `json:"id"`
	Request  string   `json:"request"`
	Entities []string `json:"entities"`

	// Fallback records whether the plan came from the default entity set.
	Fallback bool `json:"fallback,omitempty"`

	// TaskStatuses maps each sub-task kind to "success" or "failure".
	TaskStatuses map[string]string `json:"task_statuses"`

	// TaskErrors carries the failure description for each failed kind.
	TaskErrors map[string]string `json:"task_errors,omitempty"`

	// Path is the synthesis path that produced the artifact.
	Path string `json:"path"`

	// ArtifactPreview is the head of the artifact, truncated.
	ArtifactPreview string `json:"artifact_preview"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// NewRunRecord summarizes a completed run state.
func NewRunRecord(state *research.RunState) *RunRecord {
	record := &RunRecord{
		ID:           state.RunID,
		Request:      state.Request,
		Path:         string(state.Path),
		TaskStatuses: make(map[string]string, len(state.Results)),
		StartedAt:    state.StartedAt,
		CompletedAt:  state.CompletedAt,
		DurationMs:   state.CompletedAt.Sub(state.StartedAt).Milliseconds(),
	}

	if state.Plan != nil {
		record.Entities = state.Plan.Entities()
		record.Fallback = state.Plan.Fallback
	}

	for kind, result := range state.Results {
		if result.Succeeded() {
			record.TaskStatuses[string(kind)] = "success"
			continue
		}
		record.TaskStatuses[string(kind)] = "failure"
		if result != nil && result.Error != "" {
			if record.TaskErrors == nil {
				record.TaskErrors = make(map[string]string)
			}
			record.TaskErrors[string(kind)] = result.Error
		}
	}

	preview := state.Artifact
	if len(preview) > artifactPreviewLimit {
		preview = preview[:artifactPreviewLimit] + "..."
	}
	record.ArtifactPreview = preview

	return record
}

// RunStore archives run records in the SCOUT_RUNS bucket. It satisfies
// research.Archiver.
type RunStore struct {
	kv jetstream.KeyValue
}

// NewRunStore creates a run store, creating the bucket if needed.
func NewRunStore(ctx context.Context, js jetstream.JetStream) (*RunStore, error) {
	kv, err := js.KeyValue(ctx, runBucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      runBucket,
			Description: "Completed research run summaries",
			History:     5,
		})
		if err != nil {
			return nil, fmt.Errorf("create KV bucket %s: %w", runBucket, err)
		}
	}

	return &RunStore{kv: kv}, nil
}

// SaveRun archives a completed run. Implements research.Archiver.
func (s *RunStore) SaveRun(ctx context.Context, state *research.RunState) error {
	if state == nil || state.RunID == "" {
		return fmt.Errorf("run state has no ID")
	}

	data, err := json.Marshal(NewRunRecord(state))
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	if _, err := s.kv.Put(ctx, sanitizeKey(state.RunID), data); err != nil {
		return fmt.Errorf("store run record: %w", err)
	}

	return nil
}

// GetRun retrieves one archived run. Returns ErrNotFound for unknown
// IDs.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	entry, err := s.kv.Get(ctx, sanitizeKey(runID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run record %s: %w", runID, err)
	}

	var record RunRecord
	if err := json.Unmarshal(entry.Value(), &record); err != nil {
		return nil, fmt.Errorf("unmarshal run record %s: %w", runID, err)
	}

	return &record, nil
}

// ListRuns returns all archived runs, most recent first.
func (s *RunStore) ListRuns(ctx context.Context) ([]*RunRecord, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}

	var records []*RunRecord
	for key := range lister.Keys() {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			continue // Deleted between list and get
		}

		var record RunRecord
		if err := json.Unmarshal(entry.Value(), &record); err != nil {
			continue
		}
		records = append(records, &record)
	}

	// KV listing order is unspecified; newest runs first for display.
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	return records, nil
}

// sanitizeKey replaces characters NATS KV keys disallow.
func sanitizeKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
