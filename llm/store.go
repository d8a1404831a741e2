package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// callBucket is the KV bucket for LLM call records.
const callBucket = "SCOUT_LLM_CALLS"

// CallRecord captures a complete LLM interaction for run introspection.
type CallRecord struct {
	RequestID  string `json:"request_id"`
	RunID      string `json:"run_id,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Capability string `json:"capability"`
	Model      string `json:"model,omitempty"`
	Provider   string `json:"provider,omitempty"`

	Messages []Message `json:"messages"`
	Response string    `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`

	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	TotalTokens      int    `json:"total_tokens,omitempty"`
	FinishReason     string `json:"finish_reason,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`

	Retries       int      `json:"retries,omitempty"`
	FallbacksUsed []string `json:"fallbacks_used,omitempty"`
}

// CallRecorder persists LLM call records. The client treats recording as
// best-effort; a failing recorder never fails the LLM call.
type CallRecorder interface {
	Record(ctx context.Context, record *CallRecord) error
}

// multiRecorder fans a record out to several recorders. Each recorder
// gets the record even if an earlier one failed; the first error wins.
type multiRecorder []CallRecorder

// MultiRecorder combines recorders, e.g. a metrics collector plus a
// persistent store. Nil entries are skipped.
func MultiRecorder(recorders ...CallRecorder) CallRecorder {
	var active multiRecorder
	for _, r := range recorders {
		if r != nil {
			active = append(active, r)
		}
	}
	return active
}

// Record implements CallRecorder.
func (m multiRecorder) Record(ctx context.Context, record *CallRecord) error {
	var firstErr error
	for _, r := range m {
		if err := r.Record(ctx, record); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CallStore persists call records in a NATS JetStream KV bucket, keyed
// by run so a whole run's LLM traffic can be replayed afterward.
type CallStore struct {
	kv jetstream.KeyValue
}

// NewCallStore creates a call store backed by the SCOUT_LLM_CALLS bucket,
// creating the bucket if it doesn't exist.
func NewCallStore(ctx context.Context, js jetstream.JetStream) (*CallStore, error) {
	kv, err := js.KeyValue(ctx, callBucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      callBucket,
			Description: "LLM call records keyed by run and request",
			History:     5,
		})
		if err != nil {
			return nil, fmt.Errorf("create KV bucket %s: %w", callBucket, err)
		}
	}

	return &CallStore{kv: kv}, nil
}

// callKey builds the KV key for a record. Keys are grouped by run so a
// single-run listing is one prefix watch. Records with no run fall under
// the "unattributed" prefix.
func callKey(record *CallRecord) string {
	runID := record.RunID
	if runID == "" {
		runID = "unattributed"
	}
	return fmt.Sprintf("%s.%s", sanitizeKeyPart(runID), sanitizeKeyPart(record.RequestID))
}

// sanitizeKeyPart replaces characters NATS KV keys disallow.
func sanitizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// Record stores a call record.
func (s *CallStore) Record(ctx context.Context, record *CallRecord) error {
	if record.RequestID == "" {
		return fmt.Errorf("record has no request ID")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal call record: %w", err)
	}

	if _, err := s.kv.Put(ctx, callKey(record), data); err != nil {
		return fmt.Errorf("store call record: %w", err)
	}

	return nil
}

// Get retrieves a single call record.
func (s *CallStore) Get(ctx context.Context, runID, requestID string) (*CallRecord, error) {
	key := fmt.Sprintf("%s.%s", sanitizeKeyPart(runID), sanitizeKeyPart(requestID))

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get call record %s: %w", key, err)
	}

	var record CallRecord
	if err := json.Unmarshal(entry.Value(), &record); err != nil {
		return nil, fmt.Errorf("unmarshal call record %s: %w", key, err)
	}

	return &record, nil
}

// ListByRun returns all call records for a run, ordered by start time.
func (s *CallStore) ListByRun(ctx context.Context, runID string) ([]*CallRecord, error) {
	lister, err := s.kv.ListKeysFiltered(ctx, sanitizeKeyPart(runID)+".*")
	if err != nil {
		return nil, fmt.Errorf("list call records for run %s: %w", runID, err)
	}

	var records []*CallRecord
	for key := range lister.Keys() {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			continue // Deleted between list and get
		}

		var record CallRecord
		if err := json.Unmarshal(entry.Value(), &record); err != nil {
			continue
		}
		records = append(records, &record)
	}

	// KV listing order is unspecified; sort by start time for replay.
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	return records, nil
}

// traceContextKey is the context key for trace metadata.
type traceContextKey struct{}

// TraceContext carries run attribution for LLM calls. Components set it
// once per stage; the client reads it when recording calls.
type TraceContext struct {
	// RunID identifies the research run this call belongs to.
	RunID string

	// Stage identifies the pipeline stage making the call
	// ("parse", "metrics", "positioning", "synthesize").
	Stage string
}

// WithTraceContext returns a context carrying trace metadata.
func WithTraceContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTraceContext extracts trace metadata from the context. Returns the
// zero value if none is set.
func GetTraceContext(ctx context.Context) TraceContext {
	if tc, ok := ctx.Value(traceContextKey{}).(TraceContext); ok {
		return tc
	}
	return TraceContext{}
}
