// Package main implements a mock LLM server for offline research runs.
// It serves OpenAI-compatible /v1/chat/completions responses from JSON
// fixture files, routing by the "model" field in the request. Point the
// endpoint config at it and a full run (classification, both research
// tool loops, synthesis) executes without a real model: fast,
// deterministic, and offline.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 11434
//
// Fixture files are JSON named by model ("mock-classify.json" answers
// model "mock-classify"). Numbered files script the research tool loop:
// "mock-research.1.json" and "mock-research.2.json" answer the first and
// second turns of a conversation — typically tool commands like
// {"tool":"market_quote","args":{"symbol":"DDOG"}} — and the base
// "mock-research.json" answers every turn after the numbered ones run
// out, typically the final analysis.
//
// Turn selection is per conversation, not per server: the turn number is
// the count of assistant messages already in the transcript. The two
// research agents call the same model concurrently with separate
// transcripts, so a shared server-side counter would interleave their
// scripts nondeterministically; counting the transcript keeps each loop
// on its own script.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// --- OpenAI-compatible wire types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Server ---

// capturedRequest stores the key fields of an incoming request so tests
// can verify the prompts the pipeline actually sent.
type capturedRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Turn      int           `json:"turn"` // 1-indexed conversation turn
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string // model name → scripted turn contents

	mu       sync.Mutex
	calls    int64
	byModel  map[string]int64
	captured map[string][]capturedRequest
}

func newServer(fixtures map[string][]string) *server {
	return &server{
		fixtures: fixtures,
		byModel:  make(map[string]int64),
		captured: make(map[string][]capturedRequest),
	}
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	// Allow env var override
	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
	}
	log.Printf("Loaded %d model(s) from %s", len(fixtures), *fixtureDir)
	for model, script := range fixtures {
		log.Printf("  model: %s (%d turn(s))", model, len(script))
	}

	s := newServer(fixtures)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock LLM server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	// Resolve the script: exact model name, then stripped "mock-" prefix.
	script, ok := s.fixtures[req.Model]
	if !ok {
		script, ok = s.fixtures[strings.TrimPrefix(req.Model, "mock-")]
	}
	if !ok {
		log.Printf("WARNING: no fixture for model=%q", req.Model)
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	// The conversation's turn number is how many assistant replies it
	// already contains; past the script's end, the last entry repeats.
	turn := assistantTurns(req.Messages)
	idx := turn
	if idx >= len(script) {
		idx = len(script) - 1
	}
	content := script[idx]

	callNum := s.record(req, turn+1)
	log.Printf("[call %d] model=%s turn=%d/%d messages=%d",
		callNum, req.Model, turn+1, len(script), len(req.Messages))

	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index: 0,
				Message: chatMessage{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(content) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(content) / 2,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// assistantTurns counts the assistant messages already in a transcript.
func assistantTurns(messages []chatMessage) int {
	var n int
	for _, m := range messages {
		if m.Role == "assistant" {
			n++
		}
	}
	return n
}

// record counts the call and captures the request for /requests. Returns
// the total call number.
func (s *server) record(req chatRequest, turn int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.byModel[req.Model]++
	s.captured[req.Model] = append(s.captured[req.Model], capturedRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		Turn:      turn,
		Timestamp: time.Now().UnixMilli(),
	})

	return s.calls
}

// handleModels returns the list of available mock models.
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	var models []modelEntry
	for name := range s.fixtures {
		models = append(models, modelEntry{
			ID:      name,
			Object:  "model",
			OwnedBy: "mock-llm",
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   models,
	})
}

// handleStats returns call counts for test assertions: total_calls and a
// per-model calls_by_model breakdown.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	callsByModel := make(map[string]int64, len(s.byModel))
	for model, n := range s.byModel {
		callsByModel[model] = n
	}
	total := s.calls
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    total,
		"calls_by_model": callsByModel,
	})
}

// handleRequests returns captured request bodies for test assertions.
// Query params:
//   - model: filter by model name (optional)
//   - turn: filter by conversation turn, 1-indexed (optional)
//
// Returns {"requests_by_model": {"mock-classify": [...], ...}}
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	turnFilter, hasTurn := 0, false
	if v := r.URL.Query().Get("turn"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			turnFilter, hasTurn = n, true
		}
	}

	s.mu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.captured {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		if !hasTurn {
			result[model] = reqs
			continue
		}
		for _, req := range reqs {
			if req.Turn == turnFilter {
				result[model] = append(result[model], req)
			}
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests_by_model": result,
	})
}

// numberedFileRe matches files like "mock-research.1.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads JSON files from dir into per-model turn scripts.
//
// For each model the script is ordered: numbered files (model.1.json,
// model.2.json, ...) in numeric order, then the base model.json as the
// repeating final entry. A model with only a base file has a one-entry
// script, which repeats for every turn.
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)             // model → content
	numberedFiles := make(map[string]map[int]string) // model → {turn → content}

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", path)
		}

		content := string(data)

		if matches := numberedFileRe.FindStringSubmatch(info.Name()); matches != nil {
			model := matches[1]
			turn, _ := strconv.Atoi(matches[2])
			if numberedFiles[model] == nil {
				numberedFiles[model] = make(map[int]string)
			}
			numberedFiles[model][turn] = content
			return nil
		}

		model := strings.TrimSuffix(info.Name(), ".json")
		baseFiles[model] = content
		return nil
	})

	if err != nil {
		return nil, err
	}

	fixtures := make(map[string][]string)

	allModels := make(map[string]bool)
	for m := range baseFiles {
		allModels[m] = true
	}
	for m := range numberedFiles {
		allModels[m] = true
	}

	for model := range allModels {
		var script []string

		if numbered, ok := numberedFiles[model]; ok {
			turns := make([]int, 0, len(numbered))
			for turn := range numbered {
				turns = append(turns, turn)
			}
			sort.Ints(turns)

			for _, turn := range turns {
				script = append(script, numbered[turn])
			}
		}

		if base, ok := baseFiles[model]; ok {
			script = append(script, base)
		}

		if len(script) > 0 {
			fixtures[model] = script
		}
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}

	return fixtures, nil
}
