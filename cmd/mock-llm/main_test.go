package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
}

// doCompletion posts a chat request with the given transcript and returns
// the assistant content.
func doCompletion(t *testing.T, url, model string, messages []chatMessage) string {
	t.Helper()

	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(url+"/v1/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(parsed.Choices) != 1 {
		t.Fatalf("choices = %d, want 1", len(parsed.Choices))
	}
	return parsed.Choices[0].Message.Content
}

func newTestMux(s *server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)
	return mux
}

func TestLoadFixtures_BaseOnly(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-classify.json", `{"entities": ["DDOG"]}`)

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}

	script, ok := fixtures["mock-classify"]
	if !ok {
		t.Fatal("missing mock-classify script")
	}
	if len(script) != 1 {
		t.Fatalf("script length = %d, want 1", len(script))
	}
}

func TestLoadFixtures_NumberedBeforeBase(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-research.2.json", `{"turn": 2}`)
	writeFixture(t, dir, "mock-research.json", `{"turn": "final"}`)
	writeFixture(t, dir, "mock-research.1.json", `{"turn": 1}`)

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}

	script := fixtures["mock-research"]
	want := []string{`{"turn": 1}`, `{"turn": 2}`, `{"turn": "final"}`}
	if len(script) != len(want) {
		t.Fatalf("script length = %d, want %d", len(script), len(want))
	}
	for i := range want {
		if script[i] != want[i] {
			t.Errorf("script[%d] = %q, want %q", i, script[i], want[i])
		}
	}
}

func TestLoadFixtures_NumberedOnly(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-research.1.json", `{"turn": 1}`)

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}
	if len(fixtures["mock-research"]) != 1 {
		t.Fatalf("script length = %d, want 1", len(fixtures["mock-research"]))
	}
}

func TestLoadFixtures_EmptyDir(t *testing.T) {
	if _, err := loadFixtures(t.TempDir()); err == nil {
		t.Fatal("expected error for empty fixture dir")
	}
}

func TestLoadFixtures_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-classify.json", `{not json`)

	if _, err := loadFixtures(dir); err == nil {
		t.Fatal("expected error for invalid JSON fixture")
	}
}

func TestTurnSelection_FollowsTranscript(t *testing.T) {
	s := newServer(map[string][]string{
		"mock-research": {
			`{"tool":"market_quote","args":{"symbol":"DDOG"}}`,
			`{"tool":"web_search","args":{"query":"DDOG observability"}}`,
			`final analysis`,
		},
	})
	srv := httptest.NewServer(newTestMux(s))
	defer srv.Close()

	transcript := []chatMessage{{Role: "user", Content: "research DDOG"}}

	// First turn: no assistant messages yet.
	got := doCompletion(t, srv.URL, "mock-research", transcript)
	if got != `{"tool":"market_quote","args":{"symbol":"DDOG"}}` {
		t.Fatalf("turn 1 = %q", got)
	}

	// Second turn: the agent loop appends the reply plus a tool result.
	transcript = append(transcript,
		chatMessage{Role: "assistant", Content: got},
		chatMessage{Role: "user", Content: `{"price": 118.42}`},
	)
	got = doCompletion(t, srv.URL, "mock-research", transcript)
	if got != `{"tool":"web_search","args":{"query":"DDOG observability"}}` {
		t.Fatalf("turn 2 = %q", got)
	}

	// Third and fourth turns: past the script's end the last entry repeats.
	transcript = append(transcript,
		chatMessage{Role: "assistant", Content: got},
		chatMessage{Role: "user", Content: `{"results": []}`},
	)
	for turn := 3; turn <= 4; turn++ {
		got = doCompletion(t, srv.URL, "mock-research", transcript)
		if got != "final analysis" {
			t.Fatalf("turn %d = %q, want final analysis", turn, got)
		}
		transcript = append(transcript, chatMessage{Role: "assistant", Content: got})
	}
}

func TestTurnSelection_ConversationsAreIndependent(t *testing.T) {
	// Two agents share one model but carry separate transcripts. Interleaved
	// requests must each follow their own script position, not a shared
	// server-side counter.
	s := newServer(map[string][]string{
		"mock-research": {`first turn`, `second turn`},
	})
	srv := httptest.NewServer(newTestMux(s))
	defer srv.Close()

	metricsTranscript := []chatMessage{{Role: "user", Content: "metrics for DDOG"}}
	positioningTranscript := []chatMessage{{Role: "user", Content: "positioning for DDOG"}}

	if got := doCompletion(t, srv.URL, "mock-research", metricsTranscript); got != "first turn" {
		t.Fatalf("metrics turn 1 = %q", got)
	}
	// The other conversation's first request still gets the first entry.
	if got := doCompletion(t, srv.URL, "mock-research", positioningTranscript); got != "first turn" {
		t.Fatalf("positioning turn 1 = %q", got)
	}

	metricsTranscript = append(metricsTranscript, chatMessage{Role: "assistant", Content: "first turn"})
	if got := doCompletion(t, srv.URL, "mock-research", metricsTranscript); got != "second turn" {
		t.Fatalf("metrics turn 2 = %q", got)
	}
	positioningTranscript = append(positioningTranscript, chatMessage{Role: "assistant", Content: "first turn"})
	if got := doCompletion(t, srv.URL, "mock-research", positioningTranscript); got != "second turn" {
		t.Fatalf("positioning turn 2 = %q", got)
	}
}

func TestStripMockPrefix(t *testing.T) {
	s := newServer(map[string][]string{
		"classify": {`{"entities": []}`},
	})
	srv := httptest.NewServer(newTestMux(s))
	defer srv.Close()

	got := doCompletion(t, srv.URL, "mock-classify", []chatMessage{{Role: "user", Content: "hi"}})
	if got != `{"entities": []}` {
		t.Fatalf("content = %q", got)
	}
}

func TestUnknownModelIs404(t *testing.T) {
	s := newServer(map[string][]string{"mock-classify": {`{}`}})
	srv := httptest.NewServer(newTestMux(s))
	defer srv.Close()

	body, _ := json.Marshal(chatRequest{
		Model:    "no-such-model",
		Messages: []chatMessage{{Role: "user", Content: "hi"}},
	})
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newServer(map[string][]string{
		"mock-classify": {`{"entities": ["DDOG"]}`},
		"mock-research": {`analysis`},
	})
	srv := httptest.NewServer(newTestMux(s))
	defer srv.Close()

	user := []chatMessage{{Role: "user", Content: "hi"}}
	doCompletion(t, srv.URL, "mock-classify", user)
	doCompletion(t, srv.URL, "mock-research", user)
	doCompletion(t, srv.URL, "mock-research", user)

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer resp.Body.Close()

	var stats struct {
		TotalCalls   int64            `json:"total_calls"`
		CallsByModel map[string]int64 `json:"calls_by_model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}

	if stats.TotalCalls != 3 {
		t.Errorf("total_calls = %d, want 3", stats.TotalCalls)
	}
	if stats.CallsByModel["mock-classify"] != 1 {
		t.Errorf("mock-classify calls = %d, want 1", stats.CallsByModel["mock-classify"])
	}
	if stats.CallsByModel["mock-research"] != 2 {
		t.Errorf("mock-research calls = %d, want 2", stats.CallsByModel["mock-research"])
	}
}

func TestRequestsEndpointCapturesTurns(t *testing.T) {
	s := newServer(map[string][]string{
		"mock-research": {`tool call`, `analysis`},
	})
	srv := httptest.NewServer(newTestMux(s))
	defer srv.Close()

	transcript := []chatMessage{{Role: "user", Content: "research DDOG"}}
	reply := doCompletion(t, srv.URL, "mock-research", transcript)
	transcript = append(transcript,
		chatMessage{Role: "assistant", Content: reply},
		chatMessage{Role: "user", Content: `{"price": 118.42}`},
	)
	doCompletion(t, srv.URL, "mock-research", transcript)

	resp, err := http.Get(srv.URL + "/requests?model=mock-research&turn=2")
	if err != nil {
		t.Fatalf("get requests: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		RequestsByModel map[string][]capturedRequest `json:"requests_by_model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode requests: %v", err)
	}

	captured := payload.RequestsByModel["mock-research"]
	if len(captured) != 1 {
		t.Fatalf("captured = %d requests, want 1", len(captured))
	}
	if captured[0].Turn != 2 {
		t.Errorf("turn = %d, want 2", captured[0].Turn)
	}
	if len(captured[0].Messages) != 3 {
		t.Errorf("messages = %d, want 3", len(captured[0].Messages))
	}
	if captured[0].Messages[2].Content != `{"price": 118.42}` {
		t.Errorf("last message = %q", captured[0].Messages[2].Content)
	}
}

func TestAssistantTurns(t *testing.T) {
	cases := []struct {
		messages []chatMessage
		want     int
	}{
		{nil, 0},
		{[]chatMessage{{Role: "user", Content: "hi"}}, 0},
		{[]chatMessage{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "tool call"},
			{Role: "user", Content: "result"},
			{Role: "assistant", Content: "another"},
			{Role: "user", Content: "result"},
		}, 2},
	}
	for i, tc := range cases {
		if got := assistantTurns(tc.messages); got != tc.want {
			t.Errorf("case %d: assistantTurns = %d, want %d", i, got, tc.want)
		}
	}
}

func TestNumberedFileRegex(t *testing.T) {
	cases := []struct {
		name  string
		model string
		turn  string
	}{
		{"mock-research.1.json", "mock-research", "1"},
		{"mock-research.12.json", "mock-research", "12"},
		{"mock-classify.json", "", ""},
	}
	for _, tc := range cases {
		matches := numberedFileRe.FindStringSubmatch(tc.name)
		if tc.model == "" {
			if matches != nil {
				t.Errorf("%s: expected no match, got %v", tc.name, matches)
			}
			continue
		}
		if matches == nil {
			t.Fatalf("%s: expected match", tc.name)
		}
		if matches[1] != tc.model || matches[2] != tc.turn {
			t.Errorf("%s: got (%s, %s), want (%s, %s)", tc.name, matches[1], matches[2], tc.model, tc.turn)
		}
	}
}
