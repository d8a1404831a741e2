// Package testutil provides LLM test doubles.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360studio/scout/llm"
)

// MockClient is a scriptable LLM client for tests. It satisfies the
// narrow completion interfaces the pipeline components declare.
//
// Behavior resolution order: CompleteFunc if set, then the response
// queue, then the static Response. With nothing configured, Complete
// returns an error.
type MockClient struct {
	mu sync.Mutex

	// CompleteFunc overrides all other behavior when set.
	CompleteFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

	// Response is returned for every call when no queue is set.
	Response *llm.Response

	// Err is returned for every call when set (and no CompleteFunc).
	Err error

	queue    []queuedResult
	requests []llm.Request
}

type queuedResult struct {
	resp *llm.Response
	err  error
}

// QueueResponse appends a successful response to the scripted queue.
func (m *MockClient) QueueResponse(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, queuedResult{resp: &llm.Response{
		Content: content,
		Model:   "mock-model",
	}})
}

// QueueError appends a failure to the scripted queue.
func (m *MockClient) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, queuedResult{err: err})
}

// Complete records the request and returns the next scripted result.
func (m *MockClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)

	if m.CompleteFunc != nil {
		m.mu.Unlock()
		return m.CompleteFunc(ctx, req)
	}

	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return next.resp, next.err
	}
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Response != nil {
		return m.Response, nil
	}

	return nil, fmt.Errorf("mock client has no scripted response")
}

// Requests returns a copy of all requests seen so far.
func (m *MockClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns how many times Complete was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
