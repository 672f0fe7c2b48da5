package modelclient

import (
	"context"
	"fmt"
	"sync"
)

// MockOK always succeeds. With no canned Response it echoes a prefix of
// the prompt, which downstream normalization treats as a plain-text
// answer.
type MockOK struct {
	Response string
}

func (m MockOK) Call(_ context.Context, prompt string) (string, error) {
	if m.Response != "" {
		return m.Response, nil
	}
	if len(prompt) > 50 {
		prompt = prompt[:50]
	}
	return fmt.Sprintf("answer: %s", prompt), nil
}

// MockEmpty returns an empty response body, which the runner records as
// a terminal failure without retrying.
type MockEmpty struct{}

func (MockEmpty) Call(context.Context, string) (string, error) {
	return "", nil
}

// MockMalformed returns a brace-prefixed payload that does not decode.
type MockMalformed struct{}

func (MockMalformed) Call(context.Context, string) (string, error) {
	return `{"answer": incomplete`, nil
}

// MockErr always fails with the given transport error.
type MockErr struct {
	Err error
}

func (m MockErr) Call(context.Context, string) (string, error) {
	return "", m.Err
}

// MockTimeout times out the first Failures calls, then succeeds. Safe
// for concurrent use.
type MockTimeout struct {
	Failures int
	Response string

	mu    sync.Mutex
	calls int
}

func (m *MockTimeout) Call(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.Failures {
		return "", context.DeadlineExceeded
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return "recovered", nil
}

// Calls returns how many times the client has been invoked.
func (m *MockTimeout) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
