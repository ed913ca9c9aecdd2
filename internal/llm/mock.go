package llm

import (
	"context"
	"strings"
	"sync"
)

// defaultMockResponse is a plausible metadata payload for tests and
// offline development.
const defaultMockResponse = `{
  "motion_type": "dolly_in",
  "speed_profile": "ease_in_out",
  "suggested_scale": "medium",
  "explanation": "画面平稳推进，主体逐渐放大。建议保持当前速度并使用滑轨辅助。"
}`

// MockCompleter returns canned responses keyed by prompt substring.
// Safe for concurrent use.
type MockCompleter struct {
	mu        sync.Mutex
	responses map[string]string
	calls     []string
	err       error
}

var _ Completer = (*MockCompleter)(nil)

// NewMockCompleter builds a mock with the static default response.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{responses: make(map[string]string)}
}

// Respond registers a response for prompts containing pattern.
func (m *MockCompleter) Respond(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[pattern] = response
}

// Fail makes every Complete call return err until cleared with nil.
func (m *MockCompleter) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the user prompts seen so far.
func (m *MockCompleter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Complete matches the first registered pattern found in userPrompt and
// falls back to the default payload.
func (m *MockCompleter) Complete(_ context.Context, _, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, userPrompt)
	if m.err != nil {
		return "", m.err
	}
	for pattern, response := range m.responses {
		if strings.Contains(userPrompt, pattern) {
			return response, nil
		}
	}
	return defaultMockResponse, nil
}
