package testsupport

import (
	"context"
	"sync"

	"extracto/internal/services/llm"
)

// ScriptedLLM implements llm.Service with canned responses, recording every
// request for assertions.
type ScriptedLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	Requests  []llm.Request
}

// NewScriptedLLM returns a stub that replays the given responses in order.
// Once exhausted, the last response repeats.
func NewScriptedLLM(responses ...string) *ScriptedLLM {
	return &ScriptedLLM{responses: responses}
}

// FailingLLM returns a stub whose Generate always fails with err.
func FailingLLM(err error) *ScriptedLLM {
	return &ScriptedLLM{err: err}
}

// Generate implements llm.Service.
func (s *ScriptedLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", nil
	}
	response := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return response, nil
}

// RequestCount reports how many calls the stub has served.
func (s *ScriptedLLM) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
