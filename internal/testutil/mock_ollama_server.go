package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// OllamaCall captures one chat request received by the mock server.
type OllamaCall struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// MockOllama is an httptest-backed stand-in for the Ollama chat endpoint.
// It replies to POST /api/chat with a fixed message body and records every
// request it receives.
type MockOllama struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []OllamaCall
	reply string
}

// NewMockOllama starts a mock Ollama server replying with content. Caller
// must register t.Cleanup(m.Server.Close).
func NewMockOllama(content string) *MockOllama {
	m := &MockOllama{reply: content}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var call OllamaCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		m.mu.Lock()
		m.calls = append(m.calls, call)
		reply := m.reply
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": reply},
			"done":    true,
		})
	}))
	return m
}

// SetReply changes the content returned by subsequent chat calls.
func (m *MockOllama) SetReply(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = content
}

// Calls returns a copy of the recorded chat requests.
func (m *MockOllama) Calls() []OllamaCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OllamaCall(nil), m.calls...)
}

// URL returns the mock server's base URL.
func (m *MockOllama) URL() string {
	return m.Server.URL
}
