package session

import (
	"sync"

	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
)

// History holds the conversation so far. The full transcript is kept for
// the lifetime of the session; Window trims what gets sent back to the
// reply generator so the context never grows without bound.
type History struct {
	mu       sync.Mutex
	messages []contracts.Message
}

// AddUser appends a user utterance.
func (h *History) AddUser(text string) {
	h.add(contracts.Message{Role: contracts.RoleUser, Content: text})
}

// AddAssistant appends a companion reply.
func (h *History) AddAssistant(text string) {
	h.add(contracts.Message{Role: contracts.RoleAssistant, Content: text})
}

func (h *History) add(msg contracts.Message) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
}

// All returns a copy of the full transcript.
func (h *History) All() []contracts.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]contracts.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Window returns a copy of the last n messages.
func (h *History) Window(n int) []contracts.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n >= len(h.messages) {
		out := make([]contracts.Message, len(h.messages))
		copy(out, h.messages)
		return out
	}
	out := make([]contracts.Message, n)
	copy(out, h.messages[len(h.messages)-n:])
	return out
}

// Len returns the transcript length.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}
