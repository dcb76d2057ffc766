package session

import (
	"fmt"
	"testing"

	"github.com/AmanYadav007/BonusLYF/internal/provider/contracts"
)

func TestHistoryWindow(t *testing.T) {
	t.Parallel()
	h := &History{}
	for i := 0; i < 5; i++ {
		h.AddUser(fmt.Sprintf("u%d", i))
		h.AddAssistant(fmt.Sprintf("a%d", i))
	}

	window := h.Window(3)
	if len(window) != 3 {
		t.Fatalf("window = %d messages, want 3", len(window))
	}
	if window[0].Content != "a3" || window[2].Content != "a4" {
		t.Fatalf("window carried wrong tail: %+v", window)
	}

	if got := h.Window(0); len(got) != 10 {
		t.Fatalf("window(0) = %d messages, want full transcript", len(got))
	}
	if got := h.Window(100); len(got) != 10 {
		t.Fatalf("window(100) = %d messages, want full transcript", len(got))
	}
	if h.Len() != 10 {
		t.Fatalf("len = %d", h.Len())
	}
}

func TestHistoryCopiesAreIndependent(t *testing.T) {
	t.Parallel()
	h := &History{}
	h.AddUser("hello")

	all := h.All()
	all[0] = contracts.Message{Role: contracts.RoleAssistant, Content: "mutated"}

	if got := h.All()[0]; got.Role != contracts.RoleUser || got.Content != "hello" {
		t.Fatalf("history mutated through copy: %+v", got)
	}
}
